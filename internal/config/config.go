package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/glens/internal/cache"
	"github.com/MeKo-Tech/glens/internal/crop"
	"github.com/MeKo-Tech/glens/internal/detector"
	"github.com/MeKo-Tech/glens/internal/imageio"
	"github.com/MeKo-Tech/glens/internal/models"
	"github.com/MeKo-Tech/glens/internal/onnx"
	"github.com/MeKo-Tech/glens/internal/search/google"
)

// ProviderGoogle is the only supported search provider.
const ProviderGoogle = "google"

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	det := detector.DefaultConfig()
	fetch := imageio.DefaultConfig()

	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8000,
			CORSOrigin:        "*",
			MaxUploadMB:       20,
			TimeoutSec:        60,
			ShutdownTimeout:   10,
			RequestsPerMinute: 30,
			RequestsPerHour:   500,
		},
		Search: SearchConfig{
			Provider:   ProviderGoogle,
			BaseURL:    google.DefaultBaseURL,
			MaxPages:   2,
			TimeoutSec: 30,
		},
		Crop: CropConfig{
			DefaultStrategy:     int(crop.DefaultKind),
			ForegroundThreshold: int(crop.DefaultForegroundThreshold),
		},
		Detector: DetectorConfig{
			Model:         models.DefaultDetectionModel,
			InputSize:     det.InputSize,
			ConfThreshold: float64(det.ConfThreshold),
			IoUThreshold:  det.IoUThreshold,
			MaxDetections: det.MaxDetections,
		},
		Fetch: FetchConfig{
			TimeoutSec: int(fetch.Timeout / time.Second),
			MaxBytes:   fetch.MaxBytes,
			UserAgent:  fetch.UserAgent,
		},
		Cache: CacheConfig{
			RedisAddr: "localhost:6379",
			TTLSec:    3600,
		},
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	if c.Search.Provider != ProviderGoogle {
		return fmt.Errorf("unsupported search provider: %q", c.Search.Provider)
	}
	if c.Search.MaxPages < 1 {
		return fmt.Errorf("invalid search.max_pages: %d (must be at least 1)", c.Search.MaxPages)
	}

	if c.Crop.DefaultStrategy != int(crop.KindObjectDetection) && c.Crop.DefaultStrategy != int(crop.KindForeground) {
		return fmt.Errorf("invalid crop.default_strategy: %d (must be 0 or 1)", c.Crop.DefaultStrategy)
	}
	if c.Crop.ForegroundThreshold < 0 || c.Crop.ForegroundThreshold > 254 {
		return fmt.Errorf("invalid crop.foreground_threshold: %d (must be between 0 and 254)", c.Crop.ForegroundThreshold)
	}

	if err := validateThreshold(c.Detector.ConfThreshold, "detector.conf_threshold"); err != nil {
		return err
	}
	if err := validateThreshold(c.Detector.IoUThreshold, "detector.iou_threshold"); err != nil {
		return err
	}
	if c.Detector.ModelPath == "" {
		if _, err := models.Lookup(c.Detector.Model); err != nil && !strings.HasSuffix(c.Detector.Model, ".onnx") {
			return fmt.Errorf("invalid detector.model: %q (use a known model name or an .onnx file name)", c.Detector.Model)
		}
	}
	if c.Detector.InputSize <= 0 || c.Detector.InputSize%32 != 0 {
		return fmt.Errorf("invalid detector.input_size: %d (must be a positive multiple of 32)", c.Detector.InputSize)
	}

	if c.Fetch.TimeoutSec <= 0 {
		return fmt.Errorf("invalid fetch.timeout_sec: %d (must be positive)", c.Fetch.TimeoutSec)
	}
	if c.Fetch.MaxBytes < 0 {
		return fmt.Errorf("invalid fetch.max_bytes: %d (must not be negative)", c.Fetch.MaxBytes)
	}

	if c.Cache.Enabled {
		if c.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr is required when the cache is enabled")
		}
		if c.Cache.TTLSec <= 0 {
			return fmt.Errorf("invalid cache.ttl_sec: %d (must be positive)", c.Cache.TTLSec)
		}
	}
	if c.History.Enabled && c.History.DSN == "" {
		return errors.New("history.dsn is required when history is enabled")
	}
	return nil
}

func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

// ToDetectorConfig builds the detector configuration. An explicit model path
// wins over the models directory.
func (c *Config) ToDetectorConfig() detector.Config {
	cfg := detector.DefaultConfig()
	if c.Detector.ModelPath != "" {
		cfg.ModelPath = c.Detector.ModelPath
	} else {
		cfg.UpdateModelPath(c.ModelsDir, c.Detector.Model)
	}
	cfg.InputSize = c.Detector.InputSize
	cfg.ConfThreshold = float32(c.Detector.ConfThreshold)
	cfg.IoUThreshold = c.Detector.IoUThreshold
	cfg.MaxDetections = c.Detector.MaxDetections
	cfg.NumThreads = c.Detector.NumThreads
	cfg.GPU = onnx.DefaultGPUConfig()
	cfg.GPU.UseGPU = c.Detector.GPU
	cfg.GPU.DeviceID = c.Detector.GPUDevice
	return cfg
}

// ToFetchConfig builds the image loader configuration.
func (c *Config) ToFetchConfig() imageio.Config {
	return imageio.Config{
		Timeout:   time.Duration(c.Fetch.TimeoutSec) * time.Second,
		MaxBytes:  c.Fetch.MaxBytes,
		UserAgent: c.Fetch.UserAgent,
	}
}

// ToGoogleConfig builds the search provider configuration.
func (c *Config) ToGoogleConfig() google.Config {
	return google.Config{
		BaseURL:   c.Search.BaseURL,
		Proxy:     c.Search.Proxy,
		Timeout:   time.Duration(c.Search.TimeoutSec) * time.Second,
		UserAgent: c.Search.UserAgent,
	}
}

// ToCacheConfig builds the Redis cache configuration.
func (c *Config) ToCacheConfig() cache.Config {
	return cache.Config{
		Addr:     c.Cache.RedisAddr,
		Password: c.Cache.RedisPassword,
		DB:       c.Cache.RedisDB,
		TTL:      time.Duration(c.Cache.TTLSec) * time.Second,
	}
}

// DefaultCropKind returns the configured default crop strategy.
func (c *Config) DefaultCropKind() crop.Kind {
	return crop.Kind(c.Crop.DefaultStrategy)
}
