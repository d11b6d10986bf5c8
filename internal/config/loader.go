package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "glens"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "GLENS"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader backed by the global viper instance so cobra
// flag bindings apply.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader backed by v.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the first config file found in the search paths (if any),
// applies environment overrides and defaults, and validates the result.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithFile loads configuration from configFile, or from the search paths
// when configFile is empty.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.read(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithoutValidation loads configuration without validating it.
func (l *Loader) LoadWithoutValidation(configFile string) (*Config, error) {
	return l.read(configFile)
}

func (l *Loader) read(configFile string) (*Config, error) {
	l.setupEnvironmentVariables()
	l.setDefaults()

	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		for _, p := range GetConfigSearchPaths() {
			l.v.AddConfigPath(p)
		}
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// setupEnvironmentVariables maps keys like server.port to GLENS_SERVER_PORT.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so env overrides and Unmarshal see it.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("models_dir", d.ModelsDir)
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.temp_dir", d.Server.TempDir)
	l.v.SetDefault("server.rate_limit_enabled", d.Server.RateLimitEnabled)
	l.v.SetDefault("server.requests_per_minute", d.Server.RequestsPerMinute)
	l.v.SetDefault("server.requests_per_hour", d.Server.RequestsPerHour)
	l.v.SetDefault("server.max_requests_per_day", d.Server.MaxRequestsPerDay)
	l.v.SetDefault("server.max_data_per_day", d.Server.MaxDataPerDay)

	l.v.SetDefault("search.provider", d.Search.Provider)
	l.v.SetDefault("search.base_url", d.Search.BaseURL)
	l.v.SetDefault("search.proxy", d.Search.Proxy)
	l.v.SetDefault("search.max_pages", d.Search.MaxPages)
	l.v.SetDefault("search.timeout_sec", d.Search.TimeoutSec)
	l.v.SetDefault("search.user_agent", d.Search.UserAgent)

	l.v.SetDefault("crop.default_strategy", d.Crop.DefaultStrategy)
	l.v.SetDefault("crop.foreground_threshold", d.Crop.ForegroundThreshold)

	l.v.SetDefault("detector.model", d.Detector.Model)
	l.v.SetDefault("detector.model_path", d.Detector.ModelPath)
	l.v.SetDefault("detector.input_size", d.Detector.InputSize)
	l.v.SetDefault("detector.conf_threshold", d.Detector.ConfThreshold)
	l.v.SetDefault("detector.iou_threshold", d.Detector.IoUThreshold)
	l.v.SetDefault("detector.max_detections", d.Detector.MaxDetections)
	l.v.SetDefault("detector.num_threads", d.Detector.NumThreads)
	l.v.SetDefault("detector.gpu", d.Detector.GPU)
	l.v.SetDefault("detector.gpu_device", d.Detector.GPUDevice)
	l.v.SetDefault("detector.lazy", d.Detector.Lazy)

	l.v.SetDefault("fetch.timeout_sec", d.Fetch.TimeoutSec)
	l.v.SetDefault("fetch.max_bytes", d.Fetch.MaxBytes)
	l.v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)

	l.v.SetDefault("cache.enabled", d.Cache.Enabled)
	l.v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	l.v.SetDefault("cache.redis_password", d.Cache.RedisPassword)
	l.v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	l.v.SetDefault("cache.ttl_sec", d.Cache.TTLSec)

	l.v.SetDefault("history.enabled", d.History.Enabled)
	l.v.SetDefault("history.dsn", d.History.DSN)
}

// WriteConfigToFile writes the current settings to filename.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes a config file containing every default.
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()
	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the directories searched for a config file.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
		if _, ok := os.LookupEnv("XDG_CONFIG_HOME"); !ok {
			paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
		}
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	}
	return append(paths, "/etc/"+ConfigFileName)
}
