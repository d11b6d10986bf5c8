//nolint:lll
package config

// Config is the complete glens configuration. It is assembled from defaults,
// an optional config file, GLENS_* environment variables and CLI flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	Search   SearchConfig   `mapstructure:"search" yaml:"search" json:"search"`
	Crop     CropConfig     `mapstructure:"crop" yaml:"crop" json:"crop"`
	Detector DetectorConfig `mapstructure:"detector" yaml:"detector" json:"detector"`
	Fetch    FetchConfig    `mapstructure:"fetch" yaml:"fetch" json:"fetch"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache" json:"cache"`
	History  HistoryConfig  `mapstructure:"history" yaml:"history" json:"history"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	TempDir         string `mapstructure:"temp_dir" yaml:"temp_dir" json:"temp_dir"`

	RateLimitEnabled  bool  `mapstructure:"rate_limit_enabled" yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// SearchConfig selects and tunes the reverse image search provider.
type SearchConfig struct {
	Provider   string `mapstructure:"provider" yaml:"provider" json:"provider"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	Proxy      string `mapstructure:"proxy" yaml:"proxy" json:"proxy"`
	MaxPages   int    `mapstructure:"max_pages" yaml:"max_pages" json:"max_pages"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	UserAgent  string `mapstructure:"user_agent" yaml:"user_agent" json:"user_agent"`
}

// CropConfig contains cropping defaults.
type CropConfig struct {
	DefaultStrategy     int `mapstructure:"default_strategy" yaml:"default_strategy" json:"default_strategy"`
	ForegroundThreshold int `mapstructure:"foreground_threshold" yaml:"foreground_threshold" json:"foreground_threshold"`
}

// DetectorConfig contains object detection settings.
type DetectorConfig struct {
	Model         string  `mapstructure:"model" yaml:"model" json:"model"`
	ModelPath     string  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	InputSize     int     `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	ConfThreshold float64 `mapstructure:"conf_threshold" yaml:"conf_threshold" json:"conf_threshold"`
	IoUThreshold  float64 `mapstructure:"iou_threshold" yaml:"iou_threshold" json:"iou_threshold"`
	MaxDetections int     `mapstructure:"max_detections" yaml:"max_detections" json:"max_detections"`
	NumThreads    int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	GPU           bool    `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
	GPUDevice     int     `mapstructure:"gpu_device" yaml:"gpu_device" json:"gpu_device"`
	Lazy          bool    `mapstructure:"lazy" yaml:"lazy" json:"lazy"`
}

// FetchConfig controls downloads of user-supplied image URLs.
type FetchConfig struct {
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	MaxBytes   int64  `mapstructure:"max_bytes" yaml:"max_bytes" json:"max_bytes"`
	UserAgent  string `mapstructure:"user_agent" yaml:"user_agent" json:"user_agent"`
}

// CacheConfig configures the optional Redis result cache.
type CacheConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password" json:"-"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db" json:"redis_db"`
	TTLSec        int    `mapstructure:"ttl_sec" yaml:"ttl_sec" json:"ttl_sec"`
}

// HistoryConfig configures the optional PostgreSQL search history.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn" json:"-"`
}
