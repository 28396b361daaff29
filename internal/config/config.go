package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"   validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth"       validate:"required"`
	Task       TaskConfig       `mapstructure:"task"       validate:"required"`
	Generation GenerationConfig `mapstructure:"generation" validate:"required"`
	Storage    StorageConfig    `mapstructure:"storage"    validate:"required"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"             validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level"        validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// Backend "memory" keeps every record in process and is meant for local runs and tests.
type DatabaseConfig struct {
	Backend     string `mapstructure:"backend"      validate:"required,oneof=postgres memory"`
	URL         string `mapstructure:"url"          validate:"required_if=Backend postgres"`
	MaxOpenConn int    `mapstructure:"max_open_conns" validate:"gte=0"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	BCryptCost           int    `mapstructure:"bcrypt_cost"            validate:"gte=4,lte=31"`
	// InitialCredits is granted to every account at registration.
	InitialCredits int64 `mapstructure:"initial_credits" validate:"gte=0"`
}

// TaskConfig controls the background runner that executes generation jobs.
type TaskConfig struct {
	WorkerCount            int           `mapstructure:"worker_count"              validate:"required,gt=0"`
	QueueSize              int           `mapstructure:"queue_size"                validate:"required,gt=0"`
	StuckTaskAge           time.Duration `mapstructure:"stuck_task_age"            validate:"gt=0"`
	StuckTaskCheckInterval time.Duration `mapstructure:"stuck_task_check_interval" validate:"gt=0"`
	// ProducerTimeout bounds a single generation run. Zero disables the bound.
	ProducerTimeout time.Duration `mapstructure:"producer_timeout" validate:"gte=0"`
}

// GenerationConfig holds pricing, input limits and read policy for generation tasks.
type GenerationConfig struct {
	TextToImageCost     int64         `mapstructure:"text_to_image_cost"    validate:"gt=0"`
	ImageToImageCost    int64         `mapstructure:"image_to_image_cost"   validate:"gt=0"`
	MaxPromptLength     int           `mapstructure:"max_prompt_length"     validate:"gt=0"`
	AllowedAspectRatios []string      `mapstructure:"allowed_aspect_ratios" validate:"required,min=1,dive,oneof=1:1 3:4 4:3 16:9 9:16"`
	MaxUploadBytes      int64         `mapstructure:"max_upload_bytes"      validate:"gt=0"`
	EstimatedSeconds    int           `mapstructure:"estimated_seconds"     validate:"gte=0"`
	PresetDir           string        `mapstructure:"preset_dir"            validate:"required"`
	StepDelay           time.Duration `mapstructure:"step_delay"            validate:"gte=0"`
	StatusReadPolicy    string        `mapstructure:"status_read_policy"    validate:"required,oneof=owner shared open"`
}

// StorageConfig selects where artifacts and uploads are written.
type StorageConfig struct {
	Backend       string        `mapstructure:"backend"        validate:"required,oneof=local minio"`
	LocalDir      string        `mapstructure:"local_dir"      validate:"required_if=Backend local"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	Endpoint      string        `mapstructure:"endpoint"       validate:"required_if=Backend minio"`
	AccessKey     string        `mapstructure:"access_key"     validate:"required_if=Backend minio"`
	SecretKey     string        `mapstructure:"secret_key"     validate:"required_if=Backend minio"`
	Bucket        string        `mapstructure:"bucket"         validate:"required_if=Backend minio"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry" validate:"gte=0"`
}

// RedisConfig enables the terminal task status cache when Addr is set.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"         validate:"gte=0"`
	StatusTTL time.Duration `mapstructure:"status_ttl" validate:"gte=0"`
}
