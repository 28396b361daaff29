package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "INKWELL"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile behaves like Load but reads the given config file instead of
// searching for config.yaml in the working directory.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.backend", "postgres")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.initial_credits", 100)

	v.SetDefault("task.worker_count", 4)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.stuck_task_age", "30m")
	v.SetDefault("task.stuck_task_check_interval", "5m")
	v.SetDefault("task.producer_timeout", "2m")

	v.SetDefault("generation.text_to_image_cost", 20)
	v.SetDefault("generation.image_to_image_cost", 20)
	v.SetDefault("generation.max_prompt_length", 500)
	v.SetDefault("generation.allowed_aspect_ratios", []string{"1:1", "3:4", "4:3", "16:9", "9:16"})
	v.SetDefault("generation.max_upload_bytes", 10<<20)
	v.SetDefault("generation.estimated_seconds", 15)
	v.SetDefault("generation.preset_dir", "./presets")
	v.SetDefault("generation.step_delay", "0s")
	v.SetDefault("generation.status_read_policy", "shared")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./data")
	v.SetDefault("storage.public_base_url", "/files")
	v.SetDefault("storage.presign_expiry", "1h")

	v.SetDefault("redis.status_ttl", "24h")
}

// bindEnvs registers every key that has no default so AutomaticEnv can see it
// during Unmarshal.
func bindEnvs(v *viper.Viper) {
	for _, key := range []string{
		"database.url",
		"auth.jwt_secret",
		"storage.endpoint",
		"storage.access_key",
		"storage.secret_key",
		"storage.bucket",
		"storage.use_ssl",
		"redis.addr",
		"redis.password",
		"redis.db",
	} {
		_ = v.BindEnv(key)
	}
}
