package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is loaded from an optional YAML file with environment variables on top.
type Config struct {
	Env            string        `yaml:"env" env:"ENV" env-default:"local"`
	ServerAddress  string        `yaml:"server_address" env:"SERVER_ADDRESS" env-default:":8080"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"10s"`

	Storage     StorageConfig     `yaml:"storage"`
	Screenshots ScreenshotsConfig `yaml:"screenshots"`
	Auth        AuthConfig        `yaml:"auth"`
	Push        PushConfig        `yaml:"push"`
	Log         LogConfig         `yaml:"log"`
}

type StorageConfig struct {
	// Driver is sqlite, mongo or memory.
	Driver     string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"./data/peek.db"`
	MongoURI   string `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDB    string `yaml:"mongo_db" env:"MONGO_DB" env-default:"peek"`
}

type ScreenshotsConfig struct {
	// Driver is disk or minio.
	Driver          string `yaml:"driver" env:"SCREENSHOT_DRIVER" env-default:"disk"`
	UploadDir       string `yaml:"upload_dir" env:"UPLOAD_DIR" env-default:"./uploads"`
	MaxUploadSizeMB int64  `yaml:"max_upload_size_mb" env:"MAX_UPLOAD_SIZE_MB" env-default:"10"`

	MinIOEndpoint  string `yaml:"minio_endpoint" env:"MINIO_ENDPOINT"`
	MinIOAccessKey string `yaml:"minio_access_key" env:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `yaml:"minio_secret_key" env:"MINIO_SECRET_KEY"`
	MinIOBucket    string `yaml:"minio_bucket" env:"MINIO_BUCKET" env-default:"peek"`
}

type AuthConfig struct {
	Enabled   bool          `yaml:"enabled" env:"AUTH_ENABLED" env-default:"false"`
	AdminKey  string        `yaml:"admin_key" env:"ADMIN_KEY"`
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"AUTH_TOKEN_TTL" env-default:"1h"`
	// RateLimit is the number of /auth requests allowed per client IP per minute.
	RateLimit int `yaml:"rate_limit" env:"AUTH_RATE_LIMIT" env-default:"10"`
}

type PushConfig struct {
	VAPIDPublicKey  string        `yaml:"vapid_public_key" env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `yaml:"vapid_private_key" env:"VAPID_PRIVATE_KEY"`
	Subject         string        `yaml:"subject" env:"VAPID_SUBJECT" env-default:"mailto:admin@sensus-app.com"`
	TTL             int           `yaml:"ttl" env:"PUSH_TTL" env-default:"30"`
	Timeout         time.Duration `yaml:"timeout" env:"PUSH_TIMEOUT" env-default:"10s"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// PushEnabled reports whether both VAPID keys are configured.
func (p PushConfig) PushEnabled() bool {
	return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != ""
}

// MustLoad is Load that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from, in priority order: the explicit path, CONFIG_PATH,
// or the environment alone. Environment variables always override file values.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	case "mongo":
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("storage.mongo_uri is required for the mongo driver")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver must be sqlite, mongo or memory, got %q", c.Storage.Driver)
	}

	switch c.Screenshots.Driver {
	case "disk":
		if c.Screenshots.UploadDir == "" {
			return fmt.Errorf("screenshots.upload_dir is required for the disk driver")
		}
	case "minio":
		if c.Screenshots.MinIOEndpoint == "" || c.Screenshots.MinIOBucket == "" {
			return fmt.Errorf("screenshots.minio_endpoint and minio_bucket are required for the minio driver")
		}
	default:
		return fmt.Errorf("screenshots.driver must be disk or minio, got %q", c.Screenshots.Driver)
	}

	if c.Screenshots.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("screenshots.max_upload_size_mb must be > 0")
	}

	if c.Auth.Enabled {
		if c.Auth.AdminKey == "" {
			return fmt.Errorf("auth.admin_key is required when auth is enabled")
		}
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 bytes when auth is enabled")
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth.token_ttl must be > 0")
		}
	}
	if c.Auth.RateLimit <= 0 {
		return fmt.Errorf("auth.rate_limit must be > 0")
	}

	if c.Push.Timeout <= 0 {
		return fmt.Errorf("push.timeout must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0")
	}
	return nil
}
