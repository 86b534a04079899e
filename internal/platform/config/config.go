// Package config はviperを用いてアプリケーション設定を読み込みます。
//
// 優先順位は 環境変数 > config.yaml > デフォルト値 です。
// 環境変数は APPLE_ 接頭辞（例: APPLE_SERVER_PORT）に加え、
// 既存デプロイとの互換のため DB_USER などの従来名も受け付けます。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定です。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Session   SessionConfig   `mapstructure:"session"`
	Model     ModelConfig     `mapstructure:"model"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	History   HistoryConfig   `mapstructure:"history"`
	Display   DisplayConfig   `mapstructure:"display"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Debug           bool          `mapstructure:"debug"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	MaxImagePixels  int64         `mapstructure:"max_image_pixels"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	UploadDir string `mapstructure:"upload_dir"`
}

// DatabaseConfig はDB接続設定です。Driver は sqlite / mysql / postgres のいずれかです。
type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver"`
	Path           string        `mapstructure:"path"` // sqlite
	URL            string        `mapstructure:"url"`  // postgres DSN
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	Name           string        `mapstructure:"name"`
	InstanceName   string        `mapstructure:"instance_connection_name"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RunMigrations  bool          `mapstructure:"run_migrations"`
}

// RedisConfig はRedis接続設定です。Host が空の場合はRedisを使用しません。
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled はRedisが設定されているかどうかを返します。
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type SessionConfig struct {
	Secret     string        `mapstructure:"secret"`
	CookieName string        `mapstructure:"cookie_name"`
	MaxAge     time.Duration `mapstructure:"max_age"`
	Secure     bool          `mapstructure:"secure"`
}

// ModelConfig は分類器の設定です。Backend は tflite / onnx / remote のいずれかです。
type ModelConfig struct {
	Backend       string        `mapstructure:"backend"`
	Path          string        `mapstructure:"path"`
	LabelsPath    string        `mapstructure:"labels_path"`
	MetadataPath  string        `mapstructure:"metadata_path"`
	LibraryPath   string        `mapstructure:"library_path"`
	Threads       int           `mapstructure:"threads"`
	InputSize     int           `mapstructure:"input_size"`
	Interpolation string        `mapstructure:"interpolation"`
	RemoteURL     string        `mapstructure:"remote_url"`
	RemoteName    string        `mapstructure:"remote_name"`
	RemoteTimeout time.Duration `mapstructure:"remote_timeout"`
}

type KnowledgeConfig struct {
	Path string `mapstructure:"path"`
}

type HistoryConfig struct {
	PageSize int `mapstructure:"page_size"`
}

type DisplayConfig struct {
	ConfidenceHigh   float64 `mapstructure:"confidence_high"`
	ConfidenceMedium float64 `mapstructure:"confidence_medium"`
}

type ReconcileConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Rate    float64 `mapstructure:"rate"` // uploads per second per client
	Burst   int     `mapstructure:"burst"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// legacyEnv は従来の環境変数名と設定キーの対応です。
var legacyEnv = map[string]string{
	"database.user":                     "DB_USER",
	"database.password":                 "DB_PASSWORD",
	"database.host":                     "DB_HOST",
	"database.port":                     "DB_PORT",
	"database.name":                     "DB_NAME",
	"database.instance_connection_name": "INSTANCE_CONNECTION_NAME",
	"database.url":                      "DATABASE_URL",
	"database.run_migrations":           "RUN_MIGRATIONS",
	"redis.host":                        "REDIS_HOST",
	"redis.port":                        "REDIS_PORT",
	"redis.password":                    "REDIS_PASSWORD",
	"session.secret":                    "SESSION_SECRET",
	"server.port":                       "PORT",
}

// SetDefaults はすべての設定キーのデフォルト値を登録します。
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.debug", false)
	v.SetDefault("server.max_upload_bytes", 16<<20)
	v.SetDefault("server.max_image_pixels", 89_478_485)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.upload_dir", "static/uploads")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "apple_detection.db")
	v.SetDefault("database.url", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "3306")
	v.SetDefault("database.name", "apple_detection")
	v.SetDefault("database.instance_connection_name", "")
	v.SetDefault("database.connect_timeout", 60*time.Second)
	v.SetDefault("database.run_migrations", true)

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.secret", "")
	v.SetDefault("session.cookie_name", "apple_session")
	v.SetDefault("session.max_age", 30*24*time.Hour)
	v.SetDefault("session.secure", false)

	v.SetDefault("model.backend", "tflite")
	v.SetDefault("model.path", "models/apple_disease_model.tflite")
	v.SetDefault("model.labels_path", "models/class_labels.json")
	v.SetDefault("model.metadata_path", "")
	v.SetDefault("model.library_path", "")
	v.SetDefault("model.threads", 2)
	v.SetDefault("model.input_size", 224)
	v.SetDefault("model.interpolation", "nearest")
	v.SetDefault("model.remote_url", "")
	v.SetDefault("model.remote_name", "apple_disease")
	v.SetDefault("model.remote_timeout", 10*time.Second)

	v.SetDefault("knowledge.path", "")

	v.SetDefault("history.page_size", 12)

	v.SetDefault("display.confidence_high", 90.0)
	v.SetDefault("display.confidence_medium", 70.0)

	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.interval", time.Hour)
	v.SetDefault("reconcile.grace_period", time.Hour)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.rate", 1.0)
	v.SetDefault("ratelimit.burst", 5)

	v.SetDefault("cache.ttl", 10*time.Minute)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.enabled", true)
}

// Load は設定を読み込みます。configFile が空の場合は作業ディレクトリと
// ./config から config.yaml を探し、見つからなくてもエラーにしません。
func Load(configFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("APPLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		// APPLE_ 接頭辞の変数を優先し、従来名はその次に参照します。
		prefixed := "APPLE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値の整合性を検証します。
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	switch c.Model.Backend {
	case "tflite", "onnx", "remote":
	default:
		return fmt.Errorf("unsupported model.backend %q", c.Model.Backend)
	}
	if c.Model.Backend == "remote" && c.Model.RemoteURL == "" {
		return errors.New("model.remote_url is required for the remote backend")
	}
	if c.History.PageSize <= 0 {
		return fmt.Errorf("history.page_size must be positive, got %d", c.History.PageSize)
	}
	if c.Display.ConfidenceMedium > c.Display.ConfidenceHigh {
		return fmt.Errorf("display.confidence_medium (%v) exceeds display.confidence_high (%v)",
			c.Display.ConfidenceMedium, c.Display.ConfidenceHigh)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("server.max_upload_bytes must be positive")
	}
	if c.Server.MaxImagePixels <= 0 {
		return errors.New("server.max_image_pixels must be positive")
	}
	if c.Storage.UploadDir == "" {
		return errors.New("storage.upload_dir is required")
	}
	return nil
}

// Addr は host:port 形式のRedisアドレスを返します。
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}
