package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration. Every key can be set in the YAML file
// or through BITALERT_<SECTION>_<KEY>, e.g. BITALERT_FEED_EXCHANGE.
type Config struct {
	Env     string `mapstructure:"env"` // "local", "prod"
	BaseURL string `mapstructure:"base_url"`

	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Activation ActivationConfig `mapstructure:"activation"`
}

type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// StaticDir holds the built web client; empty serves the API only.
	StaticDir string `mapstructure:"static_dir"`
}

func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type FeedConfig struct {
	Exchange string `mapstructure:"exchange"` // bitstamp | bybit
	Pair     string `mapstructure:"pair"`
	Testnet  bool   `mapstructure:"testnet"`
}

type StorageConfig struct {
	Driver     string `mapstructure:"driver"` // memory | postgres | badger
	BadgerPath string `mapstructure:"badger_path"`
	// EncryptionKey is 32 bytes hex; empty stores secrets as plain text.
	EncryptionKey string `mapstructure:"encryption_key"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns int `mapstructure:"max_open_conns"`
	MaxIdleConns int `mapstructure:"max_idle_conns"`
}

// RedisConfig with an empty Addr keeps activation codes in memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SMTPConfig with an empty Username logs mail instead of sending it.
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	StartTLS bool          `mapstructure:"starttls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	AdminID  int64  `mapstructure:"admin_id"`
}

type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DispatchConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Currency    string        `mapstructure:"currency"`
}

type ActivationConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

var defaults = map[string]any{
	"env":      "local",
	"base_url": "http://localhost:8080",

	"http.host":       "",
	"http.port":       8080,
	"http.static_dir": "dist",

	"log.level":        "info",
	"log.file":         "",
	"log.max_size_mb":  100,
	"log.max_backups":  5,
	"log.max_age_days": 30,

	"feed.exchange": "bitstamp",
	"feed.pair":     "BTC/EUR",
	"feed.testnet":  false,

	"storage.driver":         "memory",
	"storage.badger_path":    "data/badger",
	"storage.encryption_key": "",

	"database.host":     "localhost",
	"database.port":     5432,
	"database.user":     "bitalert",
	"database.password": "",
	"database.dbname":   "bitalert",
	"database.sslmode":  "disable",

	"database.max_open_conns": 25,
	"database.max_idle_conns": 5,

	"redis.addr":     "",
	"redis.password": "",
	"redis.db":       0,
	"redis.prefix":   "bitalert:activation:",

	"smtp.host":     "smtp.gmail.com",
	"smtp.port":     587,
	"smtp.username": "",
	"smtp.password": "",
	"smtp.from":     "",
	"smtp.starttls": true,
	"smtp.timeout":  "30s",

	"telegram.bot_token": "",
	"telegram.admin_id":  0,

	"webhook.url":     "",
	"webhook.timeout": "10s",

	"dispatch.concurrency": 5,
	"dispatch.timeout":     "30s",
	"dispatch.currency":    "",

	"activation.ttl": "24h",
}

// legacyEnv maps keys to the variable names the first deployment used.
var legacyEnv = map[string]string{
	"base_url":      "BASE_URL",
	"smtp.username": "GMAIL_USER",
	"smtp.password": "GMAIL_PASS",
	"http.host":     "HOST",
	"http.port":     "PORT",
}

const envPrefix = "BITALERT"

// LoadConfig reads defaults, then the optional YAML file at path, then the
// environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Feed.Exchange {
	case "bitstamp", "bybit":
	default:
		errs = append(errs, fmt.Errorf("feed.exchange: unknown exchange %q", c.Feed.Exchange))
	}
	if c.Feed.Pair == "" {
		errs = append(errs, errors.New("feed.pair is required"))
	}

	switch c.Storage.Driver {
	case "memory":
	case "badger":
		if c.Storage.BadgerPath == "" {
			errs = append(errs, errors.New("storage.badger_path is required for badger"))
		}
	case "postgres":
		if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
			errs = append(errs, errors.New("database host, dbname and user are required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}

	if c.Dispatch.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.concurrency must be positive, got %d", c.Dispatch.Concurrency))
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port out of range: %d", c.HTTP.Port))
	}
	if c.Telegram.BotToken != "" && c.Telegram.AdminID == 0 {
		errs = append(errs, errors.New("telegram.admin_id is required when a bot token is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
