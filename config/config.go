package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/decet2025-sketch/cert-api/pkg/messaging/redis"
)

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type PollerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Schedule  string `mapstructure:"schedule"`
	BatchSize int    `mapstructure:"batch_size"`
}

type RetryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Schedule       string        `mapstructure:"schedule"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
	BatchSize      int           `mapstructure:"batch_size"`
	ResendCooldown time.Duration `mapstructure:"resend_cooldown"`
}

type RendererConfig struct {
	LocalPDF   bool          `mapstructure:"local_pdf"`
	PDFAPIURL  string        `mapstructure:"pdf_api_url"`
	PDFTimeout time.Duration `mapstructure:"pdf_timeout"`
}

type StorageConfig struct {
	Dir         string        `mapstructure:"dir"`
	DownloadTTL time.Duration `mapstructure:"download_ttl"`
}

type EmailConfig struct {
	FromName    string `mapstructure:"from_name"`
	SubjectTmpl string `mapstructure:"subject"`
}

type GraphyConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Redis     RedisConfig    `mapstructure:"redis"`
	Poller    PollerConfig   `mapstructure:"poller"`
	Retry     RetryConfig    `mapstructure:"retry"`
	Renderer  RendererConfig `mapstructure:"renderer"`
	Storage   StorageConfig  `mapstructure:"storage"`
	Email     EmailConfig    `mapstructure:"email"`
	Graphy    GraphyConfig   `mapstructure:"graphy"`
	CacheTTL  time.Duration  `mapstructure:"cache_ttl"`
	RateLimit struct {
		Enabled           bool    `mapstructure:"enabled"`
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		Burst             int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`
}

// Secrets are environment-only. None of them have defaults and the required
// ones fail startup loudly when absent.
type Secrets struct {
	WebhookSecret     string   `envconfig:"GRAPHY_WEBHOOK_SECRET" required:"true"`
	GraphyMerchantID  string   `envconfig:"GRAPHY_MID" required:"true"`
	GraphyAPIKey      string   `envconfig:"GRAPHY_API_KEY" required:"true"`
	PDFAPITokens      []string `envconfig:"PDF_API_TOKENS"`
	DownloadURLSecret string   `envconfig:"DOWNLOAD_URL_SECRET" required:"true"`
	SMTPHost          string   `envconfig:"SMTP_HOST" required:"true"`
	SMTPPort          int      `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser          string   `envconfig:"SMTP_USER" required:"true"`
	SMTPPassword      string   `envconfig:"SMTP_PASSWORD" required:"true"`
	SMTPFrom          string   `envconfig:"SMTP_FROM" required:"true"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Env overrides for container deployments.
	if host := os.Getenv("DB_HOST"); host != "" {
		config.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		config.Database.Port, _ = strconv.Atoi(port)
	}
	if user := os.Getenv("DB_USER"); user != "" {
		config.Database.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		config.Database.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		config.Database.Name = name
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		config.Redis.URL = url
	}

	applyDefaults(&config)

	return &config, nil
}

func LoadSecrets() (*Secrets, error) {
	var secrets Secrets
	if err := envconfig.Process("", &secrets); err != nil {
		return nil, fmt.Errorf("failed to load secrets from environment: %w", err)
	}
	return &secrets, nil
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 15 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 30 * time.Second
	}
	if config.Poller.Schedule == "" {
		config.Poller.Schedule = "@every 15m"
	}
	if config.Poller.BatchSize == 0 {
		config.Poller.BatchSize = 50
	}
	if config.Retry.Schedule == "" {
		config.Retry.Schedule = "@every 10m"
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry.MaxAttempts = 5
	}
	if config.Retry.StaleAfter == 0 {
		config.Retry.StaleAfter = 30 * time.Minute
	}
	if config.Retry.BatchSize == 0 {
		config.Retry.BatchSize = 25
	}
	if config.Retry.ResendCooldown == 0 {
		config.Retry.ResendCooldown = time.Minute
	}
	if config.Renderer.PDFTimeout == 0 {
		config.Renderer.PDFTimeout = 60 * time.Second
	}
	if config.Storage.Dir == "" {
		config.Storage.Dir = "./data/certificates"
	}
	if config.Storage.DownloadTTL == 0 {
		config.Storage.DownloadTTL = time.Hour
	}
	if config.Email.SubjectTmpl == "" {
		config.Email.SubjectTmpl = "Your certificate for {courseName}"
	}
	if config.Graphy.BaseURL == "" {
		config.Graphy.BaseURL = "https://api.ongraphy.com"
	}
	if config.Graphy.Timeout == 0 {
		config.Graphy.Timeout = 30 * time.Second
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 5 * time.Minute
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}
