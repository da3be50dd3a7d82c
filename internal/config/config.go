package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/homecare-api/internal/model"
)

const envPrefix = "HOMECARE"

type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	JWT         JWTConfig      `mapstructure:"jwt"`
	Security    SecurityConfig `mapstructure:"security"`
	Outbox      OutboxConfig   `mapstructure:"outbox"`
	Consent     ConsentConfig  `mapstructure:"consent"`
	Booking     BookingConfig  `mapstructure:"booking"`
	Catalog     CatalogConfig  `mapstructure:"catalog"`
	Payment     PaymentConfig  `mapstructure:"payment"`
	Email       EmailConfig    `mapstructure:"email"`
	Log         LogConfig      `mapstructure:"log"`
	Worker      WorkerConfig   `mapstructure:"worker"`
	Dev         DevConfig      `mapstructure:"dev"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	URL           string        `mapstructure:"url"`
	PoolSize      int           `mapstructure:"pool_size"`
	MinIdleConns  int           `mapstructure:"min_idle_conns"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"`
}

type SecurityConfig struct {
	// EncryptionKey is a hex encoded 32 byte key for data at rest.
	EncryptionKey  string          `mapstructure:"encryption_key"`
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	MaxBodyBytes   int64           `mapstructure:"max_body_bytes"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

type OutboxConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type ConsentConfig struct {
	Required []model.ConsentPolicy `mapstructure:"required"`
}

type BookingConfig struct {
	TimeZone string `mapstructure:"time_zone"`
}

// Location resolves the booking time zone, UTC when unset.
func (c BookingConfig) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.TimeZone)
}

type CatalogConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type PaymentConfig struct {
	GatewayURL         string        `mapstructure:"gateway_url"`
	APIKey             string        `mapstructure:"api_key"`
	ReturnURL          string        `mapstructure:"return_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	BreakerMaxFailures int           `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WorkerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

type DevService struct {
	ID              string  `mapstructure:"id"`
	Name            string  `mapstructure:"name"`
	Category        string  `mapstructure:"category"`
	Price           float64 `mapstructure:"price"`
	DurationMinutes int     `mapstructure:"duration_minutes"`
}

type DevProvider struct {
	ID         string   `mapstructure:"id"`
	FullName   string   `mapstructure:"full_name"`
	Email      string   `mapstructure:"email"`
	ServiceIDs []string `mapstructure:"service_ids"`
}

// DevConfig seeds the in-memory store.
type DevConfig struct {
	Services  []DevService  `mapstructure:"services"`
	Providers []DevProvider `mapstructure:"providers"`
}

// secrets are deployment-provided values read with envconfig, e.g.
// HOMECARE_JWT_SECRET. They win over the file and viper's environment.
type secrets struct {
	DatabasePassword string `envconfig:"DB_PASSWORD"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
	EncryptionKey    string `envconfig:"ENCRYPTION_KEY"`
	RedisURL         string `envconfig:"REDIS_URL"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
	PaymentAPIKey    string `envconfig:"PAYMENT_API_KEY"`
	Port             int    `envconfig:"PORT"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "homecare")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.channel_prefix", "homecare")

	v.SetDefault("jwt.issuer", "homecare")
	v.SetDefault("jwt.ttl", 24*time.Hour)

	v.SetDefault("security.max_body_bytes", 1<<20)
	v.SetDefault("security.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.requests_per_second", 20)
	v.SetDefault("security.rate_limit.burst", 40)
	v.SetDefault("security.rate_limit.idle_ttl", 10*time.Minute)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.retry_attempts", 5)
	v.SetDefault("outbox.retry_delay", 10*time.Second)
	v.SetDefault("outbox.retention", 7*24*time.Hour)
	v.SetDefault("outbox.cleanup_interval", time.Hour)

	v.SetDefault("consent.required", []map[string]interface{}{
		{"type": string(model.ConsentTerms), "version": "1.0", "title": "Terms of Service"},
		{"type": string(model.ConsentPrivacy), "version": "1.0", "title": "Privacy Policy"},
		{"type": string(model.ConsentMedicalDataSharing), "version": "1.0", "title": "Medical Data Sharing"},
		{"type": string(model.ConsentCompliance), "version": "1.0", "title": "Regulatory Compliance"},
	})

	v.SetDefault("booking.time_zone", "UTC")
	v.SetDefault("catalog.cache_ttl", 5*time.Minute)

	v.SetDefault("payment.timeout", 10*time.Second)
	v.SetDefault("payment.breaker_max_failures", 5)
	v.SetDefault("payment.breaker_timeout", 30*time.Second)

	v.SetDefault("email.port", 587)
	v.SetDefault("email.from", "no-reply@homecare.local")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("worker.health_port", 8081)
}

// Load reads .env (if present), config.yaml from ./config or the working
// directory (if present), HOMECARE_* environment variables and finally the
// envconfig secrets.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if path := os.Getenv(envPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applySecrets(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applySecrets(cfg *Config) error {
	var s secrets
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return fmt.Errorf("failed to process environment: %w", err)
	}

	if s.DatabasePassword != "" {
		cfg.Database.Password = s.DatabasePassword
	}
	if s.JWTSecret != "" {
		cfg.JWT.Secret = s.JWTSecret
	}
	if s.EncryptionKey != "" {
		cfg.Security.EncryptionKey = s.EncryptionKey
	}
	if s.RedisURL != "" {
		cfg.Redis.URL = s.RedisURL
	}
	if s.SMTPPassword != "" {
		cfg.Email.Password = s.SMTPPassword
	}
	if s.PaymentAPIKey != "" {
		cfg.Payment.APIKey = s.PaymentAPIKey
	}
	if s.Port != 0 {
		cfg.Server.Port = s.Port
	}
	return nil
}

// Validate checks the settings every binary depends on.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("unsupported server.mode %q", c.Server.Mode)
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if len(c.Security.EncryptionKey) != 64 {
			return errors.New("security.encryption_key must be 32 bytes hex encoded")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	for _, p := range c.Consent.Required {
		if !p.Type.Valid() {
			return fmt.Errorf("unknown consent type %q", p.Type)
		}
		if p.Version == "" {
			return fmt.Errorf("consent %q has no version", p.Type)
		}
	}
	if _, err := c.Booking.Location(); err != nil {
		return fmt.Errorf("invalid booking.time_zone: %w", err)
	}
	return nil
}
