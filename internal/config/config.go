// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`

	// Attempt limits for code validate/redeem, enforced only when redis is configured.
	RedeemLimit   int           `yaml:"redeem_limit"`
	ValidateLimit int           `yaml:"validate_limit"`
	RateWindow    time.Duration `yaml:"rate_window"`
}

type AdminConfig struct {
	Port      int           `yaml:"port"`
	APIKey    string        `yaml:"api_key"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	Secure    bool          `yaml:"secure_cookie"`
}

type AuthConfig struct {
	UserJWTSecret string `yaml:"user_jwt_secret"`
}

type DatabaseConfig struct {
	URL         string `yaml:"url"`
	MaxConns    int32  `yaml:"max_conns"`
	AutoMigrate bool   `yaml:"auto_migrate"` // apply embedded migrations on startup
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables redis-backed locks and seen-set
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type BillingConfig struct {
	SecretKey       string        `yaml:"secret_key"`
	WebhookSecret   string        `yaml:"webhook_secret"`
	SuccessURL      string        `yaml:"success_url"`
	CancelURL       string        `yaml:"cancel_url"`
	PortalReturnURL string        `yaml:"portal_return_url"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

type PlanConfig struct {
	PriceID     string `yaml:"price_id"`
	ProductID   string `yaml:"product_id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	UnitAmount  int64  `yaml:"unit_amount"`
	Currency    string `yaml:"currency"`
}

type CodesConfig struct {
	RedemptionWindow time.Duration `yaml:"redemption_window"` // code deadline, not subscription length
	MaxBatch         int           `yaml:"max_batch"`
	Plans            []PlanConfig  `yaml:"plans"`
}

type ReconcilerConfig struct {
	SeenCacheSize int           `yaml:"seen_cache_size"`
	SeenTTL       time.Duration `yaml:"seen_ttl"`
}

type SchedulerConfig struct {
	RecoveryCron  string        `yaml:"recovery_cron"`
	ExpiryCron    string        `yaml:"expiry_cron"`
	LapseCron     string        `yaml:"lapse_cron"`
	RecoveryGrace time.Duration `yaml:"recovery_grace"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
}

type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"` // empty disables publishing
	Exchange string `yaml:"exchange"`
}

type WorkersConfig struct {
	Size int `yaml:"size"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Admin      AdminConfig      `yaml:"admin"`
	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Billing    BillingConfig    `yaml:"billing"`
	Codes      CodesConfig      `yaml:"codes"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Events     EventsConfig     `yaml:"events"`
	Workers    WorkersConfig    `yaml:"workers"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path. ${VAR} references are expanded from
// the environment before parsing, so secrets can stay out of the file.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse builds a Config from raw YAML and applies defaults.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Codes.MaxBatch > 1000 {
		return nil, errors.New("codes.max_batch must be at most 1000")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.HTTP.WebhookTimeout <= 0 {
		cfg.HTTP.WebhookTimeout = 30 * time.Second
	}
	if cfg.HTTP.RedeemLimit <= 0 {
		cfg.HTTP.RedeemLimit = 10
	}
	if cfg.HTTP.ValidateLimit <= 0 {
		cfg.HTTP.ValidateLimit = 30
	}
	if cfg.HTTP.RateWindow <= 0 {
		cfg.HTTP.RateWindow = time.Minute
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8081
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 30 * time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Billing.Timeout <= 0 {
		cfg.Billing.Timeout = 10 * time.Second
	}
	if cfg.Billing.MaxBodyBytes <= 0 {
		cfg.Billing.MaxBodyBytes = 1 << 20
	}
	if cfg.Codes.RedemptionWindow <= 0 {
		cfg.Codes.RedemptionWindow = 365 * 24 * time.Hour
	}
	if cfg.Codes.MaxBatch <= 0 {
		cfg.Codes.MaxBatch = 100
	}
	if cfg.Reconciler.SeenCacheSize <= 0 {
		cfg.Reconciler.SeenCacheSize = 10000
	}
	if cfg.Reconciler.SeenTTL <= 0 {
		cfg.Reconciler.SeenTTL = 72 * time.Hour
	}
	if cfg.Scheduler.RecoveryCron == "" {
		cfg.Scheduler.RecoveryCron = "@every 5m"
	}
	if cfg.Scheduler.ExpiryCron == "" {
		cfg.Scheduler.ExpiryCron = "@hourly"
	}
	if cfg.Scheduler.LapseCron == "" {
		cfg.Scheduler.LapseCron = "@every 15m"
	}
	if cfg.Scheduler.RecoveryGrace <= 0 {
		cfg.Scheduler.RecoveryGrace = 10 * time.Minute
	}
	if cfg.Scheduler.LockTTL <= 0 {
		cfg.Scheduler.LockTTL = 5 * time.Minute
	}
	if cfg.Events.Exchange == "" {
		cfg.Events.Exchange = "subscription_events"
	}
	if cfg.Workers.Size <= 0 {
		cfg.Workers.Size = 4
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
