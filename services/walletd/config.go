package walletd

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"walletledger/core/types"
	"walletledger/native/payments"
	telemetry "walletledger/observability/otel"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Amount wraps decimal.Decimal so that YAML values may be written as plain
// numbers or quoted strings.
type Amount struct {
	decimal.Decimal
}

// UnmarshalYAML parses a decimal scalar.
func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind != yaml.ScalarNode {
		return fmt.Errorf("amount must be a scalar")
	}
	if strings.TrimSpace(value.Value) == "" {
		a.Decimal = decimal.Zero
		return nil
	}
	parsed, err := decimal.NewFromString(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", value.Value, err)
	}
	a.Decimal = parsed
	return nil
}

// Config captures the runtime configuration for walletd.
type Config struct {
	ListenAddress string            `yaml:"listen"`
	Environment   string            `yaml:"environment"`
	Timezone      string            `yaml:"timezone"`
	PlansPath     string            `yaml:"plans"`
	Storage       StorageConfig     `yaml:"storage"`
	Ledger        LedgerConfig      `yaml:"ledger"`
	Wallet        WalletConfig      `yaml:"wallet"`
	Auth          AuthConfig        `yaml:"auth"`
	RateLimit     RateLimitConfig   `yaml:"rate_limit"`
	CORS          CORSConfig        `yaml:"cors"`
	Reports       ReportsConfig     `yaml:"reports"`
	Settings      types.AppSettings `yaml:"settings"`
	Log           LogConfig         `yaml:"log"`
	Telemetry     TelemetryConfig   `yaml:"telemetry"`
}

// StorageConfig selects the document store backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
	DSNEnv  string `yaml:"dsn_env"`
}

// LedgerConfig tunes optimistic concurrency retries.
type LedgerConfig struct {
	MaxRetries   int      `yaml:"max_retries"`
	RetryBackoff Duration `yaml:"retry_backoff"`
}

// WalletConfig holds monetary rules.
type WalletConfig struct {
	MinWithdrawal Amount `yaml:"min_withdrawal"`
	DailyBonus    Amount `yaml:"daily_bonus"`
}

// AuthConfig configures bearer token verification and the admin role.
type AuthConfig struct {
	HMACSecret     string   `yaml:"hmac_secret"`
	HMACSecretFile string   `yaml:"hmac_secret_file"`
	HMACSecretEnv  string   `yaml:"hmac_secret_env"`
	Issuer         string   `yaml:"issuer"`
	Audience       string   `yaml:"audience"`
	RoleClaim      string   `yaml:"role_claim"`
	AdminRole      string   `yaml:"admin_role"`
	ClockSkew      Duration `yaml:"clock_skew"`
}

// RateLimitConfig throttles user mutation routes.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ReportsConfig controls admin report export.
type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig mirrors logs to a rotating file when File is set.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelemetryConfig points the OTLP exporters at a collector. The standard
// OTEL_EXPORTER_OTLP_* variables override the endpoint and headers at startup.
type TelemetryConfig struct {
	Endpoint       string            `yaml:"endpoint"`
	Insecure       bool              `yaml:"insecure"`
	Headers        map[string]string `yaml:"headers"`
	Traces         bool              `yaml:"traces"`
	Metrics        bool              `yaml:"metrics"`
	SampleRatio    float64           `yaml:"sample_ratio"`
	MetricInterval Duration          `yaml:"metric_interval"`
}

// exporterConfig builds the exporter settings for this process. The storage
// backend and timezone are attached as resource attributes.
func (c TelemetryConfig) exporterConfig(env, backend string, loc *time.Location) telemetry.Config {
	return telemetry.Config{
		ServiceName:    "walletd",
		Environment:    env,
		Endpoint:       c.Endpoint,
		Insecure:       c.Insecure,
		Headers:        c.Headers,
		Traces:         c.Traces,
		Metrics:        c.Metrics,
		SampleRatio:    c.SampleRatio,
		MetricInterval: c.MetricInterval.Duration,
		Attributes: map[string]string{
			"ledger.storage_backend": backend,
			"ledger.timezone":        loc.String(),
		},
	}
}

const (
	BackendMemory   = "memory"
	BackendLevelDB  = "leveldb"
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Auth.normalise(); err != nil {
		return cfg, fmt.Errorf("auth: %w", err)
	}
	if err := cfg.Storage.normalise(); err != nil {
		return cfg, fmt.Errorf("storage: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DefaultSettings returns the settings served before an admin saves any.
func DefaultSettings() types.AppSettings {
	return types.AppSettings{
		CollectionAddress: "JKBMERC00722786@jkb",
		SiteOrigin:        "https://flipkart-invest.com",
		Support: types.SupportChannels{
			WhatsApp: "+919876543210",
			Telegram: "https://t.me/flipkart_invest_official",
			Email:    "support@flipkart-invest.com",
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Kolkata"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}
	if cfg.Ledger.MaxRetries <= 0 {
		cfg.Ledger.MaxRetries = 8
	}
	if cfg.Ledger.RetryBackoff.Duration <= 0 {
		cfg.Ledger.RetryBackoff.Duration = 10 * time.Millisecond
	}
	if cfg.Wallet.MinWithdrawal.IsZero() {
		cfg.Wallet.MinWithdrawal = Amount{payments.DefaultMinimumWithdrawal}
	}
	if cfg.Wallet.DailyBonus.IsZero() {
		cfg.Wallet.DailyBonus = Amount{decimal.NewFromInt(1)}
	}
	if cfg.Auth.RoleClaim == "" {
		cfg.Auth.RoleClaim = "role"
	}
	if cfg.Auth.AdminRole == "" {
		cfg.Auth.AdminRole = "admin"
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 30
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1
	}
	if cfg.Telemetry.MetricInterval.Duration <= 0 {
		cfg.Telemetry.MetricInterval.Duration = 15 * time.Second
	}
	if cfg.Reports.Dir == "" {
		cfg.Reports.Dir = "reports"
	}
	defaults := DefaultSettings()
	if cfg.Settings.CollectionAddress == "" {
		cfg.Settings.CollectionAddress = defaults.CollectionAddress
	}
	if cfg.Settings.SiteOrigin == "" {
		cfg.Settings.SiteOrigin = defaults.SiteOrigin
	}
	if cfg.Settings.Support == (types.SupportChannels{}) {
		cfg.Settings.Support = defaults.Support
	}
	cfg.Settings.Normalize()
	if len(cfg.CORS.AllowedOrigins) == 0 && cfg.Settings.SiteOrigin != "" {
		cfg.CORS.AllowedOrigins = []string{cfg.Settings.SiteOrigin}
	}
}

func validateConfig(cfg Config) error {
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	switch cfg.Storage.Backend {
	case BackendMemory:
	case BackendLevelDB, BackendBolt:
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path must be configured for %s", cfg.Storage.Backend)
		}
	case BackendSQLite, BackendPostgres:
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn must be configured for %s", cfg.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if !cfg.Wallet.MinWithdrawal.IsPositive() {
		return fmt.Errorf("wallet.min_withdrawal must be positive")
	}
	if !cfg.Wallet.DailyBonus.IsPositive() {
		return fmt.Errorf("wallet.daily_bonus must be positive")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0,1]")
	}
	if err := types.Validator().Struct(&cfg.Settings); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	return nil
}

func (a *AuthConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("auth configuration missing")
	}
	a.HMACSecret = strings.TrimSpace(a.HMACSecret)
	a.HMACSecretEnv = strings.TrimSpace(a.HMACSecretEnv)
	a.HMACSecretFile = strings.TrimSpace(a.HMACSecretFile)
	if a.HMACSecret != "" {
		return nil
	}
	switch {
	case a.HMACSecretEnv != "":
		value := strings.TrimSpace(os.Getenv(a.HMACSecretEnv))
		if value == "" {
			return fmt.Errorf("hmac_secret_env %s is empty", a.HMACSecretEnv)
		}
		a.HMACSecret = value
	case a.HMACSecretFile != "":
		contents, err := os.ReadFile(a.HMACSecretFile)
		if err != nil {
			return fmt.Errorf("read hmac_secret_file: %w", err)
		}
		a.HMACSecret = strings.TrimSpace(string(contents))
	default:
		return fmt.Errorf("hmac_secret is required")
	}
	if a.HMACSecret == "" {
		return fmt.Errorf("hmac secret is empty")
	}
	return nil
}

func (s *StorageConfig) normalise() error {
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	s.Path = strings.TrimSpace(s.Path)
	s.DSN = strings.TrimSpace(s.DSN)
	if s.DSN == "" && strings.TrimSpace(s.DSNEnv) != "" {
		s.DSN = strings.TrimSpace(os.Getenv(strings.TrimSpace(s.DSNEnv)))
		if s.DSN == "" {
			return fmt.Errorf("dsn_env %s is empty", s.DSNEnv)
		}
	}
	return nil
}
