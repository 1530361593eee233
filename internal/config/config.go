// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	HealthPort  int    `mapstructure:"health_port"`
}

// ProviderConfig describes one candidate RPC provider.
type ProviderConfig struct {
	Name      string        `mapstructure:"name"`
	RPCURL    string        `mapstructure:"rpc_url"`
	WSURL     string        `mapstructure:"ws_url"`
	APIKey    string        `mapstructure:"api_key"`
	Priority  int           `mapstructure:"priority"`
	RateLimit int           `mapstructure:"rate_limit"` // advertised requests/sec, informational
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LedgerConfig holds connection manager configuration.
type LedgerConfig struct {
	Providers            []ProviderConfig `mapstructure:"providers"`
	HealthCheckInterval  time.Duration    `mapstructure:"health_check_interval"`
	MaxReconnectAttempts int              `mapstructure:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration    `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration    `mapstructure:"reconnect_max_delay"`
	DefaultTimeout       time.Duration    `mapstructure:"default_timeout"`
}

// GatewayConfig holds the REST gateway settings.
type GatewayConfig struct {
	BindAddr       string        `mapstructure:"bind_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// fallbackProviders are public, unauthenticated endpoints used when the
// configured list is empty after placeholder filtering. Low priority keeps
// any real configured provider ahead of them.
var fallbackProviders = []ProviderConfig{
	{Name: "publicnode", RPCURL: "https://ethereum-rpc.publicnode.com", WSURL: "wss://ethereum-rpc.publicnode.com", Priority: 90, RateLimit: 10, Timeout: 15 * time.Second},
	{Name: "llamarpc", RPCURL: "https://eth.llamarpc.com", WSURL: "wss://eth.llamarpc.com", Priority: 91, RateLimit: 10, Timeout: 15 * time.Second},
	{Name: "drpc", RPCURL: "https://eth.drpc.org", WSURL: "wss://eth.drpc.org", Priority: 92, RateLimit: 10, Timeout: 15 * time.Second},
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("LEDGERLINK")
	v.AutomaticEnv()

	// Bind env vars to config keys
	bindEnvVars(v)

	// Set defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Ledger.Providers = filterProviders(cfg.Ledger.Providers, cfg.Ledger.DefaultTimeout)
	if len(cfg.Ledger.Providers) == 0 {
		cfg.Ledger.Providers = fallbackProviders
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "LEDGERLINK_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "LEDGERLINK_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "LEDGERLINK_LOG_LEVEL", "LOG_LEVEL")

	// Ledger
	v.BindEnv("ledger.health_check_interval", "LEDGERLINK_HEALTH_CHECK_INTERVAL")
	v.BindEnv("ledger.max_reconnect_attempts", "LEDGERLINK_MAX_RECONNECT_ATTEMPTS")
	v.BindEnv("ledger.reconnect_base_delay", "LEDGERLINK_RECONNECT_BASE_DELAY")
	v.BindEnv("ledger.reconnect_max_delay", "LEDGERLINK_RECONNECT_MAX_DELAY")

	// Gateway
	v.BindEnv("gateway.bind_addr", "LEDGERLINK_GATEWAY_ADDR")

	// Telemetry
	v.BindEnv("telemetry.enabled", "LEDGERLINK_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "LEDGERLINK_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "LEDGERLINK_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "ledgerlink")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.health_port", 8081)

	// Ledger defaults
	v.SetDefault("ledger.health_check_interval", "30s")
	v.SetDefault("ledger.max_reconnect_attempts", 5)
	v.SetDefault("ledger.reconnect_base_delay", "5s")
	v.SetDefault("ledger.reconnect_max_delay", "300s")
	v.SetDefault("ledger.default_timeout", "15s")

	// Gateway defaults
	v.SetDefault("gateway.bind_addr", ":8080")
	v.SetDefault("gateway.request_timeout", "30s")
	v.SetDefault("gateway.rate_limit_rps", 20)
	v.SetDefault("gateway.rate_limit_burst", 40)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "ledgerlink")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// filterProviders drops records that are unusable: missing endpoints or
// carrying obvious placeholder credentials copied from sample configs.
func filterProviders(providers []ProviderConfig, defaultTimeout time.Duration) []ProviderConfig {
	if defaultTimeout <= 0 {
		defaultTimeout = 15 * time.Second
	}
	kept := make([]ProviderConfig, 0, len(providers))
	for _, p := range providers {
		if p.Name == "" || p.RPCURL == "" || p.WSURL == "" {
			continue
		}
		if isPlaceholder(p.APIKey) || isPlaceholder(p.RPCURL) || isPlaceholder(p.WSURL) {
			continue
		}
		if p.Timeout <= 0 {
			p.Timeout = defaultTimeout
		}
		kept = append(kept, p)
	}
	return kept
}

func isPlaceholder(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range []string{"your_", "your-", "changeme", "demo-key", "${", "<key>"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Ledger.Providers) == 0 {
		return fmt.Errorf("ledger.providers is empty and no fallback applies")
	}
	seen := make(map[string]struct{}, len(c.Ledger.Providers))
	for _, p := range c.Ledger.Providers {
		if _, ok := seen[p.Name]; ok {
			return fmt.Errorf("duplicate provider name: %s", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	if c.Ledger.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("ledger.max_reconnect_attempts must be positive")
	}
	if c.Ledger.ReconnectBaseDelay <= 0 || c.Ledger.ReconnectMaxDelay < c.Ledger.ReconnectBaseDelay {
		return fmt.Errorf("invalid reconnect delay bounds")
	}
	if c.Gateway.BindAddr == "" {
		return fmt.Errorf("gateway.bind_addr is required")
	}
	return nil
}
