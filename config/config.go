package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Log      LogConfig                `mapstructure:"log"`
	Hermes   HermesConfig             `mapstructure:"hermes"`
	Ledger   LedgerConfig             `mapstructure:"ledger"`
	Deribit  DeribitConfig            `mapstructure:"deribit"`
	Postgres PostgresConfig           `mapstructure:"postgres"`
	Networks map[string]NetworkConfig `mapstructure:"networks"`
}

type HermesConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	StreamURL string        `mapstructure:"stream_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LedgerConfig bounds every remote call against the chain.
type LedgerConfig struct {
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
	ReceiptTimeout     time.Duration `mapstructure:"receipt_timeout"`
	ApprovalRetryDelay time.Duration `mapstructure:"approval_retry_delay"`
	ApprovalAttempts   int           `mapstructure:"approval_attempts"`
}

type DeribitConfig struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	UseTestAPI   bool          `mapstructure:"use_test_api"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether hedging credentials are configured.
func (d DeribitConfig) Enabled() bool {
	return d.ClientID != "" && d.ClientSecret != ""
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads config.yaml (or the explicit path) and overrides with VAULTCTL_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.vaultctl")
		}
	}

	// Support environment variables with dot notation (e.g., VAULTCTL_HERMES_BASE_URL)
	v.SetEnvPrefix("VAULTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("hermes.base_url", "https://hermes.pyth.network")
	v.SetDefault("hermes.stream_url", "wss://hermes.pyth.network/ws")
	v.SetDefault("hermes.timeout", 10*time.Second)

	v.SetDefault("ledger.call_timeout", 30*time.Second)
	v.SetDefault("ledger.receipt_timeout", 3*time.Minute)
	v.SetDefault("ledger.approval_retry_delay", 2*time.Second)
	v.SetDefault("ledger.approval_attempts", 3)

	v.SetDefault("deribit.timeout", 10*time.Second)

	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
}

// Network returns the named network. Viper lower-cases map keys, so the
// lookup is case-insensitive.
func (c *Config) Network(name string) (*NetworkConfig, error) {
	for key, n := range c.Networks {
		if strings.EqualFold(key, name) {
			n := n
			if n.Name == "" {
				n.Name = name
			}
			return &n, nil
		}
	}
	return nil, fmt.Errorf("invalid network %q", name)
}

// NetworkNames lists configured network keys.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for key := range c.Networks {
		names = append(names, key)
	}
	return names
}
