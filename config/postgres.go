package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// PostgresConfig defines the configuration for connecting to the journal database.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	// SSM parameter names used in prod instead of the plain values above
	HostParameter     string `mapstructure:"host_parameter"`
	UserParameter     string `mapstructure:"user_parameter"`
	PasswordParameter string `mapstructure:"password_parameter"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (cfg *PostgresConfig) DSN(env string) string {
	host, user, password := cfg.Host, cfg.User, cfg.Password
	if env == "prod" {
		host = parameterOr(cfg.HostParameter, host)
		user = parameterOr(cfg.UserParameter, user)
		password = parameterOr(cfg.PasswordParameter, password)
	}
	return cfg.dsn(host, user, password, cfg.DBName)
}

// AdminDSN points at the server's default "postgres" database, used to create DBName.
func (cfg *PostgresConfig) AdminDSN(env string) string {
	host, user, password := cfg.Host, cfg.User, cfg.Password
	if env == "prod" {
		host = parameterOr(cfg.HostParameter, host)
		user = parameterOr(cfg.UserParameter, user)
		password = parameterOr(cfg.PasswordParameter, password)
	}
	return cfg.dsn(host, user, password, "postgres")
}

func (cfg *PostgresConfig) dsn(host, user, password, dbName string) string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, dbName, cfg.SSLMode,
	)

	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}

	return dsn
}

func parameterOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	if v, err := GetParameterStoreValue(name, true); err == nil && v != "" {
		return v
	}
	return fallback
}

// ResolvePassphrase returns the wallet passphrase, reading it from SSM when a parameter is configured.
func (n *NetworkConfig) ResolvePassphrase() (string, error) {
	if n.PassphraseParameter == "" {
		return n.Passphrase, nil
	}
	v, err := GetParameterStoreValue(n.PassphraseParameter, true)
	if err != nil {
		return "", fmt.Errorf("passphrase parameter %s: %w", n.PassphraseParameter, err)
	}
	return v, nil
}

// GetParameterStoreValue reads one (optionally encrypted) value from AWS SSM Parameter Store.
func GetParameterStoreValue(parameterName string, decrypt bool) (string, error) {
	baseCtx := context.Background()
	ctxWithTimeout, cancel := context.WithTimeout(baseCtx, 5*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctxWithTimeout)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}

	client := ssm.NewFromConfig(cfg)

	input := &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	}

	result, err := client.GetParameter(ctxWithTimeout, input)
	if err != nil {
		return "", fmt.Errorf("get parameter: %w", err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", parameterName)
	}

	return *result.Parameter.Value, nil
}
