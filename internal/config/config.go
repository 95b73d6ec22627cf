// Package config loads the pop3tool file-based configuration layer: a
// TOML file supplying defaults that command-line flags and
// environment variables (handled in cmd/pop3tool) sit on top of.
package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config mirrors the CLI's flag/env surface, so a TOML file can supply
// any subset of it. Durations are strings, parsed with
// time.ParseDuration, the same convention as the teacher's server-side
// config file.
type Config struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	Timeout    string `toml:"timeout"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	AuthMethod string `toml:"auth_method"`

	AccessToken       string `toml:"access_token"`
	AzureTenantID     string `toml:"azure_tenant_id"`
	AzureClientID     string `toml:"azure_client_id"`
	AzureClientSecret string `toml:"azure_client_secret"`
	AzureScope        string `toml:"azure_scope"`

	MaxMessages int    `toml:"max_messages"`
	OutputDir   string `toml:"output_dir"`
	DeleteAfter bool   `toml:"delete_after"`

	POP3S              bool   `toml:"pop3s"`
	StartTLS           bool   `toml:"starttls"`
	SkipVerify         bool   `toml:"skip_verify"`
	TLSVersion         string `toml:"tls_version"`
	ClientCertPath     string `toml:"client_cert_path"`
	ClientCertPassword string `toml:"client_cert_password"`

	MaxRetries int    `toml:"max_retries"`
	RetryDelay string `toml:"retry_delay"`

	LogLevel  string  `toml:"log_level"`
	LogFormat string  `toml:"log_format"`
	RateLimit float64 `toml:"rate_limit"`
}

// Default returns the same baseline values as the CLI's own
// zero-config defaults, so a config file only needs to name the
// fields it wants to override.
func Default() Config {
	return Config{
		Port:       110,
		Timeout:    "30s",
		AuthMethod: "auto",
		AzureScope: "https://outlook.office365.com/.default",
		TLSVersion: "1.2",
		MaxRetries: 3,
		RetryDelay: "2s",
		LogLevel:   "INFO",
		LogFormat:  "csv",
	}
}

// Load reads a TOML file at path and merges it over Default(). A
// missing file is not an error: it returns the defaults unchanged, so
// -config can be left pointing at a file that simply hasn't been
// created yet.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields Load cannot verify on its own: that
// duration strings actually parse and that POP3S/STARTTLS are not
// both requested at once.
func (c Config) Validate() error {
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if _, err := time.ParseDuration(c.RetryDelay); err != nil {
		return fmt.Errorf("invalid retry_delay %q: %w", c.RetryDelay, err)
	}
	if c.POP3S && c.StartTLS {
		return fmt.Errorf("cannot set both pop3s and starttls")
	}
	return nil
}
