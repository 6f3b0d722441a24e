package config

import (
	"fmt"
	"os"
)

// Config holds all application configuration loaded from environment
// variables. All fields are validated at startup to ensure fail-fast
// behavior.
type Config struct {
	// BankAddr is the TCP address the text protocol listens on. Use
	// port 0 to let the OS pick one (the bound port can be written to
	// PortFile).
	BankAddr string

	// HTTPAddr is the address of the HTTP listener (health, metrics,
	// SSE streaming).
	HTTPAddr string

	// PortFile, when set, is the path the server writes the bound TCP
	// port to after listening, for scripts that start the server on
	// port 0.
	PortFile string

	LogLevel string

	// NATSURL enables transfer-event publishing when non-empty.
	NATSURL string
}

// Load reads configuration from environment variables and validates all
// fields. Returns an error if any configuration is invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.BankAddr = getEnvOrDefault("BANK_ADDR", ":4242")
	cfg.HTTPAddr = getEnvOrDefault("HTTP_ADDR", ":8080")
	cfg.PortFile = os.Getenv("PORT_FILE")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.NATSURL = os.Getenv("NATS_URL")

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid. Useful
// for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid. This is useful for
// testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.BankAddr == "" {
		errs = append(errs, fmt.Errorf("BankAddr is required"))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, fmt.Errorf("HTTPAddr is required"))
	}
	if c.BankAddr == c.HTTPAddr {
		errs = append(errs, fmt.Errorf("BankAddr and HTTPAddr must be different"))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LogLevel must be one of debug, info, warn, error; got %q", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if
// not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
