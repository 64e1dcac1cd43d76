package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/dualscan/internal/errors"
)

// Default scanner settings. The worker ceiling keeps the number of open
// sockets well below typical descriptor limits on large ranges.
const (
	DefaultWorkers       = 400
	DefaultTimeout       = time.Second
	DefaultBannerTimeout = time.Second
	DefaultPorts         = "1-1024"
)

// Config represents the complete dualscan configuration
type Config struct {
	// Scanning configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning" mapstructure:"scanning"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging" mapstructure:"logging"`

	// Metrics listener configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
}

// ScanningConfig holds scanning-related settings
type ScanningConfig struct {
	// Maximum number of probes in flight at once
	Workers int `yaml:"workers" json:"workers" mapstructure:"workers" validate:"min=1,max=10000"`

	// Per-socket connect/receive timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout" validate:"gt=0"`

	// Banner read timeout after a TCP connect; zero disables banner capture
	BannerTimeout time.Duration `yaml:"banner_timeout" json:"banner_timeout" mapstructure:"banner_timeout" validate:"gte=0"`

	// Default port range when none is given on the command line
	Ports string `yaml:"ports" json:"ports" mapstructure:"ports" validate:"required"`

	// Send protocol-aware payloads to well-known UDP ports instead of an empty datagram
	UDPPayloads bool `yaml:"udp_payloads" json:"udp_payloads" mapstructure:"udp_payloads"`

	// Run the TCP and UDP phases concurrently
	ParallelPhases bool `yaml:"parallel_phases" json:"parallel_phases" mapstructure:"parallel_phases"`

	// Probes per second across all workers (0 = unlimited)
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit" mapstructure:"rate_limit" validate:"gte=0"`

	// Services database path (defaults to /etc/services)
	ServicesFile string `yaml:"services_file" json:"services_file" mapstructure:"services_file"`

	// DNS server used to resolve the target instead of the system resolver
	DNSServer string `yaml:"dns_server" json:"dns_server" mapstructure:"dns_server" validate:"omitempty,hostname_port"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format" mapstructure:"format" validate:"oneof=text json"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output" mapstructure:"output" validate:"required"`
}

// MetricsConfig holds the optional Prometheus listener settings
type MetricsConfig struct {
	// Listen address; empty disables the listener
	ListenAddr string `yaml:"listen_addr" json:"listen_addr" mapstructure:"listen_addr" validate:"omitempty,hostname_port"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Scanning: ScanningConfig{
			Workers:        DefaultWorkers,
			Timeout:        DefaultTimeout,
			BannerTimeout:  DefaultBannerTimeout,
			Ports:          DefaultPorts,
			UDPPayloads:    false,
			ParallelPhases: false,
			RateLimit:      0,
			ServicesFile:   "",
			DNSServer:      "",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Start with defaults
	config := Default()

	if path == "" {
		return config, nil
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil // Return defaults if no config file
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// JSON is a subset of YAML, so one decoder covers both extensions.
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("failed to parse config %s", filepath.Base(path)), err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration. The first failing field is reported
// as a ConfigError carrying the offending value.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if asValidationErrors(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		cfgErr := errors.ErrConfigInvalid(fe.Namespace(), fe.Value())
		cfgErr.Message = fmt.Sprintf("failed %q check", fe.Tag())
		cfgErr.Cause = err
		return cfgErr
	}
	return errors.WrapConfigError(errors.CodeValidation, "configuration validation failed", err)
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

// MetricsEnabled returns true if the metrics listener should be started
func (c *Config) MetricsEnabled() bool {
	return c.Metrics.ListenAddr != ""
}
