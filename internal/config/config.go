// Package config provides configuration parsing and validation for muti-ping.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/postalsys/muti-ping/internal/logging"
	"github.com/postalsys/muti-ping/internal/transport"
)

// Config represents the complete configuration.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Ping   PingConfig   `yaml:"ping"`
	Health HealthConfig `yaml:"health"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// PingConfig contains defaults applied to every echo request.
type PingConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	TTL          int           `yaml:"ttl"`
	DontFragment bool          `yaml:"dont_fragment"`
	PayloadSize  ByteSize      `yaml:"payload_size"`
	SocketMode   string        `yaml:"socket_mode"` // datagram, raw
}

// Options returns the per-request options described by the section.
func (p PingConfig) Options() *transport.Options {
	return &transport.Options{
		TTL:          uint8(p.TTL),
		DontFragment: p.DontFragment,
	}
}

// Mode returns the configured socket mode. Validate has already rejected
// unknown values.
func (p PingConfig) Mode() transport.Mode {
	mode, _ := transport.ParseMode(p.SocketMode)
	return mode
}

// HealthConfig defines the probe server settings.
type HealthConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxTimeout caps the timeout a client may request.
	MaxTimeout time.Duration `yaml:"max_timeout"`

	// WSRate and WSBurst pace echo requests on a WebSocket session.
	WSRate  float64 `yaml:"ws_rate"`
	WSBurst int     `yaml:"ws_burst"`
}

// ByteSize is a size in bytes that accepts human-readable values such as
// "56", "1KiB" or "1.4 kB".
type ByteSize uint64

// UnmarshalText parses a human-readable size.
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(string(text))
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", text, err)
	}
	*b = ByteSize(n)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return b.UnmarshalText([]byte(s))
}

// MarshalYAML implements yaml.Marshaler. Sizes are written as plain byte
// counts so they survive a round trip exactly.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return uint64(b), nil
}

// String returns the size in human-readable form.
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Ping: PingConfig{
			Timeout:     time.Second,
			TTL:         128,
			PayloadSize: 32,
			SocketMode:  "datagram",
		},
		Health: HealthConfig{
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			MaxTimeout:   10 * time.Second,
			WSRate:       10,
			WSBurst:      5,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		// Handle default values: ${VAR:-default}
		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // Keep original if not found
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if !logging.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !logging.ValidFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}

	if c.Ping.Timeout <= 0 {
		errs = append(errs, "ping.timeout must be positive")
	}
	if c.Ping.TTL < 1 || c.Ping.TTL > 255 {
		errs = append(errs, "ping.ttl must be between 1 and 255")
	}
	if c.Ping.PayloadSize > transport.MaxNativePayload {
		errs = append(errs, fmt.Sprintf("ping.payload_size must be at most %d bytes", transport.MaxNativePayload))
	}
	if _, err := transport.ParseMode(c.Ping.SocketMode); err != nil {
		errs = append(errs, fmt.Sprintf("invalid ping.socket_mode: %s (must be datagram or raw)", c.Ping.SocketMode))
	}

	if c.Health.Address == "" {
		errs = append(errs, "health.address is required")
	} else if _, _, err := net.SplitHostPort(c.Health.Address); err != nil {
		errs = append(errs, fmt.Sprintf("invalid health.address: %v", err))
	}
	if c.Health.MaxTimeout <= 0 {
		errs = append(errs, "health.max_timeout must be positive")
	}
	if c.Health.WSRate <= 0 {
		errs = append(errs, "health.ws_rate must be positive")
	}
	if c.Health.WSBurst < 1 {
		errs = append(errs, "health.ws_burst must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns the configuration as YAML.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
