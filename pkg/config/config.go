// Package config holds the bridge runtime configuration: listen address,
// agent backend selection, model aliases, telemetry, and logging. Values
// come from a yaml/json file layered under environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Backend selects which runner implementation serves requests.
const (
	BackendCLI       = "cli"
	BackendAnthropic = "anthropic"
)

const (
	defaultHost           = "0.0.0.0"
	defaultPort           = 8080
	defaultTimeoutSeconds = 300
	defaultLogLevel       = "info"
	defaultServiceName    = "clawbridge"
)

// Config is the full runtime configuration.
type Config struct {
	Listen    Listen    `json:"listen" yaml:"listen"`
	Backend   string    `json:"backend" yaml:"backend"`
	Agent     Agent     `json:"agent" yaml:"agent"`
	Models    Models    `json:"models" yaml:"models"`
	Telemetry Telemetry `json:"telemetry" yaml:"telemetry"`
	LogLevel  string    `json:"log_level" yaml:"log_level"`

	// SourcePath records where the config was read from, when anywhere.
	SourcePath string `json:"-" yaml:"-"`
}

// Listen is the HTTP bind address.
type Listen struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Addr renders the host:port pair for net.Listen.
func (l Listen) Addr() string {
	return fmt.Sprintf("%s:%d", strings.TrimSpace(l.Host), l.Port)
}

// Agent configures the backend collaborator shared by both runner kinds.
type Agent struct {
	Command        string   `json:"command" yaml:"command"`
	Args           []string `json:"args" yaml:"args"`
	TimeoutSeconds int      `json:"timeout_seconds" yaml:"timeout_seconds"`
	Workdir        string   `json:"workdir" yaml:"workdir"`
	APIKey         string   `json:"api_key" yaml:"api_key"`
	MaxTokens      int      `json:"max_tokens" yaml:"max_tokens"`
}

// Timeout returns the invocation bound as a duration.
func (a Agent) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Models configures the alias table.
type Models struct {
	Default string            `json:"default" yaml:"default"`
	Aliases map[string]string `json:"aliases" yaml:"aliases"`
}

// Telemetry configures the OTLP trace export.
type Telemetry struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
	ServiceName string `json:"service_name" yaml:"service_name"`
	Environment string `json:"environment" yaml:"environment"`
	Insecure    bool   `json:"insecure" yaml:"insecure"`
}

// Default returns the built-in configuration: CLI backend, local agent
// binary, telemetry off.
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize trims strings and fills zero fields with the defaults so the
// rest of the program never re-checks them.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Listen.Host = strings.TrimSpace(c.Listen.Host)
	if c.Listen.Host == "" {
		c.Listen.Host = defaultHost
	}
	if c.Listen.Port == 0 {
		c.Listen.Port = defaultPort
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendCLI
	}
	c.Agent.Command = strings.TrimSpace(c.Agent.Command)
	if c.Agent.TimeoutSeconds == 0 {
		c.Agent.TimeoutSeconds = defaultTimeoutSeconds
	}
	c.Agent.Workdir = strings.TrimSpace(c.Agent.Workdir)
	c.Models.Default = strings.TrimSpace(c.Models.Default)
	if c.Models.Aliases == nil {
		c.Models.Aliases = map[string]string{}
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaultServiceName
	}
}

// Validate reports the first configuration problem. It assumes Normalize
// has run.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Listen.Port)
	}
	switch c.Backend {
	case BackendCLI:
	case BackendAnthropic:
		if strings.TrimSpace(c.Agent.APIKey) == "" {
			return fmt.Errorf("backend %q requires an api key (set ANTHROPIC_API_KEY)", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, BackendCLI, BackendAnthropic)
	}
	if c.Agent.TimeoutSeconds < 1 {
		return fmt.Errorf("agent timeout must be positive, got %d", c.Agent.TimeoutSeconds)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a config string onto a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
