package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cexll/clawbridge/pkg/skills"
)

const configDirName = ".clawbridge"

// fileCandidates are probed in order under the config directory.
var fileCandidates = []string{"config.yaml", "config.yml", "config.json"}

// DefaultDir returns the per-user config directory.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}

// DefaultPath is where the CLI writes configuration.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// StoredPath returns the file config edits apply to: the first probe
// candidate that exists, so edits land in the file Load actually reads,
// or DefaultPath when none exists yet.
func StoredPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	for _, name := range fileCandidates {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return DefaultPath()
}

// Load reads the configuration and layers environment overrides on top.
// An explicit path must exist; with an empty path the default locations
// are probed and a missing file yields the built-in defaults.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.Normalize()
	return cfg, nil
}

// LoadFile reads only the file, skipping environment overrides and
// default filling. The CLI uses it to edit stored values in place
// without baking the current environment into the file.
func LoadFile(path string) (*Config, error) {
	return loadFile(path)
}

func loadFile(path string) (*Config, error) {
	if strings.TrimSpace(path) != "" {
		expanded, err := skills.ExpandPath(path)
		if err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(expanded)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		cfg, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", expanded, err)
		}
		cfg.SourcePath = expanded
		return cfg, nil
	}

	dir, err := DefaultDir()
	if err != nil {
		return &Config{}, nil
	}
	for _, name := range fileCandidates {
		candidate := filepath.Join(dir, name)
		raw, err := os.ReadFile(candidate)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		cfg, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", candidate, err)
		}
		cfg.SourcePath = candidate
		return cfg, nil
	}
	return &Config{}, nil
}

func decode(raw []byte) (*Config, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, errors.New("config payload is empty")
	}
	cfg := &Config{}
	if err := decodeMixedYAMLJSON(raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeMixedYAMLJSON accepts either serialization so hand-written yaml
// and CLI-generated json both load.
func decodeMixedYAMLJSON(data []byte, out any) error {
	if err := yaml.Unmarshal(data, out); err == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err == nil {
		return nil
	}
	return errors.New("config decode failed: unsupported format")
}

// applyEnv layers CLAWBRIDGE_* variables, plus ANTHROPIC_API_KEY, over
// the file values.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("CLAWBRIDGE_HOST"); ok {
		c.Listen.Host = v
	}
	if v, ok := lookup("CLAWBRIDGE_PORT"); ok {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Listen.Port = port
		}
	}
	if v, ok := lookup("CLAWBRIDGE_BACKEND"); ok {
		c.Backend = v
	}
	if v, ok := lookup("CLAWBRIDGE_AGENT_COMMAND"); ok {
		c.Agent.Command = v
	}
	if v, ok := lookup("CLAWBRIDGE_AGENT_TIMEOUT"); ok {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Agent.TimeoutSeconds = secs
		}
	}
	if v, ok := lookup("CLAWBRIDGE_AGENT_WORKDIR"); ok {
		c.Agent.Workdir = v
	}
	if v, ok := lookup("CLAWBRIDGE_MODEL"); ok {
		c.Models.Default = v
	}
	if v, ok := lookup("CLAWBRIDGE_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("CLAWBRIDGE_OTLP_ENDPOINT"); ok {
		c.Telemetry.Endpoint = v
		if strings.TrimSpace(v) != "" {
			c.Telemetry.Enabled = true
		}
	}
	if v, ok := lookup("ANTHROPIC_API_KEY"); ok && strings.TrimSpace(v) != "" {
		c.Agent.APIKey = v
	}
}
