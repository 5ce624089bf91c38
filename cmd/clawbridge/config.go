package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cexll/clawbridge/pkg/config"
	"github.com/cexll/clawbridge/pkg/skills"
)

// configKeys lists the editable keys in display order.
var configKeys = []string{
	"backend", "model", "host", "port", "agent_command",
	"agent_timeout", "workdir", "api_key", "log_level", "otlp_endpoint",
}

func configCommand(argv []string, cfgPath string, streams ioStreams) error {
	set := flag.NewFlagSet("config", flag.ContinueOnError)
	set.SetOutput(streams.err)
	configFlag := set.String("config", cfgPath, "Path to config file.")
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: clawbridge config [flags] <init|set|get|list> ...")
		fmt.Fprintln(streams.err, "\nCommands:")
		fmt.Fprintln(streams.err, "  init             Create a config file with defaults")
		fmt.Fprintln(streams.err, "  set key value    Update a single key")
		fmt.Fprintln(streams.err, "  get key          Print the value of a key")
		fmt.Fprintln(streams.err, "  list             Show all stored values")
		fmt.Fprintln(streams.err, "\nKeys:")
		fmt.Fprintln(streams.err, "  "+strings.Join(configKeys, ", "))
		fmt.Fprintln(streams.err, "\nFlags:")
		set.PrintDefaults()
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	args := set.Args()
	if len(args) == 0 {
		set.Usage()
		return errors.New("config expects a subcommand")
	}
	switch args[0] {
	case "init":
		return configInit(*configFlag, streams.out)
	case "set":
		return configSet(*configFlag, args[1:], streams.out)
	case "get":
		return configGet(*configFlag, args[1:], streams.out)
	case "list":
		return configList(*configFlag, streams.out)
	default:
		return fmt.Errorf("unknown config subcommand %q", args[0])
	}
}

func configInit(path string, out io.Writer) error {
	resolved, err := resolveConfigPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(resolved); err == nil {
		return fmt.Errorf("config already exists at %s", resolved)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("check config: %w", err)
	}
	if err := saveStoredConfig(resolved, config.Default()); err != nil {
		return err
	}
	if out != nil {
		fmt.Fprintf(out, "created %s\n", resolved)
	}
	return nil
}

func configSet(path string, args []string, out io.Writer) error {
	if len(args) < 2 {
		return errors.New("config set requires <key> <value>")
	}
	key := strings.ToLower(strings.TrimSpace(args[0]))
	value := strings.TrimSpace(strings.Join(args[1:], " "))
	resolved, err := resolveConfigPath(path)
	if err != nil {
		return err
	}
	cfg, err := loadStoredConfig(resolved)
	if err != nil {
		return err
	}
	if err := applyConfigKey(cfg, key, value); err != nil {
		return err
	}
	if err := saveStoredConfig(resolved, cfg); err != nil {
		return err
	}
	if out != nil {
		fmt.Fprintf(out, "%s updated\n", key)
	}
	return nil
}

func configGet(path string, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("config get requires a key")
	}
	key := strings.ToLower(strings.TrimSpace(args[0]))
	resolved, err := resolveConfigPath(path)
	if err != nil {
		return err
	}
	cfg, err := loadStoredConfig(resolved)
	if err != nil {
		return err
	}
	value, err := configValue(cfg, key)
	if err != nil {
		return err
	}
	if out != nil {
		fmt.Fprintln(out, value)
	}
	return nil
}

func configList(path string, out io.Writer) error {
	resolved, err := resolveConfigPath(path)
	if err != nil {
		return err
	}
	cfg, err := loadStoredConfig(resolved)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	for _, key := range configKeys {
		value, err := configValue(cfg, key)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s=%s\n", key, value)
	}
	return nil
}

func applyConfigKey(cfg *config.Config, key, value string) error {
	switch key {
	case "backend":
		cfg.Backend = value
	case "model":
		cfg.Models.Default = value
	case "host":
		cfg.Listen.Host = value
	case "port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("port must be a number: %q", value)
		}
		cfg.Listen.Port = port
	case "agent_command":
		cfg.Agent.Command = value
	case "agent_timeout":
		secs, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("agent_timeout must be seconds: %q", value)
		}
		cfg.Agent.TimeoutSeconds = secs
	case "workdir":
		cfg.Agent.Workdir = value
	case "api_key":
		cfg.Agent.APIKey = value
	case "log_level":
		cfg.LogLevel = value
	case "otlp_endpoint":
		cfg.Telemetry.Endpoint = value
		cfg.Telemetry.Enabled = value != ""
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func configValue(cfg *config.Config, key string) (string, error) {
	switch key {
	case "backend":
		return cfg.Backend, nil
	case "model":
		return cfg.Models.Default, nil
	case "host":
		return cfg.Listen.Host, nil
	case "port":
		return strconv.Itoa(cfg.Listen.Port), nil
	case "agent_command":
		return cfg.Agent.Command, nil
	case "agent_timeout":
		return strconv.Itoa(cfg.Agent.TimeoutSeconds), nil
	case "workdir":
		return cfg.Agent.Workdir, nil
	case "api_key":
		return cfg.Agent.APIKey, nil
	case "log_level":
		return cfg.LogLevel, nil
	case "otlp_endpoint":
		return cfg.Telemetry.Endpoint, nil
	default:
		return "", fmt.Errorf("unknown config key %q", key)
	}
}

// resolveConfigPath picks the file edits apply to. Without an explicit
// path it targets the stored config serve would load, so a set is never
// shadowed by an earlier probe candidate.
func resolveConfigPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return config.StoredPath()
	}
	return skills.ExpandPath(path)
}

// loadStoredConfig reads the file without environment overrides so edits
// never bake ambient values into it. A missing file starts from defaults.
func loadStoredConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

func saveStoredConfig(path string, cfg *config.Config) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	data, err := encodeStoredConfig(path, cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// encodeStoredConfig keeps the file's serialization: yaml files stay
// yaml, everything else is written as json.
func encodeStoredConfig(path string, cfg *config.Config) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Marshal(cfg)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
