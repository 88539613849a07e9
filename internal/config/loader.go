package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfigCreated is returned when the named file did not exist and a default
// one was written in its place.
var ErrConfigCreated = errors.New("the configuration file does not exist and has been created, please try again after editing it")

type LoadOptions struct {
	Path string
}

// Load builds the configuration from the defaults, the file named by
// opts.Path (if any) and STOMP_* environment variables, then validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.Path != "" {
		if err := loadFromFile(cfg, opts.Path); err != nil {
			return nil, err
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := writeDefault(path, ext); err != nil {
			return err
		}
		return ErrConfigCreated
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	return nil
}

func writeDefault(path, ext string) error {
	var (
		data []byte
		err  error
	)
	if ext == ".json" {
		data, err = json.MarshalIndent(Default(), "", "\t")
	} else {
		data, err = yaml.Marshal(Default())
	}
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}

func loadFromEnv(cfg *Config) {
	if host := os.Getenv("STOMP_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("STOMP_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if mode := os.Getenv("STOMP_SERVER_MODE"); mode != "" {
		cfg.Server.Mode = strings.ToLower(mode)
	}
	if debug := os.Getenv("STOMP_LOG_DEBUG"); debug != "" {
		if d, err := strconv.ParseBool(debug); err == nil {
			cfg.Log.Debug = d
		}
	}
	if addr := os.Getenv("STOMP_HTTP_ADDR"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if backend := os.Getenv("STOMP_AUDIT_BACKEND"); backend != "" {
		cfg.Audit.Backend = strings.ToLower(backend)
	}
}
