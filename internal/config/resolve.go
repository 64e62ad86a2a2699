package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DefaultConfigPaths returns the search order for config files.
func DefaultConfigPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "poolwatch", "config.yaml"))
	}
	paths = append(paths, "/etc/poolwatch/config.yaml")
	return paths
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables that are already set win.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}
	return nil
}

// Resolve loads the config from the given explicit path, or the first file
// found in the default locations, or the defaults when there is none. The
// environment is applied on top and globals.hostname is filled from
// os.Hostname() if empty. The returned path is empty when no file was read.
func Resolve(explicit string) (*Config, string, error) {
	path, err := findConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	var cfg *Config
	if path == "" {
		d := Default()
		cfg = &d
	} else if cfg, err = Load(path); err != nil {
		return nil, "", err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, "", err
	}

	if cfg.Globals == nil {
		cfg.Globals = map[string]any{}
	}
	if _, ok := cfg.Globals["hostname"]; !ok {
		h, err := os.Hostname()
		if err != nil {
			return nil, "", fmt.Errorf("resolving hostname: %w", err)
		}
		cfg.Globals["hostname"] = h
	}

	return cfg, path, nil
}

func findConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultConfigPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", nil
}
