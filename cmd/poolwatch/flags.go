package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sznuper/poolwatch/internal/config"
)

// flagName derives the flag for a config key: "detection.window_size"
// becomes --detection-window-size.
func flagName(key string) string {
	return strings.NewReplacer(".", "-", "_", "-").Replace(key)
}

// registerConfigFlags adds a persistent --flag for every settable config key.
func registerConfigFlags(cmd *cobra.Command) {
	for _, key := range config.Keys() {
		cmd.PersistentFlags().String(flagName(key), "", "override "+key)
	}
}

// applyConfigFlags overlays CLI flag values onto the config. Only flags
// explicitly set by the user are applied.
func applyConfigFlags(cmd *cobra.Command, cfg *config.Config) error {
	for _, key := range config.Keys() {
		name := flagName(key)
		if !cmd.Flags().Changed(name) {
			continue
		}
		val, _ := cmd.Flags().GetString(name)
		if err := cfg.Set(key, val); err != nil {
			return fmt.Errorf("--%s: %w", name, err)
		}
	}
	return nil
}
