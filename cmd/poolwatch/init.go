package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sznuper/poolwatch/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an annotated example configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		force, _ := cmd.Flags().GetBool("force")
		stdout, _ := cmd.Flags().GetBool("stdout")

		if stdout {
			_, err := os.Stdout.Write(config.Example)
			return err
		}

		if path == "" {
			paths := config.DefaultConfigPaths()
			if len(paths) == 0 {
				return errors.New("no default config path, use --path")
			}
			path = paths[0]
		}

		if !force {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.WriteFile(path, config.Example, 0o600); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Printf("✓ Wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().String("path", "", "destination (default ~/.config/poolwatch/config.yaml)")
	initCmd.Flags().Bool("force", false, "overwrite an existing file")
	initCmd.Flags().Bool("stdout", false, "print the example instead of writing it")
	rootCmd.AddCommand(initCmd)
}
