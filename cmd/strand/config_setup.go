package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"strand/internal/config"
)

// loadConfig reads --config, or the nearest strand.toml, or the defaults.
func loadConfig(cmd *cobra.Command) (*config.Loaded, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if path != "" {
		return config.Load(path)
	}
	return config.Discover(".")
}
