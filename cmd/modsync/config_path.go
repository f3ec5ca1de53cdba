package main

import (
	"os"

	"github.com/openmined/modsync/internal/config"
	"github.com/spf13/cobra"
)

const configPathEnv = config.EnvPrefix + "_CONFIG_PATH"

// resolveConfigPath determines which config file path to use, honoring (in order):
// 1) An explicitly set --config flag
// 2) MODSYNC_CONFIG_PATH environment variable
// 3) config.json in the working directory
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String()
	}

	if envPath := os.Getenv(configPathEnv); envPath != "" {
		return envPath
	}

	return config.DefaultFileName
}
