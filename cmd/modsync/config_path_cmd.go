package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-path",
		Short: "Print the resolved config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), cyan.Render(resolveConfigPath(cmd)))
			return err
		},
	}
}
