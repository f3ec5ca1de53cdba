package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/openmined/modsync/internal/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a config template to fill in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(cmd)
			if err := config.WriteTemplate(path); err != nil {
				if errors.Is(err, os.ErrExist) {
					return fmt.Errorf("config %s already exists", path)
				}
				return fmt.Errorf("write config template: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, green.Render("Config template written to"), cyan.Render(path))
			fmt.Fprintln(out, gray.Render("Fill in endpoint, access_key, secret_key and bucket, then run"), lightGray.Render("modsync"))
			return nil
		},
	}
}
