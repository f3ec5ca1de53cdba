package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/openmined/modsync/internal/config"
	"github.com/openmined/modsync/internal/logging"
	"github.com/openmined/modsync/internal/version"
	"github.com/spf13/cobra"
)

// closeLog flushes the log file opened for the current run, if any.
var closeLog = func() error { return nil }

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           version.AppName,
		Short:         "Keep a local mod folder in sync with a bucket manifest",
		Version:       version.Detailed(),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, runOptionsFromFlags(cmd, false))
		},
	}

	rootCmd.Flags().SortFlags = false
	addRunFlags(rootCmd)
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultFileName, "modsync config file")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output")

	rootCmd.AddCommand(
		newSyncCmd(),
		newPlanCmd(),
		newInitCmd(),
		newConfigPathCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func setupLogging(cmd *cobra.Command) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logFile, _ := cmd.Flags().GetString("log-file")

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	closer, err := logging.Setup(os.Stdout, logging.Options{
		Level:   level,
		LogFile: logFile,
		RunID:   uuid.NewString(),
	})
	if err != nil {
		return err
	}
	closeLog = closer
	return nil
}

// execute runs the CLI with args and returns the process exit status.
func execute(ctx context.Context, args []string) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		slog.Error(version.AppName+" failed", "error", err)
		if hint := presignedURLHint(err); hint != "" {
			slog.Warn(hint)
		}
	}

	if cerr := closeLog(); cerr != nil {
		os.Stderr.WriteString("close log file: " + cerr.Error() + "\n")
	}
	closeLog = func() error { return nil }

	if err != nil {
		return 1
	}
	return 0
}

func main() {
	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
