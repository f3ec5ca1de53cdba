package main

import (
	"log/slog"

	"github.com/openmined/modsync/internal/blob"
	"github.com/openmined/modsync/internal/checksum"
	"github.com/openmined/modsync/internal/config"
	"github.com/openmined/modsync/internal/manifest"
	"github.com/openmined/modsync/internal/reconcile"
	"github.com/openmined/modsync/internal/transfer"
	"github.com/openmined/modsync/internal/utils"
	"github.com/openmined/modsync/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type runOptions struct {
	DryRun    bool
	KeepGoing bool
	Only      []string
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download missing and changed files (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, runOptionsFromFlags(cmd, false))
		},
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("keep-going", false, "attempt every file and report all failures at the end")
	cmd.Flags().StringSlice("only", nil, "only consider manifest paths matching these globs")
	cmd.Flags().StringP("download-dir", "d", "", "override download_dir from the config")
}

func runOptionsFromFlags(cmd *cobra.Command, dryRun bool) runOptions {
	keepGoing, _ := cmd.Flags().GetBool("keep-going")
	only, _ := cmd.Flags().GetStringSlice("only")
	return runOptions{DryRun: dryRun, KeepGoing: keepGoing, Only: only}
}

// loadConfig reads and validates the config with MODSYNC_* env vars and the
// --download-dir flag layered on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	if flag := cmd.Flags().Lookup("download-dir"); flag != nil && flag.Changed {
		if err := v.BindPFlag("download_dir", flag); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(resolveConfigPath(cmd), v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSync(cmd *cobra.Command, opts runOptions) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// config is good, usage help is noise from here on
	cmd.SilenceUsage = true

	hasher, err := checksum.New(cfg.Checksum)
	if err != nil {
		return err
	}

	store, err := blob.NewBlobClientWithS3Config(ctx,
		blob.WithMinioConfig(cfg.Endpoint, cfg.Bucket, cfg.Region, cfg.AccessKey, cfg.SecretKey),
	)
	if err != nil {
		return err
	}

	ws, err := workspace.New(cfg.DownloadDir)
	if err != nil {
		return err
	}

	// a plan only reads, it can run next to an update
	if !opts.DryRun {
		if err := ws.Lock(); err != nil {
			return err
		}
		defer func() {
			if err := ws.Unlock(); err != nil {
				slog.Warn("failed to release workspace lock", "error", err)
			}
		}()
	}

	ignore := workspace.NewIgnoreList(ws.Root)
	ignore.Load()

	slog.Info("starting", "config", cfg.Path, "endpoint", cfg.Endpoint, "bucket", store.Bucket(), "access_key", utils.MaskSecret(cfg.AccessKey), "dir", ws.Root, "checksum", hasher.Name(), "ignoreRules", ignore.Rules())

	httpClient := transfer.NewClient()
	m, err := manifest.Fetch(ctx, store, httpClient, cfg.ManifestKey)
	if err != nil {
		return err
	}

	reconciler, err := reconcile.New(ws, store, httpClient, hasher, reconcile.Options{
		FilesPrefix:     cfg.FilesPrefix,
		ContinueOnError: opts.KeepGoing,
		DryRun:          opts.DryRun,
		Only:            opts.Only,
		Ignore:          ignore,
	})
	if err != nil {
		return err
	}

	_, err = reconciler.Run(ctx, m)
	return err
}
