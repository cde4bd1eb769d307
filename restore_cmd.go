package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/richardartoul/buildcache-action/pkg/ghactions"
	"github.com/richardartoul/buildcache-action/pkg/install"
	"github.com/richardartoul/buildcache-action/pkg/metrics"
	"github.com/richardartoul/buildcache-action/pkg/stats"
)

func newRestoreCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Install buildcache and restore its cache",
		Long: `Install buildcache, export its settings and restore the newest cache entry
for the current cache key.

A missing or unreachable cache is only a warning; failing to install or run
buildcache fails the step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(cmd.Context(), opts, ghactions.OSLookup, cmd.OutOrStdout())
		},
	}
}

func runRestore(ctx context.Context, opts *rootOptions, lookup ghactions.LookupFunc, out io.Writer) error {
	logger := newLogger(out, opts.verbose || ghactions.IsDebug(lookup))

	cfg, err := opts.load(lookup)
	if err != nil {
		return restoreFailed(logger, err)
	}
	token, err := cfg.RequireToken()
	if err != nil {
		return restoreFailed(logger, err)
	}
	installDir, err := cfg.RequireInstallDir()
	if err != nil {
		return restoreFailed(logger, err)
	}

	if err := cfg.Validate(); err != nil {
		return restoreFailed(logger, err)
	}

	phase := &restorePhase{
		cfg: cfg,
		installer: &install.Installer{
			Releases:     &install.Releases{APIBase: cfg.APIURL, Token: token},
			Downloader:   &install.Downloader{},
			DownloadBase: cfg.ServerURL,
			Dir:          installDir,
			Tag:          cfg.Tag,
			Logger:       logger,
		},
		env: ghactions.NewRunnerFromEnv(lookup),
		newProbe: func(binary string) Prober {
			return &stats.Probe{Binary: binary, Stdout: out}
		},
		keys:   newDeriver(cfg),
		logger: logger,
	}

	tracker := metrics.NewLatencyTracker(0.01)
	if store := openStoreOrWarn(ctx, cfg, logger, tracker); store != nil {
		defer store.Close()
		phase.store = store
	}
	err = phase.Run(ctx)
	logSummaries(logger, tracker)
	return err
}
