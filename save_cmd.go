package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/richardartoul/buildcache-action/pkg/ghactions"
	"github.com/richardartoul/buildcache-action/pkg/metrics"
	"github.com/richardartoul/buildcache-action/pkg/stats"
)

func newSaveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Save the buildcache directory if the build changed it",
		Long: `Print the buildcache stats, upload the buildcache log if requested and save
the cache directory under a new key.

The cache is not saved when save_cache is "false", when it is empty, or when
the build had no cache misses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(cmd.Context(), opts, ghactions.OSLookup, cmd.OutOrStdout())
		},
	}
}

func runSave(ctx context.Context, opts *rootOptions, lookup ghactions.LookupFunc, out io.Writer) error {
	logger := newLogger(out, opts.verbose || ghactions.IsDebug(lookup))

	cfg, err := opts.load(lookup)
	if err != nil {
		return saveFailed(logger, err)
	}
	// restore exported BUILDCACHE_DIR and put buildcache on PATH for us.
	cacheDir, err := cfg.ResolveCacheDir()
	if err != nil {
		return saveFailed(logger, err)
	}
	lc, err := newLocalCache(cacheDir, cfg.LogFilePath(cacheDir), logger)
	if err != nil {
		return saveFailed(logger, err)
	}

	if err := cfg.Validate(); err != nil {
		return saveFailed(logger, err)
	}

	phase := &savePhase{
		cfg:    cfg,
		probe:  &stats.Probe{Stdout: out},
		cache:  lc,
		keys:   newDeriver(cfg),
		logger: logger,
	}

	tracker := metrics.NewLatencyTracker(0.01)
	if store := openStoreOrWarn(ctx, cfg, logger, tracker); store != nil {
		defer store.Close()
		phase.store = store
		phase.uploader = &backendUploader{backend: store.backend}
	}
	err = phase.Run(ctx)
	logSummaries(logger, tracker)
	return err
}
