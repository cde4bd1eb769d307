package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/richardartoul/buildcache-action/backends"
	"github.com/richardartoul/buildcache-action/pkg/config"
	"github.com/richardartoul/buildcache-action/pkg/ghactions"
	"github.com/richardartoul/buildcache-action/pkg/keys"
	"github.com/richardartoul/buildcache-action/pkg/locking"
	"github.com/richardartoul/buildcache-action/pkg/metrics"
)

// rootOptions holds the global flags. Flags take precedence over the action
// inputs they shadow.
type rootOptions struct {
	verbose    bool
	cacheKey   string
	installDir string
	backend    string
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "buildcache-action",
		Short: "Cache buildcache objects across CI runs",
		Long: `buildcache-action installs buildcache, points the compiler at it and keeps
its cache directory in a remote cache between runs.

Run "restore" before the build and "save" after it. Both read their settings
from the action inputs (INPUT_* variables) and the runner environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       versionString(),
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&opts.cacheKey, "cache-key", "", "Token scoping the cache key (overrides the cache_key input)")
	flags.StringVar(&opts.installDir, "install-dir", "", "Directory to install buildcache into (overrides install_dir)")
	flags.StringVar(&opts.backend, "backend", "", "Cache backend: disk, s3 or redis (overrides backend)")
	flags.StringVar(&opts.configFile, "config", "", "TOML file with backend settings (overrides config_file)")

	cmd.AddCommand(newRestoreCmd(opts))
	cmd.AddCommand(newSaveCmd(opts))
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "buildcache-action:", err)
		os.Exit(1)
	}
}

// lookup layers the flags over base by presenting them as action inputs.
func (o *rootOptions) lookup(base ghactions.LookupFunc) ghactions.LookupFunc {
	overrides := make(map[string]string)
	set := func(input, value string) {
		if value != "" {
			overrides[ghactions.InputEnv(input)] = value
		}
	}
	set("cache_key", o.cacheKey)
	set("install_dir", o.installDir)
	set("backend", o.backend)
	set("config_file", o.configFile)

	return func(key string) (string, bool) {
		if v, ok := overrides[key]; ok {
			return v, true
		}
		return base(key)
	}
}

func (o *rootOptions) load(lookup ghactions.LookupFunc) (config.Config, error) {
	cfg, err := config.Load(o.lookup(lookup))
	if err != nil {
		return config.Config{}, err
	}
	cfg.Verbose = cfg.Verbose || o.verbose
	return cfg, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(ghactions.NewHandler(w, level))
}

func newDeriver(cfg config.Config) keys.Deriver {
	var d keys.Deriver
	if cfg.UniqueSuffix {
		d.Entropy = keys.UUIDEntropy
	}
	return d
}

// openStore connects to the configured backend and wraps it for debug
// logging and latency tracking. cfg must already be validated.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger, tracker *metrics.LatencyTracker) (*cacheStore, error) {
	backend, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Backend.Kind, err)
	}
	locks, err := locking.NewFileLock(cfg.LockDir)
	if err != nil {
		backend.Close()
		return nil, err
	}
	logger.Debug("using cache backend", "backend", cfg.Backend.Kind)
	return newCacheStore(backends.NewDebug(backend, logger, tracker), locks, "", logger), nil
}

// openStoreOrWarn is openStore for the phases: an unreachable cache is a
// warning and nil is returned, so the build goes ahead without it.
func openStoreOrWarn(ctx context.Context, cfg config.Config, logger *slog.Logger, tracker *metrics.LatencyTracker) *cacheStore {
	store, err := openStore(ctx, cfg, logger, tracker)
	if err != nil {
		logger.Warn(fmt.Sprintf("buildcache: caching not working: %s", err))
		return nil
	}
	return store
}

func logSummaries(logger *slog.Logger, tracker *metrics.LatencyTracker) {
	for _, s := range tracker.Summaries() {
		logger.Debug(s.String())
	}
}
