package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/richardartoul/buildcache-action/pkg/config"
	"github.com/richardartoul/buildcache-action/pkg/install"
	"github.com/richardartoul/buildcache-action/pkg/keys"
	"github.com/richardartoul/buildcache-action/pkg/stats"
)

// Installer provisions the buildcache binary.
type Installer interface {
	Install(ctx context.Context) (install.Result, error)
}

// Environment exports settings to the rest of the job.
type Environment interface {
	ExportVariable(name, value string) error
	AddPath(dir string) error
}

// Prober runs the buildcache binary's reporting commands.
type Prober interface {
	ReadStats(ctx context.Context) (stats.Stats, error)
	ZeroStats(ctx context.Context) error
	PrintConfig(ctx context.Context) error
}

// restorePhase runs at the start of a job: install buildcache, point it at
// the cache directory and seed that directory from the remote cache.
type restorePhase struct {
	cfg       config.Config
	installer Installer
	env       Environment
	// newProbe returns a Prober for the binary Install produced.
	newProbe func(binary string) Prober
	// store is nil when the cache backend couldn't be opened.
	store    CacheStore
	keys     keys.Deriver
	logger   *slog.Logger
}

// Run executes the phase. Only failures to install or configure buildcache
// are returned; cache problems are logged as warnings.
func (p *restorePhase) Run(ctx context.Context) error {
	if err := p.run(ctx); err != nil {
		return restoreFailed(p.logger, err)
	}
	return nil
}

func (p *restorePhase) run(ctx context.Context) error {
	res, err := p.installer.Install(ctx)
	if err != nil {
		return err
	}
	if err := p.env.AddPath(res.BinDir); err != nil {
		return err
	}

	lc, err := p.configure()
	if err != nil {
		return err
	}

	if p.store != nil {
		p.restore(ctx, lc)
	}

	probe := p.newProbe(res.Binary)
	if err := probe.PrintConfig(ctx); err != nil {
		return err
	}
	if _, err := probe.ReadStats(ctx); err != nil {
		return err
	}

	if p.cfg.ZeroStats {
		p.logger.Info("buildcache: zeroing stats - stats display in cleanup task will be for this run only.")
		if err := probe.ZeroStats(ctx); err != nil {
			return err
		}
	}
	return nil
}

// configure creates the cache directory and exports the variables buildcache
// reads. Values already present in the environment are kept.
func (p *restorePhase) configure() (*localCache, error) {
	cacheDir, err := p.cfg.ResolveCacheDir()
	if err != nil {
		return nil, err
	}
	lc, err := newLocalCache(cacheDir, p.cfg.LogFile, p.logger)
	if err != nil {
		return nil, err
	}

	vars := []struct{ name, value string }{
		{"BUILDCACHE_DIR", lc.dir},
		{"BUILDCACHE_MAX_CACHE_SIZE", p.cfg.MaxCacheSize},
		{"BUILDCACHE_DEBUG", p.cfg.Debug},
		{"BUILDCACHE_LOG_FILE", lc.logFile},
	}
	for _, v := range vars {
		if err := p.env.ExportVariable(v.name, v.value); err != nil {
			return nil, err
		}
	}
	return lc, nil
}

func (p *restorePhase) restore(ctx context.Context, lc *localCache) {
	family := p.keys.Derive(p.cfg.CacheKey)

	matched, ok, err := p.store.Restore(ctx, lc.paths(), family.Unique, []string{family.WithInput})
	switch {
	case err != nil:
		p.logger.Warn(fmt.Sprintf("buildcache: caching not working: %s", err))
	case ok:
		p.logger.Info(fmt.Sprintf("buildcache: restored from cache key \"%s\".", matched))
	default:
		p.logger.Info(fmt.Sprintf("buildcache: no cache for key %s or %s - cold cache or invalid key", family.Unique, family.WithInput))
	}
}

func restoreFailed(logger *slog.Logger, err error) error {
	logger.Error(fmt.Sprintf("buildcache: failure during restore: %s", err))
	return err
}
