package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/richardartoul/buildcache-action/backends"
	"github.com/richardartoul/buildcache-action/pkg/config"
	"github.com/richardartoul/buildcache-action/pkg/decision"
	"github.com/richardartoul/buildcache-action/pkg/keys"
	"github.com/richardartoul/buildcache-action/pkg/stats"
)

// logArtifact is the name the buildcache log is uploaded under.
const logArtifact = "buildcache_log"

// LogUploader stores the buildcache log somewhere the job's owner can read it.
type LogUploader interface {
	// Upload stores the file at filePath as name and returns the bytes used.
	Upload(ctx context.Context, name, filePath string) (int64, error)
}

// savePhase runs at the end of a job: report the stats, ship the log and, if
// the build changed the cache, save it under a fresh key.
type savePhase struct {
	cfg      config.Config
	probe    Prober
	// store and uploader are nil when the cache backend couldn't be opened.
	store    CacheStore
	uploader LogUploader
	cache    *localCache
	keys     keys.Deriver
	logger   *slog.Logger
}

// Run executes the phase. Only a buildcache binary that can't be run is an
// error; everything else is logged and skipped.
func (p *savePhase) Run(ctx context.Context) error {
	st, err := p.probe.ReadStats(ctx)
	if err != nil {
		return saveFailed(p.logger, err)
	}

	family := p.keys.Derive(p.cfg.CacheKey)
	p.handleLog(ctx, family)
	p.save(ctx, st, family)
	return nil
}

func (p *savePhase) handleLog(ctx context.Context, family keys.Family) {
	if p.cfg.UploadLog && p.uploader != nil {
		n, err := p.uploader.Upload(ctx, path.Join(logArtifact, family.Unique), p.cache.logFile)
		if err != nil {
			p.logger.Warn(fmt.Sprintf("buildcache: unable to upload buildlog: %s", err))
		} else {
			p.logger.Info(fmt.Sprintf("buildcache: uploaded buildcache.log file (consumed %d bytes of artifact storage)", n))
		}
	}
	if err := p.cache.removeLog(); err != nil {
		p.logger.Warn(fmt.Sprintf("buildcache: unable to delete buildcache.log %s", err))
	}
}

func (p *savePhase) save(ctx context.Context, st stats.Stats, family keys.Family) {
	outcome := decision.Decide(st, p.cfg.SaveCache)
	if !outcome.Save {
		p.logger.Info(outcome.Reason.Message())
		return
	}
	if p.store == nil {
		p.logger.Debug("no cache backend, not saving")
		return
	}
	if !st.Known() {
		p.logger.Warn("buildcache: unable to parse cache stats, saving anyway.")
	}

	p.logger.Info(fmt.Sprintf("buildcache: saving cache with key \"%s\".", family.Unique))
	if err := p.store.Save(ctx, p.cache.paths(), family.Unique); err != nil {
		p.logger.Warn(fmt.Sprintf("buildcache: caching not working: %s", err))
	}
}

func saveFailed(logger *slog.Logger, err error) error {
	logger.Error(fmt.Sprintf("buildcache: failure during save: %s", err))
	return err
}

// backendUploader keeps uploaded logs in the cache backend, under a prefix
// restores never look at.
type backendUploader struct {
	backend backends.Backend
}

func (u *backendUploader) Upload(ctx context.Context, name, filePath string) (int64, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if err := u.backend.Put(ctx, path.Join("artifacts", name), f, info.Size()); err != nil {
		return 0, err
	}
	return info.Size(), nil
}
