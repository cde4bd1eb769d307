package backends

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/richardartoul/buildcache-action/pkg/metrics"
)

// Debug wraps any Backend and adds debug logging and latency tracking.
// This allows any backend implementation to be observed without coupling
// the logging to the backend implementation.
type Debug struct {
	backend Backend
	logger  *slog.Logger
	tracker *metrics.LatencyTracker
}

// NewDebug creates a new debug wrapper around an existing backend. tracker may
// be nil.
func NewDebug(backend Backend, logger *slog.Logger, tracker *metrics.LatencyTracker) *Debug {
	return &Debug{
		backend: backend,
		logger:  logger,
		tracker: tracker,
	}
}

func (d *Debug) Stat(ctx context.Context, key string) (Entry, error) {
	start := time.Now()
	e, err := d.backend.Stat(ctx, key)
	d.done(ctx, "stat", start, err, "key", key, "size", e.Size)
	return e, err
}

func (d *Debug) List(ctx context.Context, prefix string) ([]Entry, error) {
	start := time.Now()
	entries, err := d.backend.List(ctx, prefix)
	d.done(ctx, "list", start, err, "prefix", prefix, "entries", len(entries))
	return entries, err
}

func (d *Debug) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := d.backend.Get(ctx, key)
	d.done(ctx, "get", start, err, "key", key)
	return rc, err
}

func (d *Debug) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	start := time.Now()
	err := d.backend.Put(ctx, key, body, size)
	d.done(ctx, "put", start, err, "key", key, "size", size)
	return err
}

func (d *Debug) Close() error {
	err := d.backend.Close()
	if err != nil {
		d.logger.Debug("backend close failed", "error", err)
	}
	return err
}

func (d *Debug) done(ctx context.Context, op string, start time.Time, err error, attrs ...any) {
	elapsed := time.Since(start)
	if d.tracker != nil {
		d.tracker.Record(op, elapsed, err)
	}
	attrs = append(attrs, "duration", elapsed)
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	d.logger.DebugContext(ctx, "backend "+op, attrs...)
}
