package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/config"
)

// Store is the delete surface of the point value store.
// It is satisfied by *pointvalue.Store.
type Store interface {
	DeleteAllBefore(ctx context.Context, t int64) (int64, error)
	DeleteOrphaned(ctx context.Context) (int64, error)
	DeleteOrphanedAnnotations(ctx context.Context) (int64, error)
}

// Logger is the logging surface used by the purger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result counts the rows removed by one run.
type Result struct {
	Expired           int64
	Orphaned          int64
	OrphanAnnotations int64
}

// Purger periodically removes expired and orphaned point values.
type Purger struct {
	store         Store
	interval      time.Duration
	maxAge        time.Duration
	orphanCleanup bool
	logger        Logger
	now           func() time.Time

	// runMu serialises runs so a manual RunOnce never overlaps a tick.
	runMu sync.Mutex
}

// New creates a Purger from the retention config.
func New(store Store, cfg config.RetentionConfig) *Purger {
	return &Purger{
		store:         store,
		interval:      cfg.Interval,
		maxAge:        cfg.MaxAge,
		orphanCleanup: cfg.OrphanCleanup,
		logger:        noopLogger{},
		now:           time.Now,
	}
}

// SetLogger sets the logger for run summaries and failures.
func (p *Purger) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Run purges immediately and then on every interval until ctx is done.
// It always returns nil so it can run inside an errgroup without ending
// the group on a failed purge.
func (p *Purger) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.runLogged(ctx)
		}
	}
}

func (p *Purger) runLogged(ctx context.Context) {
	res, err := p.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Error("retention run failed", "error", err)
		return
	}
	p.logger.Info("retention run complete",
		"expired", res.Expired,
		"orphaned", res.Orphaned,
		"orphan_annotations", res.OrphanAnnotations,
	)
}

// RunOnce performs a single purge.
//
// Returns:
//   - Result: Rows removed by each step that completed
//   - error: The first failing step, wrapped
func (p *Purger) RunOnce(ctx context.Context) (Result, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	var res Result
	cutoff := p.now().Add(-p.maxAge).UnixMilli()

	n, err := p.store.DeleteAllBefore(ctx, cutoff)
	res.Expired = n
	purgedRowsTotal.WithLabelValues("expired").Add(float64(n))
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return res, fmt.Errorf("purging values before %d: %w", cutoff, err)
	}

	if p.orphanCleanup {
		n, err = p.store.DeleteOrphaned(ctx)
		res.Orphaned = n
		purgedRowsTotal.WithLabelValues("orphaned").Add(float64(n))
		if err != nil {
			runsTotal.WithLabelValues("error").Inc()
			return res, fmt.Errorf("purging orphaned values: %w", err)
		}

		n, err = p.store.DeleteOrphanedAnnotations(ctx)
		res.OrphanAnnotations = n
		purgedRowsTotal.WithLabelValues("orphan_annotation").Add(float64(n))
		if err != nil {
			runsTotal.WithLabelValues("error").Inc()
			return res, fmt.Errorf("purging orphaned annotations: %w", err)
		}
	}

	runsTotal.WithLabelValues("ok").Inc()
	lastRunTimestamp.Set(float64(p.now().Unix()))
	return res, nil
}
