// Package retention enforces an age limit on the SQLite audit store.
//
// The Pruner deletes records older than the configured age; the
// Scheduler runs it on a cron schedule (e.g. daily at 3 AM).
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"enacthq/enact/pkg/audit/sqlitesink"
)

// Config contains retention configuration.
type Config struct {
	// MaxAge is how long audit records are kept.
	MaxAge time.Duration

	// Schedule is a cron expression for automatic pruning. Empty
	// disables the scheduler.
	Schedule string
}

// DefaultConfig keeps 90 days of records, pruned daily at 3 AM.
func DefaultConfig() Config {
	return Config{
		MaxAge:   90 * 24 * time.Hour,
		Schedule: "0 3 * * *",
	}
}

// Pruner deletes audit records past their retention age.
type Pruner struct {
	store  *sqlitesink.Store
	config Config
	logger *slog.Logger
}

// NewPruner creates a pruner over the given store.
func NewPruner(store *sqlitesink.Store, config Config) (*Pruner, error) {
	if config.MaxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive, got %s", config.MaxAge)
	}
	return &Pruner{
		store:  store,
		config: config,
		logger: slog.Default().With("component", "audit.retention"),
	}, nil
}

// Prune deletes all records older than MaxAge and returns how many were
// removed.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-p.config.MaxAge)

	start := time.Now()
	deleted, err := p.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit records: %w", err)
	}

	p.logger.Info("retention prune complete",
		"deleted", deleted,
		"cutoff", cutoff,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return deleted, nil
}
