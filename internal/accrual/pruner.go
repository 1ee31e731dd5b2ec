package accrual

import (
	"context"
	"time"

	"github.com/omega-realm/presence/internal/logging"
	"github.com/omega-realm/presence/internal/repositories/activity"
)

// Pruner enforces the activity record retention window.
type Pruner struct {
	repo      activity.Repository
	retention time.Duration
	now       func() time.Time
	log       logging.Logger
}

func NewPruner(repo activity.Repository, retention time.Duration, now func() time.Time, log logging.Logger) *Pruner {
	if now == nil {
		now = time.Now
	}
	return &Pruner{repo: repo, retention: retention, now: now, log: log.With("component", "activity_pruner")}
}

// PruneOnce deletes records created before now minus the retention.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	cutoff := p.now().UTC().Add(-p.retention)
	n, err := p.repo.Prune(ctx, cutoff)
	if err != nil {
		p.log.Warn(ctx, "activity prune failed", "error", err)
		return 0, err
	}
	if n > 0 {
		p.log.Info(ctx, "activity records pruned", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Run prunes on every tick until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.PruneOnce(ctx)
		}
	}
}
