package registry

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically deletes agents whose heartbeat has gone stale past
// the liveness TTL, cascading to their capability rows, and self-heals any
// capability row left behind by an agent that is already gone. Modeled
// directly on the teacher's cleanup.Service: a cancellable ticker loop that
// runs once immediately, logs and continues on error, and waits for the
// loop to exit on Stop.
type Reaper struct {
	store    *Store
	ttl      time.Duration
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReaper constructs a reaper that has not yet been started.
func NewReaper(store *Store, ttl, interval time.Duration) *Reaper {
	return &Reaper{store: store, ttl: ttl, interval: interval}
}

// Start launches the background reap loop. Safe to call once; subsequent
// calls are no-ops.
func (r *Reaper) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go r.run(ctx)

	slog.Info("registry reaper started", "ttl", r.ttl, "interval", r.interval)
}

// Stop signals the loop to exit and waits for it to finish.
func (r *Reaper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	slog.Info("registry reaper stopped")
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.done)

	r.reapOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reapOnce(ctx)
		}
	}
}

func (r *Reaper) reapOnce(ctx context.Context) {
	n, err := r.store.DeleteExpiredAgents(ctx, r.ttl)
	if err != nil {
		slog.Error("registry reaper: delete expired agents failed", "error", err)
	} else if n > 0 {
		slog.Info("registry reaper: removed expired agents", "count", n)
	}

	orphaned, err := r.store.DeleteOrphanedCapabilities(ctx)
	if err != nil {
		slog.Error("registry reaper: delete orphaned capabilities failed", "error", err)
		return
	}
	if orphaned > 0 {
		slog.Info("registry reaper: removed orphaned capabilities", "count", orphaned)
	}
}
