// Package reaper permanently removes accounts whose deactivation grace
// window has elapsed.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	sl "aquasense/internal/lib/logger"
	"aquasense/internal/storage"
)

type Store interface {
	DeactivatedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteAccount(ctx context.Context, id string) error
}

type Reaper struct {
	log      *slog.Logger
	store    Store
	interval time.Duration
	grace    time.Duration
}

func New(log *slog.Logger, store Store, interval, grace time.Duration) *Reaper {
	return &Reaper{
		log:      log,
		store:    store,
		interval: interval,
		grace:    grace,
	}
}

// Run sweeps once at startup, then on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	r.Sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep deletes every account deactivated longer ago than the grace window.
// A failure on one account is logged and does not stop the rest.
func (r *Reaper) Sweep(ctx context.Context) {
	const op = "reaper.Sweep"

	cutoff := time.Now().Add(-r.grace)

	ids, err := r.store.DeactivatedBefore(ctx, cutoff)
	if err != nil {
		r.log.Error("failed to list expired accounts", slog.String("op", op), sl.Err(err))
		return
	}

	if len(ids) == 0 {
		return
	}

	deleted := 0
	for _, id := range ids {
		if err := r.store.DeleteAccount(ctx, id); err != nil {
			// Already gone counts as done.
			if errors.Is(err, storage.ErrAccountNotFound) {
				continue
			}
			r.log.Error("failed to delete account",
				slog.String("op", op), slog.String("id", id), sl.Err(err))
			continue
		}
		deleted++
	}

	r.log.Info("sweep finished", slog.String("op", op),
		slog.Int("candidates", len(ids)), slog.Int("deleted", deleted))
}
