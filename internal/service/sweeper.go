package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
)

// SweeperStore is the slice of the store the expiry sweep needs.
type SweeperStore interface {
	FindExpiredPending(ctx context.Context, before time.Time, limit int) ([]model.Order, error)
	Cancel(ctx context.Context, orderCode string) error
}

// Sweeper cancels pending orders whose hold has outlived the TTL, releasing
// their seats back to AVAILABLE.  It runs as a background loop; every
// cancellation goes through the same per-order transaction as an explicit
// cancel, so the sweep can race settlement safely — whichever locks the
// order first wins and the loser observes the terminal state.
type Sweeper struct {
	store    SweeperStore
	holdTTL  time.Duration
	interval time.Duration
	batch    int
}

// NewSweeper constructs a Sweeper.
func NewSweeper(store SweeperStore, holdTTL, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{store: store, holdTTL: holdTTL, interval: interval, batch: 100}
}

// Run loops until the context is cancelled.  Errors are logged and the loop
// keeps going; a broken sweep must never take the server down.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				log.Printf("sweeper: sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("sweeper: released %d expired orders", n)
			}
		}
	}
}

// SweepOnce cancels one batch of expired pending orders and returns how
// many were cancelled.  Orders that reach a terminal state between the
// query and the cancel are skipped silently.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.holdTTL)
	expired, err := s.store.FindExpiredPending(ctx, cutoff, s.batch)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, o := range expired {
		if err := s.store.Cancel(ctx, o.PublicCode); err != nil {
			// ErrAlreadySettled means a payment landed between query and
			// cancel; anything else is worth logging.
			if !errors.Is(err, model.ErrAlreadySettled) {
				log.Printf("sweeper: cancel %s failed: %v", o.PublicCode, err)
			}
			continue
		}
		released++
	}
	return released, nil
}
