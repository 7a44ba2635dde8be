package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTxnDeduper remembers processed external transaction ids in Redis
// with a TTL.  It only exists to skip pointless store round trips on
// redelivery storms; correctness never depends on it, so every Redis error
// degrades to "not seen".
type RedisTxnDeduper struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisTxnDeduper returns a deduper, or nil when no Redis client is
// available so callers can pass it straight through.
func NewRedisTxnDeduper(rdb *redis.Client, ttl time.Duration) *RedisTxnDeduper {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTxnDeduper{rdb: rdb, prefix: "txn:seen:", ttl: ttl}
}

// Seen reports whether the transaction id was marked before.
func (d *RedisTxnDeduper) Seen(ctx context.Context, externalTxnID string) bool {
	n, err := d.rdb.Exists(ctx, d.prefix+externalTxnID).Result()
	return err == nil && n > 0
}

// Mark records the transaction id for the configured TTL.  SetNX keeps the
// original expiry when two settlers mark the same id concurrently.
func (d *RedisTxnDeduper) Mark(ctx context.Context, externalTxnID string) {
	_ = d.rdb.SetNX(ctx, d.prefix+externalTxnID, 1, d.ttl).Err()
}
