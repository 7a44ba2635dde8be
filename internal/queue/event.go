// Package queue defines message payloads exchanged over the message broker
// plus the publisher and the background audit consumer.
package queue

// OrderSettledEvent is published after a settlement transaction commits.
// It carries enough for downstream consumers (ticket delivery, analytics,
// the audit log) without querying the primary database.
type OrderSettledEvent struct {
	OrderCode     string   `json:"order_code"`
	ShowtimeID    uint64   `json:"showtime_id"`
	SeatIDs       []uint64 `json:"seat_ids"`
	TotalAmount   int64    `json:"total_amount"`
	ExternalTxnID string   `json:"external_txn_id"`
	OriginChannel string   `json:"origin_channel"`
	SettledAt     string   `json:"settled_at"`
}
