package model

import "time"

// OrderStatus enumerates the lifecycle states of an order.  PENDING orders
// are awaiting payment; COMPLETED and CANCELLED are terminal and an order
// never leaves either of them.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether the status is one of the two final states.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// OriginChannel records where an order was minted.  Self-service orders are
// created from the customer-facing checkout; counter orders are created by
// staff at the box office.
type OriginChannel string

const (
	ChannelSelfService OriginChannel = "SELF_SERVICE"
	ChannelCounter     OriginChannel = "COUNTER"
)

// Public-code prefixes by channel.  ORD is the legacy prefix still present
// on orders minted by the previous system; it is never minted anymore but
// the payment matcher must keep recognising it in transfer descriptions.
const (
	PrefixSelfService = "ONL"
	PrefixCounter     = "CTR"
	PrefixLegacy      = "ORD"
)

// KnownCodePrefixes lists every prefix an order code can carry, in the
// order the description scanner tries them.
var KnownCodePrefixes = []string{PrefixSelfService, PrefixCounter, PrefixLegacy}

// PrefixFor returns the minting prefix for a channel.
func PrefixFor(ch OriginChannel) string {
	if ch == ChannelCounter {
		return PrefixCounter
	}
	return PrefixSelfService
}

// Order is the invoice record for a seat purchase.  TotalAmount is in minor
// currency units and, together with the points and voucher fields, is fixed
// at creation time: reconciliation only ever touches Status, SettledAt and
// ExternalTxnID.
//
// Fields:
//  ID              – primary key identifier.
//  PublicCode      – globally unique human-decodable code (prefix + suffix).
//  Status          – PENDING, COMPLETED or CANCELLED.
//  TotalAmount     – total price in minor currency units.
//  ShowtimeID      – showtime the seats belong to.
//  SeatIDs         – ordered seat identifiers covered by this order.
//  MemberAccountID – loyalty account of the payer (nil for guests).
//  VoucherID       – voucher applied at creation (nil when none).
//  PointsRedeemed  – loyalty points spent on this order.
//  PointsEarned    – loyalty points granted on settlement.
//  Origin          – SELF_SERVICE or COUNTER.
//  CreatedAt       – creation timestamp (UTC).
//  SettledAt       – set once when the order completes.
//  ExternalTxnID   – provider transaction id recorded at settlement.
type Order struct {
	ID              uint64
	PublicCode      string
	Status          OrderStatus
	TotalAmount     int64
	ShowtimeID      uint64
	SeatIDs         []uint64
	MemberAccountID *uint64
	VoucherID       *string
	PointsRedeemed  int64
	PointsEarned    int64
	Origin          OriginChannel
	CreatedAt       time.Time
	SettledAt       *time.Time
	ExternalTxnID   *string
}

// PointsDelta is the net change settlement applies to the payer's point
// balance.
func (o *Order) PointsDelta() int64 {
	return o.PointsEarned - o.PointsRedeemed
}
