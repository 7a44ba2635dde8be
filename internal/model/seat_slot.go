package model

import "time"

// SeatStatus is the availability state of one seat for one showtime.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatHeld      SeatStatus = "HELD"
	SeatBooked    SeatStatus = "BOOKED"
)

// SeatSlot is the bookable unit of inventory: one physical seat scoped to
// one showtime.  A slot moves AVAILABLE -> HELD -> BOOKED, or HELD ->
// AVAILABLE when a hold is released.  BOOKED is terminal until an explicit
// administrative release.  At most one non-cancelled order may hold or book
// a slot at any time; HolderCode records that order.
//
// Fields:
//  ID         – primary key identifier.
//  ShowtimeID – showtime this slot belongs to.
//  SeatID     – physical seat identifier.
//  Status     – AVAILABLE, HELD or BOOKED.
//  HolderCode – public code of the holding order (nil when AVAILABLE).
//  HeldUntil  – advisory expiry of the current hold (nil when not HELD).
//  UpdatedAt  – last transition timestamp.
type SeatSlot struct {
	ID         uint64
	ShowtimeID uint64
	SeatID     uint64
	Status     SeatStatus
	HolderCode *string
	HeldUntil  *time.Time
	UpdatedAt  time.Time
}
