// Package model defines the domain types shared by the repository and
// service layers.  This file holds the sentinel errors of the booking and
// settlement core so that every layer can compare against the same values
// with errors.Is.
package model

import "errors"

// ErrSeatUnavailable is returned by a hold attempt when at least one of the
// requested seats is not AVAILABLE.  Handlers translate it into 409.
var ErrSeatUnavailable = errors.New("seat unavailable")

// ErrInvalidSeatState is returned by finalize when a seat is not currently
// HELD by the settling order, e.g. after an expiry sweep released it.
var ErrInvalidSeatState = errors.New("invalid seat state")

// ErrIdentifierSpaceExhausted is returned by the minter when every bounded
// attempt at generating a unique order code collided.
var ErrIdentifierSpaceExhausted = errors.New("identifier space exhausted")

// ErrOrderNotFound is returned by ledger lookups for unknown order codes.
var ErrOrderNotFound = errors.New("order not found")

// ErrDuplicateCode is returned when an insert loses the uniqueness race on
// public_code.  The minter treats it like a collision and retries.
var ErrDuplicateCode = errors.New("duplicate order code")

// ErrAlreadySettled signals that the order is already in a terminal state.
// Every caller maps it to an idempotent success, because redelivered
// payment notifications must not fail loudly.
var ErrAlreadySettled = errors.New("order already settled")
