package model

import "time"

// TxnDirection distinguishes money arriving at our account from money
// leaving it.  Only inbound transactions can settle an order.
type TxnDirection string

const (
	TxnIn  TxnDirection = "IN"
	TxnOut TxnDirection = "OUT"
)

// PaymentNotification is the normalized form of one transaction reported by
// the banking provider, regardless of which payload shape it arrived in.
// Deliveries are at-least-once: the same ExternalTxnID may be seen multiple
// times and must never cause re-settlement.
//
// Fields:
//  ExternalTxnID       – provider-assigned transaction identifier.
//  Description         – free-text transfer description typed by the payer.
//  Amount              – transferred amount in minor currency units.
//  Direction           – IN or OUT relative to our account.
//  CounterpartyAccount – account number on the other side of the transfer.
//  Reference           – explicit order reference when the provider carries one.
//  ReceivedAt          – when this delivery reached us (UTC).
type PaymentNotification struct {
	ExternalTxnID       string
	Description         string
	Amount              int64
	Direction           TxnDirection
	CounterpartyAccount string
	Reference           string
	ReceivedAt          time.Time
}
