package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
)

// Store groups the repositories and owns the multi-entity transactions of
// the core: creating a pending order together with its seat holds, settling
// a confirmed payment, and cancelling an abandoned order.  Each flow is one
// database transaction: either every effect is visible or none is.
type Store struct {
	db       *sql.DB
	Orders   *OrderRepo
	Seats    *SeatSlotRepo
	Members  *MemberRepo
	Vouchers *VoucherRepo
	Txns     *BankTxnRepo
}

// NewStore wires a Store and its repositories over one database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		Orders:   NewOrderRepo(db),
		Seats:    NewSeatSlotRepo(db),
		Members:  NewMemberRepo(db),
		Vouchers: NewVoucherRepo(db),
		Txns:     NewBankTxnRepo(db),
	}
}

// GetByCode proxies the ledger lookup so handlers can read through the
// store without touching repositories directly.
func (s *Store) GetByCode(ctx context.Context, code string) (*model.Order, error) {
	return s.Orders.GetByCode(ctx, code)
}

// CodeExists proxies the minting uniqueness probe.
func (s *Store) CodeExists(ctx context.Context, code string) (bool, error) {
	return s.Orders.CodeExists(ctx, code)
}

// CreatePending inserts the order and holds its seats in one transaction.
// When any seat is not AVAILABLE the transaction rolls back and the minted
// order is never persisted, so a failed hold leaves no partial state.
func (s *Store) CreatePending(ctx context.Context, o *model.Order, heldUntil time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := s.Orders.CreateTx(ctx, tx, o); err != nil {
		return err
	}
	if err := s.Seats.HoldTx(ctx, tx, o.ShowtimeID, o.SeatIDs, o.PublicCode, heldUntil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Settle applies the full consequences of a confirmed payment to one order:
// seats HELD -> BOOKED, loyalty point delta, voucher consumption and the
// PENDING -> COMPLETED transition, all under a row lock on the order so two
// redelivered notifications cannot both settle it.  A terminal order yields
// model.ErrAlreadySettled without side effects; a seat finalize failure
// rolls everything back and leaves the order PENDING for retry or manual
// intervention.  On success the settled order is returned for event
// publication.
func (s *Store) Settle(ctx context.Context, orderCode, externalTxnID string, settledAt time.Time) (*model.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	o, err := s.Orders.LockByCodeTx(ctx, tx, orderCode)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return o, model.ErrAlreadySettled
	}
	if err := s.Seats.FinalizeTx(ctx, tx, o.ShowtimeID, o.SeatIDs, o.PublicCode); err != nil {
		return nil, err
	}
	if o.MemberAccountID != nil && o.PointsDelta() != 0 {
		if err := s.Members.AdjustPointsTx(ctx, tx, *o.MemberAccountID, o.PointsDelta()); err != nil {
			return nil, err
		}
	}
	if o.VoucherID != nil {
		// Consumed or not, settlement proceeds; a used or expired voucher
		// simply has no further effect.
		if _, err := s.Vouchers.ConsumeTx(ctx, tx, *o.VoucherID, settledAt); err != nil {
			return nil, err
		}
	}
	if err := s.Orders.CompleteTx(ctx, tx, o.ID, settledAt, externalTxnID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	o.Status = model.OrderCompleted
	at := settledAt.UTC()
	o.SettledAt = &at
	o.ExternalTxnID = &externalTxnID
	return o, nil
}

// Cancel moves a PENDING order to CANCELLED and releases its held seats in
// one transaction.  Cancelling an already-cancelled order is an idempotent
// success; cancelling a COMPLETED order reports model.ErrAlreadySettled so
// callers can surface the conflict.
func (s *Store) Cancel(ctx context.Context, orderCode string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	o, err := s.Orders.LockByCodeTx(ctx, tx, orderCode)
	if err != nil {
		return err
	}
	if o.Status == model.OrderCancelled {
		return nil
	}
	if o.Status == model.OrderCompleted {
		return model.ErrAlreadySettled
	}
	if err := s.Orders.CancelTx(ctx, tx, o.ID); err != nil && !errors.Is(err, model.ErrAlreadySettled) {
		return err
	}
	if err := s.Seats.ReleaseTx(ctx, tx, o.ShowtimeID, o.SeatIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// FindExpiredPending proxies the ledger query used by the expiry sweep.
func (s *Store) FindExpiredPending(ctx context.Context, before time.Time, limit int) ([]model.Order, error) {
	return s.Orders.FindExpiredPending(ctx, before, limit)
}
