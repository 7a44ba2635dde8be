package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
)

// BankTxnRepo keeps a durable record of every transaction the provider has
// notified us about.  The unique index on external_txn_id absorbs
// redeliveries, and unmatched inbound rows feed the best-effort settlement
// check run by the payment status poll endpoint.
type BankTxnRepo struct {
	db *sql.DB
}

// NewBankTxnRepo returns a BankTxnRepo bound to the provided database.
func NewBankTxnRepo(db *sql.DB) *BankTxnRepo { return &BankTxnRepo{db: db} }

// Record stores one notification.  Redelivered transaction ids are ignored
// silently via INSERT IGNORE; the first delivery wins.
func (r *BankTxnRepo) Record(ctx context.Context, n model.PaymentNotification) error {
	const q = `INSERT IGNORE INTO bank_transactions
	           (external_txn_id, description, amount, direction, counterparty_account, reference, received_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		n.ExternalTxnID, n.Description, n.Amount, n.Direction,
		n.CounterpartyAccount, n.Reference, n.ReceivedAt.UTC().Format("2006-01-02 15:04:05"))
	return err
}

// MarkMatched links a transaction to the order it settled.
func (r *BankTxnRepo) MarkMatched(ctx context.Context, externalTxnID, orderCode string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE bank_transactions SET matched_order_code = ? WHERE external_txn_id = ?`,
		orderCode, externalTxnID)
	return err
}

// FindUnmatchedInbound lists inbound transactions received at or after the
// cutoff that have not been matched to any order yet, newest first.
func (r *BankTxnRepo) FindUnmatchedInbound(ctx context.Context, since time.Time) ([]model.PaymentNotification, error) {
	const q = `SELECT external_txn_id, description, amount, direction, counterparty_account, reference, received_at
	           FROM bank_transactions
	           WHERE direction = 'IN' AND matched_order_code IS NULL AND received_at >= ?
	           ORDER BY received_at DESC LIMIT 100`
	rows, err := r.db.QueryContext(ctx, q, since.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []model.PaymentNotification
	for rows.Next() {
		var n model.PaymentNotification
		var ref sql.NullString
		if err := rows.Scan(&n.ExternalTxnID, &n.Description, &n.Amount, &n.Direction,
			&n.CounterpartyAccount, &ref, &n.ReceivedAt); err != nil {
			return nil, err
		}
		if ref.Valid {
			n.Reference = ref.String
		}
		txns = append(txns, n)
	}
	return txns, rows.Err()
}
