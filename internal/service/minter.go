// Package service contains the booking-and-settlement core: order minting,
// payment-notification matching, settlement and the hold-expiry sweep.  The
// components here depend on small interfaces implemented by the repository
// layer so the logic stays testable without a database.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
)

// codeAlphabet is the suffix alphabet for minted order codes.  Easily
// confused characters (I, L, O, U and their lookalikes) are excluded because
// payers retype these codes into transfer descriptions by hand.
const codeAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ23456789"

// OrderCreator is the slice of the store the minter needs: uniqueness
// probing plus the atomic insert-and-hold.
type OrderCreator interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	CreatePending(ctx context.Context, o *model.Order, heldUntil time.Time) error
}

// CreateOrderRequest carries everything fixed at order creation.  Amounts
// and point figures are validated upstream (pricing and eligibility are the
// catalog's and the loyalty service's concern) and never re-derived here.
type CreateOrderRequest struct {
	ShowtimeID      uint64
	SeatIDs         []uint64
	TotalAmount     int64
	MemberAccountID *uint64
	VoucherID       *string
	PointsRedeemed  int64
	PointsEarned    int64
	Origin          model.OriginChannel
}

// PaymentPayload is the presentation data a client needs to pay a pending
// order: the code to quote, the amount, the transfer memo and a scannable
// QR image.  It is derived from the order alone and can be regenerated any
// number of times.
type PaymentPayload struct {
	OrderCode    string `json:"order_code"`
	Amount       int64  `json:"amount"`
	BankCode     string `json:"bank_code"`
	BankAccount  string `json:"bank_account"`
	TransferMemo string `json:"transfer_memo"`
	QRImageURL   string `json:"qr_image_url"`
}

// BankDetails identifies the receiving account embedded in payment
// payloads.
type BankDetails struct {
	BankCode string
	Account  string
}

// Minter creates pending orders with collision-free public codes.  Code
// generation is a bounded loop: each retry widens the random suffix by one
// character, and when every attempt collides the minter gives up with
// model.ErrIdentifierSpaceExhausted instead of spinning.
type Minter struct {
	store       OrderCreator
	bank        BankDetails
	maxAttempts int
	suffixLen   int
	holdTTL     time.Duration
}

// NewMinter constructs a Minter.  maxAttempts and suffixLen guard the
// minting loop; holdTTL bounds how long created orders keep their seats.
func NewMinter(store OrderCreator, bank BankDetails, maxAttempts, suffixLen int, holdTTL time.Duration) *Minter {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if suffixLen < 4 {
		suffixLen = 4
	}
	return &Minter{store: store, bank: bank, maxAttempts: maxAttempts, suffixLen: suffixLen, holdTTL: holdTTL}
}

// CreateOrder mints a code, persists the order and holds its seats in one
// shot.  A seat that is no longer available surfaces immediately as
// model.ErrSeatUnavailable without retrying, because retrying cannot help
// the caller; only code collisions are retried.
func (m *Minter) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	prefix := model.PrefixFor(req.Origin)
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		suffix, err := randomCode(m.suffixLen + attempt)
		if err != nil {
			return nil, err
		}
		code := prefix + suffix
		taken, err := m.store.CodeExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}
		o := &model.Order{
			PublicCode:      code,
			TotalAmount:     req.TotalAmount,
			ShowtimeID:      req.ShowtimeID,
			SeatIDs:         req.SeatIDs,
			MemberAccountID: req.MemberAccountID,
			VoucherID:       req.VoucherID,
			PointsRedeemed:  req.PointsRedeemed,
			PointsEarned:    req.PointsEarned,
			Origin:          req.Origin,
		}
		err = m.store.CreatePending(ctx, o, time.Now().UTC().Add(m.holdTTL))
		if errors.Is(err, model.ErrDuplicateCode) {
			// Lost the uniqueness race after the probe; mint again.
			continue
		}
		if err != nil {
			return nil, err
		}
		return o, nil
	}
	return nil, model.ErrIdentifierSpaceExhausted
}

// PaymentPayload builds the display payload for a pending order.  The memo
// is simply the public code: it is what the description scanner looks for
// when the bank notification comes back.
func (m *Minter) PaymentPayload(o *model.Order) PaymentPayload {
	memo := o.PublicCode
	qr := fmt.Sprintf("https://img.vietqr.io/image/%s-%s-compact2.png?amount=%d&addInfo=%s",
		m.bank.BankCode, m.bank.Account, o.TotalAmount, url.QueryEscape(memo))
	return PaymentPayload{
		OrderCode:    o.PublicCode,
		Amount:       o.TotalAmount,
		BankCode:     m.bank.BankCode,
		BankAccount:  m.bank.Account,
		TransferMemo: memo,
		QRImageURL:   qr,
	}
}

// randomCode returns n characters drawn from codeAlphabet using
// cryptographically secure randomness.
func randomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}
