package service

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
)

// Ledger is the read-only slice of the booking ledger the matcher uses.
type Ledger interface {
	FindByCodePattern(ctx context.Context, code string) (*model.Order, error)
	FindByAmountAndRecency(ctx context.Context, maxTotal int64, since *time.Time) ([]model.Order, error)
}

// MatchKind describes how (or whether) a notification was resolved.
type MatchKind int

const (
	// MatchNone means no order could be resolved.  The notification is
	// acknowledged and discarded; this is not an error.
	MatchNone MatchKind = iota
	// MatchByReference resolved via the provider's explicit reference field.
	MatchByReference
	// MatchByDescription resolved via a code found in the free-text description.
	MatchByDescription
	// MatchByAmount resolved via the amount/recency fallback.
	MatchByAmount
	// MatchTerminal resolved to an order already in a terminal state; the
	// redelivery is acknowledged as a no-op.
	MatchTerminal
)

// MatchPolicy carries the tuning knobs of fallback matching.  Both values
// are configuration, not business constants: see MATCH_SHORTFALL_PCT and
// MATCH_RECENCY_WINDOW_MIN.
type MatchPolicy struct {
	// ShortfallPct is the fraction of the order total a payment may fall
	// short by and still count as payment-in-full, e.g. 0.05 for 5%.
	ShortfallPct float64
	// RecencyWindow bounds the narrowed amount-fallback search.
	RecencyWindow time.Duration
}

// Matcher resolves payment notifications to pending orders.  It never
// mutates order or seat state; settlement is someone else's job.
type Matcher struct {
	ledger Ledger
	policy MatchPolicy
	codeRE *regexp.Regexp
}

// NewMatcher constructs a Matcher.  The code pattern is built from the
// known prefixes so a new channel prefix automatically becomes scannable.
func NewMatcher(ledger Ledger, policy MatchPolicy) *Matcher {
	pattern := `(?i)\b(?:` + strings.Join(model.KnownCodePrefixes, "|") + `)[A-Z0-9]{4,16}\b`
	return &Matcher{
		ledger: ledger,
		policy: policy,
		codeRE: regexp.MustCompile(pattern),
	}
}

// ExtractOrderCode scans free text for the first thing shaped like an order
// code and returns it upper-cased, or "" when nothing matches.
func (m *Matcher) ExtractOrderCode(text string) string {
	found := m.codeRE.FindString(text)
	return strings.ToUpper(found)
}

// Sufficient reports whether a paid amount covers an order total under the
// policy: equal or overpaying always does, and a shortfall is tolerated up
// to ShortfallPct of the total.
func (m *Matcher) Sufficient(total, amount int64) bool {
	if amount >= total {
		return true
	}
	floor := float64(total) * (1 - m.policy.ShortfallPct)
	return float64(amount) >= floor
}

// Resolve runs the resolution pipeline for one notification:
//
//  1. explicit reference field, treated as the candidate code
//  2. description scan for known code shapes
//  3. direct lookup of the candidate
//  4. amount fallback, first unscoped then narrowed to the recency window
//  5. no match
//
// Outbound transactions never match.  A candidate that resolves to a
// terminal order returns (order, MatchTerminal) so the caller can
// acknowledge the redelivery without settling again.  An identified order
// whose amount is outside the tolerance band is treated as no match rather
// than an error.
func (m *Matcher) Resolve(ctx context.Context, n model.PaymentNotification) (*model.Order, MatchKind, error) {
	if n.Direction == model.TxnOut {
		return nil, MatchNone, nil
	}

	candidate := strings.ToUpper(strings.TrimSpace(n.Reference))
	kind := MatchByReference
	if candidate == "" {
		candidate = m.ExtractOrderCode(n.Description)
		kind = MatchByDescription
	}

	if candidate != "" {
		o, err := m.ledger.FindByCodePattern(ctx, candidate)
		switch {
		case errors.Is(err, model.ErrOrderNotFound):
			// Candidate did not resolve; fall through to amount matching.
		case err != nil:
			return nil, MatchNone, err
		case o.Status.Terminal():
			return o, MatchTerminal, nil
		case m.Sufficient(o.TotalAmount, n.Amount):
			return o, kind, nil
		default:
			log.Printf("matcher: order %s identified by txn %s but amount %d is outside tolerance of total %d",
				o.PublicCode, n.ExternalTxnID, n.Amount, o.TotalAmount)
			return nil, MatchNone, nil
		}
	}

	o, err := m.resolveByAmount(ctx, n)
	if err != nil || o == nil {
		return nil, MatchNone, err
	}
	return o, MatchByAmount, nil
}

// resolveByAmount implements step 4.  maxTotal is the largest order total
// the notified amount could still cover under the shortfall tolerance.
func (m *Matcher) resolveByAmount(ctx context.Context, n model.PaymentNotification) (*model.Order, error) {
	maxTotal := n.Amount
	if m.policy.ShortfallPct > 0 && m.policy.ShortfallPct < 1 {
		maxTotal = int64(float64(n.Amount) / (1 - m.policy.ShortfallPct))
	}

	unscoped, err := m.ledger.FindByAmountAndRecency(ctx, maxTotal, nil)
	if err != nil {
		return nil, err
	}
	covered := filterSufficient(m, unscoped, n.Amount)
	if len(covered) == 1 {
		return &covered[0], nil
	}

	// Zero or ambiguous: narrow to the recent window and prefer the most
	// recently created order.  The ledger already sorts newest first.
	since := time.Now().UTC().Add(-m.policy.RecencyWindow)
	recent, err := m.ledger.FindByAmountAndRecency(ctx, maxTotal, &since)
	if err != nil {
		return nil, err
	}
	covered = filterSufficient(m, recent, n.Amount)
	if len(covered) == 0 {
		return nil, nil
	}
	return &covered[0], nil
}

func filterSufficient(m *Matcher, orders []model.Order, amount int64) []model.Order {
	out := orders[:0:0]
	for _, o := range orders {
		if o.Status == model.OrderPending && m.Sufficient(o.TotalAmount, amount) {
			out = append(out, o)
		}
	}
	return out
}
