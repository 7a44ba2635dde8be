package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
)

// fakeCreator scripts the store interactions of the minter.  existing holds
// codes the uniqueness probe reports as taken; createErrs is consumed one
// error per CreatePending call.
type fakeCreator struct {
	mu          sync.Mutex
	existing    map[string]bool
	alwaysTaken bool
	createErrs  []error
	created     []*model.Order
}

func (f *fakeCreator) CodeExists(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alwaysTaken {
		return true, nil
	}
	return f.existing[code], nil
}

func (f *fakeCreator) CreatePending(_ context.Context, o *model.Order, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}
	f.created = append(f.created, o)
	return nil
}

func TestCreateOrderMintsPrefixedCode(t *testing.T) {
	store := &fakeCreator{}
	m := NewMinter(store, BankDetails{BankCode: "970436", Account: "123456789"}, 5, 6, 10*time.Minute)

	o, err := m.CreateOrder(context.Background(), CreateOrderRequest{
		ShowtimeID:  7,
		SeatIDs:     []uint64{1, 2},
		TotalAmount: 150000,
		Origin:      model.ChannelSelfService,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(o.PublicCode, model.PrefixSelfService))
	assert.Len(t, o.PublicCode, len(model.PrefixSelfService)+6)
	for _, ch := range o.PublicCode[len(model.PrefixSelfService):] {
		assert.Contains(t, codeAlphabet, string(ch))
	}
	require.Len(t, store.created, 1)
}

func TestCreateOrderCounterChannelPrefix(t *testing.T) {
	store := &fakeCreator{}
	m := NewMinter(store, BankDetails{}, 5, 6, 10*time.Minute)

	o, err := m.CreateOrder(context.Background(), CreateOrderRequest{
		ShowtimeID:  7,
		SeatIDs:     []uint64{3},
		TotalAmount: 90000,
		Origin:      model.ChannelCounter,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(o.PublicCode, model.PrefixCounter))
}

func TestCreateOrderRetriesOnDuplicateCode(t *testing.T) {
	store := &fakeCreator{createErrs: []error{model.ErrDuplicateCode}}
	m := NewMinter(store, BankDetails{}, 5, 6, 10*time.Minute)

	o, err := m.CreateOrder(context.Background(), CreateOrderRequest{
		ShowtimeID:  1,
		SeatIDs:     []uint64{1},
		TotalAmount: 1000,
		Origin:      model.ChannelSelfService,
	})
	require.NoError(t, err)
	// The retry widens the suffix by one character.
	assert.Len(t, o.PublicCode, len(model.PrefixSelfService)+7)
	require.Len(t, store.created, 1)
}

func TestCreateOrderGivesUpAfterMaxAttempts(t *testing.T) {
	store := &fakeCreator{alwaysTaken: true}
	m := NewMinter(store, BankDetails{}, 3, 6, 10*time.Minute)

	_, err := m.CreateOrder(context.Background(), CreateOrderRequest{
		ShowtimeID:  1,
		SeatIDs:     []uint64{1},
		TotalAmount: 1000,
	})
	assert.ErrorIs(t, err, model.ErrIdentifierSpaceExhausted)
	assert.Empty(t, store.created)
}

func TestCreateOrderSeatConflictDoesNotRetry(t *testing.T) {
	store := &fakeCreator{createErrs: []error{model.ErrSeatUnavailable}}
	m := NewMinter(store, BankDetails{}, 5, 6, 10*time.Minute)

	_, err := m.CreateOrder(context.Background(), CreateOrderRequest{
		ShowtimeID:  1,
		SeatIDs:     []uint64{1},
		TotalAmount: 1000,
	})
	assert.ErrorIs(t, err, model.ErrSeatUnavailable)
	// The conflict surfaced on the first persist and nothing was stored.
	assert.Empty(t, store.created)
}

func TestPaymentPayloadRegeneratable(t *testing.T) {
	m := NewMinter(&fakeCreator{}, BankDetails{BankCode: "970436", Account: "0011223344"}, 5, 6, 10*time.Minute)
	o := &model.Order{PublicCode: "ONLABC234", TotalAmount: 250000}

	p1 := m.PaymentPayload(o)
	p2 := m.PaymentPayload(o)
	assert.Equal(t, p1, p2)
	assert.Equal(t, "ONLABC234", p1.TransferMemo)
	assert.Equal(t, int64(250000), p1.Amount)
	assert.Equal(t, "https://img.vietqr.io/image/970436-0011223344-compact2.png?amount=250000&addInfo=ONLABC234", p1.QRImageURL)
}

// casCreator grants the seat to exactly one order, the way the conditional
// UPDATE does in MySQL.
type casCreator struct {
	mu    sync.Mutex
	taken bool
	codes map[string]bool
}

func (f *casCreator) CodeExists(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[code], nil
}

func (f *casCreator) CreatePending(_ context.Context, o *model.Order, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.codes[o.PublicCode] {
		return model.ErrDuplicateCode
	}
	if f.taken {
		return model.ErrSeatUnavailable
	}
	f.taken = true
	f.codes[o.PublicCode] = true
	return nil
}

func TestConcurrentHoldsSingleWinner(t *testing.T) {
	store := &casCreator{codes: map[string]bool{}}
	m := NewMinter(store, BankDetails{}, 5, 6, 10*time.Minute)

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CreateOrder(context.Background(), CreateOrderRequest{
				ShowtimeID:  1,
				SeatIDs:     []uint64{42},
				TotalAmount: 1000,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, model.ErrSeatUnavailable)
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)
}
