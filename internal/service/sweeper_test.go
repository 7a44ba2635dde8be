package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-settlement/internal/model"
)

type fakeSweeperStore struct {
	expired    []model.Order
	findErr    error
	cancelErrs map[string]error
	cancelled  []string
}

func (f *fakeSweeperStore) FindExpiredPending(_ context.Context, _ time.Time, _ int) ([]model.Order, error) {
	return f.expired, f.findErr
}

func (f *fakeSweeperStore) Cancel(_ context.Context, code string) error {
	if err := f.cancelErrs[code]; err != nil {
		return err
	}
	f.cancelled = append(f.cancelled, code)
	return nil
}

func TestSweepOnceReleasesExpiredOrders(t *testing.T) {
	store := &fakeSweeperStore{expired: []model.Order{
		{PublicCode: "ONLAAAA23"},
		{PublicCode: "ONLBBBB23"},
	}}
	s := NewSweeper(store, 10*time.Minute, time.Minute)

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"ONLAAAA23", "ONLBBBB23"}, store.cancelled)
}

func TestSweepOnceSkipsOrdersSettledInBetween(t *testing.T) {
	// A payment landed between the query and the cancel; the sweep must not
	// count it and must keep going.
	store := &fakeSweeperStore{
		expired: []model.Order{
			{PublicCode: "ONLWON234"},
			{PublicCode: "ONLEXP234"},
		},
		cancelErrs: map[string]error{"ONLWON234": model.ErrAlreadySettled},
	}
	s := NewSweeper(store, 10*time.Minute, time.Minute)

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"ONLEXP234"}, store.cancelled)
}

func TestSweepOnceQueryFailure(t *testing.T) {
	store := &fakeSweeperStore{findErr: assert.AnError}
	s := NewSweeper(store, 10*time.Minute, time.Minute)

	_, err := s.SweepOnce(context.Background())
	assert.Error(t, err)
}
