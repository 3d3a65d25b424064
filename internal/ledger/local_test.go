package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSetter struct {
	pointers map[uint64]string
	err      error
}

func (f *fakeSetter) SetPointer(ctx context.Context, caller string, id uint64, pointer string) error {
	if f.err != nil {
		return f.err
	}
	f.pointers[id] = pointer
	return nil
}

func TestLocal_SubmitAndConfirm(t *testing.T) {
	setter := &fakeSetter{pointers: map[uint64]string{}}
	l := NewLocal(setter, 100)
	ctx := context.Background()

	fee, err := l.EstimateFee(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), fee.Inclusion)
	assert.Equal(t, uint32(0), fee.LatestLedger)

	receipt, err := l.Submit(ctx, Mutation{IdentityID: 7, Pointer: "ipfs://a?v=1", Caller: "GOWNER", MaxFee: 150})
	require.NoError(t, err)
	assert.Len(t, receipt.Hash, 32)
	assert.Equal(t, "ipfs://a?v=1", setter.pointers[7])

	confirmation, err := l.AwaitConfirmation(ctx, receipt)
	require.NoError(t, err)
	assert.Equal(t, receipt.Hash, confirmation.Hash)
	assert.Equal(t, uint32(1), confirmation.Ledger)
	assert.Equal(t, int64(100), confirmation.FeeCharged)

	fee, err = l.EstimateFee(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), fee.LatestLedger)

	// Receipts are consumed on confirmation
	_, err = l.AwaitConfirmation(ctx, receipt)
	assert.ErrorIs(t, err, ErrUnknownReceipt)
}

func TestLocal_FeeBelowNetworkFee(t *testing.T) {
	setter := &fakeSetter{pointers: map[uint64]string{}}
	l := NewLocal(setter, 100)

	_, err := l.Submit(context.Background(), Mutation{IdentityID: 1, Pointer: "p", MaxFee: 99})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Empty(t, setter.pointers)
}

func TestLocal_StoreFailureSurfacesOnConfirmation(t *testing.T) {
	denied := errors.New("permission denied")
	l := NewLocal(&fakeSetter{err: denied}, 0)
	ctx := context.Background()

	receipt, err := l.Submit(ctx, Mutation{IdentityID: 1, Pointer: "p"})
	require.NoError(t, err)

	_, err = l.AwaitConfirmation(ctx, receipt)
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorIs(t, err, denied)
}

func TestLocal_CancelledContext(t *testing.T) {
	l := NewLocal(&fakeSetter{pointers: map[uint64]string{}}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Submit(ctx, Mutation{IdentityID: 1, Pointer: "p"})
	assert.ErrorIs(t, err, context.Canceled)
}
