package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PointerSetter is the slice of the identity store the local ledger applies mutations to
type PointerSetter interface {
	SetPointer(ctx context.Context, caller string, id uint64, pointer string) error
}

type localResult struct {
	confirmation Confirmation
	err          error
}

// Local is an in-process ledger that applies mutations straight to the identity store.
// Each applied mutation closes one ledger.
type Local struct {
	store PointerSetter
	fee   int64

	mu       sync.Mutex
	sequence uint32
	results  map[string]localResult
}

// NewLocal creates a Local ledger charging a flat fee
func NewLocal(store PointerSetter, fee int64) *Local {
	return &Local{
		store:   store,
		fee:     fee,
		results: make(map[string]localResult),
	}
}

// EstimateFee returns the flat fee
func (l *Local) EstimateFee(ctx context.Context) (Fee, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Fee{Inclusion: l.fee, LatestLedger: l.sequence}, nil
}

// Submit applies the mutation and records its outcome under a fresh hash
func (l *Local) Submit(ctx context.Context, mutation Mutation) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if mutation.MaxFee < l.fee {
		return Receipt{}, fmt.Errorf("%w: fee %d below network fee %d", ErrRejected, mutation.MaxFee, l.fee)
	}

	hash := strings.ReplaceAll(uuid.NewString(), "-", "")
	err := l.store.SetPointer(ctx, mutation.Caller, mutation.IdentityID, mutation.Pointer)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	if err != nil {
		l.results[hash] = localResult{err: fmt.Errorf("%w: %w", ErrRejected, err)}
	} else {
		l.sequence++
		l.results[hash] = localResult{confirmation: Confirmation{
			Hash:        hash,
			Ledger:      l.sequence,
			FeeCharged:  l.fee,
			ConfirmedAt: now,
		}}
	}

	return Receipt{Hash: hash, Status: "PENDING", SubmittedAt: now}, nil
}

// AwaitConfirmation returns the recorded outcome
func (l *Local) AwaitConfirmation(ctx context.Context, receipt Receipt) (Confirmation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	result, ok := l.results[receipt.Hash]
	if !ok {
		return Confirmation{}, fmt.Errorf("%w: %s", ErrUnknownReceipt, receipt.Hash)
	}
	delete(l.results, receipt.Hash)
	return result.confirmation, result.err
}
