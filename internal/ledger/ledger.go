// Package ledger defines the transport capability the pointer refresher submits
// mutations through, with an in-process implementation and a Stellar Soroban one.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRejected is returned when the network accepted the submission but the mutation failed
	ErrRejected = errors.New("transaction rejected")

	// ErrBudgetExceeded is returned when a mutation needs more resources than its ceiling allows
	ErrBudgetExceeded = errors.New("resource budget exceeded")

	// ErrUnknownReceipt is returned when confirming a receipt this ledger never issued
	ErrUnknownReceipt = errors.New("unknown receipt")
)

// Fee is the network's current price for including one mutation
type Fee struct {
	Inclusion    int64  // Inclusion fee per operation, in the network's smallest unit
	LatestLedger uint32 // Ledger the estimate was taken at, zero when unknown
}

// Mutation is a pointer update for one identity
type Mutation struct {
	IdentityID      uint64
	Pointer         string
	Caller          string
	MaxFee          int64  // Inclusion fee to offer, already capped by the caller
	MaxInstructions uint32 // Resource ceiling; zero means the transport default
}

// Receipt identifies a submitted mutation
type Receipt struct {
	Hash        string
	Status      string
	SubmittedAt time.Time
}

// Confirmation describes a mutation that was applied
type Confirmation struct {
	Hash        string
	Ledger      uint32
	FeeCharged  int64
	ConfirmedAt time.Time
}

// Ledger is the transport capability: estimate, submit, confirm
type Ledger interface {
	// EstimateFee returns current fee conditions
	EstimateFee(ctx context.Context) (Fee, error)

	// Submit proposes the mutation to the network
	Submit(ctx context.Context, mutation Mutation) (Receipt, error)

	// AwaitConfirmation blocks until the submitted mutation is applied or failed
	AwaitConfirmation(ctx context.Context, receipt Receipt) (Confirmation, error)
}
