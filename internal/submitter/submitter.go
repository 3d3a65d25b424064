// Package submitter performs one pointer refresh: it derives a fresh pointer from the
// base, prices the mutation against current fee conditions, submits it and waits for
// the outcome.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"agentregistry/internal/ledger"
	"agentregistry/internal/metrics"

	"github.com/google/uuid"
)

// ErrTransactionFailure wraps every failure of a refresh run
var ErrTransactionFailure = errors.New("transaction failure")

// Outcome of a refresh run
type Outcome string

const (
	OutcomeConfirmed     Outcome = "confirmed"
	OutcomeFailed        Outcome = "failed"
	OutcomeNotConfigured Outcome = "not_configured"
)

// TokenParam is the query parameter carrying the cache-busting token
const TokenParam = "v"

// Config describes the record a Submitter keeps fresh
type Config struct {
	IdentityID      uint64
	BasePointer     string
	Caller          string
	MaxFee          int64  // Ceiling on the inclusion fee; zero means no ceiling
	MaxInstructions uint32 // Resource ceiling handed to the transport
}

// Result reports one refresh run
type Result struct {
	RunID        string
	Outcome      Outcome
	Pointer      string
	Fee          int64
	Receipt      ledger.Receipt
	Confirmation ledger.Confirmation
	Err          error
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Submitter refreshes one identity's pointer through a ledger transport
type Submitter struct {
	ledger ledger.Ledger
	config Config
	now    func() time.Time

	mu        sync.Mutex
	lastToken int64
}

// New creates a Submitter
func New(transport ledger.Ledger, config Config) *Submitter {
	return &Submitter{
		ledger: transport,
		config: config,
		now:    time.Now,
	}
}

// Refresh runs estimate, submit and confirm once. It never returns an error
// and never panics: failures are logged and reported in the Result.
func (s *Submitter) Refresh(ctx context.Context) (result Result) {
	result = Result{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			result.Outcome = OutcomeFailed
			result.Err = fmt.Errorf("%w: panic during refresh: %v", ErrTransactionFailure, r)
		}
		result.FinishedAt = s.now().UTC()
		s.record(result)
	}()

	result.Pointer = s.nextPointer()

	fee, err := s.ledger.EstimateFee(ctx)
	if err != nil {
		return s.fail(result, fmt.Errorf("failed to estimate fee: %w", err))
	}
	result.Fee = s.capFee(fee.Inclusion)

	receipt, err := s.ledger.Submit(ctx, ledger.Mutation{
		IdentityID:      s.config.IdentityID,
		Pointer:         result.Pointer,
		Caller:          s.config.Caller,
		MaxFee:          result.Fee,
		MaxInstructions: s.config.MaxInstructions,
	})
	if err != nil {
		return s.fail(result, fmt.Errorf("failed to submit pointer update: %w", err))
	}
	result.Receipt = receipt

	confirmation, err := s.ledger.AwaitConfirmation(ctx, receipt)
	if err != nil {
		return s.fail(result, fmt.Errorf("failed to confirm pointer update: %w", err))
	}
	result.Confirmation = confirmation
	result.Outcome = OutcomeConfirmed

	return result
}

func (s *Submitter) fail(result Result, err error) Result {
	result.Outcome = OutcomeFailed
	result.Err = fmt.Errorf("%w: %w", ErrTransactionFailure, err)
	return result
}

func (s *Submitter) record(result Result) {
	metrics.SyncRuns.WithLabelValues(string(result.Outcome)).Inc()
	metrics.SyncSubmissionDuration.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())

	if result.Outcome != OutcomeConfirmed {
		slog.Error("Submitter: Pointer refresh failed",
			"run_id", result.RunID,
			"identity_id", s.config.IdentityID,
			"pointer", result.Pointer,
			"fee", result.Fee,
			"hash", result.Receipt.Hash,
			"error", result.Err,
		)
		return
	}

	metrics.SyncLastFee.Set(float64(result.Fee))
	metrics.SyncLastSuccess.Set(float64(result.FinishedAt.Unix()))

	slog.Info("Submitter: Pointer refreshed",
		"run_id", result.RunID,
		"identity_id", s.config.IdentityID,
		"pointer", result.Pointer,
		"fee", result.Fee,
		"hash", result.Confirmation.Hash,
		"ledger", result.Confirmation.Ledger,
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)
}

// capFee applies the configured ceiling to the network estimate
func (s *Submitter) capFee(estimate int64) int64 {
	if s.config.MaxFee > 0 && estimate > s.config.MaxFee {
		slog.Warn("Submitter: Network fee above ceiling, offering ceiling",
			"estimate", estimate,
			"max_fee", s.config.MaxFee,
		)
		return s.config.MaxFee
	}
	return estimate
}

// nextPointer returns the base pointer with a token strictly greater than the last one issued
func (s *Submitter) nextPointer() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.now().Unix()
	if token <= s.lastToken {
		token = s.lastToken + 1
	}
	s.lastToken = token

	return WithToken(s.config.BasePointer, token)
}

// WithToken appends the cache-busting token to base
func WithToken(base string, token int64) string {
	separator := "?"
	switch {
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		separator = ""
	case strings.Contains(base, "?"):
		separator = "&"
	}
	return base + separator + TokenParam + "=" + strconv.FormatInt(token, 10)
}
