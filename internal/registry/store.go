// Package registry implements the identity store: creation of agent identities,
// ownership-gated pointer and metadata mutation, delegation and transfer.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agentregistry/internal/access"
	"agentregistry/internal/metrics"
	"agentregistry/internal/models"
	"agentregistry/internal/storage"
)

// EventSink receives every event the store emits after a successful mutation
type EventSink interface {
	ProcessEvent(ctx context.Context, event *models.RegistryEvent)
}

// Store owns all identity state. Mutations are serialized so that the
// authorization check and the write it guards observe the same record.
type Store struct {
	repository storage.Repository
	sink       EventSink
	now        func() time.Time

	mu sync.Mutex // Serializes writers
}

// NewStore creates a Store backed by repository. sink may be nil.
func NewStore(repository storage.Repository, sink EventSink) *Store {
	return &Store{
		repository: repository,
		sink:       sink,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a new identity owned by caller and returns its id
func (s *Store) Create(ctx context.Context, caller, pointer string) (uint64, error) {
	if pointer == "" {
		return 0, fmt.Errorf("%w: pointer must not be empty", ErrValidation)
	}
	if caller == "" {
		return 0, fmt.Errorf("%w: caller must not be empty", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	identity, err := s.repository.CreateIdentity(ctx, caller, pointer, at)
	if err != nil {
		return 0, fmt.Errorf("failed to create identity: %w", err)
	}

	slog.Info("Registry: Identity created",
		"identity_id", identity.ID,
		"owner", caller,
		"pointer", pointer,
	)

	s.emit(ctx, &models.RegistryEvent{
		Type:       models.EventCreated,
		IdentityID: identity.ID,
		Pointer:    pointer,
		Owner:      caller,
		Timestamp:  at,
	})

	return identity.ID, nil
}

// TransferOwnership moves id to newOwner and clears its single approval.
// Operator grants are keyed by owner and are left untouched.
func (s *Store) TransferOwnership(ctx context.Context, caller string, id uint64, newOwner string) error {
	if newOwner == "" {
		return fmt.Errorf("%w: new owner must not be empty", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	identity, err := s.authorize(ctx, caller, id, access.Transfer)
	if err != nil {
		return err
	}

	at := s.now()
	if err := s.repository.UpdateOwner(ctx, id, newOwner, at); err != nil {
		return fmt.Errorf("failed to transfer identity: %w", err)
	}

	slog.Info("Registry: Ownership transferred",
		"identity_id", id,
		"from", identity.Owner,
		"to", newOwner,
		"caller", caller,
	)

	s.emit(ctx, &models.RegistryEvent{
		Type:       models.EventTransferred,
		IdentityID: id,
		Owner:      newOwner,
		Previous:   identity.Owner,
		Timestamp:  at,
	})

	return nil
}

// SetPointer overwrites the descriptor location of id
func (s *Store) SetPointer(ctx context.Context, caller string, id uint64, pointer string) error {
	if pointer == "" {
		return fmt.Errorf("%w: pointer must not be empty", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.authorize(ctx, caller, id, access.Pointer); err != nil {
		return err
	}

	at := s.now()
	if err := s.repository.UpdatePointer(ctx, id, pointer, at); err != nil {
		return fmt.Errorf("failed to update pointer: %w", err)
	}

	slog.Info("Registry: Pointer updated",
		"identity_id", id,
		"pointer", pointer,
		"caller", caller,
	)

	s.emit(ctx, &models.RegistryEvent{
		Type:       models.EventPointerUpdated,
		IdentityID: id,
		Pointer:    pointer,
		Timestamp:  at,
	})

	return nil
}

// SetMetadata writes value under key for id. The single approved principal
// may update the pointer but not metadata.
func (s *Store) SetMetadata(ctx context.Context, caller string, id uint64, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("%w: metadata key must not be empty", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.authorize(ctx, caller, id, access.Metadata); err != nil {
		return err
	}

	at := s.now()
	if err := s.repository.SetMetadata(ctx, id, key, value, at); err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}

	slog.Info("Registry: Metadata set",
		"identity_id", id,
		"key", key,
		"bytes", len(value),
		"caller", caller,
	)

	stored := make([]byte, len(value))
	copy(stored, value)
	s.emit(ctx, &models.RegistryEvent{
		Type:       models.EventMetadataSet,
		IdentityID: id,
		Key:        key,
		Value:      stored,
		Timestamp:  at,
	})

	return nil
}

// GetMetadata returns the value stored under key, or an empty value when unset
func (s *Store) GetMetadata(ctx context.Context, id uint64, key string) ([]byte, error) {
	value, _, err := s.LookupMetadata(ctx, id, key)
	return value, err
}

// LookupMetadata is GetMetadata plus whether key was ever written. A key set to
// an empty value reports set.
func (s *Store) LookupMetadata(ctx context.Context, id uint64, key string) ([]byte, bool, error) {
	value, set, err := s.repository.GetMetadata(ctx, id, key)
	if err != nil {
		return nil, false, err
	}
	if value == nil {
		value = []byte{}
	}
	return value, set, nil
}

// Approve sets the single approved principal for id. An empty principal clears it.
func (s *Store) Approve(ctx context.Context, caller string, id uint64, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, err := s.authorize(ctx, caller, id, access.Approve)
	if err != nil {
		return err
	}
	if principal != "" && principal == identity.Owner {
		return fmt.Errorf("%w: cannot approve the current owner", ErrValidation)
	}

	at := s.now()
	if err := s.repository.SetApproved(ctx, id, principal, at); err != nil {
		return fmt.Errorf("failed to set approval: %w", err)
	}

	s.emit(ctx, &models.RegistryEvent{
		Type:       models.EventApproval,
		IdentityID: id,
		Owner:      identity.Owner,
		Operator:   principal,
		Timestamp:  at,
	})

	return nil
}

// SetApprovalForAll grants or revokes operator rights over every identity caller owns
func (s *Store) SetApprovalForAll(ctx context.Context, caller, operator string, enabled bool) error {
	if caller == "" || operator == "" {
		return fmt.Errorf("%w: caller and operator must not be empty", ErrValidation)
	}
	if caller == operator {
		return fmt.Errorf("%w: cannot set self as operator", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repository.SetOperator(ctx, caller, operator, enabled); err != nil {
		return fmt.Errorf("failed to set operator: %w", err)
	}

	s.emit(ctx, &models.RegistryEvent{
		Type:      models.EventApprovalForAll,
		Owner:     caller,
		Operator:  operator,
		Enabled:   enabled,
		Timestamp: s.now(),
	})

	return nil
}

// Get returns the full identity record
func (s *Store) Get(ctx context.Context, id uint64) (*models.Identity, error) {
	return s.repository.GetIdentity(ctx, id)
}

// OwnerOf returns the current owner of id
func (s *Store) OwnerOf(ctx context.Context, id uint64) (string, error) {
	identity, err := s.repository.GetIdentity(ctx, id)
	if err != nil {
		return "", err
	}
	return identity.Owner, nil
}

// GetApproved returns the single approved principal of id, empty when none
func (s *Store) GetApproved(ctx context.Context, id uint64) (string, error) {
	identity, err := s.repository.GetIdentity(ctx, id)
	if err != nil {
		return "", err
	}
	return identity.Approved, nil
}

// IsApprovedForAll reports whether operator acts for all of owner's identities
func (s *Store) IsApprovedForAll(ctx context.Context, owner, operator string) (bool, error) {
	return s.repository.IsOperator(ctx, owner, operator)
}

// NextID returns the id the next Create will assign
func (s *Store) NextID(ctx context.Context) (uint64, error) {
	return s.repository.NextIdentityID(ctx)
}

// authorize loads id and checks caller against class. Must be called with s.mu held.
func (s *Store) authorize(ctx context.Context, caller string, id uint64, class access.Class) (*models.Identity, error) {
	identity, err := s.repository.GetIdentity(ctx, id)
	if err != nil {
		return nil, err
	}

	isOperator := false
	if caller != "" && caller != identity.Owner {
		isOperator, err = s.repository.IsOperator(ctx, identity.Owner, caller)
		if err != nil {
			return nil, fmt.Errorf("failed to check operator: %w", err)
		}
	}

	if err := access.Check(identity, caller, class, isOperator); err != nil {
		metrics.PermissionDenied.WithLabelValues(string(class)).Inc()
		slog.Warn("Registry: Permission denied",
			"identity_id", id,
			"caller", caller,
			"class", class,
		)
		return nil, err
	}

	return identity, nil
}

func (s *Store) emit(ctx context.Context, event *models.RegistryEvent) {
	if s.sink == nil {
		return
	}
	s.sink.ProcessEvent(ctx, event)
}
