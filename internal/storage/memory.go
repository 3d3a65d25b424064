package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentregistry/internal/models"
)

type metadataKey struct {
	id  uint64
	key string
}

type operatorKey struct {
	owner    string
	operator string
}

// MemoryRepository implements the Repository interface in process memory
type MemoryRepository struct {
	mu         sync.RWMutex
	nextID     uint64
	identities map[uint64]*models.Identity
	operators  map[operatorKey]bool
	metadata   map[metadataKey][]byte
	events     map[uint64][]models.RegistryEvent
}

// NewMemoryRepository creates an empty in-memory repository. The first id assigned is 1.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextID:     1,
		identities: make(map[uint64]*models.Identity),
		operators:  make(map[operatorKey]bool),
		metadata:   make(map[metadataKey][]byte),
		events:     make(map[uint64][]models.RegistryEvent),
	}
}

// CreateIdentity stores a new identity under the next id
func (r *MemoryRepository) CreateIdentity(ctx context.Context, owner, pointer string, at time.Time) (*models.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity := &models.Identity{
		ID:        r.nextID,
		Owner:     owner,
		Pointer:   pointer,
		CreatedAt: at,
		UpdatedAt: at,
	}
	r.identities[identity.ID] = identity
	r.nextID++

	return identity.Clone(), nil
}

// GetIdentity returns a copy of the identity
func (r *MemoryRepository) GetIdentity(ctx context.Context, id uint64) (*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.identities[id]
	if !ok {
		return nil, fmt.Errorf("identity %d: %w", id, ErrNotFound)
	}
	return identity.Clone(), nil
}

// NextIdentityID returns the id the next CreateIdentity will assign
func (r *MemoryRepository) NextIdentityID(ctx context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextID, nil
}

// UpdatePointer overwrites the identity pointer
func (r *MemoryRepository) UpdatePointer(ctx context.Context, id uint64, pointer string, at time.Time) error {
	return r.update(id, func(identity *models.Identity) {
		identity.Pointer = pointer
		identity.UpdatedAt = at
	})
}

// UpdateOwner changes the owner and clears the single approval
func (r *MemoryRepository) UpdateOwner(ctx context.Context, id uint64, newOwner string, at time.Time) error {
	return r.update(id, func(identity *models.Identity) {
		identity.Owner = newOwner
		identity.Approved = ""
		identity.UpdatedAt = at
	})
}

// SetApproved sets or clears (empty principal) the single approval
func (r *MemoryRepository) SetApproved(ctx context.Context, id uint64, principal string, at time.Time) error {
	return r.update(id, func(identity *models.Identity) {
		identity.Approved = principal
		identity.UpdatedAt = at
	})
}

func (r *MemoryRepository) update(id uint64, apply func(*models.Identity)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.identities[id]
	if !ok {
		return fmt.Errorf("identity %d: %w", id, ErrNotFound)
	}
	apply(identity)
	return nil
}

// SetOperator grants or revokes an operator for every identity of owner
func (r *MemoryRepository) SetOperator(ctx context.Context, owner, operator string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := operatorKey{owner: owner, operator: operator}
	if enabled {
		r.operators[key] = true
	} else {
		delete(r.operators, key)
	}
	return nil
}

// IsOperator reports whether operator acts for all of owner's identities
func (r *MemoryRepository) IsOperator(ctx context.Context, owner, operator string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operators[operatorKey{owner: owner, operator: operator}], nil
}

// SetMetadata overwrites the value for key
func (r *MemoryRepository) SetMetadata(ctx context.Context, id uint64, key string, value []byte, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.identities[id]; !ok {
		return fmt.Errorf("identity %d: %w", id, ErrNotFound)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	r.metadata[metadataKey{id: id, key: key}] = stored
	return nil
}

// GetMetadata returns the value for key and whether it was ever set
func (r *MemoryRepository) GetMetadata(ctx context.Context, id uint64, key string) ([]byte, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.identities[id]; !ok {
		return nil, false, fmt.Errorf("identity %d: %w", id, ErrNotFound)
	}
	value, ok := r.metadata[metadataKey{id: id, key: key}]
	if !ok {
		return []byte{}, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// SaveEvent appends an event to the identity's timeline
func (r *MemoryRepository) SaveEvent(ctx context.Context, event *models.RegistryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.IdentityID] = append(r.events[event.IdentityID], *event)
	return nil
}

// ListEvents returns events for an identity, oldest first
func (r *MemoryRepository) ListEvents(ctx context.Context, id uint64, limit, offset int) ([]models.RegistryEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[id]
	if offset >= len(events) {
		return []models.RegistryEvent{}, nil
	}
	end := len(events)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]models.RegistryEvent, end-offset)
	copy(out, events[offset:end])
	return out, nil
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}
