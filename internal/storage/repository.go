package storage

import (
	"context"
	"errors"
	"time"

	"agentregistry/internal/models"
)

// ErrNotFound is returned when an identity id does not exist
var ErrNotFound = errors.New("not found")

// Repository defines the interface for all storage operations.
// Implementations must assign identity ids atomically and never reuse them.
type Repository interface {
	// Identities
	CreateIdentity(ctx context.Context, owner, pointer string, at time.Time) (*models.Identity, error)
	GetIdentity(ctx context.Context, id uint64) (*models.Identity, error)
	NextIdentityID(ctx context.Context) (uint64, error)
	UpdatePointer(ctx context.Context, id uint64, pointer string, at time.Time) error
	UpdateOwner(ctx context.Context, id uint64, newOwner string, at time.Time) error // Clears the single approval
	SetApproved(ctx context.Context, id uint64, principal string, at time.Time) error

	// Operators, keyed by owner principal
	SetOperator(ctx context.Context, owner, operator string, enabled bool) error
	IsOperator(ctx context.Context, owner, operator string) (bool, error)

	// Metadata
	SetMetadata(ctx context.Context, id uint64, key string, value []byte, at time.Time) error
	GetMetadata(ctx context.Context, id uint64, key string) ([]byte, bool, error)

	// Registry events
	SaveEvent(ctx context.Context, event *models.RegistryEvent) error
	ListEvents(ctx context.Context, id uint64, limit, offset int) ([]models.RegistryEvent, error)

	// Health & Maintenance
	Ping(ctx context.Context) error
	Close() error
}
