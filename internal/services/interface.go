package services

import (
	"context"

	"agentregistry/internal/models"
)

// Service defines the interface that all registry event consumers must implement
type Service interface {
	// Process handles a single registry event.
	// Returns error only for failures worth logging; the registry mutation has already happened
	// and is never rolled back because a consumer failed.
	Process(ctx context.Context, event *models.RegistryEvent) error

	// Name returns the service name for logging
	Name() string
}
