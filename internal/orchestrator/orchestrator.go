package orchestrator

import (
	"context"
	"log/slog"

	"agentregistry/internal/metrics"
	"agentregistry/internal/models"
	"agentregistry/internal/services"
)

// Orchestrator fans registry events out to every registered service
type Orchestrator struct {
	services []services.Service
}

// New creates a new Orchestrator with the given services
func New(services []services.Service) *Orchestrator {
	return &Orchestrator{
		services: services,
	}
}

// ProcessEvent runs an event through all registered services
func (o *Orchestrator) ProcessEvent(ctx context.Context, event *models.RegistryEvent) {
	slog.Debug("Orchestrator: Processing event",
		"type", event.Type,
		"identity_id", event.IdentityID,
		"services_count", len(o.services),
	)

	// Execute each service in order
	for _, service := range o.services {
		if err := service.Process(ctx, event); err != nil {
			metrics.ErrorsTotal.WithLabelValues(service.Name()).Inc()
			slog.Error("Service processing failed",
				"service", service.Name(),
				"type", event.Type,
				"identity_id", event.IdentityID,
				"error", err,
			)
			// Continue with the other services
		}
	}
}

// Services returns the list of registered services (for inspection/testing)
func (o *Orchestrator) Services() []services.Service {
	return o.services
}
