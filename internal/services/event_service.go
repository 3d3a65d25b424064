package services

import (
	"context"
	"fmt"
	"log/slog"

	"agentregistry/internal/models"
	"agentregistry/internal/storage"
)

// EventLogService persists registry events so identity timelines can be served
type EventLogService struct {
	repository storage.Repository
}

// NewEventLogService creates a new EventLogService instance
func NewEventLogService(repository storage.Repository) *EventLogService {
	return &EventLogService{
		repository: repository,
	}
}

// Process saves the event. Owner-wide events such as ApprovalForAll carry no
// identity and are not part of any timeline.
func (s *EventLogService) Process(ctx context.Context, event *models.RegistryEvent) error {
	if event.IdentityID == 0 {
		slog.Debug("EventLogService: Owner-wide event not stored",
			"type", event.Type,
			"owner", event.Owner,
			"operator", event.Operator,
		)
		return nil
	}

	if err := s.repository.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to save %s event: %w", event.Type, err)
	}

	slog.Debug("EventLogService: Event saved",
		"type", event.Type,
		"identity_id", event.IdentityID,
	)
	return nil
}

// Name returns the service name
func (s *EventLogService) Name() string {
	return "EventLogService"
}
