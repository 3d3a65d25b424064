package services

import (
	"context"

	"agentregistry/internal/metrics"
	"agentregistry/internal/models"
)

// MetricsService counts registry events by type
type MetricsService struct{}

// NewMetricsService creates a new MetricsService instance
func NewMetricsService() *MetricsService {
	return &MetricsService{}
}

// Process increments the event counters
func (s *MetricsService) Process(ctx context.Context, event *models.RegistryEvent) error {
	metrics.RegistryEvents.WithLabelValues(string(event.Type)).Inc()
	if event.Type == models.EventCreated {
		metrics.IdentitiesCreated.Inc()
	}
	return nil
}

// Name returns the service name
func (s *MetricsService) Name() string {
	return "MetricsService"
}
