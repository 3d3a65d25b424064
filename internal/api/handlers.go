package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"agentregistry/internal/models"
	"agentregistry/internal/registry"
	"agentregistry/internal/submitter"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	info := map[string]interface{}{
		"service":     "Agent Identity Registry",
		"version":     "1.0.0",
		"description": "Agent identity records with ownership-gated pointers and scheduled pointer refresh",
		"endpoints": map[string]string{
			"GET /":                               "This page - Service information",
			"GET /health":                         "Health check endpoint",
			"GET /metrics":                        "Prometheus metrics for monitoring",
			"GET /identities/{id}":                "Identity record with owner, approval and pointer",
			"GET /identities/{id}/metadata/{key}": "Metadata value (base64), empty when unset",
			"GET /identities/{id}/events":         "Registry events for an identity (supports ?limit=, ?offset=)",
			"GET /identities/{id}/descriptor":     "Descriptor document with live stats",
			"GET /sync":                           "Pointer refresh scheduler status",
			"POST /sync":                          "Trigger a pointer refresh now",
		},
	}

	s.sendJSON(w, http.StatusOK, info)
}

// handleHealth returns health status
// GET /health - Health check for monitoring systems
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.events.Ping(r.Context()); err != nil {
		slog.Error("Health check failed", "error", err)
		s.sendError(w, "Store unhealthy", http.StatusServiceUnavailable)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "agent-registry",
	}

	s.sendJSON(w, http.StatusOK, health)
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// =============================================================================
// IDENTITY ENDPOINTS
// =============================================================================

// handleGetIdentity returns one identity record
// GET /identities/{id}
func (s *Server) handleGetIdentity(w http.ResponseWriter, r *http.Request, id uint64) {
	identity, ok := s.loadIdentity(w, r, id)
	if !ok {
		return
	}

	s.sendJSON(w, http.StatusOK, BuildIdentityResponse(identity))
}

// handleGetMetadata returns one metadata value
// GET /identities/{id}/metadata/{key}
func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request, id uint64, key string) {
	if key == "" {
		s.sendError(w, "Metadata key required", http.StatusBadRequest)
		return
	}

	value, set, err := s.identities.LookupMetadata(r.Context(), id, key)
	if err != nil {
		s.sendStoreError(w, id, err)
		return
	}

	s.sendJSON(w, http.StatusOK, models.MetadataResponse{
		ID:    id,
		Key:   key,
		Value: base64.StdEncoding.EncodeToString(value),
		Set:   set,
	})
}

// handleGetEvents returns the event timeline for an identity
// GET /identities/{id}/events?limit=50&offset=0
func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request, id uint64) {
	if _, ok := s.loadIdentity(w, r, id); !ok {
		return
	}

	query := r.URL.Query()

	// Pagination
	limit := 50 // default
	if limitStr := query.Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	offset := 0
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	events, err := s.events.ListEvents(r.Context(), id, limit, offset)
	if err != nil {
		slog.Error("Failed to list events", "identity_id", id, "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.RegistryEvent{}
	}

	s.sendJSON(w, http.StatusOK, models.EventsResponse{
		ID:     id,
		Events: events,
		Limit:  limit,
		Offset: offset,
	})
}

// handleGetDescriptor returns the document the identity pointer resolves to
// GET /identities/{id}/descriptor
func (s *Server) handleGetDescriptor(w http.ResponseWriter, r *http.Request, id uint64) {
	identity, ok := s.loadIdentity(w, r, id)
	if !ok {
		return
	}

	response := BuildDescriptorResponse(identity, s.agentName)

	if s.stats != nil {
		snapshot, err := s.stats.Get(r.Context())
		if err != nil {
			// Serve the descriptor without figures
			slog.Warn("Stats unavailable for descriptor", "identity_id", id, "error", err)
		} else {
			ApplyStats(response, snapshot)
		}
	}

	s.sendJSON(w, http.StatusOK, response)
}

// =============================================================================
// SYNC ENDPOINTS
// =============================================================================

// handleSyncStatus returns the scheduler snapshot
// GET /sync
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, BuildSyncStatusResponse(s.sync.Status()))
}

// handleSyncTrigger runs a refresh now, joining one in flight
// POST /sync
func (s *Server) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	result, err := s.sync.Trigger(r.Context())
	if err != nil {
		s.sendError(w, err.Error(), http.StatusGatewayTimeout)
		return
	}

	response := BuildSyncRunResponse(result)

	switch result.Outcome {
	case submitter.OutcomeNotConfigured:
		s.sendJSON(w, http.StatusServiceUnavailable, response)
	case submitter.OutcomeFailed:
		s.sendJSON(w, http.StatusBadGateway, response)
	default:
		s.sendJSON(w, http.StatusOK, response)
	}
}

// loadIdentity fetches the identity or writes the error response
func (s *Server) loadIdentity(w http.ResponseWriter, r *http.Request, id uint64) (*models.Identity, bool) {
	identity, err := s.identities.Get(r.Context(), id)
	if err != nil {
		s.sendStoreError(w, id, err)
		return nil, false
	}
	return identity, true
}

// sendStoreError maps store errors to status codes
func (s *Server) sendStoreError(w http.ResponseWriter, id uint64, err error) {
	if errors.Is(err, registry.ErrNotFound) {
		s.sendError(w, "Identity not found", http.StatusNotFound)
		return
	}
	slog.Error("Failed to read identity", "identity_id", id, "error", err)
	s.sendError(w, "Internal server error", http.StatusInternalServerError)
}

// sendJSON writes a JSON body with the given status
func (s *Server) sendJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}
