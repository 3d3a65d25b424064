package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agentregistry/internal/models"
	"agentregistry/internal/scheduler"
	"agentregistry/internal/stats"
	"agentregistry/internal/submitter"
)

// Identities is the read side of the identity store
type Identities interface {
	Get(ctx context.Context, id uint64) (*models.Identity, error)
	LookupMetadata(ctx context.Context, id uint64, key string) ([]byte, bool, error)
}

// EventLog lists persisted registry events and reports store health
type EventLog interface {
	ListEvents(ctx context.Context, id uint64, limit, offset int) ([]models.RegistryEvent, error)
	Ping(ctx context.Context) error
}

// Sync is the scheduler surface exposed over HTTP
type Sync interface {
	Trigger(ctx context.Context) (submitter.Result, error)
	Status() scheduler.Status
}

// Stats provides live figures for descriptors
type Stats interface {
	Get(ctx context.Context) (stats.Snapshot, error)
}

// Server represents the HTTP API server
// Provides endpoints for Prometheus metrics, health checks, identity reads and sync control
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	identities Identities
	events     EventLog
	sync       Sync
	stats      Stats
	agentName  string
	port       int
}

// Dependencies groups what the handlers read from. Stats may be nil.
type Dependencies struct {
	Identities Identities
	Events     EventLog
	Sync       Sync
	Stats      Stats
	AgentName  string
}

// NewServer creates a new API server instance
func NewServer(port int, deps Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute, // POST /sync waits for confirmation
			IdleTimeout:  60 * time.Second,
		},
		mux:        mux,
		identities: deps.Identities,
		events:     deps.Events,
		sync:       deps.Sync,
		stats:      deps.Stats,
		agentName:  deps.AgentName,
		port:       port,
	}

	// Register all HTTP routes
	s.registerRoutes()

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.handleMetrics())

	// Identity endpoints
	s.mux.HandleFunc("/identities/", s.handleIdentityRoutes)

	// Sync endpoints
	s.mux.HandleFunc("/sync", s.handleSync)
}

// handleIdentityRoutes routes identity sub-endpoints
func (s *Server) handleIdentityRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/identities/")
	parts := strings.Split(path, "/")

	id, err := parseIdentityID(parts[0])
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch {
	// GET /identities/{id}
	case len(parts) == 1:
		s.handleGetIdentity(w, r, id)

	// GET /identities/{id}/events
	case len(parts) == 2 && parts[1] == "events":
		s.handleGetEvents(w, r, id)

	// GET /identities/{id}/descriptor
	case len(parts) == 2 && parts[1] == "descriptor":
		s.handleGetDescriptor(w, r, id)

	// GET /identities/{id}/metadata/{key}
	case len(parts) >= 3 && parts[1] == "metadata":
		s.handleGetMetadata(w, r, id, strings.Join(parts[2:], "/"))

	default:
		s.sendError(w, "Endpoint not found", http.StatusNotFound)
	}
}

// handleSync routes GET (status) and POST (manual trigger)
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleSyncStatus(w, r)
	case http.MethodPost:
		s.handleSyncTrigger(w, r)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Start starts the HTTP server in a goroutine
// Returns immediately after starting the server
func (s *Server) Start() error {
	go func() {
		slog.Info("API server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/metrics", "/identities/{id}", "/sync"},
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}
