// Package stats caches live figures for agent descriptors. Reads are served from
// memory for a short TTL; when a refresh fails the last good snapshot is served
// and marked stale.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"agentregistry/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// ErrUnavailable is returned when no snapshot has ever been fetched successfully
var ErrUnavailable = errors.New("stats unavailable")

// DefaultTTL is used when the cache is created with a non-positive TTL
const DefaultTTL = 5 * time.Minute

// Source produces the current figures
type Source interface {
	Fetch(ctx context.Context) (map[string]float64, error)
}

// Snapshot is one set of figures
type Snapshot struct {
	Values    map[string]float64
	FetchedAt time.Time
	Stale     bool // Served after a failed refresh
}

// Cache wraps a Source with a TTL and last-known-good fallback
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	group  singleflight.Group

	mu        sync.RWMutex
	snapshot  *Snapshot
	expiresAt time.Time
}

// NewCache creates a Cache over source
func NewCache(source Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Get returns the cached snapshot, refreshing it once expired
func (c *Cache) Get(ctx context.Context) (Snapshot, error) {
	c.mu.RLock()
	if c.snapshot != nil && c.now().Before(c.expiresAt) {
		snapshot := c.copy()
		c.mu.RUnlock()
		metrics.StatsFetches.WithLabelValues("cached").Inc()
		return snapshot, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("stats", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (c *Cache) refresh(ctx context.Context) (Snapshot, error) {
	values, err := c.source.Fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if err != nil {
		if c.snapshot == nil {
			metrics.StatsFetches.WithLabelValues("error").Inc()
			return Snapshot{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		metrics.StatsFetches.WithLabelValues("stale").Inc()
		slog.Warn("Stats: Fetch failed, serving last known good",
			"fetched_at", c.snapshot.FetchedAt,
			"error", err,
		)

		// Retry after the next TTL rather than on every read
		c.snapshot.Stale = true
		c.expiresAt = now.Add(c.ttl)
		return c.copy(), nil
	}

	metrics.StatsFetches.WithLabelValues("ok").Inc()
	c.snapshot = &Snapshot{Values: values, FetchedAt: now}
	c.expiresAt = now.Add(c.ttl)
	return c.copy(), nil
}

// copy must be called with mu held
func (c *Cache) copy() Snapshot {
	values := make(map[string]float64, len(c.snapshot.Values))
	for k, v := range c.snapshot.Values {
		values[k] = v
	}
	return Snapshot{Values: values, FetchedAt: c.snapshot.FetchedAt, Stale: c.snapshot.Stale}
}

// HTTPSource fetches a flat JSON object of numbers. Non-numeric fields are ignored.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates an HTTPSource. A nil client gets a 10 second timeout.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{url: url, client: client}
}

// Fetch performs one GET against the stats endpoint
func (s *HTTPSource) Fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stats request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("stats endpoint returned %s", resp.Status)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}

	values := make(map[string]float64, len(raw))
	for key, value := range raw {
		if number, ok := value.(float64); ok {
			values[key] = number
		}
	}
	return values, nil
}
