package models

import "time"

// IdentityResponse represents an identity with its delegation state for API responses
type IdentityResponse struct {
	ID       uint64 `json:"id"`
	Owner    string `json:"owner"`
	Approved string `json:"approved,omitempty"`
	Pointer  string `json:"pointer"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MetadataResponse is the result of a metadata read. Unset keys return an empty value.
type MetadataResponse struct {
	ID    uint64 `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"` // base64 of the raw bytes
	Set   bool   `json:"set"`
}

// DescriptorResponse is the JSON document the identity pointer resolves to
type DescriptorResponse struct {
	ID      uint64 `json:"id"`
	Name    string `json:"name"`
	Owner   string `json:"owner"`
	Pointer string `json:"pointer"`

	// Live figures from the stats source, possibly last-known-good
	Stats      map[string]float64 `json:"stats,omitempty"`
	StatsStale bool               `json:"stats_stale,omitempty"`
	StatsAt    *time.Time         `json:"stats_at,omitempty"`
}

// EventsResponse wraps a page of registry events
type EventsResponse struct {
	ID     uint64          `json:"id"`
	Events []RegistryEvent `json:"events"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// SyncRunResponse reports one pointer refresh run
type SyncRunResponse struct {
	RunID      string     `json:"run_id,omitempty"`
	Outcome    string     `json:"outcome"`
	Pointer    string     `json:"pointer,omitempty"`
	Fee        int64      `json:"fee,omitempty"`
	TxHash     string     `json:"tx_hash,omitempty"`
	Ledger     uint32     `json:"ledger,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// SyncStatusResponse is the scheduler snapshot
type SyncStatusResponse struct {
	Enabled   bool             `json:"enabled"`
	Reason    string           `json:"reason,omitempty"`
	State     string           `json:"state"`
	LastState string           `json:"last_state,omitempty"`
	Interval  string           `json:"interval,omitempty"`
	Runs      int              `json:"runs"`
	Skipped   int              `json:"skipped"`
	NextRunAt *time.Time       `json:"next_run_at,omitempty"`
	LastRun   *SyncRunResponse `json:"last_run,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
