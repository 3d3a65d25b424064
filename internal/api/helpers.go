package api

import (
	"fmt"
	"strconv"

	"agentregistry/internal/models"
	"agentregistry/internal/scheduler"
	"agentregistry/internal/stats"
	"agentregistry/internal/submitter"
)

// parseIdentityID parses a path segment as an identity id. Ids start at 1.
func parseIdentityID(raw string) (uint64, error) {
	if raw == "" {
		return 0, fmt.Errorf("identity id required")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid identity id %q", raw)
	}
	return id, nil
}

// BuildIdentityResponse creates the API view of an identity
func BuildIdentityResponse(identity *models.Identity) models.IdentityResponse {
	return models.IdentityResponse{
		ID:        identity.ID,
		Owner:     identity.Owner,
		Approved:  identity.Approved,
		Pointer:   identity.Pointer,
		CreatedAt: identity.CreatedAt,
		UpdatedAt: identity.UpdatedAt,
	}
}

// BuildDescriptorResponse creates a descriptor without live figures
func BuildDescriptorResponse(identity *models.Identity, name string) *models.DescriptorResponse {
	if name == "" {
		name = fmt.Sprintf("agent-%d", identity.ID)
	}
	return &models.DescriptorResponse{
		ID:      identity.ID,
		Name:    name,
		Owner:   identity.Owner,
		Pointer: identity.Pointer,
	}
}

// ApplyStats embeds a stats snapshot into a descriptor
func ApplyStats(response *models.DescriptorResponse, snapshot stats.Snapshot) {
	response.Stats = snapshot.Values
	response.StatsStale = snapshot.Stale
	if !snapshot.FetchedAt.IsZero() {
		fetchedAt := snapshot.FetchedAt.UTC()
		response.StatsAt = &fetchedAt
	}
}

// BuildSyncRunResponse creates the API view of a refresh run
func BuildSyncRunResponse(result submitter.Result) models.SyncRunResponse {
	response := models.SyncRunResponse{
		RunID:   result.RunID,
		Outcome: string(result.Outcome),
		Pointer: result.Pointer,
		Fee:     result.Fee,
		TxHash:  result.Receipt.Hash,
		Ledger:  result.Confirmation.Ledger,
	}
	if result.Err != nil {
		response.Error = result.Err.Error()
	}
	if !result.StartedAt.IsZero() {
		startedAt := result.StartedAt
		response.StartedAt = &startedAt
	}
	if !result.FinishedAt.IsZero() {
		finishedAt := result.FinishedAt
		response.FinishedAt = &finishedAt
	}
	return response
}

// BuildSyncStatusResponse creates the API view of the scheduler
func BuildSyncStatusResponse(status scheduler.Status) models.SyncStatusResponse {
	response := models.SyncStatusResponse{
		Enabled:   status.Enabled,
		State:     string(status.State),
		LastState: string(status.LastState),
		Runs:      status.Runs,
		Skipped:   status.Skipped,
	}
	if status.Reason != nil {
		response.Reason = status.Reason.Error()
	}
	if status.Interval > 0 {
		response.Interval = status.Interval.String()
	}
	if !status.NextRunAt.IsZero() {
		next := status.NextRunAt.UTC()
		response.NextRunAt = &next
	}
	if status.Last != nil {
		last := BuildSyncRunResponse(*status.Last)
		response.LastRun = &last
	}
	return response
}
