package models

import "time"

// EventType names a registry event
type EventType string

const (
	EventCreated        EventType = "created"
	EventPointerUpdated EventType = "pointer_updated"
	EventMetadataSet    EventType = "metadata_set"
	EventTransferred    EventType = "transferred"
	EventApproval       EventType = "approval"
	EventApprovalForAll EventType = "approval_for_all"
)

// RegistryEvent is emitted by the identity store after every successful mutation.
// Only the fields relevant to the event type are populated.
type RegistryEvent struct {
	Type       EventType `json:"type"`
	IdentityID uint64    `json:"identity_id,omitempty"` // Zero for ApprovalForAll, which is keyed by owner

	// Created / PointerUpdated
	Pointer string `json:"pointer,omitempty"`

	// Created / Transferred / Approval / ApprovalForAll
	Owner    string `json:"owner,omitempty"`
	Previous string `json:"previous,omitempty"` // Previous owner on transfer
	Operator string `json:"operator,omitempty"` // Approved principal or operator
	Enabled  bool   `json:"enabled,omitempty"`  // ApprovalForAll grant or revoke

	// MetadataSet
	Key   string `json:"key,omitempty"`
	Value []byte `json:"value,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
