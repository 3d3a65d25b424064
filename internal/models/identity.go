package models

import "time"

// Identity is a registered agent identity record
type Identity struct {
	// Identification
	ID    uint64 `json:"id"`
	Owner string `json:"owner"`

	// Delegation
	Approved string `json:"approved,omitempty"` // Single principal approved for this record, cleared on transfer

	// Descriptor location
	Pointer string `json:"pointer"`

	// Bookkeeping
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy safe to hand out of a store
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// MetadataEntry is a single on-registry key/value pair scoped to one identity
type MetadataEntry struct {
	IdentityID uint64    `json:"identity_id"`
	Key        string    `json:"key"`
	Value      []byte    `json:"value"`
	UpdatedAt  time.Time `json:"updated_at"`
}
