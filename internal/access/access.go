// Package access decides whether a principal may mutate an identity record.
//
// Pointer updates and transfers accept the owner, the single approved principal
// and any operator of the owner. Metadata writes deliberately exclude the single
// approved principal.
package access

import (
	"errors"
	"fmt"

	"agentregistry/internal/models"
)

// ErrPermissionDenied is returned when the caller lacks the capability for an operation class
var ErrPermissionDenied = errors.New("permission denied")

// Class is the kind of mutation being authorized
type Class string

const (
	Pointer  Class = "pointer"
	Metadata Class = "metadata"
	Transfer Class = "transfer"
	Approve  Class = "approve"
)

// Authorize reports whether caller may perform class on record.
// isOperator must say whether caller is an operator-for-all of record.Owner.
func Authorize(record *models.Identity, caller string, class Class, isOperator bool) bool {
	if record == nil || caller == "" {
		return false
	}

	isOwner := caller == record.Owner
	isApproved := record.Approved != "" && caller == record.Approved

	switch class {
	case Pointer, Transfer:
		return isOwner || isApproved || isOperator
	case Metadata, Approve:
		return isOwner || isOperator
	default:
		return false
	}
}

// Check is Authorize returning ErrPermissionDenied on refusal
func Check(record *models.Identity, caller string, class Class, isOperator bool) error {
	if Authorize(record, caller, class, isOperator) {
		return nil
	}
	id := uint64(0)
	if record != nil {
		id = record.ID
	}
	return fmt.Errorf("%w: %s may not perform %s on identity %d", ErrPermissionDenied, caller, class, id)
}
