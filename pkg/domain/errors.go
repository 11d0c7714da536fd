package domain

import "errors"

// Registry errors. Components wrap these with context; callers match them with errors.Is.
//
// - ErrInvalidUnitID: the referenced unit has no record
// - ErrNotOwner: the caller does not own the referenced unit
// - ErrRequireDifferentParents: breed was called with the same unit twice
// - ErrCounterOverflow: the identifier space is exhausted
// - ErrInsufficientBalance / ErrTransferFailure: surfaced from the balance collaborator
var (
	ErrInvalidUnitID           = errors.New("invalid unit id")
	ErrNotOwner                = errors.New("caller is not the unit owner")
	ErrRequireDifferentParents = errors.New("breeding requires two different parents")
	ErrCounterOverflow         = errors.New("unit counter overflow")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrTransferFailure         = errors.New("balance transfer failed")
	ErrInvalidAccount          = errors.New("invalid account")
)

// Storage facts returned by the KV layer and its typed views.
var (
	ErrNotFound          = errors.New("not found")
	ErrCorruptList       = errors.New("linked list is corrupt")
	ErrParentsAlreadySet = errors.New("parent pair already recorded")
)
