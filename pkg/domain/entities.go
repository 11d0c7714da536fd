// Package domain defines the persistent records, key-value contract, and
// rule evaluation primitives used by unitledger.
package domain

import (
	"fmt"
	"math"
)

// UnitID identifies a unit. Identifiers are assigned monotonically and never reused.
type UnitID uint32

// MaxUnitID is the largest representable identifier; the counter refuses to hand it out.
const MaxUnitID UnitID = math.MaxUint32

func (id UnitID) String() string { return fmt.Sprintf("%d", uint32(id)) }

// AccountID is the opaque identity handle of an owner.
type AccountID string

// Valid reports whether the account handle is usable as a caller or recipient.
func (a AccountID) Valid() bool { return a != "" }

// DNALength is the width of a unit payload in bytes.
const DNALength = 16

// DNA is the fixed-size genetic payload of a unit.
type DNA [DNALength]byte

// Unit is the immutable payload record of a unit.
type Unit struct {
	ID  UnitID `json:"id"`
	DNA DNA    `json:"dna"`
}

// OwnedUnit pairs a unit with its current owner for read models.
type OwnedUnit struct {
	Unit
	Owner AccountID `json:"owner"`
}

// ParentPair records the parents of a bred unit in the order they were passed to breed.
type ParentPair struct {
	A UnitID `json:"a"`
	B UnitID `json:"b"`
}

// Contains reports whether id is one of the two parents.
func (p ParentPair) Contains(id UnitID) bool { return p.A == id || p.B == id }

// LinkedItem is a node of a circular doubly-linked list stored in the KV store.
// A nil pointer means the link wraps around to the sentinel.
type LinkedItem[V any] struct {
	Prev *V `json:"prev,omitempty"`
	Next *V `json:"next,omitempty"`
}

// Balance is an amount handled by the balance collaborator.
type Balance uint64

// EventKind identifies a registry event.
type EventKind string

// Registry events emitted after a successful commit.
const (
	EventCreated     EventKind = "created"
	EventTransferred EventKind = "transferred"
)

// Event is delivered to event sinks after a command commits.
type Event struct {
	Kind   EventKind `json:"kind"`
	From   AccountID `json:"from,omitempty"`
	To     AccountID `json:"to"`
	UnitID UnitID    `json:"unit_id"`
}

// Created builds the event emitted when owner receives a newly created or bred unit.
func Created(owner AccountID, id UnitID) Event {
	return Event{Kind: EventCreated, To: owner, UnitID: id}
}

// Transferred builds the event emitted when a unit changes owner.
func Transferred(from, to AccountID, id UnitID) Event {
	return Event{Kind: EventTransferred, From: from, To: to, UnitID: id}
}
