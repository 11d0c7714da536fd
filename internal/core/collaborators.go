package core

import (
	"context"

	"unitledger/pkg/domain"
)

// Balances reserves and moves stake on behalf of the registry. Reserve
// reports domain.ErrInsufficientBalance; Transfer wraps its cause in
// domain.ErrTransferFailure. Unreserve releases stake when a command that
// already reserved it fails to commit.
type Balances interface {
	Reserve(ctx context.Context, account domain.AccountID, amount domain.Balance) error
	Unreserve(ctx context.Context, account domain.AccountID, amount domain.Balance) error
	Transfer(ctx context.Context, from, to domain.AccountID, amount domain.Balance) error
}

// Entropy supplies the seed and per-block call index mixed into derived DNA.
type Entropy interface {
	Seed(ctx context.Context) ([]byte, error)
	CallIndex() uint32
}

// EventSink is notified after a command commits. Delivery is fire-and-forget.
type EventSink interface {
	Publish(ctx context.Context, event domain.Event) error
}
