// Package balance provides an in-memory balance collaborator: each account
// holds a free balance and a reserved stake.
package balance

import (
	"context"
	"fmt"
	"sync"

	"unitledger/pkg/domain"
)

// Ledger tracks free and reserved balances per account.
type Ledger struct {
	mu       sync.Mutex
	free     map[domain.AccountID]domain.Balance
	reserved map[domain.AccountID]domain.Balance
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		free:     make(map[domain.AccountID]domain.Balance),
		reserved: make(map[domain.AccountID]domain.Balance),
	}
}

// Deposit credits account's free balance.
func (l *Ledger) Deposit(account domain.AccountID, amount domain.Balance) {
	l.mu.Lock()
	l.free[account] += amount
	l.mu.Unlock()
}

// Free returns account's free balance.
func (l *Ledger) Free(account domain.AccountID) domain.Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.free[account]
}

// Reserved returns account's reserved stake.
func (l *Ledger) Reserved(account domain.AccountID) domain.Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserved[account]
}

// Reserve moves amount from free to reserved.
func (l *Ledger) Reserve(_ context.Context, account domain.AccountID, amount domain.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.free[account] < amount {
		return fmt.Errorf("reserve %d for %s: %w", amount, account, domain.ErrInsufficientBalance)
	}
	l.free[account] -= amount
	l.reserved[account] += amount
	return nil
}

// Unreserve returns up to amount of reserved stake to the free balance.
func (l *Ledger) Unreserve(_ context.Context, account domain.AccountID, amount domain.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reserved[account] < amount {
		amount = l.reserved[account]
	}
	l.reserved[account] -= amount
	l.free[account] += amount
	return nil
}

// Transfer moves amount of reserved stake from one account to another.
func (l *Ledger) Transfer(_ context.Context, from, to domain.AccountID, amount domain.Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reserved[from] < amount {
		return fmt.Errorf("%w: %s holds %d reserved, need %d", domain.ErrTransferFailure, from, l.reserved[from], amount)
	}
	l.reserved[from] -= amount
	l.reserved[to] += amount
	return nil
}
