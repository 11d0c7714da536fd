package balance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"unitledger/pkg/domain"
)

func TestReserveAndUnreserve(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Deposit("alice", 100)

	require.NoError(t, l.Reserve(ctx, "alice", 40))
	require.Equal(t, domain.Balance(60), l.Free("alice"))
	require.Equal(t, domain.Balance(40), l.Reserved("alice"))

	err := l.Reserve(ctx, "alice", 61)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	require.Equal(t, domain.Balance(60), l.Free("alice"), "failed reserve changes nothing")

	require.NoError(t, l.Unreserve(ctx, "alice", 100))
	require.Equal(t, domain.Balance(100), l.Free("alice"))
	require.Zero(t, l.Reserved("alice"))
}

func TestTransferMovesReservedStake(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Deposit("alice", 50)
	require.NoError(t, l.Reserve(ctx, "alice", 50))

	require.NoError(t, l.Transfer(ctx, "alice", "bob", 20))
	require.Equal(t, domain.Balance(30), l.Reserved("alice"))
	require.Equal(t, domain.Balance(20), l.Reserved("bob"))

	err := l.Transfer(ctx, "bob", "alice", 21)
	require.ErrorIs(t, err, domain.ErrTransferFailure)
	require.NotErrorIs(t, err, domain.ErrInsufficientBalance, "one error kind per failure")
	require.Contains(t, err.Error(), "need 21")
	require.Equal(t, domain.Balance(20), l.Reserved("bob"))
}
