package kv

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"unitledger/internal/infra/persistence/memory"
	"unitledger/pkg/domain"
)

func TestTupleKeysDoNotCollide(t *testing.T) {
	codec := Tuple[domain.AccountID, *domain.UnitID]{
		First:  String[domain.AccountID]{},
		Second: Optional[domain.UnitID]{Inner: Uint32[domain.UnitID]{}},
	}
	one := domain.UnitID(1)
	sentinel, err := Encode[Pair[domain.AccountID, *domain.UnitID]](codec, PairOf[domain.AccountID, *domain.UnitID]("ab", nil))
	require.NoError(t, err)
	member, err := Encode[Pair[domain.AccountID, *domain.UnitID]](codec, PairOf[domain.AccountID, *domain.UnitID]("ab", &one))
	require.NoError(t, err)
	other, err := Encode[Pair[domain.AccountID, *domain.UnitID]](codec, PairOf[domain.AccountID, *domain.UnitID]("a", nil))
	require.NoError(t, err)

	require.False(t, bytes.Equal(sentinel, member))
	require.False(t, bytes.HasPrefix(sentinel, other), "length prefix separates accounts")
	require.Equal(t, []byte{2, 'a', 'b', 1, 0, 0, 0, 1}, member)

	decoded, err := Decode[Pair[domain.AccountID, *domain.UnitID]](codec, member)
	require.NoError(t, err)
	require.Equal(t, domain.AccountID("ab"), decoded.First)
	require.NotNil(t, decoded.Second)
	require.Equal(t, one, *decoded.Second)
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	_, err := Decode[domain.UnitID](Uint32[domain.UnitID]{}, []byte{1, 2})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode[domain.UnitID](Uint32[domain.UnitID]{}, []byte{0, 0, 0, 1, 9})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode[domain.AccountID](String[domain.AccountID]{}, []byte{5, 'a'})
	require.ErrorIs(t, err, ErrMalformed)

	huge := append(binary.AppendUvarint(nil, math.MaxUint64), 'a', 'b')
	require.NotPanics(t, func() {
		_, err = Decode[domain.AccountID](String[domain.AccountID]{}, huge)
	})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode[*domain.UnitID](Optional[domain.UnitID]{Inner: Uint32[domain.UnitID]{}}, []byte{7})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode[domain.DNA](DNA{}, []byte{1, 2, 3})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode[domain.ParentPair](JSON[domain.ParentPair]{}, []byte("{"))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestMapRoundTripThroughTransaction(t *testing.T) {
	store := memory.NewStore(nil)
	parents := NewMap[domain.UnitID, domain.ParentPair](domain.BucketParents, Uint32[domain.UnitID]{}, JSON[domain.ParentPair]{})
	owners := NewMap[domain.UnitID, domain.AccountID](domain.BucketOwners, Uint32[domain.UnitID]{}, Raw[domain.AccountID]{})
	ctx := t.Context()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := parents.Put(tx, 7, domain.ParentPair{A: 1, B: 2}); err != nil {
			return err
		}
		if err := owners.Put(tx, 7, "alice"); err != nil {
			return err
		}
		got, ok, err := owners.Get(tx, 7)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, domain.AccountID("alice"), got)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, store.View(ctx, func(v domain.TransactionView) error {
		pair, ok, err := parents.Get(v, 7)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, domain.ParentPair{A: 1, B: 2}, pair)

		has, err := owners.Has(v, 8)
		require.NoError(t, err)
		require.False(t, has)
		return nil
	}))

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return owners.Delete(tx, 7)
	})
	require.NoError(t, err)
	require.Equal(t, 0, store.Len(domain.BucketOwners))
	require.Equal(t, domain.BucketParents, parents.Bucket())
}

func TestMapSurfacesCorruptValues(t *testing.T) {
	store := memory.NewStore(nil)
	units := NewMap[domain.UnitID, domain.DNA](domain.BucketUnits, Uint32[domain.UnitID]{}, DNA{})
	ctx := t.Context()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		key, err := units.Key(3)
		if err != nil {
			return err
		}
		return tx.Put(domain.BucketUnits, key, []byte{1})
	})
	require.NoError(t, err)
	err = store.View(ctx, func(v domain.TransactionView) error {
		_, _, err := units.Get(v, 3)
		return err
	})
	require.ErrorIs(t, err, ErrMalformed)
}
