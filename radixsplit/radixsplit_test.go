package radixsplit_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/globtrie/key"
	"github.com/outofforest/globtrie/radixsplit"
)

func k128(v uint64) key.Key {
	kk, err := key.New(v, 0, 128)
	if err != nil {
		panic(err)
	}
	return kk
}

func zeroPrefix(t *testing.T) key.Key {
	t.Helper()
	kk, err := key.FromText("0/0")
	require.NoError(t, err)
	return kk
}

func TestSplitSingleElement(t *testing.T) {
	start := zeroPrefix(t)

	r, k := radixsplit.Split([]key.Key{k128(0)}, start, radixsplit.FitBest)
	require.Equal(t, 1, r.Len())
	require.Equal(t, start, k)

	r, k = radixsplit.Split([]key.Key{k128(1 << 63)}, start, radixsplit.FitBest)
	require.Equal(t, 1, r.Len())
	require.Equal(t, start, k)
}

func TestSplitEmpty(t *testing.T) {
	start := zeroPrefix(t)
	r, k := radixsplit.Split(nil, start, radixsplit.FitBest)
	require.Equal(t, 0, r.Len())
	require.Equal(t, start, k)
}

func TestSplitBestBalances(t *testing.T) {
	start := zeroPrefix(t)
	keys := []key.Key{
		k128(0),
		k128(1 << 63),
		k128(1<<63 | 1<<62),
		k128(1<<62 | 1<<61),
	}
	r, prefixKey := radixsplit.Split(keys, start, radixsplit.FitBest)
	require.LessOrEqual(t, r.Len(), 2)
	require.GreaterOrEqual(t, r.Len(), 1)

	for _, kk := range keys[r.From:r.To] {
		require.Equal(t, key.Less, prefixKey.Compare(kk))
	}
}

func TestSplitFirstReturnsFirstNonTrivialSplit(t *testing.T) {
	start := zeroPrefix(t)
	keys := []key.Key{
		k128(0),
		k128(0),
		k128(0),
		k128(1 << 63),
	}
	r, _ := radixsplit.Split(keys, start, radixsplit.FitFirst)
	require.Less(t, r.Len(), len(keys))
}

func TestSplitPrefixBoundsSubrange(t *testing.T) {
	start := zeroPrefix(t)
	keys := []key.Key{
		k128(1 << 63),
		k128(1<<63 | 1<<62),
		k128(0),
		k128(1 << 62),
	}
	r, prefixKey := radixsplit.Split(keys, start, radixsplit.FitBest)
	require.GreaterOrEqual(t, r.Len(), 1)
	for _, kk := range keys[r.From:r.To] {
		ord := prefixKey.Compare(kk)
		require.True(t, ord == key.Less || ord == key.Equivalent)
	}
}
