package glob_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/globtrie/glob"
	"github.com/outofforest/globtrie/key"
)

func k128(t *testing.T, v uint64) key.Key {
	t.Helper()
	kk, err := key.New(v, 0, 128)
	require.NoError(t, err)
	return kk
}

func TestInsertContainsFull(t *testing.T) {
	g := glob.New(2)
	a := k128(t, 1)
	b := k128(t, 2)
	c := k128(t, 3)

	require.True(t, g.Insert(a))
	require.True(t, g.Insert(b))
	require.False(t, g.Insert(c))
	require.True(t, g.Full())

	require.True(t, g.Contains(a))
	require.True(t, g.Contains(b))
	require.False(t, g.Contains(c))
}

func TestExtractRemovesSubrange(t *testing.T) {
	g := glob.New(4)
	keys := []key.Key{k128(t, 1), k128(t, 2), k128(t, 3), k128(t, 4)}
	for _, kk := range keys {
		require.True(t, g.Insert(kk))
	}

	extracted, err := g.Extract(1, 3)
	require.NoError(t, err)
	require.Equal(t, 2, extracted.Len())
	require.Equal(t, 2, g.Len())
	require.True(t, g.Contains(keys[0]))
	require.True(t, g.Contains(keys[3]))
	require.False(t, g.Contains(keys[1]))
	require.False(t, g.Contains(keys[2]))
}

func TestTakeAllEmpties(t *testing.T) {
	g := glob.New(2)
	kk := k128(t, 1)
	g.Insert(kk)

	out := g.TakeAll()
	require.Equal(t, []key.Key{kk}, out)
	require.Equal(t, 0, g.Len())
}

func TestSplitPointDelegatesToRadixSplit(t *testing.T) {
	g := glob.New(8)
	root, err := key.FromText("0/0")
	require.NoError(t, err)

	for _, v := range []uint64{0, 1 << 63, 1<<63 | 1<<62, 1 << 62} {
		require.True(t, g.Insert(k128(t, v)))
	}

	r, splitKey, err := g.SplitPoint(glob.FitBest, root)
	require.NoError(t, err)
	require.Greater(t, r.Len(), 0)
	require.LessOrEqual(t, r.Len(), g.Len())
	_ = splitKey
}

func TestSplitPointRejectsMedian(t *testing.T) {
	g := glob.New(4)
	root, err := key.FromText("0/0")
	require.NoError(t, err)
	_, _, err = g.SplitPoint(glob.Fit(2), root) // FitMedian
	require.Error(t, err)
}

func TestFactorWidensToCommonPrefix(t *testing.T) {
	g := glob.New(8)
	// The first two keys share the top 4 bits (0xA = 1010).
	base := uint64(0xA000000000000000)
	require.True(t, g.Insert(k128(t, base|0x0100000000000000)))
	require.True(t, g.Insert(k128(t, base|0x0200000000000000)))
	require.True(t, g.Insert(k128(t, 0x1000000000000000))) // does not share prefix

	fitKey, err := key.New(base, 0, 4)
	require.NoError(t, err)

	r := g.Factor(&fitKey, 4)
	require.Equal(t, 2, r.Len())
	require.Equal(t, uint32(4), fitKey.Size)
}
