package globtrie_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/globtrie/glob"
	"github.com/outofforest/globtrie/globtrie"
	"github.com/outofforest/globtrie/key"
)

func k128(t *testing.T, v uint64) key.Key {
	t.Helper()
	kk, err := key.New(v, 0, 128)
	require.NoError(t, err)
	return kk
}

func rootKey(t *testing.T) key.Key {
	t.Helper()
	kk, err := key.FromText("0/0")
	require.NoError(t, err)
	return kk
}

// S3: capacity=2, factor=0, bubble=infinite. Insert 0..4 into a fresh trie;
// every insert succeeds and every key is found afterward.
func TestUpgradeSequence(t *testing.T) {
	alloc := globtrie.NewNodeAllocator(16)
	root := globtrie.New(alloc, rootKey(t), 2)

	cfg := globtrie.Config{
		Alloc:           alloc,
		DefaultCapacity: 2,
		FactorBits:      0,
		BubbleThreshold: key.MaxSize + 1,
		LocalFit:        glob.FitBest,
		GlobalFit:       glob.FitBest,
	}

	keys := []key.Key{k128(t, 0), k128(t, 1), k128(t, 2), k128(t, 3), k128(t, 4)}
	for _, kk := range keys {
		ok, ejected, err := root.Insert(cfg, kk)
		require.NoError(t, err)
		require.Nil(t, ejected, "bubble threshold is infinite: nothing should ever bubble")
		require.True(t, ok)
	}

	for _, kk := range keys {
		require.True(t, root.Find(kk), "expected to find %s", kk)
	}
}

func TestFindMissingReturnsFalse(t *testing.T) {
	alloc := globtrie.NewNodeAllocator(4)
	root := globtrie.New(alloc, rootKey(t), 4)
	require.False(t, root.Find(k128(t, 42)))
}

func TestBubbleEjectsWhenThresholdReached(t *testing.T) {
	alloc := globtrie.NewNodeAllocator(16)
	root := globtrie.New(alloc, rootKey(t), 2)

	cfg := globtrie.Config{
		Alloc:           alloc,
		DefaultCapacity: 2,
		FactorBits:      0,
		BubbleThreshold: 0, // bubble immediately at the root
		LocalFit:        glob.FitBest,
		GlobalFit:       glob.FitBest,
	}

	// Fill the root's glob.
	ok, ejected, err := root.Insert(cfg, k128(t, 1<<63))
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, ejected)

	ok, ejected, err = root.Insert(cfg, k128(t, 0))
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, ejected)

	// Third insert forces a bubble since the root's bubble threshold (0) is
	// already met.
	ok, ejected, err = root.Insert(cfg, k128(t, 1<<62))
	require.NoError(t, err)
	require.False(t, ok)
	require.NotNil(t, ejected)
	require.Greater(t, ejected.Glob.Len(), 0)
}

// An ejected key that grafts above two already-diverged siblings must
// absorb both of them rather than erroring out: this is a normal, reachable
// shape (a shallow reinsert landing above deeper branches), not corruption.
func TestReinsertDominatingBothSiblingsAbsorbsBoth(t *testing.T) {
	alloc := globtrie.NewNodeAllocator(16)
	root := globtrie.New(alloc, rootKey(t), 4)

	g00 := glob.New(4)
	require.True(t, g00.Insert(k128(t, 0)))
	k00, err := key.New(0, 0, 3)
	require.NoError(t, err)
	require.NoError(t, root.Reinsert(&globtrie.Ejected{Key: k00, Glob: g00}))

	g01 := glob.New(4)
	require.True(t, g01.Insert(k128(t, 1<<62)))
	k01, err := key.New(1<<62, 0, 3)
	require.NoError(t, err)
	require.NoError(t, root.Reinsert(&globtrie.Ejected{Key: k01, Glob: g01}))

	g0 := glob.New(4)
	require.True(t, g0.Insert(k128(t, 1<<61)))
	k0, err := key.New(0, 0, 1)
	require.NoError(t, err)
	require.NoError(t, root.Reinsert(&globtrie.Ejected{Key: k0, Glob: g0}))

	require.True(t, root.Find(k128(t, 0)), "key under 000/3 must survive the dominator graft")
	require.True(t, root.Find(k128(t, 1<<62)), "key under 010/3 must survive the dominator graft")
	require.True(t, root.Find(k128(t, 1<<61)), "key held directly by the dominator itself")
}

func TestReinsertGraftsWithoutBubbling(t *testing.T) {
	alloc := globtrie.NewNodeAllocator(16)
	root := globtrie.New(alloc, rootKey(t), 4)

	g := glob.New(4)
	require.True(t, g.Insert(k128(t, 1<<63)))

	fitKey, err := key.New(1<<63, 0, 1)
	require.NoError(t, err)

	require.NoError(t, root.Reinsert(&globtrie.Ejected{Key: fitKey, Glob: g}))
	require.True(t, root.Find(k128(t, 1<<63)))
}
