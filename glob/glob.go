// Package glob implements the bounded, sortable collection of keys stored
// at a concrete trie node, together with the radix-split and factor
// operations used to eject a subrange from a full glob.
package glob

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/outofforest/globtrie/key"
	"github.com/outofforest/globtrie/radixsplit"
)

// DefaultCapacity is used when a caller does not specify one explicitly.
const DefaultCapacity = 64

// Fit selects the RadixSplit stopping predicate used by SplitPoint.
type Fit = radixsplit.Fit

// Fit values re-exported for convenience.
const (
	FitFirst = radixsplit.FitFirst
	FitBest  = radixsplit.FitBest
)

// New creates an empty glob with the given capacity.
func New(capacity int) *Glob {
	return &Glob{
		capacity: capacity,
		keys:     make([]key.Key, 0, capacity),
	}
}

// Glob is a bounded, unsorted-but-sortable set of keys. Its capacity is
// fixed at construction.
type Glob struct {
	capacity int
	keys     []key.Key
	sorted   bool
}

// Len returns the number of keys currently held.
func (g *Glob) Len() int {
	return len(g.keys)
}

// Capacity returns the glob's fixed capacity.
func (g *Glob) Capacity() int {
	return g.capacity
}

// Full reports whether the glob has reached capacity.
func (g *Glob) Full() bool {
	return len(g.keys) >= g.capacity
}

// Insert appends k unless the glob is full. Returns false on fullness, not
// an error, per the glob's total-operation contract.
func (g *Glob) Insert(k key.Key) bool {
	if g.Full() {
		return false
	}
	g.keys = append(g.keys, k)
	g.sorted = false
	return true
}

// Contains performs a linear scan for k.
func (g *Glob) Contains(k key.Key) bool {
	for _, existing := range g.keys {
		if existing.Equal(k) {
			return true
		}
	}
	return false
}

// Sort orders the keys by the total tie-breaker, so equal-length prefixes
// group together and RadixSplit's two-finger sweep can operate on
// contiguous runs.
func (g *Glob) Sort() {
	if g.sorted {
		return
	}
	sort.Slice(g.keys, func(i, j int) bool {
		return g.keys[i].LessTiebreak(g.keys[j])
	})
	g.sorted = true
}

// TakeAll moves every key out of the glob, leaving it empty, and returns
// them.
func (g *Glob) TakeAll() []key.Key {
	out := g.keys
	g.keys = make([]key.Key, 0, g.capacity)
	g.sorted = false
	return out
}

// Keys returns the glob's current keys without removing them. The returned
// slice must not be mutated by the caller.
func (g *Glob) Keys() []key.Key {
	return g.keys
}

// Extract removes the subrange [from, to) and returns a new glob of the same
// capacity as g holding it. The subrange is deleted from g.
func (g *Glob) Extract(from, to int) (*Glob, error) {
	if from < 0 || to > len(g.keys) || from > to {
		return nil, errors.Errorf("invalid extract range [%d,%d) of %d keys", from, to, len(g.keys))
	}

	extracted := make([]key.Key, to-from)
	copy(extracted, g.keys[from:to])

	remaining := make([]key.Key, 0, len(g.keys)-(to-from))
	remaining = append(remaining, g.keys[:from]...)
	remaining = append(remaining, g.keys[to:]...)
	g.keys = remaining
	g.sorted = false

	out := New(g.capacity)
	out.keys = append(out.keys[:0], extracted...)
	return out, nil
}

// Range is a half-open [From, To) index range into a sorted glob.
type Range struct {
	From, To int
}

// Len returns the number of elements the range spans.
func (r Range) Len() int {
	return r.To - r.From
}

// SplitPoint sorts the glob and delegates to RadixSplit, seeded with
// parentKey, to select an ejection range and the prefix bounding it.
// FitMedian is reserved and returns an error.
func (g *Glob) SplitPoint(fit Fit, parentKey key.Key) (Range, key.Key, error) {
	if fit == radixsplit.FitMedian {
		return Range{}, key.Key{}, errors.New("FitMedian is reserved and not implemented")
	}

	g.Sort()
	r, k := radixsplit.Split(g.keys, parentKey, fit)
	return Range{From: r.From, To: r.To}, k, nil
}

// Factor sorts the glob, finds the maximal subrange whose top factorBits
// bits equal key.Data>>(128-factorBits), and widens *k to the longest
// common prefix of the first and last elements of that subrange, truncated
// to factorBits. Returns the subrange found.
func (g *Glob) Factor(k *key.Key, factorBits uint32) Range {
	g.Sort()

	if factorBits == 0 || len(g.keys) == 0 {
		return Range{From: 0, To: len(g.keys)}
	}

	mh, ml := key.Mask(factorBits)
	prefixHi, prefixLo := k.Hi&mh, k.Lo&ml

	from, to := -1, -1
	for i, existing := range g.keys {
		if existing.Hi&mh == prefixHi && existing.Lo&ml == prefixLo {
			if from == -1 {
				from = i
			}
			to = i + 1
		}
	}
	if from == -1 {
		return Range{From: 0, To: 0}
	}

	common := g.keys[from].Xor(g.keys[to-1])
	if common.Size > factorBits {
		common = truncate(common, factorBits)
	}
	*k = common

	return Range{From: from, To: to}
}

func truncate(k key.Key, size uint32) key.Key {
	mh, ml := key.Mask(size)
	return key.Key{Hi: k.Hi & mh, Lo: k.Lo & ml, Size: size}
}
