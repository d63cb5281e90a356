// Package lockfree implements the multi-writer, single-process concurrent
// trie used as the top-level routing table. It shares the abstract shape of
// package globtrie's sequential trie but publishes mutations via atomic
// pointer swaps instead of holding a lock: a node's children are an
// immutable two-pointer pair republished with a single CAS, and a node's
// value is replaced by allocate-new/atomic-swap/free-old.
package lockfree

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/outofforest/globtrie/key"
)

// Node is one trie node. Its Key never changes after construction; Child
// and value are the only mutable fields, and both are mutated only through
// atomic operations.
type Node[V any] struct {
	Key   key.Key
	value atomic.Pointer[V]
	child atomic.Pointer[childPair[V]]
}

// childPair is the immutable two-pointer bundle published as a unit. The
// spec calls for a double-word CAS over two owning pointers; Go has no
// portable primitive for that, so the pair is instead made an immutable
// value and published behind a single atomic.Pointer CAS, which gives the
// same "both children change together, atomically, or not at all"
// guarantee with a word-sized CAS.
type childPair[V any] struct {
	c0, c1 *Node[V]
}

// New creates a detached node at key k with no children and no value.
func New[V any](k key.Key) *Node[V] {
	n := &Node[V]{Key: k}
	n.child.Store(&childPair[V]{})
	return n
}

// Value returns the node's current value, or nil if none has been
// published.
func (n *Node[V]) Value() *V {
	return n.value.Load()
}

func (n *Node[V]) pair() *childPair[V] {
	p := n.child.Load()
	if p == nil {
		return &childPair[V]{}
	}
	return p
}

// children returns the two child pointers in canonical slot order.
func (n *Node[V]) children() (c0, c1 *Node[V]) {
	p := n.pair()
	return p.c0, p.c1
}

// childTowards returns whichever child (at most one) is an ancestor prefix
// of k.
func (n *Node[V]) childTowards(k key.Key) *Node[V] {
	c0, c1 := n.children()
	if c0 != nil && c0.Key.LessOrEqual(k) {
		return c0
	}
	if c1 != nil && c1.Key.LessOrEqual(k) {
		return c1
	}
	return nil
}

// Find performs a lock-free recursive descent identical in shape to
// globtrie.Node.Find, reading children with acquire semantics (the default
// for atomic.Pointer.Load).
func (n *Node[V]) Find(k key.Key) (bestNode *Node[V], value *V, found bool) {
	var best *Node[V]
	cur := n
	for cur != nil {
		if v := cur.value.Load(); v != nil {
			best = cur
		}
		cur = cur.childTowards(k)
	}

	if best == nil {
		return nil, nil, false
	}
	return best, best.value.Load(), true
}

// InsertOrUpdate publishes v at key k, creating any synthetic dominator
// nodes required, and returns the node now holding it. It retries
// internally on CAS contention and never blocks.
func (n *Node[V]) InsertOrUpdate(k key.Key, v V) *Node[V] {
	target := n.descendTo(k)
	target.value.Store(&v)
	return target
}

// descendTo returns the node at exactly key k, creating it (and any
// dominator nodes) if necessary, retrying on CAS failure.
func (n *Node[V]) descendTo(k key.Key) *Node[V] {
	for {
		if n.Key.Equal(k) {
			return n
		}

		next := n.childTowards(k)
		if next != nil {
			return next.descendTo(k)
		}

		observed := n.pair()
		leaf := New[V](k)
		proposed, transient := buildProposedPair(observed, leaf, k)

		if n.child.CompareAndSwap(observed, proposed) {
			return leaf
		}
		// Lost the race: detach the transient nodes we built (they were
		// never published, so no reader can be holding them) and retry.
		// Pre-existing nodes reused from `observed` are never touched.
		detach(transient)
	}
}

// buildProposedPair computes the canonical child pair that results from
// grafting a new node (leaf, at key k) into observed, following the same
// dominator rules as globtrie's sequential graft. It also returns every
// node it freshly allocated in this attempt (leaf, and a synthetic
// dominator when one was needed) so a failed CAS can detach exactly those,
// never a node inherited from observed.
func buildProposedPair[V any](observed *childPair[V], leaf *Node[V], k key.Key) (*childPair[V], []*Node[V]) {
	c0, c1 := observed.c0, observed.c1

	// Does the new key dominate an existing child? Every child it dominates
	// (there may be both) becomes one of the new node's own children.
	absorbed := make([]*Node[V], 0, 2)
	remaining := make([]*Node[V], 0, 2)
	for _, c := range []*Node[V]{c0, c1} {
		if c == nil {
			continue
		}
		if k.LessOrEqual(c.Key) {
			absorbed = append(absorbed, c)
			continue
		}
		remaining = append(remaining, c)
	}
	switch len(absorbed) {
	case 1:
		leaf.child.Store(canonicalPair(absorbed[0], nil))
	case 2:
		leaf.child.Store(canonicalPair(absorbed[0], absorbed[1]))
	}

	switch len(remaining) {
	case 0:
		return canonicalPair(leaf, nil), []*Node[V]{leaf}
	case 1:
		return canonicalPair(remaining[0], leaf), []*Node[V]{leaf}
	default:
		x01 := remaining[0].Key.Xor(remaining[1].Key)
		x0n := remaining[0].Key.Xor(k)
		xn1 := k.Xor(remaining[1].Key)

		dom := New[V](pickDominatorKey(x01, x0n, xn1))
		switch {
		case x01.Size >= x0n.Size && x01.Size >= xn1.Size:
			dom.child.Store(canonicalPair(remaining[0], remaining[1]))
			return canonicalPair(dom, leaf), []*Node[V]{leaf, dom}
		case x0n.Size >= x01.Size && x0n.Size >= xn1.Size:
			dom.child.Store(canonicalPair(remaining[0], leaf))
			return canonicalPair(dom, remaining[1]), []*Node[V]{leaf, dom}
		default:
			dom.child.Store(canonicalPair(leaf, remaining[1]))
			return canonicalPair(dom, remaining[0]), []*Node[V]{leaf, dom}
		}
	}
}

func pickDominatorKey(x01, x0n, xn1 key.Key) key.Key {
	switch {
	case x01.Size >= x0n.Size && x01.Size >= xn1.Size:
		return x01
	case x0n.Size >= x01.Size && x0n.Size >= xn1.Size:
		return x0n
	default:
		return xn1
	}
}

// canonicalPair returns a two-child pair with a and b ordered so that
// c0.Key sorts before c1.Key under LessTiebreak, and a lone child always in
// slot 0.
func canonicalPair[V any](a, b *Node[V]) *childPair[V] {
	if a == nil {
		return &childPair[V]{c0: b}
	}
	if b == nil {
		return &childPair[V]{c0: a}
	}
	if a.Key.LessTiebreak(b.Key) {
		return &childPair[V]{c0: a, c1: b}
	}
	return &childPair[V]{c0: b, c1: a}
}

// detach clears the child links of nodes freshly allocated for a failed
// CAS attempt, so their destruction (garbage collection, in Go) does not
// walk into nodes that remain live in the published tree. Only nodes this
// attempt itself constructed are ever passed here.
func detach[V any](nodes []*Node[V]) {
	for _, n := range nodes {
		if n != nil {
			n.child.Store(&childPair[V]{})
		}
	}
}

// Canonical reports whether the node's own child pair currently satisfies
// the canonicalization invariant. Exposed for tests (property 4).
func (n *Node[V]) Canonical() bool {
	c0, c1 := n.children()
	if c0 == nil && c1 != nil {
		return false
	}
	if c0 != nil && c1 != nil && !c0.Key.LessTiebreak(c1.Key) {
		return false
	}
	if c0 != nil && !n.Key.LessOrEqual(c0.Key) {
		return false
	}
	if c1 != nil && !n.Key.LessOrEqual(c1.Key) {
		return false
	}
	return true
}

// Walk visits every node holding a published value, in no particular order.
// It reads a consistent snapshot of each node's children but makes no
// promise about concurrent inserts landing in the same Walk call.
func (n *Node[V]) Walk(visit func(k key.Key, v V)) {
	if v := n.value.Load(); v != nil {
		visit(n.Key, *v)
	}
	c0, c1 := n.children()
	if c0 != nil {
		c0.Walk(visit)
	}
	if c1 != nil {
		c1.Walk(visit)
	}
}

// ErrNotFound is returned by callers that need an error rather than an ok
// bool for a failed Find (e.g. TopLevelTree.Lookup, whose seeded root
// guarantees this is never actually returned in practice).
var ErrNotFound = errors.New("lockfree: key not found")
