// Package globtrie implements the per-service, single-writer radix trie of
// globs: it grows by splitting a full glob, bubbling a subrange out to a
// different owner, or grafting a dominator over two unordered subtrees.
package globtrie

import (
	"github.com/outofforest/mass"

	"github.com/outofforest/globtrie/glob"
	"github.com/outofforest/globtrie/key"
)

// NodeAllocator pools Node, Glob, and Ejected allocations for one service's
// trie.
type NodeAllocator struct {
	massNode    *mass.Mass[Node]
	massGlob    *mass.Mass[glob.Glob]
	massEjected *mass.Mass[Ejected]
}

// NewNodeAllocator creates a pooled allocator sized for an expected number
// of concrete nodes. Ejections are rarer than splits, so massEjected is
// sized down from expectedNodes rather than matching it one for one.
func NewNodeAllocator(expectedNodes uint64) *NodeAllocator {
	return &NodeAllocator{
		massNode:    mass.New[Node](expectedNodes),
		massGlob:    mass.New[glob.Glob](expectedNodes),
		massEjected: mass.New[Ejected](expectedNodes/4 + 1),
	}
}

// Node is a trie node: concrete if Glob is non-nil, synthetic otherwise.
// Synthetic nodes exist only to dominate two unordered subtrees.
type Node struct {
	Key   key.Key
	Glob  *glob.Glob
	Child [2]*Node
}

// Concrete reports whether the node owns a glob.
func (n *Node) Concrete() bool {
	return n.Glob != nil
}

// New creates a fresh concrete root node rooted at k with an empty glob of
// the given capacity, pooled through alloc.
func New(alloc *NodeAllocator, k key.Key, capacity int) *Node {
	n := alloc.massNode.New()
	*n = Node{Key: k, Glob: newGlob(alloc, capacity)}
	return n
}

func newGlob(alloc *NodeAllocator, capacity int) *glob.Glob {
	if alloc == nil {
		return glob.New(capacity)
	}
	g := alloc.massGlob.New()
	*g = *glob.New(capacity)
	return g
}

// Ejected is the result of a bubble: a key/glob pair that must be routed
// via the TLT rather than grafted locally.
type Ejected struct {
	Key  key.Key
	Glob *glob.Glob
}

// Find performs a recursive descent, tracking the deepest concrete
// ancestor of k, and reports whether that ancestor's glob contains k.
func (n *Node) Find(k key.Key) bool {
	var best *Node
	cur := n
	for cur != nil {
		if cur.Concrete() {
			best = cur
		}

		next := cur.childTowards(k)
		if next == nil {
			break
		}
		cur = next
	}

	if best == nil {
		return false
	}
	return best.Glob.Contains(k)
}

// childTowards returns whichever child (at most one) is an ancestor prefix
// of k, or nil.
func (n *Node) childTowards(k key.Key) *Node {
	for _, c := range n.Child {
		if c != nil && c.Key.LessOrEqual(k) {
			return c
		}
	}
	return nil
}

// Walk visits every concrete node's key and glob, for dump.WriteGlobs.
func (n *Node) Walk(visit func(k key.Key, g *glob.Glob)) {
	if n.Concrete() {
		visit(n.Key, n.Glob)
	}
	for _, c := range n.Child {
		if c != nil {
			c.Walk(visit)
		}
	}
}
