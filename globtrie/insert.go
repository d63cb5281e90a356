package globtrie

import (
	"github.com/pkg/errors"

	"github.com/outofforest/globtrie/glob"
	"github.com/outofforest/globtrie/key"
)

// Config carries the tunables that Insert needs; it is otherwise identical
// across every node of one service's trie, so it is passed alongside the
// receiver rather than stored per-node.
type Config struct {
	Alloc           *NodeAllocator
	DefaultCapacity int
	FactorBits      uint32
	BubbleThreshold uint32 // compared against node.Key.Size; > key.MaxSize means "never bubble locally".
	LocalFit        glob.Fit
	GlobalFit       glob.Fit
}

// Insert descends to the deepest concrete node whose key is a prefix of k
// and attempts the insertion there. On success, returns (true, nil, nil).
// If that insertion had to bubble a subrange out to a (possibly) different
// owner, returns (false, ejected, nil): the caller must consult the TLT for
// ejected.Key's owner and either Reinsert locally or forward the keys to
// the bubble queue.
func (n *Node) Insert(cfg Config, k key.Key) (bool, *Ejected, error) {
	var target *Node
	cur := n
	for cur != nil {
		if cur.Concrete() {
			target = cur
		}
		cur = cur.childTowards(k)
	}

	if target == nil {
		return false, nil, errors.Errorf("insert found no concrete ancestor for %s", k)
	}

	return target.insertHere(cfg, k)
}

// insertHere implements the _insert algorithm of §4.D on the node the
// caller has already determined is the correct target.
func (n *Node) insertHere(cfg Config, k key.Key) (bool, *Ejected, error) {
	if n.Glob.Insert(k) {
		return true, nil, nil
	}

	if cfg.BubbleThreshold <= n.Key.Size {
		return n.bubble(cfg, k)
	}
	return n.localSplit(cfg, k)
}

func (n *Node) bubble(cfg Config, k key.Key) (bool, *Ejected, error) {
	r, fitKey, err := n.Glob.SplitPoint(cfg.GlobalFit, n.Key)
	if err != nil {
		return false, nil, err
	}

	ejectedGlob, err := n.Glob.Extract(r.From, r.To)
	if err != nil {
		return false, nil, err
	}

	if fitKey.LessOrEqual(k) {
		if !ejectedGlob.Insert(k) {
			return false, nil, errors.New("invariant violation: freshly extracted glob has no room for the triggering key")
		}
	} else if !n.Glob.Insert(k) {
		return false, nil, errors.New("invariant violation: glob has no room after extracting an ejection range")
	}

	ejected := cfg.Alloc.massEjected.New()
	ejected.Key = fitKey
	ejected.Glob = ejectedGlob
	return false, ejected, nil
}

func (n *Node) localSplit(cfg Config, k key.Key) (bool, *Ejected, error) {
	r, fitKey, err := n.Glob.SplitPoint(cfg.LocalFit, n.Key)
	if err != nil {
		return false, nil, err
	}

	if n.Key.Size < cfg.FactorBits && cfg.FactorBits <= fitKey.Size {
		widened := n.Glob.Factor(&fitKey, cfg.FactorBits)
		if widened.Len() >= r.Len() {
			r = glob.Range{From: widened.From, To: widened.To}
		}
	}

	extracted, err := n.Glob.Extract(r.From, r.To)
	if err != nil {
		return false, nil, err
	}

	child := cfg.Alloc.massNode.New()
	*child = Node{Key: fitKey, Glob: extracted}

	if err := n.graft(child); err != nil {
		return false, nil, err
	}

	// Restart from n: k may now belong under the freshly grafted child.
	return n.Insert(cfg, k)
}

// graft implements the dominator-graft algorithm of §4.D, attaching child
// somewhere in the subtree rooted at n such that n.Key < child.Key holds
// and the two-children invariants are preserved.
func (n *Node) graft(child *Node) error {
	if child.Key.Equal(n.Key) {
		if n.Concrete() {
			return errors.Errorf("invariant violation: concrete upgrade collision at %s", n.Key)
		}
		n.Glob = child.Glob
		return nil
	}

	// A present child that is an ancestor of the new key: recurse.
	for _, c := range n.Child {
		if c != nil && c.Key.LessOrEqual(child.Key) {
			return c.graft(child)
		}
	}

	// The new key may dominate one or both present children: every child it
	// dominates becomes one of the new node's own children, vacating its
	// parent slot.
	absorbed := make([]*Node, 0, 2)
	remaining := make([]*Node, 0, 2)
	for _, c := range n.Child {
		if c == nil {
			continue
		}
		if child.Key.LessOrEqual(c.Key) {
			absorbed = append(absorbed, c)
			continue
		}
		remaining = append(remaining, c)
	}
	switch len(absorbed) {
	case 1:
		child.Child[0] = absorbed[0]
	case 2:
		child.Child[0], child.Child[1] = orderPair(absorbed[0], absorbed[1])
	}

	switch len(remaining) {
	case 0:
		n.Child[0] = child
		n.Child[1] = nil
	case 1:
		n.Child[0] = remaining[0]
		n.Child[1] = child
		n.canonicalize()
	default:
		// Two unordered existing children and an unordered new node:
		// combine whichever pairwise XOR is closest (largest common
		// prefix) under a fresh synthetic dominator; the odd one out
		// takes the other slot.
		c0, c1 := remaining[0], remaining[1]
		x01 := c0.Key.Xor(c1.Key)
		x0n := c0.Key.Xor(child.Key)
		xn1 := child.Key.Xor(c1.Key)

		dom := &Node{}
		var odd *Node
		switch {
		case x01.Size >= x0n.Size && x01.Size >= xn1.Size:
			dom.Key = x01
			dom.Child[0], dom.Child[1] = orderPair(c0, c1)
			odd = child
		case x0n.Size >= x01.Size && x0n.Size >= xn1.Size:
			dom.Key = x0n
			dom.Child[0], dom.Child[1] = orderPair(c0, child)
			odd = c1
		default:
			dom.Key = xn1
			dom.Child[0], dom.Child[1] = orderPair(child, c1)
			odd = c0
		}

		n.Child[0] = dom
		n.Child[1] = odd
		n.canonicalize()
	}

	return nil
}

func orderPair(a, b *Node) (*Node, *Node) {
	if a.Key.LessTiebreak(b.Key) {
		return a, b
	}
	return b, a
}

// canonicalize enforces: a single present child lives in slot 0; two
// present children are ordered by LessTiebreak.
func (n *Node) canonicalize() {
	if n.Child[0] == nil && n.Child[1] != nil {
		n.Child[0], n.Child[1] = n.Child[1], nil
		return
	}
	if n.Child[0] != nil && n.Child[1] != nil && !n.Child[0].Key.LessTiebreak(n.Child[1].Key) {
		n.Child[0], n.Child[1] = n.Child[1], n.Child[0]
	}
}

// Reinsert grafts an ejected (key, glob) pair back into the tree as a
// synthetic-or-concrete node in the correct position. It does not itself
// bubble further.
func (n *Node) Reinsert(e *Ejected) error {
	child := &Node{Key: e.Key, Glob: e.Glob}
	return n.graft(child)
}
