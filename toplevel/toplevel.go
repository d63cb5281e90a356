// Package toplevel implements the routing tree shared by every producer,
// consumer, and the bubble router: a lock-free trie keyed by prefix and
// valued by owning service, seeded at construction with one prefix per
// service so lookup always succeeds.
package toplevel

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/outofforest/globtrie/key"
	"github.com/outofforest/globtrie/lockfree"
)

// ServiceID identifies one of the pipeline's per-service globtrie owners.
type ServiceID uint32

// TopLevelTree wraps a lockfree.Node[ServiceID], computing the close mapping
// M(prefix) on every insert so a newly split-off glob range is routed to a
// specific service.
type TopLevelTree struct {
	root        *lockfree.Node[ServiceID]
	nServices   uint32
	log2Service uint32
}

// New creates a TopLevelTree for nServices, which must be a power of two,
// and seeds one rotated prefix per service so Lookup never fails.
func New(nServices uint32) (*TopLevelTree, error) {
	if nServices == 0 || nServices&(nServices-1) != 0 {
		return nil, errors.Errorf("n_services must be a power of two, got %d", nServices)
	}

	log2Service := uint32(bits.TrailingZeros32(nServices))

	root, err := key.FromText("0/0")
	if err != nil {
		return nil, errors.WithStack(err)
	}

	tlt := &TopLevelTree{
		root:        lockfree.New[ServiceID](root),
		nServices:   nServices,
		log2Service: log2Service,
	}
	tlt.root.InsertOrUpdate(root, 0)

	for s := uint32(0); s < nServices; s++ {
		prefix, err := seedPrefix(s, log2Service)
		if err != nil {
			return nil, err
		}
		tlt.root.InsertOrUpdate(prefix, ServiceID(s))
	}

	return tlt, nil
}

// seedPrefix produces the log2Service-bit prefix whose close mapping is
// exactly service s, so seeding it directly assigns that service without
// depending on Insert's own M(prefix) computation being seeded first.
func seedPrefix(s uint32, log2Service uint32) (key.Key, error) {
	if log2Service == 0 {
		return key.FromText("0/0")
	}
	hi := uint64(s) << (64 - log2Service)
	return key.New(hi, 0, log2Service)
}

// Lookup returns the owning service for k. It always succeeds because the
// root is seeded at construction.
func (t *TopLevelTree) Lookup(k key.Key) (ServiceID, error) {
	_, v, found := t.root.Find(k)
	if !found {
		return 0, errors.WithStack(lockfree.ErrNotFound)
	}
	return *v, nil
}

// Owner computes M(prefix), the service that should own a glob rooted at
// prefix, without publishing it. Callers deciding whether an ejection
// stays local call this first; only a genuine handoff needs Insert.
func (t *TopLevelTree) Owner(prefix key.Key) ServiceID {
	return t.closeMapping(prefix)
}

// Insert computes M(prefix) and publishes it so future lookups of any key
// under prefix route to that service, then returns it.
func (t *TopLevelTree) Insert(prefix key.Key) ServiceID {
	s := t.closeMapping(prefix)
	t.root.InsertOrUpdate(prefix, s)
	return s
}

// Walk visits every published (prefix, owning service) pair currently in
// the routing tree, for dump.WriteTLT.
func (t *TopLevelTree) Walk(visit func(prefix key.Key, service ServiceID)) {
	t.root.Walk(visit)
}

// SeedPrefix returns the prefix service s was seeded with at construction,
// the root key its per-service glob trie should be rooted at.
func (t *TopLevelTree) SeedPrefix(s ServiceID) (key.Key, error) {
	return seedPrefix(uint32(s), t.log2Service)
}

// NServices returns the number of services the tree was created for.
func (t *TopLevelTree) NServices() uint32 {
	return t.nServices
}

// closeMapping computes M(prefix): the owning service for a glob rooted at
// prefix, blending the high bits (source endpoint) and the bit-reversed low
// bits (target endpoint) so related edges cluster while load still spreads
// as prefixes lengthen past 64 bits.
func (t *TopLevelTree) closeMapping(prefix key.Key) ServiceID {
	if t.log2Service == 0 {
		return 0
	}

	n := t.log2Service
	mask := uint64(t.nServices - 1)

	// The source endpoint occupies the prefix's top 64 bits (Hi); its
	// service-selecting bits are Hi's own top n bits. rotate_left of the
	// masked-in-place top-n-bit value by n positions is exactly a
	// word-rotation that walks those n bits from the top of the word to
	// the bottom, i.e. it is the extraction itself.
	s := bits.RotateLeft64(prefix.Hi&(^uint64(0)<<(64-n)), int(n)) & mask

	// The target endpoint occupies the prefix's next 64 bits (Lo); its
	// bits select a target service in bit-reversed order.
	tRaw := bits.RotateLeft64(prefix.Lo&(^uint64(0)<<(64-n)), int(n)) & mask
	tt := bitReverseN(tRaw, n)

	level := saturatingSub(prefix.Size, 64)
	var blend uint64
	if level < n {
		blend = (mask << level) & mask
	}

	service := (s & blend) | (tt &^ blend)
	return ServiceID(service)
}

// bitReverseN reverses the low n bits of v.
func bitReverseN(v uint64, n uint32) uint64 {
	var r uint64
	for i := uint32(0); i < n; i++ {
		r = (r << 1) | ((v >> i) & 1)
	}
	return r
}

func saturatingSub(a, b uint32) uint32 {
	if a < b {
		return 0
	}
	return a - b
}
