// Package service ties one producer/consumer's globtrie ownership to the
// shared routing tree: it is the thin translation layer between a local
// insert result and the pipeline's forward-to-bubble-queue decision.
package service

import (
	"github.com/pkg/errors"

	"github.com/outofforest/globtrie/globtrie"
	"github.com/outofforest/globtrie/key"
	"github.com/outofforest/globtrie/toplevel"
)

// Service owns one globtrie for one service slice, and consults the shared
// TopLevelTree when an insert has to bubble out.
type Service struct {
	TLT   *toplevel.TopLevelTree
	Globs *globtrie.Node
	ID    toplevel.ServiceID
	cfg   globtrie.Config
}

// New creates a Service rooted at rootKey, owning ID among the TLT's
// services.
func New(tlt *toplevel.TopLevelTree, id toplevel.ServiceID, rootKey key.Key, cfg globtrie.Config) *Service {
	return &Service{
		TLT:   tlt,
		Globs: globtrie.New(cfg.Alloc, rootKey, cfg.DefaultCapacity),
		ID:    id,
		cfg:   cfg,
	}
}

// Insert routes k into the local trie. On success it returns (nil, nil). If
// the local insert had to bubble a range out, the ejected range's owner is
// consulted: if it is this Service, the ejected glob is grafted back in
// locally via Reinsert (a local re-split cost, not a real handoff; k itself
// was already placed by the bubble); otherwise, the ejected range's owner is
// published to the
// TLT and every key that was in the ejected glob is returned so the caller
// can forward them to the bubble queue.
func (s *Service) Insert(k key.Key) ([]key.Key, error) {
	ok, ejected, err := s.Globs.Insert(s.cfg, k)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	if ejected == nil {
		return nil, errors.New("invariant violation: insert failed without ok and without an ejection")
	}

	owner := s.TLT.Owner(ejected.Key)

	if owner == s.ID {
		if err := s.Globs.Reinsert(ejected); err != nil {
			return nil, err
		}
		return nil, nil
	}

	s.TLT.Insert(ejected.Key)
	return ejected.Glob.Keys(), nil
}
