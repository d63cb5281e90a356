// Package dump writes the human-readable debug snapshots requested by the
// --tlt and --globs CLI flags: one line per routing-tree entry, one TSV row
// per concrete glob node. Neither format is meant to be re-read by this
// program; both exist purely for operators inspecting a run.
package dump

import (
	"bufio"
	"fmt"
	"io"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"
	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/outofforest/globtrie/glob"
	"github.com/outofforest/globtrie/key"
	"github.com/outofforest/globtrie/service"
	"github.com/outofforest/globtrie/toplevel"
)

// WriteTLT prints one line per top-level tree entry with a published value:
// "{data:032x}/{size} {service}", prefixed by a "# run=<uuid>" header line.
func WriteTLT(w io.Writer, tlt *toplevel.TopLevelTree) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "# run=%s\n", uuid.New()); err != nil {
		return errors.Wrap(err, "writing tlt dump header")
	}

	var writeErr error
	tlt.Walk(func(prefix key.Key, service toplevel.ServiceID) {
		if writeErr != nil {
			return
		}
		_, writeErr = fmt.Fprintf(bw, "%016x%016x/%d %d\n", prefix.Hi, prefix.Lo, prefix.Size, service)
	})
	if writeErr != nil {
		return errors.Wrap(writeErr, "writing tlt dump body")
	}

	return errors.Wrap(bw.Flush(), "flushing tlt dump")
}

// WriteGlobs prints a TSV "service\tid\tsize\towner" with one row per
// concrete glob node across every service, prefixed by a "# run=<uuid>"
// header line. "id" is the checksum of the glob's key contents so that two
// dumps of the same logical state are diffable without printing every key.
func WriteGlobs(w io.Writer, services []*service.Service) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "# run=%s\n", uuid.New()); err != nil {
		return errors.Wrap(err, "writing globs dump header")
	}

	for _, svc := range services {
		var writeErr error
		svc.Globs.Walk(func(k key.Key, g *glob.Glob) {
			if writeErr != nil {
				return
			}
			id := globChecksum(k, g.Keys())
			_, writeErr = fmt.Fprintf(bw, "%d\t%x\t%d\t%d\n", svc.ID, id, g.Len(), svc.ID)
		})
		if writeErr != nil {
			return errors.Wrap(writeErr, "writing globs dump body")
		}
	}

	return errors.Wrap(bw.Flush(), "flushing globs dump")
}

// globChecksum hashes a glob node's root key together with its member keys,
// mirroring quantum's own hashKey: a photon.NewFromValue byte view of each
// key struct is fed straight into xxhash rather than copied out by hand.
func globChecksum(root key.Key, members []key.Key) uint64 {
	h := xxhash.New()
	_, _ = h.Write(photon.NewFromValue(&root).B)
	for i := range members {
		_, _ = h.Write(photon.NewFromValue(&members[i]).B)
	}
	return h.Sum64()
}
