// Package ingest reads 128-bit edge keys out of partitioned input files. It
// is the pipeline's only I/O-facing package: everything downstream deals
// exclusively in key.Key values.
package ingest

import (
	"math/bits"

	"github.com/outofforest/globtrie/key"
)

// RecordStream yields keys one at a time from one producer's partition of
// an input file. Next returns (key, true, nil) for a parsed record,
// (key.Key{}, false, nil) once the partition is exhausted (lines that cannot
// be parsed are skipped inside Next and never reported), and
// (key.Key{}, false, err) only for a genuine I/O failure, which is fatal to
// the caller.
type RecordStream interface {
	Next() (key.Key, bool, error)
	// Close releases the stream's file resources (the mmap'd region).
	Close() error
}

// Config carries the tunables ingest needs beyond the raw partitioning
// parameters: a self-loop filter and a per-producer record cap, both
// supplemental to the distilled format but present in the source ingest
// tooling this was distilled from.
type Config struct {
	// SkipSelfLoops drops records whose two endpoints are equal.
	SkipSelfLoops bool
	// MaxRecords caps the number of records this stream yields; 0 means
	// unbounded. Applied per-producer, matching the source tooling's
	// per-rank record limit rather than a single global counter that would
	// require cross-producer coordination.
	MaxRecords uint64
}

// keyFromEndpoints builds the 128-bit key (k_hi || k_lo) from a source and
// destination endpoint, byte-swapping each half on load so lexicographic
// bit order matches the trie's MSB-first traversal (the source tooling's
// "swizzle": least-significant bytes of a small, low-entropy id become the
// most significant, spreading load across the high bits the trie splits
// on first).
func keyFromEndpoints(src, dst uint64) (key.Key, error) {
	return key.New(bits.ReverseBytes64(src), bits.ReverseBytes64(dst), key.MaxSize)
}
