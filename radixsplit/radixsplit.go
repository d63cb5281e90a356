// Package radixsplit implements the pure range-partitioning algorithm used
// to eject a subrange from a full glob: given a sorted slice of keys and a
// starting prefix, it recursively splits on successive most-significant
// bits until a stopping predicate is satisfied.
package radixsplit

import "github.com/outofforest/globtrie/key"

// Fit selects the stopping predicate.
type Fit int

// Fit values. FitMedian is reserved and rejected by callers before it
// reaches this package.
const (
	FitBest Fit = iota
	FitFirst
	FitMedian
)

// Range is a half-open index range [From, To) into the slice passed to
// Split.
type Range struct {
	From, To int
}

// Len returns the number of elements the range spans.
func (r Range) Len() int {
	return r.To - r.From
}

// Split partitions keys (assumed sorted so that the two-finger sweep below
// is meaningful) starting from the prefix `start`, and returns the half
// selected by the stopping predicate together with the prefix that bounds
// it. keys is mutated in place (the two-finger sweep swaps elements to
// group them by their next bit); it does not change the multiset of keys,
// only their order.
func Split(keys []key.Key, start key.Key, fit Fit) (Range, key.Key) {
	return split(keys, 0, len(keys), start, fit, len(keys))
}

func split(keys []key.Key, i, j int, prefix key.Key, fit Fit, inputSize int) (Range, key.Key) {
	n := j - i
	switch n {
	case 0:
		return Range{From: i, To: i}, prefix
	case 1:
		return Range{From: i, To: j}, prefix
	}

	if prefix.Size >= key.MaxSize {
		return Range{From: i, To: j}, prefix
	}

	if stop(n, fit, inputSize) {
		return Range{From: i, To: j}, prefix
	}

	b := prefix.Size
	k := twoFingerSweep(keys, i, j, b)

	leftPrefix, _ := prefix.Extend(0)
	rightPrefix, _ := prefix.Extend(1)

	leftRange, leftKey := split(keys, i, k, leftPrefix, fit, inputSize)
	rightRange, rightKey := split(keys, k, j, rightPrefix, fit, inputSize)

	switch {
	case leftRange.Len() > rightRange.Len():
		return leftRange, leftKey
	default:
		// Tie-break: prefer the right ("|1") half.
		return rightRange, rightKey
	}
}

// twoFingerSweep partitions keys[i:j] in place so that every element with
// bit b == 0 precedes every element with bit b == 1, and returns the
// boundary index k.
func twoFingerSweep(keys []key.Key, i, j int, b uint32) int {
	for i < j {
		for i < j && keys[i].Bit(b) == 0 {
			i++
		}
		for i < j && keys[j-1].Bit(b) == 1 {
			j--
		}
		if i < j {
			keys[i], keys[j-1] = keys[j-1], keys[i]
			i++
			j--
		}
	}
	return i
}

// stop implements the two stopping predicates. BEST stops once the current
// range's size is at most ceil(n/2) of the *original* input size n. FIRST
// stops as soon as the current range is strictly smaller than the input,
// i.e. as soon as any non-trivial split has occurred (n < inputSize).
func stop(n int, fit Fit, inputSize int) bool {
	switch fit {
	case FitFirst:
		return n < inputSize
	default: // FitBest
		return n <= (inputSize+1)/2
	}
}
