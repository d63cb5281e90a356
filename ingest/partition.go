package ingest

import (
	"bytes"

	"github.com/pkg/errors"
)

// Partition computes the block-partitioned (offset, length) byte range for
// rank out of nRanks over a file of nBytes, per §6: nBytes/nRanks bytes to
// each rank with the remainder distributed to the first ranks.
func Partition(nBytes int64, nRanks, rank uint32) (offset, length int64, err error) {
	if nRanks == 0 {
		return 0, 0, errors.New("n_ranks must be positive")
	}
	if rank >= nRanks {
		return 0, 0, errors.Errorf("rank %d out of range for %d ranks", rank, nRanks)
	}

	d := nBytes / int64(nRanks)
	r := nBytes % int64(nRanks)

	if int64(rank) < r {
		offset = (d + 1) * int64(rank)
		length = d + 1
	} else {
		offset = (d+1)*r + d*(int64(rank)-r)
		length = d
	}

	if rank == 0 && offset != 0 {
		return 0, 0, errors.New("logic error when partitioning the input file across ranks")
	}
	if rank == nRanks-1 && offset+length != nBytes {
		return 0, 0, errors.New("logic error when partitioning the input file across ranks")
	}
	if nBytes < offset+length {
		return 0, 0, errors.New("logic error when partitioning the input file across ranks")
	}

	return offset, length, nil
}

// alignToLineStart adjusts a rank's raw partition window so that (a) rank 0
// starts at byte 0 unmodified, and (b) every other rank backs up one byte
// and advances past the next line terminator, ensuring a boundary landing
// exactly on a line start is still handled and no record is read twice.
// data is the partitioned byte region (the mmap'd file past any header);
// offset/length are Partition's raw output, relative to data.
func alignToLineStart(data []byte, offset, length int64, rank uint32) (start, end int64) {
	end = offset + length
	if rank == 0 {
		return 0, end
	}

	start = offset - 1
	if start < 0 {
		start = 0
	}

	// Advance past the next line terminator so this rank's first record is
	// whichever one begins after that boundary.
	if nl := bytes.IndexByte(data[start:], '\n'); nl >= 0 {
		start += int64(nl) + 1
	} else {
		start = int64(len(data))
	}

	return start, end
}
