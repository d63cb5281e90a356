package ingest

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/outofforest/globtrie/key"
)

// MatrixMarketStream reads the coordinate variant of the Matrix Market
// format: a "%%MatrixMarket" banner, zero or more further '%' comment
// lines, a "n m nnz" dimensions line, then one "row col [value]" edge per
// line (1-indexed rows/cols, taken verbatim as endpoint ids).
type MatrixMarketStream struct {
	file    *mmapFile
	cfg     Config
	n, m    int64
	nnz     int64
	yielded uint64
}

// OpenMatrixMarket opens path's rank-th of nRanks block partitions of the
// edge body following the header, as a MatrixMarketStream.
func OpenMatrixMarket(path string, nRanks, rank uint32, cfg Config) (*MatrixMarketStream, error) {
	headerBytes, n, m, nnz, err := readMatrixMarketHeader(path)
	if err != nil {
		return nil, err
	}

	f, err := openMmapPartition(path, nRanks, rank, headerBytes)
	if err != nil {
		return nil, err
	}

	return &MatrixMarketStream{file: f, cfg: cfg, n: n, m: m, nnz: nnz}, nil
}

// readMatrixMarketHeader scans the banner and comment lines and the
// dimensions line, returning the byte offset immediately following it.
// This is done with a plain buffered scan, outside the mmap'd partition
// window, since every rank needs the same answer before it can compute its
// own partition of the bytes that follow.
func readMatrixMarketHeader(path string) (headerBytes, n, m, nnz int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0, 0, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var consumed int64
	sawBanner := false
	for scanner.Scan() {
		line := scanner.Text()
		consumed += int64(len(scanner.Bytes())) + 1

		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "%%MatrixMarket"):
			sawBanner = true
			continue
		case strings.HasPrefix(trimmed, "%"):
			continue
		case trimmed == "":
			continue
		}

		if !sawBanner {
			return 0, 0, 0, 0, errors.Errorf("%s: missing %%%%MatrixMarket banner", path)
		}

		fields := strings.Fields(trimmed)
		if len(fields) != 3 {
			return 0, 0, 0, 0, errors.Errorf("%s: malformed dimensions line %q", path, line)
		}
		n, err = strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return 0, 0, 0, 0, errors.Wrapf(err, "%s: parsing dimensions", path)
		}
		m, err = strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, 0, 0, 0, errors.Wrapf(err, "%s: parsing dimensions", path)
		}
		nnz, err = strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return 0, 0, 0, 0, errors.Wrapf(err, "%s: parsing dimensions", path)
		}
		return consumed, n, m, nnz, nil
	}

	if err := scanner.Err(); err != nil {
		return 0, 0, 0, 0, errors.Wrapf(err, "scanning %s", path)
	}
	return 0, 0, 0, 0, errors.Errorf("%s: no dimensions line found", path)
}

// Next implements RecordStream.
func (s *MatrixMarketStream) Next() (key.Key, bool, error) {
	for {
		if s.cfg.MaxRecords != 0 && s.yielded >= s.cfg.MaxRecords {
			return key.Key{}, false, nil
		}

		line, ok := s.file.nextLine()
		if !ok {
			return key.Key{}, false, nil
		}

		k, ok := s.parseLine(line)
		if !ok {
			continue
		}
		s.yielded++
		return k, true, nil
	}
}

func (s *MatrixMarketStream) parseLine(line []byte) (key.Key, bool) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" || strings.HasPrefix(trimmed, "%") {
		return key.Key{}, false
	}

	fields := strings.Fields(trimmed)
	if len(fields) < 2 {
		return key.Key{}, false
	}

	src, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return key.Key{}, false
	}
	dst, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return key.Key{}, false
	}
	if s.cfg.SkipSelfLoops && src == dst {
		return key.Key{}, false
	}

	k, err := keyFromEndpoints(src, dst)
	if err != nil {
		return key.Key{}, false
	}
	return k, true
}

// Close implements RecordStream.
func (s *MatrixMarketStream) Close() error {
	return s.file.Close()
}
