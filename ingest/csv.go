package ingest

import (
	"strconv"
	"strings"

	"github.com/outofforest/globtrie/key"
)

// CSVStream reads a line-oriented edge list: one "src dst" or "src,dst"
// pair per line, '#'-prefixed lines skipped as comments.
type CSVStream struct {
	file    *mmapFile
	cfg     Config
	yielded uint64
}

// OpenCSV opens path's rank-th of nRanks block partitions as a CSVStream.
func OpenCSV(path string, nRanks, rank uint32, cfg Config) (*CSVStream, error) {
	f, err := openMmapPartition(path, nRanks, rank, 0)
	if err != nil {
		return nil, err
	}
	return &CSVStream{file: f, cfg: cfg}, nil
}

// Next implements RecordStream.
func (s *CSVStream) Next() (key.Key, bool, error) {
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

func (s *CSVStream) parseLine(line []byte) (key.Key, bool) {
	text := strings.TrimSpace(string(line))
	if text == "" || strings.HasPrefix(text, "#") {
		return key.Key{}, false
	}

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
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
func (s *CSVStream) Close() error {
	return s.file.Close()
}
