package ingest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/globtrie/ingest"
)

func TestPartitionCoversWholeFileExactly(t *testing.T) {
	const nBytes = 97
	const nRanks = 4

	var total int64
	for rank := uint32(0); rank < nRanks; rank++ {
		_, length, err := ingest.Partition(nBytes, nRanks, rank)
		require.NoError(t, err)
		total += length
	}
	require.EqualValues(t, nBytes, total)
}

func TestPartitionRankZeroStartsAtZero(t *testing.T) {
	offset, _, err := ingest.Partition(100, 3, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, offset)
}

func TestPartitionRejectsOutOfRangeRank(t *testing.T) {
	_, _, err := ingest.Partition(100, 3, 3)
	require.Error(t, err)
}

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

// S6: a trivial edge list with two edges, single producer, yields exactly
// those two edges as keys.
func TestCSVStreamSingleProducerYieldsAllRecords(t *testing.T) {
	path := writeTemp(t, "edges.csv", "# comment\n1 2\n3 4\n")

	s, err := ingest.OpenCSV(path, 1, 0, ingest.Config{})
	require.NoError(t, err)
	defer s.Close()

	var count int
	for {
		_, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, 2, count)
}

func TestCSVStreamSkipsSelfLoops(t *testing.T) {
	path := writeTemp(t, "edges.csv", "1 1\n1 2\n")

	s, err := ingest.OpenCSV(path, 1, 0, ingest.Config{SkipSelfLoops: true})
	require.NoError(t, err)
	defer s.Close()

	k, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, k.Concrete())

	_, ok, err = s.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCSVStreamHonorsMaxRecords(t *testing.T) {
	path := writeTemp(t, "edges.csv", "1 2\n3 4\n5 6\n")

	s, err := ingest.OpenCSV(path, 1, 0, ingest.Config{MaxRecords: 2})
	require.NoError(t, err)
	defer s.Close()

	var count int
	for {
		_, ok, _ := s.Next()
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, 2, count)
}

func TestCSVStreamPartitioningCoversAllRecordsAcrossProducers(t *testing.T) {
	var lines string
	for i := 0; i < 50; i++ {
		lines += "1 2\n"
	}
	path := writeTemp(t, "edges.csv", lines)

	const nRanks = 4
	total := 0
	for rank := uint32(0); rank < nRanks; rank++ {
		s, err := ingest.OpenCSV(path, nRanks, rank, ingest.Config{})
		require.NoError(t, err)
		for {
			_, ok, err := s.Next()
			require.NoError(t, err)
			if !ok {
				break
			}
			total++
		}
		require.NoError(t, s.Close())
	}
	require.Equal(t, 50, total)
}

func TestMatrixMarketStreamParsesHeaderAndEdges(t *testing.T) {
	path := writeTemp(t, "graph.mtx", "%%MatrixMarket matrix coordinate pattern general\n%comment\n4 4 2\n1 2\n3 4\n")

	s, err := ingest.OpenMatrixMarket(path, 1, 0, ingest.Config{})
	require.NoError(t, err)
	defer s.Close()

	var count int
	for {
		_, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, 2, count)
}
