package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/logger"

	"github.com/outofforest/globtrie/config"
	"github.com/outofforest/globtrie/ingest"
	"github.com/outofforest/globtrie/pipeline"
	"github.com/outofforest/globtrie/toplevel"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func writeEdges(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "edges.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

// S6: a single producer, single consumer run over a handful of edges
// reaches quiescence and accounts for every record.
func TestRunSingleProducerSingleConsumerReachesQuiescence(t *testing.T) {
	path := writeEdges(t, "1 2\n3 4\n5 6\n7 8\n")

	cfg := config.Default(path)
	cfg.QueueSize = 64
	cfg.DefaultGlobCapacity = 64
	cfg.BubbleThreshold = 1000

	tlt, err := toplevel.New(cfg.NServices)
	require.NoError(t, err)

	stream, err := ingest.OpenCSV(path, cfg.NProducers, 0, ingest.Config{})
	require.NoError(t, err)

	stats, services, err := pipeline.Run(testContext(t), cfg, tlt, []ingest.RecordStream{stream})
	require.NoError(t, err)

	require.EqualValues(t, 4, stats.RecordsRead)
	require.Len(t, services, int(cfg.NServices))
	require.GreaterOrEqual(t, stats.QuiescenceRounds, uint64(2))

	var totalProcessed uint64
	for _, cs := range stats.Consumers {
		totalProcessed += cs.Processed
	}
	require.EqualValues(t, 4, totalProcessed)
}

// Multiple producers feeding one consumer still account for every record
// exactly once.
func TestRunMultipleProducersFanIntoSharedConsumers(t *testing.T) {
	path := writeEdges(t, "1 2\n3 4\n5 6\n7 8\n9 10\n11 12\n")

	cfg := config.Default(path)
	cfg.NProducers = 2
	cfg.NConsumers = 2
	cfg.NServices = 2
	cfg.QueueSize = 64
	cfg.DefaultGlobCapacity = 64
	cfg.BubbleThreshold = 1000

	tlt, err := toplevel.New(cfg.NServices)
	require.NoError(t, err)

	streams := make([]ingest.RecordStream, cfg.NProducers)
	for rank := uint32(0); rank < cfg.NProducers; rank++ {
		s, err := ingest.OpenCSV(path, cfg.NProducers, rank, ingest.Config{})
		require.NoError(t, err)
		streams[rank] = s
	}

	stats, _, err := pipeline.Run(testContext(t), cfg, tlt, streams)
	require.NoError(t, err)
	require.EqualValues(t, 6, stats.RecordsRead)

	var totalProcessed uint64
	for _, cs := range stats.Consumers {
		totalProcessed += cs.Processed
	}
	require.EqualValues(t, 6, totalProcessed)
}
