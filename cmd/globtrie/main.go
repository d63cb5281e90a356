// Command globtrie ingests an edge-list file into the routing/glob-trie
// pipeline and optionally dumps the resulting routing table and per-service
// glob inventory.
package main

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/outofforest/logger"

	"github.com/outofforest/globtrie/config"
	"github.com/outofforest/globtrie/dump"
	"github.com/outofforest/globtrie/glob"
	"github.com/outofforest/globtrie/ingest"
	"github.com/outofforest/globtrie/key"
	"github.com/outofforest/globtrie/pipeline"
	"github.com/outofforest/globtrie/service"
	"github.com/outofforest/globtrie/toplevel"
)

func main() {
	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	defer cancel()

	if err := run(ctx); err != nil {
		logger.Get(ctx).Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, format, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	log := logger.Get(ctx)
	if cfg.Debug {
		log.Debug("resolved configuration",
			zap.String("path", cfg.Path),
			zap.Uint32("n_producers", cfg.NProducers),
			zap.Uint32("n_consumers", cfg.NConsumers),
			zap.Uint32("n_services", cfg.NServices),
		)
	}

	tlt, err := toplevel.New(cfg.NServices)
	if err != nil {
		return err
	}

	streams, err := openStreams(cfg, format)
	if err != nil {
		return err
	}

	stats, services, err := pipeline.Run(ctx, cfg, tlt, streams)
	if err != nil {
		return err
	}

	if cfg.Verbose {
		log.Info("pipeline finished",
			zap.Uint64("recordsRead", stats.RecordsRead),
			zap.Uint64("bubbleForwarded", stats.BubbleForwarded),
			zap.Uint64("quiescenceRounds", stats.QuiescenceRounds),
		)
	}

	if cfg.Validate {
		if err := validate(tlt, services); err != nil {
			return errors.Wrap(err, "validation failed")
		}
	}

	if cfg.TLTDumpPath != "" {
		if err := dumpToFile(cfg.TLTDumpPath, func(f *os.File) error {
			return dump.WriteTLT(f, tlt)
		}); err != nil {
			return err
		}
	}

	if cfg.GlobsDumpPath != "" {
		if err := dumpToFile(cfg.GlobsDumpPath, func(f *os.File) error {
			return dump.WriteGlobs(f, services)
		}); err != nil {
			return err
		}
	}

	return nil
}

func dumpToFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating dump file %s", path)
	}
	defer f.Close()
	return write(f)
}

// validate re-scans every service's glob trie, confirming that every key a
// glob claims to hold is actually found through that same trie's own Find.
func validate(tlt *toplevel.TopLevelTree, services []*service.Service) error {
	for _, svc := range services {
		var missing []key.Key
		svc.Globs.Walk(func(_ key.Key, g *glob.Glob) {
			for _, k := range g.Keys() {
				if !svc.Globs.Find(k) {
					missing = append(missing, k)
				}
			}
		})
		if len(missing) > 0 {
			return errors.Errorf("service %d: %d keys present in a glob but not found by its own trie", svc.ID, len(missing))
		}
	}

	_, err := tlt.Lookup(key.Key{})
	return err
}

func openStreams(cfg config.Config, format string) ([]ingest.RecordStream, error) {
	ingestCfg := ingest.Config{MaxRecords: cfg.NEdges}

	streams := make([]ingest.RecordStream, cfg.NProducers)
	for rank := uint32(0); rank < cfg.NProducers; rank++ {
		var (
			s   ingest.RecordStream
			err error
		)
		switch format {
		case "mtx", "matrixmarket":
			s, err = ingest.OpenMatrixMarket(cfg.Path, cfg.NProducers, rank, ingestCfg)
		default:
			s, err = ingest.OpenCSV(cfg.Path, cfg.NProducers, rank, ingestCfg)
		}
		if err != nil {
			for _, opened := range streams[:rank] {
				opened.Close()
			}
			return nil, err
		}
		streams[rank] = s
	}
	return streams, nil
}

func parseFlags(args []string) (config.Config, string, error) {
	fs := pflag.NewFlagSet("globtrie", pflag.ContinueOnError)

	cfg := config.Default("")
	var format string
	var localFit, globalFit string

	fs.Uint32VarP(&cfg.NConsumers, "n_consumers", "c", cfg.NConsumers, "number of consumer threads")
	fs.Uint32VarP(&cfg.NProducers, "n_producers", "p", cfg.NProducers, "number of producer threads")
	fs.Uint32VarP(&cfg.NServices, "n_services", "n", cfg.NServices, "number of routing services, must be a power of two")
	fs.Uint32VarP(&cfg.QueueSize, "queue_size", "q", cfg.QueueSize, "expected items per MPSC queue")
	fs.BoolVar(&cfg.Validate, "validate", cfg.Validate, "re-scan the routing tree after ingest")
	fs.StringVar(&cfg.TLTDumpPath, "tlt", "", "optional path to dump the top-level tree")
	fs.StringVar(&cfg.GlobsDumpPath, "globs", "", "optional path to dump the per-service glob inventory")
	fs.StringVarP(&localFit, "local-fit", "l", "best", "local split fit: best|first")
	fs.StringVarP(&globalFit, "global-fit", "g", "best", "global split fit: best|first")
	fs.Uint64VarP(&cfg.DefaultGlobCapacity, "default-glob-capacity", "m", cfg.DefaultGlobCapacity, "capacity of a freshly split glob")
	fs.Uint32Var(&cfg.FactorBits, "factor", cfg.FactorBits, "extra common-prefix bits absorbed on split")
	fs.Uint32Var(&cfg.BubbleThreshold, "bubble", cfg.BubbleThreshold, "node depth at or beyond which a split bubbles instead of splitting locally")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log a summary after the run")
	fs.BoolVarP(&cfg.Debug, "debug", "d", false, "log the resolved configuration before running")
	fs.StringVar(&format, "format", "csv", "input format: csv|mtx")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, "", errors.WithStack(err)
	}

	positional := fs.Args()
	if len(positional) < 1 {
		return config.Config{}, "", errors.New("missing required positional argument: path")
	}
	cfg.Path = positional[0]
	if len(positional) >= 2 {
		nEdges, err := strconv.ParseUint(positional[1], 10, 64)
		if err != nil {
			return config.Config{}, "", errors.Wrap(err, "parsing n_edges")
		}
		cfg.NEdges = nEdges
	}

	fit, err := parseFit(localFit)
	if err != nil {
		return config.Config{}, "", errors.Wrap(err, "parsing --local-fit")
	}
	cfg.LocalFit = fit

	fit, err = parseFit(globalFit)
	if err != nil {
		return config.Config{}, "", errors.Wrap(err, "parsing --global-fit")
	}
	cfg.GlobalFit = fit

	return cfg, format, nil
}

func parseFit(s string) (glob.Fit, error) {
	switch strings.ToLower(s) {
	case "best":
		return glob.FitBest, nil
	case "first":
		return glob.FitFirst, nil
	default:
		return 0, errors.Errorf("unknown fit %q, expected best|first", s)
	}
}
