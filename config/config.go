// Package config defines the single immutable configuration value threaded
// from the CLI into every component's constructor. No package outside main
// mutates it or holds package-level state derived from flags.
package config

import (
	"github.com/outofforest/globtrie/glob"
	"github.com/outofforest/globtrie/key"
)

// Config carries every CLI-derived tunable in one place, mirroring
// quantum.Config's role of a single struct constructed once and passed by
// value into the rest of the program.
type Config struct {
	// Path is the required input file.
	Path string
	// NEdges caps the number of records each producer reads; 0 means "all".
	NEdges uint64

	NConsumers uint32
	NProducers uint32
	NServices  uint32
	QueueSize  uint32

	Validate bool

	TLTDumpPath   string
	GlobsDumpPath string

	LocalFit            glob.Fit
	GlobalFit           glob.Fit
	DefaultGlobCapacity uint64
	FactorBits          uint32
	BubbleThreshold     uint32

	Verbose bool
	Debug   bool
}

// Default returns a Config with every tunable at its documented default,
// as if no flags beyond the required path were given.
func Default(path string) Config {
	return Config{
		Path:                path,
		NEdges:              0,
		NConsumers:          1,
		NProducers:          1,
		NServices:           1,
		QueueSize:           1024,
		Validate:            true,
		LocalFit:            glob.FitBest,
		GlobalFit:           glob.FitBest,
		DefaultGlobCapacity: 64,
		FactorBits:          0,
		BubbleThreshold:     key.MaxSize + 1,
	}
}
