package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/globtrie/config"
	"github.com/outofforest/globtrie/glob"
)

func TestDefaultIsInternallyConsistent(t *testing.T) {
	cfg := config.Default("edges.csv")
	require.Equal(t, "edges.csv", cfg.Path)
	require.EqualValues(t, 1, cfg.NConsumers)
	require.EqualValues(t, 1, cfg.NProducers)
	require.EqualValues(t, 1, cfg.NServices)
	require.True(t, cfg.Validate)
	require.Equal(t, glob.FitBest, cfg.LocalFit)
	require.Equal(t, glob.FitBest, cfg.GlobalFit)
}
