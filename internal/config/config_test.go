package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, `
build:
  inputs:
    - ingestor: gtfs/generic
      url: "path:./testdata/feed.zip"
    - ingestor: osm/pbf
      url: "path:./testdata/streets.pbf"
  output: "./graph.bin"
default_routing:
  walking_speed: 1389
  estimator_speed: 13890
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Build.Inputs, 2)
	assert.Equal(t, "gtfs/generic", cfg.Build.Inputs[0].Ingestor)
	assert.Equal(t, uint8(1), cfg.Build.Inputs[0].EffectivePhase())
	assert.Equal(t, uint32(1389), cfg.DefaultRouting.WalkingSpeedMMPerS)

	// Phase defaulting orders OSM (phase 0) before GTFS (phase 1) even when
	// the file lists them the other way around.
	ordered := cfg.OrderedInputs()
	assert.Equal(t, "osm/pbf", ordered[0].Ingestor)
	assert.Equal(t, "gtfs/generic", ordered[1].Ingestor)
}

func TestLoadRejectsEstimatorSlowerThanWalking(t *testing.T) {
	path := writeTempConfig(t, `
default_routing:
  walking_speed: 2000
  estimator_speed: 1000
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownIngestor(t *testing.T) {
	path := writeTempConfig(t, `
build:
  inputs:
    - ingestor: shapefile
      url: "path:./x"
default_routing:
  walking_speed: 1389
  estimator_speed: 13890
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLocalPathRejectsHTTP(t *testing.T) {
	_, err := LocalPath("https://example.com/feed.zip")
	assert.Error(t, err)

	p, err := LocalPath("path:./data/feed.zip")
	require.NoError(t, err)
	assert.Equal(t, "./data/feed.zip", p)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
