// Package config loads the YAML file that describes a graph build (which
// ingestors to run, against which sources, and in what order) and the
// default routing speeds served by the HTTP surface.
package config

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dsgvo/journeyplanner/internal/errs"
	"gopkg.in/yaml.v3"
)

// Ingestor tags recognized in build.inputs.
const (
	IngestorOSM  = "osm/pbf"
	IngestorGTFS = "gtfs/generic"
)

// Input is one ingestion step: a named ingestor run against a URL, applied
// in ascending Phase order so street nodes exist before GTFS stops look
// for a nearby one. Phase defaults to 0 for osm/pbf and 1 for gtfs/generic
// when omitted.
type Input struct {
	Ingestor string `yaml:"ingestor"` // "osm/pbf" or "gtfs/generic"
	URL      string `yaml:"url"`      // "path:<local-path>"; http(s):// not implemented
	Phase    *uint8 `yaml:"phase"`
}

// EffectivePhase is the input's phase after defaulting.
func (in Input) EffectivePhase() uint8 {
	if in.Phase != nil {
		return *in.Phase
	}
	if in.Ingestor == IngestorGTFS {
		return 1
	}
	return 0
}

// Build describes how to construct a graph from scratch.
type Build struct {
	Inputs []Input `yaml:"inputs"`
	Output string  `yaml:"output"`
}

// DefaultRouting carries the speeds used when a query doesn't override them.
type DefaultRouting struct {
	WalkingSpeedMMPerS   uint32 `yaml:"walking_speed"`
	EstimatorSpeedMMPerS uint32 `yaml:"estimator_speed"`
}

// Config is the root of the YAML document.
type Config struct {
	Build          Build          `yaml:"build"`
	DefaultRouting DefaultRouting `yaml:"default_routing"`
}

// Load reads and validates a config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.SourceUnreadable{Path: path, Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &errs.ConfigInvalid{Reason: "cannot parse YAML: " + err.Error()}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DefaultRouting.WalkingSpeedMMPerS == 0 {
		return &errs.ConfigInvalid{Reason: "default_routing.walking_speed must be > 0"}
	}
	if c.DefaultRouting.EstimatorSpeedMMPerS == 0 {
		return &errs.ConfigInvalid{Reason: "default_routing.estimator_speed must be > 0"}
	}
	if c.DefaultRouting.EstimatorSpeedMMPerS < c.DefaultRouting.WalkingSpeedMMPerS {
		return &errs.ConfigInvalid{Reason: "default_routing.estimator_speed must be >= walking_speed, or the A* heuristic is inadmissible"}
	}

	for i, in := range c.Build.Inputs {
		if in.Ingestor != IngestorOSM && in.Ingestor != IngestorGTFS {
			return &errs.ConfigInvalid{Reason: "build.inputs[" + strconv.Itoa(i) + "].ingestor must be \"osm/pbf\" or \"gtfs/generic\""}
		}
		if in.URL == "" {
			return &errs.ConfigInvalid{Reason: "build.inputs[" + strconv.Itoa(i) + "].url is required"}
		}
	}

	return nil
}

// OrderedInputs returns the build inputs sorted by ascending effective
// phase, stable within a phase.
func (c *Config) OrderedInputs() []Input {
	inputs := append([]Input(nil), c.Build.Inputs...)
	sort.SliceStable(inputs, func(i, j int) bool {
		return inputs[i].EffectivePhase() < inputs[j].EffectivePhase()
	})
	return inputs
}

// LocalPath returns the filesystem path for a "path:<local-path>" URL, or
// errs.NotImplemented for any other scheme (http(s):// fetching is out of
// scope).
func LocalPath(url string) (string, error) {
	const prefix = "path:"
	if strings.HasPrefix(url, prefix) {
		return strings.TrimPrefix(url, prefix), nil
	}
	return "", &errs.NotImplemented{Feature: "remote source: " + url}
}

