package osm

import (
	"encoding/gob"
	"os"

	"github.com/dsgvo/journeyplanner/internal/errs"
)

// OpenFixture reads a gob-encoded element dump produced by WriteFixture.
// This is the concrete ElementSource the CLI opens for osm/pbf inputs: a
// PBF decoder is an external collaborator (only the schema it exposes
// matters), so builds run against pre-decoded dumps in this format, and a
// real decoder plugs in by implementing ElementSource.
func OpenFixture(path string) (*MemorySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.SourceUnreadable{Path: path, Err: err}
	}
	defer f.Close()

	var src MemorySource
	if err := gob.NewDecoder(f).Decode(&src); err != nil {
		return nil, &errs.FormatInvalid{Reason: "not a gob element dump: " + path + ": " + err.Error()}
	}
	return &src, nil
}

// WriteFixture writes src as a gob element dump readable by OpenFixture.
func WriteFixture(path string, src *MemorySource) error {
	f, err := os.Create(path)
	if err != nil {
		return &errs.SourceUnreadable{Path: path, Err: err}
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(src)
}
