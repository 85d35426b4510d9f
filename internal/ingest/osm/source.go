// Package osm implements the three-pass OSM street-network ingestion:
// way filtering, node materialization, and edge materialization. PBF byte
// decoding stays outside this package: it consumes an ElementSource
// visitor interface that any decoder, PBF or otherwise, can implement.
package osm

import "github.com/dsgvo/journeyplanner/internal/geo"

// Way is one OSM way: an ordered list of node references plus tags.
type Way struct {
	Id       int64
	NodeRefs []int64
	Tags     map[string]string
}

// ElementSource exposes the subset of an OSM PBF file's schema this
// ingester needs: the full way list (for the filter pass) and coordinate
// lookup for any node id referenced by a way (for the node/edge passes).
// A real implementation streams Node/DenseNode/Way blocks from a PBF
// file; MemorySource below stands in for tests.
type ElementSource interface {
	Ways() []Way
	NodeLocation(id int64) (geo.LatLng, bool)
}

// MemorySource is an ElementSource backed by in-memory maps, used by
// tests and by any caller that has already materialized OSM elements by
// some other means.
type MemorySource struct {
	WaysList  []Way
	Locations map[int64]geo.LatLng
}

func (m *MemorySource) Ways() []Way { return m.WaysList }

func (m *MemorySource) NodeLocation(id int64) (geo.LatLng, bool) {
	loc, ok := m.Locations[id]
	return loc, ok
}
