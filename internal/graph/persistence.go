package graph

import (
	"bytes"
	"encoding/gob"
	"io"
	"os"

	"github.com/dsgvo/journeyplanner/internal/calendar"
	"github.com/dsgvo/journeyplanner/internal/errs"
	"github.com/klauspost/compress/gzip"
)

// snapshot is the exported mirror of Store's private fields: gob only
// encodes exported fields, and the spatial index / external-id map are
// derived state rebuilt on load rather than serialized directly.
type snapshot struct {
	Nodes      []Node
	Adjacency  [][]Edge
	Departures []TripSegment
	Services   []calendar.Pattern
	Trips      []TripInfo
	Routes     []RouteInfo
	Agencies   []AgencyInfo
	Transfers  []TransferRule
}

func (s *Store) toSnapshot() snapshot {
	return snapshot{
		Nodes:      s.nodes,
		Adjacency:  s.adjacency,
		Departures: s.departures,
		Services:   s.services,
		Trips:      s.trips,
		Routes:     s.routes,
		Agencies:   s.agencies,
		Transfers:  s.transfers,
	}
}

func fromSnapshot(sn snapshot) *Store {
	s := &Store{
		nodes:       sn.Nodes,
		adjacency:   sn.Adjacency,
		departures:  sn.Departures,
		services:    sn.Services,
		trips:       sn.Trips,
		routes:         sn.Routes,
		agencies:       sn.Agencies,
		transfers:      sn.Transfers,
		spatial:        newSpatialIndex(),
		externalIds:    make(map[string]NodeId),
		transferLookup: make(map[transferKey]uint32),
	}
	for i, n := range s.nodes {
		if n.Kind == KindStreetNode {
			id := NodeId(i)
			s.spatial.insert(n.Location, id)
			s.externalIds[n.ExternalId] = id
		}
	}
	for _, tr := range s.transfers {
		s.transferLookup[transferKey{from: tr.From, to: tr.To}] = tr.MinSeconds
	}
	return s
}

// Save serializes the graph as gob wrapped in gzip and writes it to path.
// Format is required to round-trip: Load(Save(g)) == g.
func (s *Store) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return &errs.PersistenceFailed{Op: "save:create", Err: err}
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(s.toSnapshot()); err != nil {
		return &errs.PersistenceFailed{Op: "save:encode", Err: err}
	}
	if err := gz.Close(); err != nil {
		return &errs.PersistenceFailed{Op: "save:flush", Err: err}
	}
	return nil
}

// Load reads a graph previously written by Save.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.PersistenceFailed{Op: "load:open", Err: err}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, &errs.PersistenceFailed{Op: "load:gzip", Err: err}
	}
	defer gz.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, gz); err != nil {
		return nil, &errs.PersistenceFailed{Op: "load:read", Err: err}
	}

	var sn snapshot
	if err := gob.NewDecoder(&buf).Decode(&sn); err != nil {
		return nil, &errs.PersistenceFailed{Op: "load:decode", Err: err}
	}
	return fromSnapshot(sn), nil
}
