package graph

import (
	"sort"

	"github.com/dsgvo/journeyplanner/internal/calendar"
	"github.com/dsgvo/journeyplanner/internal/geo"
)

// Store is the built, immutable graph. Once a Builder's Build method
// returns a *Store, nothing in this package mutates it again; searches,
// reconstruction, and the alternative-departure enumerator hold it by
// shared reference (see internal/routing, internal/itinerary).
type Store struct {
	nodes       []Node
	adjacency   [][]Edge
	spatial     *spatialIndex
	externalIds map[string]NodeId

	departures []TripSegment
	services   []calendar.Pattern
	trips      []TripInfo
	routes     []RouteInfo
	agencies   []AgencyInfo

	// transfers holds stop-to-stop minimum transfer time overrides, kept
	// sorted by (From, To) so serialization stays deterministic. The
	// companion map is derived state rebuilt on load.
	transfers      []TransferRule
	transferLookup map[transferKey]uint32
}

// TransferRule is a minimum transfer time override between two stops, in
// seconds. A rule with From == To sets the minimum time to change
// vehicles at a single stop.
type TransferRule struct {
	From       NodeId
	To         NodeId
	MinSeconds uint32
}

type transferKey struct {
	from, to NodeId
}

// Builder accumulates a graph during ingestion. Append-only: nothing it
// exposes can remove or modify an already-added node, edge, or table row,
// except that AddTransfer overwrites an existing rule for the same pair.
type Builder struct {
	s *Store
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{s: &Store{
		spatial:        newSpatialIndex(),
		externalIds:    make(map[string]NodeId),
		transferLookup: make(map[transferKey]uint32),
	}}
}

// Build finalizes the graph. The Builder must not be used afterward.
func (b *Builder) Build() *Store {
	s := b.s
	b.s = nil
	sort.Slice(s.transfers, func(i, j int) bool {
		if s.transfers[i].From != s.transfers[j].From {
			return s.transfers[i].From < s.transfers[j].From
		}
		return s.transfers[i].To < s.transfers[j].To
	})
	return s
}

// AddNode appends node to the node table and grows adjacency by one empty
// list. Street nodes are additionally inserted into the spatial index and
// the external-id map.
func (b *Builder) AddNode(n Node) NodeId {
	id := NodeId(len(b.s.nodes))
	b.s.nodes = append(b.s.nodes, n)
	b.s.adjacency = append(b.s.adjacency, nil)
	if n.Kind == KindStreetNode {
		b.s.spatial.insert(n.Location, id)
		b.s.externalIds[n.ExternalId] = id
	}
	return id
}

// AddEdge appends edge to adjacency[tail]. No deduplication.
func (b *Builder) AddEdge(tail NodeId, e Edge) {
	b.s.adjacency[tail] = append(b.s.adjacency[tail], e)
}

// NodeLocation returns the location of a node already added to the
// builder. Used by ingesters that need to compute edge lengths between
// nodes they have just materialized.
func (b *Builder) NodeLocation(id NodeId) geo.LatLng {
	return b.s.nodes[id].Location
}

// NearestStreetNode is the builder-time equivalent of Store's method of
// the same name: the spatial index is built incrementally as street
// nodes are added, so the GTFS stage can query it for connector targets
// before the graph is finalized. Ingestion order puts streets first.
func (b *Builder) NearestStreetNode(loc geo.LatLng) (NodeId, float64, bool) {
	return b.s.NearestStreetNode(loc)
}

// AppendDepartures appends segs to the global departures table and
// returns the offset at which they were inserted (the start of the
// resulting TimetableSegment).
func (b *Builder) AppendDepartures(segs []TripSegment) uint32 {
	start := uint32(len(b.s.departures))
	b.s.departures = append(b.s.departures, segs...)
	return start
}

// AppendService appends a ServicePattern and returns its ServiceId.
func (b *Builder) AppendService(p calendar.Pattern) ServiceId {
	id := ServiceId(len(b.s.services))
	b.s.services = append(b.s.services, p)
	return id
}

// AppendTrip appends a TripInfo and returns its TripId.
func (b *Builder) AppendTrip(t TripInfo) TripId {
	id := TripId(len(b.s.trips))
	b.s.trips = append(b.s.trips, t)
	return id
}

// AppendRoute appends a RouteInfo and returns its RouteId.
func (b *Builder) AppendRoute(r RouteInfo) RouteId {
	id := RouteId(len(b.s.routes))
	b.s.routes = append(b.s.routes, r)
	return id
}

// AppendAgency appends an AgencyInfo and returns its AgencyId.
func (b *Builder) AppendAgency(a AgencyInfo) AgencyId {
	id := AgencyId(len(b.s.agencies))
	b.s.agencies = append(b.s.agencies, a)
	return id
}

// AddTransfer records a minimum transfer time override between two stops.
// A later rule for the same pair wins.
func (b *Builder) AddTransfer(from, to NodeId, minSeconds uint32) {
	key := transferKey{from: from, to: to}
	if _, exists := b.s.transferLookup[key]; exists {
		for i := range b.s.transfers {
			if b.s.transfers[i].From == from && b.s.transfers[i].To == to {
				b.s.transfers[i].MinSeconds = minSeconds
				break
			}
		}
	} else {
		b.s.transfers = append(b.s.transfers, TransferRule{From: from, To: to, MinSeconds: minSeconds})
	}
	b.s.transferLookup[key] = minSeconds
}

// TableSizes is used by ingesters to compute the offset feed-local ids
// must be translated by before being stored in graph records.
type TableSizes struct {
	Nodes, Services, Trips, Routes, Agencies int
}

func (b *Builder) TableSizes() TableSizes {
	return TableSizes{
		Nodes:    len(b.s.nodes),
		Services: len(b.s.services),
		Trips:    len(b.s.trips),
		Routes:   len(b.s.routes),
		Agencies: len(b.s.agencies),
	}
}

// --- read-only operations over a built Store ---

func (s *Store) Node(id NodeId) Node           { return s.nodes[id] }
func (s *Store) NodeCount() int                { return len(s.nodes) }
func (s *Store) TripCount() int                { return len(s.trips) }
func (s *Store) RouteCount() int               { return len(s.routes) }
func (s *Store) Adjacency(id NodeId) []Edge    { return s.adjacency[id] }
func (s *Store) Service(id ServiceId) calendar.Pattern { return s.services[id] }
func (s *Store) Trip(id TripId) TripInfo       { return s.trips[id] }
func (s *Store) Route(id RouteId) RouteInfo    { return s.routes[id] }
func (s *Store) Agency(id AgencyId) AgencyInfo { return s.agencies[id] }
func (s *Store) Departure(i uint32) TripSegment { return s.departures[i] }

// ExternalId resolves a street node's NodeId back to its source identifier
// (e.g. "map#osm#123").
func (s *Store) ExternalId(id NodeId) string {
	return s.nodes[id].ExternalId
}

// NodeByExternalId looks up a street node by its source identifier.
func (s *Store) NodeByExternalId(externalId string) (NodeId, bool) {
	id, ok := s.externalIds[externalId]
	return id, ok
}

// MinTransferSeconds returns the minimum transfer time override between
// two stops, if one was published. from == to queries the same-stop
// vehicle-change minimum.
func (s *Store) MinTransferSeconds(from, to NodeId) (uint32, bool) {
	v, ok := s.transferLookup[transferKey{from: from, to: to}]
	return v, ok
}

// NearestStreetNode returns the street node minimizing great-circle
// distance to (lat, lng); ok is false iff no street nodes exist.
func (s *Store) NearestStreetNode(loc geo.LatLng) (id NodeId, distanceM float64, ok bool) {
	return s.spatial.nearest(loc)
}

// admissibilityFactor keeps the A* heuristic admissible: true paths are
// always at least as long as the great-circle chord between their
// endpoints, so shrinking the chord by a hair guarantees h never
// overestimates.
const admissibilityFactor = 0.99

// NodeDistance returns the haversine distance between two nodes' locations
// in meters, scaled by 0.99 for heuristic admissibility.
func (s *Store) NodeDistance(a, b NodeId) uint32 {
	d := geo.HaversineMeters(s.nodes[a].Location, s.nodes[b].Location)
	return uint32(d * admissibilityFactor)
}

// NextDeparture finds, within segment's slice, the first entry whose
// departure is >= time, then scans forward for the first entry whose
// service is active on (date, weekday). Returns ok=false if none exists.
// Never wraps across midnight: a time past every departure in the segment
// for this date means the edge is not traversable on this date.
func (s *Store) NextDeparture(seg TimetableSegment, time uint32, date uint32, weekday calendar.Weekday) (globalIndex uint32, trip TripSegment, ok bool) {
	lo, hi := int(seg.Start), int(seg.Start+seg.Len)
	slice := s.departures[lo:hi]

	start := sort.Search(len(slice), func(i int) bool { return slice[i].Departure >= time })
	for i := start; i < len(slice); i++ {
		ts := slice[i]
		if s.services[ts.Service].IsActive(date, weekday) {
			return uint32(lo + i), ts, true
		}
	}
	return 0, TripSegment{}, false
}

// DepartureEntry pairs a global departures-table index with its segment.
type DepartureEntry struct {
	Index   uint32
	Segment TripSegment
}

// PrevDepartures returns up to count entries preceding pivotIndex
// (exclusive) within the same timetable segment, nearest-to-pivot first,
// filtered to services active on (date, weekday).
func (s *Store) PrevDepartures(seg TimetableSegment, date uint32, weekday calendar.Weekday, pivotIndex uint32, count int) []DepartureEntry {
	var out []DepartureEntry
	for i := int(pivotIndex) - 1; i >= int(seg.Start) && len(out) < count; i-- {
		ts := s.departures[i]
		if s.services[ts.Service].IsActive(date, weekday) {
			out = append(out, DepartureEntry{Index: uint32(i), Segment: ts})
		}
	}
	return out
}

// NextDepartures returns up to count entries following pivotIndex
// (exclusive) within the same timetable segment, nearest-to-pivot first,
// filtered to services active on (date, weekday).
func (s *Store) NextDepartures(seg TimetableSegment, date uint32, weekday calendar.Weekday, pivotIndex uint32, count int) []DepartureEntry {
	var out []DepartureEntry
	end := int(seg.Start + seg.Len)
	for i := int(pivotIndex) + 1; i < end && len(out) < count; i++ {
		ts := s.departures[i]
		if s.services[ts.Service].IsActive(date, weekday) {
			out = append(out, DepartureEntry{Index: uint32(i), Segment: ts})
		}
	}
	return out
}
