// Package graph implements the unified street+transit graph: a node
// table, a per-node adjacency list over two edge kinds, a spatial index
// over street nodes, and the parallel transit tables (departures,
// services, trips, routes, agencies).
package graph

import (
	"github.com/dsgvo/journeyplanner/internal/geo"
	"github.com/dsgvo/journeyplanner/internal/ids"
)

// NodeId is a dense index into the node table.
type NodeId uint32

// NodeKind discriminates the Node tagged union.
type NodeKind uint8

const (
	KindStreetNode NodeKind = iota
	KindTransitStop
)

// Wheelchair describes boarding accessibility at a transit stop.
type Wheelchair uint8

const (
	WheelchairUnknown Wheelchair = iota
	WheelchairAvailable
	WheelchairNotAvailable
)

// Node is a tagged union: only one of the variant-specific field groups is
// meaningful, selected by Kind. Only street nodes are inserted into the
// spatial index and the external-id map; transit stops are reachable only
// through edges.
type Node struct {
	Kind     NodeKind
	Location geo.LatLng

	// StreetNode fields.
	ExternalId string

	// TransitStop fields.
	Name       string
	Wheelchair Wheelchair
}

// EdgeKind discriminates the Edge tagged union.
type EdgeKind uint8

const (
	KindStreetEdge EdgeKind = iota
	KindTransitEdge
)

// RouteId, ServiceId, TripId, AgencyId are dense handles into their
// respective parallel tables.
type RouteId uint32
type ServiceId uint32
type TripId uint32
type AgencyId uint32

// TimetableSegment names a contiguous, departure-time-sorted range in the
// global departures table.
type TimetableSegment struct {
	Start uint32
	Len   uint32
}

// TripSegment is one hop of one trip.
type TripSegment struct {
	Trip      TripId
	Departure uint32 // seconds since midnight, may exceed 86400
	Arrival   uint32
	Service   ServiceId
}

// Edge is a tagged union stored in the adjacency list keyed by tail NodeId.
type Edge struct {
	Kind        EdgeKind
	Origin      NodeId
	Destination NodeId
	LengthM     uint32

	// StreetEdge fields.
	Partial bool
	Foot    bool
	Bike    bool
	Car     bool

	// TransitEdge fields.
	Route     RouteId
	Timetable TimetableSegment
}

// RouteKind enumerates the transit modes carried on RouteInfo.
type RouteKind uint8

const (
	RouteBus RouteKind = iota
	RouteBRT
	RouteRail
	RouteFerry
	RouteTram
)

// TripInfo describes one scheduled trip.
type TripInfo struct {
	Headsign string
	Route    RouteId
}

// RouteInfo describes one published route.
type RouteInfo struct {
	ShortName string
	LongName  string
	Kind      RouteKind
	Agency    AgencyId
}

// AgencyInfo describes one transit operator.
type AgencyInfo struct {
	Name     string
	Url      string
	Timezone string
}

// FeedMappers bundles the per-feed ids.Mapper instances used during
// ingestion; declared here so ingest packages can share the type without
// importing graph's internals directly.
type FeedMappers struct {
	Stops    *ids.Mapper
	Routes   *ids.Mapper
	Trips    *ids.Mapper
	Services *ids.Mapper
	Agencies *ids.Mapper
}

func NewFeedMappers() *FeedMappers {
	return &FeedMappers{
		Stops:    ids.NewMapper(),
		Routes:   ids.NewMapper(),
		Trips:    ids.NewMapper(),
		Services: ids.NewMapper(),
		Agencies: ids.NewMapper(),
	}
}
