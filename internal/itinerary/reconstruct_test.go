package itinerary

import (
	"context"
	"testing"

	"github.com/dsgvo/journeyplanner/internal/calendar"
	"github.com/dsgvo/journeyplanner/internal/geo"
	"github.com/dsgvo/journeyplanner/internal/graph"
	"github.com/dsgvo/journeyplanner/internal/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = routing.Params{WalkingSpeedMMPerS: 1389, EstimatorSpeedMMPerS: 13890}

// chainGraph builds A-B-C-D in a row, 111m walkable hops.
func chainGraph(t *testing.T) (*graph.Store, graph.NodeId, graph.NodeId) {
	b := graph.NewBuilder()
	var nodes []graph.NodeId
	for i := 0; i < 4; i++ {
		nodes = append(nodes, b.AddNode(graph.Node{
			Kind: graph.KindStreetNode, ExternalId: string(rune('a' + i)),
			Location: geo.LatLng{Lat: 0, Lng: 0.001 * float64(i)},
		}))
	}
	for i := 0; i+1 < len(nodes); i++ {
		length := uint32(geo.HaversineMeters(
			geo.LatLng{Lat: 0, Lng: 0.001 * float64(i)},
			geo.LatLng{Lat: 0, Lng: 0.001 * float64(i+1)},
		))
		b.AddEdge(nodes[i], graph.Edge{Kind: graph.KindStreetEdge, Origin: nodes[i], Destination: nodes[i+1], LengthM: length, Foot: true})
		b.AddEdge(nodes[i+1], graph.Edge{Kind: graph.KindStreetEdge, Origin: nodes[i+1], Destination: nodes[i], LengthM: length, Foot: true})
	}
	return b.Build(), nodes[0], nodes[3]
}

func TestReconstructCoalescesWalkEdges(t *testing.T) {
	store, from, to := chainGraph(t)
	r := routing.NewRouter(store, false)

	result, err := r.Search(context.Background(), from, to, 0, 0, calendar.Monday, testParams)
	require.NoError(t, err)

	legs, err := Reconstruct(store, result)
	require.NoError(t, err)
	require.Len(t, legs, 1)

	leg := legs[0]
	assert.Equal(t, LegWalk, leg.Kind)
	assert.Len(t, leg.Steps, 3)
	assert.InDelta(t, 333, leg.LengthM, 3)
	assert.Equal(t, uint32(0), leg.StartTime)
	assert.Equal(t, result.ArrivalTime, leg.EndTime)
}

// transitGraph is the scenario-2 fixture: street A-B, stop S connected to
// A, one transit departure S->B at 100 arriving 160.
func transitGraph(t *testing.T) (*graph.Store, graph.NodeId, graph.NodeId) {
	b := graph.NewBuilder()
	a := b.AddNode(graph.Node{Kind: graph.KindStreetNode, ExternalId: "a", Location: geo.LatLng{Lat: 0, Lng: 0}})
	bb := b.AddNode(graph.Node{Kind: graph.KindStreetNode, ExternalId: "b", Location: geo.LatLng{Lat: 0, Lng: 0.001}})
	length := uint32(geo.HaversineMeters(geo.LatLng{Lat: 0, Lng: 0}, geo.LatLng{Lat: 0, Lng: 0.001}))
	b.AddEdge(a, graph.Edge{Kind: graph.KindStreetEdge, Origin: a, Destination: bb, LengthM: length, Foot: true})
	b.AddEdge(bb, graph.Edge{Kind: graph.KindStreetEdge, Origin: bb, Destination: a, LengthM: length, Foot: true})

	s := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Name: "S", Location: geo.LatLng{Lat: 0, Lng: 0.0005}})
	connLen := uint32(geo.HaversineMeters(geo.LatLng{Lat: 0, Lng: 0.0005}, geo.LatLng{Lat: 0, Lng: 0}))
	b.AddEdge(a, graph.Edge{Kind: graph.KindStreetEdge, Origin: a, Destination: s, LengthM: connLen, Partial: true, Foot: true})
	b.AddEdge(s, graph.Edge{Kind: graph.KindStreetEdge, Origin: s, Destination: a, LengthM: connLen, Partial: true, Foot: true})

	svc := b.AppendService(calendar.NewPattern(0x7F, 0, 1000000, nil))
	trip := b.AppendTrip(graph.TripInfo{Headsign: "B", Route: 0})
	b.AppendRoute(graph.RouteInfo{ShortName: "1", Kind: graph.RouteBus, Agency: 0})
	b.AppendAgency(graph.AgencyInfo{Name: "Agency"})
	start := b.AppendDepartures([]graph.TripSegment{{Trip: trip, Departure: 100, Arrival: 160, Service: svc}})
	b.AddEdge(s, graph.Edge{
		Kind: graph.KindTransitEdge, Origin: s, Destination: bb, Route: 0,
		Timetable: graph.TimetableSegment{Start: start, Len: 1},
	})
	return b.Build(), a, bb
}

func TestReconstructWalkThenTransit(t *testing.T) {
	store, from, to := transitGraph(t)
	r := routing.NewRouter(store, false)

	result, err := r.Search(context.Background(), from, to, 0, 0, calendar.Monday, testParams)
	require.NoError(t, err)

	legs, err := Reconstruct(store, result)
	require.NoError(t, err)
	require.Len(t, legs, 2)

	walk := legs[0]
	assert.Equal(t, LegWalk, walk.Kind)
	assert.InDelta(t, 55, walk.LengthM, 2)
	assert.Equal(t, "S", walk.To.Name)

	transit := legs[1]
	assert.Equal(t, LegTransit, transit.Kind)
	assert.Equal(t, graph.TripId(0), transit.Trip)
	assert.Equal(t, uint32(160), transit.EndTime)
	require.Len(t, transit.Steps, 1)
	require.NotNil(t, transit.Steps[0].DepartureIndex)
	assert.Equal(t, "S", transit.From.Name)
}

func TestReconstructSplitsOnTripChange(t *testing.T) {
	b := graph.NewBuilder()
	s1 := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Name: "S1", Location: geo.LatLng{Lat: 0, Lng: 0}})
	s2 := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Name: "S2", Location: geo.LatLng{Lat: 0, Lng: 0.01}})
	s3 := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Name: "S3", Location: geo.LatLng{Lat: 0, Lng: 0.02}})
	svc := b.AppendService(calendar.NewPattern(0x7F, 0, 1000000, nil))

	firstStart := b.AppendDepartures([]graph.TripSegment{{Trip: 1, Departure: 100, Arrival: 200, Service: svc}})
	b.AddEdge(s1, graph.Edge{Kind: graph.KindTransitEdge, Origin: s1, Destination: s2, Timetable: graph.TimetableSegment{Start: firstStart, Len: 1}})

	secondStart := b.AppendDepartures([]graph.TripSegment{{Trip: 2, Departure: 300, Arrival: 400, Service: svc}})
	b.AddEdge(s2, graph.Edge{Kind: graph.KindTransitEdge, Origin: s2, Destination: s3, Timetable: graph.TimetableSegment{Start: secondStart, Len: 1}})
	store := b.Build()

	r := routing.NewRouter(store, false)
	result, err := r.Search(context.Background(), s1, s3, 0, 0, calendar.Monday, testParams)
	require.NoError(t, err)

	legs, err := Reconstruct(store, result)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, graph.TripId(1), legs[0].Trip)
	assert.Equal(t, graph.TripId(2), legs[1].Trip)
}

func TestReconstructEmptyWhenSourceIsTarget(t *testing.T) {
	store, from, _ := chainGraph(t)
	result := &routing.Result{Source: from, Target: from, Predecessors: map[graph.NodeId]routing.Predecessor{}}

	legs, err := Reconstruct(store, result)
	require.NoError(t, err)
	assert.Empty(t, legs)
}
