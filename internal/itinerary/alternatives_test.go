package itinerary

import (
	"testing"

	"github.com/dsgvo/journeyplanner/internal/calendar"
	"github.com/dsgvo/journeyplanner/internal/geo"
	"github.com/dsgvo/journeyplanner/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// patternGraph builds a single TransitEdge S->D carrying five departures on
// an always-active service, boarding the third (index 2).
func patternGraph(t *testing.T) (*graph.Store, graph.NodeId, graph.NodeId, graph.TimetableSegment) {
	b := graph.NewBuilder()
	s := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0}, Name: "S"})
	d := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0.01}, Name: "D"})
	svc := b.AppendService(calendar.NewPattern(0x7F, 0, 1000000, nil))

	start := b.AppendDepartures([]graph.TripSegment{
		{Trip: 1, Departure: 100, Arrival: 500, Service: svc},
		{Trip: 2, Departure: 200, Arrival: 600, Service: svc},
		{Trip: 3, Departure: 300, Arrival: 700, Service: svc},
		{Trip: 4, Departure: 400, Arrival: 800, Service: svc},
		{Trip: 5, Departure: 500, Arrival: 900, Service: svc},
	})
	seg := graph.TimetableSegment{Start: start, Len: 5}
	b.AddEdge(s, graph.Edge{Kind: graph.KindTransitEdge, Origin: s, Destination: d, Timetable: seg})
	return b.Build(), s, d, seg
}

func boardedLeg(store *graph.Store, s, d graph.NodeId, seg graph.TimetableSegment, pivot uint32) Leg {
	ts := store.Departure(pivot)
	idx := pivot
	return Leg{
		Kind: LegTransit, From: place(store, s), To: place(store, d),
		StartTime: ts.Departure, EndTime: ts.Arrival, Trip: ts.Trip,
		Steps: []Step{{
			Kind: graph.KindTransitEdge, From: s, To: d,
			DepartureTime: ts.Departure, ArrivalTime: ts.Arrival,
			Timetable: seg, DepartureIndex: &idx,
		}},
	}
}

func TestAlternativesLaterReturnsNextThreeInOrder(t *testing.T) {
	store, s, d, seg := patternGraph(t)
	boarded := boardedLeg(store, s, d, seg, seg.Start+1) // boarded Trip 2, dep=200

	alts := Alternatives(store, boarded, 0, calendar.Monday, Later, 3)
	require.Len(t, alts, 3)
	assert.Equal(t, graph.TripId(3), alts[0].Trip)
	assert.Equal(t, graph.TripId(4), alts[1].Trip)
	assert.Equal(t, graph.TripId(5), alts[2].Trip)
	assert.Less(t, alts[0].StartTime, alts[1].StartTime)
	assert.Less(t, alts[1].StartTime, alts[2].StartTime)
}

func TestAlternativesEarlierReturnsPrecedingInOrder(t *testing.T) {
	store, s, d, seg := patternGraph(t)
	boarded := boardedLeg(store, s, d, seg, seg.Start+3) // boarded Trip 4, dep=400

	alts := Alternatives(store, boarded, 0, calendar.Monday, Earlier, 3)
	require.Len(t, alts, 3)
	assert.Equal(t, graph.TripId(3), alts[0].Trip)
	assert.Equal(t, graph.TripId(2), alts[1].Trip)
	assert.Equal(t, graph.TripId(1), alts[2].Trip)
}

func TestAlternativesSkipsInactiveService(t *testing.T) {
	b := graph.NewBuilder()
	s := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0}, Name: "S"})
	d := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0.01}, Name: "D"})
	always := b.AppendService(calendar.NewPattern(0x7F, 0, 1000000, nil))
	never := b.AppendService(calendar.NewPattern(0, 0, 1000000, nil))

	start := b.AppendDepartures([]graph.TripSegment{
		{Trip: 1, Departure: 100, Arrival: 500, Service: always},
		{Trip: 2, Departure: 200, Arrival: 600, Service: never},
		{Trip: 3, Departure: 300, Arrival: 700, Service: always},
	})
	seg := graph.TimetableSegment{Start: start, Len: 3}
	b.AddEdge(s, graph.Edge{Kind: graph.KindTransitEdge, Origin: s, Destination: d, Timetable: seg})
	store := b.Build()

	boarded := boardedLeg(store, s, d, seg, seg.Start)
	alts := Alternatives(store, boarded, 0, calendar.Monday, Later, 3)
	require.Len(t, alts, 1)
	assert.Equal(t, graph.TripId(3), alts[0].Trip)
}

// TestAlternativesDropsCandidateMissingSubsequentStep exercises a two-step
// leg where the second step's timetable segment only carries the boarded
// trip; every alternative candidate for the first step is dropped because
// it can't be matched on the second.
func TestAlternativesDropsCandidateMissingSubsequentStep(t *testing.T) {
	b := graph.NewBuilder()
	s := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0}, Name: "S"})
	mid := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0.01}, Name: "mid"})
	d := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0.02}, Name: "D"})
	svc := b.AppendService(calendar.NewPattern(0x7F, 0, 1000000, nil))

	firstStart := b.AppendDepartures([]graph.TripSegment{
		{Trip: 1, Departure: 100, Arrival: 200, Service: svc},
		{Trip: 2, Departure: 300, Arrival: 400, Service: svc},
	})
	firstSeg := graph.TimetableSegment{Start: firstStart, Len: 2}
	b.AddEdge(s, graph.Edge{Kind: graph.KindTransitEdge, Origin: s, Destination: mid, Timetable: firstSeg})

	secondStart := b.AppendDepartures([]graph.TripSegment{
		{Trip: 1, Departure: 210, Arrival: 500, Service: svc},
	})
	secondSeg := graph.TimetableSegment{Start: secondStart, Len: 1}
	b.AddEdge(mid, graph.Edge{Kind: graph.KindTransitEdge, Origin: mid, Destination: d, Timetable: secondSeg})
	store := b.Build()

	idx0 := firstSeg.Start
	idx1 := secondSeg.Start
	boarded := Leg{
		Kind: LegTransit, From: place(store, s), To: place(store, d),
		StartTime: 100, EndTime: 500, Trip: 1,
		Steps: []Step{
			{Kind: graph.KindTransitEdge, From: s, To: mid, DepartureTime: 100, ArrivalTime: 200, Timetable: firstSeg, DepartureIndex: &idx0},
			{Kind: graph.KindTransitEdge, From: mid, To: d, DepartureTime: 210, ArrivalTime: 500, Timetable: secondSeg, DepartureIndex: &idx1},
		},
	}

	alts := Alternatives(store, boarded, 0, calendar.Monday, Later, 3)
	assert.Empty(t, alts)
}
