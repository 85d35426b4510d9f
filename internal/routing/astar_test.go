package routing

import (
	"context"
	"testing"

	"github.com/dsgvo/journeyplanner/internal/calendar"
	"github.com/dsgvo/journeyplanner/internal/errs"
	"github.com/dsgvo/journeyplanner/internal/geo"
	"github.com/dsgvo/journeyplanner/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenario1Graph builds the two-street-node fixture from the end-to-end
// properties: A(0,0) and B(0,0.001), one bidirectional 111m walkable edge.
func scenario1Graph(t *testing.T) (*graph.Store, graph.NodeId, graph.NodeId) {
	b := graph.NewBuilder()
	a := b.AddNode(graph.Node{Kind: graph.KindStreetNode, Location: geo.LatLng{Lat: 0, Lng: 0}, ExternalId: "a"})
	bb := b.AddNode(graph.Node{Kind: graph.KindStreetNode, Location: geo.LatLng{Lat: 0, Lng: 0.001}, ExternalId: "b"})
	length := uint32(geo.HaversineMeters(geo.LatLng{Lat: 0, Lng: 0}, geo.LatLng{Lat: 0, Lng: 0.001}))
	b.AddEdge(a, graph.Edge{Kind: graph.KindStreetEdge, Origin: a, Destination: bb, LengthM: length, Foot: true})
	b.AddEdge(bb, graph.Edge{Kind: graph.KindStreetEdge, Origin: bb, Destination: a, LengthM: length, Foot: true})
	return b.Build(), a, bb
}

func TestScenario1WalkOnly(t *testing.T) {
	store, a, bb := scenario1Graph(t)
	r := NewRouter(store, false)

	result, err := r.Search(context.Background(), a, bb, 0, 0, calendar.Monday, Params{WalkingSpeedMMPerS: 1389, EstimatorSpeedMMPerS: 13890})
	require.NoError(t, err)

	pred, ok := result.Predecessors[bb]
	require.True(t, ok)
	assert.Equal(t, a, pred.From)
	assert.Equal(t, graph.KindStreetEdge, pred.Edge.Kind)
	assert.InDelta(t, 80, result.ArrivalTime, 1)
}

// scenario2Graph adds TransitStop S at (0, 0.0005), a 55m connector to A,
// and a TransitEdge S->B on ServiceId active only on weekday=2.
func scenario2Graph(t *testing.T) (*graph.Store, graph.NodeId, graph.NodeId, graph.NodeId) {
	b := graph.NewBuilder()
	a := b.AddNode(graph.Node{Kind: graph.KindStreetNode, Location: geo.LatLng{Lat: 0, Lng: 0}, ExternalId: "a"})
	bb := b.AddNode(graph.Node{Kind: graph.KindStreetNode, Location: geo.LatLng{Lat: 0, Lng: 0.001}, ExternalId: "b"})
	length := uint32(geo.HaversineMeters(geo.LatLng{Lat: 0, Lng: 0}, geo.LatLng{Lat: 0, Lng: 0.001}))
	b.AddEdge(a, graph.Edge{Kind: graph.KindStreetEdge, Origin: a, Destination: bb, LengthM: length, Foot: true})
	b.AddEdge(bb, graph.Edge{Kind: graph.KindStreetEdge, Origin: bb, Destination: a, LengthM: length, Foot: true})

	s := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0.0005}, Name: "S"})
	connLen := uint32(geo.HaversineMeters(geo.LatLng{Lat: 0, Lng: 0.0005}, geo.LatLng{Lat: 0, Lng: 0}))
	b.AddEdge(s, graph.Edge{Kind: graph.KindStreetEdge, Origin: s, Destination: a, LengthM: connLen, Partial: true, Foot: true})
	b.AddEdge(a, graph.Edge{Kind: graph.KindStreetEdge, Origin: a, Destination: s, LengthM: connLen, Partial: true, Foot: true})

	// Weekday-restricted pattern: mask bit for weekday 2 (Wednesday) set.
	svc := b.AppendService(calendar.NewPattern(1<<2, 0, 1000000, nil))

	start := b.AppendDepartures([]graph.TripSegment{{Trip: 0, Departure: 100, Arrival: 160, Service: svc}})
	b.AddEdge(s, graph.Edge{
		Kind: graph.KindTransitEdge, Origin: s, Destination: bb,
		Timetable: graph.TimetableSegment{Start: start, Len: 1},
	})

	return b.Build(), a, bb, s
}

func TestScenario2TransitActive(t *testing.T) {
	store, a, bb, s := scenario2Graph(t)
	r := NewRouter(store, false)

	result, err := r.Search(context.Background(), a, bb, 0, 5, calendar.Wednesday, Params{WalkingSpeedMMPerS: 1389, EstimatorSpeedMMPerS: 13890})
	require.NoError(t, err)

	predB, ok := result.Predecessors[bb]
	require.True(t, ok)
	assert.Equal(t, graph.KindTransitEdge, predB.Edge.Kind)
	assert.Equal(t, s, predB.From)
	assert.Equal(t, uint32(160), predB.ArrivalTime)

	predS, ok := result.Predecessors[s]
	require.True(t, ok)
	assert.Equal(t, a, predS.From)
}

func TestScenario3TransitInactiveFallsBackToWalk(t *testing.T) {
	store, a, bb, _ := scenario2Graph(t)
	r := NewRouter(store, false)

	result, err := r.Search(context.Background(), a, bb, 0, 5, calendar.Thursday, Params{WalkingSpeedMMPerS: 1389, EstimatorSpeedMMPerS: 13890})
	require.NoError(t, err)

	predB, ok := result.Predecessors[bb]
	require.True(t, ok)
	assert.Equal(t, graph.KindStreetEdge, predB.Edge.Kind)
	assert.Equal(t, a, predB.From)
}

func TestScenario4BoardsCorrectDeparture(t *testing.T) {
	b := graph.NewBuilder()
	s := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0}, Name: "S"})
	d := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0.01}, Name: "D"})
	svc := b.AppendService(calendar.NewPattern(0x7F, 0, 1000000, nil))
	start := b.AppendDepartures([]graph.TripSegment{
		{Trip: 1, Departure: 100, Arrival: 500, Service: svc},
		{Trip: 2, Departure: 200, Arrival: 600, Service: svc},
	})
	b.AddEdge(s, graph.Edge{Kind: graph.KindTransitEdge, Origin: s, Destination: d, Timetable: graph.TimetableSegment{Start: start, Len: 2}})
	store := b.Build()

	r := NewRouter(store, false)

	t.Run("start_time=150 boards dep=200", func(t *testing.T) {
		result, err := r.Search(context.Background(), s, d, 150, 0, calendar.Monday, Params{WalkingSpeedMMPerS: 1389, EstimatorSpeedMMPerS: 13890})
		require.NoError(t, err)
		assert.Equal(t, uint32(600), result.ArrivalTime)
	})

	t.Run("start_time=90 boards dep=100", func(t *testing.T) {
		result, err := r.Search(context.Background(), s, d, 90, 0, calendar.Monday, Params{WalkingSpeedMMPerS: 1389, EstimatorSpeedMMPerS: 13890})
		require.NoError(t, err)
		assert.Equal(t, uint32(500), result.ArrivalTime)
	})
}

func TestNoPathFound(t *testing.T) {
	b := graph.NewBuilder()
	a := b.AddNode(graph.Node{Kind: graph.KindStreetNode, Location: geo.LatLng{Lat: 0, Lng: 0}, ExternalId: "a"})
	isolated := b.AddNode(graph.Node{Kind: graph.KindStreetNode, Location: geo.LatLng{Lat: 5, Lng: 5}, ExternalId: "z"})
	store := b.Build()

	r := NewRouter(store, false)
	_, err := r.Search(context.Background(), a, isolated, 0, 0, calendar.Monday, Params{WalkingSpeedMMPerS: 1389, EstimatorSpeedMMPerS: 13890})
	require.Error(t, err)
	var notFound *errs.NoPathFound
	assert.ErrorAs(t, err, &notFound)
}

// TestAllowReopenModesMayDiverge builds a graph with a slow transit edge and
// a fast walk from src to mid, and an onward departure that only the walk
// catches. On this fixture the walk replaces the transit arrival before mid
// is popped, so both modes arrive at 900; the test checks that reopening
// never arrives later than the closed-set default.
func TestAllowReopenModesMayDiverge(t *testing.T) {
	b := graph.NewBuilder()
	src := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0}, Name: "src"})
	mid := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0.001}, Name: "mid"})
	dst := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0.002}, Name: "dst"})

	svc := b.AppendService(calendar.NewPattern(0x7F, 0, 1000000, nil))

	// A slow direct transit edge arriving at mid at 1000, too late for the
	// onward departure.
	slowStart := b.AppendDepartures([]graph.TripSegment{{Trip: 1, Departure: 0, Arrival: 1000, Service: svc}})
	b.AddEdge(src, graph.Edge{Kind: graph.KindTransitEdge, Origin: src, Destination: mid, Timetable: graph.TimetableSegment{Start: slowStart, Len: 1}})

	// A fast street walk to mid (10m, arriving at 7s), which replaces the
	// transit arrival as mid's best entry.
	fastLen := uint32(10)
	b.AddEdge(src, graph.Edge{Kind: graph.KindStreetEdge, Origin: src, Destination: mid, LengthM: fastLen, Foot: true})

	// The onward trip from mid only departs at 500: reachable by the fast walk
	// (arrives 7s) but missed by the slow transit edge (arrives 1000).
	onwardStart := b.AppendDepartures([]graph.TripSegment{{Trip: 2, Departure: 500, Arrival: 900, Service: svc}})
	b.AddEdge(mid, graph.Edge{Kind: graph.KindTransitEdge, Origin: mid, Destination: dst, Timetable: graph.TimetableSegment{Start: onwardStart, Len: 1}})

	store := b.Build()
	params := Params{WalkingSpeedMMPerS: 1389, EstimatorSpeedMMPerS: 13890}

	strict := NewRouter(store, false)
	resultStrict, err := strict.Search(context.Background(), src, dst, 0, 0, calendar.Monday, params)
	require.NoError(t, err)

	reopen := NewRouter(store, true)
	resultReopen, err := reopen.Search(context.Background(), src, dst, 0, 0, calendar.Monday, params)
	require.NoError(t, err)

	assert.LessOrEqual(t, resultReopen.ArrivalTime, resultStrict.ArrivalTime)
}

// TestMinTransferTimeDelaysBoarding rides trip 1 into mid and can only
// catch the onward departure at 210 if no transfer minimum applies; with a
// 60s same-stop minimum the 210 departure is missed and the 400 one boards.
func TestMinTransferTimeDelaysBoarding(t *testing.T) {
	build := func(withTransfer bool) *graph.Store {
		b := graph.NewBuilder()
		s1 := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0}, Name: "S1"})
		mid := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0.01}, Name: "mid"})
		dst := b.AddNode(graph.Node{Kind: graph.KindTransitStop, Location: geo.LatLng{Lat: 0, Lng: 0.02}, Name: "dst"})
		svc := b.AppendService(calendar.NewPattern(0x7F, 0, 1000000, nil))

		inStart := b.AppendDepartures([]graph.TripSegment{{Trip: 1, Departure: 100, Arrival: 200, Service: svc}})
		b.AddEdge(s1, graph.Edge{Kind: graph.KindTransitEdge, Origin: s1, Destination: mid, Timetable: graph.TimetableSegment{Start: inStart, Len: 1}})

		onStart := b.AppendDepartures([]graph.TripSegment{
			{Trip: 2, Departure: 210, Arrival: 300, Service: svc},
			{Trip: 3, Departure: 400, Arrival: 500, Service: svc},
		})
		b.AddEdge(mid, graph.Edge{Kind: graph.KindTransitEdge, Origin: mid, Destination: dst, Timetable: graph.TimetableSegment{Start: onStart, Len: 2}})

		if withTransfer {
			b.AddTransfer(mid, mid, 60)
		}
		return b.Build()
	}
	params := Params{WalkingSpeedMMPerS: 1389, EstimatorSpeedMMPerS: 13890}

	t.Run("without a transfer minimum the tight connection holds", func(t *testing.T) {
		r := NewRouter(build(false), false)
		result, err := r.Search(context.Background(), 0, 2, 0, 0, calendar.Monday, params)
		require.NoError(t, err)
		assert.Equal(t, uint32(300), result.ArrivalTime)
	})

	t.Run("a 60s minimum pushes boarding to the next departure", func(t *testing.T) {
		r := NewRouter(build(true), false)
		result, err := r.Search(context.Background(), 0, 2, 0, 0, calendar.Monday, params)
		require.NoError(t, err)
		assert.Equal(t, uint32(500), result.ArrivalTime)
	})
}
