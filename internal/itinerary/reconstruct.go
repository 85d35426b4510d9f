// Package itinerary turns a routing.Result's predecessor chain into an
// ordered list of legs, and enumerates alternative departures for a
// transit leg riding the same stop pattern.
package itinerary

import (
	"fmt"

	"github.com/dsgvo/journeyplanner/internal/geo"
	"github.com/dsgvo/journeyplanner/internal/graph"
	"github.com/dsgvo/journeyplanner/internal/routing"
)

// Place names one endpoint of a leg: a transit stop's published name, or
// empty for a bare street node.
type Place struct {
	Name     string     `json:"name,omitempty"`
	Location geo.LatLng `json:"location"`
}

// LegKind discriminates the Leg tagged union, matching the graph's own
// Node/Edge style: variant fields are selected by Kind, not by dispatch.
type LegKind uint8

const (
	LegWalk LegKind = iota
	LegTransit
)

func (k LegKind) String() string {
	if k == LegTransit {
		return "transit"
	}
	return "walk"
}

func (k LegKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// Step mirrors one edge of the underlying path. Timetable and
// DepartureIndex are meaningful only when Kind is KindTransitEdge.
type Step struct {
	Kind          graph.EdgeKind `json:"kind"`
	From          graph.NodeId   `json:"from"`
	To            graph.NodeId   `json:"to"`
	LengthM       uint32         `json:"length_m"`
	DepartureTime uint32         `json:"departure_time"`
	ArrivalTime   uint32         `json:"arrival_time"`

	// Timetable and DepartureIndex stay in the JSON form: cached plans
	// round-trip through it, and alternative-departure lookups need them.
	Timetable      graph.TimetableSegment `json:"timetable"`
	DepartureIndex *uint32                `json:"departure_index,omitempty"`
}

// Leg is a WalkLeg or TransitLeg: a run of consecutive edges of the same
// kind, further split on a transit trip change.
type Leg struct {
	Kind      LegKind `json:"kind"`
	From      Place   `json:"from"`
	To        Place   `json:"to"`
	StartTime uint32  `json:"start_time"`
	EndTime   uint32  `json:"end_time"`
	LengthM   uint32  `json:"length_m"`
	Steps     []Step  `json:"steps"`

	// TransitLeg fields.
	Trip  graph.TripId  `json:"trip,omitempty"`
	Route graph.RouteId `json:"route,omitempty"`
}

func place(store *graph.Store, id graph.NodeId) Place {
	n := store.Node(id)
	return Place{Name: n.Name, Location: n.Location}
}

// Reconstruct walks result's predecessor chain from Target back to Source,
// reverses it, and folds the edges into legs: a run of StreetEdges becomes
// one WalkLeg, a run of TransitEdges sharing a trip id becomes one
// TransitLeg, and a change of trip or of mode closes the current leg.
func Reconstruct(store *graph.Store, result *routing.Result) ([]Leg, error) {
	type hop struct {
		from, to       graph.NodeId
		edge           graph.Edge
		departureIndex *uint32
		arrivalTime    uint32
	}

	var hops []hop
	cur := result.Target
	for cur != result.Source {
		pred, ok := result.Predecessors[cur]
		if !ok {
			return nil, fmt.Errorf("broken predecessor chain at node %d", cur)
		}
		hops = append(hops, hop{from: pred.From, to: cur, edge: pred.Edge, departureIndex: pred.DepartureIndex, arrivalTime: pred.ArrivalTime})
		cur = pred.From
	}
	for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
		hops[i], hops[j] = hops[j], hops[i]
	}
	if len(hops) == 0 {
		return nil, nil
	}

	var legs []Leg
	var curLeg *Leg
	clock := result.StartTime

	for _, h := range hops {
		deptClock := clock
		clock = h.arrivalTime
		isTransit := h.edge.Kind == graph.KindTransitEdge

		var tripID graph.TripId
		if isTransit {
			seg := store.Departure(*h.departureIndex)
			tripID = seg.Trip
			// The step departs when the vehicle does, not when the rider
			// reached the stop; the gap is waiting time.
			deptClock = seg.Departure
		}

		step := Step{
			Kind: h.edge.Kind, From: h.from, To: h.to, LengthM: h.edge.LengthM,
			DepartureTime: deptClock, ArrivalTime: h.arrivalTime,
		}
		if isTransit {
			step.Timetable = h.edge.Timetable
			step.DepartureIndex = h.departureIndex
		}

		newLeg := curLeg == nil
		if curLeg != nil {
			sameMode := (curLeg.Kind == LegTransit) == isTransit
			sameTrip := !isTransit || curLeg.Trip == tripID
			if !sameMode || !sameTrip {
				newLeg = true
			}
		}

		if newLeg {
			if curLeg != nil {
				legs = append(legs, *curLeg)
			}
			kind := LegWalk
			if isTransit {
				kind = LegTransit
			}
			curLeg = &Leg{Kind: kind, From: place(store, h.from), StartTime: deptClock}
			if isTransit {
				curLeg.Trip = tripID
				curLeg.Route = h.edge.Route
			}
		}

		curLeg.Steps = append(curLeg.Steps, step)
		curLeg.To = place(store, h.to)
		curLeg.EndTime = h.arrivalTime
		curLeg.LengthM += h.edge.LengthM
	}
	legs = append(legs, *curLeg)

	return legs, nil
}
