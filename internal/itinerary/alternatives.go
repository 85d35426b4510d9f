package itinerary

import (
	"github.com/dsgvo/journeyplanner/internal/calendar"
	"github.com/dsgvo/journeyplanner/internal/graph"
)

// Direction selects which side of a leg's boarded departure to enumerate.
type Direction uint8

const (
	Earlier Direction = iota
	Later
)

// Alternatives enumerates up to count legs riding the same stop pattern as
// leg, departing earlier or later than the one actually boarded. Each
// candidate's trip id is matched against every subsequent step's timetable
// segment; a candidate with any unmatched step (a short-turn or timing
// variant that doesn't run the full pattern) is dropped.
func Alternatives(store *graph.Store, leg Leg, date uint32, weekday calendar.Weekday, direction Direction, count int) []Leg {
	if leg.Kind != LegTransit || len(leg.Steps) == 0 {
		return nil
	}
	first := leg.Steps[0]
	if first.DepartureIndex == nil {
		return nil
	}

	var candidates []graph.DepartureEntry
	switch direction {
	case Earlier:
		candidates = store.PrevDepartures(first.Timetable, date, weekday, *first.DepartureIndex, count)
	case Later:
		candidates = store.NextDepartures(first.Timetable, date, weekday, *first.DepartureIndex, count)
	}

	alts := make([]Leg, 0, len(candidates))
	for _, cand := range candidates {
		if alt, ok := rebuildForTrip(store, leg, cand); ok {
			alts = append(alts, alt)
		}
	}
	return alts
}

// rebuildForTrip adopts candidate's trip id for leg's first step, then
// locates the matching TripSegment in every subsequent step's timetable
// segment. Returns ok=false if any step cannot be matched.
func rebuildForTrip(store *graph.Store, leg Leg, candidate graph.DepartureEntry) (Leg, bool) {
	tripID := candidate.Segment.Trip

	alt := Leg{Kind: LegTransit, From: leg.From, To: leg.To, LengthM: leg.LengthM, Route: leg.Route, Trip: tripID}
	alt.Steps = make([]Step, len(leg.Steps))

	for i, step := range leg.Steps {
		var seg graph.TripSegment
		var index uint32
		if i == 0 {
			seg, index = candidate.Segment, candidate.Index
		} else {
			matched, matchedIndex, ok := findSegmentForTrip(store, step.Timetable, tripID)
			if !ok {
				return Leg{}, false
			}
			seg, index = matched, matchedIndex
		}

		idx := index
		alt.Steps[i] = Step{
			Kind: step.Kind, From: step.From, To: step.To, LengthM: step.LengthM,
			DepartureTime: seg.Departure, ArrivalTime: seg.Arrival,
			Timetable: step.Timetable, DepartureIndex: &idx,
		}
		if i == 0 {
			alt.StartTime = seg.Departure
		}
		alt.EndTime = seg.Arrival
	}
	return alt, true
}

func findSegmentForTrip(store *graph.Store, seg graph.TimetableSegment, tripID graph.TripId) (graph.TripSegment, uint32, bool) {
	for i := seg.Start; i < seg.Start+seg.Len; i++ {
		ts := store.Departure(i)
		if ts.Trip == tripID {
			return ts, i, true
		}
	}
	return graph.TripSegment{}, 0, false
}
