package gtfsfeed

import (
	"fmt"
	"sort"

	"github.com/dsgvo/journeyplanner/internal/calendar"
	"github.com/dsgvo/journeyplanner/internal/geo"
	"github.com/dsgvo/journeyplanner/internal/graph"
	"github.com/dsgvo/journeyplanner/internal/ids"
)

// maxConnectorMeters is the farthest a transit stop may be from its nearest
// street node and still receive a pedestrian connector.
const maxConnectorMeters = 1000.0

// Report counts per-record problems tolerated during ingestion, mirroring
// the OSM ingester's policy: dirty bulk input is forgiven at record
// granularity, rejected at structural granularity.
type Report struct {
	StopsConsidered            int
	StopsAccepted              int
	StopsSkippedMissingFields  int
	StopsNoNearbyStreetNode    int
	StopsTooFarFromStreetNode  int
	RoutesDroppedUnknownAgency int
	TripsDroppedUnknownRef     int
	StopTimesSkipped           int
	TransitEdgesEmitted        int
	FrequencyTripsExpanded     int
}

// Result carries the tolerated-problem counts of one Ingest call.
type Result struct {
	Report Report
}

// Ingest runs the GTFS pipeline against feed, adding transit stops, street
// connectors, service patterns, routes, trips, and transit edges to b. All
// feed-local identifiers are translated to dense global ids offset by the
// table sizes observed at the start of this call, so a feed may be merged
// into a graph that already carries an earlier feed or an OSM street
// network.
func Ingest(b *graph.Builder, feed *Feed) (Result, error) {
	sizes := b.TableSizes()
	mappers := graph.NewFeedMappers()
	var result Result

	stopNodeId := stopPass(b, feed, &result.Report)

	serviceGlobal := calendarPass(b, feed, mappers.Services, sizes.Services)

	agencyGlobal := agencyPass(b, feed, mappers.Agencies, sizes.Agencies)
	routeGlobal := routePass(b, feed, mappers.Routes, sizes.Routes, agencyGlobal, &result.Report)
	tripMeta := tripPass(feed, mappers.Trips, routeGlobal, serviceGlobal, &result.Report)

	stopTimesByTrip := make(map[string][]StopTime)
	for _, st := range feed.StopTimes {
		stopTimesByTrip[st.TripID] = append(stopTimesByTrip[st.TripID], st)
	}

	stopTimesByTrip, expanded := expandFrequencies(feed, stopTimesByTrip, tripMeta)
	result.Report.FrequencyTripsExpanded = expanded

	stopTimesPass(b, stopTimesByTrip, stopNodeId, tripMeta, &result.Report)

	transferPass(b, feed, stopNodeId)

	return result, nil
}

// stopPass materializes one TransitStop per valid stop row and, where a
// street node lies within maxConnectorMeters, a pair of partial walking
// connectors.
func stopPass(b *graph.Builder, feed *Feed, report *Report) map[string]graph.NodeId {
	stopNodeId := make(map[string]graph.NodeId, len(feed.Stops))
	for _, st := range feed.Stops {
		report.StopsConsidered++
		if st.StopID == "" || st.Name == "" || !ValidCoordinate(st.Lat, st.Lon) {
			report.StopsSkippedMissingFields++
			continue
		}
		loc := geo.LatLng{Lat: st.Lat, Lng: st.Lon}
		nodeId := b.AddNode(graph.Node{
			Kind:       graph.KindTransitStop,
			Location:   loc,
			Name:       st.Name,
			Wheelchair: wheelchairOf(st.Wheelchair),
		})
		stopNodeId[st.StopID] = nodeId
		report.StopsAccepted++

		nearest, distM, ok := b.NearestStreetNode(loc)
		if !ok {
			report.StopsNoNearbyStreetNode++
			continue
		}
		if distM > maxConnectorMeters {
			report.StopsTooFarFromStreetNode++
			continue
		}
		length := uint32(distM)
		b.AddEdge(nodeId, graph.Edge{
			Kind: graph.KindStreetEdge, Origin: nodeId, Destination: nearest,
			LengthM: length, Partial: true, Foot: true,
		})
		b.AddEdge(nearest, graph.Edge{
			Kind: graph.KindStreetEdge, Origin: nearest, Destination: nodeId,
			LengthM: length, Partial: true, Foot: true,
		})
	}
	return stopNodeId
}

// calendarPass materializes one ServicePattern per service id, whether it
// appears in calendar.txt, calendar_dates.txt, or both. Iteration order is
// sorted by service id so repeated ingestion of the same feed assigns the
// same dense ids and so saves to a byte-identical graph file.
func calendarPass(b *graph.Builder, feed *Feed, mapper *ids.Mapper, offset int) func(string) (graph.ServiceId, bool) {
	exceptions := make(map[string]map[uint32]int)
	for _, cd := range feed.CalendarDates {
		year, month, day, err := ParseDate(cd.Date)
		if err != nil {
			continue
		}
		d := calendar.DaysSinceEpoch(year, month, day)
		if exceptions[cd.ServiceID] == nil {
			exceptions[cd.ServiceID] = make(map[uint32]int)
		}
		exceptions[cd.ServiceID][d] = cd.ExceptionType
	}

	patterns := make(map[string]calendar.Pattern)
	seen := make(map[string]bool)
	for _, c := range feed.Calendars {
		seen[c.ServiceID] = true
		startY, startM, startD, err1 := ParseDate(c.StartDate)
		endY, endM, endD, err2 := ParseDate(c.EndDate)
		if err1 != nil || err2 != nil {
			continue
		}
		start := calendar.DaysSinceEpoch(startY, startM, startD)
		end := calendar.DaysSinceEpoch(endY, endM, endD)
		patterns[c.ServiceID] = calendar.NewPattern(dayMask(c), start, end, exceptions[c.ServiceID])
	}
	for svcID, exc := range exceptions {
		if seen[svcID] {
			continue
		}
		patterns[svcID] = calendar.ExceptionOnly(exc)
	}

	order := make([]string, 0, len(patterns))
	for id := range patterns {
		order = append(order, id)
	}
	sort.Strings(order)
	for _, id := range order {
		mapper.GetOrInsert(id)
		b.AppendService(patterns[id])
	}

	return func(serviceID string) (graph.ServiceId, bool) {
		local, ok := mapper.Get(serviceID)
		if !ok {
			return 0, false
		}
		return graph.ServiceId(offset + int(local)), true
	}
}

func wheelchairOf(code int) graph.Wheelchair {
	switch code {
	case 1:
		return graph.WheelchairAvailable
	case 2:
		return graph.WheelchairNotAvailable
	default:
		return graph.WheelchairUnknown
	}
}

func dayMask(c Calendar) uint8 {
	var m uint8
	if c.Monday {
		m |= 1 << 0
	}
	if c.Tuesday {
		m |= 1 << 1
	}
	if c.Wednesday {
		m |= 1 << 2
	}
	if c.Thursday {
		m |= 1 << 3
	}
	if c.Friday {
		m |= 1 << 4
	}
	if c.Saturday {
		m |= 1 << 5
	}
	if c.Sunday {
		m |= 1 << 6
	}
	return m
}

func agencyPass(b *graph.Builder, feed *Feed, mapper *ids.Mapper, offset int) func(string) (graph.AgencyId, bool) {
	byId := make(map[string]Agency)
	order := make([]string, 0, len(feed.Agencies))
	for _, a := range feed.Agencies {
		if _, exists := byId[a.AgencyID]; !exists {
			order = append(order, a.AgencyID)
		}
		byId[a.AgencyID] = a
	}
	sort.Strings(order)
	for _, id := range order {
		mapper.GetOrInsert(id)
		a := byId[id]
		b.AppendAgency(graph.AgencyInfo{Name: a.Name, Url: a.Url, Timezone: a.Timezone})
	}

	return func(agencyID string) (graph.AgencyId, bool) {
		if agencyID == "" && mapper.Len() == 1 {
			return graph.AgencyId(offset), true
		}
		local, ok := mapper.Get(agencyID)
		if !ok {
			return 0, false
		}
		return graph.AgencyId(offset + int(local)), true
	}
}

func routePass(b *graph.Builder, feed *Feed, mapper *ids.Mapper, offset int, agencyGlobal func(string) (graph.AgencyId, bool), report *Report) func(string) (graph.RouteId, bool) {
	byId := make(map[string]Route)
	order := make([]string, 0, len(feed.Routes))
	for _, r := range feed.Routes {
		if _, exists := byId[r.RouteID]; !exists {
			order = append(order, r.RouteID)
		}
		byId[r.RouteID] = r
	}
	sort.Strings(order)

	for _, id := range order {
		r := byId[id]
		agency, ok := agencyGlobal(r.AgencyID)
		if !ok {
			report.RoutesDroppedUnknownAgency++
			continue
		}
		mapper.GetOrInsert(id)
		b.AppendRoute(graph.RouteInfo{
			ShortName: r.ShortName, LongName: r.LongName,
			Kind: InferRouteKind(r.RouteType), Agency: agency,
		})
	}

	return func(routeID string) (graph.RouteId, bool) {
		local, ok := mapper.Get(routeID)
		if !ok {
			return 0, false
		}
		return graph.RouteId(offset + int(local)), true
	}
}

// tripInfo bundles the resolved table ids a trip needs during the
// stop-times pass, without re-walking the routes/services maps per hop.
type tripInfo struct {
	Route    graph.RouteId
	Service  graph.ServiceId
	Headsign string
}

func tripPass(feed *Feed, mapper *ids.Mapper, routeGlobal func(string) (graph.RouteId, bool), serviceGlobal func(string) (graph.ServiceId, bool), report *Report) map[string]tripInfo {
	meta := make(map[string]tripInfo, len(feed.Trips))
	order := make([]string, 0, len(feed.Trips))
	byId := make(map[string]Trip)
	for _, t := range feed.Trips {
		if _, exists := byId[t.TripID]; !exists {
			order = append(order, t.TripID)
		}
		byId[t.TripID] = t
	}
	sort.Strings(order)

	for _, id := range order {
		t := byId[id]
		route, ok := routeGlobal(t.RouteID)
		if !ok {
			report.TripsDroppedUnknownRef++
			continue
		}
		service, ok := serviceGlobal(t.ServiceID)
		if !ok {
			report.TripsDroppedUnknownRef++
			continue
		}
		mapper.GetOrInsert(id)
		meta[id] = tripInfo{Route: route, Service: service, Headsign: t.Headsign}
	}
	// TripId is assigned by the graph builder's TripInfo table at the
	// stop-times pass: every trip resolved here that has stop_times rows
	// gets a TripInfo row, even if none of its hops resolve; trips dropped
	// here never reach it.
	return meta
}

type routeSegmentKey struct {
	Origin, Destination graph.NodeId
	Route               graph.RouteId
}

// stopTimesPass groups stop_time rows by trip, buckets consecutive hops by
// (origin, destination, route), and compiles each bucket into one
// TransitEdge whose timetable names a contiguous run of the global
// departures table.
func stopTimesPass(b *graph.Builder, stopTimesByTrip map[string][]StopTime, stopNodeId map[string]graph.NodeId, tripMeta map[string]tripInfo, report *Report) {
	buckets := make(map[routeSegmentKey][]graph.TripSegment)

	order := make([]string, 0, len(stopTimesByTrip))
	for id := range stopTimesByTrip {
		order = append(order, id)
	}
	sort.Strings(order)

	for _, tripID := range order {
		times := stopTimesByTrip[tripID]
		meta, ok := tripMeta[baseTripID(tripID)]
		if !ok {
			report.StopTimesSkipped += len(times)
			continue
		}
		sort.Slice(times, func(i, j int) bool { return times[i].StopSequence < times[j].StopSequence })

		tripGlobal := b.AppendTrip(graph.TripInfo{Route: meta.Route, Headsign: meta.Headsign})

		for i := 0; i+1 < len(times); i++ {
			s1, s2 := times[i], times[i+1]
			n1, ok1 := stopNodeId[s1.StopID]
			n2, ok2 := stopNodeId[s2.StopID]
			if !ok1 || !ok2 || s1.DepartureTime == "" || s2.ArrivalTime == "" {
				report.StopTimesSkipped++
				continue
			}
			dep, err1 := ParseTimeToSeconds(s1.DepartureTime)
			arr, err2 := ParseTimeToSeconds(s2.ArrivalTime)
			if err1 != nil || err2 != nil {
				report.StopTimesSkipped++
				continue
			}
			key := routeSegmentKey{Origin: n1, Destination: n2, Route: meta.Route}
			buckets[key] = append(buckets[key], graph.TripSegment{
				Trip: tripGlobal, Departure: uint32(dep), Arrival: uint32(arr), Service: meta.Service,
			})
		}
	}

	keys := make([]routeSegmentKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Origin != keys[j].Origin {
			return keys[i].Origin < keys[j].Origin
		}
		if keys[i].Destination != keys[j].Destination {
			return keys[i].Destination < keys[j].Destination
		}
		return keys[i].Route < keys[j].Route
	})

	for _, key := range keys {
		segs := buckets[key]
		sort.Slice(segs, func(i, j int) bool { return segs[i].Departure < segs[j].Departure })
		start := b.AppendDepartures(segs)
		lengthM := uint32(geo.HaversineMeters(b.NodeLocation(key.Origin), b.NodeLocation(key.Destination)))
		b.AddEdge(key.Origin, graph.Edge{
			Kind: graph.KindTransitEdge, Origin: key.Origin, Destination: key.Destination,
			LengthM: lengthM, Route: key.Route,
			Timetable: graph.TimetableSegment{Start: start, Len: uint32(len(segs))},
		})
		report.TransitEdgesEmitted++
	}
}

func transferPass(b *graph.Builder, feed *Feed, stopNodeId map[string]graph.NodeId) {
	for _, tr := range feed.Transfers {
		from, ok1 := stopNodeId[tr.FromStopID]
		to, ok2 := stopNodeId[tr.ToStopID]
		if !ok1 || !ok2 || tr.MinTransferTime < 0 {
			continue
		}
		b.AddTransfer(from, to, uint32(tr.MinTransferTime))
	}
}

// expandFrequencies turns each frequencies.txt row into a run of synthetic
// trips sharing the referenced trip's relative stop pattern, one per
// headway interval between start_time and end_time. The referenced base
// trip's own stop_times are not also emitted literally: in GTFS, a
// frequency-based trip's stop_times encode only the relative offsets of
// one cycle, not a real departure.
func expandFrequencies(feed *Feed, stopTimesByTrip map[string][]StopTime, tripMeta map[string]tripInfo) (map[string][]StopTime, int) {
	out := make(map[string][]StopTime, len(stopTimesByTrip))
	for id, times := range stopTimesByTrip {
		out[id] = times
	}

	expanded := 0
	frequencyTrips := make(map[string]bool)
	for _, fr := range feed.Frequencies {
		base, ok := out[fr.TripID]
		if !ok || len(base) == 0 {
			continue
		}
		if _, ok := tripMeta[fr.TripID]; !ok {
			continue
		}
		startSec, err1 := ParseTimeToSeconds(fr.StartTime)
		endSec, err2 := ParseTimeToSeconds(fr.EndTime)
		if err1 != nil || err2 != nil || fr.HeadwaySecs <= 0 {
			continue
		}
		sorted := append([]StopTime(nil), base...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].StopSequence < sorted[j].StopSequence })
		templateStart, err := ParseTimeToSeconds(sorted[0].DepartureTime)
		if err != nil {
			continue
		}

		frequencyTrips[fr.TripID] = true
		n := 0
		for t := startSec; t < endSec; t += fr.HeadwaySecs {
			shift := t - templateStart
			syntheticID := fmt.Sprintf("%s#freq#%d", fr.TripID, n)
			syntheticTimes := make([]StopTime, len(sorted))
			for i, st := range sorted {
				syntheticTimes[i] = st
				if arrSec, err := ParseTimeToSeconds(st.ArrivalTime); err == nil {
					syntheticTimes[i].ArrivalTime = formatSeconds(arrSec + shift)
				}
				if depSec, err := ParseTimeToSeconds(st.DepartureTime); err == nil {
					syntheticTimes[i].DepartureTime = formatSeconds(depSec + shift)
				}
			}
			out[syntheticID] = syntheticTimes
			n++
			expanded++
		}
	}
	for tripID := range frequencyTrips {
		delete(out, tripID)
	}
	return out, expanded
}

func formatSeconds(total int) string {
	if total < 0 {
		total = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// baseTripID strips a frequency-expansion suffix, if present, so the
// stop-times pass can look up the shared route/service metadata that was
// resolved against the original trips.txt row.
func baseTripID(tripID string) string {
	if i := indexOfFreqSuffix(tripID); i >= 0 {
		return tripID[:i]
	}
	return tripID
}

func indexOfFreqSuffix(tripID string) int {
	for i := 0; i+6 <= len(tripID); i++ {
		if tripID[i:i+6] == "#freq#" {
			return i
		}
	}
	return -1
}
