package api

import (
	"sort"
	"strconv"

	"github.com/dsgvo/journeyplanner/internal/calendar"
	"github.com/dsgvo/journeyplanner/internal/graph"
	"github.com/gofiber/fiber/v2"
)

// DepartureInfo is one upcoming departure at a stop.
type DepartureInfo struct {
	Route         graph.RouteId `json:"route"`
	RouteName     string        `json:"route_name"`
	Headsign      string        `json:"headsign,omitempty"`
	Destination   string        `json:"destination"`
	DepartureSecs uint32        `json:"departure_seconds"`
	ArrivalSecs   uint32        `json:"arrival_seconds"`
	Trip          graph.TripId  `json:"trip"`
}

// DeparturesResponse is the /v1/stops/:id/departures payload.
type DeparturesResponse struct {
	Stop       StopView        `json:"stop"`
	Departures []DepartureInfo `json:"departures"`
	Total      int             `json:"total"`
}

// StopView is minimal stop info.
type StopView struct {
	Id   graph.NodeId `json:"id"`
	Name string       `json:"name"`
	Lat  float64      `json:"lat"`
	Lng  float64      `json:"lng"`
}

// handleStopDepartures implements
// GET /v1/stops/:id/departures?date=YYYYMMDD&time=HH:MM:SS&limit=N — the
// departure board: up to limit next active departures of each outgoing
// transit edge, merged, sorted by departure time, and cut to limit.
func (s *Server) handleStopDepartures(c *fiber.Ctx) error {
	nodeId, err := paramNodeId(c, s.store)
	if err != nil {
		return badRequest(c, err)
	}
	node := s.store.Node(nodeId)
	if node.Kind != graph.KindTransitStop {
		return notFound(c, "node is not a transit stop")
	}

	year, month, day, err := queryDate(c, "date")
	if err != nil {
		return badRequest(c, err)
	}
	date := calendar.DaysSinceEpoch(year, month, day)
	weekday := calendar.WeekdayForDate(date)

	after, err := queryTimeSeconds(c, "time")
	if err != nil {
		return badRequest(c, err)
	}
	limit := int(queryUintOrDefault(c, "limit", 10))

	var departures []DepartureInfo
	for _, e := range s.store.Adjacency(nodeId) {
		if e.Kind != graph.KindTransitEdge {
			continue
		}
		idx, seg, ok := s.store.NextDeparture(e.Timetable, after, date, weekday)
		if !ok {
			continue
		}
		entries := append(
			[]graph.DepartureEntry{{Index: idx, Segment: seg}},
			s.store.NextDepartures(e.Timetable, date, weekday, idx, limit-1)...,
		)
		for _, entry := range entries {
			trip := s.store.Trip(entry.Segment.Trip)
			departures = append(departures, DepartureInfo{
				Route:         e.Route,
				RouteName:     s.store.Route(e.Route).ShortName,
				Headsign:      trip.Headsign,
				Destination:   s.store.Node(e.Destination).Name,
				DepartureSecs: entry.Segment.Departure,
				ArrivalSecs:   entry.Segment.Arrival,
				Trip:          entry.Segment.Trip,
			})
		}
	}

	sort.Slice(departures, func(i, j int) bool {
		return departures[i].DepartureSecs < departures[j].DepartureSecs
	})
	if len(departures) > limit {
		departures = departures[:limit]
	}

	return c.JSON(DeparturesResponse{
		Stop: StopView{
			Id: nodeId, Name: node.Name,
			Lat: node.Location.Lat, Lng: node.Location.Lng,
		},
		Departures: departures,
		Total:      len(departures),
	})
}

// RouteTripView is one trip row of a route listing.
type RouteTripView struct {
	Trip     graph.TripId `json:"trip"`
	Headsign string       `json:"headsign,omitempty"`
}

// RouteTripsResponse is the /v1/routes/:id/trips payload.
type RouteTripsResponse struct {
	Route  RouteView       `json:"route"`
	Agency string          `json:"agency"`
	Trips  []RouteTripView `json:"trips"`
	Total  int             `json:"total"`
}

// RouteView is minimal route info.
type RouteView struct {
	Id        graph.RouteId `json:"id"`
	ShortName string        `json:"short_name"`
	LongName  string        `json:"long_name"`
}

// handleRouteTrips implements GET /v1/routes/:id/trips: every trip riding
// the route, in trip-table order.
func (s *Server) handleRouteTrips(c *fiber.Ctx) error {
	raw, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return badRequest(c, fiber.NewError(fiber.StatusBadRequest, "route id must be numeric"))
	}
	routeId := graph.RouteId(raw)
	if int(routeId) >= s.store.RouteCount() {
		return notFound(c, "no such route")
	}
	route := s.store.Route(routeId)

	var trips []RouteTripView
	for i := 0; i < s.store.TripCount(); i++ {
		trip := s.store.Trip(graph.TripId(i))
		if trip.Route != routeId {
			continue
		}
		trips = append(trips, RouteTripView{Trip: graph.TripId(i), Headsign: trip.Headsign})
	}

	return c.JSON(RouteTripsResponse{
		Route:  RouteView{Id: routeId, ShortName: route.ShortName, LongName: route.LongName},
		Agency: s.store.Agency(route.Agency).Name,
		Trips:  trips,
		Total:  len(trips),
	})
}

func paramNodeId(c *fiber.Ctx, store *graph.Store) (graph.NodeId, error) {
	raw, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "stop id must be numeric")
	}
	if int(raw) >= store.NodeCount() {
		return 0, fiber.NewError(fiber.StatusNotFound, "no such node")
	}
	return graph.NodeId(raw), nil
}
