package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dsgvo/journeyplanner/internal/cache"
	"github.com/dsgvo/journeyplanner/internal/calendar"
	"github.com/dsgvo/journeyplanner/internal/errs"
	"github.com/dsgvo/journeyplanner/internal/geo"
	"github.com/dsgvo/journeyplanner/internal/graph"
	"github.com/dsgvo/journeyplanner/internal/itinerary"
	"github.com/dsgvo/journeyplanner/internal/routing"
	"github.com/gofiber/fiber/v2"
)

// PlanResponse is the /v1/plan payload: the itinerary's legs, each transit
// leg carrying a leg_id token that /earlier and /later accept.
type PlanResponse struct {
	Legs []LegView `json:"legs"`
}

// LegView wraps an itinerary.Leg with the token needed to look up
// alternative departures, since the server keeps no per-plan state.
type LegView struct {
	itinerary.Leg
	LegID string `json:"leg_id,omitempty"`
}

// handlePlan implements GET /v1/plan?from_lat&from_lng&to_lat&to_lng&date=YYYYMMDD&time=HH:MM:SS
func (s *Server) handlePlan(c *fiber.Ctx) error {
	fromLat, err := queryFloat(c, "from_lat")
	if err != nil {
		return badRequest(c, err)
	}
	fromLng, err := queryFloat(c, "from_lng")
	if err != nil {
		return badRequest(c, err)
	}
	toLat, err := queryFloat(c, "to_lat")
	if err != nil {
		return badRequest(c, err)
	}
	toLng, err := queryFloat(c, "to_lng")
	if err != nil {
		return badRequest(c, err)
	}

	year, month, day, err := queryDate(c, "date")
	if err != nil {
		return badRequest(c, err)
	}
	date := calendar.DaysSinceEpoch(year, month, day)
	weekday := calendar.WeekdayForDate(date)

	startTime, err := queryTimeSeconds(c, "time")
	if err != nil {
		return badRequest(c, err)
	}

	walkingSpeed := queryUintOrDefault(c, "walking_speed", s.defaults.WalkingSpeedMMPerS)
	estimatorSpeed := queryUintOrDefault(c, "estimator_speed", s.defaults.EstimatorSpeedMMPerS)

	fromNode, _, ok := s.store.NearestStreetNode(geo.LatLng{Lat: fromLat, Lng: fromLng})
	if !ok {
		return notFound(c, "no street node near the origin")
	}
	toNode, _, ok := s.store.NearestStreetNode(geo.LatLng{Lat: toLat, Lng: toLng})
	if !ok {
		return notFound(c, "no street node near the destination")
	}

	key := cache.PlanKey(fromLat, fromLng, toLat, toLng, date, startTime)
	legs, err := s.plan(c.Context(), key, fromNode, toNode, startTime, date, weekday, routing.Params{
		WalkingSpeedMMPerS: walkingSpeed, EstimatorSpeedMMPerS: estimatorSpeed,
	})
	if err != nil {
		var notFoundErr *errs.NoPathFound
		if errors.As(err, &notFoundErr) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no itinerary found"})
		}
		return err
	}

	return c.JSON(PlanResponse{Legs: decorateLegs(legs)})
}

// plan runs the search (consulting the cache first, if enabled) and
// reconstructs the itinerary's legs.
func (s *Server) plan(ctx context.Context, cacheKey string, from, to graph.NodeId, startTime, date uint32, weekday calendar.Weekday, params routing.Params) ([]itinerary.Leg, error) {
	if s.useCache {
		if cached, err := cache.GetPlan(ctx, cacheKey); err == nil && cached != nil {
			return cached, nil
		}

		// Stampede protection: one caller computes, the rest wait for the
		// lock to drop and read the cached result.
		acquired, err := cache.AcquireLock(ctx, cacheKey, 5*time.Second)
		if err == nil && !acquired {
			if legs, err := cache.WaitForResult(ctx, cacheKey, 10*time.Second); err == nil && legs != nil {
				return legs, nil
			}
			// Lock holder failed or timed out; fall through and compute.
		}
		if acquired {
			defer func() { _ = cache.ReleaseLock(context.Background(), cacheKey) }()
		}
	}

	result, err := s.router.Search(ctx, from, to, startTime, date, weekday, params)
	if err != nil {
		return nil, err
	}
	legs, err := itinerary.Reconstruct(s.store, result)
	if err != nil {
		return nil, err
	}

	if s.useCache {
		_ = cache.SetPlan(ctx, cacheKey, legs, s.cacheTTL)
	}
	return legs, nil
}

// legToken is the self-contained, stateless encoding of a transit leg's
// timetable position, so /earlier and /later need no server-side plan
// store: everything Alternatives needs travels in the URL.
type legToken struct {
	From  graph.NodeId  `json:"f"`
	To    graph.NodeId  `json:"t"`
	Route graph.RouteId `json:"r"`
	Trip  graph.TripId  `json:"trip"`
	Steps []stepToken   `json:"s"`
}

type stepToken struct {
	From           graph.NodeId `json:"f"`
	To             graph.NodeId `json:"t"`
	TimetableStart uint32       `json:"ts"`
	TimetableLen   uint32       `json:"tl"`
	DepartureIndex uint32       `json:"di"`
}

func encodeLegToken(leg itinerary.Leg) string {
	tok := legToken{From: leg.Steps[0].From, To: leg.Steps[len(leg.Steps)-1].To, Route: leg.Route, Trip: leg.Trip}
	for _, step := range leg.Steps {
		idx := uint32(0)
		if step.DepartureIndex != nil {
			idx = *step.DepartureIndex
		}
		tok.Steps = append(tok.Steps, stepToken{
			From: step.From, To: step.To,
			TimetableStart: step.Timetable.Start, TimetableLen: step.Timetable.Len,
			DepartureIndex: idx,
		})
	}
	data, _ := json.Marshal(tok)
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeLegToken(encoded string) (itinerary.Leg, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return itinerary.Leg{}, err
	}
	var tok legToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return itinerary.Leg{}, err
	}

	leg := itinerary.Leg{Kind: itinerary.LegTransit, Route: tok.Route, Trip: tok.Trip}
	for _, st := range tok.Steps {
		idx := st.DepartureIndex
		leg.Steps = append(leg.Steps, itinerary.Step{
			Kind: graph.KindTransitEdge, From: st.From, To: st.To,
			Timetable:      graph.TimetableSegment{Start: st.TimetableStart, Len: st.TimetableLen},
			DepartureIndex: &idx,
		})
	}
	return leg, nil
}

// decorateLegs fills LegID on every transit leg of a freshly reconstructed
// itinerary.
func decorateLegs(legs []itinerary.Leg) []LegView {
	views := make([]LegView, len(legs))
	for i, leg := range legs {
		v := LegView{Leg: leg}
		if leg.Kind == itinerary.LegTransit {
			v.LegID = encodeLegToken(leg)
		}
		views[i] = v
	}
	return views
}

func (s *Server) handlePlanLegEarlier(c *fiber.Ctx) error {
	return s.handlePlanLegDirection(c, itinerary.Earlier)
}

func (s *Server) handlePlanLegLater(c *fiber.Ctx) error {
	return s.handlePlanLegDirection(c, itinerary.Later)
}

func (s *Server) handlePlanLegDirection(c *fiber.Ctx, direction itinerary.Direction) error {
	leg, err := decodeLegToken(c.Params("legId"))
	if err != nil {
		return badRequest(c, err)
	}

	year, month, day, err := queryDate(c, "date")
	if err != nil {
		return badRequest(c, err)
	}
	date := calendar.DaysSinceEpoch(year, month, day)
	weekday := calendar.WeekdayForDate(date)
	count := int(queryUintOrDefault(c, "count", 3))

	alts := itinerary.Alternatives(s.store, leg, date, weekday, direction, count)
	return c.JSON(fiber.Map{"alternatives": decorateLegs(alts)})
}

func queryFloat(c *fiber.Ctx, name string) (float64, error) {
	v := c.Query(name)
	if v == "" {
		return 0, fiber.NewError(fiber.StatusBadRequest, "missing required parameter: "+name)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name+": "+err.Error())
	}
	return f, nil
}

func queryUintOrDefault(c *fiber.Ctx, name string, def uint32) uint32 {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return def
	}
	return uint32(n)
}

func queryDate(c *fiber.Ctx, name string) (year, month, day int, err error) {
	v := c.Query(name)
	if v == "" || len(v) != 8 {
		return 0, 0, 0, fiber.NewError(fiber.StatusBadRequest, name+" must be YYYYMMDD")
	}
	year, err1 := strconv.Atoi(v[0:4])
	month, err2 := strconv.Atoi(v[4:6])
	day, err3 := strconv.Atoi(v[6:8])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, fiber.NewError(fiber.StatusBadRequest, name+" must be YYYYMMDD")
	}
	return year, month, day, nil
}

func queryTimeSeconds(c *fiber.Ctx, name string) (uint32, error) {
	v := c.Query(name)
	if v == "" {
		return 0, fiber.NewError(fiber.StatusBadRequest, "missing required parameter: "+name)
	}
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name+": expected HH:MM:SS")
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name+": expected HH:MM:SS")
	}
	return uint32(h*3600 + m*60 + sec), nil
}

func badRequest(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

func notFound(c *fiber.Ctx, reason string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": reason})
}
