package gtfsfeed

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dsgvo/journeyplanner/internal/graph"
)

// ParseTimeToSeconds parses a GTFS HH:MM:SS clock value, which may exceed
// 24:00:00 for trips that run past midnight, into seconds since midnight.
// Unlike a Sscanf-based parser, a malformed value is a real error, not a
// silently-zeroed field.
func ParseTimeToSeconds(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time value")
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed time %q: expected HH:MM:SS", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed minute in %q: %w", s, err)
	}
	sec, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("malformed second in %q: %w", s, err)
	}
	if m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("out of range minute/second in %q", s)
	}
	return h*3600 + m*60 + sec, nil
}

// ParseDate parses a GTFS YYYYMMDD date into its year/month/day components.
func ParseDate(s string) (year, month, day int, err error) {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return 0, 0, 0, fmt.Errorf("malformed date %q: expected YYYYMMDD", s)
	}
	year, err = strconv.Atoi(s[0:4])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("malformed date %q: %w", s, err)
	}
	month, err = strconv.Atoi(s[4:6])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("malformed date %q: %w", s, err)
	}
	day, err = strconv.Atoi(s[6:8])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("malformed date %q: %w", s, err)
	}
	return year, month, day, nil
}

// ValidCoordinate rejects missing coordinates and the "null island"
// (0, 0) placeholder some exporters leave behind for unmapped stops.
func ValidCoordinate(lat, lon float64) bool {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	if lat == 0 && lon == 0 {
		return false
	}
	return true
}

// InferRouteKind maps a GTFS route_type code to graph.RouteKind. Unknown
// codes default to RouteBus, the most common real-world mode.
func InferRouteKind(routeType int) graph.RouteKind {
	switch routeType {
	case 0, 5: // tram, cable tram
		return graph.RouteTram
	case 1, 2, 4, 12: // subway, rail, ferry(4 handled below), monorail
		if routeType == 4 {
			return graph.RouteFerry
		}
		return graph.RouteRail
	case 3: // bus
		return graph.RouteBus
	case 11: // trolleybus
		return graph.RouteBus
	case 200, 700, 702, 715: // extended bus/BRT codes seen in the wild
		return graph.RouteBRT
	default:
		return graph.RouteBus
	}
}
