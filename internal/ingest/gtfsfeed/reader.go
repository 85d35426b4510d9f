package gtfsfeed

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/dsgvo/journeyplanner/internal/errs"
)

// ParseZip reads a GTFS feed directly out of its zip archive, without
// extracting to a temp directory first. stops.txt, routes.txt, trips.txt,
// and stop_times.txt are required; agency.txt, calendar.txt,
// calendar_dates.txt, frequencies.txt, and transfers.txt are optional.
func ParseZip(zipPath string) (*Feed, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, &errs.SourceUnreadable{Path: zipPath, Err: err}
	}
	defer r.Close()

	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		files[f.Name] = f
	}

	feed := &Feed{}

	if f, ok := files["agency.txt"]; ok {
		feed.Agencies, err = parseCSV(f, parseAgencyRow)
		if err != nil {
			log.Printf("gtfsfeed: failed to parse agency.txt: %v", err)
		}
	}

	stops, err := requireCSV(files, "stops.txt", parseStopRow)
	if err != nil {
		return nil, err
	}
	feed.Stops = stops

	routes, err := requireCSV(files, "routes.txt", parseRouteRow)
	if err != nil {
		return nil, err
	}
	feed.Routes = routes

	trips, err := requireCSV(files, "trips.txt", parseTripRow)
	if err != nil {
		return nil, err
	}
	feed.Trips = trips

	stopTimes, err := requireCSV(files, "stop_times.txt", parseStopTimeRow)
	if err != nil {
		return nil, err
	}
	feed.StopTimes = stopTimes

	if f, ok := files["calendar.txt"]; ok {
		feed.Calendars, _ = parseCSV(f, parseCalendarRow)
	}
	if f, ok := files["calendar_dates.txt"]; ok {
		feed.CalendarDates, _ = parseCSV(f, parseCalendarDateRow)
	}
	if f, ok := files["frequencies.txt"]; ok {
		feed.Frequencies, _ = parseCSV(f, parseFrequencyRow)
	}
	if f, ok := files["transfers.txt"]; ok {
		feed.Transfers, _ = parseCSV(f, parseTransferRow)
	}

	return feed, nil
}

func requireCSV[T any](files map[string]*zip.File, name string, parseRow func([]string, map[string]int) (T, bool)) ([]T, error) {
	f, ok := files[name]
	if !ok {
		return nil, &errs.FormatInvalid{Reason: fmt.Sprintf("missing required file %s", name)}
	}
	rows, err := parseCSV(f, parseRow)
	if err != nil {
		return nil, &errs.FormatInvalid{Reason: fmt.Sprintf("%s: %v", name, err)}
	}
	return rows, nil
}

func parseCSV[T any](f *zip.File, parseRow func([]string, map[string]int) (T, bool)) ([]T, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	colMap := columnMap(header)

	var out []T
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("gtfsfeed: skipping malformed row in %s: %v", f.Name, err)
			continue
		}
		row, ok := parseRow(record, colMap)
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func columnMap(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[strings.TrimSpace(col)] = i
	}
	return m
}

func field(record []string, colMap map[string]int, name string) string {
	if idx, ok := colMap[name]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}

func parseAgencyRow(r []string, c map[string]int) (Agency, bool) {
	return Agency{
		AgencyID: field(r, c, "agency_id"),
		Name:     field(r, c, "agency_name"),
		Url:      field(r, c, "agency_url"),
		Timezone: field(r, c, "agency_timezone"),
	}, true
}

func parseStopRow(r []string, c map[string]int) (Stop, bool) {
	id := field(r, c, "stop_id")
	latStr := field(r, c, "stop_lat")
	lonStr := field(r, c, "stop_lon")
	if id == "" || latStr == "" || lonStr == "" {
		return Stop{}, false
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return Stop{}, false
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return Stop{}, false
	}
	wheelchair, _ := strconv.Atoi(field(r, c, "wheelchair_boarding"))
	return Stop{StopID: id, Name: field(r, c, "stop_name"), Lat: lat, Lon: lon, Wheelchair: wheelchair}, true
}

func parseRouteRow(r []string, c map[string]int) (Route, bool) {
	id := field(r, c, "route_id")
	if id == "" {
		return Route{}, false
	}
	routeType, _ := strconv.Atoi(field(r, c, "route_type"))
	return Route{
		RouteID:   id,
		AgencyID:  field(r, c, "agency_id"),
		ShortName: field(r, c, "route_short_name"),
		LongName:  field(r, c, "route_long_name"),
		RouteType: routeType,
	}, true
}

func parseTripRow(r []string, c map[string]int) (Trip, bool) {
	id := field(r, c, "trip_id")
	routeID := field(r, c, "route_id")
	if id == "" || routeID == "" {
		return Trip{}, false
	}
	direction, _ := strconv.Atoi(field(r, c, "direction_id"))
	return Trip{
		TripID:    id,
		RouteID:   routeID,
		ServiceID: field(r, c, "service_id"),
		Headsign:  field(r, c, "trip_headsign"),
		Direction: direction,
	}, true
}

func parseStopTimeRow(r []string, c map[string]int) (StopTime, bool) {
	tripID := field(r, c, "trip_id")
	stopID := field(r, c, "stop_id")
	seqStr := field(r, c, "stop_sequence")
	if tripID == "" || stopID == "" || seqStr == "" {
		return StopTime{}, false
	}
	seq, err := strconv.Atoi(seqStr)
	if err != nil {
		return StopTime{}, false
	}
	return StopTime{
		TripID:        tripID,
		StopID:        stopID,
		ArrivalTime:   field(r, c, "arrival_time"),
		DepartureTime: field(r, c, "departure_time"),
		StopSequence:  seq,
	}, true
}

func parseCalendarRow(r []string, c map[string]int) (Calendar, bool) {
	id := field(r, c, "service_id")
	if id == "" {
		return Calendar{}, false
	}
	flag := func(name string) bool { return field(r, c, name) == "1" }
	return Calendar{
		ServiceID: id,
		Monday:    flag("monday"), Tuesday: flag("tuesday"), Wednesday: flag("wednesday"),
		Thursday: flag("thursday"), Friday: flag("friday"), Saturday: flag("saturday"), Sunday: flag("sunday"),
		StartDate: field(r, c, "start_date"), EndDate: field(r, c, "end_date"),
	}, true
}

func parseCalendarDateRow(r []string, c map[string]int) (CalendarDate, bool) {
	id := field(r, c, "service_id")
	date := field(r, c, "date")
	if id == "" || date == "" {
		return CalendarDate{}, false
	}
	exceptionType, _ := strconv.Atoi(field(r, c, "exception_type"))
	return CalendarDate{ServiceID: id, Date: date, ExceptionType: exceptionType}, true
}

func parseFrequencyRow(r []string, c map[string]int) (Frequency, bool) {
	tripID := field(r, c, "trip_id")
	if tripID == "" {
		return Frequency{}, false
	}
	headway, err := strconv.Atoi(field(r, c, "headway_secs"))
	if err != nil {
		return Frequency{}, false
	}
	return Frequency{
		TripID: tripID, StartTime: field(r, c, "start_time"), EndTime: field(r, c, "end_time"),
		HeadwaySecs: headway,
	}, true
}

func parseTransferRow(r []string, c map[string]int) (Transfer, bool) {
	from := field(r, c, "from_stop_id")
	to := field(r, c, "to_stop_id")
	if from == "" || to == "" {
		return Transfer{}, false
	}
	minTime, _ := strconv.Atoi(field(r, c, "min_transfer_time"))
	return Transfer{FromStopID: from, ToStopID: to, MinTransferTime: minTime}, true
}
