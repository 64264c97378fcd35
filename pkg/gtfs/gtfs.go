// Package gtfs reads the GTFS tables this system consumes (shapes, trips,
// stops, and stop times) and projects their geographic fields into the
// same planar coordinate system as the road network graph.
package gtfs

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kperrine/nmc-map-matcher/pkg/geo"
)

// Route is one GTFS route.
type Route struct {
	ID        string
	ShortName string
	LongName  string
}

// Trip is one GTFS trip: a scheduled run bound to a shape, a route, and a
// sequence of stop times (populated separately by ReadStopTimes).
type Trip struct {
	ID        string
	RouteID   string
	ShapeID   string
	Headsign  string
	ServiceID string
	Route     *Route
}

// ShapePoint is one vertex of a trip's shape polyline, lat/lon plus its
// planar projection.
type ShapePoint struct {
	ShapeID string
	Seq     int
	Lat     float64
	Lon     float64
	X, Y    float64
}

// Stop is one GTFS stop.
type Stop struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
	X, Y float64
}

// StopTime is one scheduled arrival/departure for one stop on one trip.
// ArrivalTime and DepartureTime are absolute timestamps: GTFS allows
// hours >= 24 for next-day service, so callers must supply the
// service date each file is read against and this reader normalizes
// against it rather than leaving the caller to do so.
type StopTime struct {
	TripID        string
	Trip          *Trip
	StopID        string
	Stop          *Stop
	StopSeq       int
	ArrivalTime   time.Time
	DepartureTime time.Time
}

// ReadRoutes reads routes.txt from dir.
func ReadRoutes(dir string) (map[string]*Route, error) {
	rows, header, err := readCSV(filepath.Join(dir, "routes.txt"))
	if err != nil {
		return nil, err
	}
	idx, err := columnIndex(header, "route_id")
	if err != nil {
		return nil, err
	}
	shortIdx, _ := columnIndex(header, "route_short_name")
	longIdx, _ := columnIndex(header, "route_long_name")

	routes := make(map[string]*Route, len(rows))
	for _, row := range rows {
		r := &Route{ID: row[idx]}
		if shortIdx >= 0 {
			r.ShortName = row[shortIdx]
		}
		if longIdx >= 0 {
			r.LongName = row[longIdx]
		}
		routes[r.ID] = r
	}
	return routes, nil
}

// ReadShapes reads shapes.txt, projecting every point through proj, and
// returns each shape's points sorted by sequence.
func ReadShapes(dir string, proj *geo.Projector) (map[string][]ShapePoint, error) {
	rows, header, err := readCSV(filepath.Join(dir, "shapes.txt"))
	if err != nil {
		return nil, err
	}
	idIdx, err := columnIndex(header, "shape_id")
	if err != nil {
		return nil, err
	}
	latIdx, err := columnIndex(header, "shape_pt_lat")
	if err != nil {
		return nil, err
	}
	lonIdx, err := columnIndex(header, "shape_pt_lon")
	if err != nil {
		return nil, err
	}
	seqIdx, err := columnIndex(header, "shape_pt_sequence")
	if err != nil {
		return nil, err
	}

	shapes := make(map[string][]ShapePoint)
	for _, row := range rows {
		lat, lerr := strconv.ParseFloat(row[latIdx], 64)
		lon, lnerr := strconv.ParseFloat(row[lonIdx], 64)
		seq, serr := strconv.Atoi(row[seqIdx])
		if lerr != nil || lnerr != nil || serr != nil {
			fmt.Fprintf(os.Stderr, "WARNING: skipping malformed shape row %v\n", row)
			continue
		}
		x, y := proj.ToFeet(lat, lon)
		shapeID := row[idIdx]
		shapes[shapeID] = append(shapes[shapeID], ShapePoint{ShapeID: shapeID, Seq: seq, Lat: lat, Lon: lon, X: x, Y: y})
	}
	for _, pts := range shapes {
		sort.Slice(pts, func(i, j int) bool { return pts[i].Seq < pts[j].Seq })
	}
	return shapes, nil
}

// ReadStops reads stops.txt, projecting every point through proj.
func ReadStops(dir string, proj *geo.Projector) (map[string]*Stop, error) {
	rows, header, err := readCSV(filepath.Join(dir, "stops.txt"))
	if err != nil {
		return nil, err
	}
	idIdx, err := columnIndex(header, "stop_id")
	if err != nil {
		return nil, err
	}
	latIdx, err := columnIndex(header, "stop_lat")
	if err != nil {
		return nil, err
	}
	lonIdx, err := columnIndex(header, "stop_lon")
	if err != nil {
		return nil, err
	}
	nameIdx, _ := columnIndex(header, "stop_name")

	stops := make(map[string]*Stop, len(rows))
	for _, row := range rows {
		lat, lerr := strconv.ParseFloat(row[latIdx], 64)
		lon, lnerr := strconv.ParseFloat(row[lonIdx], 64)
		if lerr != nil || lnerr != nil {
			fmt.Fprintf(os.Stderr, "WARNING: skipping malformed stop row %v\n", row)
			continue
		}
		x, y := proj.ToFeet(lat, lon)
		s := &Stop{ID: row[idIdx], Lat: lat, Lon: lon, X: x, Y: y}
		if nameIdx >= 0 {
			s.Name = row[nameIdx]
		}
		stops[s.ID] = s
	}
	return stops, nil
}

// ReadTrips reads trips.txt. restrictService, if non-empty, keeps only
// trips whose service_id is in the set (the -c service filter). shapeIDs, if
// non-nil, drops trips whose shape is not present in the loaded match
// dump, with a single INFO log per skipped trip.
func ReadTrips(dir string, routes map[string]*Route, shapeIDs map[string]bool, restrictService map[string]bool) (map[string]*Trip, error) {
	rows, header, err := readCSV(filepath.Join(dir, "trips.txt"))
	if err != nil {
		return nil, err
	}
	tripIdx, err := columnIndex(header, "trip_id")
	if err != nil {
		return nil, err
	}
	routeIdx, err := columnIndex(header, "route_id")
	if err != nil {
		return nil, err
	}
	shapeIdx, err := columnIndex(header, "shape_id")
	if err != nil {
		return nil, err
	}
	serviceIdx, err := columnIndex(header, "service_id")
	if err != nil {
		return nil, err
	}
	headsignIdx, _ := columnIndex(header, "trip_headsign")

	trips := make(map[string]*Trip, len(rows))
	for _, row := range rows {
		serviceID := row[serviceIdx]
		if len(restrictService) > 0 && !restrictService[serviceID] {
			continue
		}
		shapeID := row[shapeIdx]
		if shapeIDs != nil && !shapeIDs[shapeID] {
			fmt.Printf("INFO: skipping trip %s: shape %s not present in the loaded match\n", row[tripIdx], shapeID)
			continue
		}
		t := &Trip{
			ID:        row[tripIdx],
			RouteID:   row[routeIdx],
			ShapeID:   shapeID,
			ServiceID: serviceID,
			Route:     routes[row[routeIdx]],
		}
		if headsignIdx >= 0 {
			t.Headsign = row[headsignIdx]
		}
		trips[t.ID] = t
	}
	return trips, nil
}

// ReadStopTimes reads stop_times.txt, resolving Trip/Stop references and
// normalizing each arrival/departure against refDate (GTFS permits hours
// >= 24 to denote next-day service times). Rows referencing a
// trip not present in trips are skipped.
func ReadStopTimes(dir string, trips map[string]*Trip, stops map[string]*Stop, refDate time.Time) (map[string][]*StopTime, error) {
	rows, header, err := readCSV(filepath.Join(dir, "stop_times.txt"))
	if err != nil {
		return nil, err
	}
	tripIdx, err := columnIndex(header, "trip_id")
	if err != nil {
		return nil, err
	}
	stopIdx, err := columnIndex(header, "stop_id")
	if err != nil {
		return nil, err
	}
	seqIdx, err := columnIndex(header, "stop_sequence")
	if err != nil {
		return nil, err
	}
	arrIdx, err := columnIndex(header, "arrival_time")
	if err != nil {
		return nil, err
	}
	depIdx, err := columnIndex(header, "departure_time")
	if err != nil {
		return nil, err
	}

	out := make(map[string][]*StopTime)
	for _, row := range rows {
		trip, ok := trips[row[tripIdx]]
		if !ok {
			continue
		}
		stop, ok := stops[row[stopIdx]]
		if !ok {
			fmt.Fprintf(os.Stderr, "WARNING: stop_times references unknown stop %s, skipping row\n", row[stopIdx])
			continue
		}
		seq, serr := strconv.Atoi(row[seqIdx])
		arr, aerr := parseGTFSTime(refDate, row[arrIdx])
		dep, derr := parseGTFSTime(refDate, row[depIdx])
		if serr != nil || aerr != nil || derr != nil {
			fmt.Fprintf(os.Stderr, "WARNING: skipping malformed stop_times row %v\n", row)
			continue
		}
		st := &StopTime{
			TripID: trip.ID, Trip: trip, StopID: stop.ID, Stop: stop,
			StopSeq: seq, ArrivalTime: arr, DepartureTime: dep,
		}
		out[trip.ID] = append(out[trip.ID], st)
	}
	for _, sts := range out {
		sort.Slice(sts, func(i, j int) bool { return sts[i].StopSeq < sts[j].StopSeq })
	}
	return out, nil
}

// parseGTFSTime parses "HH:MM:SS" where HH may be >= 24, adding whole days
// to refDate as needed.
func parseGTFSTime(refDate time.Time, s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("malformed GTFS time %q", s)
	}
	h, herr := strconv.Atoi(parts[0])
	m, merr := strconv.Atoi(parts[1])
	sec, serr := strconv.Atoi(parts[2])
	if herr != nil || merr != nil || serr != nil {
		return time.Time{}, fmt.Errorf("malformed GTFS time %q", s)
	}
	days := h / 24
	h = h % 24
	base := time.Date(refDate.Year(), refDate.Month(), refDate.Day(), 0, 0, 0, 0, refDate.Location())
	return base.AddDate(0, 0, days).Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second), nil
}

func readCSV(path string) (rows [][]string, header []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err = r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	for {
		row, rerr := r.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", path, rerr)
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

func columnIndex(header []string, name string) (int, error) {
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("required column %q not found", name)
}
