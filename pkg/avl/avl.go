// Package avl reads raw AVL (automatic vehicle location) CSV streams and
// fabricates GTFS-shaped stop time entries from them, so the same
// pathengine/subnet machinery used to map scheduled stops onto a matched
// trip can map AVL pings onto it too. Route id, headsign, and speed are
// each tracked under their own column; speed travels as a dedicated field
// through to pkg/output rather than being smuggled through a stop name.
package avl

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kperrine/nmc-map-matcher/pkg/geo"
	"github.com/kperrine/nmc-map-matcher/pkg/gtfs"
)

// Result is one trip's fabricated stop time sequence plus the speed
// recorded at each entry, held in the same order as StopTimes.
type Result struct {
	StopTimes []*gtfs.StopTime
	Speeds    []float64
}

// ReadAVLCSV reads avlCSVFile and fabricates a GTFS-shaped stop time
// sequence per trip ID, restricted to routeID/routeHeadsign when either
// is non-empty (together they form a unique selector, per the CLI's -r/
// -h flags). Only trips present in gtfsTrips are considered.
func ReadAVLCSV(avlCSVFile string, gtfsTrips map[string]*gtfs.Trip, proj *geo.Projector, routeID, routeHeadsign string) (map[string]*Result, error) {
	f, err := os.Open(avlCSVFile)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", avlCSVFile, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", avlCSVFile, err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, want := range []string{"vehicle_id", "dist_traveled", "speed", "lon", "route_id", "trip_headsign", "timestamp", "lat", "trip_id"} {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("ERROR: the AVL CSV file %s doesn't have the expected header (missing %q)", avlCSVFile, want)
		}
	}

	ret := make(map[string]*Result)
	var prevTime time.Time
	var havePrevTime bool
	var prevRouteID, prevRouteHeadsign, prevTripID string
	duplicateMsgFlag := false
	duplicateTimes := map[string]bool{}
	unknownTrips := map[string]bool{}
	previousTripIDs := map[string]bool{}
	ctr := 0

	for {
		row, rerr := r.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("reading %s: %w", avlCSVFile, rerr)
		}

		rowRouteID := row[cols["route_id"]]
		rowHeadsign := row[cols["trip_headsign"]]
		if routeID != "" && rowRouteID != routeID {
			continue
		}
		if routeHeadsign != "" && rowHeadsign != routeHeadsign {
			continue
		}

		if (prevRouteID != "" && prevRouteID != rowRouteID) || (prevRouteHeadsign != "" && prevRouteHeadsign != rowHeadsign) {
			if !duplicateMsgFlag {
				fmt.Fprintf(os.Stderr, "WARNING: only one unique route ID and trip headsign from the AVL CSV file are allowed to be processed at once. There was ambiguity at route ID %s, trip headsign %s.\n", rowRouteID, rowHeadsign)
				duplicateMsgFlag = true
			}
			continue
		}
		prevRouteID = rowRouteID
		prevRouteHeadsign = rowHeadsign

		tripID := row[cols["trip_id"]]
		if prevTripID == "" || tripID != prevTripID {
			if previousTripIDs[tripID] {
				fmt.Fprintf(os.Stderr, "WARNING: in the AVL CSV input, Trip ID %s cannot be continued after going to another Trip ID.\n", tripID)
				continue
			}
			previousTripIDs[tripID] = true
			prevTripID = tripID
			ctr = 0
			havePrevTime = false
		}

		ourTime, terr := time.Parse("20060102T15:04:05", strings.ReplaceAll(row[cols["timestamp"]], "-", ""))
		if terr != nil {
			fmt.Fprintf(os.Stderr, "WARNING: skipping malformed AVL timestamp %q\n", row[cols["timestamp"]])
			continue
		}
		if havePrevTime && ourTime.Before(prevTime) {
			if !duplicateTimes[tripID] {
				fmt.Fprintf(os.Stderr, "WARNING: a decreasing timestamp was discovered in the AVL CSV file %s, Trip %s; ignoring.\n", avlCSVFile, tripID)
				duplicateTimes[tripID] = true
			}
			continue
		}
		prevTime = ourTime
		havePrevTime = true

		if _, ok := gtfsTrips[tripID]; !ok {
			if !unknownTrips[tripID] {
				fmt.Fprintf(os.Stderr, "WARNING: Trip ID %s from the AVL CSV file is not found in the GTFS set.\n", tripID)
				unknownTrips[tripID] = true
			}
			continue
		}
		trip := gtfsTrips[tripID]

		lat, lerr := strconv.ParseFloat(row[cols["lat"]], 64)
		lon, lnerr := strconv.ParseFloat(row[cols["lon"]], 64)
		speed, serr := strconv.ParseFloat(row[cols["speed"]], 64)
		if lerr != nil || lnerr != nil || serr != nil {
			fmt.Fprintf(os.Stderr, "WARNING: skipping malformed AVL row %v\n", row)
			continue
		}
		x, y := proj.ToFeet(lat, lon)

		stop := &gtfs.Stop{ID: strconv.Itoa(ctr), Lat: lat, Lon: lon, X: x, Y: y}
		st := &gtfs.StopTime{
			TripID: tripID, Trip: trip, StopID: stop.ID, Stop: stop,
			StopSeq: ctr, ArrivalTime: ourTime, DepartureTime: ourTime,
		}
		ctr++

		if ret[tripID] == nil {
			ret[tripID] = &Result{}
		}
		ret[tripID].StopTimes = append(ret[tripID].StopTimes, st)
		ret[tripID].Speeds = append(ret[tripID].Speeds, speed)
	}
	return ret, nil
}

// SortedTripIDs returns results' keys in sorted order so report output is
// deterministic.
func SortedTripIDs(results map[string]*Result) []string {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
