package matchrun

import (
	"fmt"
	"sort"
	"time"

	"github.com/kperrine/nmc-map-matcher/pkg/api"
	"github.com/kperrine/nmc-map-matcher/pkg/output"
)

// TableOptions controls how matched trips are flattened into the output
// tables.
type TableOptions struct {
	// ExcludeUpstream drops the portion of a trip's matched path that
	// precedes its first stop-carrying link.
	ExcludeUpstream bool
}

// RouteName derives the display name for a trip: the GTFS route short
// name plus the trip headsign when both are known, falling back to
// whatever is populated.
func RouteName(r *TripResult) string {
	var prefix string
	if r.Trip.Route != nil {
		prefix = r.Trip.Route.ShortName
		if prefix == "" {
			prefix = r.Trip.Route.LongName
		}
	}
	switch {
	case prefix != "" && r.Trip.Headsign != "":
		return prefix + " " + r.Trip.Headsign
	case prefix != "":
		return prefix
	case r.Trip.Headsign != "":
		return r.Trip.Headsign
	default:
		return r.Trip.RouteID
	}
}

// sortedResults returns results ordered by trip id so table output is
// reproducible run to run.
func sortedResults(results map[string]*TripResult) []*TripResult {
	out := make([]*TripResult, 0, len(results))
	for _, r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Trip.ID < out[j].Trip.ID })
	return out
}

// BuildBusRoutes builds the public.bus_route rows.
func BuildBusRoutes(results map[string]*TripResult) []output.BusRoute {
	var rows []output.BusRoute
	for _, r := range sortedResults(results) {
		rows = append(rows, output.BusRoute{ID: r.Trip.ID, Name: RouteName(r)})
	}
	return rows
}

// stopsByBackboneIndex maps each backbone link position to the stops
// assigned to it, in stop-sequence order.
func stopsByBackboneIndex(r *TripResult) map[int][]int {
	uidToIndex := make(map[int64]int, len(r.SubnetLinks))
	for i, l := range r.SubnetLinks {
		uidToIndex[l.UID] = i
	}
	byIndex := make(map[int][]int)
	for i, pe := range r.PathEnds {
		if pe.Point == nil {
			continue
		}
		idx, ok := uidToIndex[pe.Point.Link.UID]
		if !ok {
			// The stop migrated onto an embellishment link outside the
			// backbone; it has no row in the link sequence.
			continue
		}
		byIndex[idx] = append(byIndex[idx], i)
	}
	return byIndex
}

// BuildBusRouteLinks builds the public.bus_route_link rows: one row per
// backbone link per trip, with stop and dwell time populated on the rows
// whose link carries a stop. A link carrying several stops emits one row
// per stop.
func BuildBusRouteLinks(results map[string]*TripResult, opts TableOptions) []output.BusRouteLink {
	var rows []output.BusRouteLink
	for _, r := range sortedResults(results) {
		byIndex := stopsByBackboneIndex(r)

		startIdx := 0
		if opts.ExcludeUpstream {
			first := len(r.SubnetLinks)
			for idx := range byIndex {
				if idx < first {
					first = idx
				}
			}
			if first < len(r.SubnetLinks) {
				startIdx = first
			}
		}

		seq := 1
		for idx := startIdx; idx < len(r.SubnetLinks); idx++ {
			link := r.SubnetLinks[idx]
			stops := byIndex[idx]
			if len(stops) == 0 {
				rows = append(rows, output.BusRouteLink{
					Route: r.Trip.ID, Sequence: seq, Link: link.ID,
				})
				seq++
				continue
			}
			for _, stopIdx := range stops {
				st := r.StopTimes[stopIdx]
				rows = append(rows, output.BusRouteLink{
					Route: r.Trip.ID, Sequence: seq, Link: link.ID,
					Stop:      r.StopIDs[stopIdx],
					DwellTime: st.DepartureTime.Sub(st.ArrivalTime).Seconds(),
					HasStop:   true,
				})
				seq++
			}
		}
	}
	return rows
}

// BuildBusStops builds the public.bus_stop rows. After reconciliation
// every trip serving a stop agrees on its link, so the first trip
// observed wins; a disagreement would only appear if reconciliation was
// skipped.
func BuildBusStops(results map[string]*TripResult) []output.BusStop {
	seen := make(map[string]bool)
	var rows []output.BusStop
	for _, r := range sortedResults(results) {
		for i, pe := range r.PathEnds {
			if pe.Point == nil || seen[r.StopIDs[i]] {
				continue
			}
			seen[r.StopIDs[i]] = true
			rows = append(rows, output.BusStop{
				ID:       r.StopIDs[i],
				Link:     pe.Point.Link.ID,
				Name:     r.StopTimes[i].Stop.Name,
				Location: int64(pe.Point.Dist),
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

// BuildBusPeriodsAndFrequencies builds the public.bus_period and
// public.bus_frequency rows for one analysis window. Each trip gets one
// frequency row: the trip runs once in the window, offset by its first
// departure.
func BuildBusPeriodsAndFrequencies(results map[string]*TripResult, windowStart time.Time, windowDur time.Duration) ([]output.BusPeriod, []output.BusFrequency) {
	periods := []output.BusPeriod{{
		ID:        "1",
		StartTime: windowStart.Format("15:04:05"),
		EndTime:   windowStart.Add(windowDur).Format("15:04:05"),
	}}

	var freqs []output.BusFrequency
	for _, r := range sortedResults(results) {
		offset := r.StopTimes[0].DepartureTime.Sub(windowStart)
		if offset < 0 {
			offset = 0
		}
		freqs = append(freqs, output.BusFrequency{
			Route:      r.Trip.ID,
			Period:     "1",
			Frequency:  windowDur.Seconds(),
			OffsetTime: fmt.Sprintf("%d", int64(offset.Seconds())),
			Preemption: "0",
		})
	}
	return periods, freqs
}

// BuildMatchedTrips converts results into the API server's query model.
func BuildMatchedTrips(results map[string]*TripResult) map[string]*api.MatchedTrip {
	out := make(map[string]*api.MatchedTrip, len(results))
	for _, r := range sortedResults(results) {
		mt := &api.MatchedTrip{
			TripID:    r.Trip.ID,
			RouteName: RouteName(r),
		}
		for _, l := range r.SubnetLinks {
			mt.Links = append(mt.Links, l.ID)
		}
		for i, pe := range r.PathEnds {
			if pe.Point == nil {
				continue
			}
			mt.Stops = append(mt.Stops, api.StopAssignment{
				StopID:   r.StopIDs[i],
				Name:     r.StopTimes[i].Stop.Name,
				LinkID:   pe.Point.Link.ID,
				Location: int64(pe.Point.Dist),
			})
		}
		out[mt.TripID] = mt
	}
	return out
}
