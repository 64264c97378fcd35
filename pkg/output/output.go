// Package output formats matched results into the downstream simulation
// tables: bus routes, per-trip route links, stops, schedule frequencies,
// and service periods, plus the AVL distance report. Each table is
// preceded by a four-line metadata banner.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// WriteBanner writes the four-line metadata banner shared by every table
// in this package: the user running the export, the network name, the
// table name, and a generation timestamp, each as a comment line ahead of
// the CSV header.
func WriteBanner(w io.Writer, user, network, table string, generated time.Time) {
	fmt.Fprintf(w, "# user: %s\n", user)
	fmt.Fprintf(w, "# network: %s\n", network)
	fmt.Fprintf(w, "# table: %s\n", table)
	fmt.Fprintf(w, "# generated: %s\n", generated.Format(time.RFC3339))
}

// BusRoute is one row of public.bus_route.csv.
type BusRoute struct {
	ID   string
	Name string
}

// WriteBusRoutes writes public.bus_route.csv: `id, name`.
func WriteBusRoutes(w io.Writer, user, network string, generated time.Time, routes []BusRoute) error {
	WriteBanner(w, user, network, "public.bus_route", generated)
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"id", "name"}); err != nil {
		return err
	}
	for _, r := range routes {
		if err := cw.Write([]string{r.ID, r.Name}); err != nil {
			return err
		}
	}
	return cw.Error()
}

// BusRouteLink is one row of public.bus_route_link.csv: one per link in a
// trip's matched path. Stop and DwellTime are populated only on the row
// where that link carries a stop.
type BusRouteLink struct {
	Route     string
	Sequence  int
	Link      int64
	Stop      string
	DwellTime float64
	HasStop   bool
}

// WriteBusRouteLinks writes public.bus_route_link.csv: `route, sequence,
// link, stop, dwelltime`.
func WriteBusRouteLinks(w io.Writer, user, network string, generated time.Time, links []BusRouteLink) error {
	WriteBanner(w, user, network, "public.bus_route_link", generated)
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"route", "sequence", "link", "stop", "dwelltime"}); err != nil {
		return err
	}
	for _, l := range links {
		stop, dwell := "", ""
		if l.HasStop {
			stop = l.Stop
			dwell = fmt.Sprintf("%f", l.DwellTime)
		}
		row := []string{l.Route, fmt.Sprintf("%d", l.Sequence), fmt.Sprintf("%d", l.Link), stop, dwell}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

// BusStop is one row of public.bus_stop.csv. Location is the integer
// along-link distance from the link's origin.
type BusStop struct {
	ID       string
	Link     int64
	Name     string
	Location int64
}

// WriteBusStops writes public.bus_stop.csv: `id, link, name, location`.
func WriteBusStops(w io.Writer, user, network string, generated time.Time, stops []BusStop) error {
	WriteBanner(w, user, network, "public.bus_stop", generated)
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"id", "link", "name", "location"}); err != nil {
		return err
	}
	for _, s := range stops {
		row := []string{s.ID, fmt.Sprintf("%d", s.Link), s.Name, fmt.Sprintf("%d", s.Location)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

// BusFrequency is one row of public.bus_frequency.csv.
type BusFrequency struct {
	Route      string
	Period     string
	Frequency  float64
	OffsetTime string
	Preemption string
}

// WriteBusFrequencies writes public.bus_frequency.csv: `route, period,
// frequency, offsettime, preemption`.
func WriteBusFrequencies(w io.Writer, user, network string, generated time.Time, freqs []BusFrequency) error {
	WriteBanner(w, user, network, "public.bus_frequency", generated)
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"route", "period", "frequency", "offsettime", "preemption"}); err != nil {
		return err
	}
	for _, f := range freqs {
		row := []string{f.Route, f.Period, fmt.Sprintf("%f", f.Frequency), f.OffsetTime, f.Preemption}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

// BusPeriod is one row of public.bus_period.csv.
type BusPeriod struct {
	ID        string
	StartTime string
	EndTime   string
}

// WriteBusPeriods writes public.bus_period.csv: `id, starttime, endtime`.
func WriteBusPeriods(w io.Writer, user, network string, generated time.Time, periods []BusPeriod) error {
	WriteBanner(w, user, network, "public.bus_period", generated)
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"id", "starttime", "endtime"}); err != nil {
		return err
	}
	for _, p := range periods {
		if err := cw.Write([]string{p.ID, p.StartTime, p.EndTime}); err != nil {
			return err
		}
	}
	return cw.Error()
}

// AVLDistanceRow is one row of the AVL distance output: per-sample
// distance, timestamp, and speed along a trip's matched path.
type AVLDistanceRow struct {
	TripID    string
	Distance  float64
	Timestamp time.Time
	Speed     float64
}

// WriteAVLDistances writes the AVL distance report: `tripID, distance,
// timestamp, speed`.
func WriteAVLDistances(w io.Writer, rows []AVLDistanceRow) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"tripID", "distance", "timestamp", "speed"}); err != nil {
		return err
	}
	for _, r := range rows {
		row := []string{r.TripID, fmt.Sprintf("%f", r.Distance), r.Timestamp.Format("20060102T15:04:05"), fmt.Sprintf("%f", r.Speed)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

// AVLStopRow is one row of the AVL distance report in stops mode (-s):
// per-stop distance along a trip's matched path.
type AVLStopRow struct {
	TripID    string
	StopID    string
	StopSeq   int
	Distance  float64
	Arrival   time.Time
	Departure time.Time
	Name      string
}

// WriteAVLStopDistances writes the -s variant of the AVL distance report:
// `tripID, stopID, stopSeq, distance, arrival, departure, name`.
func WriteAVLStopDistances(w io.Writer, rows []AVLStopRow) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"tripID", "stopID", "stopSeq", "distance", "arrival", "departure", "name"}); err != nil {
		return err
	}
	for _, r := range rows {
		row := []string{
			r.TripID, r.StopID, fmt.Sprintf("%d", r.StopSeq), fmt.Sprintf("%f", r.Distance),
			r.Arrival.Format("15:04:05"), r.Departure.Format("15:04:05"), r.Name,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}
