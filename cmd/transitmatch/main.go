// Command transitmatch restores a previously computed shape match, maps
// every scheduled stop onto the matched network, reconciles stop
// assignments across trips, and writes the bus route tables consumed by
// downstream simulation.
//
// Usage:
//
//	transitmatch [flags] dbServer network user password shapePath pathMatchFile
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kperrine/nmc-map-matcher/internal/matchrun"
	"github.com/kperrine/nmc-map-matcher/internal/netstore"
	"github.com/kperrine/nmc-map-matcher/pkg/dump"
	"github.com/kperrine/nmc-map-matcher/pkg/geo"
	"github.com/kperrine/nmc-map-matcher/pkg/gtfs"
	"github.com/kperrine/nmc-map-matcher/pkg/output"
	"github.com/kperrine/nmc-map-matcher/pkg/problemreport"
)

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: transitmatch [flags] dbServer network user password shapePath pathMatchFile")
	fmt.Fprintln(os.Stderr, "  -t HH:MM:SS   reference time (required)")
	fmt.Fprintln(os.Stderr, "  -e seconds    analysis duration (default 86400)")
	fmt.Fprintln(os.Stderr, "  -c serviceID  keep only this service id (repeatable)")
	fmt.Fprintln(os.Stderr, "  -u            exclude the upstream portion of each route before its first stop")
	fmt.Fprintln(os.Stderr, "  -w, -wb, -we  widen the analysis window at both/begin/end")
	fmt.Fprintln(os.Stderr, "  -x, -xb, -xe  exclude stops outside the window at both/begin/end")
	fmt.Fprintln(os.Stderr, "  -p            write a problem report")
	os.Exit(1)
}

func main() {
	log.SetFlags(0)

	refTimeStr := flag.String("t", "", "reference time HH:MM:SS (required)")
	duration := flag.Int("e", 86400, "analysis duration in seconds")
	var services stringList
	flag.Var(&services, "c", "service id filter (repeatable)")
	excludeUpstream := flag.Bool("u", false, "exclude upstream route portion")
	widenBoth := flag.Bool("w", false, "widen window at both ends")
	widenBegin := flag.Bool("wb", false, "widen window at begin")
	widenEnd := flag.Bool("we", false, "widen window at end")
	exclBoth := flag.Bool("x", false, "exclude out-of-window stops at both ends")
	exclBegin := flag.Bool("xb", false, "exclude out-of-window stops at begin")
	exclEnd := flag.Bool("xe", false, "exclude out-of-window stops at end")
	problems := flag.Bool("p", false, "write a problem report")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 6 || *refTimeStr == "" {
		usage()
	}

	wBegin := *widenBoth || *widenBegin
	wEnd := *widenBoth || *widenEnd
	xBegin := *exclBoth || *exclBegin
	xEnd := *exclBoth || *exclEnd
	if (wBegin && xBegin) || (wEnd && xEnd) {
		fmt.Fprintln(os.Stderr, "ERROR: widening and excluding the same end are mutually exclusive")
		usage()
	}

	refTime, err := time.Parse("15:04:05", *refTimeStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: invalid -t %q: %v\n", *refTimeStr, err)
		usage()
	}

	dbServer := flag.Arg(0)
	network := flag.Arg(1)
	user := flag.Arg(2)
	password := flag.Arg(3)
	shapePath := flag.Arg(4)
	pathMatchFile := flag.Arg(5)

	now := time.Now()
	refDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	windowStart := refDate.Add(time.Duration(refTime.Hour())*time.Hour +
		time.Duration(refTime.Minute())*time.Minute + time.Duration(refTime.Second())*time.Second)
	windowDur := time.Duration(*duration) * time.Second

	ctx := context.Background()

	pool, err := netstore.Connect(ctx, netstore.Config{
		Server: dbServer, Database: network, User: user, Password: password, Network: network,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	net, err := netstore.Load(ctx, pool, network)
	if err != nil {
		log.Fatalf("Failed to load network: %v", err)
	}

	shapeEnds, err := dump.Read(pathMatchFile, net)
	if err != nil {
		log.Fatalf("Failed to load shape match %s: %v", pathMatchFile, err)
	}
	log.Printf("Loaded matches for %d shapes", len(shapeEnds))

	proj := geo.NewProjector(net.CenterLat, net.CenterLon)
	shapeIDs := make(map[string]bool, len(shapeEnds))
	for id := range shapeEnds {
		shapeIDs[id] = true
	}

	var restrictService map[string]bool
	if len(services) > 0 {
		restrictService = make(map[string]bool, len(services))
		for _, s := range services {
			restrictService[s] = true
		}
	}

	routes, err := gtfs.ReadRoutes(shapePath)
	if err != nil {
		log.Fatalf("Failed to read GTFS routes: %v", err)
	}
	trips, err := gtfs.ReadTrips(shapePath, routes, shapeIDs, restrictService)
	if err != nil {
		log.Fatalf("Failed to read GTFS trips: %v", err)
	}
	stops, err := gtfs.ReadStops(shapePath, proj)
	if err != nil {
		log.Fatalf("Failed to read GTFS stops: %v", err)
	}
	stopTimes, err := gtfs.ReadStopTimes(shapePath, trips, stops, refDate)
	if err != nil {
		log.Fatalf("Failed to read GTFS stop times: %v", err)
	}

	stopTimes, trips = applyWindow(stopTimes, trips, windowStart, windowStart.Add(windowDur), wBegin, wEnd, xBegin, xEnd)
	log.Printf("%d trips fall within the analysis window", len(trips))

	cfg := matchrun.DefaultConfig()
	results, err := matchrun.MatchStops(ctx, net, shapeEnds, trips, stopTimes, cfg)
	if err != nil {
		log.Fatalf("Stop matching failed: %v", err)
	}
	changed := matchrun.ReconcileStops(results, cfg)
	log.Printf("Matched %d trips (%d reconciled)", len(results), len(changed))

	generated := time.Now()
	tableOpts := matchrun.TableOptions{ExcludeUpstream: *excludeUpstream}

	writeTable := func(name string, write func(f *os.File) error) {
		f, err := os.Create(name)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", name, err)
		}
		defer f.Close()
		if err := write(f); err != nil {
			log.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	writeTable("public.bus_route.csv", func(f *os.File) error {
		return output.WriteBusRoutes(f, user, network, generated, matchrun.BuildBusRoutes(results))
	})
	writeTable("public.bus_route_link.csv", func(f *os.File) error {
		return output.WriteBusRouteLinks(f, user, network, generated, matchrun.BuildBusRouteLinks(results, tableOpts))
	})
	writeTable("public.bus_stop.csv", func(f *os.File) error {
		return output.WriteBusStops(f, user, network, generated, matchrun.BuildBusStops(results))
	})
	periods, freqs := matchrun.BuildBusPeriodsAndFrequencies(results, windowStart, windowDur)
	writeTable("public.bus_period.csv", func(f *os.File) error {
		return output.WriteBusPeriods(f, user, network, generated, periods)
	})
	writeTable("public.bus_frequency.csv", func(f *os.File) error {
		return output.WriteBusFrequencies(f, user, network, generated, freqs)
	})

	if *problems {
		writeTable("problem_report.csv", func(f *os.File) error {
			var rows []problemreport.Row
			for _, id := range sortedTripIDs(results) {
				r := results[id]
				rows = append(rows, problemreport.Assemble(r.Trip.ShapeID, r.PathEnds, changed[id])...)
			}
			return problemreport.Write(f, rows)
		})
	}
}

// applyWindow keeps trips overlapping [start, end) and optionally trims
// their stop times. Widening an end removes the window bound at that end
// for trip selection; excluding an end drops the individual stop times
// falling outside the window at that end.
func applyWindow(stopTimes map[string][]*gtfs.StopTime, trips map[string]*gtfs.Trip, start, end time.Time, wBegin, wEnd, xBegin, xEnd bool) (map[string][]*gtfs.StopTime, map[string]*gtfs.Trip) {
	selStart, selEnd := start, end
	if wBegin {
		selStart = time.Time{}
	}
	if wEnd {
		selEnd = time.Time{}
	}

	outTimes := make(map[string][]*gtfs.StopTime)
	outTrips := make(map[string]*gtfs.Trip)
	for tripID, sts := range stopTimes {
		if len(sts) == 0 {
			continue
		}
		first := sts[0].ArrivalTime
		last := sts[len(sts)-1].DepartureTime
		if !selEnd.IsZero() && !first.Before(selEnd) {
			log.Printf("INFO: skipping trip %s: begins after the analysis window", tripID)
			continue
		}
		if !selStart.IsZero() && last.Before(selStart) {
			log.Printf("INFO: skipping trip %s: ends before the analysis window", tripID)
			continue
		}

		kept := sts
		if xBegin || xEnd {
			kept = nil
			for _, st := range sts {
				if xBegin && st.DepartureTime.Before(start) {
					continue
				}
				if xEnd && !st.ArrivalTime.Before(end) {
					continue
				}
				kept = append(kept, st)
			}
			if len(kept) == 0 {
				log.Printf("INFO: skipping trip %s: no stop times remain after window trimming", tripID)
				continue
			}
		}
		outTimes[tripID] = kept
		outTrips[tripID] = trips[tripID]
	}
	return outTimes, outTrips
}

func sortedTripIDs(results map[string]*matchrun.TripResult) []string {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
