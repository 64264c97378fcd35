// Command avldistance maps an AVL point stream (or, with -s, a trip's
// GTFS stops) onto a previously computed shape match and reports the
// along-path distance traveled at each sample.
//
// Usage:
//
//	avldistance [flags] dbServer network user password shapePath pathMatchFile
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/kperrine/nmc-map-matcher/internal/matchrun"
	"github.com/kperrine/nmc-map-matcher/internal/netstore"
	"github.com/kperrine/nmc-map-matcher/pkg/avl"
	"github.com/kperrine/nmc-map-matcher/pkg/dump"
	"github.com/kperrine/nmc-map-matcher/pkg/geo"
	"github.com/kperrine/nmc-map-matcher/pkg/gtfs"
	"github.com/kperrine/nmc-map-matcher/pkg/output"
	"github.com/kperrine/nmc-map-matcher/pkg/problemreport"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: avldistance [flags] dbServer network user password shapePath pathMatchFile")
	fmt.Fprintln(os.Stderr, "  -a path     AVL CSV file (required unless -s)")
	fmt.Fprintln(os.Stderr, "  -r routeID  restrict to this route id")
	fmt.Fprintln(os.Stderr, "  -h headsign restrict to this trip headsign")
	fmt.Fprintln(os.Stderr, "  -s          report distances for GTFS stops instead of AVL samples")
	fmt.Fprintln(os.Stderr, "  -p          write a problem report")
	os.Exit(1)
}

func main() {
	log.SetFlags(0)

	avlPath := flag.String("a", "", "AVL CSV file")
	routeID := flag.String("r", "", "route id filter")
	headsign := flag.String("h", "", "trip headsign filter")
	stopsMode := flag.Bool("s", false, "report GTFS stop distances instead of AVL samples")
	problems := flag.Bool("p", false, "write a problem report")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 6 {
		usage()
	}
	if !*stopsMode && *avlPath == "" {
		fmt.Fprintln(os.Stderr, "ERROR: -a is required unless -s is given")
		usage()
	}

	dbServer := flag.Arg(0)
	network := flag.Arg(1)
	user := flag.Arg(2)
	password := flag.Arg(3)
	shapePath := flag.Arg(4)
	pathMatchFile := flag.Arg(5)

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

	proj := geo.NewProjector(net.CenterLat, net.CenterLon)
	shapeIDs := make(map[string]bool, len(shapeEnds))
	for id := range shapeEnds {
		shapeIDs[id] = true
	}

	routes, err := gtfs.ReadRoutes(shapePath)
	if err != nil {
		log.Fatalf("Failed to read GTFS routes: %v", err)
	}
	trips, err := gtfs.ReadTrips(shapePath, routes, shapeIDs, nil)
	if err != nil {
		log.Fatalf("Failed to read GTFS trips: %v", err)
	}

	now := time.Now()
	refDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	var stopTimes map[string][]*gtfs.StopTime
	var speeds map[string][]float64

	if *stopsMode {
		stops, serr := gtfs.ReadStops(shapePath, proj)
		if serr != nil {
			log.Fatalf("Failed to read GTFS stops: %v", serr)
		}
		stopTimes, err = gtfs.ReadStopTimes(shapePath, trips, stops, refDate)
		if err != nil {
			log.Fatalf("Failed to read GTFS stop times: %v", err)
		}
		if *routeID != "" || *headsign != "" {
			for id, trip := range trips {
				if (*routeID != "" && trip.RouteID != *routeID) || (*headsign != "" && trip.Headsign != *headsign) {
					delete(stopTimes, id)
				}
			}
		}
	} else {
		avlResults, aerr := avl.ReadAVLCSV(*avlPath, trips, proj, *routeID, *headsign)
		if aerr != nil {
			log.Fatalf("Failed to read AVL CSV: %v", aerr)
		}
		stopTimes = make(map[string][]*gtfs.StopTime, len(avlResults))
		speeds = make(map[string][]float64, len(avlResults))
		for _, id := range avl.SortedTripIDs(avlResults) {
			stopTimes[id] = avlResults[id].StopTimes
			speeds[id] = avlResults[id].Speeds
		}
	}

	matchTrips := make(map[string]*gtfs.Trip, len(stopTimes))
	for id := range stopTimes {
		matchTrips[id] = trips[id]
	}

	cfg := matchrun.DefaultConfig()
	results, err := matchrun.MatchStops(ctx, net, shapeEnds, matchTrips, stopTimes, cfg)
	if err != nil {
		log.Fatalf("Sample matching failed: %v", err)
	}

	if *stopsMode {
		var rows []output.AVLStopRow
		for _, id := range sortedTripIDs(results) {
			r := results[id]
			base, ok := baseDistance(r)
			if !ok {
				log.Printf("INFO: skipping trip %s: no sample matched", id)
				continue
			}
			for i, pe := range r.PathEnds {
				if pe.Point == nil {
					continue
				}
				st := r.StopTimes[i]
				rows = append(rows, output.AVLStopRow{
					TripID:    id,
					StopID:    st.StopID,
					StopSeq:   st.StopSeq,
					Distance:  pe.TotalDist - base,
					Arrival:   st.ArrivalTime,
					Departure: st.DepartureTime,
					Name:      st.Stop.Name,
				})
			}
		}
		if err := output.WriteAVLStopDistances(os.Stdout, rows); err != nil {
			log.Fatalf("Failed to write stop distances: %v", err)
		}
	} else {
		var rows []output.AVLDistanceRow
		for _, id := range sortedTripIDs(results) {
			r := results[id]
			base, ok := baseDistance(r)
			if !ok {
				log.Printf("INFO: skipping trip %s: no sample matched", id)
				continue
			}
			for i, pe := range r.PathEnds {
				if pe.Point == nil {
					continue
				}
				rows = append(rows, output.AVLDistanceRow{
					TripID:    id,
					Distance:  pe.TotalDist - base,
					Timestamp: r.StopTimes[i].ArrivalTime,
					Speed:     speeds[id][i],
				})
			}
		}
		if err := output.WriteAVLDistances(os.Stdout, rows); err != nil {
			log.Fatalf("Failed to write AVL distances: %v", err)
		}
	}

	if *problems {
		f, ferr := os.Create("problem_report.csv")
		if ferr != nil {
			log.Fatalf("Failed to create problem report: %v", ferr)
		}
		defer f.Close()
		var rows []problemreport.Row
		for _, id := range sortedTripIDs(results) {
			r := results[id]
			rows = append(rows, problemreport.Assemble(r.Trip.ShapeID, r.PathEnds, nil)...)
		}
		if err := problemreport.Write(f, rows); err != nil {
			log.Fatalf("Failed to write problem report: %v", err)
		}
	}
}

// baseDistance returns the along-path distance at the trip's first
// matched sample, so reported distances start from zero.
func baseDistance(r *matchrun.TripResult) (float64, bool) {
	for _, pe := range r.PathEnds {
		if pe.Point != nil {
			return pe.TotalDist, true
		}
	}
	return 0, false
}

func sortedTripIDs(results map[string]*matchrun.TripResult) []string {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
