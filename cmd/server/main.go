package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/kperrine/nmc-map-matcher/internal/matchrun"
	"github.com/kperrine/nmc-map-matcher/pkg/api"
	"github.com/kperrine/nmc-map-matcher/pkg/dump"
	"github.com/kperrine/nmc-map-matcher/pkg/geo"
	"github.com/kperrine/nmc-map-matcher/pkg/graph"
	"github.com/kperrine/nmc-map-matcher/pkg/gtfs"
)

func main() {
	networkPath := flag.String("network", "network.bin", "Path to preprocessed network binary")
	gtfsPath := flag.String("gtfs", "", "Path to the GTFS directory")
	matchPath := flag.String("match", "", "Path to the shape path-match dump")
	date := flag.String("date", "", "Service date (YYYY-MM-DD) stop times are normalized against; defaults to today")
	port := flag.Int("port", 8080, "HTTP port")
	corsOrigin := flag.String("cors-origin", "", "CORS allowed origin (empty = same-origin)")
	flag.Parse()

	if *gtfsPath == "" || *matchPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: server --network network.bin --gtfs <dir> --match <dump> [--date YYYY-MM-DD] [--port 8080]")
		os.Exit(1)
	}

	refDate := time.Now()
	if *date != "" {
		var err error
		refDate, err = time.ParseInLocation("2006-01-02", *date, time.Local)
		if err != nil {
			log.Fatalf("Invalid --date: %v", err)
		}
	}

	start := time.Now()

	log.Printf("Loading network from %s...", *networkPath)
	net, err := graph.ReadBinary(*networkPath)
	if err != nil {
		log.Fatalf("Failed to load network: %v", err)
	}
	log.Printf("Loaded: %d nodes, %d links", len(net.Nodes()), len(net.Links()))

	log.Printf("Loading shape match from %s...", *matchPath)
	shapeEnds, err := dump.Read(*matchPath, net)
	if err != nil {
		log.Fatalf("Failed to load shape match: %v", err)
	}
	log.Printf("Loaded matches for %d shapes", len(shapeEnds))

	proj := geo.NewProjector(net.CenterLat, net.CenterLon)
	shapeIDs := make(map[string]bool, len(shapeEnds))
	for id := range shapeEnds {
		shapeIDs[id] = true
	}

	routes, err := gtfs.ReadRoutes(*gtfsPath)
	if err != nil {
		log.Fatalf("Failed to read GTFS routes: %v", err)
	}
	trips, err := gtfs.ReadTrips(*gtfsPath, routes, shapeIDs, nil)
	if err != nil {
		log.Fatalf("Failed to read GTFS trips: %v", err)
	}
	stops, err := gtfs.ReadStops(*gtfsPath, proj)
	if err != nil {
		log.Fatalf("Failed to read GTFS stops: %v", err)
	}
	stopTimes, err := gtfs.ReadStopTimes(*gtfsPath, trips, stops, refDate)
	if err != nil {
		log.Fatalf("Failed to read GTFS stop times: %v", err)
	}

	cfg := matchrun.DefaultConfig()
	log.Printf("Matching stops for %d trips...", len(trips))
	results, err := matchrun.MatchStops(context.Background(), net, shapeEnds, trips, stopTimes, cfg)
	if err != nil {
		log.Fatalf("Stop matching failed: %v", err)
	}
	changed := matchrun.ReconcileStops(results, cfg)
	log.Printf("Matched %d trips (%d reconciled)", len(results), len(changed))

	matched := matchrun.BuildMatchedTrips(results)

	// Reclaim memory from init-time temporaries before serving.
	runtime.GC()
	debug.FreeOSMemory()

	log.Printf("Ready in %s", time.Since(start).Round(time.Millisecond))

	srvCfg := api.DefaultConfig(fmt.Sprintf(":%d", *port))
	if *corsOrigin != "" {
		srvCfg.CORSOrigins = []string{*corsOrigin}
	}
	handlers := api.NewHandlers(matched, api.StatsResponse{
		NumNodes: len(net.Nodes()),
		NumLinks: len(net.Links()),
	})
	srv := api.NewServer(srvCfg, handlers)

	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}
