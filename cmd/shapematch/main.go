// Command shapematch matches every GTFS shape polyline onto the road
// network and writes the resulting per-shape path dump consumed by
// transitmatch, avldistance, and the query server.
//
// Usage:
//
//	shapematch [flags] dbServer network user password shapePath pathMatchFile
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kperrine/nmc-map-matcher/internal/matchrun"
	"github.com/kperrine/nmc-map-matcher/internal/netstore"
	"github.com/kperrine/nmc-map-matcher/pkg/dump"
	"github.com/kperrine/nmc-map-matcher/pkg/geo"
	"github.com/kperrine/nmc-map-matcher/pkg/gtfs"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: shapematch [flags] dbServer network user password shapePath pathMatchFile")
	fmt.Fprintln(os.Stderr, "  -uturns       allow immediate reversals during the walk")
	fmt.Fprintln(os.Stderr, "  -workers n    concurrent shape matches (default: one per CPU)")
	os.Exit(1)
}

func main() {
	log.SetFlags(0)

	allowUTurns := flag.Bool("uturns", false, "allow immediate reversals during the walk")
	workers := flag.Int("workers", 0, "concurrent shape matches (0 = one per CPU)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 6 {
		usage()
	}

	dbServer := flag.Arg(0)
	network := flag.Arg(1)
	user := flag.Arg(2)
	password := flag.Arg(3)
	shapePath := flag.Arg(4)
	pathMatchFile := flag.Arg(5)

	ctx := context.Background()
	start := time.Now()

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

	proj := geo.NewProjector(net.CenterLat, net.CenterLon)
	shapes, err := gtfs.ReadShapes(shapePath, proj)
	if err != nil {
		log.Fatalf("Failed to read GTFS shapes: %v", err)
	}
	log.Printf("Matching %d shapes...", len(shapes))

	cfg := matchrun.DefaultConfig()
	cfg.Engine.AllowUTurns = *allowUTurns
	cfg.Workers = *workers

	results, err := matchrun.MatchShapes(ctx, net, shapes, cfg)
	if err != nil {
		log.Fatalf("Shape matching failed: %v", err)
	}
	log.Printf("Matched %d of %d shapes in %s", len(results), len(shapes), time.Since(start).Round(time.Millisecond))

	if err := dump.Write(pathMatchFile, results); err != nil {
		log.Fatalf("Failed to write path match dump: %v", err)
	}
	log.Printf("Wrote %s", pathMatchFile)
}
