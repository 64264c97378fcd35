package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kperrine/nmc-map-matcher/internal/netosm"
	"github.com/kperrine/nmc-map-matcher/internal/netstore"
	"github.com/kperrine/nmc-map-matcher/pkg/graph"
)

func main() {
	input := flag.String("input", "", "Path to .osm.pbf file")
	output := flag.String("output", "network.bin", "Output binary network file path")
	bbox := flag.String("bbox", "", "Bounding box filter: minLat,minLon,maxLat,maxLon (e.g. 30.1,-98.1,30.6,-97.4)")
	dbServer := flag.String("db", "", "Postgres host[:port] to load the network from instead of an OSM extract")
	dbName := flag.String("database", "", "Postgres database name")
	dbUser := flag.String("user", "", "Postgres user")
	dbPassword := flag.String("password", "", "Postgres password")
	network := flag.String("network", "", "Network schema name in the database")
	flag.Parse()

	if (*input == "") == (*dbServer == "") {
		fmt.Fprintln(os.Stderr, "Usage: preprocess --input <file.osm.pbf> [--bbox minLat,minLon,maxLat,maxLon] [--output network.bin]")
		fmt.Fprintln(os.Stderr, "       preprocess --db <host> --database <db> --user <u> --password <p> --network <name> [--output network.bin]")
		os.Exit(1)
	}

	start := time.Now()
	ctx := context.Background()

	var g *graph.Multigraph
	var err error

	if *input != "" {
		var opts netosm.LoadOptions
		if *bbox != "" {
			var minLat, minLon, maxLat, maxLon float64
			if _, serr := fmt.Sscanf(*bbox, "%f,%f,%f,%f", &minLat, &minLon, &maxLat, &maxLon); serr != nil {
				log.Fatalf("Invalid bbox format (expected minLat,minLon,maxLat,maxLon): %v", serr)
			}
			opts.BBox = netosm.BBox{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}
			log.Printf("Using bounding box filter: lat [%.4f, %.4f], lon [%.4f, %.4f]", minLat, maxLat, minLon, maxLon)
		}

		log.Println("Opening OSM file...")
		f, oerr := os.Open(*input)
		if oerr != nil {
			log.Fatalf("Failed to open input file: %v", oerr)
		}
		defer f.Close()

		log.Println("Parsing OSM data...")
		g, err = netosm.Load(ctx, f, opts)
		if err != nil {
			log.Fatalf("Failed to parse OSM data: %v", err)
		}
	} else {
		pool, cerr := netstore.Connect(ctx, netstore.Config{
			Server: *dbServer, Database: *dbName, User: *dbUser, Password: *dbPassword,
		})
		if cerr != nil {
			log.Fatalf("Failed to connect to database: %v", cerr)
		}
		defer pool.Close()

		g, err = netstore.Load(ctx, pool, *network)
		if err != nil {
			log.Fatalf("Failed to load network from database: %v", err)
		}
	}
	log.Printf("Network: %d nodes, %d links", len(g.Nodes()), len(g.Links()))

	log.Println("Extracting largest connected component...")
	componentNodes := graph.LargestComponent(g)
	log.Printf("Largest component: %d nodes (%.1f%%)", len(componentNodes), float64(len(componentNodes))/float64(len(g.Nodes()))*100)
	g = graph.FilterToComponent(g, componentNodes)
	log.Printf("Filtered network: %d nodes, %d links", len(g.Nodes()), len(g.Links()))

	log.Printf("Writing binary to %s...", *output)
	if err := graph.WriteBinary(*output, g); err != nil {
		log.Fatalf("Failed to write binary: %v", err)
	}

	info, _ := os.Stat(*output)
	elapsed := time.Since(start)
	log.Printf("Done in %s. Output: %s (%.1f MB)", elapsed.Round(time.Second), *output, float64(info.Size())/(1024*1024))
}
