// Package matchrun drives the per-trip stop-matching pipeline shared by
// the command-line front ends and the query server: restore each trip's
// shape match, flatten it into an embellished subnet, re-match the trip's
// stops against that subnet, then reconcile stop assignments across trips
// and refine the outliers.
package matchrun

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kperrine/nmc-map-matcher/pkg/graph"
	"github.com/kperrine/nmc-map-matcher/pkg/gtfs"
	"github.com/kperrine/nmc-map-matcher/pkg/pathengine"
	"github.com/kperrine/nmc-map-matcher/pkg/reconcile"
	"github.com/kperrine/nmc-map-matcher/pkg/subnet"
)

// DefaultEngineConfig returns the stop-matching engine parameters. Radii
// and limits are in feet.
func DefaultEngineConfig() pathengine.Config {
	return pathengine.Config{
		R:                      800,
		RPrimary:               350,
		RSecondary:             200,
		WalkerRadius:           3800,
		WalkerDistance:         3800,
		AllowUTurns:            false,
		FD:                     1.0,
		FR:                     2.0,
		FP:                     1.5,
		LimitClosestPoints:     8,
		LimitSimultaneousPaths: 8,
		MaxHops:                12,
	}
}

// Config holds the pipeline's settings.
type Config struct {
	Engine         pathengine.Config
	EmbellishCount int
	EmbellishDepth int

	// Workers bounds how many trips match concurrently. Zero means one
	// worker per CPU.
	Workers int
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Engine:         DefaultEngineConfig(),
		EmbellishCount: subnet.DefaultEmbellishCount,
		EmbellishDepth: subnet.DefaultEmbellishDepth,
	}
}

// MatchShapes matches every shape's point sequence onto the road network
// and returns the winning PathEnd chain per shape id, in Flatten order.
// Shapes match independently on a bounded worker pool, one engine (and
// walker back-cache) per shape.
func MatchShapes(ctx context.Context, net *graph.Multigraph, shapes map[string][]gtfs.ShapePoint, cfg Config) (map[string][]*pathengine.PathEnd, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	shapeIDs := make([]string, 0, len(shapes))
	for id := range shapes {
		shapeIDs = append(shapeIDs, id)
	}
	sort.Strings(shapeIDs)

	var mu sync.Mutex
	results := make(map[string][]*pathengine.PathEnd)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, shapeID := range shapeIDs {
		pts := shapes[shapeID]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			samples := make([]pathengine.ShapeSample, len(pts))
			for i, pt := range pts {
				samples[i] = pathengine.ShapeSample{
					ShapeID: pt.ShapeID, Seq: pt.Seq,
					Lat: pt.Lat, Lon: pt.Lon, X: pt.X, Y: pt.Y,
				}
			}
			engine := pathengine.New(cfg.Engine)
			ends := engine.ConstructPath(samples, net)
			if len(ends) == 0 {
				log.Printf("INFO: shape %s produced no match", shapeID)
				return nil
			}
			mu.Lock()
			results[shapeID] = ends
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("matching shapes: %w", err)
	}
	return results, nil
}

// TripResult is one trip's completed stop match.
type TripResult struct {
	Trip        *gtfs.Trip
	Subnet      *graph.SinglePathGraph
	SubnetLinks []*graph.Link

	// PathEnds, StopIDs, and StopTimes are parallel; the dummy anchor
	// samples added by subnet.PrepareMapStops have been stripped, so
	// entry i is the trip's i-th stop time.
	PathEnds  []*pathengine.PathEnd
	StopIDs   []string
	StopTimes []*gtfs.StopTime
}

// MatchStops matches every trip's stops against its own subnet. Trips
// whose shape is missing from shapeEnds, or whose shape match contains no
// usable contiguous run, are skipped with an INFO log. Matching runs on a
// bounded worker pool with one engine (and walker back-cache) per trip;
// the shared network graph is read-only throughout.
func MatchStops(ctx context.Context, net *graph.Multigraph, shapeEnds map[string][]*pathengine.PathEnd, trips map[string]*gtfs.Trip, stopTimes map[string][]*gtfs.StopTime, cfg Config) (map[string]*TripResult, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	tripIDs := make([]string, 0, len(trips))
	for id := range trips {
		tripIDs = append(tripIDs, id)
	}
	sort.Strings(tripIDs)

	var mu sync.Mutex
	results := make(map[string]*TripResult)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, tripID := range tripIDs {
		trip := trips[tripID]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res := matchOneTrip(net, shapeEnds, trip, stopTimes[trip.ID], cfg)
			if res == nil {
				return nil
			}
			mu.Lock()
			results[trip.ID] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("matching stops: %w", err)
	}
	return results, nil
}

func matchOneTrip(net *graph.Multigraph, shapeEnds map[string][]*pathengine.PathEnd, trip *gtfs.Trip, sts []*gtfs.StopTime, cfg Config) *TripResult {
	ends, ok := shapeEnds[trip.ShapeID]
	if !ok {
		log.Printf("INFO: skipping trip %s: shape %s not present in the loaded match", trip.ID, trip.ShapeID)
		return nil
	}
	if len(sts) == 0 {
		log.Printf("INFO: skipping trip %s: no stop times", trip.ID)
		return nil
	}

	run := subnet.TreeContiguous(ends)
	if run == nil {
		log.Printf("INFO: skipping trip %s: shape %s has no contiguous matched run", trip.ID, trip.ShapeID)
		return nil
	}

	sub, links := subnet.BuildSubset(run)
	if len(links) == 0 {
		log.Printf("INFO: skipping trip %s: shape %s flattened to an empty subnet", trip.ID, trip.ShapeID)
		return nil
	}
	subnet.EmbellishSubset(sub, links, net, cfg.EmbellishCount, cfg.EmbellishDepth)

	samples, stopIDs := subnet.PrepareMapStops(links, sts)

	engine := pathengine.New(cfg.Engine)
	matched := engine.ConstructPath(samples, sub)
	if len(matched) != len(samples) {
		log.Printf("INFO: skipping trip %s: stop match truncated (%d of %d samples)", trip.ID, len(matched), len(samples))
		return nil
	}

	// Strip the two dummy anchor samples.
	return &TripResult{
		Trip:        trip,
		Subnet:      sub,
		SubnetLinks: links,
		PathEnds:    matched[1 : len(matched)-1],
		StopIDs:     stopIDs[1 : len(stopIDs)-1],
		StopTimes:   sts,
	}
}

// ReconcileStops runs the cross-trip stop reconciliation barrier over the
// matched trips and folds the refined paths back into results. Returns,
// per reassigned trip, the sample indices whose link changed.
func ReconcileStops(results map[string]*TripResult, cfg Config) map[string]map[int]bool {
	tripIDs := make([]string, 0, len(results))
	for id := range results {
		tripIDs = append(tripIDs, id)
	}
	sort.Strings(tripIDs)

	matches := make([]*reconcile.TripMatch, 0, len(results))
	for _, id := range tripIDs {
		r := results[id]
		matches = append(matches, &reconcile.TripMatch{
			TripID:   r.Trip.ID,
			Subnet:   r.Subnet,
			PathEnds: r.PathEnds,
			StopIDs:  r.StopIDs,
		})
	}

	engine := pathengine.New(cfg.Engine)
	refined := reconcile.Reconcile(matches, engine)

	changed := make(map[string]map[int]bool, len(refined))
	for tripID, ends := range refined {
		old := results[tripID].PathEnds
		if len(ends) != len(old) {
			log.Printf("WARNING: refine pass for trip %s returned %d samples, want %d; keeping original", tripID, len(ends), len(old))
			continue
		}
		moved := make(map[int]bool)
		for i := range ends {
			oldID, newID := int64(-1), int64(-1)
			if old[i].Point != nil {
				oldID = old[i].Point.Link.ID
			}
			if ends[i].Point != nil {
				newID = ends[i].Point.Link.ID
			}
			if oldID != newID {
				moved[i] = true
			}
		}
		results[tripID].PathEnds = ends
		if len(moved) > 0 {
			changed[tripID] = moved
		}
	}
	return changed
}
