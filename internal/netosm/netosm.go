// Package netosm loads a road network for transit matching from an OSM
// PBF extract. Ways are filtered to roads a bus can physically drive,
// split into directed links per node pair, and assembled into a
// graph.Multigraph projected around the extract's centroid.
package netosm

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/kperrine/nmc-map-matcher/pkg/graph"
)

// busHighways lists highway tag values a transit bus can operate on.
var busHighways = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
	"busway":         true,
	"bus_guideway":   true,
}

// isBusAccessible reports whether the way is drivable by a transit bus.
// Bus and PSV tags override generic access restrictions: a street closed
// to general traffic but tagged bus=yes still carries routes.
func isBusAccessible(tags osm.Tags) bool {
	if !busHighways[tags.Find("highway")] {
		return false
	}

	// Skip area highways (pedestrian plazas).
	if tags.Find("area") == "yes" {
		return false
	}

	if v := tags.Find("bus"); v == "yes" || v == "designated" {
		return true
	}
	if v := tags.Find("psv"); v == "yes" || v == "designated" {
		return true
	}

	access := tags.Find("access")
	if access == "no" || access == "private" {
		return false
	}
	if tags.Find("motor_vehicle") == "no" {
		return false
	}

	return true
}

// directionFlags returns (forward, backward) based on highway type and
// oneway tags. oneway:bus=no reopens the reverse direction for buses on
// streets that are one-way for general traffic only.
func directionFlags(tags osm.Tags) (forward, backward bool) {
	forward = true
	backward = true

	hw := tags.Find("highway")
	if hw == "motorway" || hw == "motorway_link" || tags.Find("junction") == "roundabout" {
		backward = false
	}

	switch tags.Find("oneway") {
	case "yes", "true", "1":
		forward = true
		backward = false
	case "-1", "reverse":
		forward = false
		backward = true
	case "no":
		forward = true
		backward = true
	case "reversible":
		// Time-dependent; skip entirely.
		forward = false
		backward = false
	}

	if tags.Find("oneway:bus") == "no" {
		forward = true
		backward = true
	}

	return forward, backward
}

// wayInfo holds parsed way data collected during pass 1.
type wayInfo struct {
	NodeIDs  []osm.NodeID
	Forward  bool
	Backward bool
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only links with both endpoints inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// IsZero reports whether the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLon == 0 && b.MaxLon == 0
}

// Contains reports whether the point is inside the bounding box.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// LoadOptions configures the loader.
type LoadOptions struct {
	BBox BBox // if non-zero, filter links to this bounding box
}

// Load reads an OSM PBF file and builds the road network graph. The
// reader is consumed twice (seeks back to start for the second pass), so
// it must implement io.ReadSeeker. The graph's projection is centered on
// the centroid of every node a kept way references, taken before the
// bounding-box filter; link ids are issued
// sequentially in way order.
func Load(ctx context.Context, rs io.ReadSeeker, opts ...LoadOptions) (*graph.Multigraph, error) {
	var opt LoadOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	useBBox := !opt.BBox.IsZero()

	// Pass 1: scan ways to collect referenced node IDs and way info.
	referencedNodes := make(map[osm.NodeID]struct{})
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		if !isBusAccessible(w.Tags) {
			continue
		}
		if len(w.Nodes) < 2 {
			continue
		}

		fwd, bwd := directionFlags(w.Tags)
		if !fwd && !bwd {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
			referencedNodes[wn.ID] = struct{}{}
		}

		ways = append(ways, wayInfo{NodeIDs: nodeIDs, Forward: fwd, Backward: bwd})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 1 complete: %d ways, %d referenced nodes", len(ways), len(referencedNodes))

	// Pass 2: scan nodes to collect coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	nodeLat := make(map[osm.NodeID]float64, len(referencedNodes))
	nodeLon := make(map[osm.NodeID]float64, len(referencedNodes))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}
		nodeLat[n.ID] = n.Lat
		nodeLon[n.ID] = n.Lon
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 2 complete: %d node coordinates collected", len(nodeLat))

	if len(nodeLat) == 0 {
		return nil, fmt.Errorf("no usable road nodes in extract")
	}

	var sumLat, sumLon float64
	for id, lat := range nodeLat {
		sumLat += lat
		sumLon += nodeLon[id]
	}
	centerLat := sumLat / float64(len(nodeLat))
	centerLon := sumLon / float64(len(nodeLat))

	g := graph.NewMultigraph(centerLat, centerLon)

	var linkID int64
	var skippedLinks, bboxFiltered int
	for _, w := range ways {
		for i := 0; i < len(w.NodeIDs)-1; i++ {
			fromID := w.NodeIDs[i]
			toID := w.NodeIDs[i+1]

			fromLat, fromOk := nodeLat[fromID]
			fromLon := nodeLon[fromID]
			toLat, toOk := nodeLat[toID]
			toLon := nodeLon[toID]
			if !fromOk || !toOk {
				skippedLinks++
				continue
			}
			if useBBox && (!opt.BBox.Contains(fromLat, fromLon) || !opt.BBox.Contains(toLat, toLon)) {
				bboxFiltered++
				continue
			}

			from := g.AddNode(int64(fromID), fromLat, fromLon)
			to := g.AddNode(int64(toID), toLat, toLon)

			if w.Forward {
				g.AddLink(linkID, from, to)
				linkID++
			}
			if w.Backward {
				g.AddLink(linkID, to, from)
				linkID++
			}
		}
	}

	if skippedLinks > 0 {
		log.Printf("Warning: skipped %d links due to missing node coordinates", skippedLinks)
	}
	if bboxFiltered > 0 {
		log.Printf("Filtered %d links outside bounding box", bboxFiltered)
	}
	log.Printf("Built %d directed links over %d nodes", len(g.Links()), len(g.Nodes()))

	return g, nil
}
