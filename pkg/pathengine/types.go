// Package pathengine orchestrates candidate generation and the walker to
// match an ordered sequence of geographic samples onto a graph.
package pathengine

import "github.com/kperrine/nmc-map-matcher/pkg/graph"

// ShapeSample is one observation along a trip's shape (or, via
// prepareMapStops, a stop projected against an already-matched subnet).
type ShapeSample struct {
	ShapeID string
	Seq     int
	Lat     float64
	Lon     float64
	X       float64
	Y       float64
}

// PathEnd is one node of a matched-path hypothesis: the sample it explains,
// the point chosen for it, the links traversed getting there from the
// previous PathEnd, and the running cost/distance. Chains back through
// Prev to form the full hypothesis; Restart marks a PathEnd with no
// continuous route from its predecessor.
type PathEnd struct {
	Prev      *PathEnd
	Sample    ShapeSample
	Point     *graph.PointOnLink
	RouteInfo []*graph.Link
	TotalDist float64
	TotalCost float64
	Restart   bool
}

// Flatten walks tail's Prev chain and returns the hypothesis as an ordered
// slice, earliest sample first.
func Flatten(tail *PathEnd) []*PathEnd {
	var reversed []*PathEnd
	for p := tail; p != nil; p = p.Prev {
		reversed = append(reversed, p)
	}
	out := make([]*PathEnd, len(reversed))
	for i, p := range reversed {
		out[len(reversed)-1-i] = p
	}
	return out
}
