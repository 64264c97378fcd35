package graph

import (
	"math"
	"sort"

	"github.com/kperrine/nmc-map-matcher/pkg/geo"
	"github.com/tidwall/rtree"
)

// candidateIndex is a lazily (re)built R-tree over a graph's links, keyed
// by each link's planar bounding box. A brute scan over every link per
// query is the hotspot of candidate generation; the R-tree bounds each
// query to the links whose boxes intersect the search window.
type candidateIndex struct {
	tree  rtree.RTreeG[*Link]
	built bool
}

func (c *candidateIndex) invalidate() {
	c.built = false
}

func (c *candidateIndex) ensureBuilt(links map[int64]*Link) {
	if c.built {
		return
	}
	c.tree = rtree.RTreeG[*Link]{}
	for _, l := range links {
		minX, minY, maxX, maxY := linkBounds(l)
		c.tree.Insert([2]float64{minX, minY}, [2]float64{maxX, maxY}, l)
	}
	c.built = true
}

func linkBounds(l *Link) (minX, minY, maxX, maxY float64) {
	minX, maxX = l.Origin.X, l.Dest.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY = l.Origin.Y, l.Dest.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return minX, minY, maxX, maxY
}

// findPointsOnLinks projects a query point onto every link within radius
// and applies the accept/dedup/sort rules. Shared by Multigraph.FindPointsOnLinks and
// SinglePathGraph.FindPointsOnLinks so the dedup/accept/sort rules have one
// definition regardless of which concrete graph type is being queried.
func findPointsOnLinks(idx *candidateIndex, links map[int64]*Link, x, y, radius, primaryRadius, secondaryRadius float64, prevPoints []*PointOnLink, kMax int) []*PointOnLink {
	idx.ensureBuilt(links)

	radiusSq := radius * radius
	primarySq := primaryRadius * primaryRadius
	secondarySq := secondaryRadius * secondaryRadius

	var accepted []*PointOnLink

	idx.tree.Search(
		[2]float64{x - radius, y - radius},
		[2]float64{x + radius, y + radius},
		func(min, max [2]float64, link *Link) bool {
			distSq, along, perp := geo.PointSegmentDistSq(x, y, link.Origin.X, link.Origin.Y, link.Dest.X, link.Dest.Y, link.Length)
			if distSq > radiusSq {
				return true
			}

			// refDist is the distance from the query point p to the
			// projected point, not the along-link distance: it is what
			// makes the junction-straddling tail/head pair in
			// dedupJunctions compare equal, and what the path engine's
			// cost function sums per endpoint.
			// A foot that lands exactly on an endpoint counts as
			// non-perpendicular too, so the tail/head pair at a shared
			// junction is eligible for dedupJunctions.
			p := NewPointOnLink(link, along, !perp || along == 0 || along == link.Length, math.Sqrt(distSq))

			if distSq <= primarySq {
				accepted = append(accepted, p)
				return true
			}
			for _, prev := range prevPoints {
				if geo.NormSq(p.X, p.Y, prev.X, prev.Y) < secondarySq {
					accepted = append(accepted, p)
					return true
				}
			}
			return true
		},
	)

	accepted = dedupJunctions(accepted)

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].RefDist < accepted[j].RefDist })

	if kMax > 0 && len(accepted) > kMax {
		accepted = accepted[:kMax]
	}
	return accepted
}

// dedupJunctions removes the downstream half of a junction-straddling pair:
// a nonperpendicular candidate at the tail of link L1 and a nonperpendicular
// candidate at the head of an immediately downstream link L2 (L2.Origin ==
// L1.Dest) sharing the same RefDist are the same physical point; the
// upstream (L1 tail) candidate is kept.
func dedupJunctions(candidates []*PointOnLink) []*PointOnLink {
	// Tails: keyed by (destination node, refDist) -> true.
	tailsByNodeAndDist := make(map[*Node]map[float64]bool)
	for _, p := range candidates {
		if !p.NonPerp || p.Dist != p.Link.Length {
			continue
		}
		m := tailsByNodeAndDist[p.Link.Dest]
		if m == nil {
			m = make(map[float64]bool)
			tailsByNodeAndDist[p.Link.Dest] = m
		}
		m[p.RefDist] = true
	}

	out := candidates[:0:0]
	for _, p := range candidates {
		if p.NonPerp && p.Dist == 0 {
			if m := tailsByNodeAndDist[p.Link.Origin]; m != nil && m[p.RefDist] {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}
