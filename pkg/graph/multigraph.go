package graph

import (
	"math"

	"github.com/kperrine/nmc-map-matcher/pkg/geo"
)

// Multigraph is the real road network: node identity is tracked (two links
// into the same physical intersection share one Node), and AddLink
// requires that both endpoints were added as nodes first.
type Multigraph struct {
	centerProjector
	candidateIndex

	CenterLat, CenterLon float64

	nodes      map[int64]*Node
	linksByUID map[int64]*Link
	nextUID    int64
}

// NewMultigraph builds an empty Multigraph whose planar projection is
// centered at (centerLat, centerLon). Callers typically center on the
// centroid of the network they are about to load.
func NewMultigraph(centerLat, centerLon float64) *Multigraph {
	return &Multigraph{
		centerProjector: centerProjector{proj: geo.NewProjector(centerLat, centerLon)},
		CenterLat:       centerLat,
		CenterLon:       centerLon,
		nodes:           make(map[int64]*Node),
		linksByUID:      make(map[int64]*Link),
	}
}

// AddNode creates and registers a node with the given id and geographic
// position, projecting it into the graph's planar coordinate system. It is
// a no-op (returning the existing node) if id is already present.
func (g *Multigraph) AddNode(id int64, lat, lon float64) *Node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	x, y := g.project(lat, lon)
	n := &Node{ID: id, Lat: lat, Lon: lon, X: x, Y: y}
	g.nodes[id] = n
	return n
}

// NodeByID looks up a node previously added with AddNode.
func (g *Multigraph) NodeByID(id int64) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node in the graph. Callers must not mutate the
// returned map.
func (g *Multigraph) Nodes() map[int64]*Node {
	return g.nodes
}

// AddLink creates a link with the given network id between origin and
// dest, computes its length from their planar coordinates, issues it a
// fresh process-unique uid, and registers it on origin's outgoing map.
// Both origin and dest must already be nodes of this graph.
func (g *Multigraph) AddLink(id int64, origin, dest *Node) *Link {
	l := &Link{
		ID:     id,
		UID:    g.nextUID,
		Origin: origin,
		Dest:   dest,
		Length: normDist(origin, dest),
	}
	g.nextUID++
	g.linksByUID[l.UID] = l
	if origin.OutgoingLinks == nil {
		origin.OutgoingLinks = make(map[int64]*Link)
	}
	origin.OutgoingLinks[l.UID] = l
	g.candidateIndex.invalidate()
	return l
}

// LinkByUID looks up a link by its process-unique uid.
func (g *Multigraph) LinkByUID(uid int64) (*Link, bool) {
	l, ok := g.linksByUID[uid]
	return l, ok
}

// Links returns every link in the graph. Callers must not mutate the
// returned map.
func (g *Multigraph) Links() map[int64]*Link {
	return g.linksByUID
}

// FindPointsOnLinks runs the radius-bounded candidate query against this
// graph's links.
func (g *Multigraph) FindPointsOnLinks(x, y, radius, primaryRadius, secondaryRadius float64, prevPoints []*PointOnLink, kMax int) []*PointOnLink {
	return findPointsOnLinks(&g.candidateIndex, g.linksByUID, x, y, radius, primaryRadius, secondaryRadius, prevPoints, kMax)
}

func normDist(a, b *Node) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return math.Sqrt(dx*dx + dy*dy)
}
