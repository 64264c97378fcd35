// Package graph implements the directed multigraph and single-path subgraph
// used by the path-matching engine, plus spatial candidate projection.
package graph

import "github.com/kperrine/nmc-map-matcher/pkg/geo"

// Node is a point in the road network: an id, its geographic position, its
// projected planar position, and its outgoing links keyed by link uid.
// Nodes are owned by the Graph that created them and are immutable after
// construction except for the OutgoingLinks map, which is populated as
// links are added.
type Node struct {
	ID  int64
	Lat float64
	Lon float64
	X   float64
	Y   float64

	// OutgoingLinks holds every link whose origin is this node, keyed by
	// link uid. nil in a node that has never had an outgoing link added.
	OutgoingLinks map[int64]*Link
}

// Link is a directed edge between two nodes. ID is the network's own link
// identifier (may repeat across a single-path subgraph's traversal copies);
// UID is process-unique and is what every uid-keyed structure — the
// backtrack set, the back-cache, reconciler votes — actually indexes by.
type Link struct {
	ID     int64
	UID    int64
	Origin *Node
	Dest   *Node
	Length float64
}

// IsComplementary reports whether other is the immediate reverse of l:
// same two endpoints, opposite direction. Used by the walker to suppress
// U-turns.
func (l *Link) IsComplementary(other *Link) bool {
	return other.Origin == l.Dest && other.Dest == l.Origin
}

// PointOnLink is a projection of a world point onto a specific link: the
// link itself, the along-link distance from the link's origin, whether the
// projection landed at a link endpoint rather than strictly between them,
// and the reference distance (refDist) used for sorting/dedup and as the
// corridor-continuation anchor for the next observation.
type PointOnLink struct {
	Link    *Link
	Dist    float64 // 0 <= Dist <= Link.Length
	NonPerp bool
	RefDist float64
	X, Y    float64
}

// NewPointOnLink builds a PointOnLink at along-link distance dist, deriving
// its planar (x, y) by linear interpolation between the link's endpoints.
// A zero-length link projects to its origin.
func NewPointOnLink(link *Link, dist float64, nonPerp bool, refDist float64) *PointOnLink {
	p := &PointOnLink{Link: link, Dist: dist, NonPerp: nonPerp, RefDist: refDist}
	if link.Length == 0 {
		p.X, p.Y = link.Origin.X, link.Origin.Y
		return p
	}
	t := dist / link.Length
	p.X = link.Origin.X + t*(link.Dest.X-link.Origin.X)
	p.Y = link.Origin.Y + t*(link.Dest.Y-link.Origin.Y)
	return p
}

// Graph is the capability surface shared by Multigraph and SinglePathGraph:
// look up a link by uid, add a new link, and run the radius-bounded
// candidate query. A mode flag on one concrete type was rejected in favor
// of two concrete types (see candidates.go, multigraph.go, singlepath.go)
// because addLink's node-presence validation and uid issuance genuinely
// differ between the two modes, not just a cosmetic branch.
type Graph interface {
	LinkByUID(uid int64) (*Link, bool)
	AddLink(id int64, origin, dest *Node) *Link
	FindPointsOnLinks(x, y, radius, primaryRadius, secondaryRadius float64, prevPoints []*PointOnLink, kMax int) []*PointOnLink
}

// centerProjector is embedded by both concrete graph types so every node
// they create is projected through the same reference center.
type centerProjector struct {
	proj *geo.Projector
}

func (c *centerProjector) project(lat, lon float64) (x, y float64) {
	return c.proj.ToFeet(lat, lon)
}
