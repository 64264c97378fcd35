package graph

// SinglePathGraph is a flattened, acyclic, single-visit view of a matched
// trip's traversal, built by pkg/subnet. Node identity is not tracked here:
// every traversal of an underlying network node produces a fresh *Node, so
// revisiting the same physical intersection twice (a loop in the original
// shape) cannot reintroduce a cycle. AddLink does not validate that origin
// or dest belong to any prior node set; there is no node map to check
// against.
type SinglePathGraph struct {
	candidateIndex

	linksByUID map[int64]*Link
	nextUID    int64
}

// NewSinglePathGraph builds an empty single-path subgraph.
func NewSinglePathGraph() *SinglePathGraph {
	return &SinglePathGraph{linksByUID: make(map[int64]*Link)}
}

// AddLink creates a link carrying network id id between origin and dest,
// issuing it a fresh uid and registering it on origin's outgoing map. id is
// typically the original network link's id, reused across traversals;
// UID is what actually distinguishes this copy.
func (g *SinglePathGraph) AddLink(id int64, origin, dest *Node) *Link {
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
func (g *SinglePathGraph) LinkByUID(uid int64) (*Link, bool) {
	l, ok := g.linksByUID[uid]
	return l, ok
}

// Links returns every link in the subgraph. Callers must not mutate the
// returned map.
func (g *SinglePathGraph) Links() map[int64]*Link {
	return g.linksByUID
}

// FindPointsOnLinks runs the radius-bounded candidate query against this
// subgraph's links.
func (g *SinglePathGraph) FindPointsOnLinks(x, y, radius, primaryRadius, secondaryRadius float64, prevPoints []*PointOnLink, kMax int) []*PointOnLink {
	return findPointsOnLinks(&g.candidateIndex, g.linksByUID, x, y, radius, primaryRadius, secondaryRadius, prevPoints, kMax)
}
