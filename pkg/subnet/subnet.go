// Package subnet flattens a matched trip into an acyclic single-path
// subgraph and embellishes its head and tail with a shallow fan-in/fan-out
// of nearby network links, so stop projections have room to migrate off
// the matched backbone.
package subnet

import (
	"github.com/kperrine/nmc-map-matcher/pkg/graph"
	"github.com/kperrine/nmc-map-matcher/pkg/pathengine"
)

// DefaultEmbellishCount and DefaultEmbellishDepth bound how much of the
// surrounding network is grafted onto a subnet's ends.
const (
	DefaultEmbellishCount = 2
	DefaultEmbellishDepth = 1
)

// BuildSubset flattens a matched trip's PathEnd chain into a fresh
// SinglePathGraph: one link per traversed original link, strung between
// freshly cloned nodes so a loop in the original road network cannot
// reintroduce a cycle here. Each new link keeps the original link's
// network ID; its uid is whatever the subgraph assigns. Returns the
// subgraph and its links in traversal order.
func BuildSubset(pathEnds []*pathengine.PathEnd) (*graph.SinglePathGraph, []*graph.Link) {
	subset := graph.NewSinglePathGraph()
	if len(pathEnds) == 0 || pathEnds[0].Point == nil {
		return subset, nil
	}

	var outLinks []*graph.Link
	firstLink := pathEnds[0].Point.Link
	priorNode := cloneNode(firstLink.Origin)
	prevLinkID := firstLink.ID

	for _, pe := range pathEnds {
		// Walk leaves the source link out of RouteInfo, so a PathEnd whose
		// walk stayed on its source link has an empty RouteInfo and adds
		// nothing. While exactly one backbone link has been emitted, a
		// PathEnd whose RouteInfo starts with the seed link's id is
		// skipped whole as well.
		if len(pe.RouteInfo) < 1 || (len(outLinks) == 1 && pe.RouteInfo[0].ID == firstLink.ID) {
			continue
		}
		for _, link := range pe.RouteInfo {
			node := cloneNode(link.Origin)
			newLink := subset.AddLink(prevLinkID, priorNode, node)
			outLinks = append(outLinks, newLink)
			priorNode = node
			prevLinkID = link.ID
		}
	}

	last := pathEnds[len(pathEnds)-1]
	lastNode := cloneNode(last.Point.Link.Dest)
	outLinks = append(outLinks, subset.AddLink(prevLinkID, priorNode, lastNode))

	return subset, outLinks
}

func cloneNode(n *graph.Node) *graph.Node {
	return &graph.Node{ID: n.ID, Lat: n.Lat, Lon: n.Lon, X: n.X, Y: n.Y}
}

// EmbellishSubset extends subset's head and tail with a depth-limited
// fan-in/fan-out of nearby original-network links, so downstream stop
// reconciliation has somewhere to reassign a stop that
// projects just off the matched backbone. original is the road network
// linkList was built from.
//
// The set of nodes the backbone already touches is collected by walking
// linkList from both ends toward a midpoint; this (not the embellish
// radius) decides traversal order only, so a loop in the backbone doesn't
// let one end's pass silently overwrite the node the other end already
// claimed. Every Dest along the full list ends up recorded either way.
func EmbellishSubset(subset *graph.SinglePathGraph, linkList []*graph.Link, original *graph.Multigraph, embellishCount, embellishDepth int) {
	if len(linkList) == 0 {
		return
	}

	usedNodes := map[int64]*graph.Node{linkList[0].Origin.ID: linkList[0].Origin}
	midpoint := len(linkList) / 2
	for i := 0; i < midpoint; i++ {
		if _, ok := usedNodes[linkList[i].Dest.ID]; !ok {
			usedNodes[linkList[i].Dest.ID] = linkList[i].Dest
		}
	}
	for i := len(linkList) - 1; i >= midpoint; i-- {
		if _, ok := usedNodes[linkList[i].Dest.ID]; !ok {
			usedNodes[linkList[i].Dest.ID] = linkList[i].Dest
		}
	}

	usedLinkUIDs := make(map[int64]bool)
	reverseAdj := buildReverseAdjacency(original)

	fanIn := embellishCount
	if fanIn > len(linkList) {
		fanIn = len(linkList)
	}
	for i := 0; i < fanIn; i++ {
		embellishIn(subset, linkList[i].Origin.ID, embellishDepth, usedNodes, usedLinkUIDs, reverseAdj)
	}

	fanOutStop := len(linkList) - 1 - embellishCount
	if fanOutStop < -1 {
		fanOutStop = -1
	}
	for i := len(linkList) - 1; i > fanOutStop; i-- {
		embellishOut(subset, original, linkList[i].Dest.ID, embellishDepth, usedNodes, usedLinkUIDs)
	}
}

// buildReverseAdjacency indexes original's links by destination node id,
// so embellishIn can find what feeds into a given node without scanning
// the whole network at every recursion depth.
func buildReverseAdjacency(original *graph.Multigraph) map[int64][]*graph.Link {
	adj := make(map[int64][]*graph.Link)
	for _, l := range original.Links() {
		adj[l.Dest.ID] = append(adj[l.Dest.ID], l)
	}
	return adj
}

func embellishIn(subset *graph.SinglePathGraph, nodeID int64, depth int, usedNodes map[int64]*graph.Node, usedLinkUIDs map[int64]bool, reverseAdj map[int64][]*graph.Link) {
	if depth <= 0 {
		return
	}
	incoming, ok := reverseAdj[nodeID]
	if !ok {
		return
	}
	dest := usedNodes[nodeID]
	for _, origLink := range incoming {
		if usedLinkUIDs[origLink.UID] {
			continue
		}
		origin, ok := usedNodes[origLink.Origin.ID]
		if !ok {
			origin = cloneNode(origLink.Origin)
			usedNodes[origin.ID] = origin
		}
		subset.AddLink(origLink.ID, origin, dest)
		usedLinkUIDs[origLink.UID] = true
		embellishIn(subset, origin.ID, depth-1, usedNodes, usedLinkUIDs, reverseAdj)
	}
}

func embellishOut(subset *graph.SinglePathGraph, original *graph.Multigraph, nodeID int64, depth int, usedNodes map[int64]*graph.Node, usedLinkUIDs map[int64]bool) {
	if depth <= 0 {
		return
	}
	// OutgoingLinks must come from the original network's node, not the
	// subset's clone: a cloned node carries no adjacency of its own.
	originalNode, ok := original.NodeByID(nodeID)
	if !ok {
		return
	}
	subsetOrigin := usedNodes[nodeID]
	for _, origLink := range originalNode.OutgoingLinks {
		if usedLinkUIDs[origLink.UID] {
			continue
		}
		dest, ok := usedNodes[origLink.Dest.ID]
		if !ok {
			dest = cloneNode(origLink.Dest)
			usedNodes[dest.ID] = dest
		}
		subset.AddLink(origLink.ID, subsetOrigin, dest)
		usedLinkUIDs[origLink.UID] = true
		embellishOut(subset, original, dest.ID, depth-1, usedNodes, usedLinkUIDs)
	}
}
