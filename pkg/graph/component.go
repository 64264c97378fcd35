package graph

// unionFind implements a disjoint-set data structure with path halving and
// union by rank, keyed on node id rather than a dense array index since
// node ids are not guaranteed contiguous.
type unionFind struct {
	parent map[int64]int64
	rank   map[int64]byte
	size   map[int64]uint32
}

func newUnionFind(ids []int64) *unionFind {
	uf := &unionFind{
		parent: make(map[int64]int64, len(ids)),
		rank:   make(map[int64]byte, len(ids)),
		size:   make(map[int64]uint32, len(ids)),
	}
	for _, id := range ids {
		uf.parent[id] = id
		uf.size[id] = 1
	}
	return uf
}

func (uf *unionFind) find(x int64) int64 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(x, y int64) {
	rx, ry := uf.find(x), uf.find(y)
	if rx == ry {
		return
	}
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
}

// LargestComponent returns the ids of the nodes belonging to g's largest
// weakly connected component (links are treated as undirected for
// connectivity purposes). cmd/preprocess runs this on a loaded network
// before writing it out: a node unreachable from the rest of the network can never
// be visited by the walker, so trimming it shrinks the candidate index for
// free.
func LargestComponent(g *Multigraph) []int64 {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	uf := newUnionFind(ids)

	for _, n := range nodes {
		for _, l := range n.OutgoingLinks {
			uf.union(n.ID, l.Dest.ID)
		}
	}

	counts := make(map[int64]uint32)
	var bestRoot int64
	var bestSize uint32
	for _, id := range ids {
		root := uf.find(id)
		counts[root]++
		if counts[root] > bestSize {
			bestRoot = root
			bestSize = counts[root]
		}
	}

	result := make([]int64, 0, bestSize)
	for _, id := range ids {
		if uf.find(id) == bestRoot {
			result = append(result, id)
		}
	}
	return result
}

// FilterToComponent builds a fresh Multigraph containing only the given
// node ids and the links whose endpoints are both among them, reprojected
// around the same reference center as g.
func FilterToComponent(g *Multigraph, ids []int64) *Multigraph {
	keep := make(map[int64]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	out := NewMultigraph(g.CenterLat, g.CenterLon)
	for _, id := range ids {
		n, _ := g.NodeByID(id)
		out.AddNode(n.ID, n.Lat, n.Lon)
	}
	for _, id := range ids {
		n, _ := g.NodeByID(id)
		for _, l := range n.OutgoingLinks {
			if !keep[l.Dest.ID] {
				continue
			}
			origin, _ := out.NodeByID(n.ID)
			dest, _ := out.NodeByID(l.Dest.ID)
			out.AddLink(l.ID, origin, dest)
		}
	}
	return out
}
