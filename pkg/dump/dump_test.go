package dump

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kperrine/nmc-map-matcher/pkg/graph"
	"github.com/kperrine/nmc-map-matcher/pkg/pathengine"
)

func buildTestGraph() *graph.Multigraph {
	g := graph.NewMultigraph(0, 0)
	a := g.AddNode(1, 0, 0)
	b := g.AddNode(2, 0.0009, 0)
	c := g.AddNode(3, 0.0018, 0)
	g.AddLink(100, a, b)
	g.AddLink(101, b, c)
	return g
}

func linkByID(g *graph.Multigraph, id int64) *graph.Link {
	for _, l := range g.Links() {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func TestWriteReadRoundTrip(t *testing.T) {
	g := buildTestGraph()
	l100 := linkByID(g, 100)
	l101 := linkByID(g, 101)

	p1 := &pathengine.PathEnd{
		Sample:    pathengine.ShapeSample{ShapeID: "shape1", Seq: 0, Lat: 1, Lon: 2, X: 3, Y: 4},
		Point:     graph.NewPointOnLink(l100, 5, false, 0.5),
		TotalDist: 5,
		TotalCost: 5,
	}
	p2 := &pathengine.PathEnd{
		Prev:      p1,
		Sample:    pathengine.ShapeSample{ShapeID: "shape1", Seq: 1, Lat: 1.1, Lon: 2.1, X: 3.1, Y: 4.1},
		Point:     graph.NewPointOnLink(l101, 10, true, 1.5),
		RouteInfo: []*graph.Link{l101},
		TotalDist: 15,
		TotalCost: 16,
	}
	restart := &pathengine.PathEnd{
		Prev:   p2,
		Sample: pathengine.ShapeSample{ShapeID: "shape1", Seq: 2},
		Restart: true,
	}

	path := filepath.Join(t.TempDir(), "paths.bin")
	in := map[string][]*pathengine.PathEnd{"shape1": {p1, p2, restart}}
	if err := Write(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := Read(path, g)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ends, ok := out["shape1"]
	if !ok || len(ends) != 3 {
		t.Fatalf("expected 3 path ends for shape1, got %+v", out)
	}
	if ends[0].Sample.Seq != 0 || ends[1].Sample.Seq != 1 || ends[2].Sample.Seq != 2 {
		t.Fatalf("expected sequence order preserved, got %d %d %d", ends[0].Sample.Seq, ends[1].Sample.Seq, ends[2].Sample.Seq)
	}
	if ends[1].Point.Link.ID != 101 || ends[1].Point.Dist != 10 || !ends[1].Point.NonPerp {
		t.Errorf("unexpected point on end[1]: %+v", ends[1].Point)
	}
	if len(ends[1].RouteInfo) != 1 || ends[1].RouteInfo[0].ID != 101 {
		t.Errorf("expected RouteInfo [101], got %+v", ends[1].RouteInfo)
	}
	if !ends[2].Restart || ends[2].Point != nil {
		t.Errorf("expected end[2] to be a pointless restart, got %+v", ends[2])
	}
	if ends[2].Prev != ends[1] {
		t.Errorf("expected Prev chain rebuilt across the read slice")
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	if err := os.WriteFile(path, []byte("not a dump file at all"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := Read(path, buildTestGraph()); err == nil {
		t.Error("expected an error reading a non-dump file")
	}
}

func TestReadDropsUnresolvableLinks(t *testing.T) {
	g := buildTestGraph()
	pe := &pathengine.PathEnd{
		Sample: pathengine.ShapeSample{ShapeID: "shape1", Seq: 0},
		Point:  graph.NewPointOnLink(linkByID(g, 100), 0, false, 0),
	}
	path := filepath.Join(t.TempDir(), "paths.bin")
	if err := Write(path, map[string][]*pathengine.PathEnd{"shape1": {pe}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	smaller := graph.NewMultigraph(0, 0)
	a := smaller.AddNode(1, 0, 0)
	b := smaller.AddNode(2, 0.0009, 0)
	smaller.AddLink(999, a, b)

	out, err := Read(path, smaller)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out["shape1"][0].Point != nil {
		t.Error("expected a nil Point when the link id is absent from the resolver")
	}
}
