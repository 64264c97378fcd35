package pathengine

import (
	"math"
	"testing"

	"github.com/kperrine/nmc-map-matcher/pkg/graph"
)

func threeNodeLine(t *testing.T) (*graph.Multigraph, *graph.Link, *graph.Link) {
	t.Helper()
	g := graph.NewMultigraph(0, 0)
	a := g.AddNode(1, 0, 0)
	b := g.AddNode(2, 0.0009, 0) // roughly 100 meters north
	c := g.AddNode(3, 0.0018, 0)
	l1 := g.AddLink(100, a, b)
	l2 := g.AddLink(101, b, c)
	return g, l1, l2
}

// pointNearLink returns a planar (x, y) a fraction frac along link, offset
// perpendicular to it by perpOffset feet, regardless of the link's
// orientation (the example graphs here run north-south, not east-west).
func pointNearLink(link *graph.Link, frac, perpOffset float64) (x, y float64) {
	dx := link.Dest.X - link.Origin.X
	dy := link.Dest.Y - link.Origin.Y
	baseX := link.Origin.X + dx*frac
	baseY := link.Origin.Y + dy*frac
	length := math.Hypot(dx, dy)
	if length == 0 {
		return baseX, baseY
	}
	// Unit perpendicular: rotate (dx, dy) by 90 degrees.
	perpX, perpY := -dy/length, dx/length
	return baseX + perpX*perpOffset, baseY + perpY*perpOffset
}

func testConfig() Config {
	return Config{
		R: 50, RPrimary: 50, RSecondary: 50,
		WalkerRadius: 10000, WalkerDistance: 10000,
		AllowUTurns:            true,
		FD:                     1.0,
		FR:                     2.0,
		FP:                     1.5,
		LimitClosestPoints:     8,
		LimitSimultaneousPaths: 6,
		MaxHops:                12,
	}
}

// Two samples along a straight two-link corridor land on consecutive
// links with a connected route between them.
func TestConstructPathStraightLine(t *testing.T) {
	g, l1, l2 := threeNodeLine(t)
	e := New(testConfig())

	x1, y1 := pointNearLink(l1, 0.1, 1)
	x2, y2 := pointNearLink(l2, 0.5, -2)
	samples := []ShapeSample{
		{ShapeID: "s1", Seq: 0, X: x1, Y: y1},
		{ShapeID: "s1", Seq: 1, X: x2, Y: y2},
	}

	result := e.ConstructPath(samples, g)
	if len(result) != 2 {
		t.Fatalf("expected 2 PathEnds, got %d", len(result))
	}
	if result[0].Point.Link != l1 {
		t.Errorf("first sample expected to match l1, got link id %d", result[0].Point.Link.ID)
	}
	if result[1].Point.Link != l2 {
		t.Errorf("second sample expected to match l2, got link id %d", result[1].Point.Link.ID)
	}
	// Walk's routeInfo excludes the source's own link (already owned by the
	// caller, per walker.Walk's doc comment) — only the newly entered link
	// appears here.
	if len(result[1].RouteInfo) != 1 || result[1].RouteInfo[0] != l2 {
		t.Errorf("expected routeInfo [l2], got %v", result[1].RouteInfo)
	}
	if result[0].Restart || result[1].Restart {
		t.Error("no restart expected for a continuous straight-line match")
	}
}

// A sample with no reachable candidate at all produces a
// restart carrying the worst-plus-one penalty, and matching resumes after.
func TestConstructPathRestartOnUnreachableSample(t *testing.T) {
	g, l1, l2 := threeNodeLine(t)
	e := New(testConfig())

	x0, y0 := pointNearLink(l1, 0.1, 1)
	x2, y2 := pointNearLink(l2, 0.5, -2)
	samples := []ShapeSample{
		{ShapeID: "s1", Seq: 0, X: x0, Y: y0},
		{ShapeID: "s1", Seq: 1, X: 1e7, Y: 1e7}, // far outside every radius
		{ShapeID: "s1", Seq: 2, X: x2, Y: y2},
	}

	result := e.ConstructPath(samples, g)
	if len(result) != 3 {
		t.Fatalf("expected 3 PathEnds, got %d", len(result))
	}
	if !result[1].Restart {
		t.Error("expected the unreachable sample to produce a restart PathEnd")
	}
	if len(result[1].RouteInfo) != 0 {
		t.Error("a restart PathEnd must carry an empty routeInfo")
	}
	if result[2].Point == nil {
		t.Error("matching should resume normally on the sample after a restart")
	}
}

// At most LimitSimultaneousPaths hypotheses ever
// survive a step boundary.
func TestConstructPathKBestClosure(t *testing.T) {
	g := graph.NewMultigraph(0, 0)
	a := g.AddNode(1, 0, 0)
	b := g.AddNode(2, 0.0009, 0)
	bPrime := g.AddNode(3, 0.0009, 0.0002)
	c := g.AddNode(4, 0.0018, 0)
	g.AddLink(100, a, b)
	g.AddLink(101, a, bPrime)
	g.AddLink(102, b, c)
	g.AddLink(103, bPrime, c)

	cfg := testConfig()
	cfg.LimitSimultaneousPaths = 1
	e := New(cfg)

	samples := []ShapeSample{
		{ShapeID: "s1", Seq: 0, X: a.X, Y: a.Y},
		{ShapeID: "s1", Seq: 1, X: (b.X + bPrime.X) / 2, Y: (b.Y + bPrime.Y) / 2},
	}
	result := e.ConstructPath(samples, g)
	if len(result) != 2 {
		t.Fatalf("expected 2 PathEnds with K=1, got %d", len(result))
	}

	hyps := e.seedHypotheses(samples[0], g)
	if len(hyps) > cfg.LimitSimultaneousPaths {
		t.Fatalf("seeding kept %d hypotheses, want at most %d", len(hyps), cfg.LimitSimultaneousPaths)
	}
	if next := e.step(hyps, 1, samples[1], g); len(next) > cfg.LimitSimultaneousPaths {
		t.Fatalf("step kept %d hypotheses, want at most %d", len(next), cfg.LimitSimultaneousPaths)
	}
}

func TestFlattenOrdersEarliestFirst(t *testing.T) {
	first := &PathEnd{Sample: ShapeSample{Seq: 0}}
	second := &PathEnd{Prev: first, Sample: ShapeSample{Seq: 1}}
	third := &PathEnd{Prev: second, Sample: ShapeSample{Seq: 2}}

	flat := Flatten(third)
	if len(flat) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(flat))
	}
	for i, p := range flat {
		if p.Sample.Seq != i {
			t.Errorf("entry %d has Seq %d, want %d", i, p.Sample.Seq, i)
		}
	}
}

func TestDefaultScoreMonotoneInDistance(t *testing.T) {
	score := DefaultScore(1.0, 2.0, 1.5)
	src := &graph.PointOnLink{RefDist: 5}
	dst := &graph.PointOnLink{RefDist: 5}

	c1 := score(src, 10, dst)
	c2 := score(src, 20, dst)
	if !(c2 > c1) {
		t.Errorf("expected cost to increase with distance: c1=%v c2=%v", c1, c2)
	}
	if math.Abs(c2-c1-10) > 1e-9 {
		t.Errorf("expected cost delta to equal f_d*deltaD = 10, got %v", c2-c1)
	}
}
