package reconcile

import (
	"testing"

	"github.com/kperrine/nmc-map-matcher/pkg/graph"
	"github.com/kperrine/nmc-map-matcher/pkg/pathengine"
)

func TestStopRecordWinningLinkPicksMajority(t *testing.T) {
	rec := NewStopRecord("stop1")
	a := &graph.Link{ID: 10, UID: 1}
	b := &graph.Link{ID: 11, UID: 2}

	rec.Observe(StopObservation{TripID: "t1", Point: &graph.PointOnLink{Link: a}}, map[int64]bool{10: true, 11: true})
	rec.Observe(StopObservation{TripID: "t2", Point: &graph.PointOnLink{Link: a}}, map[int64]bool{10: true, 11: true})
	rec.Observe(StopObservation{TripID: "t3", Point: &graph.PointOnLink{Link: b}}, map[int64]bool{10: true, 11: true})

	win, ok := rec.WinningLink()
	if !ok {
		t.Fatal("expected a winning link")
	}
	if win != 10 {
		t.Errorf("expected link 10 (2 votes) to win over link 11 (1 vote), got %d", win)
	}
}

func TestStopRecordPresenceOutranksVotes(t *testing.T) {
	rec := NewStopRecord("stop1")
	a := &graph.Link{ID: 10, UID: 1}
	b := &graph.Link{ID: 11, UID: 2}

	// Link 11 draws more votes, but link 10 is reachable from every
	// referent trip's subnet while 11 is not: reachability wins.
	rec.Observe(StopObservation{TripID: "t1", Point: &graph.PointOnLink{Link: a}}, map[int64]bool{10: true})
	rec.Observe(StopObservation{TripID: "t2", Point: &graph.PointOnLink{Link: b}}, map[int64]bool{10: true, 11: true})
	rec.Observe(StopObservation{TripID: "t3", Point: &graph.PointOnLink{Link: b}}, map[int64]bool{10: true, 11: true})

	win, ok := rec.WinningLink()
	if !ok {
		t.Fatal("expected a winning link")
	}
	if win != 10 {
		t.Errorf("expected link 10 (present in 3 subnets) to outrank link 11 (2 subnets, more votes), got %d", win)
	}
}

func TestStopRecordRankedLinksOrder(t *testing.T) {
	rec := NewStopRecord("stop1")
	a := &graph.Link{ID: 10, UID: 1}
	b := &graph.Link{ID: 11, UID: 2}

	rec.Observe(StopObservation{TripID: "t1", Point: &graph.PointOnLink{Link: a}}, map[int64]bool{10: true, 11: true})
	rec.Observe(StopObservation{TripID: "t2", Point: &graph.PointOnLink{Link: b}}, map[int64]bool{10: true, 11: true})

	ranked := rec.RankedLinks()
	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked links, got %d", len(ranked))
	}
	// Presence and votes both tie; the larger link id ranks first.
	if ranked[0] != 11 || ranked[1] != 10 {
		t.Errorf("expected ranked order [11, 10], got %v", ranked)
	}
}

func TestStopRecordNoObservationsNoWinner(t *testing.T) {
	rec := NewStopRecord("stop1")
	if _, ok := rec.WinningLink(); ok {
		t.Error("expected no winner for a stop with zero observations")
	}
}

func TestReconcileLeavesConsensusTripsAlone(t *testing.T) {
	g := graph.NewMultigraph(0, 0)
	a := g.AddNode(1, 0, 0)
	b := g.AddNode(2, 0.0009, 0)
	l := g.AddLink(100, a, b)

	subnet := graph.NewSinglePathGraph()
	subnetLink := subnet.AddLink(l.ID, &graph.Node{ID: 1}, &graph.Node{ID: 2})

	point := graph.NewPointOnLink(subnetLink, 10, false, 0)
	trip := &TripMatch{
		TripID:   "t1",
		Subnet:   subnet,
		PathEnds: []*pathengine.PathEnd{{Point: point}},
		StopIDs:  []string{"stop1"},
	}

	engine := pathengine.New(pathengine.Config{
		R: 50, RPrimary: 50, RSecondary: 50,
		WalkerRadius: 1000, WalkerDistance: 1000,
		FD: 1.0, FR: 2.0, FP: 1.5,
		LimitClosestPoints: 8, LimitSimultaneousPaths: 6, MaxHops: 12,
	})

	result := Reconcile([]*TripMatch{trip}, engine)
	if len(result) != 0 {
		t.Errorf("expected no reassignment for a single trip voting for its own link, got %v", result)
	}
}

func testEngine() *pathengine.PathEngine {
	return pathengine.New(pathengine.Config{
		R: 50, RPrimary: 50, RSecondary: 50,
		WalkerRadius: 1000, WalkerDistance: 1000,
		FD: 1.0, FR: 2.0, FP: 1.5,
		LimitClosestPoints: 8, LimitSimultaneousPaths: 6, MaxHops: 12,
	})
}

func planarNode(id int64, x, y float64) *graph.Node {
	return &graph.Node{ID: id, X: x, Y: y}
}

func TestReconcileMovesOutlierToWinner(t *testing.T) {
	// t1's subnet holds only link 10; t2's holds 10 and 11. t1 lands the
	// stop on 10, t2 on 11. Link 10 is reachable from both subnets, so
	// it wins and t2 is refined onto it.
	sub1 := graph.NewSinglePathGraph()
	s1l10 := sub1.AddLink(10, planarNode(1, 0, 0), planarNode(2, 100, 0))

	sub2 := graph.NewSinglePathGraph()
	s2l10 := sub2.AddLink(10, planarNode(1, 0, 0), planarNode(2, 100, 0))
	s2l11 := sub2.AddLink(11, s2l10.Dest, planarNode(3, 200, 0))

	t1 := &TripMatch{
		TripID: "t1", Subnet: sub1,
		PathEnds: []*pathengine.PathEnd{{
			Sample: pathengine.ShapeSample{X: 50, Y: 0},
			Point:  graph.NewPointOnLink(s1l10, 50, false, 0),
		}},
		StopIDs: []string{"stop1"},
	}
	t2 := &TripMatch{
		TripID: "t2", Subnet: sub2,
		PathEnds: []*pathengine.PathEnd{{
			Sample: pathengine.ShapeSample{X: 50, Y: 0},
			Point:  graph.NewPointOnLink(s2l11, 50, false, 0),
		}},
		StopIDs: []string{"stop1"},
	}

	result := Reconcile([]*TripMatch{t1, t2}, testEngine())
	if len(result) != 1 {
		t.Fatalf("expected exactly t2 reassigned, got %v", result)
	}
	ends, ok := result["t2"]
	if !ok {
		t.Fatal("expected t2 in the reassignment set")
	}
	if len(ends) != 1 || ends[0].Point == nil {
		t.Fatalf("unexpected refined chain: %+v", ends)
	}
	if ends[0].Point.Link.ID != 10 {
		t.Errorf("expected t2's stop refined onto link 10, got %d", ends[0].Point.Link.ID)
	}
}

func TestReconcileFallsBackToNextRankedLink(t *testing.T) {
	// Two trips disagree and neither subnet contains the other's link:
	// the winner covers only its own voter, the other referent falls
	// back to the next-ranked link — which is the link it already sits
	// on, so nothing moves.
	sub1 := graph.NewSinglePathGraph()
	s1l10 := sub1.AddLink(10, planarNode(1, 0, 0), planarNode(2, 100, 0))

	sub2 := graph.NewSinglePathGraph()
	s2l11 := sub2.AddLink(11, planarNode(1, 0, 0), planarNode(2, 100, 0))

	t1 := &TripMatch{
		TripID: "t1", Subnet: sub1,
		PathEnds: []*pathengine.PathEnd{{
			Sample: pathengine.ShapeSample{X: 50, Y: 0},
			Point:  graph.NewPointOnLink(s1l10, 50, false, 0),
		}},
		StopIDs: []string{"stop1"},
	}
	t2 := &TripMatch{
		TripID: "t2", Subnet: sub2,
		PathEnds: []*pathengine.PathEnd{{
			Sample: pathengine.ShapeSample{X: 50, Y: 0},
			Point:  graph.NewPointOnLink(s2l11, 50, false, 0),
		}},
		StopIDs: []string{"stop1"},
	}

	result := Reconcile([]*TripMatch{t1, t2}, testEngine())
	if len(result) != 0 {
		t.Errorf("expected no reassignment when each trip already sits on its only reachable candidate, got %v", result)
	}
}
