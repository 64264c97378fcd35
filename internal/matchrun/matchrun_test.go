package matchrun

import (
	"context"
	"testing"
	"time"

	"github.com/kperrine/nmc-map-matcher/pkg/graph"
	"github.com/kperrine/nmc-map-matcher/pkg/gtfs"
)

// corridorNetwork builds a four-node straight corridor with three links.
func corridorNetwork(t *testing.T) *graph.Multigraph {
	t.Helper()
	g := graph.NewMultigraph(30.0, -97.0)
	a := g.AddNode(1, 30.0000, -97.0)
	b := g.AddNode(2, 30.0009, -97.0)
	c := g.AddNode(3, 30.0018, -97.0)
	d := g.AddNode(4, 30.0027, -97.0)
	g.AddLink(100, a, b)
	g.AddLink(101, b, c)
	g.AddLink(102, c, d)
	return g
}

func testPipelineConfig() Config {
	cfg := DefaultConfig()
	cfg.Engine.AllowUTurns = true
	cfg.Workers = 1
	return cfg
}

func shapeAlongCorridor(g *graph.Multigraph) map[string][]gtfs.ShapePoint {
	pts := []struct{ lat, lon float64 }{
		{30.0001, -97.0},
		{30.0010, -97.0},
		{30.0020, -97.0},
		{30.0026, -97.0},
	}
	shape := make([]gtfs.ShapePoint, len(pts))
	for i, p := range pts {
		x, y := projectInto(g, p.lat, p.lon)
		shape[i] = gtfs.ShapePoint{ShapeID: "shape1", Seq: i, Lat: p.lat, Lon: p.lon, X: x, Y: y}
	}
	return map[string][]gtfs.ShapePoint{"shape1": shape}
}

// projectInto reuses the graph's own projection by planting a throwaway
// probe node; node ids below zero never collide with the corridor's.
var probeID int64 = -1

func projectInto(g *graph.Multigraph, lat, lon float64) (x, y float64) {
	n := g.AddNode(probeID, lat, lon)
	probeID--
	return n.X, n.Y
}

func TestMatchShapesFollowsCorridor(t *testing.T) {
	g := corridorNetwork(t)
	shapes := shapeAlongCorridor(g)

	results, err := MatchShapes(context.Background(), g, shapes, testPipelineConfig())
	if err != nil {
		t.Fatalf("MatchShapes: %v", err)
	}
	ends, ok := results["shape1"]
	if !ok {
		t.Fatal("expected a match for shape1")
	}
	if len(ends) != 4 {
		t.Fatalf("expected 4 path ends, got %d", len(ends))
	}
	for i, pe := range ends {
		if pe.Restart {
			t.Errorf("sample %d unexpectedly restarted", i)
		}
		if pe.Point == nil {
			t.Errorf("sample %d has no point", i)
		}
	}
	if ends[0].Point.Link.ID != 100 {
		t.Errorf("first sample matched link %d, want 100", ends[0].Point.Link.ID)
	}
	if ends[3].Point.Link.ID != 102 {
		t.Errorf("last sample matched link %d, want 102", ends[3].Point.Link.ID)
	}
}

func TestMatchStopsEndToEnd(t *testing.T) {
	g := corridorNetwork(t)
	shapes := shapeAlongCorridor(g)
	cfg := testPipelineConfig()

	shapeEnds, err := MatchShapes(context.Background(), g, shapes, cfg)
	if err != nil {
		t.Fatalf("MatchShapes: %v", err)
	}

	route := &gtfs.Route{ID: "r1", ShortName: "7"}
	trip := &gtfs.Trip{ID: "t1", RouteID: "r1", ShapeID: "shape1", Headsign: "Downtown", Route: route}

	stopLat, stopLon := 30.0012, -97.0
	sx, sy := projectInto(g, stopLat, stopLon)
	stop := &gtfs.Stop{ID: "s1", Name: "Mid Corridor", Lat: stopLat, Lon: stopLon, X: sx, Y: sy}
	arr := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	st := &gtfs.StopTime{
		TripID: "t1", Trip: trip, StopID: "s1", Stop: stop, StopSeq: 1,
		ArrivalTime: arr, DepartureTime: arr.Add(30 * time.Second),
	}

	results, err := MatchStops(context.Background(), g, shapeEnds,
		map[string]*gtfs.Trip{"t1": trip},
		map[string][]*gtfs.StopTime{"t1": {st}}, cfg)
	if err != nil {
		t.Fatalf("MatchStops: %v", err)
	}
	r, ok := results["t1"]
	if !ok {
		t.Fatal("expected a result for trip t1")
	}
	if len(r.PathEnds) != 1 {
		t.Fatalf("expected 1 stop sample after stripping dummies, got %d", len(r.PathEnds))
	}
	if r.PathEnds[0].Point == nil {
		t.Fatal("expected the stop to land on a link")
	}
	if got := r.PathEnds[0].Point.Link.ID; got != 101 {
		t.Errorf("stop matched link %d, want 101", got)
	}

	changed := ReconcileStops(results, cfg)
	if len(changed) != 0 {
		t.Errorf("single-trip run should reconcile nothing, got %v", changed)
	}

	routeRows := BuildBusRoutes(results)
	if len(routeRows) != 1 || routeRows[0].Name != "7 Downtown" {
		t.Errorf("unexpected bus_route rows: %+v", routeRows)
	}

	linkRows := BuildBusRouteLinks(results, TableOptions{})
	var stopRows int
	for _, row := range linkRows {
		if row.HasStop {
			stopRows++
			if row.Stop != "s1" {
				t.Errorf("stop row names %q, want s1", row.Stop)
			}
			if row.DwellTime != 30 {
				t.Errorf("dwell time %v, want 30", row.DwellTime)
			}
		}
	}
	if stopRows != 1 {
		t.Errorf("expected exactly one stop-carrying row, got %d", stopRows)
	}

	stopTable := BuildBusStops(results)
	if len(stopTable) != 1 || stopTable[0].Link != 101 {
		t.Errorf("unexpected bus_stop rows: %+v", stopTable)
	}
}
