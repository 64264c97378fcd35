package problemreport

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kperrine/nmc-map-matcher/pkg/graph"
	"github.com/kperrine/nmc-map-matcher/pkg/pathengine"
)

func TestAssembleSkipsCleanPathEnds(t *testing.T) {
	link := &graph.Link{ID: 5}
	pathEnds := []*pathengine.PathEnd{
		{Point: &graph.PointOnLink{Link: link}},
		{Restart: true},
	}
	rows := Assemble("shape1", pathEnds, nil)
	if len(rows) != 1 {
		t.Fatalf("expected only the restart row, got %d", len(rows))
	}
	if rows[0].Note != "restart" || rows[0].Seq != 1 {
		t.Errorf("unexpected row: %+v", rows[0])
	}
}

func TestAssembleFlagsReconciledSeqs(t *testing.T) {
	link := &graph.Link{ID: 5}
	pathEnds := []*pathengine.PathEnd{{Point: &graph.PointOnLink{Link: link}}}
	rows := Assemble("shape1", pathEnds, map[int]bool{0: true})
	if len(rows) != 1 || rows[0].Note != "reconciled" {
		t.Fatalf("expected a reconciled row, got %+v", rows)
	}
}

func TestWriteProducesHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	rows := []Row{{ShapeID: "s1", Seq: 2, Restart: true, Note: "restart"}}
	if err := Write(&buf, rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "shapeID,seq,restart,link,note\n") {
		t.Errorf("expected header row first, got %q", out)
	}
	if !strings.Contains(out, "s1,2,true,0,restart") {
		t.Errorf("expected the restart row, got %q", out)
	}
}
