// Package problemreport assembles the -p diagnostics CSV: one row per
// PathEnd that restarted or was reassigned by the reconciler.
package problemreport

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/kperrine/nmc-map-matcher/pkg/pathengine"
)

// Row is one diagnostic line: a restart, or a PathEnd whose link changed
// under cross-trip reconciliation.
type Row struct {
	ShapeID string
	Seq     int
	Restart bool
	LinkID  int64
	Note    string
}

// Assemble builds the diagnostic rows for one shape's matched path.
// reassignedSeqs marks the sample indices the reconciler moved to a
// different link; pass nil if this path was never reconciled.
func Assemble(shapeID string, pathEnds []*pathengine.PathEnd, reassignedSeqs map[int]bool) []Row {
	var rows []Row
	for i, pe := range pathEnds {
		reassigned := reassignedSeqs[i]
		if !pe.Restart && !reassigned {
			continue
		}
		row := Row{ShapeID: shapeID, Seq: i, Restart: pe.Restart}
		if pe.Point != nil {
			row.LinkID = pe.Point.Link.ID
		}
		switch {
		case pe.Restart:
			row.Note = "restart"
		case reassigned:
			row.Note = "reconciled"
		}
		rows = append(rows, row)
	}
	return rows
}

// Write emits the diagnostics as CSV: `shapeID, seq, restart, link, note`.
func Write(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"shapeID", "seq", "restart", "link", "note"}); err != nil {
		return err
	}
	for _, r := range rows {
		row := []string{r.ShapeID, fmt.Sprintf("%d", r.Seq), fmt.Sprintf("%t", r.Restart), fmt.Sprintf("%d", r.LinkID), r.Note}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}
