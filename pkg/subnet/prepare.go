package subnet

import (
	"github.com/kperrine/nmc-map-matcher/pkg/gtfs"
	"github.com/kperrine/nmc-map-matcher/pkg/graph"
	"github.com/kperrine/nmc-map-matcher/pkg/pathengine"
)

// TreeContiguous returns the longest unbroken run of matched (non-restart)
// PathEnds in full, detached from whatever restart preceded it. A trip's
// shape can come out of ConstructPath with internal restarts; only a
// single unbroken run can be turned into a usable subnet. Returns nil if
// full contains no matched point at all.
func TreeContiguous(full []*pathengine.PathEnd) []*pathengine.PathEnd {
	bestStart, bestLen := 0, 0
	curStart, curLen := -1, 0
	for i, pe := range full {
		if pe.Point == nil {
			curStart, curLen = -1, 0
			continue
		}
		if curStart < 0 {
			curStart = i
		}
		curLen++
		if curLen > bestLen {
			bestLen, bestStart = curLen, curStart
		}
	}
	if bestLen == 0 {
		return nil
	}

	run := make([]*pathengine.PathEnd, bestLen)
	copy(run, full[bestStart:bestStart+bestLen])
	head := *run[0]
	head.Prev = nil
	run[0] = &head
	return run
}

// PrepareMapStops builds the sample sequence to match against a trip's
// subset: a dummy sample pinned to the subset's first node, one sample
// per stop time in sequence order, and a dummy sample pinned to the
// subset's last node. The two dummy ends anchor pathengine.ConstructPath
// so the first and last real stop aren't required to be reachable from
// nothing; callers should drop index 0 and len-1 from the result before
// treating it as the stop match. stopIDs is a parallel slice: stopIDs[i]
// is the GTFS stop id of samples[i], empty for the two dummy ends.
func PrepareMapStops(subsetLinks []*graph.Link, stopTimes []*gtfs.StopTime) (samples []pathengine.ShapeSample, stopIDs []string) {
	if len(subsetLinks) == 0 {
		return nil, nil
	}
	first := subsetLinks[0].Origin
	last := subsetLinks[len(subsetLinks)-1].Dest

	samples = make([]pathengine.ShapeSample, 0, len(stopTimes)+2)
	stopIDs = make([]string, 0, len(stopTimes)+2)

	samples = append(samples, pathengine.ShapeSample{ShapeID: "dummy-start", Seq: 0, X: first.X, Y: first.Y})
	stopIDs = append(stopIDs, "")

	for i, st := range stopTimes {
		samples = append(samples, pathengine.ShapeSample{ShapeID: "stop", Seq: i + 1, X: st.Stop.X, Y: st.Stop.Y})
		stopIDs = append(stopIDs, st.StopID)
	}

	samples = append(samples, pathengine.ShapeSample{ShapeID: "dummy-end", Seq: len(stopTimes) + 1, X: last.X, Y: last.Y})
	stopIDs = append(stopIDs, "")

	return samples, stopIDs
}
