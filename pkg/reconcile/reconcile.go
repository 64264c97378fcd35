// Package reconcile votes on the most popular link a GTFS stop lands on
// across every trip that serves it, then reassigns outlier trips onto
// that link and re-matches them. Two trips sharing a stop sometimes land
// it on two different, nearby links after independent matching, which
// produces an inconsistent bus_route_link table unless resolved here.
package reconcile

import (
	"log"
	"sort"

	"github.com/kperrine/nmc-map-matcher/pkg/graph"
	"github.com/kperrine/nmc-map-matcher/pkg/pathengine"
)

// StopObservation is one trip's matched point for one GTFS stop.
type StopObservation struct {
	TripID string
	Seq    int // index of this stop's sample in the trip's PathEnd slice
	Point  *graph.PointOnLink
}

// StopRecord tallies, across every trip serving one stop, which original
// link id each trip landed on, plus how many trips even have that link
// somewhere in their own subnet (a link no one's subnet contains can
// never win — there would be nothing to reassign onto).
type StopRecord struct {
	StopID string

	linkCounts     map[int64]int
	linkPresentCnt map[int64]int
	observations   []StopObservation
}

// NewStopRecord builds an empty StopRecord for stopID.
func NewStopRecord(stopID string) *StopRecord {
	return &StopRecord{
		StopID:         stopID,
		linkCounts:     make(map[int64]int),
		linkPresentCnt: make(map[int64]int),
	}
}

// Observe records one trip's match for this stop. subnetLinkIDs is every
// original link id present anywhere in that trip's own subnet, used to
// grow linkPresentCnt even for links the trip didn't land on.
func (r *StopRecord) Observe(obs StopObservation, subnetLinkIDs map[int64]bool) {
	r.observations = append(r.observations, obs)
	r.linkCounts[obs.Point.Link.ID]++
	for id := range subnetLinkIDs {
		r.linkPresentCnt[id]++
	}
}

// RankedLinks returns the stop's candidate link ids best-first: primarily
// the link present in the most trips' subnets (a link a referent trip
// cannot reach is useless no matter how many votes it drew), then the
// link the most trips landed on, then the numerically largest link id.
func (r *StopRecord) RankedLinks() []int64 {
	type candidate struct {
		id      int64
		count   int
		present int
	}
	cands := make([]candidate, 0, len(r.linkCounts))
	for id, count := range r.linkCounts {
		cands = append(cands, candidate{id: id, count: count, present: r.linkPresentCnt[id]})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].present != cands[j].present {
			return cands[i].present > cands[j].present
		}
		if cands[i].count != cands[j].count {
			return cands[i].count > cands[j].count
		}
		return cands[i].id > cands[j].id
	})
	out := make([]int64, len(cands))
	for i, c := range cands {
		out[i] = c.id
	}
	return out
}

// WinningLink returns the best-ranked link id for this stop.
func (r *StopRecord) WinningLink() (linkID int64, ok bool) {
	ranked := r.RankedLinks()
	if len(ranked) == 0 {
		return 0, false
	}
	return ranked[0], true
}

// TripMatch bundles one trip's subnet and its matched stop samples for
// reconciliation. PathEnds and StopIDs are parallel slices: StopIDs[i] is
// the GTFS stop id of PathEnds[i].
type TripMatch struct {
	TripID   string
	Subnet   *graph.SinglePathGraph
	PathEnds []*pathengine.PathEnd
	StopIDs  []string
}

// Reconcile tallies every trip's per-stop link assignment and settles
// each stop onto one link, descending the stop's ranked candidates until
// every referent trip is covered: a trip whose subnet lacks the
// best-ranked link is assigned the next-ranked link it can reach. Trips
// with no reachable candidate at all keep their original assignment and
// the stop is reported. Every trip whose assignment moved is re-run
// through RefinePath restricted to its new links; the returned map holds
// the corrected PathEnd chain per reassigned trip, and callers should
// replace that trip's stored match with it. Trips not present in the
// result were left unchanged.
func Reconcile(trips []*TripMatch, engine *pathengine.PathEngine) map[string][]*pathengine.PathEnd {
	records := make(map[string]*StopRecord)
	stopOrder := []string{}
	for _, trip := range trips {
		linkIDs := subnetLinkIDs(trip.Subnet)
		for i, pe := range trip.PathEnds {
			if pe.Point == nil {
				continue
			}
			stopID := trip.StopIDs[i]
			rec, ok := records[stopID]
			if !ok {
				rec = NewStopRecord(stopID)
				records[stopID] = rec
				stopOrder = append(stopOrder, stopID)
			}
			rec.Observe(StopObservation{TripID: trip.TripID, Seq: i, Point: pe.Point}, linkIDs)
		}
	}

	tripsByID := make(map[string]*TripMatch, len(trips))
	for _, trip := range trips {
		tripsByID[trip.TripID] = trip
	}

	// assigned[tripID][seq] is the link the trip's sample must move to.
	assigned := make(map[string]map[int]*graph.Link)

	for _, stopID := range stopOrder {
		rec := records[stopID]
		remaining := make([]StopObservation, len(rec.observations))
		copy(remaining, rec.observations)

		for _, linkID := range rec.RankedLinks() {
			if len(remaining) == 0 {
				break
			}
			next := remaining[:0]
			for _, obs := range remaining {
				target := findLinkByID(tripsByID[obs.TripID].Subnet, linkID)
				if target == nil {
					// This trip's subnet cannot reach the current
					// candidate; it stays in the pool for the
					// next-ranked link.
					next = append(next, obs)
					continue
				}
				if obs.Point.Link.ID != linkID {
					m := assigned[obs.TripID]
					if m == nil {
						m = make(map[int]*graph.Link)
						assigned[obs.TripID] = m
					}
					m[obs.Seq] = target
				}
			}
			remaining = next
		}
		if len(remaining) > 0 {
			log.Printf("WARNING: stop %s: %d trip(s) have no reconcilable link in their subnet; keeping their original assignment", stopID, len(remaining))
		}
	}

	reassigned := make(map[string][]*pathengine.PathEnd)
	for _, trip := range trips {
		moves := assigned[trip.TripID]
		if len(moves) == 0 {
			continue
		}
		forceLinks := make([]*graph.Link, len(trip.PathEnds))
		for seq, link := range moves {
			forceLinks[seq] = link
		}
		reassigned[trip.TripID] = engine.RefinePath(trip.PathEnds, trip.Subnet, forceLinks)
	}
	return reassigned
}

func subnetLinkIDs(g *graph.SinglePathGraph) map[int64]bool {
	ids := make(map[int64]bool, len(g.Links()))
	for _, l := range g.Links() {
		ids[l.ID] = true
	}
	return ids
}

func findLinkByID(g *graph.SinglePathGraph, id int64) *graph.Link {
	for _, l := range g.Links() {
		if l.ID == id {
			return l
		}
	}
	return nil
}
