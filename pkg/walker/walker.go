// Package walker implements a bounded breadth-first single-pair search:
// given a source and destination PointOnLink, find the best-scoring
// ordered list of links connecting them.
package walker

import (
	"github.com/kperrine/nmc-map-matcher/pkg/geo"
	"github.com/kperrine/nmc-map-matcher/pkg/graph"
)

// ScoreFunc computes the cost of a partial or completed walk. dst is nil
// for in-progress frames and non-nil when the frame has reached the
// destination link. Implementations must be monotone nondecreasing in
// distance — the walker's pruning depends on it.
type ScoreFunc func(src *graph.PointOnLink, distance float64, dst *graph.PointOnLink) float64

// ExceedsPreviousCosts reports whether cost already exceeds the caller's
// current K-best threshold. Supplied fresh per Walk call since the
// threshold moves as the path engine accumulates hypotheses for a sample.
type ExceedsPreviousCosts func(cost float64) bool

// Config holds the walker's fixed, engine-lifetime settings.
type Config struct {
	LimitRadius    float64 // straight-line cutoff between src and dst
	LimitDistance  float64 // along-path distance cutoff (becomes currentBestDistance)
	LimitRadiusRev float64 // reserved, unused by Walk
	LimitSteps     int
	AllowUTurns    bool
	Score          ScoreFunc
}

// backtrackSet is an immutable set of visited link uids. add returns a new
// set sharing the receiver's storage when nothing changes and allocating a
// fresh copy only when the uid being added is not already present, so
// divergent BFS branches don't pay O(n) per step.
type backtrackSet struct {
	m map[int64]struct{}
}

func newBacktrackSet(uid int64) *backtrackSet {
	return &backtrackSet{m: map[int64]struct{}{uid: {}}}
}

func (b *backtrackSet) has(uid int64) bool {
	_, ok := b.m[uid]
	return ok
}

func (b *backtrackSet) add(uid int64) *backtrackSet {
	if b.has(uid) {
		return b
	}
	nm := make(map[int64]struct{}, len(b.m)+1)
	for k := range b.m {
		nm[k] = struct{}{}
	}
	nm[uid] = struct{}{}
	return &backtrackSet{m: nm}
}

// Frame is one partial walk carried in the BFS queue.
type Frame struct {
	parent    *Frame
	link      *graph.Link
	distance  float64
	cost      float64
	stepCount int
	backtrack *backtrackSet
}

// backCache is a two-level uid->uid->uid memoization table: for the last
// winning walk ending at a given destination link, what next link was
// taken from each intermediate link. Keyed by
// (dstLinkUID, currentLinkUID) -> nextLinkUID. It persists across Walk
// calls on one Walker instance (the memoization point) and is used only to
// narrow the expansion set, never to skip cost evaluation.
type backCache map[int64]map[int64]int64

// Walker runs bounded BFS walks sharing one back-cache across calls. One
// Walker instance belongs to one engine/worker.
type Walker struct {
	cfg   Config
	cache backCache
}

// New builds a Walker with an empty back-cache.
func New(cfg Config) *Walker {
	return &Walker{cfg: cfg, cache: make(backCache)}
}

// Walk searches for the best-scoring link sequence from src to dst.
// startupCost is the running cost already accrued by the hypothesis this
// walk extends (0 for a fresh hypothesis) — it is added, unmodified, to
// every frame's cost so the K-best threshold in exceedsPreviousCosts
// compares whole-hypothesis costs, not per-walk increments.
// exceedsPreviousCosts implements the engine's K-best pruning for this
// call; g resolves link uids held in the back-cache back to *graph.Link.
// ok is false if the queue drained without reaching dst, or if src and dst
// are farther apart than LimitRadius.
func (w *Walker) Walk(g graph.Graph, src, dst *graph.PointOnLink, startupCost float64, exceedsPreviousCosts ExceedsPreviousCosts) (links []*graph.Link, distance, cost float64, ok bool) {
	if geo.Norm(src.X, src.Y, dst.X, dst.Y) > w.cfg.LimitRadius {
		return nil, 0, 0, false
	}

	initDistance := src.Link.Length - src.Dist
	initCost := startupCost + w.cfg.Score(src, initDistance, nil)
	initFrame := &Frame{
		link:      src.Link,
		distance:  initDistance,
		cost:      initCost,
		stepCount: 0,
		backtrack: newBacktrackSet(src.Link.UID),
	}

	queue := []*Frame{initFrame}
	currentBestDistance := w.cfg.LimitDistance
	var winner *Frame
	var winnerDistance, winnerCost float64
	haveWinner := false

	for head := 0; head < len(queue); head++ {
		frame := queue[head]

		if frame.stepCount >= w.cfg.LimitSteps {
			continue
		}
		if frame.distance >= currentBestDistance {
			continue
		}
		if exceedsPreviousCosts(frame.cost) {
			continue
		}

		if frame.link == dst.Link {
			finalDistance := frame.distance - (dst.Link.Length - dst.Dist)
			finalCost := startupCost + w.cfg.Score(src, finalDistance, dst)
			if !haveWinner || finalCost < winnerCost {
				haveWinner = true
				winner = frame
				winnerDistance = finalDistance
				winnerCost = finalCost
				currentBestDistance = finalDistance
			}
			w.recordBackCache(dst.Link.UID, frame)
			continue
		}

		nextLinks := w.expansionCandidates(g, dst, frame)
		for _, next := range nextLinks {
			if !w.cfg.AllowUTurns && frame.link.IsComplementary(next) {
				continue
			}
			if frame.backtrack.has(next.UID) {
				continue
			}
			childDistance := frame.distance + next.Length
			childCost := startupCost + w.cfg.Score(src, childDistance, nil)
			queue = append(queue, &Frame{
				parent:    frame,
				link:      next,
				distance:  childDistance,
				cost:      childCost,
				stepCount: frame.stepCount + 1,
				backtrack: frame.backtrack.add(next.UID),
			})
		}
	}

	if !haveWinner {
		return nil, 0, 0, false
	}
	return reconstruct(winner), winnerDistance, winnerCost, true
}

// expansionCandidates returns the links to try next out of frame's current
// link's destination node. If the back-cache holds a shortcut hint for
// (dst.Link, frame.link), only that single link is returned.
func (w *Walker) expansionCandidates(g graph.Graph, dst *graph.PointOnLink, frame *Frame) []*graph.Link {
	if inner, ok := w.cache[dst.Link.UID]; ok {
		if nextUID, ok := inner[frame.link.UID]; ok {
			if next, ok := g.LinkByUID(nextUID); ok {
				return []*graph.Link{next}
			}
		}
	}

	node := frame.link.Dest
	out := make([]*graph.Link, 0, len(node.OutgoingLinks))
	for _, l := range node.OutgoingLinks {
		out = append(out, l)
	}
	return out
}

// recordBackCache walks the winning frame's parent chain and records, for
// each consecutive pair of links along it, "from this link, the next link
// taken toward dstLinkUID was ...".
func (w *Walker) recordBackCache(dstLinkUID int64, winner *Frame) {
	inner, ok := w.cache[dstLinkUID]
	if !ok {
		inner = make(map[int64]int64)
		w.cache[dstLinkUID] = inner
	}
	for f := winner; f.parent != nil; f = f.parent {
		inner[f.parent.link.UID] = f.link.UID
	}
}

// reconstruct walks the frame chain back to (but excluding) the initial
// frame — the source's own link, already owned by the caller — and returns
// the traversed links in forward order.
func reconstruct(winner *Frame) []*graph.Link {
	var reversed []*graph.Link
	for f := winner; f.parent != nil; f = f.parent {
		reversed = append(reversed, f.link)
	}
	links := make([]*graph.Link, len(reversed))
	for i, l := range reversed {
		links[len(reversed)-1-i] = l
	}
	return links
}
