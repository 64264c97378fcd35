package pathengine

import (
	"sort"

	"github.com/kperrine/nmc-map-matcher/pkg/graph"
	"github.com/kperrine/nmc-map-matcher/pkg/walker"
)

// Config holds the path engine's tunable parameters: candidate radii,
// walker limits, cost factors, and the two concurrency caps.
type Config struct {
	R, RPrimary, RSecondary float64 // candidate generation radii
	WalkerRadius            float64 // walker straight-line cutoff
	WalkerDistance          float64 // walker along-path distance cutoff
	AllowUTurns             bool

	FD, FR, FP float64 // cost factors: distance, drift/refDist, nonperp penalty

	LimitClosestPoints     int // per-sample candidate cap ("k")
	LimitSimultaneousPaths int // K concurrent best hypotheses
	MaxHops                int // walker's per-call step limit
}

// DefaultScore builds the default score function:
//
//	cost = f_d*D + f_r*(src.refDist+e.refDist)/2 * (1 + (f_p-1)*isNonPerp(e))
//
// For in-progress frames (dst == nil) there is no endpoint yet to average
// against, so the drift term uses src's own refDist alone. Still additive
// with weight f_r and still monotone nondecreasing in D, which is what the
// walker's distance-based pruning relies on.
func DefaultScore(fd, fr, fp float64) walker.ScoreFunc {
	return func(src *graph.PointOnLink, distance float64, dst *graph.PointOnLink) float64 {
		if dst == nil {
			return fd*distance + fr*src.RefDist
		}
		drift := (src.RefDist + dst.RefDist) / 2
		if dst.NonPerp {
			drift *= fp
		}
		return fd*distance + fr*drift
	}
}

// PathEngine orchestrates candidate generation and the walker to match an
// ordered sequence of samples onto a graph. Not safe for concurrent use by
// multiple goroutines on the same trip; callers matching independent trips
// in parallel should build one PathEngine (and its embedded Walker and
// back-cache) per worker.
type PathEngine struct {
	cfg   Config
	score walker.ScoreFunc
	w     *walker.Walker

	// forceLinks, when non-nil, restricts a refine pass's candidate set
	// for sample i to projections on forceLinks[i].
	forceLinks []*graph.Link
}

// New builds a PathEngine with the default score function.
func New(cfg Config) *PathEngine {
	score := DefaultScore(cfg.FD, cfg.FR, cfg.FP)
	e := &PathEngine{cfg: cfg, score: score}
	e.w = walker.New(e.walkerConfig())
	return e
}

func (e *PathEngine) walkerConfig() walker.Config {
	return walker.Config{
		LimitRadius:   e.cfg.WalkerRadius,
		LimitDistance: e.cfg.WalkerDistance,
		LimitSteps:    e.cfg.MaxHops,
		AllowUTurns:   e.cfg.AllowUTurns,
		Score:         e.score,
	}
}

// restartPenaltyUnit is added atop the worst retained cost in a step when
// synthesizing a restart's cost, so restarted branches always sort below
// every successful continuation at that step.
const restartPenaltyUnit = 1.0

// ConstructPath maintains up to
// cfg.LimitSimultaneousPaths active hypotheses, extending each by walking
// from its tail to every candidate PointOnLink found for the next sample,
// retaining the K lowest-cost results (including restarts) at every
// sample boundary.
func (e *PathEngine) ConstructPath(samples []ShapeSample, g graph.Graph) []*PathEnd {
	if len(samples) == 0 {
		return nil
	}

	hyps := e.seedHypotheses(samples[0], g)

	for i := 1; i < len(samples); i++ {
		hyps = e.step(hyps, i, samples[i], g)
	}

	if len(hyps) == 0 {
		return nil
	}
	return Flatten(bestOf(hyps))
}

// RefinePath re-runs ConstructPath with
// the candidate set for sample i restricted to projections on
// forceLinks[i], and with walker failures against the forced link
// producing a restart instead of a different link choice.
func (e *PathEngine) RefinePath(seed []*PathEnd, g graph.Graph, forceLinks []*graph.Link) []*PathEnd {
	e.forceLinks = forceLinks
	defer func() { e.forceLinks = nil }()

	samples := make([]ShapeSample, len(seed))
	for i, p := range seed {
		samples[i] = p.Sample
	}
	return e.ConstructPath(samples, g)
}

func (e *PathEngine) seedHypotheses(first ShapeSample, g graph.Graph) []*PathEnd {
	candidates := e.candidatesFor(0, first, g, nil)
	if len(candidates) == 0 {
		return []*PathEnd{{Sample: first, Restart: true, TotalCost: restartPenaltyUnit}}
	}
	hyps := make([]*PathEnd, 0, len(candidates))
	for _, c := range candidates {
		hyps = append(hyps, &PathEnd{Sample: first, Point: c, TotalCost: e.cfg.FR * c.RefDist})
	}
	return truncateK(hyps, e.cfg.LimitSimultaneousPaths)
}

// candidatesFor returns the candidate PointOnLinks for sample index idx.
// During a refine pass with a forced link for this sample, the query runs
// with the full radius as its primary radius (the forced link may sit
// outside the normal primary band) and the result is restricted to
// projections on that link.
func (e *PathEngine) candidatesFor(idx int, sample ShapeSample, g graph.Graph, prevPoints []*graph.PointOnLink) []*graph.PointOnLink {
	if e.forceLinks != nil && idx < len(e.forceLinks) && e.forceLinks[idx] != nil {
		wide := g.FindPointsOnLinks(sample.X, sample.Y, e.cfg.R, e.cfg.R, e.cfg.R, nil, 0)
		return restrictToLink(wide, e.forceLinks[idx])
	}
	return g.FindPointsOnLinks(sample.X, sample.Y, e.cfg.R, e.cfg.RPrimary, e.cfg.RSecondary, prevPoints, e.cfg.LimitClosestPoints)
}

// extension is a candidate continuation of one hypothesis toward one
// candidate PointOnLink for the current sample.
type extension struct {
	prev      *PathEnd
	point     *graph.PointOnLink
	routeInfo []*graph.Link
	dist      float64
	cost      float64
}

// step advances every active hypothesis by one sample. idx is this sample's position in the overall samples slice
// (not ShapeSample.Seq, which is the GTFS/stop sequence number) — it is
// what indexes into forceLinks during a refine pass.
func (e *PathEngine) step(hyps []*PathEnd, idx int, sample ShapeSample, g graph.Graph) []*PathEnd {
	var prevPoints []*graph.PointOnLink
	for _, h := range hyps {
		if h.Point != nil {
			prevPoints = append(prevPoints, h.Point)
		}
	}

	candidates := e.candidatesFor(idx, sample, g, prevPoints)

	kbest := newKBestHeap(e.cfg.LimitSimultaneousPaths)
	var extensions []extension

	for _, h := range hyps {
		if h.Point == nil {
			// A previously restarted hypothesis has no location to walk
			// from. Matching resumes by reseeding directly from the
			// candidate set, same as the first sample of a fresh path.
			for _, cand := range candidates {
				cost := h.TotalCost + e.cfg.FR*cand.RefDist
				if kbest.exceeds(cost) {
					continue
				}
				kbest.offer(cost)
				extensions = append(extensions, extension{prev: h, point: cand, routeInfo: nil, dist: 0, cost: cost})
			}
			continue
		}
		for _, cand := range candidates {
			links, dist, cost, ok := e.w.Walk(g, h.Point, cand, h.TotalCost, kbest.exceeds)
			if !ok {
				continue
			}
			kbest.offer(cost)
			extensions = append(extensions, extension{prev: h, point: cand, routeInfo: links, dist: dist, cost: cost})
		}
	}

	// Restarts carry the worst retained cost plus one unit, so they sort
	// below every continuation that survives this step.
	restartCost := restartPenaltyUnit
	if worst, ok := kbest.worst(); ok {
		restartCost = worst + restartPenaltyUnit
	}

	next := make([]*PathEnd, 0, len(extensions)+len(hyps))
	for _, ext := range extensions {
		next = append(next, &PathEnd{
			Prev:      ext.prev,
			Sample:    sample,
			Point:     ext.point,
			RouteInfo: ext.routeInfo,
			TotalDist: ext.prev.TotalDist + ext.dist,
			TotalCost: ext.cost,
		})
	}

	// A hypothesis that produced no successful extension at all continues
	// as a restart.
	extended := make(map[*PathEnd]bool, len(extensions))
	for _, ext := range extensions {
		extended[ext.prev] = true
	}
	for _, h := range hyps {
		if extended[h] {
			continue
		}
		next = append(next, &PathEnd{
			Prev:      h,
			Sample:    sample,
			Point:     nil,
			RouteInfo: nil,
			TotalDist: h.TotalDist,
			TotalCost: h.TotalCost + restartCost,
			Restart:   true,
		})
	}

	return truncateK(next, e.cfg.LimitSimultaneousPaths)
}

func restrictToLink(candidates []*graph.PointOnLink, link *graph.Link) []*graph.PointOnLink {
	out := candidates[:0:0]
	for _, c := range candidates {
		if c.Link == link {
			out = append(out, c)
		}
	}
	return out
}

// truncateK sorts hypotheses by ascending total cost and keeps the best k.
func truncateK(hyps []*PathEnd, k int) []*PathEnd {
	sort.SliceStable(hyps, func(i, j int) bool { return hyps[i].TotalCost < hyps[j].TotalCost })
	if k > 0 && len(hyps) > k {
		hyps = hyps[:k]
	}
	return hyps
}

// bestOf returns the lowest-cost hypothesis tail.
func bestOf(hyps []*PathEnd) *PathEnd {
	best := hyps[0]
	for _, h := range hyps[1:] {
		if h.TotalCost < best.TotalCost {
			best = h
		}
	}
	return best
}
