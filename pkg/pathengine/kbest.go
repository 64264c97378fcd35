package pathengine

import "container/heap"

// kBestHeap is a bounded max-heap over the best-so-far extension costs for
// one shape sample: it holds at most K entries, the root is always the
// worst (largest) of them, so "does c exceed the worst of the best K"
// is a single peek.
type kBestHeap struct {
	costs []float64
	k     int
}

func newKBestHeap(k int) *kBestHeap {
	return &kBestHeap{k: k}
}

func (h *kBestHeap) Len() int            { return len(h.costs) }
func (h *kBestHeap) Less(i, j int) bool  { return h.costs[i] > h.costs[j] } // max-heap
func (h *kBestHeap) Swap(i, j int)       { h.costs[i], h.costs[j] = h.costs[j], h.costs[i] }
func (h *kBestHeap) Push(x any)          { h.costs = append(h.costs, x.(float64)) }
func (h *kBestHeap) Pop() any {
	old := h.costs
	n := len(old)
	v := old[n-1]
	h.costs = old[:n-1]
	return v
}

// exceeds reports whether cost exceeds the current worst-of-K threshold.
// Before the heap has K entries, nothing exceeds it.
func (h *kBestHeap) exceeds(cost float64) bool {
	if h.Len() < h.k {
		return false
	}
	return cost > h.costs[0]
}

// offer records cost as a candidate for the best-K set, evicting the
// current worst if the heap is already full and cost is an improvement.
func (h *kBestHeap) offer(cost float64) {
	if h.Len() < h.k {
		heap.Push(h, cost)
		return
	}
	if cost < h.costs[0] {
		h.costs[0] = cost
		heap.Fix(h, 0)
	}
}

// worst returns the current worst-of-K cost, or ok=false if the heap is
// empty (no successful extensions observed yet this step).
func (h *kBestHeap) worst() (float64, bool) {
	if h.Len() == 0 {
		return 0, false
	}
	return h.costs[0], true
}
