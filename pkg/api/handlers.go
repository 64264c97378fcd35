package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

// Handlers serves read-only queries over a completed match run. Results
// are loaded once at startup and never mutated, so no locking is needed.
type Handlers struct {
	trips map[string]*MatchedTrip
	stops map[string]StopAssignment
	stats StatsResponse
}

// NewHandlers builds handlers over the given matched trips and network
// stats. Stop assignments are indexed from the trips; after
// reconciliation every trip serving a stop agrees on its link, so the
// last writer wins harmlessly.
func NewHandlers(trips map[string]*MatchedTrip, stats StatsResponse) *Handlers {
	stops := make(map[string]StopAssignment)
	for _, t := range trips {
		for _, s := range t.Stops {
			stops[s.StopID] = s
		}
	}
	stats.NumTrips = len(trips)
	stats.NumStops = len(stops)
	return &Handlers{trips: trips, stops: stops, stats: stats}
}

// HandleListTrips handles GET /api/v1/routes.
func (h *Handlers) HandleListTrips(w http.ResponseWriter, r *http.Request) {
	out := make([]TripSummary, 0, len(h.trips))
	for _, t := range h.trips {
		out = append(out, TripSummary{TripID: t.TripID, RouteName: t.RouteName, NumLinks: len(t.Links)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TripID < out[j].TripID })
	writeJSON(w, http.StatusOK, out)
}

// HandleTripLinks handles GET /api/v1/routes/{tripID}/links.
func (h *Handlers) HandleTripLinks(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	t, ok := h.trips[tripID]
	if !ok {
		writeError(w, http.StatusNotFound, "trip_not_found", "tripID")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandleStop handles GET /api/v1/stops/{stopID}.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopID")
	s, ok := h.stops[stopID]
	if !ok {
		writeError(w, http.StatusNotFound, "stop_not_found", "stopID")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	writeJSON(w, status, ErrorResponse{Error: code, Field: field})
}
