package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter() http.Handler {
	trips := map[string]*MatchedTrip{
		"trip-1": {
			TripID:    "trip-1",
			RouteName: "7 Duval/Dove Springs",
			Links:     []int64{100, 101, 102},
			Stops: []StopAssignment{
				{StopID: "stop-a", Name: "Congress & 5th", LinkID: 101, Location: 42},
			},
		},
		"trip-2": {
			TripID:    "trip-2",
			RouteName: "7 Duval/Dove Springs",
			Links:     []int64{102, 103},
			Stops:     nil,
		},
	}
	h := NewHandlers(trips, StatsResponse{NumNodes: 10, NumLinks: 12})
	cfg := DefaultConfig(":0")
	return NewRouter(cfg, h)
}

func TestListTrips(t *testing.T) {
	srv := httptest.NewServer(testRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/routes")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []TripSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, "trip-1", got[0].TripID)
	assert.Equal(t, 3, got[0].NumLinks)
}

func TestTripLinks(t *testing.T) {
	srv := httptest.NewServer(testRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/routes/trip-1/links")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got MatchedTrip
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, []int64{100, 101, 102}, got.Links)
	require.Len(t, got.Stops, 1)
	assert.Equal(t, int64(101), got.Stops[0].LinkID)
}

func TestTripLinksNotFound(t *testing.T) {
	srv := httptest.NewServer(testRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/routes/no-such-trip/links")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var got ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "trip_not_found", got.Error)
}

func TestStopLookup(t *testing.T) {
	srv := httptest.NewServer(testRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/stops/stop-a")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got StopAssignment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, int64(101), got.LinkID)
	assert.Equal(t, int64(42), got.Location)
}

func TestStatsCountsDerived(t *testing.T) {
	srv := httptest.NewServer(testRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 2, got.NumTrips)
	assert.Equal(t, 1, got.NumStops)
	assert.Equal(t, 10, got.NumNodes)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(testRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}
