package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/segregation/internal/api"
	"github.com/talgya/segregation/internal/experiment"
	"github.com/talgya/segregation/internal/persistence"
	"github.com/talgya/segregation/internal/schelling"
	"github.com/talgya/segregation/internal/seed"
)

type dynamicsBody struct {
	Result struct {
		Line    schelling.Line `json:"line"`
		Outcome string         `json:"outcome"`
		Sweeps  int            `json:"sweeps"`
		Moves   int            `json:"moves"`
	} `json:"result"`
	Params schelling.Params `json:"params"`
	Before struct {
		Unhappy int `json:"unhappy"`
	} `json:"before"`
	After struct {
		Unhappy  int `json:"unhappy"`
		Clusters int `json:"clusters"`
	} `json:"after"`
}

func newTestServer(t *testing.T, s *api.Server) *httptest.Server {
	t.Helper()
	if s.Params == (schelling.Params{}) {
		s.Params = schelling.DefaultParams()
	}
	if s.MaxLineSize == 0 {
		s.MaxLineSize = 1000
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, ts *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// TestStatus reports the server defaults and run counters.
func TestStatus(t *testing.T) {
	ts := newTestServer(t, &api.Server{})

	post(t, ts, "/api/v1/dynamics", `{}`)

	resp := get(t, ts, "/api/v1/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[map[string]any](t, resp)
	assert.Equal(t, "schelling", status["name"])
	assert.EqualValues(t, 1, status["runs"])
	assert.EqualValues(t, 55, status["moves"])
	assert.Equal(t, "55", status["moves_human"])
	assert.Equal(t, false, status["storage"])
}

// TestDynamics_OriginalLine runs the default request: Schelling's line under
// the default parameters.
func TestDynamics_OriginalLine(t *testing.T) {
	ts := newTestServer(t, &api.Server{})

	resp := post(t, ts, "/api/v1/dynamics", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[dynamicsBody](t, resp)

	want, err := seed.FromString("0000011111111111000000001111110000001111111100000000000001111111111000")
	require.NoError(t, err)
	assert.Equal(t, want, body.Result.Line)
	assert.Equal(t, "capped", body.Result.Outcome)
	assert.Equal(t, 5, body.Result.Sweeps)
	assert.Equal(t, 55, body.Result.Moves)
	assert.Equal(t, 26, body.Before.Unhappy)
	assert.Equal(t, 2, body.After.Unhappy)
	assert.Equal(t, 9, body.After.Clusters)
}

// TestDynamics_PartialParams overlays request params on the server defaults.
func TestDynamics_PartialParams(t *testing.T) {
	ts := newTestServer(t, &api.Server{})

	resp := post(t, ts, "/api/v1/dynamics",
		`{"line":[0,1,0,1,0],"params":{"neighborhood":1,"max_iterations":10}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[dynamicsBody](t, resp)

	assert.Equal(t, schelling.Params{Neighborhood: 1, Threshold: 0.5, MaxIterations: 10}, body.Params)
	assert.Equal(t, schelling.Line{1, 1, 0, 0, 0}, body.Result.Line)
	assert.Equal(t, "converged", body.Result.Outcome)
	assert.Equal(t, 2, body.Result.Sweeps)
	assert.Equal(t, 2, body.Result.Moves)
}

// TestDynamics_GeneratedLine builds the initial line from a generator config.
func TestDynamics_GeneratedLine(t *testing.T) {
	ts := newTestServer(t, &api.Server{})

	resp := post(t, ts, "/api/v1/dynamics", `{"initial":{"kind":"balanced","size":40,"seed":3}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[dynamicsBody](t, resp)

	assert.Len(t, body.Result.Line, 40)
	assert.Equal(t, [2]int{20, 20}, body.Result.Line.Counts())
}

// TestDynamics_Rejects covers the request errors.
func TestDynamics_Rejects(t *testing.T) {
	ts := newTestServer(t, &api.Server{MaxLineSize: 8, MaxIterations: 50, MaxNeighborhood: 20})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"line":`, http.StatusBadRequest},
		{"threshold above one", `{"line":[0,1],"params":{"threshold":1.5}}`, http.StatusBadRequest},
		{"zero radius", `{"line":[0,1],"params":{"neighborhood":0}}`, http.StatusBadRequest},
		{"non-binary value", `{"line":[0,2,1]}`, http.StatusBadRequest},
		{"unknown generator", `{"initial":{"kind":"spiral","size":4}}`, http.StatusBadRequest},
		{"line too long", `{"line":[0,1,0,1,0,1,0,1,0]}`, http.StatusRequestEntityTooLarge},
		{"generated line too long", `{"initial":{"kind":"random","size":9}}`, http.StatusRequestEntityTooLarge},
		{"too many iterations", `{"line":[0,1],"params":{"max_iterations":51}}`, http.StatusBadRequest},
		{"radius too large", `{"line":[0,1],"params":{"neighborhood":21}}`, http.StatusBadRequest},
		{"too many octaves", `{"initial":{"kind":"noise","size":8,"octaves":3000000}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts, "/api/v1/dynamics", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

// TestMetrics_HugeRadius answers quickly when the radius dwarfs the line.
func TestMetrics_HugeRadius(t *testing.T) {
	ts := newTestServer(t, &api.Server{})

	start := time.Now()
	resp := post(t, ts, "/api/v1/metrics", `{"line":[0,1,1,0,1,0,0,1,1,0],"params":{"neighborhood":200000000}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Less(t, time.Since(start), 2*time.Second)
}

// TestMetrics measures a line without moving anyone.
func TestMetrics(t *testing.T) {
	ts := newTestServer(t, &api.Server{})

	resp := post(t, ts, "/api/v1/metrics", `{"line":[1,1,0,0],"params":{"neighborhood":1}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Line    schelling.Line `json:"line"`
		Metrics struct {
			Unhappy            int     `json:"unhappy"`
			Clusters           int     `json:"clusters"`
			AverageClusterSize float64 `json:"average_cluster_size"`
		} `json:"metrics"`
		Clusters []struct {
			Type   int `json:"type"`
			Start  int `json:"start"`
			Length int `json:"length"`
		} `json:"clusters"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, schelling.Line{1, 1, 0, 0}, body.Line)
	assert.Equal(t, 0, body.Metrics.Unhappy)
	assert.Equal(t, 2, body.Metrics.Clusters)
	assert.Equal(t, 2.0, body.Metrics.AverageClusterSize)
	require.Len(t, body.Clusters, 2)
	assert.Equal(t, 1, body.Clusters[0].Type)
	assert.Equal(t, 2, body.Clusters[1].Start)
}

// TestRateLimit rejects simulation requests beyond the per-minute budget.
func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, &api.Server{RateLimit: 2})

	for range 2 {
		resp := post(t, ts, "/api/v1/metrics", `{"line":[0,1]}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := post(t, ts, "/api/v1/dynamics", `{"line":[0,1]}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Reads are not limited.
	resp = get(t, ts, "/api/v1/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestMethodNotAllowed rejects GET on a simulation endpoint.
func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, &api.Server{})
	resp := get(t, ts, "/api/v1/dynamics")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// TestExperiments_NoStorage answers 503 when no database is configured.
func TestExperiments_NoStorage(t *testing.T) {
	ts := newTestServer(t, &api.Server{})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, ts, "/api/v1/experiments").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, ts, "/api/v1/experiment/last").StatusCode)
}

// TestExperiments lists stored experiments and returns one with its points.
func TestExperiments(t *testing.T) {
	db, err := persistence.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts := newTestServer(t, &api.Server{DB: db})

	resp := get(t, ts, "/api/v1/experiments")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]map[string]any](t, resp))

	pl := experiment.DefaultPlan()
	pl.Neighborhoods = []int{2}
	pl.SampleSize = 3
	points := []experiment.Point{{
		Neighborhood: 2, Samples: 3, Converged: 3, MeanSweeps: 2, MeanMoves: 11,
		Before: experiment.Summary{Unhappy: 20, AverageHomogeneity: 0.5, AverageClusterSize: 2},
		After:  experiment.Summary{Unhappy: 0, AverageHomogeneity: 0.9, AverageClusterSize: 7},
	}}
	id, err := db.SaveExperiment(pl, points)
	require.NoError(t, err)

	resp = get(t, ts, "/api/v1/experiments?limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]persistence.ExperimentRecord](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	for _, path := range []string{"/api/v1/experiment/" + id, "/api/v1/experiment/last"} {
		resp = get(t, ts, path)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		var detail struct {
			ID     string             `json:"id"`
			Plan   experiment.Plan    `json:"plan"`
			Points []experiment.Point `json:"points"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
		assert.Equal(t, id, detail.ID)
		assert.Equal(t, []int{2}, detail.Plan.Neighborhoods)
		assert.Equal(t, points, detail.Points)
	}

	assert.Equal(t, http.StatusNotFound, get(t, ts, "/api/v1/experiment/nope").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, ts, "/api/v1/experiments?limit=x").StatusCode)
}

// TestCORS echoes allowed origins and answers preflight requests.
func TestCORS(t *testing.T) {
	ts := newTestServer(t, &api.Server{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/dynamics", bytes.NewReader(nil))
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}
