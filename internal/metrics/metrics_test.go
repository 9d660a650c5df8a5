package metrics_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/segregation/internal/engine"
	"github.com/talgya/segregation/internal/metrics"
	"github.com/talgya/segregation/internal/schelling"
	"github.com/talgya/segregation/internal/seed"
)

// TestClusters splits runs left to right.
func TestClusters(t *testing.T) {
	got := metrics.Clusters(schelling.Line{1, 1, 0, 1, 1, 1, 0, 0})
	want := []metrics.Cluster{
		{Type: 1, Start: 0, Length: 2},
		{Type: 0, Start: 2, Length: 1},
		{Type: 1, Start: 3, Length: 3},
		{Type: 0, Start: 6, Length: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Clusters mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 2.0, metrics.AverageClusterSize(schelling.Line{1, 1, 0, 1, 1, 1, 0, 0}), 1e-12)
}

// TestClusters_Edges covers the empty, single and uniform lines.
func TestClusters_Edges(t *testing.T) {
	assert.Empty(t, metrics.Clusters(nil))
	assert.Equal(t, 0.0, metrics.AverageClusterSize(nil))
	assert.Equal(t, 1.0, metrics.AverageClusterSize(schelling.Line{0}))
	assert.Equal(t, 5.0, metrics.AverageClusterSize(schelling.Line{1, 1, 1, 1, 1}))
	assert.Equal(t, 1.0, metrics.AverageClusterSize(schelling.Line{0, 1, 0, 1}))
}

// TestMeasure_TwoBlocks checks every metric on the converged [1,1,0,0].
func TestMeasure_TwoBlocks(t *testing.T) {
	p := schelling.Params{Neighborhood: 1, Threshold: 0.5, MaxIterations: 5}
	got := metrics.Measure(p, schelling.Line{1, 1, 0, 0})

	want := metrics.Snapshot{
		Size:               4,
		Unhappy:            0,
		AverageHomogeneity: 0.75,
		Clusters:           2,
		AverageClusterSize: 2,
		LargestCluster:     2,
	}
	assert.Equal(t, want, got)
}

// TestMeasure_OriginalLine compares the original line before and after five
// sweeps: fewer unhappy agents, higher homogeneity, larger clusters.
func TestMeasure_OriginalLine(t *testing.T) {
	p := schelling.DefaultParams()

	before := metrics.Measure(p, seed.Original())
	assert.Equal(t, 26, before.Unhappy)
	assert.Equal(t, [2]int{14, 12}, before.UnhappyByType)
	assert.InDelta(t, 0.46546, before.AverageHomogeneity, 1e-4)
	assert.Equal(t, 39, before.Clusters)
	assert.InDelta(t, 70.0/39.0, before.AverageClusterSize, 1e-12)
	assert.Equal(t, 5, before.LargestCluster)

	final, err := engine.Dynamics(p, seed.Original())
	require.NoError(t, err)
	after := metrics.Measure(p, final)
	assert.Equal(t, 2, after.Unhappy)
	assert.Equal(t, [2]int{2, 0}, after.UnhappyByType)
	assert.InDelta(t, 0.70490, after.AverageHomogeneity, 1e-4)
	assert.Equal(t, 9, after.Clusters)
	assert.InDelta(t, 70.0/9.0, after.AverageClusterSize, 1e-12)
	assert.Equal(t, 13, after.LargestCluster)

	assert.Equal(t, after.Unhappy, metrics.CountUnhappy(p, final))
}

// TestAverageHomogeneity_Empty yields zero rather than NaN.
func TestAverageHomogeneity_Empty(t *testing.T) {
	assert.Equal(t, 0.0, metrics.AverageHomogeneity(schelling.DefaultParams(), nil))
}
