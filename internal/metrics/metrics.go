// Package metrics computes aggregate measures over a line of agents: how many
// are unhappy, how homogeneous neighbourhoods are on average, and how large
// the same-type clusters have grown.
package metrics

import "github.com/talgya/segregation/internal/schelling"

// Cluster is a maximal run of adjacent agents sharing one type.
type Cluster struct {
	Type   int `json:"type"`
	Start  int `json:"start"`
	Length int `json:"length"`
}

// Snapshot bundles every metric of a line.
type Snapshot struct {
	Size               int     `json:"size"`
	Unhappy            int     `json:"unhappy"`
	UnhappyByType      [2]int  `json:"unhappy_by_type"`
	AverageHomogeneity float64 `json:"average_homogeneity"`
	Clusters           int     `json:"clusters"`
	AverageClusterSize float64 `json:"average_cluster_size"`
	LargestCluster     int     `json:"largest_cluster"`
}

// Measure computes all metrics of l under p.
func Measure(p schelling.Params, l schelling.Line) Snapshot {
	byType := UnhappyByType(p, l)
	clusters := Clusters(l)
	largest := 0
	for _, c := range clusters {
		largest = max(largest, c.Length)
	}
	return Snapshot{
		Size:               len(l),
		Unhappy:            byType[0] + byType[1],
		UnhappyByType:      byType,
		AverageHomogeneity: AverageHomogeneity(p, l),
		Clusters:           len(clusters),
		AverageClusterSize: averageSize(len(l), len(clusters)),
		LargestCluster:     largest,
	}
}

// CountUnhappy returns the number of agents below the satisfaction threshold.
func CountUnhappy(p schelling.Params, l schelling.Line) int {
	c := UnhappyByType(p, l)
	return c[0] + c[1]
}

// UnhappyByType splits the unhappy count by agent type.
func UnhappyByType(p schelling.Params, l schelling.Line) [2]int {
	var c [2]int
	for i, v := range l {
		if !p.IsHappy(l, i) {
			c[v]++
		}
	}
	return c
}

// AverageHomogeneity is the mean of the per-agent homogeneity levels.
// An empty line yields 0.
func AverageHomogeneity(p schelling.Params, l schelling.Line) float64 {
	if len(l) == 0 {
		return 0
	}
	sum := 0.0
	for i := range l {
		sum += p.HomogeneityLevel(l, i)
	}
	return sum / float64(len(l))
}

// Clusters splits l into maximal runs of equal adjacent values, left to right.
func Clusters(l schelling.Line) []Cluster {
	var out []Cluster
	for i, v := range l {
		if i > 0 && l[i-1] == v {
			out[len(out)-1].Length++
			continue
		}
		out = append(out, Cluster{Type: v, Start: i, Length: 1})
	}
	return out
}

// AverageClusterSize is the line length divided by the number of clusters.
// An empty line yields 0.
func AverageClusterSize(l schelling.Line) float64 {
	n := 0
	for i := range l {
		if i == 0 || l[i] != l[i-1] {
			n++
		}
	}
	return averageSize(len(l), n)
}

func averageSize(size, clusters int) float64 {
	if clusters == 0 {
		return 0
	}
	return float64(size) / float64(clusters)
}
