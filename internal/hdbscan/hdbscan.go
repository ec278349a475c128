// Package hdbscan implements hierarchical density-based clustering over
// dense vectors using Euclidean distance.
//
// The pipeline is the classic one: core distances, mutual reachability,
// minimum spanning tree, single-linkage hierarchy, condensed tree, and
// finally flat cluster extraction with either leaf or excess-of-mass
// selection. Everything is deterministic for a given input.
package hdbscan

import (
	"errors"
	"fmt"
)

// SelectionMethod picks how flat clusters are extracted from the condensed tree.
type SelectionMethod string

const (
	// Leaf selects the leaves of the cluster tree, favouring many small,
	// homogeneous clusters.
	Leaf SelectionMethod = "leaf"
	// EOM selects clusters by excess of mass (cluster stability).
	EOM SelectionMethod = "eom"
)

// Noise is the label given to points that belong to no cluster.
const Noise = -1

// ErrDimensionMismatch is returned when input points differ in length.
var ErrDimensionMismatch = errors.New("hdbscan: points have mismatched dimensions")

// Params controls a clustering run.
type Params struct {
	MinClusterSize          int             // Smallest group accepted as a cluster (clamped to >= 2)
	MinSamples              int             // Neighbourhood size for core distance; <= 0 means MinClusterSize
	ClusterSelectionEpsilon float64         // Clusters split below this distance are merged back
	Method                  SelectionMethod // Leaf (default) or EOM
}

// DefaultParams returns leaf selection with min cluster size 3 and min samples 2.
func DefaultParams() Params {
	return Params{
		MinClusterSize:          3,
		MinSamples:              2,
		ClusterSelectionEpsilon: 0,
		Method:                  Leaf,
	}
}

// Result holds flat cluster assignments.
type Result struct {
	Labels        []int     // Cluster label per point, Noise for outliers
	Probabilities []float64 // Membership strength per point in [0, 1], 0 for noise
	NumClusters   int
}

// Cluster runs HDBSCAN over points. Labels are consecutive from 0 in the
// order of the selected clusters' position in the condensed tree.
func Cluster(points [][]float64, p Params) (Result, error) {
	n := len(points)
	res := Result{
		Labels:        make([]int, n),
		Probabilities: make([]float64, n),
	}
	for i := range res.Labels {
		res.Labels[i] = Noise
	}
	if n == 0 {
		return res, nil
	}

	dim := len(points[0])
	for i, pt := range points {
		if len(pt) != dim {
			return Result{}, fmt.Errorf("point %d has %d dimensions, expected %d: %w", i, len(pt), dim, ErrDimensionMismatch)
		}
	}

	p = normalizeParams(p)
	if n < 2 {
		return res, nil
	}

	dist := pairwiseDistances(points)
	core := coreDistances(dist, p.MinSamples)
	mrd := mutualReachability(dist, core)
	edges := primMST(mrd)
	hierarchy := singleLinkage(edges, n)
	tree := condenseTree(hierarchy, n, p.MinClusterSize)

	selected := selectClusters(tree, n, p)
	labels, probs := labelPoints(tree, n, selected)

	res.Labels = labels
	res.Probabilities = probs
	res.NumClusters = len(selected)
	return res, nil
}

func normalizeParams(p Params) Params {
	if p.MinClusterSize < 2 {
		p.MinClusterSize = 2
	}
	if p.MinSamples <= 0 {
		p.MinSamples = p.MinClusterSize
	}
	if p.Method == "" {
		p.Method = Leaf
	}
	if p.ClusterSelectionEpsilon < 0 {
		p.ClusterSelectionEpsilon = 0
	}
	return p
}
