package hdbscan

import (
	"math"
	"sort"
)

// clusterTree is the condensed tree restricted to cluster-to-cluster rows.
type clusterTree struct {
	rows     []condensedRow
	root     int
	children map[int][]int
	lambdaOf map[int]float64 // birth lambda of each non-root cluster
	parentOf map[int]int
}

func newClusterTree(tree []condensedRow, n int) *clusterTree {
	ct := &clusterTree{
		root:     n,
		children: make(map[int][]int),
		lambdaOf: make(map[int]float64),
		parentOf: make(map[int]int),
	}
	for _, r := range tree {
		if r.childSize <= 1 {
			continue
		}
		ct.rows = append(ct.rows, r)
		ct.children[r.parent] = append(ct.children[r.parent], r.child)
		ct.lambdaOf[r.child] = r.lambda
		ct.parentOf[r.child] = r.parent
	}
	return ct
}

func (ct *clusterTree) empty() bool {
	return len(ct.rows) == 0
}

func (ct *clusterTree) leaves() []int {
	if ct.empty() {
		return nil
	}
	var out []int
	var walk func(node int)
	walk = func(node int) {
		kids := ct.children[node]
		if len(kids) == 0 {
			out = append(out, node)
			return
		}
		for _, k := range kids {
			walk(k)
		}
	}
	walk(ct.root)
	return out
}

// descendants returns node and every cluster below it, breadth first.
func (ct *clusterTree) descendants(node int) []int {
	var result []int
	queue := []int{node}
	for len(queue) > 0 {
		result = append(result, queue...)
		var next []int
		for _, q := range queue {
			next = append(next, ct.children[q]...)
		}
		queue = next
	}
	return result
}

func epsilonOf(lambda float64) float64 {
	if math.IsInf(lambda, 1) {
		return 0
	}
	return 1 / lambda
}

// traverseUpwards climbs from leaf until it reaches an ancestor that was
// born at a distance above epsilon. It never returns the root.
func (ct *clusterTree) traverseUpwards(epsilon float64, leaf int) int {
	for {
		parent := ct.parentOf[leaf]
		if parent == ct.root {
			return leaf
		}
		if epsilonOf(ct.lambdaOf[parent]) > epsilon {
			return parent
		}
		leaf = parent
	}
}

func (ct *clusterTree) epsilonSearch(candidates []int, epsilon float64) map[int]bool {
	sorted := append([]int(nil), candidates...)
	sort.Ints(sorted)

	selected := make(map[int]bool)
	processed := make(map[int]bool)
	for _, leaf := range sorted {
		if epsilonOf(ct.lambdaOf[leaf]) >= epsilon {
			selected[leaf] = true
			continue
		}
		if processed[leaf] {
			continue
		}
		chosen := ct.traverseUpwards(epsilon, leaf)
		selected[chosen] = true
		for _, sub := range ct.descendants(chosen) {
			if sub != chosen {
				processed[sub] = true
			}
		}
	}
	return selected
}

// stability computes the excess of mass of every cluster in the condensed tree.
func stability(tree []condensedRow, n int) map[int]float64 {
	births := map[int]float64{n: 0}
	for _, r := range tree {
		births[r.child] = r.lambda
	}
	result := make(map[int]float64)
	for _, r := range tree {
		result[r.parent] += (r.lambda - births[r.parent]) * float64(r.childSize)
	}
	return result
}

func selectClusters(tree []condensedRow, n int, p Params) []int {
	ct := newClusterTree(tree, n)
	if ct.empty() {
		return nil
	}

	var chosen map[int]bool
	switch p.Method {
	case EOM:
		chosen = selectEOM(ct, tree, n)
		if p.ClusterSelectionEpsilon > 0 {
			var eom []int
			for c, ok := range chosen {
				if ok {
					eom = append(eom, c)
				}
			}
			chosen = ct.epsilonSearch(eom, p.ClusterSelectionEpsilon)
		}
	default:
		leaves := ct.leaves()
		if p.ClusterSelectionEpsilon > 0 {
			chosen = ct.epsilonSearch(leaves, p.ClusterSelectionEpsilon)
		} else {
			chosen = make(map[int]bool, len(leaves))
			for _, l := range leaves {
				chosen[l] = true
			}
		}
	}

	out := make([]int, 0, len(chosen))
	for c, ok := range chosen {
		if ok && c != ct.root {
			out = append(out, c)
		}
	}
	sort.Ints(out)
	return out
}

func selectEOM(ct *clusterTree, tree []condensedRow, n int) map[int]bool {
	stab := stability(tree, n)

	var nodes []int
	for c := range stab {
		if c != ct.root {
			nodes = append(nodes, c)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(nodes)))

	isCluster := make(map[int]bool, len(nodes))
	for _, c := range nodes {
		isCluster[c] = true
	}
	for _, node := range nodes {
		var subtree float64
		for _, child := range ct.children[node] {
			subtree += stab[child]
		}
		if subtree > stab[node] {
			isCluster[node] = false
			stab[node] = subtree
			continue
		}
		for _, sub := range ct.descendants(node) {
			if sub != node {
				isCluster[sub] = false
			}
		}
	}
	return isCluster
}

// labelPoints assigns each point the label of the nearest selected cluster
// above it, and its membership strength within that cluster.
func labelPoints(tree []condensedRow, n int, selected []int) ([]int, []float64) {
	labels := make([]int, n)
	probs := make([]float64, n)
	for i := range labels {
		labels[i] = Noise
	}
	if len(selected) == 0 {
		return labels, probs
	}

	isSelected := make(map[int]int, len(selected))
	for i, c := range selected {
		isSelected[c] = i
	}

	rowsByParent := make(map[int][]condensedRow)
	deaths := make(map[int]float64)
	for _, r := range tree {
		rowsByParent[r.parent] = append(rowsByParent[r.parent], r)
		if r.lambda > deaths[r.parent] {
			deaths[r.parent] = r.lambda
		}
	}

	for label, cluster := range selected {
		maxLambda := deaths[cluster]
		queue := []int{cluster}
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			for _, r := range rowsByParent[node] {
				if r.child < n {
					labels[r.child] = label
					probs[r.child] = membership(r.lambda, maxLambda)
					continue
				}
				if _, other := isSelected[r.child]; !other {
					queue = append(queue, r.child)
				}
			}
		}
	}
	return labels, probs
}

func membership(lambda, maxLambda float64) float64 {
	if maxLambda == 0 || math.IsInf(lambda, 0) || math.IsNaN(lambda) {
		return 1.0
	}
	return math.Min(lambda, maxLambda) / maxLambda
}
