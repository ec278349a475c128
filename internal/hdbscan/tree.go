package hdbscan

import (
	"math"
	"sort"
)

type edge struct {
	a, b   int
	weight float64
}

// linkageRow is one merge in the single-linkage hierarchy. Nodes below n are
// points; node n+i is the cluster created by row i.
type linkageRow struct {
	left, right int
	dist        float64
	size        int
}

// condensedRow records either a point falling out of a cluster (childSize 1)
// or a cluster splitting into a child cluster.
type condensedRow struct {
	parent    int
	child     int
	lambda    float64
	childSize int
}

func pairwiseDistances(points [][]float64) [][]float64 {
	n := len(points)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var sum float64
			for k := range points[i] {
				d := points[i][k] - points[j][k]
				sum += d * d
			}
			d := math.Sqrt(sum)
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// coreDistances returns, for each point, the distance to its minSamples-th
// nearest other point. Sorted rows start with the zero self-distance, so that
// neighbour sits at index minSamples.
func coreDistances(dist [][]float64, minSamples int) []float64 {
	n := len(dist)
	k := minSamples
	if k > n-1 {
		k = n - 1
	}
	core := make([]float64, n)
	row := make([]float64, n)
	for i := range dist {
		copy(row, dist[i])
		sort.Float64s(row)
		core[i] = row[k]
	}
	return core
}

func mutualReachability(dist [][]float64, core []float64) [][]float64 {
	n := len(dist)
	mrd := make([][]float64, n)
	for i := range mrd {
		mrd[i] = make([]float64, n)
		for j := range mrd[i] {
			if i == j {
				continue
			}
			mrd[i][j] = math.Max(dist[i][j], math.Max(core[i], core[j]))
		}
	}
	return mrd
}

// primMST builds a minimum spanning tree over the dense graph, returning
// edges sorted by weight.
func primMST(graph [][]float64) []edge {
	n := len(graph)
	inTree := make([]bool, n)
	best := make([]float64, n)
	source := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]edge, 0, n-1)
	current := 0
	for step := 1; step < n; step++ {
		inTree[current] = true
		next := -1
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			if graph[current][j] < best[j] {
				best[j] = graph[current][j]
				source[j] = current
			}
			if next == -1 || best[j] < best[next] {
				next = j
			}
		}
		edges = append(edges, edge{a: source[next], b: next, weight: best[next]})
		current = next
	}

	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].weight < edges[j].weight
	})
	return edges
}

type linkageUnionFind struct {
	parent []int
	size   []int
	next   int
}

func newLinkageUnionFind(n int) *linkageUnionFind {
	uf := &linkageUnionFind{
		parent: make([]int, 2*n-1),
		size:   make([]int, 2*n-1),
		next:   n,
	}
	for i := range uf.parent {
		uf.parent[i] = -1
		if i < n {
			uf.size[i] = 1
		}
	}
	return uf
}

func (uf *linkageUnionFind) find(x int) int {
	root := x
	for uf.parent[root] != -1 {
		root = uf.parent[root]
	}
	for uf.parent[x] != -1 && uf.parent[x] != root {
		next := uf.parent[x]
		uf.parent[x] = root
		x = next
	}
	return root
}

func (uf *linkageUnionFind) union(a, b int) {
	uf.size[uf.next] = uf.size[a] + uf.size[b]
	uf.parent[a] = uf.next
	uf.parent[b] = uf.next
	uf.next++
}

func singleLinkage(edges []edge, n int) []linkageRow {
	uf := newLinkageUnionFind(n)
	rows := make([]linkageRow, 0, len(edges))
	for _, e := range edges {
		ra, rb := uf.find(e.a), uf.find(e.b)
		rows = append(rows, linkageRow{
			left:  ra,
			right: rb,
			dist:  e.weight,
			size:  uf.size[ra] + uf.size[rb],
		})
		uf.union(ra, rb)
	}
	return rows
}

// bfsHierarchy lists root and all its descendants in breadth-first order.
func bfsHierarchy(hierarchy []linkageRow, n, root int) []int {
	var result []int
	queue := []int{root}
	for len(queue) > 0 {
		result = append(result, queue...)
		var next []int
		for _, node := range queue {
			if node >= n {
				row := hierarchy[node-n]
				next = append(next, row.left, row.right)
			}
		}
		queue = next
	}
	return result
}

func nodeSize(hierarchy []linkageRow, n, node int) int {
	if node < n {
		return 1
	}
	return hierarchy[node-n].size
}

// condenseTree collapses the single-linkage hierarchy so that only splits
// producing two sides of at least minClusterSize create new clusters. The
// root cluster is relabelled to n and new clusters count up from n+1.
func condenseTree(hierarchy []linkageRow, n, minClusterSize int) []condensedRow {
	root := 2 * len(hierarchy)
	relabel := make([]int, root+1)
	relabel[root] = n
	nextLabel := n + 1
	ignore := make([]bool, root+1)

	var result []condensedRow
	fallOut := func(parent, from int, lambda float64) {
		for _, sub := range bfsHierarchy(hierarchy, n, from) {
			if sub < n {
				result = append(result, condensedRow{parent: parent, child: sub, lambda: lambda, childSize: 1})
			}
			ignore[sub] = true
		}
	}

	for _, node := range bfsHierarchy(hierarchy, n, root) {
		if node < n || ignore[node] {
			continue
		}
		row := hierarchy[node-n]
		lambda := math.Inf(1)
		if row.dist > 0 {
			lambda = 1 / row.dist
		}

		leftCount := nodeSize(hierarchy, n, row.left)
		rightCount := nodeSize(hierarchy, n, row.right)
		parent := relabel[node]

		switch {
		case leftCount >= minClusterSize && rightCount >= minClusterSize:
			relabel[row.left] = nextLabel
			nextLabel++
			result = append(result, condensedRow{parent: parent, child: relabel[row.left], lambda: lambda, childSize: leftCount})
			relabel[row.right] = nextLabel
			nextLabel++
			result = append(result, condensedRow{parent: parent, child: relabel[row.right], lambda: lambda, childSize: rightCount})
		case leftCount < minClusterSize && rightCount < minClusterSize:
			fallOut(parent, row.left, lambda)
			fallOut(parent, row.right, lambda)
		case leftCount < minClusterSize:
			relabel[row.right] = parent
			fallOut(parent, row.left, lambda)
		default:
			relabel[row.left] = parent
			fallOut(parent, row.right, lambda)
		}
	}
	return result
}
