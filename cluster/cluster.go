// Package cluster groups sites into habitat classes by their species
// cover profiles, using average-linkage agglomerative clustering.
package cluster

import (
	"math"
	"sort"

	"github.com/oceanbench/habmap/pkg/errors"
)

// Merge records one agglomeration step. A and B are cluster IDs: original
// observations are 0..n-1, merged clusters n..2n-2 in merge order.
type Merge struct {
	A        int     `json:"a"`
	B        int     `json:"b"`
	Distance float64 `json:"distance"`
	Size     int     `json:"size"`
}

// Dendrogram is the full merge history of n observations: n-1 merges
// stored in execution order.
type Dendrogram struct {
	N      int     `json:"n"`
	Merges []Merge `json:"merges"`
}

// Agglomerate builds an average-linkage dendrogram over the rows of data
// using Euclidean distance. All rows must share a width.
func Agglomerate(data [][]float64) (*Dendrogram, error) {
	n := len(data)
	if n == 0 {
		return nil, errors.ErrEmptyData
	}
	width := len(data[0])
	for i, row := range data {
		if len(row) != width {
			return nil, errors.NewDimensionError("Agglomerate", width, len(row), i)
		}
	}

	// Pairwise distance matrix, updated in place with the
	// Lance-Williams average-linkage rule as clusters merge.
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := euclidean(data[i], data[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}

	// active[i] maps a matrix slot to its current cluster ID; slots go
	// inactive as they are absorbed.
	active := make([]bool, n)
	id := make([]int, n)
	size := make([]int, n)
	for i := 0; i < n; i++ {
		active[i] = true
		id[i] = i
		size[i] = 1
	}

	dend := &Dendrogram{N: n, Merges: make([]Merge, 0, n-1)}
	nextID := n
	for remaining := n; remaining > 1; remaining-- {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if dist[i][j] < best {
					best = dist[i][j]
					bi, bj = i, j
				}
			}
		}

		merged := size[bi] + size[bj]
		dend.Merges = append(dend.Merges, Merge{
			A:        id[bi],
			B:        id[bj],
			Distance: best,
			Size:     merged,
		})

		// Slot bi becomes the merged cluster; bj goes inactive.
		wa := float64(size[bi]) / float64(merged)
		wb := float64(size[bj]) / float64(merged)
		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			d := wa*dist[bi][k] + wb*dist[bj][k]
			dist[bi][k] = d
			dist[k][bi] = d
		}
		id[bi] = nextID
		size[bi] = merged
		active[bj] = false
		nextID++
	}
	return dend, nil
}

// CutK cuts the dendrogram into exactly k clusters and returns one label
// per original observation, in 1..k. Labels are assigned by first
// appearance so the numbering is deterministic. Every label is
// non-empty.
func (d *Dendrogram) CutK(k int) ([]int, error) {
	if k < 1 || k > d.N {
		return nil, errors.NewValueError("CutK", "k must be in [1, n]")
	}

	// Replaying the first n-k merges leaves exactly k clusters.
	parent := make([]int, 2*d.N-1)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for i := 0; i < d.N-k; i++ {
		m := d.Merges[i]
		merged := d.N + i
		parent[find(m.A)] = merged
		parent[find(m.B)] = merged
	}

	labels := make([]int, d.N)
	next := 1
	assigned := make(map[int]int)
	for i := 0; i < d.N; i++ {
		root := find(i)
		label, ok := assigned[root]
		if !ok {
			label = next
			assigned[root] = label
			next++
		}
		labels[i] = label
	}
	return labels, nil
}

// Sizes tallies the members of each label returned by CutK, keyed by
// label.
func Sizes(labels []int) map[int]int {
	sizes := make(map[int]int)
	for _, l := range labels {
		sizes[l]++
	}
	return sizes
}

// Labels lists the distinct labels in ascending order.
func Labels(labels []int) []int {
	seen := Sizes(labels)
	out := make([]int, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
