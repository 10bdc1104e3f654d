package gbm

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// NodeType distinguishes split nodes from terminal nodes.
type NodeType int

const (
	// LeafNode is a terminal node carrying a fitted value.
	LeafNode NodeType = iota
	// SplitNode carries a numerical threshold split.
	SplitNode
)

// Node is one node of a regression tree, stored in the tree's flat node
// array and addressed by index.
type Node struct {
	NodeType       NodeType
	SplitPredictor int     // predictor column index (split nodes)
	Threshold      float64 // go left when value <= Threshold
	LeftChild      int     // -1 for leaves
	RightChild     int     // -1 for leaves
	LeafValue      float64 // fitted value (leaf nodes)
	Gain           float64 // deviance reduction achieved by the split
	Count          int     // training observations reaching the node
}

// IsLeaf reports whether the node is terminal.
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// Tree is a single regression tree of the boosted ensemble. Tree complexity
// is expressed as the number of splits: a tree of complexity c has c split
// nodes and c+1 leaves.
type Tree struct {
	Nodes []Node
}

// Predict walks the tree for one predictor vector. Missing (NaN) values
// follow the left branch.
func (t *Tree) Predict(features []float64) float64 {
	nodeID := 0
	for nodeID >= 0 && nodeID < len(t.Nodes) {
		node := &t.Nodes[nodeID]
		if node.IsLeaf() {
			return node.LeafValue
		}
		v := features[node.SplitPredictor]
		if math.IsNaN(v) || v <= node.Threshold {
			nodeID = node.LeftChild
		} else {
			nodeID = node.RightChild
		}
	}
	return 0.0
}

// treeBuilder grows one regression tree on gradient/hessian working
// responses. Growth is best-first: the candidate leaf with the largest split
// gain is split next, until the complexity budget is spent or no leaf has a
// usable split.
type treeBuilder struct {
	X          mat.Matrix
	gradients  []float64
	hessians   []float64
	complexity int
	minObs     int
}

// candidate is a grown leaf together with its best split, queued by gain.
type candidate struct {
	nodeID  int
	indices []int
	split   splitInfo
}

type splitInfo struct {
	ok        bool
	predictor int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

const hessEps = 1e-10

func (b *treeBuilder) build(indices []int) Tree {
	tree := Tree{}

	root := Node{
		NodeType:   LeafNode,
		LeftChild:  -1,
		RightChild: -1,
		LeafValue:  b.leafValue(indices),
		Count:      len(indices),
	}
	tree.Nodes = append(tree.Nodes, root)

	queue := []candidate{{nodeID: 0, indices: indices, split: b.bestSplit(indices)}}

	for splits := 0; splits < b.complexity; splits++ {
		// Pick the candidate with the largest gain.
		best := -1
		for i, c := range queue {
			if !c.split.ok {
				continue
			}
			if best == -1 || c.split.gain > queue[best].split.gain {
				best = i
			}
		}
		if best == -1 {
			break
		}

		c := queue[best]
		queue = append(queue[:best], queue[best+1:]...)

		leftID := len(tree.Nodes)
		tree.Nodes = append(tree.Nodes, Node{
			NodeType:   LeafNode,
			LeftChild:  -1,
			RightChild: -1,
			LeafValue:  b.leafValue(c.split.left),
			Count:      len(c.split.left),
		})
		rightID := len(tree.Nodes)
		tree.Nodes = append(tree.Nodes, Node{
			NodeType:   LeafNode,
			LeftChild:  -1,
			RightChild: -1,
			LeafValue:  b.leafValue(c.split.right),
			Count:      len(c.split.right),
		})

		n := &tree.Nodes[c.nodeID]
		n.NodeType = SplitNode
		n.SplitPredictor = c.split.predictor
		n.Threshold = c.split.threshold
		n.Gain = c.split.gain
		n.LeftChild = leftID
		n.RightChild = rightID
		n.LeafValue = 0

		queue = append(queue,
			candidate{nodeID: leftID, indices: c.split.left, split: b.bestSplit(c.split.left)},
			candidate{nodeID: rightID, indices: c.split.right, split: b.bestSplit(c.split.right)},
		)
	}

	return tree
}

// leafValue is the Newton-step terminal estimate: sum of gradients over sum
// of hessians.
func (b *treeBuilder) leafValue(indices []int) float64 {
	sumGrad, sumHess := 0.0, 0.0
	for _, idx := range indices {
		sumGrad += b.gradients[idx]
		sumHess += b.hessians[idx]
	}
	if math.Abs(sumHess) < hessEps {
		sumHess = hessEps
	}
	return sumGrad / sumHess
}

// bestSplit scans every predictor for the threshold with the largest gain,
// honoring the minimum-observations-per-node constraint.
func (b *treeBuilder) bestSplit(indices []int) splitInfo {
	if len(indices) < 2*b.minObs {
		return splitInfo{}
	}
	_, cols := b.X.Dims()

	best := splitInfo{gain: -math.MaxFloat64}
	for j := 0; j < cols; j++ {
		if s := b.bestSplitForPredictor(indices, j); s.ok && s.gain > best.gain {
			best = s
		}
	}
	if !best.ok {
		return splitInfo{}
	}

	// Materialize the partition for the winning split only.
	var left, right []int
	for _, idx := range indices {
		if b.X.At(idx, best.predictor) <= best.threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	best.left = left
	best.right = right
	return best
}

func (b *treeBuilder) bestSplitForPredictor(indices []int, predictor int) splitInfo {
	ordered := make([]int, len(indices))
	copy(ordered, indices)
	sort.Slice(ordered, func(a, c int) bool {
		return b.X.At(ordered[a], predictor) < b.X.At(ordered[c], predictor)
	})

	totalGrad, totalHess := 0.0, 0.0
	for _, idx := range ordered {
		totalGrad += b.gradients[idx]
		totalHess += b.hessians[idx]
	}

	best := splitInfo{predictor: predictor, gain: -math.MaxFloat64}

	leftGrad, leftHess := 0.0, 0.0
	for i := 0; i < len(ordered)-1; i++ {
		idx := ordered[i]
		leftGrad += b.gradients[idx]
		leftHess += b.hessians[idx]

		v, next := b.X.At(idx, predictor), b.X.At(ordered[i+1], predictor)
		if v == next {
			continue
		}

		leftCount := i + 1
		rightCount := len(ordered) - leftCount
		if leftCount < b.minObs || rightCount < b.minObs {
			continue
		}

		rightGrad := totalGrad - leftGrad
		rightHess := totalHess - leftHess
		gain := splitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess)

		if gain > best.gain {
			best.ok = true
			best.gain = gain
			best.threshold = (v + next) / 2
		}
	}

	if !best.ok || best.gain <= 0 {
		return splitInfo{}
	}
	return best
}

func splitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess float64) float64 {
	leftScore := (leftGrad * leftGrad) / (leftHess + hessEps)
	rightScore := (rightGrad * rightGrad) / (rightHess + hessEps)
	totalScore := (totalGrad * totalGrad) / (totalHess + hessEps)
	return 0.5 * (leftScore + rightScore - totalScore)
}
