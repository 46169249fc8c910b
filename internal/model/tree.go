package model

import (
	"fmt"
	"math"
)

// Node is one node of a decision tree. Internal nodes route on
// x[Feature] < Threshold (left on true, the training library's convention);
// leaves carry a margin value. Cover is the training sample weight that
// reached the node, used both for attribution and for expected values.
type Node struct {
	Feature   int     `json:"feature"` // -1 marks a leaf
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Cover     float64 `json:"cover"`
}

// IsLeaf reports whether the node is terminal.
func (n *Node) IsLeaf() bool { return n.Feature < 0 }

// Tree is one decision tree stored as a flat node array, root at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Leaf returns the leaf value reached by x.
func (t *Tree) Leaf(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// ExpectedValue is the cover-weighted mean leaf value of the tree.
func (t *Tree) ExpectedValue() float64 {
	return t.expected(0)
}

func (t *Tree) expected(i int) float64 {
	n := &t.Nodes[i]
	if n.IsLeaf() {
		return n.Value
	}
	l, r := &t.Nodes[n.Left], &t.Nodes[n.Right]
	return (l.Cover*t.expected(n.Left) + r.Cover*t.expected(n.Right)) / n.Cover
}

// MaxDepth returns the depth of the deepest leaf.
func (t *Tree) MaxDepth() int {
	return t.depth(0)
}

func (t *Tree) depth(i int) int {
	n := &t.Nodes[i]
	if n.IsLeaf() {
		return 0
	}
	l, r := t.depth(n.Left), t.depth(n.Right)
	if l > r {
		return l + 1
	}
	return r + 1
}

func (t *Tree) validate(featureCount int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			continue
		}
		if n.Feature >= featureCount {
			return fmt.Errorf("node %d splits on feature %d, layout has %d", i, n.Feature, featureCount)
		}
		if n.Left <= 0 || n.Left >= len(t.Nodes) || n.Right <= 0 || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has out-of-range children", i)
		}
		if n.Cover <= 0 {
			return fmt.Errorf("node %d has non-positive cover", i)
		}
	}
	return nil
}

// TreeEnsemble is a gradient-boosted binary classifier: the sum of leaf
// margins plus the base score, squashed through a sigmoid.
type TreeEnsemble struct {
	Trees     []Tree  `json:"trees"`
	BaseScore float64 `json:"baseScore"` // margin-space prior
}

// Margin returns the raw additive margin for x.
func (e *TreeEnsemble) Margin(x []float64) float64 {
	m := e.BaseScore
	for i := range e.Trees {
		m += e.Trees[i].Leaf(x)
	}
	return m
}

// Probability returns the calibrated class-1 probability for x.
func (e *TreeEnsemble) Probability(x []float64) float64 {
	return Sigmoid(e.Margin(x))
}

// ExpectedValue is the margin the ensemble predicts for an average input:
// the base rate attributions are offset from.
func (e *TreeEnsemble) ExpectedValue() float64 {
	m := e.BaseScore
	for i := range e.Trees {
		m += e.Trees[i].ExpectedValue()
	}
	return m
}

func (e *TreeEnsemble) validate(featureCount int) error {
	if len(e.Trees) == 0 {
		return fmt.Errorf("classifier has no trees")
	}
	for i := range e.Trees {
		if err := e.Trees[i].validate(featureCount); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// Sigmoid maps a margin to a probability.
func Sigmoid(m float64) float64 {
	return 1 / (1 + math.Exp(-m))
}
