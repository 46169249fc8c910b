package model

import (
	"fmt"
	"math"
)

// IsoNode is one node of an isolation tree. Leaves carry the number of
// training samples that terminated there.
type IsoNode struct {
	Feature   int     `json:"feature"` // -1 marks a leaf
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Size      int     `json:"size"` // leaf sample count
}

// IsLeaf reports whether the node is terminal.
func (n *IsoNode) IsLeaf() bool { return n.Feature < 0 }

// IsoTree is one isolation tree stored as a flat node array, root at 0.
type IsoTree struct {
	Nodes []IsoNode `json:"nodes"`
}

// PathLength returns the adjusted isolation depth of x: the number of
// edges to the terminating leaf plus the average-path correction for the
// samples still grouped there.
func (t *IsoTree) PathLength(x []float64) float64 {
	i, depth := 0, 0.0
	for {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return depth + averagePathLength(n.Size)
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

func (t *IsoTree) validate(featureCount int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("isolation tree has no nodes")
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
	}
	return nil
}

// IsolationForest is an unsupervised anomaly model: statistically unusual
// points isolate in fewer splits, so shorter mean path lengths mean more
// anomalous.
type IsolationForest struct {
	Trees []IsoTree `json:"trees"`

	// MaxSamples is the subsample size each tree was grown on.
	MaxSamples int `json:"maxSamples"`
}

// MeanPathLength is the model-native output: the average adjusted
// isolation depth of x across trees.
func (f *IsolationForest) MeanPathLength(x []float64) float64 {
	sum := 0.0
	for i := range f.Trees {
		sum += f.Trees[i].PathLength(x)
	}
	return sum / float64(len(f.Trees))
}

// AnomalyScore normalizes the mean path length to [0,1] with the standard
// 2^(-E[h(x)]/c(psi)) formula, where higher means more anomalous. The
// model-native scale never leaks into the ensemble.
func (f *IsolationForest) AnomalyScore(x []float64) float64 {
	c := averagePathLength(f.MaxSamples)
	if c == 0 {
		return 0
	}
	return math.Pow(2, -f.MeanPathLength(x)/c)
}

func (f *IsolationForest) validate(featureCount int) error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("isolation forest has no trees")
	}
	if f.MaxSamples < 2 {
		return fmt.Errorf("isolation forest maxSamples must be >= 2, got %d", f.MaxSamples)
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(featureCount); err != nil {
			return fmt.Errorf("isolation tree %d: %w", i, err)
		}
	}
	return nil
}

const eulerMascheroni = 0.5772156649015329

// averagePathLength is c(n), the expected path length of an unsuccessful
// BST search over n samples. Used both as the leaf-size adjustment and as
// the normalization constant.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	h := math.Log(float64(n-1)) + eulerMascheroni
	return 2*h - 2*float64(n-1)/float64(n)
}
