// Package explain computes additive per-feature attributions for the
// classifier using the exact tree-structure-aware Shapley decomposition.
// Brute-force subset enumeration is combinatorially infeasible at this
// feature count; the path algorithm is polynomial in tree size.
package explain

import (
	"github.com/Saimudragada/fraud-detection-system/internal/model"
)

// pathElem is one unique feature on the current decision path, carrying
// the fraction of zero (feature hidden) and one (feature present) paths
// that flow through it, and the accumulated permutation weight.
type pathElem struct {
	feature int
	zero    float64
	one     float64
	weight  float64
}

// treeShap accumulates the exact Shapley contributions of one tree for
// input x into phi. phi must have len(x) entries; contributions are
// relative to the tree's cover-weighted expected value.
func treeShap(t *model.Tree, x []float64, phi []float64) {
	var recurse func(node int, parent []pathElem, zero, one float64, feature int)
	recurse = func(node int, parent []pathElem, zero, one float64, feature int) {
		depth := len(parent)
		path := make([]pathElem, depth, depth+1)
		copy(path, parent)
		path = append(path, pathElem{})
		extendPath(path, depth, zero, one, feature)

		n := &t.Nodes[node]
		if n.IsLeaf() {
			for i := 1; i <= depth; i++ {
				w := unwoundPathSum(path, depth, i)
				phi[path[i].feature] += w * (path[i].one - path[i].zero) * n.Value
			}
			return
		}

		hot, cold := n.Left, n.Right
		if !(x[n.Feature] < n.Threshold) {
			hot, cold = n.Right, n.Left
		}
		hotZero := t.Nodes[hot].Cover / n.Cover
		coldZero := t.Nodes[cold].Cover / n.Cover

		// A feature already split on upstream keeps a single path entry:
		// unwind its previous occurrence and fold the fractions into the
		// incoming ones.
		inZero, inOne := 1.0, 1.0
		for k := 1; k <= depth; k++ {
			if path[k].feature == n.Feature {
				inZero, inOne = path[k].zero, path[k].one
				unwindPath(path, depth, k)
				path = path[:depth]
				break
			}
		}

		recurse(hot, path, inZero*hotZero, inOne, n.Feature)
		recurse(cold, path, inZero*coldZero, 0, n.Feature)
	}

	recurse(0, nil, 1, 1, -1)
}

// extendPath appends a split to the path (at index depth) and updates the
// permutation weights for every subset size.
func extendPath(path []pathElem, depth int, zero, one float64, feature int) {
	path[depth] = pathElem{feature: feature, zero: zero, one: one}
	if depth == 0 {
		path[0].weight = 1
	}
	d := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / d
		path[i].weight = zero * path[i].weight * float64(depth-i) / d
	}
}

// unwindPath is the exact inverse of extendPath for the element at index,
// shifting the remaining elements down. After the call only path[:depth]
// is meaningful.
func unwindPath(path []pathElem, depth, index int) {
	one := path[index].one
	zero := path[index].zero
	d := float64(depth + 1)

	next := path[depth].weight
	if one != 0 {
		for i := depth - 1; i >= 0; i-- {
			tmp := path[i].weight
			path[i].weight = next * d / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(depth-i)/d
		}
	} else {
		for i := depth - 1; i >= 0; i-- {
			path[i].weight = path[i].weight * d / (zero * float64(depth-i))
		}
	}

	for i := index; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

// unwoundPathSum returns the total permutation weight the path would carry
// with the element at index removed, without mutating the path.
func unwoundPathSum(path []pathElem, depth, index int) float64 {
	one := path[index].one
	zero := path[index].zero
	d := float64(depth + 1)

	next := path[depth].weight
	total := 0.0
	if one != 0 {
		for i := depth - 1; i >= 0; i-- {
			w := next * d / (float64(i+1) * one)
			total += w
			next = path[i].weight - w*zero*float64(depth-i)/d
		}
	} else {
		for i := depth - 1; i >= 0; i-- {
			total += path[i].weight * d / (zero * float64(depth-i))
		}
	}
	return total
}

// Contributions returns the per-feature Shapley contributions of the whole
// ensemble for x, relative to the ensemble's expected value. Summing the
// result plus ExpectedValue reconstructs the raw margin for x.
func Contributions(e *model.TreeEnsemble, x []float64) []float64 {
	phi := make([]float64, len(x))
	for i := range e.Trees {
		treeShap(&e.Trees[i], x, phi)
	}
	return phi
}
