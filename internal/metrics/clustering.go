// Package metrics scores detected ring partitions against labelled ground
// truth. Every account belongs to exactly one cluster on each side; accounts
// outside any ring are their own singleton cluster.
package metrics

import "math"

// contingency is the n_ij overlap table between two labelings of the same
// accounts, with its row (predicted) and column (truth) sums.
type contingency struct {
	n       int
	cells   map[[2]string]int
	rowSums map[string]int
	colSums map[string]int
}

func newContingency(predicted, truth []string) (*contingency, bool) {
	if len(predicted) != len(truth) || len(predicted) < 2 {
		return nil, false
	}
	c := &contingency{
		n:       len(predicted),
		cells:   make(map[[2]string]int),
		rowSums: make(map[string]int),
		colSums: make(map[string]int),
	}
	for k := range predicted {
		c.cells[[2]string{predicted[k], truth[k]}]++
		c.rowSums[predicted[k]]++
		c.colSums[truth[k]]++
	}
	return c, true
}

// AdjustedRandIndex is the chance-corrected pair agreement between two
// partitions:
//
//	ARI = (Σ C(n_ij,2) - E) / (½(Σ C(a_i,2) + Σ C(b_j,2)) - E)
//	E   = Σ C(a_i,2) · Σ C(b_j,2) / C(n,2)
//
// 1 is identical clustering, 0 is chance level, negative is worse than chance.
func AdjustedRandIndex(predicted, truth []string) float64 {
	c, ok := newContingency(predicted, truth)
	if !ok {
		return 0
	}

	var pairs, rowPairs, colPairs float64
	for _, v := range c.cells {
		pairs += comb2(v)
	}
	for _, a := range c.rowSums {
		rowPairs += comb2(a)
	}
	for _, b := range c.colSums {
		colPairs += comb2(b)
	}

	total := comb2(c.n)
	expected := rowPairs * colPairs / total
	denom := 0.5*(rowPairs+colPairs) - expected
	if math.Abs(denom) < 1e-12 {
		// Both sides all-singletons or both one cluster
		return 1
	}
	return (pairs - expected) / denom
}

// VariationOfInformation is H(P|T) + H(T|P) in bits. 0 means the partitions
// are identical; larger is further apart.
func VariationOfInformation(predicted, truth []string) float64 {
	c, ok := newContingency(predicted, truth)
	if !ok {
		return 0
	}

	nf := float64(c.n)
	var vi float64
	for key, v := range c.cells {
		if v == 0 {
			continue
		}
		p := float64(v) / nf
		vi -= p * math.Log2(float64(v)/float64(c.colSums[key[1]]))
		vi -= p * math.Log2(float64(v)/float64(c.rowSums[key[0]]))
	}
	return vi
}

func comb2(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(n) * float64(n-1) / 2
}
