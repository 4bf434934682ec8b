// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dna

import "sort"

// Composition counts the bases of a sequence, indexed by Base. The BaseX slot
// counts everything that is not A, C, G or T.
type Composition [NBaseEnum]int

// CompositionOf counts the bases of seq.
func CompositionOf(seq string) Composition {
	var c Composition
	for i := 0; i < len(seq); i++ {
		c[BaseOf(seq[i])]++
	}
	return c
}

// Len returns the length of the counted sequence.
func (c Composition) Len() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// TopTwo returns the summed counts of the two most frequent regular bases.
func (c Composition) TopTwo() int {
	acgt := []int{c[BaseA], c[BaseC], c[BaseG], c[BaseT]}
	sort.Sort(sort.Reverse(sort.IntSlice(acgt)))
	return acgt[0] + acgt[1]
}

// IsLowComplexity reports whether the two most frequent bases of seq make up
// more than frac of it. An empty sequence is low complexity.
func IsLowComplexity(seq string, frac float64) bool {
	c := CompositionOf(seq)
	n := c.Len()
	if n == 0 {
		return true
	}
	return float64(c.TopTwo())/float64(n) > frac
}
