// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/crispr/dna"
)

// coverage piles up the reads of a group. counts[b][p] is the # of reads with
// base b at position p of the frame. The consensus and conservation buffers
// are derived from the counts by computeConsensus.
type coverage struct {
	length       int
	counts       [dna.NBase][]int
	consensus    []byte
	conservation []float64
	// supported is the # of positions with a non zero conservation.
	supported int
}

func newCoverage(length int) *coverage {
	c := &coverage{
		length:       length,
		consensus:    make([]byte, length),
		conservation: make([]float64, length),
	}
	for b := range c.counts {
		c.counts[b] = make([]int, length)
	}
	return c
}

func (c *coverage) reset() {
	for b := range c.counts {
		row := c.counts[b]
		for i := range row {
			row[i] = 0
		}
	}
	for i := range c.consensus {
		c.consensus[i] = 'N'
		c.conservation[i] = 0
	}
	c.supported = 0
}

// getCoverage returns a cleared matrix of the given width from the pool.
func (e *Engine) getCoverage(length int) *coverage {
	if v := e.coveragePool.Get(); v != nil {
		if c := v.(*coverage); c.length == length {
			c.reset()
			return c
		}
	}
	c := newCoverage(length)
	c.reset()
	return c
}

// addRead adds seq to the counts, with seq[0] at position shift. A base that
// lands outside the frame is an error.
func (c *coverage) addRead(seq []byte, shift int) error {
	if shift < 0 || shift+len(seq) > c.length {
		pos := shift
		if shift >= 0 {
			pos = shift + len(seq) - 1
		}
		return errors.E(errors.Precondition,
			fmt.Sprintf("coverage index %d outside [0,%d)", pos, c.length))
	}
	for i, ch := range seq {
		if b := dna.BaseOf(ch); b < dna.NBase {
			c.counts[b][shift+i]++
		}
	}
	return nil
}

func (c *coverage) depth(pos int) int {
	n := 0
	for b := range c.counts {
		n += c.counts[b][pos]
	}
	return n
}
