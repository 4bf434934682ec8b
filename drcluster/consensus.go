// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import (
	"bytes"
	"fmt"

	"github.com/grailbio/crispr/dna"
)

// computeConsensus fills the consensus and conservation buffers. The consensus
// base is the most frequent one, the first in ACGT order on ties, and N when
// nothing covers the position. Conservation is the share of the consensus
// base, or 0 when fewer than minDepth reads cover the position.
func (c *coverage) computeConsensus(minDepth int) {
	c.supported = 0
	for p := 0; p < c.length; p++ {
		best, total := 0, 0
		c.consensus[p] = 'N'
		for b := 0; b < dna.NBase; b++ {
			n := c.counts[b][p]
			total += n
			if n > best {
				best = n
				c.consensus[p] = dna.Base(b).Byte()
			}
		}
		c.conservation[p] = 0
		if total > 0 && total >= minDepth {
			c.conservation[p] = float64(best) / float64(total)
			c.supported++
		}
	}
}

// refineZone adjusts the inclusive span [zs,ze], which starts as the span of
// the master, to the positions supported with high confidence. When enough
// positions are supported, each end first moves inward until the position
// just outside it reaches the cutoff. Both ends then move outward as long as
// the next position reaches the cutoff. It returns false as the last value
// when too few positions were supported to trim the span.
func (c *coverage) refineZone(zs, ze int, opts Opts) (int, int, bool) {
	cutoff := opts.ZoneExtensionCutoff
	confident := c.supported >= opts.MinReadDepth
	if confident {
		for zs > 0 && zs < ze && c.conservation[zs-1] < cutoff {
			zs++
		}
		for ze < c.length-1 && ze > zs && c.conservation[ze+1] < cutoff {
			ze--
		}
	}
	for zs > 0 && c.conservation[zs-1] >= cutoff {
		zs--
	}
	for ze < c.length-1 && c.conservation[ze+1] >= cutoff {
		ze++
	}
	return zs, ze, confident
}

// variantSpan is a variant placed in the coverage frame.
type variantSpan struct {
	tok    Token
	seq    string
	offset int
	// reads are the reads of tok, in the orientation of seq.
	reads []*Read
	// reversed is set until a variant placed as its reverse complement is
	// committed. reads are then flipped copies.
	reversed bool
}

func (v variantSpan) covers(pos int) bool {
	return pos >= v.offset && pos-v.offset < len(v.seq)
}

// zoneCall is the outcome of classifying the positions of a zone.
type zoneCall struct {
	repeat string
	// collapsePos is the frame position of a confirmed collapse, or -1.
	collapsePos int
	// collapseBases are the alleles seen at collapsePos.
	collapseBases [dna.NBase]bool
}

func (z zoneCall) collapsed() bool { return z.collapsePos >= 0 }

// classifyZone walks the zone left to right and builds the repeat. It stops
// at the first position where at least two bases each hold opts.MinBaseShare
// of the depth and are also carried by the variants that cover the position.
func (c *coverage) classifyZone(zs, ze int, variants []variantSpan, opts Opts) zoneCall {
	var repeat bytes.Buffer
	for p := zs; p <= ze; p++ {
		if c.conservation[p] >= opts.CollapseCutoff {
			repeat.WriteByte(c.consensus[p])
			continue
		}
		var qualifying [dna.NBase]bool
		nq := 0
		if total := c.depth(p); total > 0 {
			for b := 0; b < dna.NBase; b++ {
				if float64(c.counts[b][p])/float64(total) >= opts.MinBaseShare {
					qualifying[b] = true
					nq++
				}
			}
		}
		if nq < 2 {
			repeat.WriteByte(c.consensus[p])
			continue
		}
		var confirmed [dna.NBase]bool
		nc := 0
		for _, v := range variants {
			if !v.covers(p) {
				continue
			}
			if b := dna.BaseOf(v.seq[p-v.offset]); b < dna.NBase && qualifying[b] && !confirmed[b] {
				confirmed[b] = true
				nc++
			}
		}
		if nc < 2 {
			repeat.WriteByte(c.consensus[p])
			continue
		}
		return zoneCall{collapsePos: p, collapseBases: confirmed}
	}
	return zoneCall{repeat: repeat.String(), collapsePos: -1}
}

// dump renders the counts, conservation and consensus around the zone.
func (c *coverage) dump(zs, ze, extra int) string {
	start, end := zs-extra, ze+extra
	if start < 0 {
		start = 0
	}
	if end >= c.length {
		end = c.length - 1
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "zone %d-%d\n%%", zs, ze)
	for p := start; p <= end; p++ {
		fmt.Fprintf(&buf, " %.2f", c.conservation[p])
	}
	for b := 0; b < dna.NBase; b++ {
		fmt.Fprintf(&buf, "\n%c", dna.Base(b).Byte())
		for p := start; p <= end; p++ {
			fmt.Fprintf(&buf, " %4d", c.counts[b][p])
		}
	}
	fmt.Fprintf(&buf, "\n$ %s", c.consensus[start:end+1])
	return buf.String()
}
