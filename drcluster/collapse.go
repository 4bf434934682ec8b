// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/crispr/dna"
)

// split resolves a collapsed group. One child group is created per allele at
// the collapsed position, in ACGT order, and every variant is routed to the
// child of the allele it carries. The parent leaves the table. It returns the
// children that received at least one variant.
func (e *Engine) split(gid GID, g *group, variants []variantSpan, call zoneCall, stats *Stats) []GID {
	pos := call.collapsePos
	var children [dna.NBase]GID
	var childTokens [dna.NBase][]Token
	for b := 0; b < dna.NBase; b++ {
		if call.collapseBases[b] {
			children[b] = e.gids.Next()
		}
	}
	log.Printf("group %d: collapsed at position %d, splitting into %v", gid, pos, children)

	drop := func(tok Token) {
		e.reads.Delete(tok)
		e.table.release(tok)
		stats.DroppedTokens++
	}
	for _, v := range variants {
		if v.covers(pos) {
			b := dna.BaseOf(v.seq[pos-v.offset])
			if b >= dna.NBase || !call.collapseBases[b] {
				drop(v.tok)
				continue
			}
			childTokens[b] = append(childTokens[b], v.tok)
			continue
		}
		// The variant does not reach the position. Look at the reads instead.
		byBase, nBases := e.observe(v, pos, call.collapseBases)
		switch nBases {
		case 0:
			drop(v.tok)
		case 1:
			for b := range byBase {
				if len(byBase[b]) > 0 {
					childTokens[b] = append(childTokens[b], v.tok)
				}
			}
		default:
			for b := range byBase {
				if len(byBase[b]) == 0 {
					continue
				}
				tok := e.store.AddString(v.seq)
				e.reads.Set(tok, byBase[b])
				childTokens[b] = append(childTokens[b], tok)
			}
			e.reads.Delete(v.tok)
			e.table.release(v.tok)
		}
	}

	e.table.remove(gid)
	var out []GID
	for b := 0; b < dna.NBase; b++ {
		if !call.collapseBases[b] {
			continue
		}
		if len(childTokens[b]) == 0 {
			log.Debug.Printf("group %d: no variant carries %c", gid, dna.Base(b).Byte())
			continue
		}
		e.table.add(children[b], &group{
			tokens: childTokens[b],
			kmers:  g.kmers,
			depth:  g.depth + 1,
		})
		out = append(out, children[b])
	}
	return out
}

// observe classifies the reads of a variant by the base they carry at frame
// position pos. For every read the occurrences are scanned in order, and the
// first one whose read base at pos is in bases decides. Reads with no such
// occurrence are left out. It returns the reads per base and the # of bases
// observed.
func (e *Engine) observe(v variantSpan, pos int, bases [dna.NBase]bool) ([dna.NBase][]*Read, int) {
	var byBase [dna.NBase][]*Read
	n := 0
	for _, r := range v.reads {
		for i := 0; i < r.NumRepeats(); i++ {
			p := r.impliedStart(i, len(v.seq)) + pos - v.offset
			if p < 0 || p >= len(r.Seq) {
				continue
			}
			b := dna.BaseOf(r.Seq[p])
			if b >= dna.NBase || !bases[b] {
				continue
			}
			if len(byBase[b]) == 0 {
				n++
			}
			byBase[b] = append(byBase[b], r)
			break
		}
	}
	return byBase, n
}
