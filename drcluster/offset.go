// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/crispr/dna"
)

// Placement is the position of a variant relative to the master.
type Placement struct {
	// Offset is the position of the first base of the placed variant minus the
	// position of the first base of the master.
	Offset int
	// Reversed is set when the reverse complement of the variant aligns better.
	// Offset then refers to the reverse complement.
	Reversed bool
	// Score is the score of the alignment that decided the placement.
	Score int
}

// OffsetAgainstMaster aligns the candidate and its reverse complement to the
// master and keeps the better orientation. When both score the same, the
// alignments are repeated with opts.TieBreakFlank bases of context taken from
// the first read in which the candidate occurs with enough room on both sides.
// It returns false if the candidate cannot be placed.
func OffsetAgainstMaster(aligner Aligner, opts Opts, master, candidate string, reads []*Read) (Placement, bool) {
	m := []byte(master)
	fwd := aligner.Align([]byte(candidate), m)
	rev := aligner.Align([]byte(dna.ReverseComplement(candidate)), m)
	var p Placement
	switch {
	case fwd.Score > rev.Score:
		p = Placement{Offset: fwd.TargetBegin - fwd.QueryBegin, Score: fwd.Score}
	case rev.Score > fwd.Score:
		p = Placement{Offset: rev.TargetBegin - rev.QueryBegin, Reversed: true, Score: rev.Score}
	default:
		window := extendedWindow(reads, len(candidate), opts.TieBreakFlank)
		if window == nil {
			log.Debug.Printf("variant %s: tied orientations and no read to extend it", candidate)
			return Placement{}, false
		}
		fwd = aligner.Align(window, m)
		rcWindow := append([]byte(nil), window...)
		dna.ReverseComplementBytes(rcWindow)
		rev = aligner.Align(rcWindow, m)
		flank := opts.TieBreakFlank
		switch {
		case fwd.Score > rev.Score:
			p = Placement{Offset: fwd.TargetBegin - fwd.QueryBegin + flank, Score: fwd.Score}
		case rev.Score > fwd.Score:
			p = Placement{Offset: rev.TargetBegin - rev.QueryBegin + flank, Reversed: true, Score: rev.Score}
		default:
			log.Debug.Printf("variant %s: orientations still tied after extension", candidate)
			return Placement{}, false
		}
	}
	if p.Score < opts.MinAlignmentScore {
		log.Debug.Printf("variant %s: best alignment score %d is too low", candidate, p.Score)
		return Placement{}, false
	}
	return p, true
}

// extendedWindow returns the first full length occurrence of a variant of
// length n, padded by flank read bases on each side, or nil if no occurrence
// has enough room.
func extendedWindow(reads []*Read, n, flank int) []byte {
	for _, r := range reads {
		for i := 0; i < r.NumRepeats(); i++ {
			if !r.isFull(i, n) {
				continue
			}
			start, stop := r.Start(i)-flank, r.Stop(i)+flank
			if start >= 0 && stop < len(r.Seq) {
				return r.Seq[start : stop+1]
			}
		}
	}
	return nil
}
