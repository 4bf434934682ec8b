// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import (
	"math"
	"sync"

	"github.com/grailbio/crispr/dna"
)

// AlignOpts holds the scoring scheme of an AffineAligner.
type AlignOpts struct {
	MatchScore    int
	MismatchScore int
	// A gap of length k costs GapOpen+k*GapExtend.
	GapOpen   int
	GapExtend int
	// The band keeps |i-j| <= |len(query)-len(target)|+BandPadding.
	BandPadding int
}

// AlignResult describes the best local alignment of a query to a target.
// Ranges are inclusive. All positions are -1 when no pair of bases aligns
// with a positive score.
type AlignResult struct {
	Score       int
	TargetBegin int
	TargetEnd   int
	QueryBegin  int
	QueryEnd    int
}

// Aligner computes a local alignment of query to target.
type Aligner interface {
	Align(query, target []byte) AlignResult
}

// AffineAligner is a banded Smith-Waterman aligner with affine gap costs. A
// base other than ACGT scores 0 against anything. When several cells hold the
// best score, the first one in row major order (query rows) is reported.
//
// It is safe for concurrent use.
type AffineAligner struct {
	opts AlignOpts
	pool sync.Pool
}

// NewAffineAligner creates an aligner.
func NewAffineAligner(opts AlignOpts) *AffineAligner {
	return &AffineAligner{
		opts: opts,
		pool: sync.Pool{New: func() interface{} { return &dpRows{} }},
	}
}

const negInf = math.MinInt32 / 2

// dpCell is one cell of a DP matrix. qb and tb are the query and target
// positions at which the path ending in the cell starts.
type dpCell struct {
	score, qb, tb int
}

var zeroCell = dpCell{0, -1, -1}

// dpRows are the reusable buffers of one alignment. h holds the previous and
// the current row of the main matrix. f holds the vertical gap matrix, one
// cell per column.
type dpRows struct {
	h [2][]dpCell
	f []dpCell
}

func (r *dpRows) reset(n int) {
	for k := range r.h {
		if cap(r.h[k]) < n {
			r.h[k] = make([]dpCell, n)
		}
		r.h[k] = r.h[k][:n]
	}
	if cap(r.f) < n {
		r.f = make([]dpCell, n)
	}
	r.f = r.f[:n]
	for j := 0; j < n; j++ {
		r.h[0][j] = zeroCell
		r.f[j] = dpCell{negInf, -1, -1}
	}
}

func (a *AffineAligner) substitution(x, y byte) int {
	bx, by := dna.BaseOf(x), dna.BaseOf(y)
	if bx == dna.BaseX || by == dna.BaseX {
		return 0
	}
	if bx == by {
		return a.opts.MatchScore
	}
	return a.opts.MismatchScore
}

// Align implements Aligner.
func (a *AffineAligner) Align(query, target []byte) AlignResult {
	r, _ := a.align(query, target)
	return r
}

// align also returns the # of DP cells filled.
func (a *AffineAligner) align(query, target []byte) (AlignResult, int) {
	m, n := len(query), len(target)
	none := AlignResult{TargetBegin: -1, TargetEnd: -1, QueryBegin: -1, QueryEnd: -1}
	if m == 0 || n == 0 {
		return none, 0
	}
	band := m - n
	if band < 0 {
		band = -band
	}
	band += a.opts.BandPadding
	gapOpen := a.opts.GapOpen + a.opts.GapExtend

	rows := a.pool.Get().(*dpRows)
	defer a.pool.Put(rows)
	rows.reset(n + 1)

	best, bestI, bestJ := zeroCell, -1, -1
	cells := 0
	prev, cur := rows.h[0], rows.h[1]
	for i := 1; i <= m; i++ {
		lo, hi := i-band, i+band
		if lo < 1 {
			lo = 1
		}
		if hi > n {
			hi = n
		}
		if lo > hi {
			break
		}
		// Only [lo-1, hi+1] of cur is read, by this row and the next one. The
		// cells just outside the band are empty.
		cur[lo-1] = zeroCell
		if hi < n {
			cur[hi+1] = zeroCell
			rows.f[hi+1] = dpCell{negInf, -1, -1}
		}
		e := dpCell{negInf, -1, -1}
		for j := lo; j <= hi; j++ {
			cells++
			// Horizontal gap: consumes target bases.
			if open := cur[j-1].score - gapOpen; open >= e.score-a.opts.GapExtend {
				e = dpCell{open, cur[j-1].qb, cur[j-1].tb}
			} else {
				e.score -= a.opts.GapExtend
			}
			// Vertical gap: consumes query bases.
			f := rows.f[j]
			if open := prev[j].score - gapOpen; open >= f.score-a.opts.GapExtend {
				f = dpCell{open, prev[j].qb, prev[j].tb}
			} else {
				f.score -= a.opts.GapExtend
			}
			rows.f[j] = f

			d := prev[j-1]
			h := dpCell{d.score + a.substitution(query[i-1], target[j-1]), d.qb, d.tb}
			if d.score == 0 {
				h.qb, h.tb = i-1, j-1
			}
			if e.score > h.score {
				h = e
			}
			if f.score > h.score {
				h = f
			}
			if h.score <= 0 {
				h = zeroCell
			}
			cur[j] = h
			if h.score > best.score {
				best, bestI, bestJ = h, i, j
			}
		}
		prev, cur = cur, prev
	}
	if best.score <= 0 {
		return none, cells
	}
	return AlignResult{
		Score:       best.score,
		TargetBegin: best.tb,
		TargetEnd:   bestJ - 1,
		QueryBegin:  best.qb,
		QueryEnd:    bestI - 1,
	}, cells
}
