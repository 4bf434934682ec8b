// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import (
	"fmt"
	"strings"

	"github.com/grailbio/crispr/dna"
)

// Read is one sequencing read together with the repeat occurrences found in
// it. The engine rewrites the coordinates and orientation in place.
type Read struct {
	Name string
	Seq  []byte
	// StartStops lists the occurrences as flattened (start, stop) pairs, in
	// read order. Both ends are inclusive, so a full length occurrence of a
	// variant of length n has stop-start == n-1. An occurrence cut by the read
	// start or end is shorter.
	StartStops []int
	// Reversed is flipped each time the read is reverse complemented.
	Reversed bool
}

// NumRepeats returns the number of repeat occurrences in the read.
func (r *Read) NumRepeats() int { return len(r.StartStops) / 2 }

// Start returns the start of the i'th occurrence.
func (r *Read) Start(i int) int { return r.StartStops[2*i] }

// Stop returns the stop of the i'th occurrence.
func (r *Read) Stop(i int) int { return r.StartStops[2*i+1] }

// isFull reports whether the i'th occurrence covers a whole variant of length n.
func (r *Read) isFull(i, n int) bool {
	return r.Stop(i)-r.Start(i) == n-1
}

// firstFull returns the index of the first full length occurrence of a variant
// of length n, or -1.
func (r *Read) firstFull(n int) int {
	for i := 0; i < r.NumRepeats(); i++ {
		if r.isFull(i, n) {
			return i
		}
	}
	return -1
}

// impliedStart returns where the i'th occurrence of a variant of length n
// would start if the read extended far enough to the left. It is negative for
// a partial occurrence cut by the read start.
func (r *Read) impliedStart(i, n int) int {
	s, e := r.Start(i), r.Stop(i)
	if s == 0 && e-s+1 < n {
		return e - (n - 1)
	}
	return s
}

// flipped returns a reverse complemented copy of r. r is not modified.
func (r *Read) flipped() *Read {
	c := &Read{
		Name:       r.Name,
		Seq:        append([]byte(nil), r.Seq...),
		StartStops: append([]int(nil), r.StartStops...),
		Reversed:   r.Reversed,
	}
	c.ReverseComplement()
	return c
}

// ReverseComplement reverse complements the sequence and mirrors the
// occurrence coordinates so that they keep naming the same bases.
func (r *Read) ReverseComplement() {
	dna.ReverseComplementBytes(r.Seq)
	n := len(r.Seq)
	ss := r.StartStops
	for i := range ss {
		ss[i] = n - 1 - ss[i]
	}
	// Mirroring turns (start, stop) into (stop, start) and reverses the pair
	// order, so reversing the whole slice restores both.
	for i, j := 0, len(ss)-1; i < j; i, j = i+1, j-1 {
		ss[i], ss[j] = ss[j], ss[i]
	}
	r.Reversed = !r.Reversed
}

// UpdateStartStops moves every occurrence from the frame of a variant of
// length variantLen to the frame of repeat. delta is the position of the
// variant minus the position of the repeat in the coverage frame. Occurrences
// are clamped to the read and dropped when they fall outside it.
func (r *Read) UpdateStartStops(delta, variantLen int, repeat string) {
	n := len(r.Seq)
	out := r.StartStops[:0]
	for i := 0; i < r.NumRepeats(); i++ {
		start := r.impliedStart(i, variantLen) - delta
		stop := start + len(repeat) - 1
		if stop < 0 || start >= n {
			continue
		}
		if start < 0 {
			start = 0
		}
		if stop >= n {
			stop = n - 1
		}
		out = append(out, start, stop)
	}
	r.StartStops = out
}

// String renders the coordinates as "start:stop,start:stop".
func (r *Read) String() string {
	return FormatStartStops(r.StartStops)
}

// FormatStartStops renders flattened (start, stop) pairs as
// "start:stop,start:stop".
func FormatStartStops(ss []int) string {
	var sb strings.Builder
	for i := 0; i+1 < len(ss); i += 2 {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d:%d", ss[i], ss[i+1])
	}
	return sb.String()
}
