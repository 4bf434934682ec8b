// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dna

import (
	gunsafe "github.com/grailbio/base/unsafe"
)

// complementTable maps an ASCII base, in either case, to the uppercase letter
// of its complement. Anything else maps to 'N'.
var complementTable = newComplementTable()

func newComplementTable() (t [256]byte) {
	for ch := range t {
		t[ch] = BaseOf(byte(ch)).Complement().Byte()
	}
	return t
}

// ReverseComplementBytes reverse complements seq in place. The result only
// contains A, C, G, T and N.
func ReverseComplementBytes(seq []byte) {
	for i, j := 0, len(seq)-1; i <= j; i, j = i+1, j-1 {
		seq[i], seq[j] = complementTable[seq[j]], complementTable[seq[i]]
	}
}

// ReverseComplement computes the reverse complement of the given DNA string.
func ReverseComplement(seq string) string {
	buf := []byte(seq)
	ReverseComplementBytes(buf)
	return gunsafe.BytesToString(buf)
}

// Laurenize returns the strand-independent form of seq: the lexicographically
// smaller of seq and its reverse complement.  Sequences that are the same
// repeat read off opposite strands laurenize to the same string.
func Laurenize(seq string) string {
	rc := ReverseComplement(seq)
	if rc < seq {
		return rc
	}
	return seq
}

// IsLaurenized reports whether seq is already in its strand-independent form.
func IsLaurenized(seq string) bool { return Laurenize(seq) == seq }
