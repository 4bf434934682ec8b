// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dna

import (
	"strings"
)

// MaxKmerLength is the longest kmer that fits in a Kmer.
const MaxKmerLength = 32

// Kmer is a compact encoding of a sequence of ACGT, up to 32 bases.  The
// numeric order of two kmers of the same length is the lexicographic order of
// their strings.
type Kmer uint64

// InvalidKmer is a sentinel kmer.
const InvalidKmer = Kmer(0xffffffffffffffff)

// KmerAtPos is the kmer that starts at Pos in the sequence being scanned.
type KmerAtPos struct {
	Pos int
	// Forward and R-C kmer that encodes the subsequence [Pos,Pos+kmerLength).
	Forward, ReverseComplement Kmer
}

// Canonical returns the strand-independent form of the kmer.
func (km KmerAtPos) Canonical() Kmer {
	if km.Forward < km.ReverseComplement {
		return km.Forward
	}
	return km.ReverseComplement
}

// ASCIIToKmer encodes seq, which must be at most MaxKmerLength long. It
// returns InvalidKmer if seq contains anything other than ACGT.
func ASCIIToKmer(seq string) Kmer {
	var k Kmer
	for _, ch := range []byte(seq) {
		b := asciiToBase[ch]
		if b == BaseX {
			return InvalidKmer
		}
		k = (k << 2) | Kmer(b)
	}
	return k
}

// KmerString decodes a kmer of the given length.
func KmerString(k Kmer, kmerLength int) string {
	var sb strings.Builder
	sb.Grow(kmerLength)
	for i := kmerLength - 1; i >= 0; i-- {
		sb.WriteByte(EnumToASCIITable[(k>>(2*uint(i)))&3])
	}
	return sb.String()
}

// Kmerizer scans the kmers of a sequence from left to right.  Windows that
// contain a non-ACGT base are skipped.
//
// Usage:
//
//   k := NewKmerizer(7)
//   k.Reset(seq)
//   for k.Scan() {
//     km := k.Get()
//     ...
//   }
type Kmerizer struct {
	kmerLength int
	mask       Kmer // ~(~0 << (2*kmerLength))

	seq string
	si  int
	cur KmerAtPos
}

// NewKmerizer creates a kmerizer for kmers of the given length.  It panics if
// kmerLength is not in [1, MaxKmerLength].
func NewKmerizer(kmerLength int) *Kmerizer {
	if kmerLength <= 0 || kmerLength > MaxKmerLength {
		panic(kmerLength)
	}
	mask := ^Kmer(0)
	if kmerLength < MaxKmerLength {
		mask = ^(Kmer(0xffffffffffffffff) << Kmer(kmerLength*2 /*2==#bits per base*/))
	}
	return &Kmerizer{
		kmerLength: kmerLength,
		mask:       mask,
	}
}

// Reset starts scanning a new sequence.
func (k *Kmerizer) Reset(seq string) {
	k.seq = seq
	k.si = 0
}

func nextAmbiguousPosition(seq string, si int) int {
	for i := si; i < len(seq); i++ {
		if asciiToBase[seq[i]] == BaseX {
			return i
		}
	}
	return len(seq)
}

// Scan advances to the next kmer.  It returns false once the sequence is
// exhausted.
func (k *Kmerizer) Scan() bool {
	if k.si > 0 /*k.cur is set*/ && k.cur.Pos == k.si-1 && k.si+k.kmerLength <= len(k.seq) {
		nextCh := k.seq[k.si+k.kmerLength-1]
		if bits := asciiToBase[nextCh]; bits != BaseX {
			// Fast path. Directly add the 2-bit encoding of "nextCh" to
			// k.cur.Forward and k.cur.ReverseComplement.
			k.cur.Pos = k.si
			k.cur.Forward = ((k.cur.Forward << 2) | Kmer(bits)) & k.mask
			shift := (Kmer(k.kmerLength) - 1) * 2
			k.cur.ReverseComplement = (k.cur.ReverseComplement >> 2) | (Kmer(bits.Complement()) << shift)
			k.si++
			return true
		}
		// Fall through
	}

	for k.si+k.kmerLength <= len(k.seq) {
		fwd, rc, ok := encodeWindow(k.seq[k.si : k.si+k.kmerLength])
		if !ok {
			k.si = nextAmbiguousPosition(k.seq, k.si) + 1
			continue
		}
		k.cur = KmerAtPos{Pos: k.si, Forward: fwd, ReverseComplement: rc}
		k.si++
		return true
	}
	return false
}

// encodeWindow encodes seq and its reverse complement in one pass. It returns
// false if seq contains a non-ACGT base.
func encodeWindow(seq string) (fwd, rc Kmer, ok bool) {
	shift := 2 * uint(len(seq)-1)
	for i := 0; i < len(seq); i++ {
		b := asciiToBase[seq[i]]
		if b == BaseX {
			return InvalidKmer, InvalidKmer, false
		}
		fwd = fwd<<2 | Kmer(b)
		rc = rc>>2 | Kmer(b.Complement())<<shift
	}
	return fwd, rc, true
}

// Get returns the kmer found by the last successful Scan.
func (k *Kmerizer) Get() KmerAtPos { return k.cur }

// CanonicalKmers returns the canonical kmers of seq in scan order.
func CanonicalKmers(seq string, kmerLength int) []Kmer {
	k := NewKmerizer(kmerLength)
	k.Reset(seq)
	var kmers []Kmer
	for k.Scan() {
		kmers = append(kmers, k.Get().Canonical())
	}
	return kmers
}
