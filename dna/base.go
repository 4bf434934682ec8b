// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dna

// Base is the A/C/G/T/X enum.  The values are the natural 2-bit codes of the
// regular bases, so a Base < NBase can be shifted directly into a Kmer.
type Base uint8

const (
	// BaseA represents an A base.
	BaseA Base = iota
	// BaseC represents a C base.
	BaseC
	// BaseG represents a G base.
	BaseG
	// BaseT represents a T base.
	BaseT
	// BaseX is a catch-all for N and anything else.
	BaseX
)

const (
	// NBase is the number of regular base types.
	NBase = 4
	// NBaseEnum counts BaseX as well as the regular base types.
	NBaseEnum = 5
)

// EnumToASCIITable is the A/C/G/T/X -> ASCII mapping, with X rendered as 'N'.
var EnumToASCIITable = [...]byte{'A', 'C', 'G', 'T', 'N'}

// asciiToBase maps A, C, G, T (either case) to {0,1,2,3}. Other letters map
// to BaseX.
var asciiToBase = newASCIIToBase()

func newASCIIToBase() (t [256]Base) {
	for i := range t {
		t[i] = BaseX
	}
	for b, ch := range EnumToASCIITable[:NBase] {
		t[ch] = Base(b)
		t[ch|0x20] = Base(b)
	}
	return t
}

// BaseOf returns the enum value of an ASCII base.
func BaseOf(ch byte) Base { return asciiToBase[ch] }

// Byte returns the uppercase ASCII letter for b.
func (b Base) Byte() byte {
	if b > BaseX {
		return 'N'
	}
	return EnumToASCIITable[b]
}

// String implements fmt.Stringer.
func (b Base) String() string { return string(b.Byte()) }

// Complement returns the Watson-Crick complement of b. BaseX maps to itself.
func (b Base) Complement() Base {
	if b >= NBase {
		return BaseX
	}
	return NBase - 1 - b
}
