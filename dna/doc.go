// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package dna provides the small set of nucleotide primitives used by the
// direct-repeat caller: the A/C/G/T/X base enum, reverse complements, the
// strand-independent ("laurenized") form of a sequence, 2-bit k-mers and base
// composition tests.
//
// All functions operate on ASCII encoded sequences.  Lowercase acgt are
// accepted wherever uppercase is; anything else is treated as an ambiguous
// base.
package dna
