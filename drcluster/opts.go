// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/crispr/dna"
)

// Opts holds the thresholds used while clustering direct repeat variants and
// calling the true repeat of each cluster.
type Opts struct {
	// MinRepeatLength and MaxRepeatLength bound the length of an accepted
	// consensus repeat (inclusive).
	MinRepeatLength int
	MaxRepeatLength int

	// KmerLength is the width of the window used to cluster variants.
	KmerLength int
	// MinClusterMembership is the number of kmers a variant must share with an
	// existing group to join it. With the default kmer length, a 23 base
	// variant with one mismatch shares at most 10 kmers with the original, so
	// such pairs are only clustered together below 11.
	MinClusterMembership int

	// MinReadDepth is the minimum coverage at a position for its conservation to
	// be computed. Positions with less coverage have conservation 0.
	MinReadDepth int
	// ZoneExtensionCutoff is the conservation needed to grow the repeat zone
	// over a position.
	ZoneExtensionCutoff float64
	// CollapseCutoff is the conservation below which a position in the zone is
	// inspected for a collapsed cluster.
	CollapseCutoff float64
	// MinBaseShare is the fraction of the depth at a position a base must reach
	// to be considered one of the alleles of a collapsed cluster.
	MinBaseShare float64

	// LowComplexityFraction rejects a consensus whose two most frequent bases
	// make up more than this fraction of it.
	LowComplexityFraction float64
	// KmerAbundanceCeiling rejects a consensus that contains a kmer whose
	// frequency in the group kmer table exceeds this value. The table counts
	// every kmer window of every variant of the group, so the frequency of a
	// kmer is the share of windows that carry it. 0.5 rejects repeats in which
	// one kmer class fills more than half of the windows, as happens for a
	// run of ACGT where two canonical kmers alternate. Other variants of the
	// group dilute the table, so a periodic consensus can pass when enough
	// other variants were clustered with it.
	KmerAbundanceCeiling float64

	// The coverage matrix is max(ReadLengthMultiplier*longest read,
	// MinCoverageLength) positions wide. The master variant is placed at
	// CoverageStart*width.
	ReadLengthMultiplier int
	MinCoverageLength    int
	CoverageStart        float64

	// Alignment scoring. A gap of length k costs GapOpen+k*GapExtend.
	MatchScore    int
	MismatchScore int
	GapOpen       int
	GapExtend     int
	// BandPadding is added to the length difference of the two sequences to
	// form the alignment band.
	BandPadding int
	// TieBreakFlank is the number of read bases added on each side of a
	// variant when the forward and reverse alignments score the same.
	TieBreakFlank int
	// MinAlignmentScore is the lowest score that places a variant.
	MinAlignmentScore int

	// MaxSplitDepth caps the number of times a group may be split because of a
	// collapsed position.
	MaxSplitDepth int

	// Parallelism is the number of workers processing groups.
	Parallelism int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	MinRepeatLength:       23,   // Go: -min-dr
	MaxRepeatLength:       45,   // Go: -max-dr
	KmerLength:            7,    // Go: -k
	MinClusterMembership:  12,   // Go: -min-cluster
	MinReadDepth:          2,    // Go: -min-read-depth
	ZoneExtensionCutoff:   0.55, // Go: -zone-extension-cutoff
	CollapseCutoff:        0.75, // Go: -collapse-cutoff
	MinBaseShare:          0.30, // Go: -min-base-share
	LowComplexityFraction: 0.75, // Go: -low-complexity
	KmerAbundanceCeiling:  0.5,  // Go: -max-kmer-abundance
	ReadLengthMultiplier:  4,
	MinCoverageLength:     1200,
	CoverageStart:         0.5,
	MatchScore:            1,
	MismatchScore:         -3,
	GapOpen:               5,
	GapExtend:             2,
	BandPadding:           16,
	TieBreakFlank:         2,
	MinAlignmentScore:     1,  // Go: -min-alignment-score
	MaxSplitDepth:         16, // Go: -max-split-depth
	Parallelism:           1,  // Go: -parallelism
}

// Validate checks that the options are usable.
func (o Opts) Validate() error {
	switch {
	case o.KmerLength <= 0 || o.KmerLength > dna.MaxKmerLength:
		return errors.E(errors.Invalid, fmt.Sprintf("kmer length %d out of range [1,%d]", o.KmerLength, dna.MaxKmerLength))
	case o.MinClusterMembership <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("min cluster membership %d must be positive", o.MinClusterMembership))
	case o.MinRepeatLength <= 0 || o.MaxRepeatLength < o.MinRepeatLength:
		return errors.E(errors.Invalid, fmt.Sprintf("bad repeat length range [%d,%d]", o.MinRepeatLength, o.MaxRepeatLength))
	case o.ReadLengthMultiplier <= 0 || o.MinCoverageLength <= 0:
		return errors.E(errors.Invalid, "coverage width must be positive")
	case o.CoverageStart < 0 || o.CoverageStart >= 1:
		return errors.E(errors.Invalid, fmt.Sprintf("coverage start %v must be in [0,1)", o.CoverageStart))
	case o.GapOpen < 0 || o.GapExtend < 0:
		return errors.E(errors.Invalid, "gap penalties must not be negative")
	case o.TieBreakFlank < 0:
		return errors.E(errors.Invalid, "tie break flank must not be negative")
	}
	return nil
}

// coverageLength returns the width of the coverage matrix for reads no longer
// than maxReadLength.
func (o Opts) coverageLength(maxReadLength int) int {
	if n := o.ReadLengthMultiplier * maxReadLength; n > o.MinCoverageLength {
		return n
	}
	return o.MinCoverageLength
}

func (o Opts) alignOpts() AlignOpts {
	return AlignOpts{
		MatchScore:    o.MatchScore,
		MismatchScore: o.MismatchScore,
		GapOpen:       o.GapOpen,
		GapExtend:     o.GapExtend,
		BandPadding:   o.BandPadding,
	}
}
