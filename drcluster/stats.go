// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import "fmt"

// RejectReason tells why a group was discarded.
type RejectReason int

const (
	// RejectTooLong means the consensus exceeds Opts.MaxRepeatLength.
	RejectTooLong RejectReason = iota
	// RejectTooShort means the consensus is below Opts.MinRepeatLength.
	RejectTooShort
	// RejectLowComplexity means the consensus is dominated by two bases.
	RejectLowComplexity
	// RejectAbundantKmer means a kmer of the consensus is too frequent in the
	// group.
	RejectAbundantKmer
	// RejectNoMaster means the group had no variant left.
	RejectNoMaster
	// RejectSplitDepth means the group was split too many times.
	RejectSplitDepth
	// RejectConsistency means the coverage frame overflowed.
	RejectConsistency
	// NumRejectReasons is the number of reasons.
	NumRejectReasons
)

var rejectReasonNames = [...]string{
	"too long",
	"too short",
	"low complexity",
	"abundant kmer",
	"no master",
	"split depth",
	"consistency",
}

func (r RejectReason) String() string {
	if r < 0 || r >= NumRejectReasons {
		return fmt.Sprintf("reason(%d)", int(r))
	}
	return rejectReasonNames[r]
}

// Stats counts what happened during a run.
type Stats struct {
	// Variants is the # of variants clustered.
	Variants int
	// InitialGroups is the # of groups created by the clustering.
	InitialGroups int
	// Accepted is the # of groups whose repeat was accepted, before merging.
	Accepted int
	// Rejected[r] is the # of groups discarded for reason r.
	Rejected [NumRejectReasons]int
	// Splits is the # of groups split because of a collapsed position.
	Splits int
	// Unplaceable is the # of variants that could not be aligned to their
	// master.
	Unplaceable int
	// DroppedTokens is the # of variants dropped while splitting a group.
	DroppedTokens int
	// Merged is the # of accepted groups folded into an earlier group with the
	// same repeat.
	Merged int
	// LowConfidence is the # of groups whose zone had too few positions
	// covered by Opts.MinReadDepth reads to be trimmed.
	LowConfidence int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Variants += o.Variants
	s.InitialGroups += o.InitialGroups
	s.Accepted += o.Accepted
	for i, n := range o.Rejected {
		s.Rejected[i] += n
	}
	s.Splits += o.Splits
	s.Unplaceable += o.Unplaceable
	s.DroppedTokens += o.DroppedTokens
	s.Merged += o.Merged
	s.LowConfidence += o.LowConfidence
	return s
}

// TotalRejected returns the # of groups rejected for any reason.
func (s Stats) TotalRejected() int {
	n := 0
	for _, v := range s.Rejected {
		n += v
	}
	return n
}
