// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestStatsMerge(t *testing.T) {
	var a, b Stats
	a.Variants = 3
	a.Accepted = 1
	a.Rejected[RejectTooShort] = 2
	b.Variants = 4
	b.Splits = 1
	b.Rejected[RejectTooShort] = 1
	b.Rejected[RejectAbundantKmer] = 5
	b.LowConfidence = 2

	m := a.Merge(b)
	expect.EQ(t, m.Variants, 7)
	expect.EQ(t, m.Accepted, 1)
	expect.EQ(t, m.Splits, 1)
	expect.EQ(t, m.Rejected[RejectTooShort], 3)
	expect.EQ(t, m.TotalRejected(), 8)
	expect.EQ(t, m.LowConfidence, 2)
	// Merge does not modify its receiver.
	expect.EQ(t, a.Variants, 3)
}

func TestRejectReasonString(t *testing.T) {
	expect.EQ(t, RejectLowComplexity.String(), "low complexity")
	expect.EQ(t, RejectConsistency.String(), "consistency")
	expect.EQ(t, NumRejectReasons.String(), "reason(7)")
}
