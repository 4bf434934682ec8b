// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import (
	"context"
	"fmt"
	"os"
	"sort"
	"testing"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/crispr/dna"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	status := m.Run()
	shutdown()
	os.Exit(status)
}

const flankLength = 8

// makeRead returns read #i, which carries body between two flanks. The flank
// bases rotate with i so that no flank column is conserved across reads.
func makeRead(i int, body string) []byte {
	seq := make([]byte, 0, len(body)+2*flankLength)
	for j := 0; j < flankLength; j++ {
		seq = append(seq, "ACGT"[(i+j)%4])
	}
	seq = append(seq, body...)
	for j := 0; j < flankLength; j++ {
		seq = append(seq, "ACGT"[(i+j)%4])
	}
	return seq
}

type testData struct {
	store *StringStore
	reads *Registry
	n     int
}

func newTestData() *testData {
	return &testData{store: NewStringStore(), reads: NewRegistry()}
}

// add registers n reads carrying the variant dr and returns its token.
func (d *testData) add(dr string, n int) Token {
	tok := d.store.Intern(dr)
	for k := 0; k < n; k++ {
		d.addRead(tok, makeRead(d.n, dr), flankLength, flankLength+len(dr)-1)
	}
	return tok
}

func (d *testData) addRead(tok Token, seq []byte, ss ...int) *Read {
	r := &Read{Name: fmt.Sprintf("read%d", d.n), Seq: seq, StartStops: ss}
	d.n++
	d.reads.Add(tok, r)
	return r
}

func (d *testData) run(t *testing.T, opts Opts) Result {
	e, err := NewEngine(opts, d.store, d.reads)
	require.NoError(t, err)
	r, err := e.Run(context.Background())
	require.NoError(t, err)
	return r
}

func sortedRepeats(r Result) []string {
	var out []string
	for _, s := range r.Repeats {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func TestRunMajorityRepeat(t *testing.T) {
	const (
		major = "ACGTACGTACGTACGTACGTACG"
		minor = "ACGTATGTACGTACGTACGTACG"
	)
	d := newTestData()
	tm := d.add(major, 18)
	tv := d.add(minor, 2)
	opts := DefaultOpts
	// The variants share 11 kmers.
	opts.MinClusterMembership = 6

	r := d.run(t, opts)
	assert.Equal(t, map[GID]string{1: major}, r.Repeats)
	assert.Equal(t, map[GID][]Token{1: {tm, tv}}, r.Groups)
	assert.Equal(t, 0, r.Stats.Splits)
	assert.Equal(t, 2, r.Stats.Variants)
	assert.Equal(t, 1, r.Stats.InitialGroups)
	assert.Equal(t, 1, r.Stats.Accepted)
	assert.Equal(t, 0, r.Stats.TotalRejected())
	assert.Empty(t, r.Errors)
	assert.Equal(t, []string{major, minor, dna.ReverseComplement(major), dna.ReverseComplement(minor)}, r.NonRedundant)

	for _, tok := range []Token{tm, tv} {
		for _, read := range d.reads.Get(tok) {
			assert.Equal(t, []int{flankLength, flankLength + len(major) - 1}, read.StartStops)
			assert.False(t, read.Reversed)
		}
	}
}

func TestRunTwoRepeats(t *testing.T) {
	const (
		a = "AAAACCCCGGGG"
		b = "AAAATCCCGGGG"
	)
	d := newTestData()
	d.add(a, 10)
	d.add(b, 10)
	opts := DefaultOpts
	opts.MinRepeatLength = 12

	r := d.run(t, opts)
	// The two variants share a single kmer, so they are clustered apart.
	assert.Equal(t, 2, r.Stats.InitialGroups)
	assert.Equal(t, map[GID]string{1: a, 2: b}, r.Repeats)
	assert.Equal(t, 0, r.Stats.Splits)
}

func TestRunCollapsedGroup(t *testing.T) {
	const (
		a = "AAAACCCCGGGG"
		b = "AAAATCCCGGGG"
	)
	d := newTestData()
	ta := d.add(a, 10)
	tb := d.add(b, 10)
	opts := DefaultOpts
	opts.MinRepeatLength = 12
	opts.MinClusterMembership = 1

	r := d.run(t, opts)
	assert.Equal(t, 1, r.Stats.InitialGroups)
	assert.Equal(t, 1, r.Stats.Splits)
	// Group 1 is split into 2 (C) and 3 (T).
	assert.Equal(t, map[GID]string{2: a, 3: b}, r.Repeats)
	assert.Equal(t, map[GID][]Token{2: {ta}, 3: {tb}}, r.Groups)
}

func TestRunSplitDepth(t *testing.T) {
	d := newTestData()
	d.add("AAAACCCCGGGG", 10)
	d.add("AAAATCCCGGGG", 10)
	opts := DefaultOpts
	opts.MinRepeatLength = 12
	opts.MinClusterMembership = 1
	opts.MaxSplitDepth = 0

	r := d.run(t, opts)
	assert.Empty(t, r.Repeats)
	assert.Equal(t, 2, r.Stats.Rejected[RejectSplitDepth])
}

// Two alleles of a repeat plus a shorter variant that stops just after the
// position where they differ. The reads of the short variant must be divided
// between the two children.
func TestRunCollapsedGroupReadLevelSplit(t *testing.T) {
	const (
		x     = "GATTACAG"
		y     = "CCTTGCAACG"
		r1    = x + "C" + y
		r2    = x + "T" + y
		short = y
	)
	d := newTestData()
	store := d.store
	t1 := d.add(r1, 4)
	t2 := d.add(r2, 4)
	ts := store.Intern(short)
	var cReads, tReads []*Read
	for k := 0; k < 4; k++ {
		allele := "CT"[k%2 : k%2+1]
		seq := makeRead(d.n, x+allele+y)
		r := d.addRead(ts, seq, flankLength+len(x)+1, flankLength+len(x)+len(y))
		if allele == "C" {
			cReads = append(cReads, r)
		} else {
			tReads = append(tReads, r)
		}
	}

	opts := DefaultOpts
	opts.MinRepeatLength = 12
	e, err := NewEngine(opts, store, d.reads)
	require.NoError(t, err)
	gid := e.AddGroup([]Token{t1, t2, ts})
	require.NoError(t, e.ProcessGroup(gid))

	r := e.Result()
	assert.Equal(t, 1, r.Stats.Splits)
	assert.Equal(t, map[GID]string{gid + 1: dna.Laurenize(r1), gid + 2: dna.Laurenize(r2)}, r.Repeats)
	require.Len(t, r.Groups[gid+1], 2)
	require.Len(t, r.Groups[gid+2], 2)
	assert.Equal(t, t1, r.Groups[gid+1][0])
	assert.Equal(t, t2, r.Groups[gid+2][0])

	// The short variant was split into one fresh token per allele.
	cTok, tTok := r.Groups[gid+1][1], r.Groups[gid+2][1]
	assert.NotEqual(t, ts, cTok)
	assert.NotEqual(t, ts, tTok)
	assert.Equal(t, short, store.GetString(cTok))
	assert.Equal(t, short, store.GetString(tTok))
	assert.Equal(t, cReads, d.reads.Get(cTok))
	assert.Equal(t, tReads, d.reads.Get(tTok))
	assert.Empty(t, d.reads.Get(ts))

	// The canonical form of both repeats is the reverse complement, so the
	// reads were flipped. The flanks are symmetric, so the coordinates of the
	// whole repeat do not move.
	for _, read := range append(cReads, tReads...) {
		assert.True(t, read.Reversed)
		assert.Equal(t, []int{flankLength, flankLength + len(r1) - 1}, read.StartStops)
	}
	assert.Equal(t, []GID{gid + 1, gid + 2}, e.LiveGroups())
}

func TestRunLengthGates(t *testing.T) {
	const dr = "GATTACAGCTTGCAACGGTCATG"
	tests := []struct {
		min, max int
		reject   RejectReason
		accepted bool
	}{
		{len(dr), 45, 0, true},
		{len(dr) + 1, 45, RejectTooShort, false},
		{10, len(dr), 0, true},
		{10, len(dr) - 1, RejectTooLong, false},
	}
	for _, test := range tests {
		d := newTestData()
		d.add(dr, 3)
		opts := DefaultOpts
		opts.MinRepeatLength = test.min
		opts.MaxRepeatLength = test.max
		r := d.run(t, opts)
		if test.accepted {
			assert.Equal(t, []string{dna.Laurenize(dr)}, sortedRepeats(r), "%+v", test)
			continue
		}
		assert.Empty(t, r.Repeats, "%+v", test)
		assert.Equal(t, 1, r.Stats.Rejected[test.reject], "%+v", test)
	}
}

func TestRunContentGates(t *testing.T) {
	tests := []struct {
		dr     string
		reject RejectReason
	}{
		{"AAAAAAAAAAAATAAAAAAAAAA", RejectLowComplexity},
		// Two kmer classes alternate along a periodic repeat.
		{"ACGTACGTACGTACGTACGTACG", RejectAbundantKmer},
	}
	for _, test := range tests {
		d := newTestData()
		tok := d.add(test.dr, 3)
		r := d.run(t, DefaultOpts)
		assert.Empty(t, r.Repeats, test.dr)
		assert.Equal(t, 1, r.Stats.Rejected[test.reject], test.dr)
		// The reads of a rejected group are left alone.
		for _, read := range d.reads.Get(tok) {
			assert.Equal(t, []int{flankLength, flankLength + len(test.dr) - 1}, read.StartStops)
		}
	}
}

func TestRunPeriodicRepeat(t *testing.T) {
	const (
		major = "ACGTACGTACGTACGTACGTACG"
		minor = "ACGTATGTACGTACGTACGTACG"
	)
	opts := DefaultOpts
	opts.MinClusterMembership = 6

	// Alone, one kmer class fills 9 of the 17 windows of the group.
	d := newTestData()
	d.add(major, 18)
	r := d.run(t, opts)
	assert.Empty(t, r.Repeats)
	assert.Equal(t, 1, r.Stats.Rejected[RejectAbundantKmer])

	// The windows of the minor variant bring every class under half.
	d = newTestData()
	d.add(major, 18)
	d.add(minor, 2)
	r = d.run(t, opts)
	assert.Equal(t, []string{major}, sortedRepeats(r))
	assert.Equal(t, 0, r.Stats.TotalRejected())
}

func TestRunConsistencyError(t *testing.T) {
	d := newTestData()
	d.add("GATTACAGCTTGCAACGGTCATG", 3)
	opts := DefaultOpts
	opts.ReadLengthMultiplier = 1
	opts.MinCoverageLength = 10
	r := d.run(t, opts)
	assert.Empty(t, r.Repeats)
	assert.Equal(t, 1, r.Stats.Rejected[RejectConsistency])
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "coverage index")
	assert.Contains(t, r.Errors[0], "read0")
}

func TestRunMergesIdenticalRepeats(t *testing.T) {
	const dr = "GATTACAGCTTGCAACGGTCATG"
	d := newTestData()
	t1 := d.add(dr, 3)
	t2 := d.add(dna.ReverseComplement(dr), 3)
	opts := DefaultOpts
	// Every variant forms its own group.
	opts.MinClusterMembership = 100

	r := d.run(t, opts)
	assert.Equal(t, 2, r.Stats.InitialGroups)
	assert.Equal(t, 1, r.Stats.Merged)
	assert.Equal(t, map[GID]string{1: dna.Laurenize(dr)}, r.Repeats)
	assert.Equal(t, map[GID][]Token{1: {t1, t2}}, r.Groups)
	for _, read := range d.reads.Get(t1) {
		assert.True(t, read.Reversed)
	}
	for _, read := range d.reads.Get(t2) {
		assert.False(t, read.Reversed)
	}
}

func TestRunUnplaceableVariant(t *testing.T) {
	const (
		master = "TGGCAATTGAATCGTACG"
		// A palindrome with no room around it in its read.
		palindrome = "CAATTG"
	)
	d := newTestData()
	tm := d.add(master, 3)
	tp := d.store.Intern(palindrome)
	d.addRead(tp, []byte(palindrome+"AA"), 0, 5)

	opts := DefaultOpts
	opts.MinRepeatLength = 10
	e, err := NewEngine(opts, d.store, d.reads)
	require.NoError(t, err)
	gid := e.AddGroup([]Token{tm, tp})
	require.NoError(t, e.ProcessGroup(gid))
	r := e.Result()
	assert.Equal(t, 1, r.Stats.Unplaceable)
	assert.Equal(t, map[GID][]Token{gid: {tm}}, r.Groups)
	assert.Empty(t, d.reads.Get(tp))
}

func TestRunReversedVariant(t *testing.T) {
	const dr = "GATTACAGCTTGCAACGGTCATG"
	d := newTestData()
	tm := d.add(dr, 3)
	// A shorter variant found on the other strand.
	part := dna.ReverseComplement(dr[2:20])
	tp := d.add(part, 3)

	e, err := NewEngine(DefaultOpts, d.store, d.reads)
	require.NoError(t, err)
	gid := e.AddGroup([]Token{tm, tp})
	require.NoError(t, e.ProcessGroup(gid))
	r := e.Result()
	require.Equal(t, map[GID]string{gid: dna.Laurenize(dr)}, r.Repeats)
	toks := r.Groups[gid]
	require.Len(t, toks, 2)
	assert.Equal(t, tm, toks[0])
	// The variant was replaced by a token for its reverse complement.
	assert.Equal(t, dr[2:20], d.store.GetString(toks[1]))
	assert.Empty(t, d.reads.Get(tp))
	for _, read := range d.reads.Get(toks[1]) {
		// Flipped once to match the master, then once more because the
		// canonical repeat is the reverse complement of the consensus.
		assert.False(t, read.Reversed)
		assert.Equal(t, []int{flankLength - 3, flankLength - 3 + len(dr) - 1}, read.StartStops)
	}
	assert.Error(t, e.ProcessGroup(GID(99)))
}

func TestRunRejectedGroupKeepsReads(t *testing.T) {
	const dr = "GATTACAGCTTGCAACGGTCATG"
	type snapshot struct {
		seq        string
		startStops []int
	}
	save := func(reads []*Read) []snapshot {
		var out []snapshot
		for _, r := range reads {
			out = append(out, snapshot{string(r.Seq), append([]int(nil), r.StartStops...)})
		}
		return out
	}

	d := newTestData()
	tm := d.add(dr, 3)
	// Placed as its reverse complement.
	tp := d.add(dna.ReverseComplement(dr[2:20]), 3)
	masterReads, partReads := save(d.reads.Get(tm)), save(d.reads.Get(tp))
	nStrings := d.store.Len()

	opts := DefaultOpts
	opts.MinRepeatLength = 40
	e, err := NewEngine(opts, d.store, d.reads)
	require.NoError(t, err)
	gid := e.AddGroup([]Token{tm, tp})
	require.NoError(t, e.ProcessGroup(gid))
	r := e.Result()
	assert.Empty(t, r.Repeats)
	assert.Equal(t, 1, r.Stats.Rejected[RejectTooShort])

	assert.Equal(t, nStrings, d.store.Len())
	assert.Equal(t, masterReads, save(d.reads.Get(tm)))
	assert.Equal(t, partReads, save(d.reads.Get(tp)))
	for _, read := range d.reads.Get(tp) {
		assert.False(t, read.Reversed)
	}
}

func TestRunRejectedGroupKeepsUnplaceableReads(t *testing.T) {
	const (
		master     = "TGGCAATTGAATCGTACG"
		palindrome = "CAATTG"
	)
	d := newTestData()
	tm := d.add(master, 3)
	tp := d.store.Intern(palindrome)
	d.addRead(tp, []byte(palindrome+"AA"), 0, 5)

	opts := DefaultOpts
	opts.MinRepeatLength = 40
	e, err := NewEngine(opts, d.store, d.reads)
	require.NoError(t, err)
	gid := e.AddGroup([]Token{tm, tp})
	require.NoError(t, e.ProcessGroup(gid))
	r := e.Result()
	assert.Empty(t, r.Repeats)
	assert.Equal(t, 1, r.Stats.Unplaceable)
	assert.Equal(t, 1, r.Stats.Rejected[RejectTooShort])
	require.Len(t, d.reads.Get(tp), 1)
	assert.Equal(t, []int{0, 5}, d.reads.Get(tp)[0].StartStops)
}

func TestRunLowConfidence(t *testing.T) {
	const dr = "GATTACAGCTTGCAACGGTCATG"
	d := newTestData()
	d.add(dr, 1)
	r := d.run(t, DefaultOpts)
	// No position reaches the minimum depth, so the master span is kept as
	// is.
	assert.Equal(t, []string{dna.Laurenize(dr)}, sortedRepeats(r))
	assert.Equal(t, 1, r.Stats.LowConfidence)

	d = newTestData()
	d.add(dr, 3)
	assert.Equal(t, 0, d.run(t, DefaultOpts).Stats.LowConfidence)
}

func TestRunReleasesKmerTables(t *testing.T) {
	d := newTestData()
	d.add("GATTACAGCTTGCAACGGTCATG", 5)
	d.add("TTGACCGATAGGCATCCAGT", 5)
	d.add("AAAACCCCGGGG", 10)
	d.add("AAAATCCCGGGG", 10)
	opts := DefaultOpts
	opts.MinRepeatLength = 12
	opts.MinClusterMembership = 1
	e, err := NewEngine(opts, d.store, d.reads)
	require.NoError(t, err)
	r, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, r.Repeats)
	assert.Empty(t, e.clusterer.tables)
	for _, gid := range e.LiveGroups() {
		g, ok := e.table.get(gid)
		require.True(t, ok)
		assert.Nil(t, g.kmers, "group %d", gid)
	}
}

func TestRunParallel(t *testing.T) {
	build := func() *testData {
		d := newTestData()
		d.add("ACGTACGTACGTACGTACGTACG", 18)
		d.add("ACGTATGTACGTACGTACGTACG", 2)
		d.add("AAAACCCCGGGG", 10)
		d.add("AAAATCCCGGGG", 10)
		d.add("GATTACAGCTTGCAACGGTCATG", 5)
		d.add("TTGACCGATAGGCATCCAGT", 5)
		return d
	}
	opts := DefaultOpts
	opts.MinRepeatLength = 12
	opts.MinClusterMembership = 6
	seq := build().run(t, opts)
	for _, parallelism := range []int{2, 4, 16} {
		opts.Parallelism = parallelism
		par := build().run(t, opts)
		assert.Equal(t, sortedRepeats(seq), sortedRepeats(par), "parallelism %d", parallelism)
		assert.Equal(t, seq.Stats, par.Stats, "parallelism %d", parallelism)
	}
	assert.Len(t, seq.Repeats, 5)

	// Sequential runs are reproducible, ids included.
	opts.Parallelism = 1
	assert.Equal(t, seq.Repeats, build().run(t, opts).Repeats)
}

func TestRunCanceled(t *testing.T) {
	d := newTestData()
	d.add("GATTACAGCTTGCAACGGTCATG", 3)
	e, err := NewEngine(DefaultOpts, d.store, d.reads)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Run(ctx)
	assert.Error(t, err)
}

func TestNewEngineInvalidOpts(t *testing.T) {
	opts := DefaultOpts
	opts.KmerLength = 0
	_, err := NewEngine(opts, NewStringStore(), NewRegistry())
	assert.Error(t, err)

	d := newTestData()
	d.add("ACG", 1)
	e, err := NewEngine(DefaultOpts, d.store, d.reads)
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.Error(t, err)
}
