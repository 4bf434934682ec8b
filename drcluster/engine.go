// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/crispr/dna"
)

// group is a live cluster of variants.
type group struct {
	tokens []Token
	// kmers counts the kmers of the variants clustered into the group. Groups
	// created by a split share the table of their ancestor. It may be nil.
	kmers *kmerTable
	// depth is the # of splits that led to the group.
	depth int
}

// groupTable owns every live group. A token belongs to at most one group.
// The table is shared by the workers; a group itself is only touched by the
// worker that processes it.
type groupTable struct {
	mu     sync.Mutex
	groups map[GID]*group
	owner  map[Token]GID
}

func (t *groupTable) add(gid GID, g *group) {
	t.mu.Lock()
	t.groups[gid] = g
	for _, tok := range g.tokens {
		t.owner[tok] = gid
	}
	t.mu.Unlock()
}

func (t *groupTable) get(gid GID) (*group, bool) {
	t.mu.Lock()
	g, ok := t.groups[gid]
	t.mu.Unlock()
	return g, ok
}

// remove deletes the group. Its tokens no longer belong to any group.
func (t *groupTable) remove(gid GID) {
	t.mu.Lock()
	if g, ok := t.groups[gid]; ok {
		for _, tok := range g.tokens {
			if t.owner[tok] == gid {
				delete(t.owner, tok)
			}
		}
		delete(t.groups, gid)
	}
	t.mu.Unlock()
}

func (t *groupTable) release(tok Token) {
	t.mu.Lock()
	delete(t.owner, tok)
	t.mu.Unlock()
}

func (t *groupTable) setOwner(tok Token, gid GID) {
	t.mu.Lock()
	t.owner[tok] = gid
	t.mu.Unlock()
}

func (t *groupTable) ownerOf(tok Token) (GID, bool) {
	t.mu.Lock()
	gid, ok := t.owner[tok]
	t.mu.Unlock()
	return gid, ok
}

func (t *groupTable) gids() []GID {
	t.mu.Lock()
	gids := make([]GID, 0, len(t.groups))
	for gid := range t.groups {
		gids = append(gids, gid)
	}
	t.mu.Unlock()
	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })
	return gids
}

// Result is the outcome of Engine.Run.
type Result struct {
	// Repeats maps every accepted group to its repeat, in canonical
	// orientation.
	Repeats map[GID]string
	// Groups maps every accepted group to its variants.
	Groups map[GID][]Token
	// NonRedundant lists the variants of the initial groups that contain no
	// shorter variant of their group, followed by their reverse complements.
	NonRedundant []string
	Stats        Stats
	// Errors lists the consistency errors that caused groups to be dropped.
	Errors []string
}

// Engine clusters the variants of a store and calls the repeat of each
// cluster. The reads of the registry are rewritten in place.
type Engine struct {
	opts    Opts
	store   SequenceStore
	reads   ReadRegistry
	aligner Aligner

	gids         GIDCounter
	clusterer    *Clusterer
	table        groupTable
	roots        []GID
	coveragePool sync.Pool

	mu       sync.Mutex
	repeats  map[GID]string
	accepted map[GID][]Token
	errs     []string
	stats    Stats
}

// NewEngine creates an engine over the given variants and reads.
func NewEngine(opts Opts, store SequenceStore, reads ReadRegistry) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		opts:     opts,
		store:    store,
		reads:    reads,
		aligner:  NewAffineAligner(opts.alignOpts()),
		table:    groupTable{groups: map[GID]*group{}, owner: map[Token]GID{}},
		repeats:  map[GID]string{},
		accepted: map[GID][]Token{},
	}
	e.clusterer = NewClusterer(opts, &e.gids)
	return e, nil
}

// SetAligner replaces the aligner used to place variants.
func (e *Engine) SetAligner(a Aligner) { e.aligner = a }

// Cluster groups every variant of the registry, in ascending token order.
func (e *Engine) Cluster() error {
	toks := e.reads.Tokens()
	for _, tok := range toks {
		if _, err := e.clusterer.Add(tok, e.store.GetString(tok)); err != nil {
			return errors.E(err, "clustering")
		}
	}
	for _, gid := range e.clusterer.GIDs() {
		e.table.add(gid, &group{
			tokens: append([]Token(nil), e.clusterer.Members(gid)...),
			kmers:  e.clusterer.takeTable(gid),
		})
		e.roots = append(e.roots, gid)
	}
	e.mu.Lock()
	e.stats.Variants += len(toks)
	e.stats.InitialGroups += len(e.clusterer.GIDs())
	e.mu.Unlock()
	log.Printf("clustered %d variants into %d groups", len(toks), len(e.clusterer.GIDs()))
	return nil
}

// AddGroup registers the given variants as a new group, bypassing the
// clustering. The group has no kmer table.
func (e *Engine) AddGroup(toks []Token) GID {
	gid := e.gids.Next()
	e.table.add(gid, &group{tokens: append([]Token(nil), toks...)})
	e.roots = append(e.roots, gid)
	return gid
}

// Run clusters the variants, then processes every group until it is accepted
// or rejected. Root groups are spread over opts.Parallelism workers; a worker
// also processes the groups split from its roots.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if err := e.Cluster(); err != nil {
		return Result{}, err
	}
	nonRedundant := NonRedundantSet(e.store, e.clusterer.GIDs(), e.clusterer.Members)
	roots := e.roots

	nWorkers := e.opts.Parallelism
	if nWorkers > len(roots) {
		nWorkers = len(roots)
	}
	if nWorkers < 1 {
		nWorkers = 1
	}
	workerStats := make([]Stats, nWorkers)
	err := traverse.Each(nWorkers, func(w int) error {
		for i := w; i < len(roots); i += nWorkers {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.processTree(roots[i], &workerStats[w])
		}
		return nil
	})
	var stats Stats
	for _, s := range workerStats {
		stats = stats.Merge(s)
	}
	e.mu.Lock()
	e.stats = e.stats.Merge(stats)
	e.mu.Unlock()
	if err != nil {
		return Result{}, err
	}
	e.mergeIdentical()
	r := e.Result()
	r.NonRedundant = nonRedundant
	log.Printf("accepted %d repeats, rejected %d groups, %d splits",
		len(r.Repeats), r.Stats.TotalRejected(), r.Stats.Splits)
	return r, nil
}

// ProcessGroup processes gid and every group split from it.
func (e *Engine) ProcessGroup(gid GID) error {
	if _, ok := e.table.get(gid); !ok {
		return errors.E(errors.NotExist, fmt.Sprintf("group %d", gid))
	}
	var stats Stats
	e.processTree(gid, &stats)
	e.mu.Lock()
	e.stats = e.stats.Merge(stats)
	e.mu.Unlock()
	return nil
}

// Result returns the accepted groups so far.
func (e *Engine) Result() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := Result{
		Repeats: make(map[GID]string, len(e.repeats)),
		Groups:  make(map[GID][]Token, len(e.accepted)),
		Stats:   e.stats,
		Errors:  append([]string(nil), e.errs...),
	}
	for gid, s := range e.repeats {
		r.Repeats[gid] = s
	}
	for gid, toks := range e.accepted {
		r.Groups[gid] = append([]Token(nil), toks...)
	}
	return r
}

// LiveGroups returns the groups currently in the table, in ascending order.
func (e *Engine) LiveGroups() []GID { return e.table.gids() }

// processTree runs a FIFO queue of groups seeded with root.
func (e *Engine) processTree(root GID, stats *Stats) {
	queue := []GID{root}
	for len(queue) > 0 {
		gid := queue[0]
		queue = queue[1:]
		queue = append(queue, e.processGroup(gid, stats)...)
	}
}

func (e *Engine) reject(gid GID, reason RejectReason, stats *Stats) {
	e.table.remove(gid)
	stats.Rejected[reason]++
}

// processGroup calls the repeat of one group. It returns the groups created
// when the group is split.
func (e *Engine) processGroup(gid GID, stats *Stats) []GID {
	g, ok := e.table.get(gid)
	if !ok {
		return nil
	}
	if g.depth > e.opts.MaxSplitDepth {
		log.Printf("group %d: split %d times, giving up", gid, g.depth)
		e.reject(gid, RejectSplitDepth, stats)
		return nil
	}
	// The kmer table is only needed until the consensus is settled. Split
	// children keep their own reference.
	defer func() { g.kmers = nil }()
	master, masterSeq, ok := FindMaster(e.store, g.tokens)
	if !ok {
		log.Printf("group %d: no master variant", gid)
		e.reject(gid, RejectNoMaster, stats)
		return nil
	}
	log.Debug.Printf("group %d: %d variants, master %s", gid, len(g.tokens), masterSeq)

	length := e.opts.coverageLength(e.reads.MaxReadLength())
	masterOffset := int(float64(length) * e.opts.CoverageStart)
	cov := e.getCoverage(length)
	defer e.coveragePool.Put(cov)

	variants, unplaced := e.placeVariants(gid, g, master, masterSeq, masterOffset, stats)
	if err := e.accumulate(gid, master, variants, cov); err != nil {
		log.Error.Printf("group %d: %v", gid, err)
		e.mu.Lock()
		e.errs = append(e.errs, err.Error())
		e.mu.Unlock()
		e.reject(gid, RejectConsistency, stats)
		return nil
	}
	cov.computeConsensus(e.opts.MinReadDepth)
	zs, ze, confident := cov.refineZone(masterOffset, masterOffset+len(masterSeq)-1, e.opts)
	if !confident {
		log.Printf("group %d: low confidence repeat, %d positions reach depth %d", gid, cov.supported, e.opts.MinReadDepth)
		stats.LowConfidence++
	}
	if log.At(log.Debug) {
		log.Debug.Printf("group %d: %s", gid, cov.dump(zs, ze, 4))
	}
	call := cov.classifyZone(zs, ze, variants, e.opts)
	if call.collapsed() {
		stats.Splits++
		e.commit(gid, g, variants, unplaced)
		return e.split(gid, g, variants, call, stats)
	}
	if reason, rejected := e.check(call.repeat, g.kmers); rejected {
		log.Printf("group %d: rejecting %s: %v", gid, call.repeat, reason)
		e.reject(gid, reason, stats)
		return nil
	}
	e.commit(gid, g, variants, unplaced)
	e.accept(gid, g, variants, zs, call.repeat)
	stats.Accepted++
	return nil
}

// placeVariants aligns every variant of the group to the master. A variant
// that aligns better reversed is placed as its reverse complement, along with
// flipped copies of its reads. It returns the placed variants in group order
// and the variants that could not be placed. The registry is not modified
// until commit.
func (e *Engine) placeVariants(gid GID, g *group, master Token, masterSeq string, masterOffset int, stats *Stats) ([]variantSpan, []Token) {
	variants := make([]variantSpan, 0, len(g.tokens))
	var unplaced []Token
	for _, tok := range g.tokens {
		seq := e.store.GetString(tok)
		reads := e.reads.Get(tok)
		if tok == master {
			variants = append(variants, variantSpan{tok: tok, seq: seq, offset: masterOffset, reads: reads})
			continue
		}
		p, ok := OffsetAgainstMaster(e.aligner, e.opts, masterSeq, seq, reads)
		if !ok {
			log.Printf("group %d: unplaceable variant %s", gid, seq)
			unplaced = append(unplaced, tok)
			stats.Unplaceable++
			continue
		}
		v := variantSpan{tok: tok, seq: seq, offset: masterOffset + p.Offset, reads: reads}
		if p.Reversed {
			v.seq = dna.ReverseComplement(seq)
			v.reversed = true
			v.reads = make([]*Read, len(reads))
			for i, r := range reads {
				v.reads[i] = r.flipped()
			}
		}
		variants = append(variants, v)
	}
	return variants, unplaced
}

// commit writes the placement of a group that is kept, by a split or by
// acceptance, to the registry. Unplaced variants leave the group and their
// reads are deleted. A reversed variant is replaced by a new token for its
// reverse complement, which takes over its reads, flipped in place. A group
// that is rejected is never committed, so its reads stay as they were.
func (e *Engine) commit(gid GID, g *group, variants []variantSpan, unplaced []Token) {
	for _, tok := range unplaced {
		e.reads.Delete(tok)
		e.table.release(tok)
	}
	toks := make([]Token, len(variants))
	for i := range variants {
		v := &variants[i]
		if v.reversed {
			reads := e.reads.Get(v.tok)
			for _, r := range reads {
				r.ReverseComplement()
			}
			tok := e.store.AddString(v.seq)
			e.reads.Set(tok, reads)
			e.reads.Delete(v.tok)
			e.table.release(v.tok)
			e.table.setOwner(tok, gid)
			v.tok, v.reads, v.reversed = tok, reads, false
		}
		toks[i] = v.tok
	}
	g.tokens = toks
}

// accumulate adds the reads of the placed variants to the coverage matrix.
// The reads of the master count once each, at their first full length
// occurrence. The reads of the other variants count once per full length
// occurrence.
func (e *Engine) accumulate(gid GID, master Token, variants []variantSpan, cov *coverage) error {
	for _, v := range variants {
		n := len(v.seq)
		for _, r := range v.reads {
			add := func(i int) error {
				if err := cov.addRead(r.Seq, v.offset-r.Start(i)); err != nil {
					return errors.E(err, fmt.Sprintf("group %d variant %d read %s", gid, v.tok, r.Name))
				}
				return nil
			}
			if v.tok == master {
				if i := r.firstFull(n); i >= 0 {
					if err := add(i); err != nil {
						return err
					}
				}
				continue
			}
			for i := 0; i < r.NumRepeats(); i++ {
				if !r.isFull(i, n) {
					continue
				}
				if err := add(i); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// check applies the acceptance gates to a repeat.
func (e *Engine) check(repeat string, table *kmerTable) (RejectReason, bool) {
	switch {
	case len(repeat) > e.opts.MaxRepeatLength:
		return RejectTooLong, true
	case len(repeat) < e.opts.MinRepeatLength:
		return RejectTooShort, true
	case dna.IsLowComplexity(repeat, e.opts.LowComplexityFraction):
		return RejectLowComplexity, true
	case e.hasAbundantKmer(repeat, table):
		return RejectAbundantKmer, true
	}
	return 0, false
}

// hasAbundantKmer reports whether a kmer of repeat makes up more than
// opts.KmerAbundanceCeiling of the table. Without a table, the kmers of
// repeat itself are counted.
func (e *Engine) hasAbundantKmer(repeat string, table *kmerTable) bool {
	kmers := dna.CanonicalKmers(repeat, e.opts.KmerLength)
	if table == nil {
		table = newKmerTable()
		for _, km := range kmers {
			table.add(km)
		}
	}
	for _, km := range kmers {
		if f := table.frequency(km); f > e.opts.KmerAbundanceCeiling {
			log.Debug.Printf("repeat %s: kmer %s makes up %.2f of the group", repeat, dna.KmerString(km, e.opts.KmerLength), f)
			return true
		}
	}
	return false
}

// accept records the repeat of the group and moves the occurrences of every
// read to the frame of the repeat. Reads are flipped when the canonical form
// of the repeat is its reverse complement.
func (e *Engine) accept(gid GID, g *group, variants []variantSpan, zoneStart int, repeat string) {
	flip := !dna.IsLaurenized(repeat)
	canonical := repeat
	if flip {
		canonical = dna.ReverseComplement(repeat)
	}
	for _, v := range variants {
		for _, r := range v.reads {
			r.UpdateStartStops(v.offset-zoneStart, len(v.seq), repeat)
			if flip {
				r.ReverseComplement()
			}
		}
	}
	log.Debug.Printf("group %d: accepted %s", gid, canonical)
	e.mu.Lock()
	e.repeats[gid] = canonical
	e.accepted[gid] = append([]Token(nil), g.tokens...)
	e.mu.Unlock()
}

// mergeIdentical folds accepted groups with the same repeat into the one
// with the lowest id.
func (e *Engine) mergeIdentical() {
	e.mu.Lock()
	defer e.mu.Unlock()
	gids := make([]GID, 0, len(e.repeats))
	for gid := range e.repeats {
		gids = append(gids, gid)
	}
	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })
	first := map[string]GID{}
	for _, gid := range gids {
		repeat := e.repeats[gid]
		into, ok := first[repeat]
		if !ok {
			first[repeat] = gid
			continue
		}
		toks := e.accepted[gid]
		e.accepted[into] = append(e.accepted[into], toks...)
		if g, ok := e.table.get(into); ok {
			e.table.remove(gid)
			g.tokens = append(g.tokens, toks...)
			for _, tok := range toks {
				e.table.setOwner(tok, into)
			}
		}
		delete(e.repeats, gid)
		delete(e.accepted, gid)
		e.stats.Merged++
		log.Debug.Printf("group %d: merged into %d (%s)", gid, into, repeat)
	}
}
