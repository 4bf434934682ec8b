// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import (
	"fmt"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/crispr/dna"
)

// GID identifies a group of variants.
type GID int

// GIDCounter hands out group ids. It is shared by the clustering and every
// later split, so ids are never reused. It is safe for concurrent use.
type GIDCounter struct {
	last int64
}

// Next returns the next unused id. The first id is 1.
func (c *GIDCounter) Next() GID { return GID(atomic.AddInt64(&c.last, 1)) }

// kmerTable counts the canonical kmers of the variants of a group.
type kmerTable struct {
	counts map[dna.Kmer]int
	total  int
}

func newKmerTable() *kmerTable { return &kmerTable{counts: map[dna.Kmer]int{}} }

func (t *kmerTable) add(km dna.Kmer) {
	t.counts[km]++
	t.total++
}

// frequency returns the share of the kmers of the table that are km.
func (t *kmerTable) frequency(km dna.Kmer) float64 {
	if t.total == 0 {
		return 0
	}
	return float64(t.counts[km]) / float64(t.total)
}

// Clusterer assigns variants to groups by the canonical kmers they share with
// the variants already clustered.
type Clusterer struct {
	opts     Opts
	gids     *GIDCounter
	kmerizer *dna.Kmerizer

	// kmerGroup maps a canonical kmer to the group that first contained it.
	kmerGroup map[dna.Kmer]GID
	tables    map[GID]*kmerTable
	members   map[GID][]Token
	order     []GID
}

// NewClusterer creates an empty clusterer that takes new ids from gids.
func NewClusterer(opts Opts, gids *GIDCounter) *Clusterer {
	return &Clusterer{
		opts:      opts,
		gids:      gids,
		kmerizer:  dna.NewKmerizer(opts.KmerLength),
		kmerGroup: map[dna.Kmer]GID{},
		tables:    map[GID]*kmerTable{},
		members:   map[GID][]Token{},
	}
}

// Add clusters the variant seq, named tok, and returns its group.
//
// For every kmer of seq already seen, the group that owns the kmer gets a
// hit. The first group whose hits reach opts.MinClusterMembership, scanning
// seq left to right, is adopted. Otherwise a new group is created. The kmers
// of seq that were never seen before are then assigned to the chosen group.
func (c *Clusterer) Add(tok Token, seq string) (GID, error) {
	if len(seq) < c.opts.KmerLength {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("variant %s (token %d) is shorter than the kmer length %d", seq, tok, c.opts.KmerLength))
	}
	var kmers []dna.Kmer
	c.kmerizer.Reset(seq)
	for c.kmerizer.Scan() {
		kmers = append(kmers, c.kmerizer.Get().Canonical())
	}
	if len(kmers) == 0 {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("variant %s (token %d) has no valid kmer", seq, tok))
	}

	var gid GID
	hits := map[GID]int{}
	for _, km := range kmers {
		g, ok := c.kmerGroup[km]
		if !ok {
			continue
		}
		hits[g]++
		if hits[g] >= c.opts.MinClusterMembership {
			gid = g
			break
		}
	}
	if gid == 0 {
		gid = c.gids.Next()
		c.order = append(c.order, gid)
		c.tables[gid] = newKmerTable()
	}
	c.members[gid] = append(c.members[gid], tok)
	table := c.tables[gid]
	for _, km := range kmers {
		if _, ok := c.kmerGroup[km]; !ok {
			c.kmerGroup[km] = gid
		}
		table.add(km)
	}
	return gid, nil
}

// GIDs returns the groups in creation order.
func (c *Clusterer) GIDs() []GID { return c.order }

// Members returns the variants of a group in the order they were added.
func (c *Clusterer) Members(gid GID) []Token { return c.members[gid] }

// takeTable hands the kmer table of gid over to the caller. The clusterer no
// longer references it.
func (c *Clusterer) takeTable(gid GID) *kmerTable {
	t := c.tables[gid]
	delete(c.tables, gid)
	return t
}
