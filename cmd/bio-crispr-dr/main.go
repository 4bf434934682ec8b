// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

// bio-crispr-dr groups the direct repeat variants found on reads and calls the
// true repeat of every group.
//
// The input is a TSV with one row per read:
//
//   READ     read name
//   REPEAT   the direct repeat variant detected on the read
//   SEQ      read sequence
//   COORDS   start:stop of every occurrence of the variant, comma separated,
//            0-based and inclusive
//
// Example:
//
//   bio-crispr-dr -input reads.tsv.gz -output repeats.tsv -reads-output reads.out.tsv
//
// Paths ending in .gz are read and written gzip compressed.

import (
	"context"
	"flag"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/crispr/drcluster"
)

type crisprFlags struct {
	input       string
	output      string
	readsOutput string
}

func run(ctx context.Context, flags crisprFlags, opts drcluster.Opts) error {
	if flags.input == "" || flags.output == "" {
		return errors.E(errors.Invalid, "-input and -output must be set")
	}
	store, reads, err := readInput(ctx, flags.input)
	if err != nil {
		return err
	}
	log.Printf("%s: %d variants, %d distinct tokens", flags.input, store.Len(), len(reads.Tokens()))
	engine, err := drcluster.NewEngine(opts, store, reads)
	if err != nil {
		return err
	}
	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}
	stats := result.Stats
	log.Printf("groups: initial %d, accepted %d, rejected %d, splits %d, merged %d, low confidence %d, unplaceable variants %d",
		stats.InitialGroups, stats.Accepted, stats.TotalRejected(), stats.Splits, stats.Merged, stats.LowConfidence, stats.Unplaceable)
	for r := drcluster.RejectReason(0); r < drcluster.NumRejectReasons; r++ {
		if n := stats.Rejected[r]; n > 0 {
			log.Printf("rejected (%v): %d", r, n)
		}
	}
	for _, msg := range result.Errors {
		log.Error.Printf("%s", msg)
	}
	gids := sortedGIDs(result)
	if err := writeRepeats(ctx, flags.output, gids, result, store, reads); err != nil {
		return err
	}
	if flags.readsOutput != "" {
		if err := writeReads(ctx, flags.readsOutput, gids, result, reads); err != nil {
			return err
		}
	}
	log.Printf("wrote %d repeats to %s", len(gids), flags.output)
	return nil
}

func sortedGIDs(result drcluster.Result) []drcluster.GID {
	gids := make([]drcluster.GID, 0, len(result.Repeats))
	for gid := range result.Repeats {
		gids = append(gids, gid)
	}
	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })
	return gids
}

func main() {
	var (
		flags crisprFlags
		opts  = drcluster.DefaultOpts
	)
	flag.StringVar(&flags.input, "input", "", "TSV of reads with columns READ, REPEAT, SEQ, COORDS")
	flag.StringVar(&flags.output, "output", "", "TSV of called repeats with columns GID, REPEAT, VARIANTS, READS")
	flag.StringVar(&flags.readsOutput, "reads-output", "", "If set, TSV of the reads of every accepted group with corrected COORDS")

	flag.IntVar(&opts.KmerLength, "k", drcluster.DefaultOpts.KmerLength, "Length of kmers used for clustering")
	flag.IntVar(&opts.MinClusterMembership, "min-cluster", drcluster.DefaultOpts.MinClusterMembership,
		"Number of kmers a variant must share with a group to join it")
	flag.IntVar(&opts.MinRepeatLength, "min-dr", drcluster.DefaultOpts.MinRepeatLength, "Minimum length of a called repeat")
	flag.IntVar(&opts.MaxRepeatLength, "max-dr", drcluster.DefaultOpts.MaxRepeatLength, "Maximum length of a called repeat")
	flag.IntVar(&opts.MinReadDepth, "min-read-depth", drcluster.DefaultOpts.MinReadDepth,
		"Coverage below which a position has no conservation")
	flag.Float64Var(&opts.ZoneExtensionCutoff, "zone-extension-cutoff", drcluster.DefaultOpts.ZoneExtensionCutoff,
		"Conservation needed to extend the repeat over a position")
	flag.Float64Var(&opts.CollapseCutoff, "collapse-cutoff", drcluster.DefaultOpts.CollapseCutoff,
		"Conservation below which a repeat position is checked for collapsed groups")
	flag.Float64Var(&opts.MinBaseShare, "min-base-share", drcluster.DefaultOpts.MinBaseShare,
		"Fraction of the depth a base needs to count as an allele at a collapsed position")
	flag.Float64Var(&opts.LowComplexityFraction, "low-complexity", drcluster.DefaultOpts.LowComplexityFraction,
		"Reject repeats whose two most frequent bases exceed this fraction")
	flag.Float64Var(&opts.KmerAbundanceCeiling, "max-kmer-abundance", drcluster.DefaultOpts.KmerAbundanceCeiling,
		"Reject repeats containing a kmer more frequent than this in the group")
	flag.IntVar(&opts.MaxSplitDepth, "max-split-depth", drcluster.DefaultOpts.MaxSplitDepth,
		"Maximum number of times a group may be split")
	flag.IntVar(&opts.MinAlignmentScore, "min-alignment-score", drcluster.DefaultOpts.MinAlignmentScore,
		"Lowest score that places a variant against its master")
	flag.IntVar(&opts.Parallelism, "parallelism", drcluster.DefaultOpts.Parallelism, "Number of groups processed concurrently")

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()
	if err := run(ctx, flags, opts); err != nil {
		log.Panicf("bio-crispr-dr: %v", err)
	}
	log.Printf("All done")
}
