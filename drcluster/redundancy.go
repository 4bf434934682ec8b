// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import (
	"sort"
	"strings"

	"github.com/grailbio/crispr/dna"
)

// RemoveRedundantRepeats drops every variant that contains a shorter variant
// of the list, in either orientation. Duplicates are reduced to their first
// occurrence. The result is sorted by length; variants of equal length keep
// their input order.
func RemoveRedundantRepeats(repeats []string) []string {
	sorted := append([]string(nil), repeats...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) < len(sorted[j]) })

	redundant := make([]bool, len(sorted))
	for i, shorter := range sorted {
		if redundant[i] {
			continue
		}
		for j := i + 1; j < len(sorted); j++ {
			if redundant[j] {
				continue
			}
			longer := sorted[j]
			if strings.Contains(longer, shorter) || strings.Contains(dna.ReverseComplement(longer), shorter) {
				redundant[j] = true
			}
		}
	}
	out := sorted[:0]
	for i, s := range sorted {
		if !redundant[i] {
			out = append(out, s)
		}
	}
	return out
}

// NonRedundantSet reduces the variants of each group with
// RemoveRedundantRepeats, then appends the reverse complements of the
// survivors. Groups are visited in the order given.
func NonRedundantSet(store SequenceStore, gids []GID, members func(GID) []Token) []string {
	var out []string
	for _, gid := range gids {
		toks := members(gid)
		strs := make([]string, len(toks))
		for i, tok := range toks {
			strs[i] = store.GetString(tok)
		}
		reduced := RemoveRedundantRepeats(strs)
		out = append(out, reduced...)
		for _, s := range reduced {
			out = append(out, dna.ReverseComplement(s))
		}
	}
	return out
}
