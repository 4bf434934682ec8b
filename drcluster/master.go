// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

// FindMaster returns the longest variant of the group. The first one wins on
// ties. It returns false if toks is empty.
func FindMaster(store SequenceStore, toks []Token) (Token, string, bool) {
	master, seq := InvalidToken, ""
	for _, tok := range toks {
		if s := store.GetString(tok); master == InvalidToken || len(s) > len(seq) {
			master, seq = tok, s
		}
	}
	return master, seq, master != InvalidToken
}
