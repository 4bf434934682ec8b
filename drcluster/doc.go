// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

/*
Package drcluster groups candidate CRISPR direct repeat (DR) variants and calls
the true repeat of each group.

The input is a SequenceStore that names every variant string with a Token and
a ReadRegistry that lists, per token, the reads in which the variant was
found along with the start/stop coordinates of each occurrence. Engine.Run
then

  1. clusters the variants by shared canonical kmers,
  2. picks the longest variant of each group as its master,
  3. places every other variant against the master with a banded affine-gap
     local alignment, in either orientation,
  4. piles the reads up in a coverage matrix and calls the consensus inside the
     best supported zone,
  5. splits the group when a position of the zone shows two well supported
     alleles, and processes each part again,
  6. accepts or rejects the consensus, and on acceptance rewrites the
     coordinates and orientation of every read of the group to match the
     canonical form of the repeat.

The engine never writes files. See cmd/bio-crispr-dr for a driver.
*/
package drcluster
