// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/crispr/drcluster"
	"github.com/klauspost/compress/gzip"
)

// inputRow is one line of the -input TSV.
type inputRow struct {
	Read   string `tsv:"READ"`
	Repeat string `tsv:"REPEAT"`
	Seq    string `tsv:"SEQ"`
	Coords string `tsv:"COORDS"`
}

// readRow is one line of the -reads-output TSV.
type readRow struct {
	GID    int64  `tsv:"GID"`
	Read   string `tsv:"READ"`
	Seq    string `tsv:"SEQ"`
	Coords string `tsv:"COORDS"`
}

// parseCoords parses "start:stop,start:stop,..." into a flat start/stop list.
func parseCoords(s string, readLen int) ([]int, error) {
	if s == "" {
		return nil, errors.E(errors.Invalid, "empty COORDS")
	}
	fields := strings.Split(s, ",")
	ss := make([]int, 0, 2*len(fields))
	for _, f := range fields {
		colon := strings.IndexByte(f, ':')
		if colon < 0 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("bad coordinate pair %q", f))
		}
		start, err := strconv.Atoi(f[:colon])
		if err != nil {
			return nil, errors.E(errors.Invalid, err, fmt.Sprintf("bad start in %q", f))
		}
		stop, err := strconv.Atoi(f[colon+1:])
		if err != nil {
			return nil, errors.E(errors.Invalid, err, fmt.Sprintf("bad stop in %q", f))
		}
		if start < 0 || stop < start || stop >= readLen {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("coordinate pair %q outside read of length %d", f, readLen))
		}
		ss = append(ss, start, stop)
	}
	return ss, nil
}

// readInput loads the -input TSV. Rows with the same REPEAT share a token.
func readInput(ctx context.Context, path string) (store *drcluster.StringStore, reads *drcluster.Registry, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if u, _ := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	tr := tsv.NewReader(r)
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true

	store = drcluster.NewStringStore()
	reads = drcluster.NewRegistry()
	for line := 2; ; line++ {
		var row inputRow
		if err = tr.Read(&row); err != nil {
			if err == io.EOF {
				err = nil
				break
			}
			return nil, nil, errors.E(err, "read", path)
		}
		if row.Repeat == "" || row.Seq == "" {
			return nil, nil, errors.E(errors.Invalid, fmt.Sprintf("%s:%d: read %s: empty REPEAT or SEQ", path, line, row.Read))
		}
		ss, perr := parseCoords(row.Coords, len(row.Seq))
		if perr != nil {
			return nil, nil, errors.E(perr, fmt.Sprintf("%s:%d: read %s", path, line, row.Read))
		}
		tok := store.Intern(strings.ToUpper(row.Repeat))
		reads.Add(tok, &drcluster.Read{
			Name:       row.Read,
			Seq:        []byte(strings.ToUpper(row.Seq)),
			StartStops: ss,
		})
	}
	return store, reads, nil
}

// outputFile is a file.File opened for writing, gzip compressed if its path
// ends in .gz.
type outputFile struct {
	f  file.File
	gz *gzip.Writer
	w  io.Writer
}

func createOutput(ctx context.Context, path string) (*outputFile, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	out := &outputFile{f: f, w: f.Writer(ctx)}
	if strings.HasSuffix(path, ".gz") {
		out.gz = gzip.NewWriter(out.w)
		out.w = out.gz
	}
	return out, nil
}

func (o *outputFile) Close(ctx context.Context) error {
	once := errors.Once{}
	if o.gz != nil {
		once.Set(o.gz.Close())
	}
	once.Set(o.f.Close(ctx))
	return once.Err()
}

// writeRepeats writes one line per accepted group: its GID, its repeat, its
// variants and its read count.
func writeRepeats(ctx context.Context, path string, gids []drcluster.GID, result drcluster.Result,
	store drcluster.SequenceStore, reads drcluster.ReadRegistry) error {
	out, err := createOutput(ctx, path)
	if err != nil {
		return err
	}
	once := errors.Once{}
	w := tsv.NewWriter(out.w)
	w.WriteString("GID\tREPEAT\tVARIANTS\tREADS")
	once.Set(w.EndLine())
	for _, gid := range gids {
		toks := result.Groups[gid]
		variants := make([]string, len(toks))
		nReads := 0
		for i, tok := range toks {
			variants[i] = store.GetString(tok)
			nReads += len(reads.Get(tok))
		}
		w.WriteUint32(uint32(gid))
		w.WriteString(result.Repeats[gid])
		w.WriteString(strings.Join(variants, ","))
		w.WriteUint32(uint32(nReads))
		once.Set(w.EndLine())
	}
	once.Set(w.Flush())
	once.Set(out.Close(ctx))
	if err := once.Err(); err != nil {
		return errors.E(err, "write", path)
	}
	return nil
}

// writeReads writes the reads of every accepted group with their corrected
// coordinates.
func writeReads(ctx context.Context, path string, gids []drcluster.GID, result drcluster.Result,
	reads drcluster.ReadRegistry) error {
	out, err := createOutput(ctx, path)
	if err != nil {
		return err
	}
	once := errors.Once{}
	w := tsv.NewRowWriter(out.w)
	for _, gid := range gids {
		for _, tok := range result.Groups[gid] {
			for _, r := range reads.Get(tok) {
				row := readRow{
					GID:    int64(gid),
					Read:   r.Name,
					Seq:    string(r.Seq),
					Coords: drcluster.FormatStartStops(r.StartStops),
				}
				once.Set(w.Write(&row))
			}
		}
	}
	once.Set(w.Flush())
	once.Set(out.Close(ctx))
	if err := once.Err(); err != nil {
		return errors.E(err, "write", path)
	}
	return nil
}
