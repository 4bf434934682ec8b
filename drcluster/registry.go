// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import (
	"sort"
	"sync"
)

// ReadRegistry lists the reads in which each variant token was found.
type ReadRegistry interface {
	// Get returns the reads of tok, in insertion order.
	Get(tok Token) []*Read
	// Set replaces the reads of tok.
	Set(tok Token, reads []*Read)
	// Delete removes tok and its reads.
	Delete(tok Token)
	// Tokens returns every token with reads, in ascending order.
	Tokens() []Token
	// MaxReadLength returns the length of the longest read ever added.
	MaxReadLength() int
}

// Registry is an in-memory ReadRegistry. It is safe for concurrent use, but
// the reads themselves are not guarded: a read belongs to one token, and one
// token to one group at a time.
type Registry struct {
	mu            sync.Mutex
	reads         map[Token][]*Read
	maxReadLength int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{reads: map[Token][]*Read{}}
}

// Add appends a read to tok.
func (r *Registry) Add(tok Token, read *Read) {
	r.mu.Lock()
	r.reads[tok] = append(r.reads[tok], read)
	if len(read.Seq) > r.maxReadLength {
		r.maxReadLength = len(read.Seq)
	}
	r.mu.Unlock()
}

// Get implements ReadRegistry.
func (r *Registry) Get(tok Token) []*Read {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads[tok]
}

// Set implements ReadRegistry.
func (r *Registry) Set(tok Token, reads []*Read) {
	r.mu.Lock()
	r.reads[tok] = reads
	for _, read := range reads {
		if len(read.Seq) > r.maxReadLength {
			r.maxReadLength = len(read.Seq)
		}
	}
	r.mu.Unlock()
}

// Delete implements ReadRegistry.
func (r *Registry) Delete(tok Token) {
	r.mu.Lock()
	delete(r.reads, tok)
	r.mu.Unlock()
}

// Tokens implements ReadRegistry.
func (r *Registry) Tokens() []Token {
	r.mu.Lock()
	toks := make([]Token, 0, len(r.reads))
	for tok := range r.reads {
		toks = append(toks, tok)
	}
	r.mu.Unlock()
	sort.Slice(toks, func(i, j int) bool { return toks[i] < toks[j] })
	return toks
}

// MaxReadLength implements ReadRegistry.
func (r *Registry) MaxReadLength() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxReadLength
}
