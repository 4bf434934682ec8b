// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package drcluster

import "sync"

// Token names one sequence string in a SequenceStore.
type Token int

// InvalidToken is never returned by a SequenceStore.
const InvalidToken = Token(-1)

// SequenceStore maps tokens to strings.
type SequenceStore interface {
	// GetString returns the string named by the token. It returns "" for an
	// unknown token.
	GetString(tok Token) string
	// AddString always mints a new token for s, even when s is already
	// stored. This lets two read lists share one variant string.
	AddString(s string) Token
	// GetToken returns the most recently minted token for s.
	GetToken(s string) (Token, bool)
}

// StringStore is a SequenceStore backed by an in-memory table. It is safe for
// concurrent use.
type StringStore struct {
	mu      sync.RWMutex
	strs    []string
	byValue map[string]Token
}

// NewStringStore creates an empty store.
func NewStringStore() *StringStore {
	return &StringStore{byValue: map[string]Token{}}
}

// GetString implements SequenceStore.
func (s *StringStore) GetString(tok Token) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tok < 0 || int(tok) >= len(s.strs) {
		return ""
	}
	return s.strs[tok]
}

// AddString implements SequenceStore.
func (s *StringStore) AddString(str string) Token {
	s.mu.Lock()
	tok := Token(len(s.strs))
	s.strs = append(s.strs, str)
	s.byValue[str] = tok
	s.mu.Unlock()
	return tok
}

// GetToken implements SequenceStore.
func (s *StringStore) GetToken(str string) (Token, bool) {
	s.mu.RLock()
	tok, ok := s.byValue[str]
	s.mu.RUnlock()
	return tok, ok
}

// Intern returns the token of str, adding it if needed.
func (s *StringStore) Intern(str string) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok, ok := s.byValue[str]; ok {
		return tok
	}
	tok := Token(len(s.strs))
	s.strs = append(s.strs, str)
	s.byValue[str] = tok
	return tok
}

// Len returns the number of tokens minted so far.
func (s *StringStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.strs)
}
