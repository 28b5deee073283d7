// Copyright (c) 2026 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package breaker

import (
	"sort"
	"sync"
)

// Set holds one breaker per service instance, created on first use.
type Set struct {
	cfg  Config
	opts []Option

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewSet validates cfg and returns an empty set. opts apply to every
// breaker in the set.
func NewSet(cfg Config, opts ...Option) (*Set, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Set{
		cfg:      cfg,
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}, nil
}

// Get returns the breaker for name, creating it if needed.
func (s *Set) Get(name string) *Breaker {
	s.mu.RLock()
	b, ok := s.breakers[name]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[name]; ok {
		return b
	}
	// The config was validated by NewSet.
	b, _ = New(name, s.cfg, s.opts...)
	s.breakers[name] = b
	return b
}

// Lookup returns the breaker for name if one exists.
func (s *Set) Lookup(name string) (*Breaker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.breakers[name]
	return b, ok
}

// Remove forgets the breaker for name.
func (s *Set) Remove(name string) {
	s.mu.Lock()
	delete(s.breakers, name)
	s.mu.Unlock()
}

// Snapshots returns the state of every breaker, ordered by name.
func (s *Set) Snapshots() []Snapshot {
	s.mu.RLock()
	out := make([]Snapshot, 0, len(s.breakers))
	for _, b := range s.breakers {
		out = append(out, b.Snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
