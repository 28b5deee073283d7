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

package balancer

import (
	"sync"

	"go.uber.org/atomic"
)

// Loads counts calls in flight per instance.
type Loads struct {
	mu     sync.RWMutex
	counts map[string]*atomic.Int64
}

// NewLoads returns empty load counts.
func NewLoads() *Loads {
	return &Loads{counts: make(map[string]*atomic.Int64)}
}

func (l *Loads) counter(id string) *atomic.Int64 {
	l.mu.RLock()
	c, ok := l.counts[id]
	l.mu.RUnlock()
	if ok {
		return c
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok = l.counts[id]; !ok {
		c = atomic.NewInt64(0)
		l.counts[id] = c
	}
	return c
}

// Begin counts a call to id as in flight. The returned func ends it; calls
// after the first do nothing.
func (l *Loads) Begin(id string) (end func()) {
	c := l.counter(id)
	c.Inc()
	var once sync.Once
	return func() {
		once.Do(func() { c.Dec() })
	}
}

// InFlight returns the number of calls to id in flight.
func (l *Loads) InFlight(id string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if c, ok := l.counts[id]; ok {
		return c.Load()
	}
	return 0
}

// Forget drops the count of id. Calls still in flight end against the
// dropped counter.
func (l *Loads) Forget(id string) {
	l.mu.Lock()
	delete(l.counts, id)
	l.mu.Unlock()
}
