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
	"container/heap"
	"sync"

	"github.com/unibridge/backend/registry"
)

// pendingHeap picks the instance with the fewest calls in flight. Entries
// with equal scores are ordered by when they were last picked, which makes
// ties round-robin.
type pendingHeap struct {
	loads *Loads

	mu       sync.Mutex
	services map[string]*scoreHeap
}

type scoreHeap struct {
	entries []*scoreEntry
	byID    map[string]*scoreEntry

	// next increments on every push and orders equal scores.
	next int
}

type scoreEntry struct {
	instance registry.ServiceInstance
	score    int64
	last     int
	index    int
	seen     bool
}

func newPendingHeap(loads *Loads) *pendingHeap {
	return &pendingHeap{
		loads:    loads,
		services: make(map[string]*scoreHeap),
	}
}

func (ph *pendingHeap) Pick(service string, candidates []registry.ServiceInstance, skip func(string) bool) (registry.ServiceInstance, bool) {
	ph.mu.Lock()
	defer ph.mu.Unlock()

	h, ok := ph.services[service]
	if !ok {
		h = &scoreHeap{byID: make(map[string]*scoreEntry)}
		ph.services[service] = h
	}
	h.sync(candidates, ph.loads)
	if h.Len() == 0 {
		delete(ph.services, service)
		return registry.ServiceInstance{}, false
	}

	var skipped []*scoreEntry
	defer func() {
		for _, e := range skipped {
			heap.Push(h, e)
		}
	}()
	for h.Len() > 0 {
		e := heap.Pop(h).(*scoreEntry)
		if skip != nil && skip(e.instance.ID) {
			skipped = append(skipped, e)
			continue
		}
		// Pushing the entry back with a fresh counter puts it behind its
		// equals.
		h.next++
		e.last = h.next
		heap.Push(h, e)
		return e.instance, true
	}
	return registry.ServiceInstance{}, false
}

// sync makes the heap hold exactly candidates, scored by their current
// load.
func (h *scoreHeap) sync(candidates []registry.ServiceInstance, loads *Loads) {
	for _, e := range h.entries {
		e.seen = false
	}
	for _, c := range candidates {
		e, ok := h.byID[c.ID]
		if !ok {
			e = &scoreEntry{}
			h.byID[c.ID] = e
			h.next++
			e.last = h.next
			e.index = len(h.entries)
			h.entries = append(h.entries, e)
		}
		e.instance = c
		e.score = loads.InFlight(c.ID)
		e.seen = true
	}

	kept := h.entries[:0]
	for _, e := range h.entries {
		if !e.seen {
			delete(h.byID, e.instance.ID)
			continue
		}
		e.index = len(kept)
		kept = append(kept, e)
	}
	for i := len(kept); i < len(h.entries); i++ {
		h.entries[i] = nil
	}
	h.entries = kept
	heap.Init(h)
}

func (ph *pendingHeap) Forget(id string) {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	for _, h := range ph.services {
		e, ok := h.byID[id]
		if !ok {
			continue
		}
		delete(h.byID, id)
		heap.Remove(h, e.index)
	}
}

func (h *scoreHeap) Len() int { return len(h.entries) }

// Less orders by score, then by the older pick.
func (h *scoreHeap) Less(i, j int) bool {
	e1, e2 := h.entries[i], h.entries[j]
	if e1.score == e2.score {
		return e1.last < e2.last
	}
	return e1.score < e2.score
}

func (h *scoreHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].index = i
	h.entries[j].index = j
}

// Push implements heap.Interface. Use heap.Push instead.
func (h *scoreHeap) Push(x interface{}) {
	e := x.(*scoreEntry)
	e.index = len(h.entries)
	h.entries = append(h.entries, e)
}

// Pop implements heap.Interface. Use heap.Pop instead.
func (h *scoreHeap) Pop() interface{} {
	last := len(h.entries) - 1
	e := h.entries[last]
	h.entries[last] = nil
	h.entries = h.entries[:last]
	e.index = -1
	return e
}
