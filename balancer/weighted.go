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

	"github.com/unibridge/backend/registry"
)

// weighted is smooth weighted round-robin. Every pick adds each eligible
// instance's weight to its current weight, picks the largest current weight
// and subtracts the total weight from the winner. Equal current weights go
// to the instance with the fewest calls in flight, then to the earlier
// candidate.
type weighted struct {
	loads *Loads

	mu      sync.Mutex
	current map[string]float64
}

func newWeighted(loads *Loads) *weighted {
	return &weighted{
		loads:   loads,
		current: make(map[string]float64),
	}
}

func (w *weighted) Pick(service string, candidates []registry.ServiceInstance, skip func(string) bool) (registry.ServiceInstance, bool) {
	candidates = eligible(candidates, skip)
	if len(candidates) == 0 {
		return registry.ServiceInstance{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var (
		total       float64
		chosen      = -1
		best        float64
		bestPending int64
	)
	for i, c := range candidates {
		weight := c.Endpoint.Weight()
		total += weight
		cw := w.current[c.ID] + weight
		w.current[c.ID] = cw

		pending := w.loads.InFlight(c.ID)
		if chosen < 0 || cw > best || (cw == best && pending < bestPending) {
			chosen, best, bestPending = i, cw, pending
		}
	}

	winner := candidates[chosen]
	w.current[winner.ID] -= total
	return winner, true
}

func (w *weighted) Forget(id string) {
	w.mu.Lock()
	delete(w.current, id)
	w.mu.Unlock()
}
