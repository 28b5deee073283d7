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

// roundRobin rotates through the eligible candidates of each service in
// the order the registry returns them.
type roundRobin struct {
	mu   sync.Mutex
	next map[string]int
}

func newRoundRobin() *roundRobin {
	return &roundRobin{next: make(map[string]int)}
}

func (r *roundRobin) Pick(service string, candidates []registry.ServiceInstance, skip func(string) bool) (registry.ServiceInstance, bool) {
	candidates = eligible(candidates, skip)
	if len(candidates) == 0 {
		return registry.ServiceInstance{}, false
	}

	r.mu.Lock()
	i := r.next[service] % len(candidates)
	r.next[service] = i + 1
	r.mu.Unlock()
	return candidates[i], true
}

func (r *roundRobin) Forget(string) {}
