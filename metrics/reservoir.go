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

package metrics

import (
	"math/rand"
	"sync"
	"time"
)

// reservoir keeps a uniform sample of at most size latencies out of every
// latency it saw since the last reset.
type reservoir struct {
	mu      sync.Mutex
	size    int
	seen    int64
	samples []time.Duration
	random  *rand.Rand
}

func newReservoir(size int, seed int64) *reservoir {
	return &reservoir{
		size:    size,
		samples: make([]time.Duration, 0, size),
		random:  rand.New(rand.NewSource(seed)),
	}
}

func (r *reservoir) add(d time.Duration) {
	r.mu.Lock()
	r.seen++
	if len(r.samples) < r.size {
		r.samples = append(r.samples, d)
	} else if i := r.random.Int63n(r.seen); i < int64(r.size) {
		r.samples[i] = d
	}
	r.mu.Unlock()
}

// values copies the sample, and empties the reservoir if reset is set.
func (r *reservoir) values(reset bool) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.samples))
	for i, d := range r.samples {
		out[i] = float64(d)
	}
	if reset {
		r.seen = 0
		r.samples = r.samples[:0]
	}
	return out
}
