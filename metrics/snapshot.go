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
	"time"

	"github.com/montanaflynn/stats"
	"github.com/unibridge/backend/breaker"
	"github.com/unibridge/backend/rpcerrors"
	"go.uber.org/zap"
)

// Snapshot summarizes everything recorded since the last reset.
type Snapshot struct {
	Taken    time.Time                  `json:"taken"`
	Services map[string]ServiceSnapshot `json:"services"`
	// Breakers holds the state of every breaker, including breakers of
	// instances that have not completed a call yet.
	Breakers []breaker.Snapshot `json:"breakers,omitempty"`
}

// Counts are call totals.
type Counts struct {
	Total   int64            `json:"total"`
	Success int64            `json:"success"`
	Failure int64            `json:"failure"`
	ByKind  map[string]int64 `json:"byKind,omitempty"`
}

// Latency summarizes the latencies of successful calls.
type Latency struct {
	Samples int           `json:"samples"`
	P50     time.Duration `json:"p50"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
}

// ServiceSnapshot holds the counts of one service and its instances.
type ServiceSnapshot struct {
	Counts
	Latency   Latency                     `json:"latency"`
	Instances map[string]InstanceSnapshot `json:"instances"`
}

// InstanceSnapshot holds the counts of one instance.
type InstanceSnapshot struct {
	Counts
	Latency Latency `json:"latency"`
	// Breaker is empty if the instance has no breaker.
	Breaker string `json:"breaker,omitempty"`
}

// Snapshot summarizes the collector without resetting it.
func (c *Collector) Snapshot() Snapshot {
	return c.snapshot(false)
}

// SnapshotAndReset summarizes the collector and zeroes every counter and
// latency sample in the same pass. Each counter is swapped atomically, so a
// call is counted in exactly one window; counters of a call racing with the
// reset may land in different windows.
func (c *Collector) SnapshotAndReset() Snapshot {
	return c.snapshot(true)
}

func (c *Collector) snapshot(reset bool) Snapshot {
	snap := Snapshot{
		Taken:    c.clock.Now(),
		Services: make(map[string]ServiceSnapshot),
	}

	states := make(map[string]breaker.State)
	if c.breakers != nil {
		snap.Breakers = c.breakers.Snapshots()
		for _, b := range snap.Breakers {
			states[b.Name] = b.State
		}
	}

	c.mu.RLock()
	services := make(map[string]*serviceStats, len(c.services))
	for name, s := range c.services {
		services[name] = s
	}
	c.mu.RUnlock()

	for name, s := range services {
		ss := ServiceSnapshot{
			Counts:    s.counters.read(reset),
			Latency:   c.summarize(name, s.latencies.values(reset)),
			Instances: make(map[string]InstanceSnapshot),
		}

		s.mu.RLock()
		instances := make(map[string]*instanceStats, len(s.instances))
		for id, i := range s.instances {
			instances[id] = i
		}
		s.mu.RUnlock()

		for id, i := range instances {
			is := InstanceSnapshot{
				Counts:  i.counters.read(reset),
				Latency: c.summarize(id, i.latencies.values(reset)),
			}
			if st, ok := states[id]; ok {
				is.Breaker = st.String()
			}
			ss.Instances[id] = is
		}
		snap.Services[name] = ss
	}
	return snap
}

func (cs *counters) read(reset bool) Counts {
	load := func(v interface {
		Load() int64
		Swap(int64) int64
	}) int64 {
		if reset {
			return v.Swap(0)
		}
		return v.Load()
	}

	counts := Counts{
		Total:   load(&cs.total),
		Success: load(&cs.success),
		Failure: load(&cs.failure),
	}
	for k := range cs.byKind {
		if n := load(&cs.byKind[k]); n > 0 {
			if counts.ByKind == nil {
				counts.ByKind = make(map[string]int64)
			}
			counts.ByKind[rpcerrors.Kind(k).String()] = n
		}
	}
	return counts
}

func (c *Collector) summarize(name string, samples []float64) Latency {
	l := Latency{Samples: len(samples)}
	if len(samples) == 0 {
		return l
	}
	data := stats.Float64Data(samples)
	for _, q := range []struct {
		percent float64
		dst     *time.Duration
	}{
		{50, &l.P50},
		{95, &l.P95},
		{99, &l.P99},
	} {
		v, err := stats.PercentileNearestRank(data, q.percent)
		if err != nil {
			c.logger.Warn("Failed to compute latency percentile.",
				zap.String("name", name),
				zap.Float64("percent", q.percent),
				zap.Error(err))
			continue
		}
		*q.dst = time.Duration(v)
	}
	return l
}
