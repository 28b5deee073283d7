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

// Package metrics counts calls per service and per instance and summarizes
// them in snapshots.
//
// Counters are atomics, so recording a call never waits for a snapshot.
// Latencies go to a bounded reservoir per service and per instance whose
// lock is only held to append one sample or to copy the sample out.
package metrics

import (
	"sync"
	"time"

	"github.com/unibridge/backend/breaker"
	"github.com/unibridge/backend/internal/clock"
	"github.com/unibridge/backend/rpcerrors"
	"go.uber.org/atomic"
	"go.uber.org/net/metrics"
	"go.uber.org/zap"
)

// DefaultReservoirSize is the number of latencies kept per service and per
// instance when no size is configured.
const DefaultReservoirSize = 1028

// Option customizes a Collector.
type Option func(*Collector)

// WithClock sets the clock used to stamp snapshots.
func WithClock(c clock.Clock) Option {
	return func(col *Collector) {
		col.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(col *Collector) {
		col.logger = l
	}
}

// WithMeter also exports every recorded call to a net/metrics scope.
func WithMeter(m *metrics.Scope) Option {
	return func(col *Collector) {
		col.meter = m
	}
}

// WithBreakers includes the breaker state of every instance in snapshots.
func WithBreakers(s *breaker.Set) Option {
	return func(col *Collector) {
		col.breakers = s
	}
}

// ReservoirSize bounds the latency sample kept per service and instance.
func ReservoirSize(n int) Option {
	return func(col *Collector) {
		if n > 0 {
			col.reservoirSize = n
		}
	}
}

// Collector records call outcomes. It is safe for concurrent use.
type Collector struct {
	clock         clock.Clock
	logger        *zap.Logger
	meter         *metrics.Scope
	breakers      *breaker.Set
	reservoirSize int

	mu       sync.RWMutex
	services map[string]*serviceStats
	seed     int64
}

type counters struct {
	total   atomic.Int64
	success atomic.Int64
	failure atomic.Int64
	byKind  [numKinds]atomic.Int64
}

const numKinds = int(rpcerrors.KindApplication) + 1

type instanceStats struct {
	counters
	latencies *reservoir
}

type serviceStats struct {
	counters
	latencies *reservoir
	edge      *edge

	mu        sync.RWMutex
	instances map[string]*instanceStats
}

// New returns an empty collector.
func New(opts ...Option) *Collector {
	c := &Collector{
		clock:         clock.NewReal(),
		logger:        zap.NewNop(),
		reservoirSize: DefaultReservoirSize,
		services:      make(map[string]*serviceStats),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.seed = c.clock.Now().UnixNano()
	return c
}

// Record counts one call to instance of service that took latency and
// failed with err, or succeeded if err is nil. Only successful calls
// contribute latencies.
func (c *Collector) Record(service, instance string, latency time.Duration, err error) {
	s := c.service(service)
	i := s.instance(instance, c.newReservoir)

	if err == nil {
		s.success.Inc()
		i.success.Inc()
		s.latencies.add(latency)
		i.latencies.add(latency)
	} else {
		kind := rpcerrors.KindOf(err)
		s.failure.Inc()
		i.failure.Inc()
		s.byKind[kind].Inc()
		i.byKind[kind].Inc()
	}
	s.total.Inc()
	i.total.Inc()

	if s.edge != nil {
		s.edge.record(latency, err)
	}
}

func (c *Collector) newReservoir() *reservoir {
	c.mu.Lock()
	c.seed++
	seed := c.seed
	c.mu.Unlock()
	return newReservoir(c.reservoirSize, seed)
}

func (c *Collector) service(name string) *serviceStats {
	c.mu.RLock()
	s, ok := c.services[name]
	c.mu.RUnlock()
	if ok {
		return s
	}

	r := c.newReservoir()
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.services[name]; ok {
		return s
	}
	s = &serviceStats{
		latencies: r,
		instances: make(map[string]*instanceStats),
	}
	if c.meter != nil {
		s.edge = newEdge(c.logger, c.meter, name)
	}
	c.services[name] = s
	return s
}

func (s *serviceStats) instance(id string, newReservoir func() *reservoir) *instanceStats {
	s.mu.RLock()
	i, ok := s.instances[id]
	s.mu.RUnlock()
	if ok {
		return i
	}

	r := newReservoir()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.instances[id]; ok {
		return i
	}
	i = &instanceStats{latencies: r}
	s.instances[id] = i
	return i
}

// Forget drops the counters of an instance that left the registry.
func (c *Collector) Forget(service, instance string) {
	c.mu.RLock()
	s, ok := c.services[service]
	c.mu.RUnlock()
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.instances, instance)
	s.mu.Unlock()
}
