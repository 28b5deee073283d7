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

// Package balancer chooses which instance of a service serves a call.
//
// Balancers are handed the current candidates on every pick, so they never
// cache membership; per-instance state is keyed by instance ID and dropped
// through Forget when the registry removes an instance.
package balancer

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/unibridge/backend/registry"
)

// Policy names accepted by New.
const (
	WeightedLeastConn = "weighted-least-conn"
	RoundRobin        = "round-robin"
	FewestPending     = "fewest-pending"
	Random            = "random"
)

// Balancer picks an instance among candidates, skipping every instance for
// which skip returns true. It reports false when nothing is left.
//
// Implementations are safe for concurrent use.
type Balancer interface {
	Pick(service string, candidates []registry.ServiceInstance, skip func(id string) bool) (registry.ServiceInstance, bool)
	Forget(instanceID string)
}

// Option customizes a Balancer.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

type options struct {
	loads  *Loads
	source rand.Source
}

// WithLoads shares in-flight counts with the balancer. Policies that break
// ties by load read them; callers report calls through Loads.Begin.
func WithLoads(l *Loads) Option {
	return optionFunc(func(o *options) {
		o.loads = l
	})
}

// Seed specifies the seed of the random policy.
func Seed(seed int64) Option {
	return optionFunc(func(o *options) {
		o.source = rand.NewSource(seed)
	})
}

// New returns the balancer for the named policy. An empty name selects
// weighted-least-conn.
func New(policy string, opts ...Option) (Balancer, error) {
	var o options
	for _, opt := range opts {
		opt.apply(&o)
	}
	if o.loads == nil {
		o.loads = NewLoads()
	}
	if o.source == nil {
		o.source = rand.NewSource(time.Now().UnixNano())
	}

	switch policy {
	case WeightedLeastConn, "":
		return newWeighted(o.loads), nil
	case RoundRobin:
		return newRoundRobin(), nil
	case FewestPending:
		return newPendingHeap(o.loads), nil
	case Random:
		return newRandom(o.source), nil
	default:
		return nil, fmt.Errorf("unknown balancer policy %q, expected one of %s", policy, strings.Join(Policies(), ", "))
	}
}

// Policies lists the policy names accepted by New.
func Policies() []string {
	names := []string{WeightedLeastConn, RoundRobin, FewestPending, Random}
	sort.Strings(names)
	return names
}

func eligible(candidates []registry.ServiceInstance, skip func(string) bool) []registry.ServiceInstance {
	if skip == nil {
		return candidates
	}
	out := make([]registry.ServiceInstance, 0, len(candidates))
	for _, c := range candidates {
		if !skip(c.ID) {
			out = append(out, c)
		}
	}
	return out
}
