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

package backend

import (
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/uber-go/tally/v4"
	"github.com/unibridge/backend/internal/clock"
	"go.uber.org/net/metrics"
	"go.uber.org/zap"
)

// Option customizes a Backend with collaborators that do not belong in a
// config file.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

type options struct {
	logger *zap.Logger
	clock  clock.Clock
	tracer opentracing.Tracer
	meter  *metrics.Scope
	tally  tally.Scope
	seed   int64
	seeded bool
}

var defaultOptions = options{
	logger: zap.NewNop(),
	clock:  clock.NewReal(),
	tally:  tally.NoopScope,
}

// Logger sets the logger of the backend and every component it owns.
func Logger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// Clock sets the clock of the backend and every component it owns.
func Clock(c clock.Clock) Option {
	return optionFunc(func(o *options) {
		o.clock = c
	})
}

// Tracer sets the tracer that records a span per call. Defaults to the
// global tracer.
func Tracer(t opentracing.Tracer) Option {
	return optionFunc(func(o *options) {
		o.tracer = t
	})
}

// Meter exports per-service call metrics to a net/metrics scope.
func Meter(m *metrics.Scope) Option {
	return optionFunc(func(o *options) {
		o.meter = m
	})
}

// Tally records retry metrics to a tally scope.
func Tally(s tally.Scope) Option {
	return optionFunc(func(o *options) {
		o.tally = s
	})
}

// Seed makes retry jitter and random balancing deterministic.
func Seed(seed int64) Option {
	return optionFunc(func(o *options) {
		o.seed = seed
		o.seeded = true
	})
}
