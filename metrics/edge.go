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

	"github.com/unibridge/backend/rpcerrors"
	"go.uber.org/net/metrics"
	"go.uber.org/net/metrics/bucket"
	"go.uber.org/zap"
)

const (
	_service   = "service"
	_errorKind = "error_kind"
)

var _bucketsMs = bucket.NewRPCLatency()

// edge exports the calls of one service to a net/metrics scope.
type edge struct {
	calls      *metrics.Counter
	successes  *metrics.Counter
	failures   *metrics.CounterVector
	latencies  *metrics.Histogram
	errLatency *metrics.Histogram
}

func newEdge(logger *zap.Logger, meter *metrics.Scope, service string) *edge {
	tags := metrics.Tags{_service: service}

	calls, err := meter.Counter(metrics.Spec{
		Name:      "calls",
		Help:      "Total number of RPCs.",
		ConstTags: tags,
	})
	if err != nil {
		logger.Error("Failed to create calls counter.", zap.Error(err))
	}
	successes, err := meter.Counter(metrics.Spec{
		Name:      "successes",
		Help:      "Number of successful RPCs.",
		ConstTags: tags,
	})
	if err != nil {
		logger.Error("Failed to create successes counter.", zap.Error(err))
	}
	failures, err := meter.CounterVector(metrics.Spec{
		Name:      "failures",
		Help:      "Number of failed RPCs by error kind.",
		ConstTags: tags,
		VarTags:   []string{_errorKind},
	})
	if err != nil {
		logger.Error("Failed to create failures vector.", zap.Error(err))
	}
	latencies, err := meter.Histogram(metrics.HistogramSpec{
		Spec: metrics.Spec{
			Name:      "success_latency_ms",
			Help:      "Latency distribution of successful RPCs.",
			ConstTags: tags,
		},
		Unit:    time.Millisecond,
		Buckets: _bucketsMs,
	})
	if err != nil {
		logger.Error("Failed to create success latency distribution.", zap.Error(err))
	}
	errLatency, err := meter.Histogram(metrics.HistogramSpec{
		Spec: metrics.Spec{
			Name:      "failure_latency_ms",
			Help:      "Latency distribution of failed RPCs.",
			ConstTags: tags,
		},
		Unit:    time.Millisecond,
		Buckets: _bucketsMs,
	})
	if err != nil {
		logger.Error("Failed to create failure latency distribution.", zap.Error(err))
	}

	return &edge{
		calls:      calls,
		successes:  successes,
		failures:   failures,
		latencies:  latencies,
		errLatency: errLatency,
	}
}

func (e *edge) record(latency time.Duration, err error) {
	e.calls.Inc()
	if err == nil {
		e.successes.Inc()
		e.latencies.Observe(latency)
		return
	}
	e.errLatency.Observe(latency)
	if counter, cerr := e.failures.Get(_errorKind, rpcerrors.KindOf(err).String()); cerr == nil {
		counter.Inc()
	}
}
