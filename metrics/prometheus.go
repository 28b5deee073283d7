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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/unibridge/backend/breaker"
	"go.uber.org/multierr"
)

const _namespace = "unibridge"

// PrometheusFeeder periodically copies collector snapshots into Prometheus
// gauges.
type PrometheusFeeder struct {
	collector *Collector
	interval  time.Duration

	calls        *prometheus.GaugeVec
	latency      *prometheus.GaugeVec
	breakerState *prometheus.GaugeVec

	lifecycle sync.Mutex
	stop      chan struct{}
	done      chan struct{}
}

// NewPrometheusFeeder registers the feeder's gauges with reg.
func NewPrometheusFeeder(reg prometheus.Registerer, collector *Collector, interval time.Duration) (*PrometheusFeeder, error) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	f := &PrometheusFeeder{
		collector: collector,
		interval:  interval,
		calls: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: _namespace,
				Subsystem: "backend",
				Name:      "calls",
				Help:      "Calls recorded since the last reset, by result.",
			},
			[]string{"service", "result"}),
		latency: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: _namespace,
				Subsystem: "backend",
				Name:      "latency_seconds",
				Help:      "Latency percentiles of successful calls.",
			},
			[]string{"service", "quantile"}),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: _namespace,
				Subsystem: "breaker",
				Name:      "state",
				Help:      "State of the circuit breaker: 0 - closed; 1 - half-open; 2 - open",
			},
			[]string{"instance"}),
	}

	var err error
	for _, c := range []prometheus.Collector{f.calls, f.latency, f.breakerState} {
		err = multierr.Append(err, reg.Register(c))
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Feed sets the gauges from snap.
func (f *PrometheusFeeder) Feed(snap Snapshot) {
	for service, s := range snap.Services {
		f.calls.With(prometheus.Labels{"service": service, "result": "total"}).Set(float64(s.Total))
		f.calls.With(prometheus.Labels{"service": service, "result": "success"}).Set(float64(s.Success))
		f.calls.With(prometheus.Labels{"service": service, "result": "failure"}).Set(float64(s.Failure))

		f.latency.With(prometheus.Labels{"service": service, "quantile": "0.5"}).Set(s.Latency.P50.Seconds())
		f.latency.With(prometheus.Labels{"service": service, "quantile": "0.95"}).Set(s.Latency.P95.Seconds())
		f.latency.With(prometheus.Labels{"service": service, "quantile": "0.99"}).Set(s.Latency.P99.Seconds())
	}

	f.breakerState.Reset()
	for _, b := range snap.Breakers {
		f.breakerState.With(prometheus.Labels{"instance": b.Name}).Set(breakerValue(b.State))
	}
}

func breakerValue(s breaker.State) float64 {
	switch s {
	case breaker.HalfOpen:
		return 1
	case breaker.Open:
		return 2
	default:
		return 0
	}
}

// Start feeds a snapshot every interval until Stop.
func (f *PrometheusFeeder) Start() error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	if f.stop != nil {
		return nil
	}
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	go f.loop(f.stop, f.done)
	return nil
}

// Stop halts feeding and waits for the loop to exit.
func (f *PrometheusFeeder) Stop() error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	if f.stop == nil {
		return nil
	}
	close(f.stop)
	<-f.done
	f.stop, f.done = nil, nil
	return nil
}

func (f *PrometheusFeeder) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		timer := f.collector.clock.Timer(f.interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C():
			f.Feed(f.collector.Snapshot())
		}
	}
}
