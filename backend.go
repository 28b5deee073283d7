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
	"context"
	"errors"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/unibridge/backend/balancer"
	"github.com/unibridge/backend/breaker"
	"github.com/unibridge/backend/endpoint"
	"github.com/unibridge/backend/internal/backoff"
	"github.com/unibridge/backend/internal/clock"
	"github.com/unibridge/backend/internal/lifecycle"
	"github.com/unibridge/backend/metrics"
	"github.com/unibridge/backend/pool"
	"github.com/unibridge/backend/registry"
	"github.com/unibridge/backend/transport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrStopped is returned by calls made after Stop.
var ErrStopped = errors.New("backend is stopped")

// Backend runs calls against registered service instances. It is safe for
// concurrent use.
type Backend struct {
	cfg       Config
	transport transport.Transport
	logger    *zap.Logger
	clock     clock.Clock
	tracer    opentracing.Tracer

	registry *registry.Registry
	pool     *pool.Pool
	breakers *breaker.Set
	balancer balancer.Balancer
	loads    *balancer.Loads
	metrics  *metrics.Collector
	backoff  *backoff.Exponential
	retries  *retryObserver

	once       *lifecycle.Once
	proberDone chan struct{}
}

// New validates cfg and wires a Backend around t. Nothing runs in the
// background until Start.
func New(cfg Config, t transport.Transport, opts ...Option) (*Backend, error) {
	if t == nil {
		return nil, errors.New("backend requires a transport")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions
	for _, opt := range opts {
		opt.apply(&o)
	}
	if o.tracer == nil {
		o.tracer = opentracing.GlobalTracer()
	}
	if !o.seeded {
		o.seed = o.clock.Now().UnixNano()
	}
	logger := o.logger

	b := &Backend{
		cfg:       cfg,
		transport: t,
		logger:    logger,
		clock:     o.clock,
		tracer:    o.tracer,
		loads:     balancer.NewLoads(),
		retries:   newRetryObserver(o.tally),
		once:      lifecycle.NewOnce(),
	}

	var err error
	if b.registry, err = registry.New(cfg.Registry,
		registry.WithClock(o.clock),
		registry.WithLogger(logger.Named("registry")),
	); err != nil {
		return nil, err
	}
	if b.pool, err = pool.New(cfg.Pool, t,
		pool.WithClock(o.clock),
		pool.WithLogger(logger.Named("pool")),
	); err != nil {
		return nil, err
	}
	if b.breakers, err = breaker.NewSet(cfg.Breaker,
		breaker.WithClock(o.clock),
		breaker.WithLogger(logger.Named("breaker")),
	); err != nil {
		return nil, err
	}
	if b.balancer, err = balancer.New(cfg.Balancer,
		balancer.WithLoads(b.loads),
		balancer.Seed(o.seed),
	); err != nil {
		return nil, err
	}
	if b.backoff, err = backoff.NewExponential(
		backoff.BaseJump(cfg.Retry.BaseBackoff),
		backoff.MaxBackoff(cfg.Retry.MaxBackoff),
		backoff.Seed(o.seed),
	); err != nil {
		return nil, err
	}

	metricOpts := []metrics.Option{
		metrics.WithClock(o.clock),
		metrics.WithLogger(logger.Named("metrics")),
		metrics.WithBreakers(b.breakers),
		metrics.ReservoirSize(cfg.ReservoirSize),
	}
	if o.meter != nil {
		metricOpts = append(metricOpts, metrics.WithMeter(o.meter))
	}
	b.metrics = metrics.New(metricOpts...)

	b.registry.Watch(b.onRegistryEvent)
	return b, nil
}

// Registry returns the registry the backend discovers instances from.
func (b *Backend) Registry() *registry.Registry { return b.registry }

// Pool returns the connection pool.
func (b *Backend) Pool() *pool.Pool { return b.pool }

// Breakers returns the per-instance circuit breakers.
func (b *Backend) Breakers() *breaker.Set { return b.breakers }

// Metrics returns the call metrics.
func (b *Backend) Metrics() *metrics.Collector { return b.metrics }

// Start registers the configured static instances and starts the pool
// sweeper, the registry reaper and, if enabled, the health prober. Calling
// Start again returns the result of the first call.
func (b *Backend) Start() error {
	return b.once.Start(b.start)
}

func (b *Backend) start() error {
	for service, instances := range b.cfg.Services {
		for _, ic := range instances {
			// Validated by New.
			ep, _ := ic.Endpoint()
			if _, err := b.registry.Register(registry.NewInstance(service, ep)); err != nil {
				return err
			}
		}
	}

	if err := b.pool.Start(); err != nil {
		return err
	}
	if err := b.registry.Start(); err != nil {
		return multierr.Append(err, b.pool.Close())
	}
	if b.cfg.ProbeInterval > 0 {
		b.proberDone = make(chan struct{})
		go b.probeLoop(b.once.Stopping(), b.proberDone)
	}
	b.logger.Info("Started backend.", zap.String("balancer", b.cfg.Balancer))
	return nil
}

// Stop halts the background work and closes every pooled connection. Calls
// in flight see their connections closed; later calls fail. A stopped
// Backend cannot be started again.
func (b *Backend) Stop() error {
	return b.once.Stop(b.stop)
}

func (b *Backend) stop() error {
	if b.proberDone != nil {
		<-b.proberDone
	}
	err := multierr.Combine(
		b.registry.Stop(),
		b.pool.Close(),
	)
	b.logger.Info("Stopped backend.", zap.Error(err))
	return err
}

// onRegistryEvent drops the per-instance state of removed instances.
// Connections are shared by every service served at an endpoint, so they
// are only evicted once no registered instance uses the endpoint.
func (b *Backend) onRegistryEvent(ev registry.Event) {
	if ev.Type != registry.Removed {
		return
	}
	inst := ev.Instance
	b.breakers.Remove(inst.ID)
	b.balancer.Forget(inst.ID)
	b.loads.Forget(inst.ID)
	b.metrics.Forget(inst.Service, inst.ID)

	if b.endpointInUse(inst.Endpoint) {
		return
	}
	if err := b.pool.Evict(inst.Endpoint); err != nil {
		b.logger.Warn("Failed to close connections of removed instance.",
			zap.String("instance", inst.ID),
			zap.Error(err))
	}
}

func (b *Backend) endpointInUse(ep endpoint.Endpoint) bool {
	for _, service := range b.registry.Services() {
		for _, inst := range b.registry.Instances(service) {
			if inst.Endpoint.Equal(ep) {
				return true
			}
		}
	}
	return false
}

func (b *Backend) probeLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		timer := b.clock.Timer(b.cfg.ProbeInterval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C():
			b.probe(stop)
		}
	}
}

// probe dials every degraded or unhealthy instance once and reports the
// outcome to the registry, so that instances no call selects can recover.
func (b *Backend) probe(stop <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for _, service := range b.registry.Services() {
		for _, inst := range b.registry.Instances(service) {
			if inst.Status != registry.Degraded && inst.Status != registry.Unhealthy {
				continue
			}
			dialCtx, dialCancel := context.WithTimeout(ctx, b.cfg.Pool.DialTimeout)
			conn, err := b.transport.Dial(dialCtx, inst.Endpoint)
			dialCancel()
			if err == nil {
				err = conn.Close()
			}
			if ctx.Err() != nil {
				return
			}
			b.registry.ReportHealth(inst.ID, err == nil)
			if err != nil {
				b.logger.Debug("Health probe failed.",
					zap.String("instance", inst.ID),
					zap.Error(err))
			}
		}
	}
}
