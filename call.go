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
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"
	"github.com/unibridge/backend/breaker"
	"github.com/unibridge/backend/internal/clock"
	"github.com/unibridge/backend/internal/lifecycle"
	"github.com/unibridge/backend/registry"
	"github.com/unibridge/backend/rpcerrors"
	"github.com/unibridge/backend/transport"
	"go.uber.org/zap"
)

// CallUnary calls method on an instance of service. A zero timeout uses the
// configured default. The timeout bounds each attempt; ctx bounds the whole
// call, retries and backoff included.
func (b *Backend) CallUnary(ctx context.Context, service, method string, payload []byte, timeout time.Duration) (*transport.Response, error) {
	return b.Call(ctx, &transport.Request{
		Service: service,
		Method:  method,
		Payload: payload,
	}, timeout)
}

// Call is CallUnary for a fully built request.
func (b *Backend) Call(ctx context.Context, req *transport.Request, timeout time.Duration) (res *transport.Response, err error) {
	if b.once.State() > lifecycle.Running {
		return nil, ErrStopped
	}
	if timeout <= 0 {
		timeout = b.cfg.DefaultTimeout
	}
	span, ctx := b.startSpan(ctx, "unary", req.Service, req.Method)
	defer func() { finishSpan(span, err) }()

	b.retries.call()
	var (
		tried    = make(map[string]struct{})
		attempts int
		lastErr  error
	)
	maxRetries := b.cfg.Retry.MaxRetries
	if b.cfg.Retry.Disabled {
		maxRetries = 0
	}

	for retry := 0; retry <= maxRetries; retry++ {
		if retry > 0 {
			if !b.sleep(ctx, b.backoff.Duration(uint(retry-1))) {
				b.retries.noTimeError()
				break
			}
			b.retries.retry()
		}

		inst, ticket, serr := b.choose(req.Service)
		if serr != nil {
			b.retries.unavailableError()
			if lastErr == nil {
				return nil, serr
			}
			break
		}
		tried[inst.ID] = struct{}{}
		attempts++
		span.LogFields(
			log.String("event", "attempt"),
			log.Int("attempt", attempts),
			log.String("instance", inst.ID),
		)

		res, lastErr = b.attempt(ctx, inst, ticket, req, timeout)
		if lastErr == nil {
			b.retries.success()
			return res, nil
		}
		if rpcerrors.KindOf(lastErr) == rpcerrors.KindApplication {
			b.retries.unretryableError()
			return nil, lastErr
		}
		if !rpcerrors.Retryable(lastErr) {
			b.retries.unretryableError()
			break
		}
		if retry == maxRetries {
			b.retries.maxAttemptsError()
		}
	}

	return nil, &rpcerrors.CallError{
		Service:  req.Service,
		Method:   req.Method,
		Attempts: attempts,
		Tried:    len(tried),
		Cause:    lastErr,
	}
}

// attempt runs req once against inst, whose breaker already allowed it and
// issued ticket.
func (b *Backend) attempt(
	ctx context.Context,
	inst registry.ServiceInstance,
	ticket breaker.Ticket,
	req *transport.Request,
	timeout time.Duration,
) (*transport.Response, error) {
	end := b.loads.Begin(inst.ID)
	defer end()
	start := b.clock.Now()

	conn, err := b.pool.Acquire(ctx, inst.Endpoint)
	if err != nil {
		err = rpcerrors.Classify(ctx, inst.Endpoint.ID(), timeout, err)
		b.complete(inst, ticket, start, err)
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	res, err := b.transport.Call(callCtx, conn.Raw(), req)
	err = rpcerrors.Classify(callCtx, inst.Endpoint.ID(), timeout, err)
	cancel()

	if rpcerrors.BreaksConnection(err) {
		conn.MarkBroken()
	}
	b.pool.Release(conn)
	b.complete(inst, ticket, start, err)
	return res, err
}

// complete feeds the outcome of one attempt to the breaker, the registry and
// the metrics collector.
func (b *Backend) complete(inst registry.ServiceInstance, ticket breaker.Ticket, start time.Time, err error) {
	switch {
	case err == nil, rpcerrors.KindOf(err) == rpcerrors.KindApplication:
		ticket.Record(true)
		b.registry.ReportHealth(inst.ID, true)
	case rpcerrors.IsHealthFailure(err):
		ticket.Record(false)
		b.registry.ReportHealth(inst.ID, false)
		b.logger.Debug("Call attempt failed.",
			zap.String("instance", inst.ID),
			zap.Stringer("kind", rpcerrors.KindOf(err)),
			zap.Error(err))
	default:
		// Cancelled by the caller.
		ticket.Cancel()
	}
	b.metrics.Record(inst.Service, inst.ID, clock.Since(b.clock, start), err)
}

// choose picks an instance of service whose breaker lets a call through, and
// returns the breaker's ticket for the call. Degraded instances are used only
// when no healthy one is left.
func (b *Backend) choose(service string) (registry.ServiceInstance, breaker.Ticket, error) {
	candidates := b.registry.Discover(service)
	if len(candidates) == 0 {
		candidates = b.registry.Degraded(service)
	}
	if len(candidates) == 0 {
		if n := b.rejectedByBreakers(service); n > 0 {
			return registry.ServiceInstance{}, breaker.Ticket{}, &rpcerrors.AllInstancesUnavailableError{Service: service, Tried: n}
		}
		return registry.ServiceInstance{}, breaker.Ticket{}, &rpcerrors.NoHealthyInstancesError{Service: service}
	}

	rejected := make(map[string]struct{})
	skip := func(id string) bool {
		_, ok := rejected[id]
		return ok
	}
	for i := 0; i <= b.cfg.Retry.MaxAlternates; i++ {
		inst, ok := b.balancer.Pick(service, candidates, skip)
		if !ok {
			break
		}
		if ticket, ok := b.breakers.Get(inst.ID).Allow(); ok {
			return inst, ticket, nil
		}
		rejected[inst.ID] = struct{}{}
	}
	return registry.ServiceInstance{}, breaker.Ticket{}, &rpcerrors.AllInstancesUnavailableError{Service: service, Tried: len(rejected)}
}

// rejectedByBreakers returns how many instances of service are registered
// and not draining, provided every one of them has a breaker that is
// rejecting calls. It returns 0 otherwise.
func (b *Backend) rejectedByBreakers(service string) int {
	n := 0
	for _, inst := range b.registry.Instances(service) {
		if inst.Status == registry.Draining {
			continue
		}
		brk, ok := b.breakers.Lookup(inst.ID)
		if !ok || !brk.Rejecting() {
			return 0
		}
		n++
	}
	return n
}

// sleep waits d before a retry. It returns false without waiting if ctx
// would expire first.
func (b *Backend) sleep(ctx context.Context, d time.Duration) bool {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < d {
		return false
	}
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := b.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C():
		return true
	case <-ctx.Done():
		return false
	}
}

func (b *Backend) startSpan(ctx context.Context, kind, service, method string) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, b.tracer, service+"::"+method,
		opentracing.Tags{
			"rpc.service": service,
			"rpc.method":  method,
			"rpc.kind":    kind,
		},
	)
	ext.SpanKindRPCClient.Set(span)
	return span, ctx
}

func finishSpan(span opentracing.Span, err error) {
	if err != nil {
		ext.Error.Set(span, true)
		span.SetTag("error.kind", rpcerrors.KindOf(err).String())
		span.LogFields(log.String("event", "error"), log.String("message", err.Error()))
	}
	span.Finish()
}
