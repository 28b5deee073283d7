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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
	"github.com/unibridge/backend/breaker"
	"github.com/unibridge/backend/endpoint"
	"github.com/unibridge/backend/internal/clock"
	"github.com/unibridge/backend/pool"
	"github.com/unibridge/backend/registry"
	"github.com/unibridge/backend/rpcerrors"
	"github.com/unibridge/backend/transport"
	"github.com/unibridge/backend/transport/transporttest"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fastRetries keeps backoff short so tests on the real clock stay quick.
var fastRetries = RetryConfig{
	BaseBackoff: time.Millisecond,
	MaxBackoff:  5 * time.Millisecond,
}

func newTestBackend(t *testing.T, cfg Config, opts ...Option) (*Backend, *transporttest.FakeTransport) {
	t.Helper()
	ft := transporttest.NewFakeTransport()
	b, err := New(cfg, ft, append([]Option{Seed(1)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, b.Start())
	t.Cleanup(func() { assert.NoError(t, b.Stop()) })
	return b, ft
}

func register(t *testing.T, b *Backend, service string, port int, weight float64) (endpoint.Endpoint, string) {
	t.Helper()
	ep, err := endpoint.New("10.0.0.1", port, endpoint.RPC, false, weight)
	require.NoError(t, err)
	h, err := b.Registry().Register(registry.NewInstance(service, ep))
	require.NoError(t, err)
	return ep, h.ID()
}

func status(t *testing.T, b *Backend, id string) registry.Status {
	t.Helper()
	inst, ok := b.Registry().Lookup(id)
	require.True(t, ok, "instance %v is not registered", id)
	return inst.Status
}

func counterValue(scope tally.TestScope, name string, tags map[string]string) int64 {
	for _, c := range scope.Snapshot().Counters() {
		if c.Name() != name || len(c.Tags()) != len(tags) {
			continue
		}
		match := true
		for k, v := range tags {
			if c.Tags()[k] != v {
				match = false
			}
		}
		if match {
			return c.Value()
		}
	}
	return 0
}

var errBoom = errors.New("connection reset by peer")

func failing(*transport.Request) (*transport.Response, error) { return nil, errBoom }

func TestCallUnaryEchoes(t *testing.T) {
	b, ft := newTestBackend(t, Config{})
	ep, id := register(t, b, "pricing", 8000, 0)

	res, err := b.CallUnary(context.Background(), "pricing", "Quote", []byte("hello"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), res.Payload)
	assert.Equal(t, 1, ft.Calls(ep))

	snap := b.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Services["pricing"].Counts.Success)
	assert.Equal(t, int64(1), snap.Services["pricing"].Instances[id].Counts.Total)
	assert.Equal(t, 1, b.Pool().Stats(ep).Idle, "connection returns to the pool")
}

func TestWeightedBalancingIsFair(t *testing.T) {
	b, ft := newTestBackend(t, Config{})
	var eps []endpoint.Endpoint
	for i := 0; i < 3; i++ {
		ep, _ := register(t, b, "pricing", 8000+i, 1)
		eps = append(eps, ep)
	}

	for i := 0; i < 300; i++ {
		_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
		require.NoError(t, err)
	}
	for _, ep := range eps {
		assert.Equal(t, 100, ft.Calls(ep), "calls to %v", ep)
	}
}

func TestWeightedBalancingFollowsWeights(t *testing.T) {
	b, ft := newTestBackend(t, Config{})
	light, _ := register(t, b, "pricing", 8000, 1)
	heavy, _ := register(t, b, "pricing", 8001, 3)

	for i := 0; i < 400; i++ {
		_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
		require.NoError(t, err)
	}
	assert.Equal(t, 100, ft.Calls(light))
	assert.Equal(t, 300, ft.Calls(heavy))
}

func TestOpenBreakerFailsFastWithoutDialing(t *testing.T) {
	b, ft := newTestBackend(t, Config{
		Retry:    RetryConfig{Disabled: true},
		Registry: registry.Config{DegradedAfter: 50, UnhealthyAfter: 100},
	})
	ep, id := register(t, b, "pricing", 8000, 0)
	ft.SetBehavior(ep, transporttest.Behavior{Handler: failing})

	for i := 0; i < 10; i++ {
		_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
		require.Error(t, err)
		assert.Equal(t, rpcerrors.KindTransport, rpcerrors.KindOf(err))
	}
	brk, ok := b.Breakers().Lookup(id)
	require.True(t, ok)
	require.Equal(t, breaker.Open, brk.State())

	dials, calls := ft.Dials(ep), ft.Calls(ep)
	_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
	var unavailable *rpcerrors.AllInstancesUnavailableError
	require.True(t, errors.As(err, &unavailable), "got %v", err)
	assert.Equal(t, 1, unavailable.Tried)
	assert.Equal(t, dials, ft.Dials(ep), "no connection attempt while open")
	assert.Equal(t, calls, ft.Calls(ep))
}

func TestOpenBreakerOnUnhealthyInstance(t *testing.T) {
	b, ft := newTestBackend(t, Config{})
	ep, id := register(t, b, "pricing", 8000, 0)

	brk := b.Breakers().Get(id)
	for i := 0; i < 10; i++ {
		tk, ok := brk.Allow()
		require.True(t, ok)
		tk.Record(false)
		b.Registry().ReportHealth(id, false)
	}
	require.Equal(t, breaker.Open, brk.State())
	require.Equal(t, registry.Unhealthy, status(t, b, id))

	_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
	assert.Equal(t, rpcerrors.KindAllInstancesUnavailable, rpcerrors.KindOf(err), "got %v", err)
	assert.Zero(t, ft.Dials(ep))
}

func TestBreakerRejectionTriesAlternates(t *testing.T) {
	b, ft := newTestBackend(t, Config{})
	tripped, trippedID := register(t, b, "pricing", 8000, 0)
	healthy, _ := register(t, b, "pricing", 8001, 0)

	brk := b.Breakers().Get(trippedID)
	for i := 0; i < 10; i++ {
		tk, ok := brk.Allow()
		require.True(t, ok)
		tk.Record(false)
	}
	require.Equal(t, breaker.Open, brk.State())

	for i := 0; i < 10; i++ {
		_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
		require.NoError(t, err)
	}
	assert.Zero(t, ft.Calls(tripped))
	assert.Equal(t, 10, ft.Calls(healthy))
}

func TestTimeoutDiscardsConnection(t *testing.T) {
	b, ft := newTestBackend(t, Config{})
	ep, id := register(t, b, "pricing", 8000, 0)

	_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, b.Pool().Stats(ep).Idle)

	ft.SetBehavior(ep, transporttest.Behavior{Delay: time.Minute})
	_, err = b.CallUnary(context.Background(), "pricing", "Quote", nil, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, rpcerrors.KindTimeout, rpcerrors.KindOf(err))

	var timeout *rpcerrors.TimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, 20*time.Millisecond, timeout.Timeout)

	assert.Equal(t, 2, ft.Calls(ep), "timeouts are not retried")
	stats := b.Pool().Stats(ep)
	assert.Zero(t, stats.Idle, "timed out connection must not be reused")
	assert.Zero(t, stats.Open)
	conns := ft.Conns()
	require.Len(t, conns, 1)
	assert.True(t, conns[0].Closed())

	snap := b.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Services["pricing"].Instances[id].Counts.ByKind["timeout"])
}

func TestApplicationErrorIsReturnedAsIs(t *testing.T) {
	b, ft := newTestBackend(t, Config{Retry: fastRetries})
	ep, id := register(t, b, "pricing", 8000, 0)
	appErr := rpcerrors.Application("bad-request", errors.New("unknown sku"))
	ft.SetBehavior(ep, transporttest.Behavior{
		Handler: func(*transport.Request) (*transport.Response, error) { return nil, appErr },
	})

	for i := 0; i < 20; i++ {
		_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
		assert.Equal(t, appErr, err)
	}
	assert.Equal(t, 20, ft.Calls(ep), "application errors are never retried")
	assert.Equal(t, breaker.Closed, b.Breakers().Get(id).State())
	assert.Equal(t, registry.Healthy, status(t, b, id))
	assert.Equal(t, 1, b.Pool().Stats(ep).Idle, "connection stays usable")
	assert.Equal(t, 1, ft.Dials(ep))

	counts := b.Metrics().Snapshot().Services["pricing"].Counts
	assert.Equal(t, int64(20), counts.Failure)
	assert.Equal(t, int64(20), counts.ByKind["application"])
}

func TestNoHealthyInstances(t *testing.T) {
	b, _ := newTestBackend(t, Config{})

	_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
	var noHealthy *rpcerrors.NoHealthyInstancesError
	require.True(t, errors.As(err, &noHealthy), "got %v", err)
	assert.Equal(t, "pricing", noHealthy.Service)

	_, id := register(t, b, "pricing", 8000, 0)
	b.Registry().Deregister(id)
	_, err = b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
	assert.Equal(t, rpcerrors.KindNoHealthyInstances, rpcerrors.KindOf(err), "draining instances are not selected")

	_, id = register(t, b, "pricing", 8001, 0)
	for i := 0; i < 5; i++ {
		b.Registry().ReportHealth(id, false)
	}
	require.Equal(t, registry.Unhealthy, status(t, b, id))
	_, err = b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
	assert.Equal(t, rpcerrors.KindNoHealthyInstances, rpcerrors.KindOf(err))
}

func TestDegradedInstancesAreAFallback(t *testing.T) {
	b, ft := newTestBackend(t, Config{})
	degraded, degradedID := register(t, b, "pricing", 8000, 0)
	healthy, healthyID := register(t, b, "pricing", 8001, 0)
	for i := 0; i < 3; i++ {
		b.Registry().ReportHealth(degradedID, false)
	}
	require.Equal(t, registry.Degraded, status(t, b, degradedID))

	for i := 0; i < 5; i++ {
		_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
		require.NoError(t, err)
	}
	assert.Zero(t, ft.Calls(degraded))
	assert.Equal(t, 5, ft.Calls(healthy))

	for i := 0; i < 5; i++ {
		b.Registry().ReportHealth(healthyID, false)
	}
	require.Equal(t, registry.Unhealthy, status(t, b, healthyID))

	_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, ft.Calls(degraded))
	assert.Equal(t, uint(1), b.Registry().Instances("pricing")[0].ConsecutiveSuccesses)
}

func TestRetriesConnectionErrorsOnAnotherInstance(t *testing.T) {
	scope := tally.NewTestScope("", nil)
	b, ft := newTestBackend(t, Config{Retry: fastRetries}, Tally(scope))
	down, downID := register(t, b, "pricing", 8000, 0)
	up, _ := register(t, b, "pricing", 8001, 0)
	ft.SetBehavior(down, transporttest.Behavior{DialErr: errors.New("connection refused")})

	res, err := b.CallUnary(context.Background(), "pricing", "Quote", []byte("x"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), res.Payload)
	assert.Equal(t, 1, ft.Dials(down))
	assert.Equal(t, 1, ft.Calls(up))

	assert.Equal(t, int64(1), counterValue(scope, "retry_calls", nil))
	assert.Equal(t, int64(1), counterValue(scope, "retry_retries", nil))
	assert.Equal(t, int64(1), counterValue(scope, "retry_successes", nil))

	inst, ok := b.Registry().Lookup(downID)
	require.True(t, ok)
	assert.Equal(t, uint(1), inst.ConsecutiveFailures)
	counts := b.Metrics().Snapshot().Services["pricing"].Instances[downID].Counts
	assert.Equal(t, int64(1), counts.ByKind["connection"])
}

func TestRetriesAreBounded(t *testing.T) {
	scope := tally.NewTestScope("", nil)
	b, ft := newTestBackend(t, Config{Retry: fastRetries}, Tally(scope))
	ep, _ := register(t, b, "pricing", 8000, 0)
	ft.SetBehavior(ep, transporttest.Behavior{DialErr: errors.New("connection refused")})

	_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
	var callErr *rpcerrors.CallError
	require.True(t, errors.As(err, &callErr), "got %v", err)
	assert.Equal(t, "pricing", callErr.Service)
	assert.Equal(t, "Quote", callErr.Method)
	assert.Equal(t, 3, callErr.Attempts)
	assert.Equal(t, 1, callErr.Tried)
	assert.Equal(t, rpcerrors.KindConnection, rpcerrors.KindOf(err))
	assert.Equal(t, 3, ft.Dials(ep))

	assert.Equal(t, int64(2), counterValue(scope, "retry_retries", nil))
	assert.Equal(t, int64(1), counterValue(scope, "retry_failures", map[string]string{"error": "max_attempts"}))
}

func TestRetriesDisabled(t *testing.T) {
	b, ft := newTestBackend(t, Config{Retry: RetryConfig{Disabled: true}})
	ep, _ := register(t, b, "pricing", 8000, 0)
	ft.SetBehavior(ep, transporttest.Behavior{DialErr: errors.New("connection refused")})

	_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
	var callErr *rpcerrors.CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, 1, callErr.Attempts)
	assert.Equal(t, 1, ft.Dials(ep))
}

func TestNoRetryWithoutTimeForBackoff(t *testing.T) {
	scope := tally.NewTestScope("", nil)
	b, ft := newTestBackend(t, Config{
		Retry: RetryConfig{BaseBackoff: time.Minute, MaxBackoff: time.Minute},
	}, Tally(scope))
	ep, _ := register(t, b, "pricing", 8000, 0)
	ft.SetBehavior(ep, transporttest.Behavior{DialErr: errors.New("connection refused")})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := b.CallUnary(ctx, "pricing", "Quote", nil, time.Second)
	require.Error(t, err)
	assert.Equal(t, 1, ft.Dials(ep))
	assert.Equal(t, int64(1), counterValue(scope, "retry_failures", map[string]string{"error": "notime"}))
}

func TestCancelledCallIsNotAHealthSignal(t *testing.T) {
	b, ft := newTestBackend(t, Config{})
	ep, id := register(t, b, "pricing", 8000, 0)
	ft.SetBehavior(ep, transporttest.Behavior{Delay: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := b.CallUnary(ctx, "pricing", "Quote", nil, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)

	inst, ok := b.Registry().Lookup(id)
	require.True(t, ok)
	assert.Zero(t, inst.ConsecutiveFailures)
	assert.Equal(t, registry.Healthy, inst.Status)
	assert.Zero(t, b.Breakers().Get(id).Snapshot().Samples)
	assert.Zero(t, b.Pool().Stats(ep).Open, "connection of a cancelled call is discarded")
}

func TestConcurrentCalls(t *testing.T) {
	b, ft := newTestBackend(t, Config{Pool: pool.Config{MaxConnsPerEndpoint: 4}})
	var eps []endpoint.Endpoint
	for i := 0; i < 3; i++ {
		ep, _ := register(t, b, "pricing", 8000+i, 0)
		eps = append(eps, ep)
	}

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				payload := []byte(fmt.Sprintf("%d-%d", w, i))
				res, err := b.CallUnary(context.Background(), "pricing", "Quote", payload, time.Second)
				if assert.NoError(t, err) {
					assert.Equal(t, payload, res.Payload)
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, ep := range eps {
		total += ft.Calls(ep)
		assert.LessOrEqual(t, b.Pool().Stats(ep).Open, 4)
	}
	assert.Equal(t, 400, total)
	assert.Equal(t, int64(400), b.Metrics().Snapshot().Services["pricing"].Counts.Success)
}

func TestTracing(t *testing.T) {
	tracer := mocktracer.New()
	b, ft := newTestBackend(t, Config{Retry: fastRetries}, Tracer(tracer))
	ep, _ := register(t, b, "pricing", 8000, 0)

	_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
	require.NoError(t, err)

	ft.SetBehavior(ep, transporttest.Behavior{Handler: failing})
	_, err = b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
	require.Error(t, err)

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 2)
	for _, span := range spans {
		assert.Equal(t, "pricing::Quote", span.OperationName)
		assert.Equal(t, "pricing", span.Tag("rpc.service"))
		assert.Equal(t, "Quote", span.Tag("rpc.method"))
	}
	assert.Nil(t, spans[0].Tag("error"))
	assert.Len(t, spans[0].Logs(), 1)

	assert.Equal(t, true, spans[1].Tag("error"))
	assert.Equal(t, "transport", spans[1].Tag("error.kind"))
	assert.Len(t, spans[1].Logs(), 4, "three attempts and the error")
}

func TestCallsThroughMockTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockTransport := transporttest.NewMockTransport(ctrl)
	conn := transporttest.NewMockConn(ctrl)

	b, err := New(Config{}, mockTransport)
	require.NoError(t, err)
	require.NoError(t, b.Start())
	defer func() { assert.NoError(t, b.Stop()) }()

	ep, _ := register(t, b, "pricing", 8000, 0)
	req := &transport.Request{Service: "pricing", Method: "Quote", Payload: []byte("sku-1")}

	mockTransport.EXPECT().Dial(gomock.Any(), ep).Return(conn, nil)
	mockTransport.EXPECT().
		Call(transporttest.NewContextMatcher(t, 2*time.Second), conn, transporttest.NewRequestMatcher(t, req)).
		Return(&transport.Response{Payload: []byte("42")}, nil).
		Times(2)
	conn.EXPECT().Close().Return(nil)

	for i := 0; i < 2; i++ {
		res, err := b.Call(context.Background(), req, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, []byte("42"), res.Payload)
	}
}

func TestRemovalEvictsConnections(t *testing.T) {
	fc := clock.NewFake()
	b, ft := newTestBackend(t, Config{Registry: registry.Config{DrainGrace: time.Second}}, Clock(fc))
	ep, id := register(t, b, "pricing", 8000, 0)

	// A second service served at the same address keeps its connections.
	shared, sharedID := register(t, b, "quotes", 8001, 0)
	_, _ = register(t, b, "pricing", 8001, 0)

	for i := 0; i < 4; i++ {
		_, err := b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
		require.NoError(t, err)
	}
	require.Equal(t, 1, b.Pool().Stats(ep).Idle)
	require.Equal(t, 1, b.Pool().Stats(shared).Idle)

	b.Registry().Deregister(id)
	assert.Equal(t, 1, b.Pool().Stats(ep).Idle, "draining keeps connections")
	fc.Add(time.Second)

	_, ok := b.Registry().Lookup(id)
	assert.False(t, ok)
	assert.Zero(t, b.Pool().Stats(ep).Open)
	_, ok = b.Breakers().Lookup(id)
	assert.False(t, ok, "breaker state is dropped")
	_, ok = b.Metrics().Snapshot().Services["pricing"].Instances[id]
	assert.False(t, ok, "metrics are dropped")

	b.Registry().Deregister(registry.InstanceID("pricing", shared))
	fc.Add(time.Second)
	assert.Equal(t, 1, b.Pool().Stats(shared).Idle, "endpoint still serves %v", sharedID)

	for _, c := range ft.Conns() {
		assert.Equal(t, c.Endpoint.Equal(ep), c.Closed(), "conn to %v", c.Endpoint)
	}
}

func TestProbeRecoversInstances(t *testing.T) {
	fc := clock.NewFake()
	b, ft := newTestBackend(t, Config{ProbeInterval: time.Second}, Clock(fc))
	ep, id := register(t, b, "pricing", 8000, 0)
	for i := 0; i < 5; i++ {
		b.Registry().ReportHealth(id, false)
	}
	require.Equal(t, registry.Unhealthy, status(t, b, id))

	// The pool sweeper and the prober each hold a timer.
	waitTimers := func() {
		require.Eventually(t, func() bool { return fc.Pending() == 2 }, time.Second, time.Millisecond)
	}

	waitTimers()
	fc.Add(time.Second)
	require.Eventually(t, func() bool { return ft.Dials(ep) == 1 }, time.Second, time.Millisecond)
	waitTimers()
	fc.Add(time.Second)
	require.Eventually(t, func() bool {
		inst, ok := b.Registry().Lookup(id)
		return ok && inst.Status == registry.Healthy
	}, time.Second, time.Millisecond)
	for _, c := range ft.Conns() {
		assert.True(t, c.Closed(), "probe connections are closed")
	}
}

func TestStartStop(t *testing.T) {
	ft := transporttest.NewFakeTransport()
	b, err := New(Config{
		Services: map[string][]InstanceConfig{
			"pricing": {{Host: "10.0.0.1", Port: 8000}, {Host: "10.0.0.2", Port: 8000, Weight: 2}},
		},
	}, ft)
	require.NoError(t, err)
	assert.Empty(t, b.Registry().Services(), "nothing is registered before Start")

	require.NoError(t, b.Start())
	require.NoError(t, b.Start(), "start is idempotent")
	require.Len(t, b.Registry().Discover("pricing"), 2)

	_, err = b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
	require.NoError(t, err)

	require.NoError(t, b.Stop())
	require.NoError(t, b.Stop(), "stop is idempotent")
	for _, c := range ft.Conns() {
		assert.True(t, c.Closed())
	}
	assert.Error(t, b.Start(), "a stopped backend cannot restart")

	_, err = b.CallUnary(context.Background(), "pricing", "Quote", nil, time.Second)
	assert.Equal(t, ErrStopped, err)
	_, err = b.CallStreaming(context.Background(), "pricing", "Watch", time.Second)
	assert.Equal(t, ErrStopped, err)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)

	_, err = New(Config{Balancer: "fastest"}, transporttest.NewFakeTransport())
	assert.Error(t, err)
}
