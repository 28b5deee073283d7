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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unibridge/backend/breaker"
	"github.com/unibridge/backend/internal/clock"
	"github.com/unibridge/backend/rpcerrors"
	"go.uber.org/goleak"
	"go.uber.org/net/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	_users = "users"
	_a     = "users@rpc://10.0.0.1:9000"
	_b     = "users@rpc://10.0.0.2:9000"
)

func TestRecordCounts(t *testing.T) {
	c := New()
	c.Record(_users, _a, time.Millisecond, nil)
	c.Record(_users, _a, time.Millisecond, &rpcerrors.TimeoutError{Endpoint: "e"})
	c.Record(_users, _b, time.Millisecond, &rpcerrors.ConnectionError{Endpoint: "e", Cause: errors.New("refused")})
	c.Record(_users, _b, time.Millisecond, rpcerrors.Application("NotFound", errors.New("no such user")))
	c.Record("orders", "orders@rpc://10.0.0.3:9000", time.Millisecond, nil)

	snap := c.Snapshot()
	require.Len(t, snap.Services, 2)

	users := snap.Services[_users]
	assert.Equal(t, Counts{
		Total:   4,
		Success: 1,
		Failure: 3,
		ByKind:  map[string]int64{"timeout": 1, "connection": 1, "application": 1},
	}, users.Counts)
	assert.Equal(t, Counts{
		Total:   2,
		Success: 1,
		Failure: 1,
		ByKind:  map[string]int64{"timeout": 1},
	}, users.Instances[_a].Counts)
	assert.Equal(t, int64(2), users.Instances[_b].Failure)
	assert.Equal(t, 1, users.Latency.Samples, "only successes contribute latencies")

	// Snapshot does not reset.
	assert.Equal(t, int64(4), c.Snapshot().Services[_users].Total)
}

func TestLatencyPercentiles(t *testing.T) {
	c := New()
	for i := 100; i >= 1; i-- {
		c.Record(_users, _a, time.Duration(i)*time.Millisecond, nil)
	}

	latency := c.Snapshot().Services[_users].Latency
	assert.Equal(t, Latency{
		Samples: 100,
		P50:     50 * time.Millisecond,
		P95:     95 * time.Millisecond,
		P99:     99 * time.Millisecond,
	}, latency)
	assert.Equal(t, latency, c.Snapshot().Services[_users].Instances[_a].Latency)
}

func TestReservoirIsBounded(t *testing.T) {
	c := New(ReservoirSize(10))
	for i := 0; i < 1000; i++ {
		c.Record(_users, _a, time.Duration(i), nil)
	}
	snap := c.Snapshot()
	assert.Equal(t, 10, snap.Services[_users].Latency.Samples)
	assert.Equal(t, int64(1000), snap.Services[_users].Success)
}

func TestSnapshotAndReset(t *testing.T) {
	fc := clock.NewFake()
	c := New(WithClock(fc))
	c.Record(_users, _a, time.Millisecond, nil)
	c.Record(_users, _a, time.Millisecond, &rpcerrors.TimeoutError{})

	first := c.SnapshotAndReset()
	assert.Equal(t, fc.Now(), first.Taken)
	assert.Equal(t, int64(2), first.Services[_users].Total)

	second := c.Snapshot()
	assert.Equal(t, Counts{}, second.Services[_users].Counts)
	assert.Equal(t, Latency{}, second.Services[_users].Latency)
	assert.Equal(t, Counts{}, second.Services[_users].Instances[_a].Counts)
}

func TestSnapshotAndResetLosesNothingUnderLoad(t *testing.T) {
	const (
		workers = 8
		calls   = 500
	)
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				c.Record(_users, _a, time.Microsecond, nil)
			}
		}()
	}

	var total int64
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		total += c.SnapshotAndReset().Services[_users].Total
	}
	assert.Equal(t, int64(workers*calls), total)
}

func TestSnapshotIncludesBreakers(t *testing.T) {
	set, err := breaker.NewSet(breaker.Config{})
	require.NoError(t, err)
	set.Get(_a)
	tk, ok := set.Get(_b).Allow()
	require.True(t, ok)
	tk.Record(true)

	c := New(WithBreakers(set))
	c.Record(_users, _a, time.Millisecond, nil)

	snap := c.Snapshot()
	assert.Equal(t, "closed", snap.Services[_users].Instances[_a].Breaker)
	require.Len(t, snap.Breakers, 2)
	assert.Equal(t, _a, snap.Breakers[0].Name)
	assert.Equal(t, _b, snap.Breakers[1].Name)
}

func TestForget(t *testing.T) {
	c := New()
	c.Record(_users, _a, time.Millisecond, nil)
	c.Record(_users, _b, time.Millisecond, nil)
	c.Forget(_users, _a)
	c.Forget("unknown", _a)

	snap := c.Snapshot()
	assert.NotContains(t, snap.Services[_users].Instances, _a)
	assert.Contains(t, snap.Services[_users].Instances, _b)
	assert.Equal(t, int64(2), snap.Services[_users].Total)
}

func counterValue(snap *metrics.RootSnapshot, name string, tags metrics.Tags) (int64, bool) {
	for _, c := range snap.Counters {
		if c.Name == name && assert.ObjectsAreEqual(tags, c.Tags) {
			return c.Value, true
		}
	}
	return 0, false
}

func TestMeterExport(t *testing.T) {
	root := metrics.New()
	c := New(WithMeter(root.Scope()))
	c.Record(_users, _a, 3*time.Millisecond, nil)
	c.Record(_users, _a, time.Millisecond, &rpcerrors.TimeoutError{})

	snap := root.Snapshot()
	calls, ok := counterValue(snap, "calls", metrics.Tags{"service": _users})
	require.True(t, ok, "calls counter not exported")
	assert.Equal(t, int64(2), calls)

	successes, _ := counterValue(snap, "successes", metrics.Tags{"service": _users})
	assert.Equal(t, int64(1), successes)

	timeouts, ok := counterValue(snap, "failures", metrics.Tags{"service": _users, "error_kind": "timeout"})
	require.True(t, ok, "failures counter not exported")
	assert.Equal(t, int64(1), timeouts)
}

func TestPrometheusFeeder(t *testing.T) {
	set, err := breaker.NewSet(breaker.Config{})
	require.NoError(t, err)
	set.Get(_a)

	fc := clock.NewFake()
	c := New(WithClock(fc), WithBreakers(set))
	for i := 1; i <= 4; i++ {
		c.Record(_users, _a, time.Duration(i)*time.Second, nil)
	}
	c.Record(_users, _a, time.Second, &rpcerrors.TimeoutError{})

	reg := prometheus.NewRegistry()
	f, err := NewPrometheusFeeder(reg, c, time.Minute)
	require.NoError(t, err)

	_, err = NewPrometheusFeeder(reg, c, time.Minute)
	assert.Error(t, err, "gauges may only be registered once")

	f.Feed(c.Snapshot())
	assert.Equal(t, float64(5), testutil.ToFloat64(f.calls.With(prometheus.Labels{"service": _users, "result": "total"})))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.calls.With(prometheus.Labels{"service": _users, "result": "failure"})))
	assert.Equal(t, float64(2), testutil.ToFloat64(f.latency.With(prometheus.Labels{"service": _users, "quantile": "0.5"})))
	assert.Equal(t, float64(0), testutil.ToFloat64(f.breakerState.With(prometheus.Labels{"instance": _a})))

	b, _ := set.Lookup(_a)
	for i := 0; i < 20; i++ {
		if tk, ok := b.Allow(); ok {
			tk.Record(false)
		}
	}
	require.NoError(t, f.Start())
	require.Eventually(t, func() bool { return fc.Pending() == 1 }, time.Second, time.Millisecond)
	fc.Add(time.Minute)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(f.breakerState.With(prometheus.Labels{"instance": _a})) == 2
	}, time.Second, time.Millisecond)
	require.NoError(t, f.Stop())
	require.NoError(t, f.Stop())
}
