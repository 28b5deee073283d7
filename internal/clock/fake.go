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

package clock

import (
	"container/heap"
	"sync"
	"time"
)

// FakeClock only moves when told to. Timers and AfterFunc callbacks fire
// synchronously from Add and Set, in deadline order, so tests observe their
// effects as soon as Add returns.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers fakeTimers
	seq    int
}

var _ Clock = (*FakeClock)(nil)

// NewFake returns a fake clock set to the Unix epoch.
func NewFake() *FakeClock {
	return &FakeClock{now: time.Unix(0, 0)}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Add advances the clock by d, firing every timer that comes due.
func (c *FakeClock) Add(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Set advances the clock to end. Moving backwards is a no-op.
func (c *FakeClock) Set(end time.Time) {
	for {
		c.mu.Lock()
		if len(c.timers) == 0 || c.timers[0].when.After(end) {
			if c.now.Before(end) {
				c.now = end
			}
			c.mu.Unlock()
			return
		}
		t := heap.Pop(&c.timers).(*FakeTimer)
		if c.now.Before(t.when) {
			c.now = t.when
		}
		c.mu.Unlock()

		// Fire outside the lock; callbacks commonly read the clock.
		t.fire()
	}
}

// After produces a channel that will emit the time after d passes.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	return c.Timer(d).C()
}

// Timer produces a timer that will emit a time some duration after now.
func (c *FakeClock) Timer(d time.Duration) Timer {
	return c.newTimer(d, nil)
}

// AfterFunc calls f from within Add once d has passed.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	return c.newTimer(d, f)
}

// Pending reports the number of timers that have not fired yet.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *FakeClock) newTimer(d time.Duration, f func()) *FakeTimer {
	t := &FakeTimer{
		c:     make(chan time.Time, 1),
		f:     f,
		clock: c,
		index: -1,
	}
	c.mu.Lock()
	t.when = c.now.Add(d)
	c.push(t)
	due := d <= 0
	c.mu.Unlock()

	if due {
		c.Set(c.Now())
	}
	return t
}

// push must be called with the lock held.
func (c *FakeClock) push(t *FakeTimer) {
	c.seq++
	t.seq = c.seq
	heap.Push(&c.timers, t)
}

// FakeTimer is a timer scheduled on a FakeClock.
type FakeTimer struct {
	c     chan time.Time
	f     func()
	clock *FakeClock
	when  time.Time
	seq   int
	index int
}

// C returns the channel the timer delivers on. AfterFunc timers never
// deliver.
func (t *FakeTimer) C() <-chan time.Time { return t.c }

// Reset reschedules the timer d after the current fake time.
func (t *FakeTimer) Reset(d time.Duration) bool {
	c := t.clock
	c.mu.Lock()
	active := t.index >= 0
	if active {
		heap.Remove(&c.timers, t.index)
	}
	t.when = c.now.Add(d)
	c.push(t)
	c.mu.Unlock()
	return active
}

// Stop cancels the timer, returning whether it was still pending.
func (t *FakeTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&c.timers, t.index)
	return true
}

func (t *FakeTimer) fire() {
	if t.f != nil {
		t.f()
		return
	}
	select {
	case t.c <- t.when:
	default:
	}
}

// fakeTimers is a min-heap ordered by deadline, then creation order.
type fakeTimers []*FakeTimer

func (ts fakeTimers) Len() int { return len(ts) }

func (ts fakeTimers) Less(i, j int) bool {
	if ts[i].when.Equal(ts[j].when) {
		return ts[i].seq < ts[j].seq
	}
	return ts[i].when.Before(ts[j].when)
}

func (ts fakeTimers) Swap(i, j int) {
	ts[i], ts[j] = ts[j], ts[i]
	ts[i].index = i
	ts[j].index = j
}

func (ts *fakeTimers) Push(x interface{}) {
	t := x.(*FakeTimer)
	t.index = len(*ts)
	*ts = append(*ts, t)
}

func (ts *fakeTimers) Pop() interface{} {
	old := *ts
	t := old[len(old)-1]
	*ts = old[:len(old)-1]
	t.index = -1
	return t
}
