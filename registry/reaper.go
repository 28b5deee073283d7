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

package registry

import (
	"go.uber.org/zap"
)

// Start begins expiring instances that stop heartbeating. It does nothing
// when no TTL is configured. Start is idempotent.
func (r *Registry) Start() error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if r.cfg.TTL <= 0 || r.stop != nil {
		return nil
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.reapLoop(r.stop, r.done)
	return nil
}

// Stop halts expiry and waits for the reaper to exit. Pending drain
// removals still happen on schedule.
func (r *Registry) Stop() error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if r.stop == nil {
		return nil
	}
	close(r.stop)
	<-r.done
	r.stop, r.done = nil, nil
	return nil
}

func (r *Registry) reapLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		timer := r.clock.Timer(r.cfg.ReapInterval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C():
			r.reap()
		}
	}
}

// reap removes every instance whose last heartbeat is older than the TTL.
func (r *Registry) reap() {
	now := r.clock.Now()
	var events []Event

	r.mu.Lock()
	for _, e := range r.byID {
		if now.Sub(e.inst.LastHeartbeat) > r.cfg.TTL {
			events = append(events, Event{Type: Removed, Instance: r.removeLocked(e)})
		}
	}
	r.mu.Unlock()

	for _, ev := range events {
		r.logger.Warn("Expired service instance without heartbeat.",
			zap.String("instance", ev.Instance.ID),
			zap.Time("lastHeartbeat", ev.Instance.LastHeartbeat))
	}
	r.notify(events)
}
