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

// Package lifecycle drives objects that start at most once and stop at
// most once, in that order.
package lifecycle

import (
	"context"
	"sync/atomic"

	"github.com/unibridge/backend/rpcerrors"
	uatomic "go.uber.org/atomic"
)

// State is where an object is in its life.
type State int32

const (
	// Idle means neither Start nor Stop was called.
	Idle State = iota
	// Starting means the start function is running.
	Starting
	// Running means the object started successfully.
	Running
	// Stopping means the stop function is running.
	Stopping
	// Stopped means the object stopped, or was stopped before it started.
	Stopped
	// Errored means starting or stopping failed.
	Errored
)

var _stateNames = map[State]string{
	Idle:     "idle",
	Starting: "starting",
	Running:  "running",
	Stopping: "stopping",
	Stopped:  "stopped",
	Errored:  "errored",
}

func (s State) String() string {
	if name, ok := _stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Once runs a start function and a stop function at most once each. The
// state only moves forward: an object that stopped cannot start again.
type Once struct {
	started  chan struct{}
	stopping chan struct{}
	stopped  chan struct{}

	// err is set by whichever goroutine runs start or stop, and returned
	// to every later caller.
	err   atomic.Value
	state uatomic.Int32
}

// NewOnce returns an Idle Once.
func NewOnce() *Once {
	return &Once{
		started:  make(chan struct{}),
		stopping: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start runs f if the object is Idle and blocks until it returns. Later calls
// wait for the first one and return its error. Starting an object that
// already stopped fails.
func (o *Once) Start(f func() error) error {
	if o.state.CAS(int32(Idle), int32(Starting)) {
		var err error
		if f != nil {
			err = f()
		}
		if err != nil {
			o.err.Store(err)
			o.state.Store(int32(Errored))
			close(o.stopping)
			close(o.stopped)
		} else {
			o.state.Store(int32(Running))
		}
		close(o.started)
		return err
	}

	<-o.started
	switch s := o.State(); s {
	case Running:
		return nil
	case Errored:
		return o.loadError()
	default:
		return rpcerrors.Newf(rpcerrors.CodeFailedPrecondition, "cannot start: already %v", s)
	}
}

// Stop runs f if the object is Running and blocks until it returns. Stopping
// an Idle object moves it straight to Stopped without calling f. Later
// calls wait for the first one and return its error.
func (o *Once) Stop(f func() error) error {
	if o.state.CAS(int32(Idle), int32(Stopped)) {
		close(o.started)
		close(o.stopping)
		close(o.stopped)
		return nil
	}

	<-o.started
	if o.state.CAS(int32(Running), int32(Stopping)) {
		close(o.stopping)
		var err error
		if f != nil {
			err = f()
		}
		if err != nil {
			o.err.Store(err)
			o.state.Store(int32(Errored))
		} else {
			o.state.Store(int32(Stopped))
		}
		close(o.stopped)
		return err
	}

	<-o.stopped
	return o.loadError()
}

// WaitUntilRunning blocks until the object is Running. It fails if the
// object is past Running, or once ctx ends.
func (o *Once) WaitUntilRunning(ctx context.Context) error {
	if s := o.State(); s == Running {
		return nil
	} else if s > Running {
		return rpcerrors.Newf(rpcerrors.CodeFailedPrecondition, "not running: %v", s)
	}
	select {
	case <-o.started:
		if s := o.State(); s != Running {
			return rpcerrors.Newf(rpcerrors.CodeFailedPrecondition, "did not start: %v", s)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Started is closed once starting finished, successfully or not.
func (o *Once) Started() <-chan struct{} { return o.started }

// Stopping is closed when stopping begins.
func (o *Once) Stopping() <-chan struct{} { return o.stopping }

// Stopped is closed once stopping finished.
func (o *Once) Stopped() <-chan struct{} { return o.stopped }

// State returns the current state. The object may have moved on by the
// time the caller looks at it.
func (o *Once) State() State { return State(o.state.Load()) }

// IsRunning reports whether the object is Running.
func (o *Once) IsRunning() bool { return o.State() == Running }

func (o *Once) loadError() error {
	if err, ok := o.err.Load().(error); ok {
		return err
	}
	return nil
}
