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

// Package backoff computes exponential delays for retry loops and for
// circuit breaker cooldowns.
package backoff

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Option customizes an Exponential backoff.
type Option func(*options)

type options struct {
	base, max time.Duration
	jitter    bool
	rand      *rand.Rand
}

func (o options) validate() (err error) {
	if o.base <= 0 {
		err = multierr.Append(err, errors.New("invalid base for exponential backoff, need greater than zero"))
	}
	if o.max < o.base {
		err = multierr.Append(err, errors.New("exponential max value must be greater than or equal to the base"))
	}
	return err
}

var defaultOptions = options{
	base:   20 * time.Millisecond,
	max:    time.Second,
	jitter: true,
}

// BaseJump sets the delay of the first attempt.
func BaseJump(d time.Duration) Option {
	return func(o *options) {
		o.base = d
	}
}

// MaxBackoff caps every delay returned.
func MaxBackoff(d time.Duration) Option {
	return func(o *options) {
		o.max = d
	}
}

// NoJitter makes Duration deterministic: base * 2^attempt, capped at max.
func NoJitter() Option {
	return func(o *options) {
		o.jitter = false
	}
}

// Seed fixes the jitter source, for tests.
func Seed(seed int64) Option {
	return func(o *options) {
		o.rand = rand.New(rand.NewSource(seed))
	}
}

// Exponential doubles its delay on every attempt. With jitter enabled the
// delay for attempt n is drawn uniformly from [d/2, d] where
// d = min(base * 2^n, max), so retries never collapse to zero wait.
// It is safe for concurrent use.
type Exponential struct {
	opts options

	mu sync.Mutex
}

// NewExponential returns a new exponential backoff.
func NewExponential(opts ...Option) (*Exponential, error) {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.rand == nil {
		o.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Exponential{opts: o}, nil
}

// Duration returns how long to wait before the given attempt, counting from
// zero.
func (e *Exponential) Duration(attempt uint) time.Duration {
	d := e.ceiling(attempt)
	if !e.opts.jitter || d < 2 {
		return d
	}
	half := int64(d / 2)
	e.mu.Lock()
	n := e.opts.rand.Int63n(half + 1)
	e.mu.Unlock()
	return time.Duration(half + n)
}

func (e *Exponential) ceiling(attempt uint) time.Duration {
	if attempt >= 62 {
		return e.opts.max
	}
	d := e.opts.base << attempt
	// either the shift overflowed or we went past the cap
	if d <= 0 || d > e.opts.max || d>>attempt != e.opts.base {
		return e.opts.max
	}
	return d
}
