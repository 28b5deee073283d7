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

import "github.com/uber-go/tally/v4"

// retryObserver counts attempts and why calls stopped retrying.
type retryObserver struct {
	callCounter             tally.Counter
	retryCounter            tally.Counter
	successCounter          tally.Counter
	unretryableErrorCounter tally.Counter
	noTimeErrorCounter      tally.Counter
	maxAttemptsErrorCounter tally.Counter
	unavailableErrorCounter tally.Counter
}

func newRetryObserver(scope tally.Scope) *retryObserver {
	failures := func(reason string) tally.Counter {
		return scope.Tagged(map[string]string{"error": reason}).Counter("retry_failures")
	}
	return &retryObserver{
		callCounter:             scope.Counter("retry_calls"),
		retryCounter:            scope.Counter("retry_retries"),
		successCounter:          scope.Counter("retry_successes"),
		unretryableErrorCounter: failures("unretryable"),
		noTimeErrorCounter:      failures("notime"),
		maxAttemptsErrorCounter: failures("max_attempts"),
		unavailableErrorCounter: failures("unavailable"),
	}
}

func (o *retryObserver) call()             { o.callCounter.Inc(1) }
func (o *retryObserver) retry()            { o.retryCounter.Inc(1) }
func (o *retryObserver) success()          { o.successCounter.Inc(1) }
func (o *retryObserver) unretryableError() { o.unretryableErrorCounter.Inc(1) }
func (o *retryObserver) noTimeError()      { o.noTimeErrorCounter.Inc(1) }
func (o *retryObserver) maxAttemptsError() { o.maxAttemptsErrorCounter.Inc(1) }
func (o *retryObserver) unavailableError() { o.unavailableErrorCounter.Inc(1) }
