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

package rpcerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("great sadness")
	tests := []struct {
		msg       string
		err       error
		kind      Kind
		retryable bool
		health    bool
	}{
		{msg: "nil", err: nil, kind: KindUnknown},
		{msg: "plain", err: cause, kind: KindUnknown},
		{msg: "invalid endpoint", err: &InvalidEndpointError{Host: "", Port: 1, Reason: "empty host"}, kind: KindInvalidEndpoint},
		{msg: "duplicate", err: &DuplicateInstanceError{InstanceID: "a"}, kind: KindDuplicateInstance},
		{msg: "no healthy", err: &NoHealthyInstancesError{Service: "s"}, kind: KindNoHealthyInstances},
		{msg: "all unavailable", err: &AllInstancesUnavailableError{Service: "s", Tried: 3}, kind: KindAllInstancesUnavailable},
		{msg: "pool exhausted", err: &PoolExhaustedError{Endpoint: "e"}, kind: KindPoolExhausted, retryable: true, health: true},
		{msg: "connection", err: &ConnectionError{Endpoint: "e", Cause: cause}, kind: KindConnection, retryable: true, health: true},
		{msg: "transport", err: &TransportError{Endpoint: "e", Cause: cause}, kind: KindTransport, retryable: true, health: true},
		{msg: "timeout", err: &TimeoutError{Endpoint: "e", Timeout: time.Second}, kind: KindTimeout, health: true},
		{msg: "application", err: Application("NotFound", cause), kind: KindApplication},
		{
			msg:       "wrapped in call error",
			err:       &CallError{Service: "s", Method: "m", Attempts: 3, Tried: 2, Cause: &TransportError{Cause: cause}},
			kind:      KindTransport,
			retryable: true,
			health:    true,
		},
		{
			msg:  "wrapped with fmt",
			err:  fmt.Errorf("outer: %w", &TimeoutError{}),
			kind: KindTimeout, health: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.retryable, Retryable(tt.err), "retryable")
			assert.Equal(t, tt.health, IsHealthFailure(tt.err), "health failure")
		})
	}
}

func TestClassify(t *testing.T) {
	cause := errors.New("connection reset by peer")

	assert.NoError(t, Classify(context.Background(), "e", time.Second, nil))

	err := Classify(context.Background(), "e", time.Second, cause)
	var terr *TransportError
	assert.True(t, errors.As(err, &terr))
	assert.True(t, errors.Is(err, cause), "cause is preserved")

	err = Classify(context.Background(), "e", time.Second, context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, KindOf(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Classify(ctx, "e", time.Second, cause)
	assert.Equal(t, KindUnknown, KindOf(err), "cancellation is not a health signal")
	assert.False(t, IsHealthFailure(err))
	assert.True(t, BreaksConnection(err))

	app := Application("Conflict", cause)
	assert.Equal(t, app, Classify(context.Background(), "e", time.Second, app), "taxonomy errors pass through")
	assert.False(t, BreaksConnection(app))

	bare := &TimeoutError{Endpoint: "e", Cause: context.DeadlineExceeded}
	err = Classify(context.Background(), "e", 20*time.Millisecond, bare)
	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, 20*time.Millisecond, timeout.Timeout)
	assert.Equal(t, "call to e timed out after 20ms", err.Error())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Zero(t, bare.Timeout, "the transport's error is not modified")

	set := &TimeoutError{Endpoint: "e", Timeout: time.Second}
	assert.Same(t, set, Classify(context.Background(), "e", time.Minute, set))
}

func TestErrorMessages(t *testing.T) {
	err := &CallError{
		Service:  "pricing-service",
		Method:   "Quote",
		Attempts: 3,
		Tried:    2,
		Cause:    &ConnectionError{Endpoint: "10.0.0.1:9000", Cause: errors.New("refused")},
	}
	assert.Equal(t,
		"call pricing-service::Quote failed after 3 attempt(s) across 2 instance(s): failed to connect to 10.0.0.1:9000: refused",
		err.Error())
	assert.Equal(t, "application error: nope", Application("", errors.New("nope")).Error())
	assert.Nil(t, Application("x", nil))
	assert.Equal(t, "pool-exhausted", KindPoolExhausted.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestStatusFromError(t *testing.T) {
	cause := errors.New("great sadness")
	tests := []struct {
		msg  string
		err  error
		code Code
	}{
		{msg: "nil", err: nil, code: CodeOK},
		{msg: "plain", err: cause, code: CodeUnknown},
		{msg: "status", err: Newf(CodeNotFound, "no user %q", "bob"), code: CodeNotFound},
		{msg: "status in application error", err: Application("", Newf(CodeFailedPrecondition, "nope")), code: CodeFailedPrecondition},
		{msg: "timeout", err: &TimeoutError{Endpoint: "e"}, code: CodeDeadlineExceeded},
		{msg: "exhausted", err: &PoolExhaustedError{Endpoint: "e"}, code: CodeResourceExhausted},
		{msg: "no healthy", err: &NoHealthyInstancesError{Service: "s"}, code: CodeUnavailable},
		{msg: "connection in call error", err: &CallError{Cause: &ConnectionError{Cause: cause}}, code: CodeUnavailable},
		{msg: "invalid endpoint", err: &InvalidEndpointError{Reason: "empty host"}, code: CodeInvalidArgument},
		{msg: "cancelled", err: context.Canceled, code: CodeCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.code, FromError(tt.err).Code())
		})
	}
}

func TestStatus(t *testing.T) {
	assert.Nil(t, Newf(CodeOK, "fine"))

	cause := errors.New("disk on fire")
	st := Newf(CodeInternal, "write failed: %w", cause)
	assert.Equal(t, "code:internal message:write failed: disk on fire", st.Error())
	assert.True(t, errors.Is(st, cause))
	assert.True(t, IsStatus(fmt.Errorf("wrapped: %w", st)))
	assert.False(t, IsStatus(cause))

	derived := FromError(&TransportError{Endpoint: "e", Cause: cause})
	assert.True(t, errors.Is(derived, cause))
	assert.Equal(t, "unavailable", derived.Code().String())
	assert.Equal(t, "99", Code(99).String())
}
