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
	"time"
)

// Kind classifies an error into the taxonomy.
type Kind int

const (
	// KindUnknown is any error outside the taxonomy.
	KindUnknown Kind = iota
	KindInvalidEndpoint
	KindDuplicateInstance
	KindNoHealthyInstances
	KindAllInstancesUnavailable
	KindPoolExhausted
	KindConnection
	KindTransport
	KindTimeout
	KindApplication
)

var _kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindInvalidEndpoint:         "invalid-endpoint",
	KindDuplicateInstance:       "duplicate-instance",
	KindNoHealthyInstances:      "no-healthy-instances",
	KindAllInstancesUnavailable: "all-instances-unavailable",
	KindPoolExhausted:           "pool-exhausted",
	KindConnection:              "connection",
	KindTransport:               "transport",
	KindTimeout:                 "timeout",
	KindApplication:             "application",
}

// String returns the kind name used in metric tags and logs.
func (k Kind) String() string {
	if s, ok := _kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// KindOf returns the kind of the outermost taxonomy error in err's chain.
// Wrapping CallErrors are looked through.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for err != nil {
		switch err.(type) {
		case *InvalidEndpointError:
			return KindInvalidEndpoint
		case *DuplicateInstanceError:
			return KindDuplicateInstance
		case *NoHealthyInstancesError:
			return KindNoHealthyInstances
		case *AllInstancesUnavailableError:
			return KindAllInstancesUnavailable
		case *PoolExhaustedError:
			return KindPoolExhausted
		case *ConnectionError:
			return KindConnection
		case *TransportError:
			return KindTransport
		case *TimeoutError:
			return KindTimeout
		case *ApplicationError:
			return KindApplication
		}
		err = errors.Unwrap(err)
	}
	return KindUnknown
}

// Retryable reports whether the backend may retry a call that failed with
// err against another attempt. Timeouts are excluded since the caller's
// budget is spent, application errors since they are not idempotency-safe.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConnection, KindTransport, KindPoolExhausted:
		return true
	default:
		return false
	}
}

// IsHealthFailure reports whether err says something about the health of
// the instance that served the call, and so must be recorded against its
// circuit breaker and registry health.
func IsHealthFailure(err error) bool {
	switch KindOf(err) {
	case KindConnection, KindTransport, KindPoolExhausted, KindTimeout:
		return true
	default:
		return false
	}
}

// BreaksConnection reports whether the connection used for a call that
// failed with err is in an unknown state and must be discarded.
func BreaksConnection(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindTimeout, KindUnknown:
		return err != nil
	default:
		return false
	}
}

// Classify turns an error from a transport call into a taxonomy error.
// Errors already in the taxonomy are returned unchanged, except that a
// TimeoutError without a timeout gets the one the call ran with. Deadline
// errors, or any error once ctx's deadline passed, become TimeoutErrors;
// cancellations are returned as is; everything else is a TransportError.
func Classify(ctx context.Context, endpoint string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if te, ok := err.(*TimeoutError); ok && te.Timeout == 0 && timeout > 0 {
		withTimeout := *te
		withTimeout.Timeout = timeout
		return &withTimeout
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return &TimeoutError{Endpoint: endpoint, Timeout: timeout, Cause: err}
	}
	// Caller cancellation says nothing about the instance.
	if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		return err
	}
	return &TransportError{Endpoint: endpoint, Cause: err}
}
