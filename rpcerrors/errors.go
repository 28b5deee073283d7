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

// Package rpcerrors defines the failure taxonomy of the backend. Every error
// returned by the backend, pool, registry and endpoint packages is one of the
// types below, possibly wrapped in a CallError carrying call context.
package rpcerrors

import (
	"fmt"
	"time"
)

// InvalidEndpointError is returned when an endpoint fails validation. It is
// never retried.
type InvalidEndpointError struct {
	Host   string
	Port   int
	Reason string
}

func (e *InvalidEndpointError) Error() string {
	return fmt.Sprintf("invalid endpoint %q port %d: %s", e.Host, e.Port, e.Reason)
}

// DuplicateInstanceError is returned when an endpoint is registered twice for
// a service with conflicting metadata.
type DuplicateInstanceError struct {
	InstanceID      string
	ExistingWeight  float64
	RequestedWeight float64
}

func (e *DuplicateInstanceError) Error() string {
	return fmt.Sprintf("instance %q already registered with weight %v, refusing weight %v",
		e.InstanceID, e.ExistingWeight, e.RequestedWeight)
}

// NoHealthyInstancesError means the registry had no usable instance for the
// service. Callers should back off before retrying the call.
type NoHealthyInstancesError struct {
	Service string
}

func (e *NoHealthyInstancesError) Error() string {
	return fmt.Sprintf("no healthy instances of service %q", e.Service)
}

// AllInstancesUnavailableError means every candidate instance was rejected
// by its circuit breaker.
type AllInstancesUnavailableError struct {
	Service string
	Tried   int
}

func (e *AllInstancesUnavailableError) Error() string {
	return fmt.Sprintf("all %d candidate instances of service %q rejected by circuit breakers", e.Tried, e.Service)
}

// PoolExhaustedError means no connection became free within the acquire
// timeout. It signals backend overload.
type PoolExhaustedError struct {
	Endpoint string
	Waited   time.Duration
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("connection pool for %s exhausted after waiting %v", e.Endpoint, e.Waited)
}

// ConnectionError wraps a failure to establish a connection.
type ConnectionError struct {
	Endpoint string
	Cause    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Endpoint, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// TransportError wraps a low-level I/O failure on an established
// connection.
type TransportError struct {
	Endpoint string
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error talking to %s: %v", e.Endpoint, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// TimeoutError means the caller-supplied deadline passed. The caller's
// budget is spent so it is never retried internally.
type TimeoutError struct {
	Endpoint string
	Timeout  time.Duration
	Cause    error
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("call to %s timed out after %v", e.Endpoint, e.Timeout)
	}
	return fmt.Sprintf("call to %s exceeded its deadline", e.Endpoint)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// ApplicationError means the remote completed the call but reported a
// business-level failure. It is a correctness signal, not a health signal:
// it is never retried and never counted by circuit breakers.
type ApplicationError struct {
	Name  string
	Cause error
}

func (e *ApplicationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("application error %s: %v", e.Name, e.Cause)
	}
	return fmt.Sprintf("application error: %v", e.Cause)
}

func (e *ApplicationError) Unwrap() error { return e.Cause }

// Application marks err as an application-level failure. Transports use it
// for errors the remote returned on purpose.
func Application(name string, err error) error {
	if err == nil {
		return nil
	}
	return &ApplicationError{Name: name, Cause: err}
}

// CallError is the error surfaced once internal retries are exhausted. It
// carries the call context and wraps the most recent underlying error.
type CallError struct {
	Service  string
	Method   string
	Attempts int
	Tried    int
	Cause    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %s::%s failed after %d attempt(s) across %d instance(s): %v",
		e.Service, e.Method, e.Attempts, e.Tried, e.Cause)
}

func (e *CallError) Unwrap() error { return e.Cause }
