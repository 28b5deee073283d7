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

// Package backend executes RPCs against logical services whose instances
// come from a registry.
//
// For every call the Backend picks an instance with the configured balancer
// (smooth weighted round-robin by default), consults the instance's circuit
// breaker, borrows a pooled connection, runs the call with the caller's
// timeout and retries connection-level failures a bounded number of times.
// Outcomes feed back into the breaker, the registry's health hysteresis and
// the metrics collector.
//
//	b, err := backend.New(backend.Config{}, grpc.NewTransport())
//	if err != nil {
//		return err
//	}
//	if err := b.Start(); err != nil {
//		return err
//	}
//	defer b.Stop()
//
//	b.Registry().Register(registry.NewInstance("pricing", ep))
//	res, err := b.CallUnary(ctx, "pricing", "Quote", payload, time.Second)
//
// Application errors reported by the remote are returned as is. They are
// never retried and do not count against the instance's health, since they
// say nothing about its availability.
package backend
