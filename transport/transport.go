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

// Package transport declares the capabilities the backend needs from an RPC
// transport: establishing connections to an endpoint and executing calls over
// one. Implementations live in sub-packages.
package transport

//go:generate mockgen -destination=transporttest/transport.go -package=transporttest github.com/unibridge/backend/transport Conn,Dialer,ClientStream,Transport

import (
	"context"

	"github.com/unibridge/backend/endpoint"
)

// Conn is an established connection to one endpoint. The pool lends a Conn
// to one call at a time, so implementations need not be safe for concurrent
// calls, but Close may race with a call that is timing out.
type Conn interface {
	Close() error
}

// Dialer establishes connections. Dial must honor ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context, ep endpoint.Endpoint) (Conn, error)
}

// DialerFunc adapts a function to a Dialer.
type DialerFunc func(ctx context.Context, ep endpoint.Endpoint) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, ep endpoint.Endpoint) (Conn, error) {
	return f(ctx, ep)
}

// Request is a unary call.
type Request struct {
	Service string
	Method  string
	Headers map[string]string
	Payload []byte
}

// Response is the result of a unary call.
type Response struct {
	Headers map[string]string
	Payload []byte
}

// StreamRequest opens a stream.
type StreamRequest struct {
	Service string
	Method  string
	Headers map[string]string
}

// ClientStream is the caller's side of an open stream. Recv returns io.EOF
// once the remote has finished sending.
type ClientStream interface {
	Send(payload []byte) error
	Recv() ([]byte, error)
	CloseSend() error
}

// Transport executes calls over connections it dialed. Call and Stream are
// bounded by ctx; the backend sets the caller's timeout as its deadline.
//
// Errors the remote returned on purpose must be marked with
// rpcerrors.Application; every other error is treated as a transport
// failure and counted against the instance's health.
type Transport interface {
	Dialer
	Call(ctx context.Context, conn Conn, req *Request) (*Response, error)
	Stream(ctx context.Context, conn Conn, req *StreamRequest) (ClientStream, error)
}
