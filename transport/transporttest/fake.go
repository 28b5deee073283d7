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

package transporttest

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/unibridge/backend/endpoint"
	"github.com/unibridge/backend/transport"
	"go.uber.org/atomic"
)

// Behavior programs how a FakeTransport treats one endpoint. The zero
// Behavior echoes payloads back.
type Behavior struct {
	// DialErr fails every dial.
	DialErr error
	// Delay holds every call for the duration, or until its context ends.
	Delay time.Duration
	// Handler answers calls. It defaults to echoing the payload.
	Handler func(*transport.Request) (*transport.Response, error)
	// StreamErr fails every stream open.
	StreamErr error
	// RecvErr fails every Recv on streams that opened.
	RecvErr error
}

// FakeTransport is an in-memory transport whose endpoints behave as
// programmed.
type FakeTransport struct {
	mu        sync.Mutex
	behaviors map[string]Behavior
	dials     map[string]int
	calls     map[string]int
	conns     []*FakeConn
}

var _ transport.Transport = (*FakeTransport)(nil)

// NewFakeTransport returns a transport where every endpoint echoes.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		behaviors: make(map[string]Behavior),
		dials:     make(map[string]int),
		calls:     make(map[string]int),
	}
}

// SetBehavior programs ep.
func (f *FakeTransport) SetBehavior(ep endpoint.Endpoint, b Behavior) {
	f.mu.Lock()
	f.behaviors[ep.ID()] = b
	f.mu.Unlock()
}

func (f *FakeTransport) behavior(ep endpoint.Endpoint) Behavior {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.behaviors[ep.ID()]
}

// Dial opens a FakeConn.
func (f *FakeTransport) Dial(ctx context.Context, ep endpoint.Endpoint) (transport.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials[ep.ID()]++
	if err := f.behaviors[ep.ID()].DialErr; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &FakeConn{Endpoint: ep}
	f.conns = append(f.conns, c)
	return c, nil
}

// Call runs the endpoint's behavior.
func (f *FakeTransport) Call(ctx context.Context, conn transport.Conn, req *transport.Request) (*transport.Response, error) {
	c, ok := conn.(*FakeConn)
	if !ok {
		return nil, errors.New("transporttest: foreign connection")
	}
	if c.Closed() {
		return nil, errors.New("transporttest: use of closed connection")
	}

	f.mu.Lock()
	f.calls[c.Endpoint.ID()]++
	b := f.behaviors[c.Endpoint.ID()]
	f.mu.Unlock()

	if b.Delay > 0 {
		timer := time.NewTimer(b.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.Handler != nil {
		return b.Handler(req)
	}
	return &transport.Response{Payload: req.Payload}, nil
}

// Stream opens an echo stream.
func (f *FakeTransport) Stream(ctx context.Context, conn transport.Conn, req *transport.StreamRequest) (transport.ClientStream, error) {
	c, ok := conn.(*FakeConn)
	if !ok {
		return nil, errors.New("transporttest: foreign connection")
	}
	b := f.behavior(c.Endpoint)
	if b.StreamErr != nil {
		return nil, b.StreamErr
	}
	return &echoStream{
		ctx:     ctx,
		msgs:    make(chan []byte, 16),
		closed:  make(chan struct{}),
		recvErr: b.RecvErr,
	}, nil
}

// Dials returns how many times ep was dialed.
func (f *FakeTransport) Dials(ep endpoint.Endpoint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials[ep.ID()]
}

// Calls returns how many calls reached ep.
func (f *FakeTransport) Calls(ep endpoint.Endpoint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ep.ID()]
}

// Conns returns every connection dialed so far.
func (f *FakeTransport) Conns() []*FakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeConn(nil), f.conns...)
}

// FakeConn is a connection of a FakeTransport.
type FakeConn struct {
	Endpoint endpoint.Endpoint
	closed   atomic.Bool
}

// Close marks the connection closed.
func (c *FakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool { return c.closed.Load() }

type echoStream struct {
	ctx       context.Context
	msgs      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	recvErr   error
}

func (s *echoStream) Send(payload []byte) error {
	select {
	case <-s.closed:
		return errors.New("transporttest: send on closed stream")
	default:
	}
	select {
	case s.msgs <- payload:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *echoStream) Recv() ([]byte, error) {
	if s.recvErr != nil {
		return nil, s.recvErr
	}
	select {
	case msg := <-s.msgs:
		return msg, nil
	default:
	}
	select {
	case msg := <-s.msgs:
		return msg, nil
	case <-s.closed:
		select {
		case msg := <-s.msgs:
			return msg, nil
		default:
			return nil, io.EOF
		}
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

func (s *echoStream) CloseSend() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
