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

import (
	"context"
	"io"
	"sync"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/unibridge/backend/breaker"
	"github.com/unibridge/backend/internal/lifecycle"
	"github.com/unibridge/backend/pool"
	"github.com/unibridge/backend/registry"
	"github.com/unibridge/backend/rpcerrors"
	"github.com/unibridge/backend/transport"
)

// CallStreaming opens a bidirectional stream to method on an instance of
// service. The stream holds one pooled connection until it ends, and its
// outcome is recorded once: when Recv returns io.EOF or an error, when Send
// fails, or on Close. The timeout bounds the life of the whole stream.
//
// Opening the stream is retried like a unary call; nothing is retried once
// the stream is open.
func (b *Backend) CallStreaming(ctx context.Context, service, method string, timeout time.Duration) (*ClientStream, error) {
	if b.once.State() > lifecycle.Running {
		return nil, ErrStopped
	}
	if timeout <= 0 {
		timeout = b.cfg.DefaultTimeout
	}
	span, ctx := b.startSpan(ctx, "streaming", service, method)
	req := &transport.StreamRequest{Service: service, Method: method}

	b.retries.call()
	var (
		tried    = make(map[string]struct{})
		attempts int
		lastErr  error
	)
	maxRetries := b.cfg.Retry.MaxRetries
	if b.cfg.Retry.Disabled {
		maxRetries = 0
	}
	for retry := 0; retry <= maxRetries; retry++ {
		if retry > 0 {
			if !b.sleep(ctx, b.backoff.Duration(uint(retry-1))) {
				b.retries.noTimeError()
				break
			}
			b.retries.retry()
		}

		inst, ticket, err := b.choose(service)
		if err != nil {
			b.retries.unavailableError()
			if lastErr == nil {
				finishSpan(span, err)
				return nil, err
			}
			break
		}
		tried[inst.ID] = struct{}{}
		attempts++

		var s *ClientStream
		s, lastErr = b.openStream(ctx, span, inst, ticket, req, timeout)
		if lastErr == nil {
			b.retries.success()
			return s, nil
		}
		if !rpcerrors.Retryable(lastErr) {
			b.retries.unretryableError()
			break
		}
		if retry == maxRetries {
			b.retries.maxAttemptsError()
		}
	}

	if rpcerrors.KindOf(lastErr) == rpcerrors.KindApplication {
		finishSpan(span, lastErr)
		return nil, lastErr
	}
	err := &rpcerrors.CallError{
		Service:  service,
		Method:   method,
		Attempts: attempts,
		Tried:    len(tried),
		Cause:    lastErr,
	}
	finishSpan(span, err)
	return nil, err
}

func (b *Backend) openStream(
	ctx context.Context,
	span opentracing.Span,
	inst registry.ServiceInstance,
	ticket breaker.Ticket,
	req *transport.StreamRequest,
	timeout time.Duration,
) (*ClientStream, error) {
	end := b.loads.Begin(inst.ID)
	start := b.clock.Now()

	conn, err := b.pool.Acquire(ctx, inst.Endpoint)
	if err != nil {
		end()
		err = rpcerrors.Classify(ctx, inst.Endpoint.ID(), timeout, err)
		b.complete(inst, ticket, start, err)
		return nil, err
	}

	streamCtx, cancel := context.WithTimeout(ctx, timeout)
	raw, err := b.transport.Stream(streamCtx, conn.Raw(), req)
	if err != nil {
		err = rpcerrors.Classify(streamCtx, inst.Endpoint.ID(), timeout, err)
		cancel()
		end()
		if rpcerrors.BreaksConnection(err) {
			conn.MarkBroken()
		}
		b.pool.Release(conn)
		b.complete(inst, ticket, start, err)
		return nil, err
	}

	return &ClientStream{
		b:       b,
		ctx:     streamCtx,
		cancel:  cancel,
		end:     end,
		span:    span,
		inst:    inst,
		ticket:  ticket,
		conn:    conn,
		raw:     raw,
		start:   start,
		timeout: timeout,
	}, nil
}

// ClientStream is an open stream to one instance. Send and Recv follow the
// rules of the underlying transport: one goroutine may send while another
// receives.
type ClientStream struct {
	b       *Backend
	ctx     context.Context
	cancel  context.CancelFunc
	end     func()
	span    opentracing.Span
	inst    registry.ServiceInstance
	ticket  breaker.Ticket
	conn    *pool.Conn
	raw     transport.ClientStream
	start   time.Time
	timeout time.Duration

	once sync.Once
}

// Instance returns the ID of the instance serving the stream.
func (s *ClientStream) Instance() string { return s.inst.ID }

// Context returns the stream's context. It is done once the stream ends.
func (s *ClientStream) Context() context.Context { return s.ctx }

// Send sends one message. It returns io.EOF if the remote already ended the
// stream; Recv then reports how.
func (s *ClientStream) Send(payload []byte) error {
	err := s.raw.Send(payload)
	if err == nil || err == io.EOF {
		return err
	}
	return s.fail(err)
}

// Recv receives one message. It returns io.EOF once the remote has finished
// sending.
func (s *ClientStream) Recv() ([]byte, error) {
	payload, err := s.raw.Recv()
	switch {
	case err == nil:
		return payload, nil
	case err == io.EOF:
		s.finish(nil, true)
		return nil, io.EOF
	default:
		return nil, s.fail(err)
	}
}

// CloseSend tells the remote no more messages will be sent.
func (s *ClientStream) CloseSend() error {
	if err := s.raw.CloseSend(); err != nil && err != io.EOF {
		return s.fail(err)
	}
	return nil
}

// Close ends the stream, returning its connection to the pool. A stream
// abandoned before the remote finished it gives up its connection. Close
// is idempotent and must be called even after Recv returned io.EOF.
func (s *ClientStream) Close() error {
	s.finish(nil, false)
	return nil
}

func (s *ClientStream) fail(err error) error {
	err = rpcerrors.Classify(s.ctx, s.inst.Endpoint.ID(), s.timeout, err)
	s.finish(err, false)
	return err
}

// finish records the outcome of the stream exactly once. clean is set when
// the remote finished the stream.
func (s *ClientStream) finish(err error, clean bool) {
	s.once.Do(func() {
		s.cancel()
		s.end()
		if !clean && (err == nil || rpcerrors.BreaksConnection(err)) {
			s.conn.MarkBroken()
		}
		s.b.pool.Release(s.conn)
		s.b.complete(s.inst, s.ticket, s.start, err)
		finishSpan(s.span, err)
	})
}
