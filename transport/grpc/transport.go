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

// Package grpc implements the backend transport over gRPC. Each pooled
// connection is one *grpc.ClientConn; payloads are raw bytes, so the
// transport does not care how requests are encoded.
//
// Requests go to the method "/{service}/{method}", and headers travel as
// gRPC metadata.
package grpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"

	"github.com/unibridge/backend/endpoint"
	"github.com/unibridge/backend/transport"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Option customizes a Transport.
type Option func(*Transport)

// TLSConfig is used for endpoints that require TLS. Without one, TLS
// endpoints use the system roots.
func TLSConfig(cfg *tls.Config) Option {
	return func(t *Transport) {
		t.tlsConfig = cfg
	}
}

// DialOptions are appended to the options of every dial.
func DialOptions(opts ...grpc.DialOption) Option {
	return func(t *Transport) {
		t.dialOptions = append(t.dialOptions, opts...)
	}
}

// Logger sets the logger.
func Logger(l *zap.Logger) Option {
	return func(t *Transport) {
		t.logger = l
	}
}

// Transport dials gRPC connections and runs calls over them.
type Transport struct {
	tlsConfig   *tls.Config
	dialOptions []grpc.DialOption
	logger      *zap.Logger
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport builds a gRPC transport.
func NewTransport(opts ...Option) *Transport {
	t := &Transport{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type conn struct {
	cc       *grpc.ClientConn
	endpoint endpoint.Endpoint
}

func (c *conn) Close() error {
	return c.cc.Close()
}

// Dial blocks until the connection is up or ctx ends.
func (t *Transport) Dial(ctx context.Context, ep endpoint.Endpoint) (transport.Conn, error) {
	creds := insecure.NewCredentials()
	if ep.TLS() {
		cfg := t.tlsConfig
		if cfg == nil {
			cfg = &tls.Config{}
		}
		creds = credentials.NewTLS(cfg.Clone())
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
		grpc.WithBlock(),
		grpc.FailOnNonTempDialError(true),
	}, t.dialOptions...)

	cc, err := grpc.DialContext(ctx, ep.Address(), opts...)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("Dialed gRPC connection.", zap.Stringer("endpoint", ep))
	return &conn{cc: cc, endpoint: ep}, nil
}

func asConn(c transport.Conn) (*conn, error) {
	gc, ok := c.(*conn)
	if !ok {
		return nil, fmt.Errorf("grpc transport cannot use connection of type %T", c)
	}
	return gc, nil
}

func procedure(service, method string) string {
	return "/" + service + "/" + method
}

// Call runs a unary call.
func (t *Transport) Call(ctx context.Context, c transport.Conn, req *transport.Request) (*transport.Response, error) {
	gc, err := asConn(c)
	if err != nil {
		return nil, err
	}
	if len(req.Headers) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, metadata.New(req.Headers))
	}

	var (
		payload = req.Payload
		body    []byte
		header  metadata.MD
	)
	if payload == nil {
		payload = []byte{}
	}
	if err := gc.cc.Invoke(ctx, procedure(req.Service, req.Method), &payload, &body, grpc.Header(&header)); err != nil {
		return nil, fromStatus(gc.endpoint.ID(), err)
	}
	return &transport.Response{Headers: fromMetadata(header), Payload: body}, nil
}

// Stream opens a bidirectional stream.
func (t *Transport) Stream(ctx context.Context, c transport.Conn, req *transport.StreamRequest) (transport.ClientStream, error) {
	gc, err := asConn(c)
	if err != nil {
		return nil, err
	}
	if len(req.Headers) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, metadata.New(req.Headers))
	}
	desc := &grpc.StreamDesc{
		StreamName:    req.Method,
		ClientStreams: true,
		ServerStreams: true,
	}
	s, err := gc.cc.NewStream(ctx, desc, procedure(req.Service, req.Method))
	if err != nil {
		return nil, fromStatus(gc.endpoint.ID(), err)
	}
	return &clientStream{stream: s, endpointID: gc.endpoint.ID()}, nil
}

func fromMetadata(md metadata.MD) map[string]string {
	if len(md) == 0 {
		return nil
	}
	headers := make(map[string]string, len(md))
	for k, vs := range md {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
	}
	return headers
}

type clientStream struct {
	stream     grpc.ClientStream
	endpointID string
}

func (s *clientStream) Send(payload []byte) error {
	if err := s.stream.SendMsg(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			// The real error is reported by RecvMsg.
			return s.recvErr()
		}
		return fromStatus(s.endpointID, err)
	}
	return nil
}

func (s *clientStream) recvErr() error {
	var discard []byte
	err := s.stream.RecvMsg(&discard)
	if err == nil || errors.Is(err, io.EOF) {
		return io.EOF
	}
	return fromStatus(s.endpointID, err)
}

func (s *clientStream) Recv() ([]byte, error) {
	var msg []byte
	if err := s.stream.RecvMsg(&msg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fromStatus(s.endpointID, err)
	}
	return msg, nil
}

func (s *clientStream) CloseSend() error {
	return s.stream.CloseSend()
}
