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

// Package endpoint describes the network targets the backend talks to.
package endpoint

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"

	"github.com/unibridge/backend/rpcerrors"
)

// Protocol is the call style an endpoint serves.
type Protocol int

const (
	// RPC endpoints serve unary calls.
	RPC Protocol = iota
	// RPCStream endpoints serve streaming calls.
	RPCStream
)

// String returns "rpc" or "rpc-stream".
func (p Protocol) String() string {
	switch p {
	case RPC:
		return "rpc"
	case RPCStream:
		return "rpc-stream"
	default:
		return "protocol(" + strconv.Itoa(int(p)) + ")"
	}
}

// ParseProtocol is the inverse of Protocol.String. An empty string is RPC.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "", "rpc":
		return RPC, nil
	case "rpc-stream", "stream":
		return RPCStream, nil
	}
	return RPC, fmt.Errorf("unknown protocol %q", s)
}

// DefaultWeight is used when an endpoint is created with weight zero.
const DefaultWeight = 1.0

// Key identifies an endpoint. Two endpoints with equal keys are the same
// network target regardless of weight.
type Key struct {
	Host     string
	Port     uint16
	Protocol Protocol
	TLS      bool
}

// Endpoint is an immutable network target. Build one with New.
type Endpoint struct {
	key    Key
	weight float64
	id     string
}

// New validates and builds an endpoint. Zero weight means DefaultWeight.
func New(host string, port int, protocol Protocol, tls bool, weight float64) (Endpoint, error) {
	host = strings.TrimSpace(host)
	switch {
	case host == "":
		return Endpoint{}, &rpcerrors.InvalidEndpointError{Host: host, Port: port, Reason: "host must not be empty"}
	case port < 1 || port > math.MaxUint16:
		return Endpoint{}, &rpcerrors.InvalidEndpointError{Host: host, Port: port, Reason: "port must be in [1, 65535]"}
	case protocol != RPC && protocol != RPCStream:
		return Endpoint{}, &rpcerrors.InvalidEndpointError{Host: host, Port: port, Reason: "unknown protocol " + protocol.String()}
	case math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0:
		return Endpoint{}, &rpcerrors.InvalidEndpointError{Host: host, Port: port, Reason: fmt.Sprintf("weight %v must be a finite non-negative number", weight)}
	}
	if weight == 0 {
		weight = DefaultWeight
	}

	key := Key{Host: host, Port: uint16(port), Protocol: protocol, TLS: tls}
	return Endpoint{key: key, weight: weight, id: key.String()}, nil
}

// Parse builds an RPC endpoint from a "host:port" address.
func Parse(hostport string, tls bool, weight float64) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Endpoint{}, &rpcerrors.InvalidEndpointError{Host: hostport, Reason: err.Error()}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, &rpcerrors.InvalidEndpointError{Host: host, Reason: fmt.Sprintf("port %q is not a number", portStr)}
	}
	return New(host, port, RPC, tls, weight)
}

// String renders the key as scheme://host:port.
func (k Key) String() string {
	scheme := k.Protocol.String()
	if k.TLS {
		scheme += "+tls"
	}
	return scheme + "://" + net.JoinHostPort(k.Host, strconv.Itoa(int(k.Port)))
}

// ID is the stable identifier of the endpoint, derived from its key.
func (e Endpoint) ID() string { return e.id }

// Key returns the comparable identity of the endpoint.
func (e Endpoint) Key() Key { return e.key }

// Host returns the host name or address.
func (e Endpoint) Host() string { return e.key.Host }

// Port returns the port.
func (e Endpoint) Port() uint16 { return e.key.Port }

// Protocol returns the call style.
func (e Endpoint) Protocol() Protocol { return e.key.Protocol }

// TLS reports whether connections must use TLS.
func (e Endpoint) TLS() bool { return e.key.TLS }

// Weight is the relative share of traffic for weighted selection.
func (e Endpoint) Weight() float64 { return e.weight }

// Address returns host:port, suitable for dialing.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.key.Host, strconv.Itoa(int(e.key.Port)))
}

// IsZero reports whether e was never built by New.
func (e Endpoint) IsZero() bool { return e.id == "" }

// Equal compares endpoints by host, port, protocol and TLS; weight is
// metadata and does not take part.
func (e Endpoint) Equal(o Endpoint) bool { return e.key == o.key }

// WithWeight returns a copy of e with a different weight.
func (e Endpoint) WithWeight(weight float64) (Endpoint, error) {
	return New(e.key.Host, int(e.key.Port), e.key.Protocol, e.key.TLS, weight)
}

func (e Endpoint) String() string { return e.id }
