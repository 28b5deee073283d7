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

package endpoint

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unibridge/backend/rpcerrors"
)

func TestNewRejectsInvalid(t *testing.T) {
	tests := []struct {
		msg    string
		host   string
		port   int
		weight float64
	}{
		{msg: "port zero", host: "a", port: 0},
		{msg: "negative port", host: "a", port: -1},
		{msg: "port too large", host: "a", port: 65536},
		{msg: "huge port", host: "a", port: math.MaxInt32},
		{msg: "empty host", host: "", port: 80},
		{msg: "whitespace host", host: " \t ", port: 80},
		{msg: "negative weight", host: "a", port: 80, weight: -1},
		{msg: "nan weight", host: "a", port: 80, weight: math.NaN()},
		{msg: "inf weight", host: "a", port: 80, weight: math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			_, err := New(tt.host, tt.port, RPC, false, tt.weight)
			require.Error(t, err)
			var invalid *rpcerrors.InvalidEndpointError
			assert.True(t, errors.As(err, &invalid), "got %T", err)
			assert.Equal(t, rpcerrors.KindInvalidEndpoint, rpcerrors.KindOf(err))
		})
	}
}

func TestNewAcceptsPortRange(t *testing.T) {
	for _, port := range []int{1, 80, 8080, 65535} {
		e, err := New("localhost", port, RPC, false, 0)
		require.NoError(t, err, "port %d", port)
		assert.Equal(t, uint16(port), e.Port())
		assert.Equal(t, DefaultWeight, e.Weight())
	}
}

func TestEquality(t *testing.T) {
	a, err := New("10.0.0.1", 9000, RPC, false, 1)
	require.NoError(t, err)
	b, err := New(" 10.0.0.1 ", 9000, RPC, false, 5)
	require.NoError(t, err)
	c, err := New("10.0.0.1", 9000, RPC, true, 1)
	require.NoError(t, err)
	d, err := New("10.0.0.1", 9000, RPCStream, false, 1)
	require.NoError(t, err)

	assert.True(t, a.Equal(b), "weight is not part of identity")
	assert.Equal(t, a.ID(), b.ID())
	assert.False(t, a.Equal(c), "tls is part of identity")
	assert.False(t, a.Equal(d), "protocol is part of identity")
	assert.NotEqual(t, a.ID(), c.ID())

	assert.Equal(t, "rpc://10.0.0.1:9000", a.ID())
	assert.Equal(t, "rpc+tls://10.0.0.1:9000", c.ID())
	assert.Equal(t, "rpc-stream://10.0.0.1:9000", d.String())
	assert.Equal(t, "10.0.0.1:9000", a.Address())
}

func TestWithWeight(t *testing.T) {
	a, err := New("host", 1, RPC, false, 1)
	require.NoError(t, err)
	b, err := a.WithWeight(3)
	require.NoError(t, err)
	assert.Equal(t, 1.0, a.Weight(), "original is unchanged")
	assert.Equal(t, 3.0, b.Weight())
	assert.True(t, a.Equal(b))
}

func TestParse(t *testing.T) {
	e, err := Parse("[::1]:443", true, 2)
	require.NoError(t, err)
	assert.Equal(t, "::1", e.Host())
	assert.Equal(t, "rpc+tls://[::1]:443", e.ID())

	_, err = Parse("nope", false, 0)
	assert.Equal(t, rpcerrors.KindInvalidEndpoint, rpcerrors.KindOf(err))
	_, err = Parse("host:http", false, 0)
	assert.Equal(t, rpcerrors.KindInvalidEndpoint, rpcerrors.KindOf(err))
	_, err = Parse("host:0", false, 0)
	assert.Equal(t, rpcerrors.KindInvalidEndpoint, rpcerrors.KindOf(err))
}

func TestProtocol(t *testing.T) {
	p, err := ParseProtocol("")
	require.NoError(t, err)
	assert.Equal(t, RPC, p)
	p, err = ParseProtocol("rpc-stream")
	require.NoError(t, err)
	assert.Equal(t, RPCStream, p)
	_, err = ParseProtocol("carrier-pigeon")
	assert.Error(t, err)
	assert.Equal(t, "protocol(7)", Protocol(7).String())

	_, err = New("a", 1, Protocol(7), false, 0)
	assert.Equal(t, rpcerrors.KindInvalidEndpoint, rpcerrors.KindOf(err))
}
