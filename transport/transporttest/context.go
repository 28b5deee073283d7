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
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/unibridge/backend/transport"
)

// DefaultTTLDelta is the tolerance of ContextMatcher deadlines.
const DefaultTTLDelta = 50 * time.Millisecond

// ContextMatcher is a gomock Matcher for verifying that a context's deadline
// is within expected bounds: the current time, plus a TTL, plus or minus
// some tolerance.
type ContextMatcher struct {
	t   *testing.T
	ttl time.Duration

	TTLDelta time.Duration
}

// NewContextMatcher creates a ContextMatcher expecting a deadline ttl from
// now.
func NewContextMatcher(t *testing.T, ttl time.Duration) *ContextMatcher {
	return &ContextMatcher{t: t, ttl: ttl, TTLDelta: DefaultTTLDelta}
}

// Matches reports whether got is a context whose deadline is now plus the
// expected TTL, within tolerance.
func (c *ContextMatcher) Matches(got interface{}) bool {
	ctx, ok := got.(context.Context)
	if !ok {
		c.t.Logf("expected a Context but got a %T: %v", got, got)
		return false
	}

	d, ok := ctx.Deadline()
	if !ok {
		c.t.Logf("expected Context to have a TTL of %v but it has no deadline", c.ttl)
		return false
	}
	ttl := time.Until(d)
	maxTTL := c.ttl + c.TTLDelta
	minTTL := c.ttl - c.TTLDelta
	if ttl > maxTTL || ttl < minTTL {
		c.t.Logf("TTL out of expected bounds: %v < %v < %v", minTTL, ttl, maxTTL)
		return false
	}
	return true
}

func (c *ContextMatcher) String() string {
	return fmt.Sprintf("ContextMatcher(TTL:%v±%v)", c.ttl, c.TTLDelta)
}

// RequestMatcher is a gomock Matcher that matches unary requests by service,
// method and payload.
type RequestMatcher struct {
	t    *testing.T
	want *transport.Request
}

// NewRequestMatcher builds a RequestMatcher for want.
func NewRequestMatcher(t *testing.T, want *transport.Request) RequestMatcher {
	return RequestMatcher{t: t, want: want}
}

// Matches reports whether got is a request equal to the expected one.
// Headers are not compared.
func (m RequestMatcher) Matches(got interface{}) bool {
	req, ok := got.(*transport.Request)
	if !ok {
		m.t.Logf("expected a *transport.Request but got a %T: %v", got, got)
		return false
	}
	if req.Service != m.want.Service || req.Method != m.want.Method {
		m.t.Logf("procedure mismatch: %s::%s (want) != %s::%s (got)",
			m.want.Service, m.want.Method, req.Service, req.Method)
		return false
	}
	if !bytes.Equal(req.Payload, m.want.Payload) {
		m.t.Logf("payload mismatch: %q (want) != %q (got)", m.want.Payload, req.Payload)
		return false
	}
	return true
}

func (m RequestMatcher) String() string {
	return fmt.Sprintf("RequestMatcher(%s::%s)", m.want.Service, m.want.Method)
}
