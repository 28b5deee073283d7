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

package pool

import (
	"sync"
	"time"

	"github.com/unibridge/backend/endpoint"
	"github.com/unibridge/backend/transport"
	"go.uber.org/atomic"
)

// Conn is a pooled connection. It is lent to exactly one caller between
// Acquire and Release.
type Conn struct {
	raw      transport.Conn
	endpoint endpoint.Endpoint
	owner    *endpointPool
	created  time.Time

	// guarded by owner.mu
	lastUsed time.Time
	inUse    bool

	broken    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Raw returns the transport connection.
func (c *Conn) Raw() transport.Conn { return c.raw }

// Endpoint returns the endpoint the connection is open to.
func (c *Conn) Endpoint() endpoint.Endpoint { return c.endpoint }

// CreatedAt returns when the connection was established.
func (c *Conn) CreatedAt() time.Time { return c.created }

// MarkBroken flags the connection as unusable; Release will close it
// instead of keeping it idle. Callers mark connections broken after
// transport errors and timeouts, when the state of the wire is unknown.
func (c *Conn) MarkBroken() { c.broken.Store(true) }

// Broken reports whether MarkBroken was called.
func (c *Conn) Broken() bool { return c.broken.Load() }

func (c *Conn) close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}

func (c *Conn) expired(now time.Time, cfg Config) bool {
	return now.Sub(c.created) >= cfg.MaxLifetime || now.Sub(c.lastUsed) >= cfg.MaxIdleAge
}
