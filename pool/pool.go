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

// Package pool keeps persistent connections per endpoint so that calls do
// not pay connection setup, and bounds how many each endpoint may hold.
//
// Each endpoint has a semaphore with one slot per connection that may be
// lent out, plus a LIFO stack of idle connections guarded by a mutex whose
// critical sections are O(1) list operations. Dialing and closing always
// happen outside that mutex.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unibridge/backend/endpoint"
	"github.com/unibridge/backend/internal/clock"
	"github.com/unibridge/backend/rpcerrors"
	"github.com/unibridge/backend/transport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrClosed is returned by Acquire once the pool is closed.
var ErrClosed = errors.New("connection pool is closed")

var errEvicted = errors.New("endpoint was evicted from the pool")

// Option customizes a Pool.
type Option func(*Pool)

// WithClock sets the clock used for connection ages and acquire timeouts.
func WithClock(c clock.Clock) Option {
	return func(p *Pool) {
		p.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// Stats describes the connections of one endpoint.
type Stats struct {
	Open  int
	Idle  int
	InUse int
}

// Pool lends connections to endpoints. It is safe for concurrent use.
type Pool struct {
	cfg    Config
	dialer transport.Dialer
	clock  clock.Clock
	logger *zap.Logger

	mu        sync.Mutex
	endpoints map[string]*endpointPool
	closed    bool

	lifecycle sync.Mutex
	stop      chan struct{}
	done      chan struct{}
}

type endpointPool struct {
	endpoint endpoint.Endpoint
	// sem holds a token for every connection currently lent out.
	sem chan struct{}

	mu     sync.Mutex
	idle   []*Conn
	open   map[*Conn]struct{}
	closed bool
}

// New validates cfg and returns an empty pool dialing through dialer.
func New(cfg Config, dialer transport.Dialer, opts ...Option) (*Pool, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, errors.New("pool requires a dialer")
	}
	p := &Pool{
		cfg:       cfg,
		dialer:    dialer,
		clock:     clock.NewReal(),
		logger:    zap.NewNop(),
		endpoints: make(map[string]*endpointPool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Pool) endpointPool(ep endpoint.Endpoint) (*endpointPool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	epool, ok := p.endpoints[ep.ID()]
	if !ok {
		epool = &endpointPool{
			endpoint: ep,
			sem:      make(chan struct{}, p.cfg.MaxConnsPerEndpoint),
			open:     make(map[*Conn]struct{}),
		}
		p.endpoints[ep.ID()] = epool
	}
	return epool, nil
}

// Acquire lends a connection to ep. It reuses the most recently released
// idle connection that has not expired, dials a new one while the endpoint
// is under its cap, and otherwise waits up to the acquire timeout before
// failing with a PoolExhaustedError. Dial failures are ConnectionErrors.
func (p *Pool) Acquire(ctx context.Context, ep endpoint.Endpoint) (*Conn, error) {
	epool, err := p.endpointPool(ep)
	if err != nil {
		return nil, err
	}
	if err := p.reserve(ctx, epool); err != nil {
		return nil, err
	}

	conn, expired, err := epool.takeIdle(p.clock.Now(), p.cfg)
	p.closeAll(expired, "expired")
	if err != nil {
		<-epool.sem
		return nil, &rpcerrors.ConnectionError{Endpoint: ep.ID(), Cause: err}
	}
	if conn != nil {
		return conn, nil
	}
	return p.dial(ctx, epool)
}

// reserve takes a lending slot, waiting at most the acquire timeout.
func (p *Pool) reserve(ctx context.Context, epool *endpointPool) error {
	select {
	case epool.sem <- struct{}{}:
		return nil
	default:
	}

	start := p.clock.Now()
	timer := p.clock.Timer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case epool.sem <- struct{}{}:
		return nil
	case <-timer.C():
		return &rpcerrors.PoolExhaustedError{
			Endpoint: epool.endpoint.ID(),
			Waited:   clock.Since(p.clock, start),
		}
	case <-ctx.Done():
		return rpcerrors.Classify(ctx, epool.endpoint.ID(), 0, ctx.Err())
	}
}

func (p *Pool) dial(ctx context.Context, epool *endpointPool) (*Conn, error) {
	ep := epool.endpoint
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	raw, err := p.dialer.Dial(dialCtx, ep)
	cancel()
	if err != nil {
		<-epool.sem
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &rpcerrors.TimeoutError{Endpoint: ep.ID(), Cause: err}
		}
		return nil, &rpcerrors.ConnectionError{Endpoint: ep.ID(), Cause: err}
	}

	now := p.clock.Now()
	conn := &Conn{
		raw:      raw,
		endpoint: ep,
		owner:    epool,
		created:  now,
		lastUsed: now,
		inUse:    true,
	}

	epool.mu.Lock()
	if epool.closed {
		epool.mu.Unlock()
		<-epool.sem
		p.closeAll([]*Conn{conn}, "evicted")
		return nil, &rpcerrors.ConnectionError{Endpoint: ep.ID(), Cause: errEvicted}
	}
	epool.open[conn] = struct{}{}
	epool.mu.Unlock()

	p.logger.Debug("Opened pooled connection.", zap.Stringer("endpoint", ep))
	return conn, nil
}

// takeIdle pops the newest usable idle connection, along with every expired
// one found on the way. It returns an error if the endpoint was evicted.
func (epool *endpointPool) takeIdle(now time.Time, cfg Config) (conn *Conn, expired []*Conn, err error) {
	epool.mu.Lock()
	defer epool.mu.Unlock()
	if epool.closed {
		return nil, nil, errEvicted
	}
	for len(epool.idle) > 0 {
		last := len(epool.idle) - 1
		c := epool.idle[last]
		epool.idle[last] = nil
		epool.idle = epool.idle[:last]
		if c.expired(now, cfg) {
			delete(epool.open, c)
			expired = append(expired, c)
			continue
		}
		c.inUse = true
		c.lastUsed = now
		return c, expired, nil
	}
	return nil, expired, nil
}

// Release returns a lent connection. Broken or expired connections, and
// connections of evicted endpoints, are closed instead of kept idle.
// Releasing a connection twice does nothing.
func (p *Pool) Release(c *Conn) {
	if c == nil {
		return
	}
	epool := c.owner
	now := p.clock.Now()

	epool.mu.Lock()
	if !c.inUse {
		epool.mu.Unlock()
		return
	}
	c.inUse = false
	keep := !epool.closed && !c.Broken() && now.Sub(c.created) < p.cfg.MaxLifetime
	if keep {
		c.lastUsed = now
		epool.idle = append(epool.idle, c)
	} else {
		delete(epool.open, c)
	}
	epool.mu.Unlock()
	<-epool.sem

	if !keep {
		reason := "expired"
		if c.Broken() {
			reason = "broken"
		}
		p.closeAll([]*Conn{c}, reason)
	}
}

// Evict closes every connection to ep, including lent ones, and forgets the
// endpoint. Callers still holding a connection may Release it as usual.
func (p *Pool) Evict(ep endpoint.Endpoint) error {
	p.mu.Lock()
	epool, ok := p.endpoints[ep.ID()]
	delete(p.endpoints, ep.ID())
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return p.closeAll(epool.shutdown(), "evicted")
}

func (epool *endpointPool) shutdown() []*Conn {
	epool.mu.Lock()
	defer epool.mu.Unlock()
	epool.closed = true
	conns := make([]*Conn, 0, len(epool.open))
	for c := range epool.open {
		conns = append(conns, c)
	}
	epool.open = make(map[*Conn]struct{})
	epool.idle = nil
	return conns
}

// Stats returns the connection counts of ep.
func (p *Pool) Stats(ep endpoint.Endpoint) Stats {
	p.mu.Lock()
	epool, ok := p.endpoints[ep.ID()]
	p.mu.Unlock()
	if !ok {
		return Stats{}
	}
	epool.mu.Lock()
	defer epool.mu.Unlock()
	return Stats{
		Open:  len(epool.open),
		Idle:  len(epool.idle),
		InUse: len(epool.open) - len(epool.idle),
	}
}

func (p *Pool) closeAll(conns []*Conn, reason string) (err error) {
	for _, c := range conns {
		if cerr := c.close(); cerr != nil {
			p.logger.Warn("Failed to close pooled connection.",
				zap.Stringer("endpoint", c.endpoint),
				zap.String("reason", reason),
				zap.Error(cerr))
			err = multierr.Append(err, cerr)
			continue
		}
		p.logger.Debug("Closed pooled connection.",
			zap.Stringer("endpoint", c.endpoint),
			zap.String("reason", reason))
	}
	return err
}

// Close stops the sweeper and closes every connection. Acquire fails with
// ErrClosed afterwards.
func (p *Pool) Close() error {
	p.stopSweeper()

	p.mu.Lock()
	p.closed = true
	endpoints := p.endpoints
	p.endpoints = make(map[string]*endpointPool)
	p.mu.Unlock()

	var err error
	for _, epool := range endpoints {
		err = multierr.Append(err, p.closeAll(epool.shutdown(), "pool closed"))
	}
	return err
}
