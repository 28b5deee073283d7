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

// Package breaker implements per-instance circuit breakers.
//
// A breaker keeps its whole state in an immutable snapshot behind an atomic
// pointer. Allow and Ticket.Record compute the next snapshot and publish it
// with compare-and-swap, retrying on contention, so concurrent completions
// never lose an update and no caller ever blocks on a lock.
//
// Every trip and every close starts a new generation. A Ticket remembers the
// generation that allowed its call, and results from an older generation
// are dropped, so a call let through while closed cannot count as a trial.
package breaker

import (
	"math/bits"
	"time"

	"github.com/unibridge/backend/internal/backoff"
	"github.com/unibridge/backend/internal/clock"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// State is the state of a circuit breaker.
type State int

const (
	// Closed lets every call through.
	Closed State = iota
	// Open rejects every call until the cooldown passes.
	Open
	// HalfOpen lets a limited number of trial calls through.
	HalfOpen
)

// String returns a lower-case name of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state name, for JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Observer is told about every state transition, after it happened.
type Observer func(name string, from, to State)

// Option customizes a Breaker.
type Option func(*options)

type options struct {
	clock    clock.Clock
	logger   *zap.Logger
	observer Observer
}

// WithClock sets the clock used for cooldowns.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver registers a transition callback.
func WithObserver(fn Observer) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// state is an immutable snapshot; a new one is published on every change.
type state struct {
	state State
	gen   uint64

	// outcomes holds the most recent results, newest in bit 0; a set bit is
	// a failure.
	outcomes uint64
	samples  int

	openedAt time.Time
	cooldown time.Duration
	// trips counts consecutive openings without closing in between.
	trips uint

	trialsInFlight int
	trialSuccesses int
}

func (s *state) failures(window int) int {
	return bits.OnesCount64(s.outcomes & windowMask(window))
}

func windowMask(window int) uint64 {
	if window >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(window)) - 1
}

// Breaker guards one service instance.
type Breaker struct {
	name     string
	cfg      Config
	clock    clock.Clock
	logger   *zap.Logger
	observer Observer
	cooldown *backoff.Exponential

	current atomic.Pointer[state]
}

// New returns a closed breaker. The config is validated after defaults are
// applied.
func New(name string, cfg Config, opts ...Option) (*Breaker, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{
		clock:  clock.NewReal(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	cooldown, err := backoff.NewExponential(
		backoff.BaseJump(cfg.Cooldown),
		backoff.MaxBackoff(cfg.MaxCooldown),
		backoff.NoJitter(),
	)
	if err != nil {
		return nil, err
	}

	b := &Breaker{
		name:     name,
		cfg:      cfg,
		clock:    o.clock,
		logger:   o.logger.With(zap.String("breaker", name)),
		observer: o.observer,
		cooldown: cooldown,
	}
	b.current.Store(&state{state: Closed, gen: 1})
	return b, nil
}

// Ticket is handed out by Allow for every call let through. Exactly one of
// Record or Cancel must be called on it once the call ends, or half-open
// trial slots leak. The zero Ticket records nothing.
type Ticket struct {
	b   *Breaker
	gen uint64
}

// Record reports the outcome of the call the ticket was issued for.
func (t Ticket) Record(success bool) {
	if t.b != nil {
		t.b.record(t.gen, success)
	}
}

// Cancel gives back the trial slot of a call that ended without an outcome,
// such as a call its caller cancelled. It records nothing.
func (t Ticket) Cancel() {
	if t.b != nil {
		t.b.cancel(t.gen)
	}
}

// Name returns the name the breaker was created with.
func (b *Breaker) Name() string { return b.name }

// Allow reports whether a call may proceed, and returns the ticket the
// outcome of the call must be reported on.
func (b *Breaker) Allow() (Ticket, bool) {
	for {
		cur := b.current.Load()
		switch cur.state {
		case Closed:
			return Ticket{b: b, gen: cur.gen}, true

		case Open:
			if b.clock.Now().Before(cur.openedAt.Add(cur.cooldown)) {
				return Ticket{}, false
			}
			next := &state{
				state:          HalfOpen,
				gen:            cur.gen,
				openedAt:       cur.openedAt,
				cooldown:       cur.cooldown,
				trips:          cur.trips,
				trialsInFlight: 1,
			}
			if b.current.CompareAndSwap(cur, next) {
				b.transitioned(Open, next)
				return Ticket{b: b, gen: next.gen}, true
			}

		case HalfOpen:
			if cur.trialsInFlight >= b.cfg.HalfOpenTrials {
				return Ticket{}, false
			}
			next := *cur
			next.trialsInFlight++
			if b.current.CompareAndSwap(cur, &next) {
				return Ticket{b: b, gen: next.gen}, true
			}

		default:
			return Ticket{}, false
		}
	}
}

// record applies the outcome of a call allowed in generation gen. Results
// arriving while the breaker is open are ignored, so they never push the
// end of the cooldown back.
func (b *Breaker) record(gen uint64, success bool) {
	for {
		cur := b.current.Load()
		if cur.gen != gen {
			return
		}
		var next *state

		switch cur.state {
		case Open:
			return

		case Closed:
			n := *cur
			n.outcomes <<= 1
			if !success {
				n.outcomes |= 1
			}
			n.outcomes &= windowMask(b.cfg.WindowSize)
			if n.samples < b.cfg.WindowSize {
				n.samples++
			}
			next = &n
			if b.shouldTrip(next) {
				next = b.open(cur)
			}

		case HalfOpen:
			n := *cur
			if n.trialsInFlight > 0 {
				n.trialsInFlight--
			}
			n.trialSuccesses++
			next = &n
			switch {
			case !success:
				// any trial failure reopens with a longer cooldown
				next = b.open(cur)
			case n.trialSuccesses >= b.cfg.HalfOpenSuccesses:
				next = &state{state: Closed, gen: cur.gen + 1}
			}
		}

		if b.current.CompareAndSwap(cur, next) {
			if cur.state != next.state {
				b.transitioned(cur.state, next)
			}
			return
		}
	}
}

func (b *Breaker) shouldTrip(s *state) bool {
	if s.samples < b.cfg.MinSamples {
		return false
	}
	rate := float64(s.failures(b.cfg.WindowSize)) / float64(s.samples)
	return rate > b.cfg.FailureThreshold
}

func (b *Breaker) open(cur *state) *state {
	return &state{
		state:    Open,
		gen:      cur.gen + 1,
		openedAt: b.clock.Now(),
		cooldown: b.cooldown.Duration(cur.trips),
		trips:    cur.trips + 1,
	}
}

// transitioned reports the move from one state to the published next.
func (b *Breaker) transitioned(from State, next *state) {
	fields := []zap.Field{zap.Stringer("from", from), zap.Stringer("to", next.state)}
	if next.state == Open {
		fields = append(fields, zap.Duration("cooldown", next.cooldown), zap.Uint("trips", next.trips))
	}
	b.logger.Info("Circuit breaker changed state.", fields...)
	if b.observer != nil {
		b.observer(b.name, from, next.state)
	}
}

// State returns the current state. An open breaker whose cooldown has
// passed still reports Open until the next Allow moves it to HalfOpen.
func (b *Breaker) State() State {
	return b.current.Load().state
}

func (b *Breaker) cancel(gen uint64) {
	for {
		cur := b.current.Load()
		if cur.gen != gen || cur.state != HalfOpen || cur.trialsInFlight == 0 {
			return
		}
		next := *cur
		next.trialsInFlight--
		if b.current.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// Rejecting reports whether Allow would currently refuse a call, without
// taking a trial slot.
func (b *Breaker) Rejecting() bool {
	cur := b.current.Load()
	switch cur.state {
	case Open:
		return b.clock.Now().Before(cur.openedAt.Add(cur.cooldown))
	case HalfOpen:
		return cur.trialsInFlight >= b.cfg.HalfOpenTrials
	default:
		return false
	}
}

// Reset forces the breaker closed and clears its history.
func (b *Breaker) Reset() {
	for {
		cur := b.current.Load()
		next := &state{state: Closed, gen: cur.gen + 1}
		if b.current.CompareAndSwap(cur, next) {
			if cur.state != Closed {
				b.transitioned(cur.state, next)
			}
			return
		}
	}
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name           string
	State          State
	Samples        int
	Failures       int
	OpenedAt       time.Time
	Cooldown       time.Duration
	Trips          uint
	TrialsInFlight int
	TrialSuccesses int
}

// Snapshot returns the current counters of the breaker.
func (b *Breaker) Snapshot() Snapshot {
	s := b.current.Load()
	return Snapshot{
		Name:           b.name,
		State:          s.state,
		Samples:        s.samples,
		Failures:       s.failures(b.cfg.WindowSize),
		OpenedAt:       s.openedAt,
		Cooldown:       s.cooldown,
		Trips:          s.trips,
		TrialsInFlight: s.trialsInFlight,
		TrialSuccesses: s.trialSuccesses,
	}
}
