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

// Package registry tracks which instances exist for each logical service and
// how healthy they are.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/unibridge/backend/internal/clock"
	"github.com/unibridge/backend/rpcerrors"
	"go.uber.org/zap"
)

// ErrNotRegistered is returned by Handle.Heartbeat once the instance is
// gone.
var ErrNotRegistered = errors.New("instance is not registered")

// Option customizes a Registry.
type Option func(*Registry)

// WithClock sets the clock used for health timestamps, drain grace and TTL.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) {
		r.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

type entry struct {
	inst ServiceInstance
	// seq orders instances by first registration.
	seq     uint64
	removal clock.Timer
}

// Registry is the source of truth for service instances. It is safe for
// concurrent use.
type Registry struct {
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger

	mu       sync.RWMutex
	seq      uint64
	byID     map[string]*entry
	services map[string]map[string]*entry
	watchers []Watcher

	lifecycle sync.Mutex
	stop      chan struct{}
	done      chan struct{}
}

// New validates cfg and returns an empty registry.
func New(cfg Config, opts ...Option) (*Registry, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		cfg:      cfg,
		clock:    clock.NewReal(),
		logger:   zap.NewNop(),
		byID:     make(map[string]*entry),
		services: make(map[string]map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Watch registers fn for every future event.
func (r *Registry) Watch(fn Watcher) {
	r.mu.Lock()
	r.watchers = append(r.watchers, fn)
	r.mu.Unlock()
}

// Register adds inst, or refreshes it if an instance with the same ID is
// already known. Registering a draining instance again cancels its removal.
// Registering the same endpoint with a different weight fails with a
// DuplicateInstanceError.
func (r *Registry) Register(inst ServiceInstance) (*Handle, error) {
	if strings.TrimSpace(inst.Service) == "" {
		return nil, errors.New("service name must not be empty")
	}
	if inst.Endpoint.IsZero() {
		return nil, &rpcerrors.InvalidEndpointError{Reason: "endpoint was not built with endpoint.New"}
	}
	inst.ID = InstanceID(inst.Service, inst.Endpoint)
	now := r.clock.Now()

	var events []Event
	r.mu.Lock()
	if e, ok := r.byID[inst.ID]; ok {
		existing := e.inst.Endpoint.Weight()
		if requested := inst.Endpoint.Weight(); existing != requested {
			r.mu.Unlock()
			return nil, &rpcerrors.DuplicateInstanceError{
				InstanceID:      inst.ID,
				ExistingWeight:  existing,
				RequestedWeight: requested,
			}
		}
		e.inst.LastHeartbeat = now
		if e.inst.Status == Draining {
			if e.removal != nil {
				e.removal.Stop()
				e.removal = nil
			}
			events = append(events, r.setStatus(e, Healthy))
		}
		r.mu.Unlock()
		r.notify(events)
		return &Handle{r: r, id: inst.ID}, nil
	}

	r.seq++
	inst.Status = Healthy
	inst.ConsecutiveFailures = 0
	inst.ConsecutiveSuccesses = 0
	inst.RegisteredAt = now
	inst.LastHeartbeat = now
	e := &entry{inst: inst, seq: r.seq}
	r.byID[inst.ID] = e
	svc, ok := r.services[inst.Service]
	if !ok {
		svc = make(map[string]*entry)
		r.services[inst.Service] = svc
	}
	svc[inst.ID] = e
	events = append(events, Event{Type: Added, Instance: e.inst})
	r.mu.Unlock()

	r.logger.Info("Registered service instance.",
		zap.String("service", inst.Service),
		zap.Stringer("endpoint", inst.Endpoint))
	r.notify(events)
	return &Handle{r: r, id: inst.ID}, nil
}

// Deregister marks the instance Draining so it is no longer selected, and
// removes it once the drain grace period has passed. Deregistering an
// unknown or already draining instance does nothing.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok || e.inst.Status == Draining {
		r.mu.Unlock()
		return
	}
	event := r.setStatus(e, Draining)
	e.removal = r.clock.AfterFunc(r.cfg.DrainGrace, func() {
		r.removeDrained(id, e)
	})
	r.mu.Unlock()

	r.logger.Info("Draining service instance.",
		zap.String("instance", id),
		zap.Duration("grace", r.cfg.DrainGrace))
	r.notify([]Event{event})
}

func (r *Registry) removeDrained(id string, e *entry) {
	r.mu.Lock()
	// The instance may have been registered again, or expired, meanwhile.
	if cur, ok := r.byID[id]; !ok || cur != e || e.inst.Status != Draining {
		r.mu.Unlock()
		return
	}
	inst := r.removeLocked(e)
	r.mu.Unlock()

	r.logger.Info("Removed drained service instance.", zap.String("instance", id))
	r.notify([]Event{{Type: Removed, Instance: inst}})
}

// removeLocked must be called with the write lock held.
func (r *Registry) removeLocked(e *entry) ServiceInstance {
	if e.removal != nil {
		e.removal.Stop()
		e.removal = nil
	}
	delete(r.byID, e.inst.ID)
	if svc, ok := r.services[e.inst.Service]; ok {
		delete(svc, e.inst.ID)
		if len(svc) == 0 {
			delete(r.services, e.inst.Service)
		}
	}
	return e.inst
}

// ReportHealth records the outcome of a call or probe against the instance.
// Consecutive failures degrade and then fail the instance; a failing
// instance only becomes Healthy again after several consecutive successes,
// so it does not flap. Reports for unknown instances are ignored.
func (r *Registry) ReportHealth(id string, healthy bool) {
	var events []Event
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	inst := &e.inst
	inst.LastHealthCheck = r.clock.Now()

	if healthy {
		inst.ConsecutiveFailures = 0
		inst.ConsecutiveSuccesses++
		if (inst.Status == Degraded || inst.Status == Unhealthy) && inst.ConsecutiveSuccesses >= r.cfg.RecoverAfter {
			events = append(events, r.setStatus(e, Healthy))
		}
	} else {
		inst.ConsecutiveSuccesses = 0
		inst.ConsecutiveFailures++
		switch {
		case inst.Status == Draining:
		case inst.ConsecutiveFailures >= r.cfg.UnhealthyAfter && inst.Status != Unhealthy:
			events = append(events, r.setStatus(e, Unhealthy))
		case inst.ConsecutiveFailures >= r.cfg.DegradedAfter && inst.Status == Healthy:
			events = append(events, r.setStatus(e, Degraded))
		}
	}
	r.mu.Unlock()

	for _, ev := range events {
		r.logger.Warn("Service instance changed health.",
			zap.String("instance", id),
			zap.Stringer("from", ev.Previous),
			zap.Stringer("to", ev.Instance.Status))
	}
	r.notify(events)
}

// setStatus must be called with the write lock held. Draining instances keep
// their status until removed or registered again.
func (r *Registry) setStatus(e *entry, to Status) Event {
	from := e.inst.Status
	e.inst.Status = to
	if to == Healthy {
		e.inst.ConsecutiveFailures = 0
	}
	return Event{Type: StatusChanged, Instance: e.inst, Previous: from}
}

// Discover returns the healthy instances of service in registration order.
// An empty result is not an error.
func (r *Registry) Discover(service string) []ServiceInstance {
	return r.filter(service, func(s Status) bool { return s == Healthy })
}

// Degraded returns the degraded instances of service, used as a fallback
// when none are healthy.
func (r *Registry) Degraded(service string) []ServiceInstance {
	return r.filter(service, func(s Status) bool { return s == Degraded })
}

// Instances returns every known instance of service, whatever its status.
func (r *Registry) Instances(service string) []ServiceInstance {
	return r.filter(service, func(Status) bool { return true })
}

func (r *Registry) filter(service string, keep func(Status) bool) []ServiceInstance {
	r.mu.RLock()
	svc := r.services[service]
	entries := make([]*entry, 0, len(svc))
	for _, e := range svc {
		if keep(e.inst.Status) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]ServiceInstance, len(entries))
	for i, e := range entries {
		out[i] = e.inst
	}
	r.mu.RUnlock()
	return out
}

// Lookup returns the instance with the given ID.
func (r *Registry) Lookup(id string) (ServiceInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return ServiceInstance{}, false
	}
	return e.inst, true
}

// Services returns the names of all services with at least one instance.
func (r *Registry) Services() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.services))
	for name := range r.services {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("heartbeat for %q: %w", id, ErrNotRegistered)
	}
	e.inst.LastHeartbeat = r.clock.Now()
	return nil
}

func (r *Registry) notify(events []Event) {
	if len(events) == 0 {
		return
	}
	r.mu.RLock()
	watchers := r.watchers
	r.mu.RUnlock()
	for _, ev := range events {
		for _, w := range watchers {
			w(ev)
		}
	}
}

// Handle is returned by Register and lets the registrant keep its instance
// alive or remove it.
type Handle struct {
	r  *Registry
	id string
}

// ID returns the instance ID.
func (h *Handle) ID() string { return h.id }

// Heartbeat refreshes the instance's TTL.
func (h *Handle) Heartbeat() error { return h.r.heartbeat(h.id) }

// Deregister drains and then removes the instance.
func (h *Handle) Deregister() { h.r.Deregister(h.id) }
