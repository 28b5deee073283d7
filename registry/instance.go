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

package registry

import (
	"fmt"
	"time"

	"github.com/unibridge/backend/endpoint"
)

// Status is the health of a service instance as seen by the registry.
type Status int

const (
	// Healthy instances are eligible for selection.
	Healthy Status = iota
	// Degraded instances are only selected when no instance is healthy.
	Degraded
	// Unhealthy instances are never selected.
	Unhealthy
	// Draining instances are being removed. They are never selected, but
	// calls already in flight are left to finish.
	Draining
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	case Draining:
		return "draining"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText encodes the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InstanceID returns the identifier of the instance of service served at
// ep. The same endpoint may serve several services.
func InstanceID(service string, ep endpoint.Endpoint) string {
	return service + "@" + ep.ID()
}

// ServiceInstance is a copy of what the registry knows about one instance.
// Mutating it has no effect on the registry.
type ServiceInstance struct {
	ID       string
	Service  string
	Endpoint endpoint.Endpoint
	Status   Status

	LastHealthCheck      time.Time
	ConsecutiveFailures  uint
	ConsecutiveSuccesses uint

	RegisteredAt  time.Time
	LastHeartbeat time.Time
}

// NewInstance describes a healthy instance of service at ep, ready to be
// registered.
func NewInstance(service string, ep endpoint.Endpoint) ServiceInstance {
	return ServiceInstance{
		ID:       InstanceID(service, ep),
		Service:  service,
		Endpoint: ep,
		Status:   Healthy,
	}
}

// EventType says what happened to an instance.
type EventType int

const (
	// Added is sent for newly registered instances.
	Added EventType = iota
	// StatusChanged is sent whenever an instance changes status, including
	// to Draining.
	StatusChanged
	// Removed is sent once an instance is gone for good, after its drain
	// grace period or on TTL expiry.
	Removed
)

func (t EventType) String() string {
	switch t {
	case Added:
		return "added"
	case StatusChanged:
		return "status-changed"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event describes a change to the registry.
type Event struct {
	Type     EventType
	Instance ServiceInstance
	// Previous is the status before a StatusChanged event.
	Previous Status
}

// Watcher receives registry events. It is called synchronously, without
// registry locks held, and must not block for long.
type Watcher func(Event)
