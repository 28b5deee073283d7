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
	"errors"
	"time"

	"go.uber.org/multierr"
)

// Config tunes the registry. Zero fields take defaults.
type Config struct {
	// DrainGrace is how long a deregistered instance stays in Draining
	// before it is removed. Defaults to 30s.
	DrainGrace time.Duration `yaml:"drainGrace"`
	// TTL removes instances whose last heartbeat is older than this. Zero
	// disables expiry.
	TTL time.Duration `yaml:"ttl"`
	// ReapInterval is how often expired instances are looked for. Defaults
	// to half the TTL.
	ReapInterval time.Duration `yaml:"reapInterval"`
	// DegradedAfter consecutive failures mark an instance Degraded.
	// Defaults to 3.
	DegradedAfter uint `yaml:"degradedAfter"`
	// UnhealthyAfter consecutive failures mark an instance Unhealthy.
	// Defaults to 5.
	UnhealthyAfter uint `yaml:"unhealthyAfter"`
	// RecoverAfter consecutive successes bring a Degraded or Unhealthy
	// instance back to Healthy. Defaults to 2.
	RecoverAfter uint `yaml:"recoverAfter"`
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.DrainGrace == 0 {
		c.DrainGrace = 30 * time.Second
	}
	if c.ReapInterval == 0 && c.TTL > 0 {
		c.ReapInterval = c.TTL / 2
	}
	if c.DegradedAfter == 0 {
		c.DegradedAfter = 3
	}
	if c.UnhealthyAfter == 0 {
		c.UnhealthyAfter = 5
	}
	if c.RecoverAfter == 0 {
		c.RecoverAfter = 2
	}
	return c
}

// Validate reports every invalid field.
func (c Config) Validate() (err error) {
	if c.DrainGrace < 0 {
		err = multierr.Append(err, errors.New("registry drainGrace must not be negative"))
	}
	if c.TTL < 0 {
		err = multierr.Append(err, errors.New("registry ttl must not be negative"))
	}
	if c.TTL > 0 && c.ReapInterval <= 0 {
		err = multierr.Append(err, errors.New("registry reapInterval must be positive when a ttl is set"))
	}
	if c.UnhealthyAfter < c.DegradedAfter {
		err = multierr.Append(err, errors.New("registry unhealthyAfter must not be below degradedAfter"))
	}
	return err
}
