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
	"errors"
	"time"

	"go.uber.org/multierr"
)

// Config tunes a Pool. Zero fields take defaults.
type Config struct {
	// MaxConnsPerEndpoint caps open connections per endpoint. Defaults to 50.
	MaxConnsPerEndpoint int `yaml:"maxConnsPerEndpoint"`
	// MaxIdleAge closes connections idle for longer. Defaults to 10m.
	MaxIdleAge time.Duration `yaml:"maxIdleAge"`
	// MaxLifetime closes connections older than this once they are
	// released. Defaults to 1h.
	MaxLifetime time.Duration `yaml:"maxLifetime"`
	// AcquireTimeout bounds the wait for a free connection. Defaults to 5s.
	AcquireTimeout time.Duration `yaml:"acquireTimeout"`
	// DialTimeout bounds connection establishment. Defaults to 5s.
	DialTimeout time.Duration `yaml:"dialTimeout"`
	// SweepInterval is how often idle connections are checked for expiry.
	// Defaults to 30s.
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.MaxConnsPerEndpoint == 0 {
		c.MaxConnsPerEndpoint = 50
	}
	if c.MaxIdleAge == 0 {
		c.MaxIdleAge = 10 * time.Minute
	}
	if c.MaxLifetime == 0 {
		c.MaxLifetime = time.Hour
	}
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 30 * time.Second
	}
	return c
}

// Validate reports every invalid field.
func (c Config) Validate() (err error) {
	if c.MaxConnsPerEndpoint < 1 {
		err = multierr.Append(err, errors.New("pool maxConnsPerEndpoint must be positive"))
	}
	if c.MaxIdleAge < 0 {
		err = multierr.Append(err, errors.New("pool maxIdleAge must not be negative"))
	}
	if c.MaxLifetime < 0 {
		err = multierr.Append(err, errors.New("pool maxLifetime must not be negative"))
	}
	if c.AcquireTimeout < 0 {
		err = multierr.Append(err, errors.New("pool acquireTimeout must not be negative"))
	}
	if c.DialTimeout < 0 {
		err = multierr.Append(err, errors.New("pool dialTimeout must not be negative"))
	}
	if c.SweepInterval < 0 {
		err = multierr.Append(err, errors.New("pool sweepInterval must not be negative"))
	}
	return err
}
