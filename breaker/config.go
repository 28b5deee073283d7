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

package breaker

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// MaxWindowSize bounds Config.WindowSize; results are kept in a bitmap.
const MaxWindowSize = 64

// Config tunes a circuit breaker. Zero fields take the defaults documented
// on each field.
type Config struct {
	// WindowSize is the number of most recent results the failure rate is
	// computed over. Defaults to 20.
	WindowSize int `yaml:"windowSize"`
	// FailureThreshold is the failure rate in (0, 1] that must be exceeded
	// to open the breaker. Defaults to 0.5.
	FailureThreshold float64 `yaml:"failureThreshold"`
	// MinSamples is the number of results needed before the breaker may
	// open, so it does not trip on cold start. Defaults to 10.
	MinSamples int `yaml:"minSamples"`
	// Cooldown is how long the breaker stays open after its first trip.
	// Defaults to 30s.
	Cooldown time.Duration `yaml:"cooldown"`
	// MaxCooldown caps the doubling of Cooldown on consecutive trips.
	// Defaults to 5m.
	MaxCooldown time.Duration `yaml:"maxCooldown"`
	// HalfOpenSuccesses is the number of consecutive trial successes that
	// close the breaker. Defaults to 5.
	HalfOpenSuccesses int `yaml:"halfOpenSuccesses"`
	// HalfOpenTrials is the number of concurrent trial calls allowed while
	// half-open. Defaults to 3.
	HalfOpenTrials int `yaml:"halfOpenTrials"`
}

// DefaultConfig is the configuration used for zero fields.
var DefaultConfig = Config{
	WindowSize:        20,
	FailureThreshold:  0.5,
	MinSamples:        10,
	Cooldown:          30 * time.Second,
	MaxCooldown:       5 * time.Minute,
	HalfOpenSuccesses: 5,
	HalfOpenTrials:    3,
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig
	if c.WindowSize == 0 {
		c.WindowSize = d.WindowSize
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.MinSamples == 0 {
		c.MinSamples = d.MinSamples
	}
	if c.Cooldown == 0 {
		c.Cooldown = d.Cooldown
	}
	if c.MaxCooldown == 0 {
		c.MaxCooldown = d.MaxCooldown
		if c.MaxCooldown < c.Cooldown {
			c.MaxCooldown = c.Cooldown
		}
	}
	if c.HalfOpenSuccesses == 0 {
		c.HalfOpenSuccesses = d.HalfOpenSuccesses
	}
	if c.HalfOpenTrials == 0 {
		c.HalfOpenTrials = d.HalfOpenTrials
	}
	return c
}

// Validate reports every invalid field.
func (c Config) Validate() (err error) {
	if c.WindowSize < 1 || c.WindowSize > MaxWindowSize {
		err = multierr.Append(err, fmt.Errorf("breaker windowSize %d must be in [1, %d]", c.WindowSize, MaxWindowSize))
	}
	if c.FailureThreshold <= 0 || c.FailureThreshold > 1 {
		err = multierr.Append(err, fmt.Errorf("breaker failureThreshold %v must be in (0, 1]", c.FailureThreshold))
	}
	if c.MinSamples < 1 || c.MinSamples > c.WindowSize {
		err = multierr.Append(err, fmt.Errorf("breaker minSamples %d must be in [1, windowSize]", c.MinSamples))
	}
	if c.Cooldown <= 0 {
		err = multierr.Append(err, errors.New("breaker cooldown must be positive"))
	}
	if c.MaxCooldown < c.Cooldown {
		err = multierr.Append(err, errors.New("breaker maxCooldown must not be below cooldown"))
	}
	if c.HalfOpenSuccesses < 1 {
		err = multierr.Append(err, errors.New("breaker halfOpenSuccesses must be positive"))
	}
	if c.HalfOpenTrials < 1 {
		err = multierr.Append(err, errors.New("breaker halfOpenTrials must be positive"))
	}
	return err
}
