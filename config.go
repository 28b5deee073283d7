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

package backend

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/unibridge/backend/balancer"
	"github.com/unibridge/backend/breaker"
	"github.com/unibridge/backend/endpoint"
	"github.com/unibridge/backend/pool"
	"github.com/unibridge/backend/registry"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

// RetryConfig bounds how the backend retries connection-level failures.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first. Defaults to 2.
	// Set Disabled to make exactly one attempt.
	MaxRetries int `yaml:"maxRetries"`
	// Disabled turns retries off.
	Disabled bool `yaml:"disabled"`
	// MaxAlternates is how many more instances are tried when a breaker
	// rejects the selected one. Defaults to 3.
	MaxAlternates int `yaml:"maxAlternates"`
	// BaseBackoff is the first retry's backoff; later retries double it,
	// with jitter. Defaults to 20ms.
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	// MaxBackoff caps the backoff. Defaults to 1s.
	MaxBackoff time.Duration `yaml:"maxBackoff"`
}

// WithDefaults fills zero fields.
func (c RetryConfig) WithDefaults() RetryConfig {
	if c.MaxRetries == 0 && !c.Disabled {
		c.MaxRetries = 2
	}
	if c.Disabled {
		c.MaxRetries = 0
	}
	if c.MaxAlternates == 0 {
		c.MaxAlternates = 3
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = 20 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = time.Second
	}
	return c
}

// Validate reports every invalid field.
func (c RetryConfig) Validate() (err error) {
	if c.MaxRetries < 0 {
		err = multierr.Append(err, errors.New("retry maxRetries must not be negative"))
	}
	if c.MaxAlternates < 0 {
		err = multierr.Append(err, errors.New("retry maxAlternates must not be negative"))
	}
	if c.BaseBackoff < 0 {
		err = multierr.Append(err, errors.New("retry baseBackoff must not be negative"))
	}
	if c.MaxBackoff < c.BaseBackoff {
		err = multierr.Append(err, errors.New("retry maxBackoff must not be less than baseBackoff"))
	}
	return err
}

// InstanceConfig describes a statically configured instance.
type InstanceConfig struct {
	Host     string  `yaml:"host"`
	Port     int     `yaml:"port"`
	Protocol string  `yaml:"protocol"`
	TLS      bool    `yaml:"tls"`
	Weight   float64 `yaml:"weight"`
}

// Endpoint builds and validates the endpoint. The protocol defaults to rpc.
func (c InstanceConfig) Endpoint() (endpoint.Endpoint, error) {
	proto := endpoint.RPC
	if c.Protocol != "" {
		p, err := endpoint.ParseProtocol(c.Protocol)
		if err != nil {
			return endpoint.Endpoint{}, err
		}
		proto = p
	}
	return endpoint.New(c.Host, c.Port, proto, c.TLS, c.Weight)
}

// Config configures a Backend. The zero value is usable.
type Config struct {
	// Balancer names the selection policy. Defaults to weighted-least-conn.
	Balancer string          `yaml:"balancer"`
	Pool     pool.Config     `yaml:"pool"`
	Breaker  breaker.Config  `yaml:"breaker"`
	Registry registry.Config `yaml:"registry"`
	Retry    RetryConfig     `yaml:"retry"`

	// DefaultTimeout applies to calls made without a timeout. Defaults to
	// 10s.
	DefaultTimeout time.Duration `yaml:"defaultTimeout"`
	// ProbeInterval is how often instances that are not healthy are dialed
	// to check whether they recovered. Zero disables probing.
	ProbeInterval time.Duration `yaml:"probeInterval"`
	// ReservoirSize bounds the latency samples kept per service and
	// instance.
	ReservoirSize int `yaml:"reservoirSize"`

	// Services lists instances registered when the backend starts.
	Services map[string][]InstanceConfig `yaml:"services"`
}

// WithDefaults fills zero fields, recursively.
func (c Config) WithDefaults() Config {
	if c.Balancer == "" {
		c.Balancer = balancer.WeightedLeastConn
	}
	c.Pool = c.Pool.WithDefaults()
	c.Breaker = c.Breaker.WithDefaults()
	c.Registry = c.Registry.WithDefaults()
	c.Retry = c.Retry.WithDefaults()
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = 10 * time.Second
	}
	return c
}

// Validate reports every invalid field, recursively.
func (c Config) Validate() error {
	err := multierr.Combine(
		c.Pool.Validate(),
		c.Breaker.Validate(),
		c.Registry.Validate(),
		c.Retry.Validate(),
	)
	if _, berr := balancer.New(c.Balancer); berr != nil {
		err = multierr.Append(err, berr)
	}
	if c.DefaultTimeout < 0 {
		err = multierr.Append(err, errors.New("defaultTimeout must not be negative"))
	}
	if c.ProbeInterval < 0 {
		err = multierr.Append(err, errors.New("probeInterval must not be negative"))
	}
	if c.ReservoirSize < 0 {
		err = multierr.Append(err, errors.New("reservoirSize must not be negative"))
	}
	for service, instances := range c.Services {
		for i, inst := range instances {
			if _, eerr := inst.Endpoint(); eerr != nil {
				err = multierr.Append(err, fmt.Errorf("service %q instance %d: %w", service, i, eerr))
			}
		}
	}
	return err
}

// ParseConfig decodes YAML into a Config. Unknown keys are errors.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode backend config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads and decodes the YAML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}
