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

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/unibridge/backend"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

// adminConfig configures the HTTP admin surface of the serve command.
type adminConfig struct {
	// Address the admin server listens on. Defaults to 127.0.0.1:8081.
	Address string `yaml:"address"`
	// FeedInterval is how often metric snapshots are copied into the
	// Prometheus gauges. Defaults to 15s.
	FeedInterval time.Duration `yaml:"feedInterval"`
}

// fileConfig is the layout of the file given to --config.
type fileConfig struct {
	Admin   adminConfig    `yaml:"admin"`
	Backend backend.Config `yaml:"backend"`
}

func (c fileConfig) withDefaults() fileConfig {
	if c.Admin.Address == "" {
		c.Admin.Address = "127.0.0.1:8081"
	}
	if c.Admin.FeedInterval == 0 {
		c.Admin.FeedInterval = 15 * time.Second
	}
	c.Backend = c.Backend.WithDefaults()
	return c
}

func (c fileConfig) validate() (err error) {
	if c.Admin.FeedInterval < 0 {
		err = multierr.Append(err, errors.New("admin feedInterval must not be negative"))
	}
	return multierr.Append(err, c.Backend.Validate())
}

func parseFileConfig(data []byte) (fileConfig, error) {
	var cfg fileConfig
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return fileConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	if path == "" {
		return fileConfig{}, errors.New("no config file given, use --config")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, err
	}
	return parseFileConfig(data)
}
