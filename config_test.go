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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unibridge/backend/balancer"
	"github.com/unibridge/backend/endpoint"
)

const sampleConfig = `
balancer: round-robin
defaultTimeout: 2s
probeInterval: 5s
pool:
  maxConnsPerEndpoint: 8
  acquireTimeout: 250ms
breaker:
  windowSize: 30
  cooldown: 10s
registry:
  drainGrace: 15s
  ttl: 1m
retry:
  maxRetries: 4
  baseBackoff: 10ms
services:
  pricing:
    - host: 10.0.0.1
      port: 8000
    - host: 10.0.0.2
      port: 8000
      weight: 3
      tls: true
  feed:
    - host: feed.internal
      port: 9000
      protocol: rpc-stream
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.WithDefaults().Validate())

	assert.Equal(t, balancer.RoundRobin, cfg.Balancer)
	assert.Equal(t, 2*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, 5*time.Second, cfg.ProbeInterval)
	assert.Equal(t, 8, cfg.Pool.MaxConnsPerEndpoint)
	assert.Equal(t, 250*time.Millisecond, cfg.Pool.AcquireTimeout)
	assert.Equal(t, 30, cfg.Breaker.WindowSize)
	assert.Equal(t, 15*time.Second, cfg.Registry.DrainGrace)
	assert.Equal(t, 4, cfg.Retry.MaxRetries)
	require.Len(t, cfg.Services["pricing"], 2)

	ep, err := cfg.Services["pricing"][1].Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "rpc+tls://10.0.0.2:8000", ep.ID())
	assert.Equal(t, 3.0, ep.Weight())

	ep, err = cfg.Services["feed"][0].Endpoint()
	require.NoError(t, err)
	assert.Equal(t, endpoint.RPCStream, ep.Protocol())
}

func TestParseConfigRejectsUnknownKeys(t *testing.T) {
	_, err := ParseConfig([]byte("balancer: random\nretires: 3\n"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Services, 2)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, balancer.WeightedLeastConn, cfg.Balancer)
	assert.Equal(t, 10*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 3, cfg.Retry.MaxAlternates)
	assert.Equal(t, 50, cfg.Pool.MaxConnsPerEndpoint)
	assert.Zero(t, cfg.ProbeInterval)

	disabled := Config{Retry: RetryConfig{Disabled: true, MaxRetries: 5}}.WithDefaults()
	assert.Zero(t, disabled.Retry.MaxRetries)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		msg  string
		give Config
	}{
		{msg: "unknown balancer", give: Config{Balancer: "fastest"}},
		{msg: "negative timeout", give: Config{DefaultTimeout: -time.Second}},
		{msg: "negative probe interval", give: Config{ProbeInterval: -time.Second}},
		{msg: "negative retries", give: Config{Retry: RetryConfig{MaxRetries: -1}}},
		{msg: "backoff ceiling below base", give: Config{Retry: RetryConfig{BaseBackoff: time.Second, MaxBackoff: time.Millisecond}}},
		{
			msg: "bad instance port",
			give: Config{Services: map[string][]InstanceConfig{
				"pricing": {{Host: "10.0.0.1", Port: 70000}},
			}},
		},
		{
			msg: "bad instance weight",
			give: Config{Services: map[string][]InstanceConfig{
				"pricing": {{Host: "10.0.0.1", Port: 8000, Weight: -1}},
			}},
		},
		{
			msg: "bad protocol",
			give: Config{Services: map[string][]InstanceConfig{
				"pricing": {{Host: "10.0.0.1", Port: 8000, Protocol: "http"}},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Error(t, tt.give.WithDefaults().Validate())
		})
	}
}
