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
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/uber-go/tally/v4"
	tallyprom "github.com/uber-go/tally/v4/prometheus"
	"github.com/unibridge/backend"
	"github.com/unibridge/backend/metrics"
	"github.com/unibridge/backend/transport/grpc"
	"go.uber.org/multierr"
	netmetrics "go.uber.org/net/metrics"
	"go.uber.org/zap"
)

const _shutdownTimeout = 10 * time.Second

func newServeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the backend with its admin server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadFileConfig(flags.configPath)
			if err != nil {
				return err
			}
			logger, err := flags.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

// server is everything serve runs, wired together.
type server struct {
	logger  *zap.Logger
	backend *backend.Backend
	feeder  *metrics.PrometheusFeeder
	closer  interface{ Close() error }
	admin   *http.Server
}

func newServer(cfg fileConfig, logger *zap.Logger) (*server, error) {
	registry := prometheus.NewRegistry()
	reporter := tallyprom.NewReporter(tallyprom.Options{
		Registerer: registry,
		OnRegisterError: func(err error) {
			logger.Warn("Failed to register tally metric with Prometheus.", zap.Error(err))
		},
	})
	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:         "unibridge",
		CachedReporter: reporter,
		Separator:      tallyprom.DefaultSeparator,
	}, time.Second)

	meter := netmetrics.New()
	b, err := backend.New(cfg.Backend,
		grpc.NewTransport(grpc.Logger(logger.Named("grpc"))),
		backend.Logger(logger),
		backend.Meter(meter.Scope()),
		backend.Tally(scope),
	)
	if err != nil {
		return nil, multierr.Append(err, closer.Close())
	}
	feeder, err := metrics.NewPrometheusFeeder(registry, b.Metrics(), cfg.Admin.FeedInterval)
	if err != nil {
		return nil, multierr.Append(err, closer.Close())
	}

	return &server{
		logger:  logger,
		backend: b,
		feeder:  feeder,
		closer:  closer,
		admin: &http.Server{
			Addr:              cfg.Admin.Address,
			Handler:           newAdminHandler(b, registry, meter),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func serve(ctx context.Context, cfg fileConfig, logger *zap.Logger) error {
	s, err := newServer(cfg, logger)
	if err != nil {
		return err
	}
	if err := s.backend.Start(); err != nil {
		return multierr.Append(err, s.closer.Close())
	}
	if err := s.feeder.Start(); err != nil {
		return multierr.Combine(err, s.backend.Stop(), s.closer.Close())
	}

	lis, err := net.Listen("tcp", s.admin.Addr)
	if err != nil {
		return multierr.Append(err, s.stop())
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.admin.Serve(lis) }()
	logger.Info("Serving admin API.", zap.Stringer("address", lis.Addr()))

	select {
	case <-ctx.Done():
		logger.Info("Shutting down.")
	case err = <-serveErr:
		logger.Error("Admin server failed.", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), _shutdownTimeout)
	defer cancel()
	if serr := s.admin.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
		err = multierr.Append(err, serr)
	}
	return multierr.Append(err, s.stop())
}

func (s *server) stop() error {
	return multierr.Combine(
		s.feeder.Stop(),
		s.backend.Stop(),
		s.closer.Close(),
	)
}
