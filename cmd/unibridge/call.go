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
	"time"

	"github.com/spf13/cobra"
	"github.com/unibridge/backend"
	"github.com/unibridge/backend/transport"
	"github.com/unibridge/backend/transport/grpc"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type callFlags struct {
	service string
	method  string
	payload string
	headers map[string]string
	timeout time.Duration
}

func newCallCommand(flags *globalFlags) *cobra.Command {
	var cf callFlags
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Make one unary call and print the response payload",
		Args:  cobra.NoArgs,
		Example: `# Call Quote on an instance of the pricing service:
unibridge call -c unibridge.yaml --service pricing --method Quote --payload '{"sku":1}'`,
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
			return runCall(cmd, cfg, logger, cf)
		},
	}
	cmd.Flags().StringVar(&cf.service, "service", "", "service to call")
	cmd.Flags().StringVar(&cf.method, "method", "", "method to call")
	cmd.Flags().StringVar(&cf.payload, "payload", "", "request payload")
	cmd.Flags().StringToStringVar(&cf.headers, "header", nil, "request headers as key=value")
	cmd.Flags().DurationVar(&cf.timeout, "timeout", 0, "per-attempt timeout; the config default if zero")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("method")
	return cmd
}

func runCall(cmd *cobra.Command, cfg fileConfig, logger *zap.Logger, cf callFlags) (err error) {
	b, err := backend.New(cfg.Backend, grpc.NewTransport(grpc.Logger(logger)), backend.Logger(logger))
	if err != nil {
		return err
	}
	if err := b.Start(); err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, b.Stop()) }()

	res, err := b.Call(context.Background(), &transport.Request{
		Service: cf.service,
		Method:  cf.method,
		Headers: cf.headers,
		Payload: []byte(cf.payload),
	}, cf.timeout)
	if err != nil {
		return err
	}
	cmd.Println(string(res.Payload))
	return nil
}
