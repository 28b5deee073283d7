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

package grpc

import (
	"github.com/unibridge/backend/rpcerrors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fromStatus sorts a gRPC error into the taxonomy. Codes the remote sends
// on purpose become application errors; codes gRPC itself produces for
// broken connections are left for rpcerrors.Classify to turn into
// transport or timeout errors.
func fromStatus(endpointID string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.OK:
		return nil
	case codes.DeadlineExceeded:
		return &rpcerrors.TimeoutError{Endpoint: endpointID, Cause: err}
	case codes.Unavailable, codes.Internal, codes.DataLoss:
		return &rpcerrors.TransportError{Endpoint: endpointID, Cause: err}
	case codes.Canceled:
		return err
	default:
		code := rpcerrors.Code(st.Code())
		return rpcerrors.Application(code.String(), rpcerrors.Newf(code, "%s", st.Message()))
	}
}
