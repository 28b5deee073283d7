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

package rpcerrors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Code is a wire-level status code. The values match the gRPC codes so
// transports can convert directly.
type Code int

const (
	// CodeOK means no error.
	CodeOK Code = 0
	// CodeCancelled means the caller cancelled the call.
	CodeCancelled Code = 1
	// CodeUnknown is used for errors that carry no better information.
	CodeUnknown Code = 2
	// CodeInvalidArgument means the request was malformed.
	CodeInvalidArgument Code = 3
	// CodeDeadlineExceeded means the deadline passed before completion.
	CodeDeadlineExceeded Code = 4
	// CodeNotFound means a requested entity does not exist.
	CodeNotFound Code = 5
	// CodeAlreadyExists means the entity being created exists.
	CodeAlreadyExists Code = 6
	// CodePermissionDenied means the caller may not run the operation.
	CodePermissionDenied Code = 7
	// CodeResourceExhausted means a quota or capacity limit was hit.
	CodeResourceExhausted Code = 8
	// CodeFailedPrecondition means the system is not in the required state.
	CodeFailedPrecondition Code = 9
	// CodeAborted means the operation was aborted, usually by a conflict.
	CodeAborted Code = 10
	// CodeOutOfRange means the operation went past the valid range.
	CodeOutOfRange Code = 11
	// CodeUnimplemented means the method is not implemented.
	CodeUnimplemented Code = 12
	// CodeInternal means an invariant of the remote was broken.
	CodeInternal Code = 13
	// CodeUnavailable means the service cannot be reached right now.
	CodeUnavailable Code = 14
	// CodeDataLoss means unrecoverable data loss or corruption.
	CodeDataLoss Code = 15
	// CodeUnauthenticated means the caller has no valid credentials.
	CodeUnauthenticated Code = 16
)

var _codeToString = map[Code]string{
	CodeOK:                 "ok",
	CodeCancelled:          "cancelled",
	CodeUnknown:            "unknown",
	CodeInvalidArgument:    "invalid-argument",
	CodeDeadlineExceeded:   "deadline-exceeded",
	CodeNotFound:           "not-found",
	CodeAlreadyExists:      "already-exists",
	CodePermissionDenied:   "permission-denied",
	CodeResourceExhausted:  "resource-exhausted",
	CodeFailedPrecondition: "failed-precondition",
	CodeAborted:            "aborted",
	CodeOutOfRange:         "out-of-range",
	CodeUnimplemented:      "unimplemented",
	CodeInternal:           "internal",
	CodeUnavailable:        "unavailable",
	CodeDataLoss:           "data-loss",
	CodeUnauthenticated:    "unauthenticated",
}

// String returns the code name.
func (c Code) String() string {
	if s, ok := _codeToString[c]; ok {
		return s
	}
	return strconv.Itoa(int(c))
}

// Status is an error with a Code, as reported by a remote or derived from a
// taxonomy error.
type Status struct {
	code  Code
	err   error
	cause error
}

// Newf returns a new Status. A CodeOK status is nil.
func Newf(code Code, format string, args ...interface{}) *Status {
	if code == CodeOK {
		return nil
	}
	var err error
	if len(args) == 0 {
		err = errors.New(format)
	} else {
		err = fmt.Errorf(format, args...)
	}
	return &Status{code: code, err: err, cause: errors.Unwrap(err)}
}

// FromError returns the Status for err. Statuses anywhere in the chain are
// returned as is. Taxonomy errors map onto the code a remote client should
// see, and anything else is CodeUnknown.
func FromError(err error) *Status {
	if err == nil {
		return nil
	}
	var st *Status
	if errors.As(err, &st) {
		return st
	}
	return &Status{code: codeOf(err), err: err, cause: err}
}

func codeOf(err error) Code {
	switch KindOf(err) {
	case KindInvalidEndpoint:
		return CodeInvalidArgument
	case KindDuplicateInstance:
		return CodeAlreadyExists
	case KindPoolExhausted:
		return CodeResourceExhausted
	case KindNoHealthyInstances, KindAllInstancesUnavailable, KindConnection, KindTransport:
		return CodeUnavailable
	case KindTimeout:
		return CodeDeadlineExceeded
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	}
	return CodeUnknown
}

// IsStatus reports whether err's chain holds a Status.
func IsStatus(err error) bool {
	var st *Status
	return errors.As(err, &st)
}

// Code returns the status code. A nil Status is CodeOK.
func (s *Status) Code() Code {
	if s == nil {
		return CodeOK
	}
	return s.code
}

// Message returns the error message.
func (s *Status) Message() string {
	if s == nil || s.err == nil {
		return ""
	}
	return s.err.Error()
}

// Unwrap supports errors.Unwrap.
func (s *Status) Unwrap() error {
	if s == nil {
		return nil
	}
	return s.cause
}

func (s *Status) Error() string {
	buffer := bytes.NewBuffer(nil)
	_, _ = buffer.WriteString("code:")
	_, _ = buffer.WriteString(s.code.String())
	if msg := s.Message(); msg != "" {
		_, _ = buffer.WriteString(" message:")
		_, _ = buffer.WriteString(msg)
	}
	return buffer.String()
}
