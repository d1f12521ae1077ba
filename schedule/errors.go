// Copyright 2019 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS-IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package schedule

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies the failures NewScheduler and Scheduler methods can
// return synchronously, independent of per-call Status values.
type ErrorKind int8

const (
	// KindInvalidParameter signals a bad or conflicting option combination.
	KindInvalidParameter ErrorKind = iota
	// KindFileOpenFailed signals a shard or schedule file could not be opened.
	KindFileOpenFailed
	// KindFileReadFailed signals an I/O error reading a shard or schedule file.
	KindFileReadFailed
	// KindFileWriteFailed signals an I/O error writing a schedule recording.
	KindFileWriteFailed
	// KindRangeInvalid signals an out-of-range region, skip target, or
	// timestamp range.
	KindRangeInvalid
	// KindNotImplemented signals an operation unsupported for the current
	// record.Flavor (e.g. UnreadLastRecord on the trace-entry flavor).
	KindNotImplemented
	// KindInternal signals a scheduler invariant violation.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidParameter:
		return "INVALID_PARAMETER"
	case KindFileOpenFailed:
		return "FILE_OPEN_FAILED"
	case KindFileReadFailed:
		return "FILE_READ_FAILED"
	case KindFileWriteFailed:
		return "FILE_WRITE_FAILED"
	case KindRangeInvalid:
		return "RANGE_INVALID"
	case KindNotImplemented:
		return "NOT_IMPLEMENTED"
	default:
		return "INVALID"
	}
}

func (k ErrorKind) grpcCode() codes.Code {
	switch k {
	case KindInvalidParameter:
		return codes.InvalidArgument
	case KindFileOpenFailed:
		return codes.NotFound
	case KindFileReadFailed, KindFileWriteFailed:
		return codes.Unavailable
	case KindRangeInvalid:
		return codes.OutOfRange
	case KindNotImplemented:
		return codes.Unimplemented
	default:
		return codes.Internal
	}
}

// Error is the error type every schedule package failure is reported as. It
// wraps a google.golang.org/grpc/status error the way every teacher package
// in this module's lineage does, so callers that already speak gRPC status
// codes (an analyzer front end embedded in a server, for instance) don't
// need a translation layer.
type Error struct {
	Kind ErrorKind
	err  error
}

// newError builds an Error of the given Kind with a status-wrapped message.
func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, err: status.Error(kind.grpcCode(), msg)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.err.Error()
}

// Unwrap allows errors.Is/errors.As to see through to the gRPC status error.
func (e *Error) Unwrap() error {
	return e.err
}

// GRPCStatus allows status.FromError to recover the wrapped code, the same
// mechanism every status.Errorf(codes.X, ...) call relies on implicitly.
func (e *Error) GRPCStatus() *status.Status {
	s, _ := status.FromError(e.err)
	return s
}

// Status describes the outcome of a single Scheduler.NextRecord call. Status
// values that are not errors (everything but an *Error return) are
// expected, routine outcomes a caller must branch on.
type Status int8

const (
	// StatusOK reports that NextRecord filled record with a new record.
	StatusOK Status = iota
	// StatusEOF reports that this output's current input, and every input
	// it could otherwise run, has reached end of stream.
	StatusEOF
	// StatusIdle reports that no runnable input is currently available for
	// this output, but the run as a whole has not ended: the caller should
	// synthesize a CORE_IDLE marker and retry shortly.
	StatusIdle
	// StatusWait reports that the dependency model (DependencyTimestamps)
	// forbids running any currently-ready input on this output yet: the
	// caller should synthesize a CORE_WAIT marker, wait briefly, and retry.
	StatusWait
	// StatusSkipped reports that record_schedule replay asked this output
	// to skip ahead without producing a visible record.
	StatusSkipped
	// StatusStole reports that this output took over an input another
	// output previously owned, during rebalancing.
	StatusStole
	// StatusRegionInvalid reports that a region-of-interest or skip
	// request named an out-of-range instruction.
	StatusRegionInvalid
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusEOF:
		return "EOF"
	case StatusIdle:
		return "IDLE"
	case StatusWait:
		return "WAIT"
	case StatusSkipped:
		return "SKIPPED"
	case StatusStole:
		return "STOLE"
	case StatusRegionInvalid:
		return "REGION_INVALID"
	default:
		return "UNKNOWN_STATUS"
	}
}
