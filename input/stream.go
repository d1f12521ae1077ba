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
// Package input presents each recorded shard as a lazy, forward-only,
// restartable-only-by-skip stream of record.Records, with the small set of
// side channels (ordinals, timestamps, shard metadata) the scheduler needs
// to drive it. Concrete codec backends (gzip, zip, snappy, lz4) are
// external collaborators; this package defines the seam (Decompressor,
// RegisterCodec) and ships the two backends needed to exercise it
// end-to-end: Raw and Gzip.
package input

import (
	"errors"

	"github.com/google/tracesched/record"
)

// ErrEndOfStream is returned by Stream.Next once a shard is exhausted. It
// is a sentinel, not a *Error: end of stream is an expected outcome, not a
// failure.
var ErrEndOfStream = errors.New("input: end of stream")

// ErrRegionInvalid is returned by Stream.SkipInstructions when the
// underlying shard ends before n instructions have been skipped, and the
// caller did not ask for SkipToEnd.
var ErrRegionInvalid = errors.New("input: skip target past end of shard")

// SkipToEnd is the sentinel instruction count meaning "skip as many
// instructions as the shard has left". Passing it to SkipInstructions never
// returns ErrRegionInvalid; running off the end of the shard is the
// expected outcome and is reported by a subsequent Next() returning
// ErrEndOfStream.
const SkipToEnd uint64 = ^uint64(0)

// Stream is a lazy, forward-only sequence of record.Records drawn from one
// recorded shard (one thread's trace). It is not infinite: it is bounded by
// the underlying shard. It is not restartable, except by the bounded
// skip-ahead SkipInstructions provides.
type Stream interface {
	// Init prepares the stream for reading: opens the underlying shard,
	// reads its header prologue (version, tid, pid, and any markers that
	// preceded the tid/pid on disk), and makes the tid/pid accessors valid.
	// Init may block for IPC-backed streams; ordinary file-backed streams
	// return promptly.
	Init() error

	// Next returns the next record.Record in the stream, or ErrEndOfStream
	// once the shard is exhausted. Next never returns a KindInvalid record
	// without also returning a non-nil error.
	Next() (record.Record, error)

	// SkipInstructions advances the stream past the next n instruction
	// records (and any non-instruction records interleaved with them),
	// without returning them. It returns the number of instructions
	// actually skipped and ErrRegionInvalid if the shard ended before n
	// were skipped and n was not SkipToEnd.
	SkipInstructions(n uint64) (skipped uint64, err error)

	// RecordOrdinal returns the 1-based ordinal of the record most recently
	// returned by Next (or skipped), counting every record read from the
	// shard including markers and boundaries. Zero if none has been read.
	RecordOrdinal() uint64
	// InstructionOrdinal returns the 1-based ordinal, among instruction
	// records only, of the instruction most recently returned by Next (or
	// skipped). Zero if no instruction has been read yet.
	InstructionOrdinal() uint64

	// FirstTimestamp returns the first TIMESTAMP marker value observed in
	// this shard, or UnknownTimestamp if none has been seen yet.
	FirstTimestamp() uint64
	// LastTimestamp returns the most recent TIMESTAMP marker value observed
	// in this shard.
	LastTimestamp() uint64

	// FileType, CacheLineSize, PageSize, and ChunkInstrCount return shard
	// metadata learned from the corresponding markers in the header
	// prologue. They are zero until Init has observed them.
	FileType() uint32
	CacheLineSize() uint32
	PageSize() uint32
	ChunkInstrCount() uint64

	// TID and PID return the stream's thread and process identity, valid
	// after Init returns.
	TID() int64
	PID() int64

	// Close releases any resources (open files, decompressors) held by the
	// stream.
	Close() error
}

// UnknownTimestamp represents an unspecified event timestamp, matching
// record's notion of "no TIMESTAMP marker observed yet".
const UnknownTimestamp uint64 = 0
