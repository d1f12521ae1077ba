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

package input

import (
	"github.com/google/tracesched/record"
)

// MemoryStream is a Stream backed by an in-memory slice of record.Records,
// rather than a file. It is the programmatic-assembly counterpart to
// OpenRaw/OpenGzip, used throughout internal/testtrace and by every
// scheduler and analyzer test, in place of materializing fixture files --
// grounded on the teacher's own programmatic event-set builder
// (tracedata/test_event_set_builder.go).
type MemoryStream struct {
	records []record.Record
	pos     int

	tid, pid        int64
	fileType        uint32
	cacheLineSize   uint32
	pageSize        uint32
	chunkInstrCount uint64
	firstTimestamp  uint64
	lastTimestamp   uint64

	recordOrdinal      uint64
	instructionOrdinal uint64
}

// NewMemoryStream builds a MemoryStream that will yield records in order.
// tid and pid are the stream's identity, available immediately (no header
// prologue is needed since there is no wire encoding to parse).
func NewMemoryStream(tid, pid int64, records []record.Record) *MemoryStream {
	return &MemoryStream{tid: tid, pid: pid, records: records}
}

// WithMetadata sets the shard-metadata fields a real header prologue would
// populate. Returns the receiver for chaining at construction time.
func (ms *MemoryStream) WithMetadata(fileType, cacheLineSize, pageSize uint32, chunkInstrCount uint64) *MemoryStream {
	ms.fileType = fileType
	ms.cacheLineSize = cacheLineSize
	ms.pageSize = pageSize
	ms.chunkInstrCount = chunkInstrCount
	return ms
}

// Init implements Stream. It never blocks and never fails.
func (ms *MemoryStream) Init() error { return nil }

func (ms *MemoryStream) observe(r record.Record) {
	ms.recordOrdinal++
	if r.IsInstruction() {
		ms.instructionOrdinal++
	}
	if r.IsMarker() && r.Marker == record.MarkerTimestamp {
		if ms.firstTimestamp == 0 {
			ms.firstTimestamp = r.MarkerValue
		}
		ms.lastTimestamp = r.MarkerValue
	}
}

// Next implements Stream.
func (ms *MemoryStream) Next() (record.Record, error) {
	if ms.pos >= len(ms.records) {
		return record.Invalid, ErrEndOfStream
	}
	r := ms.records[ms.pos]
	ms.pos++
	ms.observe(r)
	return r, nil
}

// SkipInstructions implements Stream.
func (ms *MemoryStream) SkipInstructions(n uint64) (uint64, error) {
	var skipped uint64
	for n == SkipToEnd || skipped < n {
		r, err := ms.Next()
		if err == ErrEndOfStream {
			if n == SkipToEnd {
				return skipped, nil
			}
			return skipped, ErrRegionInvalid
		}
		if r.IsInstruction() {
			skipped++
		}
	}
	return skipped, nil
}

// RecordOrdinal implements Stream.
func (ms *MemoryStream) RecordOrdinal() uint64 { return ms.recordOrdinal }

// InstructionOrdinal implements Stream.
func (ms *MemoryStream) InstructionOrdinal() uint64 { return ms.instructionOrdinal }

// FirstTimestamp implements Stream.
func (ms *MemoryStream) FirstTimestamp() uint64 { return ms.firstTimestamp }

// LastTimestamp implements Stream.
func (ms *MemoryStream) LastTimestamp() uint64 { return ms.lastTimestamp }

// FileType implements Stream.
func (ms *MemoryStream) FileType() uint32 { return ms.fileType }

// CacheLineSize implements Stream.
func (ms *MemoryStream) CacheLineSize() uint32 { return ms.cacheLineSize }

// PageSize implements Stream.
func (ms *MemoryStream) PageSize() uint32 { return ms.pageSize }

// ChunkInstrCount implements Stream.
func (ms *MemoryStream) ChunkInstrCount() uint64 { return ms.chunkInstrCount }

// TID implements Stream.
func (ms *MemoryStream) TID() int64 { return ms.tid }

// PID implements Stream.
func (ms *MemoryStream) PID() int64 { return ms.pid }

// Close implements Stream. MemoryStream owns no external resources.
func (ms *MemoryStream) Close() error { return nil }
