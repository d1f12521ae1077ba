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
	"bufio"
	"io"

	log "github.com/golang/glog"

	"github.com/google/tracesched/record"
)

// rawReader decodes a sequence of 32-byte frames (see wire.go) from an
// io.Reader into record.Records. It is the concrete backend for
// uncompressed shards, and is reused by OpenGzip once gzip has produced a
// plain byte stream.
//
// Construction leaves header parsing to Init, which reads up to the first
// non-marker record, peeling the thread-id, pid, and shard-metadata
// records off the stream (VERSION and TIMESTAMP stay queued for Next) so that
// TID/PID/FileType are valid immediately, presenting tid and pid ahead of
// any markers even when a shard happens to record a marker first --
// matching the header-prologue contract every Stream must honor.
type rawReader struct {
	src   io.Reader
	owner io.Closer // non-nil if src should be Closed by Close

	tid, pid          int64
	fileType          uint32
	cacheLineSize     uint32
	pageSize          uint32
	chunkInstrCount   uint64
	firstTimestamp    uint64
	lastTimestamp     uint64

	recordOrdinal      uint64
	instructionOrdinal uint64

	// pending holds records read ahead of the caller during header parsing,
	// to be drained by Next before src is read again.
	pending []record.Record

	closed bool
}

// newRawReader constructs a Stream over src, an uncompressed frame stream.
// owner, if non-nil, is closed by Stream.Close.
func newRawReader(src io.Reader, owner io.Closer) Stream {
	br, ok := src.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(src)
	}
	return &rawReader{src: br, owner: owner}
}

// NewRawReader builds a Stream that decodes the Raw (uncompressed) wire
// format directly from r. Use input.OpenRaw to open a named file.
func NewRawReader(r io.Reader) Stream {
	return newRawReader(r, nil)
}

func (rr *rawReader) Init() error {
	for {
		r, err := readFrame(rr.src)
		if err == ErrEndOfStream {
			// An empty or header-only shard: nothing more to learn, but not
			// an error in itself.
			return nil
		}
		if err != nil {
			return err
		}
		if consumed := rr.consumeHeaderRecord(r); consumed {
			continue
		}
		// A non-header record is stashed for Next. A marker (VERSION or
		// TIMESTAMP recorded ahead of the tid/pid, say) does not end the
		// header search; the first non-marker record does.
		rr.pending = append(rr.pending, r)
		if r.IsMarker() {
			continue
		}
		return nil
	}
}

// consumeHeaderRecord reports whether r was a header-prologue record
// (thread id, pid, or the handful of shard-metadata markers) and, if so,
// updates the reader's cached fields. VERSION/TIMESTAMP markers are never
// considered header-only: they are also returned to the caller via Next so
// that ordinal and timestamp accounting stays accurate, by being pushed
// onto pending rather than swallowed -- except the identity/shard-metadata
// markers, which the caller cannot otherwise observe and for which there is
// no visible "first record" to preserve.
func (rr *rawReader) consumeHeaderRecord(r record.Record) bool {
	switch {
	case r.IsThreadBoundary() && r.Boundary == record.BoundaryThread:
		rr.tid = r.TID
		return true
	case r.IsThreadBoundary() && r.Boundary == record.BoundaryPid:
		rr.pid = r.PID
		return true
	case r.IsMarker() && r.Marker == record.MarkerFileType:
		rr.fileType = uint32(r.MarkerValue)
		return true
	case r.IsMarker() && r.Marker == record.MarkerCacheLineSize:
		rr.cacheLineSize = uint32(r.MarkerValue)
		return true
	case r.IsMarker() && r.Marker == record.MarkerPageSize:
		rr.pageSize = uint32(r.MarkerValue)
		return true
	case r.IsMarker() && r.Marker == record.MarkerChunkInstrCount:
		rr.chunkInstrCount = r.MarkerValue
		return true
	default:
		return false
	}
}

func (rr *rawReader) observe(r record.Record) {
	rr.recordOrdinal++
	if r.IsInstruction() {
		rr.instructionOrdinal++
	}
	if r.IsMarker() && r.Marker == record.MarkerTimestamp {
		if rr.firstTimestamp == 0 {
			rr.firstTimestamp = r.MarkerValue
		}
		rr.lastTimestamp = r.MarkerValue
	}
}

func (rr *rawReader) Next() (record.Record, error) {
	if len(rr.pending) > 0 {
		r := rr.pending[0]
		rr.pending = rr.pending[1:]
		rr.observe(r)
		return r, nil
	}
	r, err := readFrame(rr.src)
	if err != nil {
		return record.Invalid, err
	}
	rr.observe(r)
	return r, nil
}

func (rr *rawReader) SkipInstructions(n uint64) (uint64, error) {
	var skipped uint64
	for n == SkipToEnd || skipped < n {
		r, err := rr.Next()
		if err == ErrEndOfStream {
			if n == SkipToEnd {
				return skipped, nil
			}
			return skipped, ErrRegionInvalid
		}
		if err != nil {
			return skipped, err
		}
		if r.IsInstruction() {
			skipped++
		}
	}
	return skipped, nil
}

func (rr *rawReader) RecordOrdinal() uint64      { return rr.recordOrdinal }
func (rr *rawReader) InstructionOrdinal() uint64 { return rr.instructionOrdinal }
func (rr *rawReader) FirstTimestamp() uint64     { return rr.firstTimestamp }
func (rr *rawReader) LastTimestamp() uint64      { return rr.lastTimestamp }
func (rr *rawReader) FileType() uint32           { return rr.fileType }
func (rr *rawReader) CacheLineSize() uint32      { return rr.cacheLineSize }
func (rr *rawReader) PageSize() uint32           { return rr.pageSize }
func (rr *rawReader) ChunkInstrCount() uint64    { return rr.chunkInstrCount }
func (rr *rawReader) TID() int64                 { return rr.tid }
func (rr *rawReader) PID() int64                 { return rr.pid }

func (rr *rawReader) Close() error {
	if rr.closed {
		return nil
	}
	rr.closed = true
	if rr.owner != nil {
		if err := rr.owner.Close(); err != nil {
			log.Warningf("input: error closing shard: %v", err)
			return err
		}
	}
	return nil
}
