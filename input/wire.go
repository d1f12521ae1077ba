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
// wire.go defines the raw, uncompressed on-disk frame format: a fixed
// 32-byte little-endian record, one per trace record. It is the format
// NewRawReader/OpenRaw decode directly and OpenGzip decodes after
// gzip-decompressing; any future zip/snappy/lz4 backend registered through
// RegisterCodec decodes the same frame shape from its own decompressed
// byte stream.

package input

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/tracesched/record"
)

// frameSize is the fixed width, in bytes, of one encoded record.Record.
const frameSize = 32

// frame layout (little-endian):
//
//	offset 0:  u8  kind
//	offset 1:  u8  flags (bit0 IsWrite, bit1 IsIndirectBranch, bit2 Synthetic, bit3 InKernelSequence)
//	offset 2:  u8  sub (BoundaryKind for KindThreadBoundary, MarkerType for KindMarker)
//	offset 3:  u8  reserved
//	offset 4:  u32 size
//	offset 8:  u64 value (PC, Addr, or MarkerValue depending on kind)
//	offset 16: i64 tid
//	offset 24: i64 pid
const (
	flagIsWrite          = 1 << 0
	flagIsIndirectBranch = 1 << 1
	flagSynthetic        = 1 << 2
	flagInKernelSequence = 1 << 3
)

func encodeFrame(r record.Record) []byte {
	buf := make([]byte, frameSize)
	buf[0] = byte(r.Kind)
	var flags byte
	if r.IsWrite {
		flags |= flagIsWrite
	}
	if r.IsIndirectBranch {
		flags |= flagIsIndirectBranch
	}
	if r.Synthetic {
		flags |= flagSynthetic
	}
	if r.InKernelSequence {
		flags |= flagInKernelSequence
	}
	buf[1] = flags
	switch r.Kind {
	case record.KindThreadBoundary:
		buf[2] = byte(r.Boundary)
	case record.KindMarker:
		buf[2] = byte(r.Marker)
	}
	binary.LittleEndian.PutUint32(buf[4:8], r.Size)
	var value uint64
	switch r.Kind {
	case record.KindInstruction:
		value = r.PC
	case record.KindMemoryAccess:
		value = r.Addr
	case record.KindMarker:
		value = r.MarkerValue
	}
	binary.LittleEndian.PutUint64(buf[8:16], value)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(r.TID))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(r.PID))
	return buf
}

func decodeFrame(buf []byte) (record.Record, error) {
	if len(buf) != frameSize {
		return record.Invalid, fmt.Errorf("input: malformed frame, got %d bytes want %d", len(buf), frameSize)
	}
	kind := record.Kind(buf[0])
	flags := buf[1]
	sub := buf[2]
	size := binary.LittleEndian.Uint32(buf[4:8])
	value := binary.LittleEndian.Uint64(buf[8:16])
	tid := int64(binary.LittleEndian.Uint64(buf[16:24]))
	pid := int64(binary.LittleEndian.Uint64(buf[24:32]))

	r := record.Record{
		Kind:             kind,
		Size:             size,
		IsWrite:          flags&flagIsWrite != 0,
		IsIndirectBranch: flags&flagIsIndirectBranch != 0,
		Synthetic:        flags&flagSynthetic != 0,
		InKernelSequence: flags&flagInKernelSequence != 0,
		TID:              tid,
		PID:              pid,
	}
	switch kind {
	case record.KindInstruction:
		r.PC = value
	case record.KindMemoryAccess:
		r.Addr = value
	case record.KindMarker:
		r.Marker = record.MarkerType(sub)
		r.MarkerValue = value
	case record.KindThreadBoundary:
		r.Boundary = record.BoundaryKind(sub)
	case record.KindInvalid:
		return record.Invalid, fmt.Errorf("input: decoded an invalid-kind frame")
	default:
		return record.Invalid, fmt.Errorf("input: unknown frame kind %d", kind)
	}
	return r, nil
}

// readFrame reads exactly one frame from r, translating io.EOF (only valid
// at a frame boundary) into ErrEndOfStream.
func readFrame(r io.Reader) (record.Record, error) {
	buf := make([]byte, frameSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			return record.Invalid, ErrEndOfStream
		}
		return record.Invalid, fmt.Errorf("input: short frame read: %w", err)
	}
	return decodeFrame(buf)
}

// WriteFrame encodes r and writes it to w, for use by test fixtures and
// tools that materialize a Raw-encoded shard.
func WriteFrame(w io.Writer, r record.Record) error {
	_, err := w.Write(encodeFrame(r))
	return err
}

// ReadFrame reads and decodes exactly one frame from r, for use by callers
// outside this package that speak the same 32-byte frame format (the
// scheduler's kernel-sequence template files, for instance). Returns
// ErrEndOfStream at a clean frame boundary.
func ReadFrame(r io.Reader) (record.Record, error) {
	return readFrame(r)
}
