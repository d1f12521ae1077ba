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
	"bytes"
	"testing"

	"github.com/google/tracesched/record"
)

func buildShard(t *testing.T, tid, pid int64, instrCount int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteFrame(&buf, record.NewThreadBoundary(record.BoundaryThread, tid, 0)); err != nil {
		t.Fatalf("WriteFrame(thread): %v", err)
	}
	if err := WriteFrame(&buf, record.NewThreadBoundary(record.BoundaryPid, 0, pid)); err != nil {
		t.Fatalf("WriteFrame(pid): %v", err)
	}
	if err := WriteFrame(&buf, record.NewMarker(record.MarkerFileType, 7)); err != nil {
		t.Fatalf("WriteFrame(filetype): %v", err)
	}
	for i := 0; i < instrCount; i++ {
		if err := WriteFrame(&buf, record.NewInstruction(uint64(0x1000+4*i), 4, false)); err != nil {
			t.Fatalf("WriteFrame(instr %d): %v", i, err)
		}
	}
	if err := WriteFrame(&buf, record.NewThreadExit(tid, pid)); err != nil {
		t.Fatalf("WriteFrame(exit): %v", err)
	}
	return buf.Bytes()
}

func TestRawReaderHeaderPrologue(t *testing.T) {
	data := buildShard(t, 42, 7, 3)
	s := NewRawReader(bytes.NewReader(data))
	if err := s.Init(); err != nil {
		t.Fatalf("Init() = %v, want nil", err)
	}
	if got, want := s.TID(), int64(42); got != want {
		t.Errorf("TID() = %d, want %d", got, want)
	}
	if got, want := s.PID(), int64(7); got != want {
		t.Errorf("PID() = %d, want %d", got, want)
	}
	if got, want := s.FileType(), uint32(7); got != want {
		t.Errorf("FileType() = %d, want %d", got, want)
	}

	var instrs int
	for {
		r, err := s.Next()
		if err == ErrEndOfStream {
			break
		}
		if err != nil {
			t.Fatalf("Next(): %v", err)
		}
		if r.IsInstruction() {
			instrs++
		}
	}
	if instrs != 3 {
		t.Errorf("read %d instructions, want 3", instrs)
	}
	if got, want := s.InstructionOrdinal(), uint64(3); got != want {
		t.Errorf("InstructionOrdinal() = %d, want %d", got, want)
	}
}

func TestRawReaderSkipInstructions(t *testing.T) {
	data := buildShard(t, 1, 1, 10)
	s := NewRawReader(bytes.NewReader(data))
	if err := s.Init(); err != nil {
		t.Fatalf("Init(): %v", err)
	}
	skipped, err := s.SkipInstructions(4)
	if err != nil {
		t.Fatalf("SkipInstructions(4): %v", err)
	}
	if skipped != 4 {
		t.Errorf("skipped = %d, want 4", skipped)
	}
	r, err := s.Next()
	if err != nil {
		t.Fatalf("Next() after skip: %v", err)
	}
	if got, want := r.PC, uint64(0x1000+4*4); got != want {
		t.Errorf("next instruction PC = %#x, want %#x", got, want)
	}
}

func TestRawReaderSkipPastEndIsRegionInvalid(t *testing.T) {
	data := buildShard(t, 1, 1, 2)
	s := NewRawReader(bytes.NewReader(data))
	if err := s.Init(); err != nil {
		t.Fatalf("Init(): %v", err)
	}
	if _, err := s.SkipInstructions(100); err != ErrRegionInvalid {
		t.Errorf("SkipInstructions(100) err = %v, want ErrRegionInvalid", err)
	}
}

func TestRawReaderSkipToEndNeverFails(t *testing.T) {
	data := buildShard(t, 1, 1, 2)
	s := NewRawReader(bytes.NewReader(data))
	if err := s.Init(); err != nil {
		t.Fatalf("Init(): %v", err)
	}
	skipped, err := s.SkipInstructions(SkipToEnd)
	if err != nil {
		t.Fatalf("SkipInstructions(SkipToEnd) = %v, want nil", err)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
}
