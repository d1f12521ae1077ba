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
// Package testtrace builds input.MemoryStream fixtures for scheduler and
// analyzer tests, the programmatic-assembly counterpart to the teacher's
// tracedata/test_event_set_builder.go: rather than materializing trace
// files on disk and parsing them back, tests construct a Builder, append
// the records they want, and hand the result straight to
// input.NewMemoryStream.
package testtrace

import "github.com/google/tracesched/record"

// Builder accumulates a sequence of record.Records for one input shard.
type Builder struct {
	tid, pid int64
	records  []record.Record
}

// NewBuilder starts a Builder for a shard with the given tid/pid.
func NewBuilder(tid, pid int64) *Builder {
	return &Builder{tid: tid, pid: pid}
}

// Instr appends an instruction record.
func (b *Builder) Instr(pc uint64, size uint32) *Builder {
	b.records = append(b.records, record.NewInstruction(pc, size, false))
	return b
}

// IndirectBranch appends an instruction record flagged as an indirect
// branch.
func (b *Builder) IndirectBranch(pc uint64, size uint32) *Builder {
	b.records = append(b.records, record.NewInstruction(pc, size, true))
	return b
}

// Instrs appends n sequential 4-byte instructions starting at pc.
func (b *Builder) Instrs(pc uint64, n int) *Builder {
	for i := 0; i < n; i++ {
		b.Instr(pc, 4)
		pc += 4
	}
	return b
}

// Load appends a load record.
func (b *Builder) Load(addr uint64, size uint32) *Builder {
	b.records = append(b.records, record.NewMemoryAccess(addr, size, false))
	return b
}

// Store appends a store record.
func (b *Builder) Store(addr uint64, size uint32) *Builder {
	b.records = append(b.records, record.NewMemoryAccess(addr, size, true))
	return b
}

// Marker appends a marker record of the given type and value.
func (b *Builder) Marker(mt record.MarkerType, value uint64) *Builder {
	b.records = append(b.records, record.NewMarker(mt, value))
	return b
}

// Timestamp appends a TIMESTAMP marker, the common case of Marker.
func (b *Builder) Timestamp(ts uint64) *Builder {
	return b.Marker(record.MarkerTimestamp, ts)
}

// Syscall appends a SYSCALL marker naming the syscall number.
func (b *Builder) Syscall(num uint64) *Builder {
	return b.Marker(record.MarkerSyscall, num)
}

// BlockingTime appends a BLOCKING_TIME marker.
func (b *Builder) BlockingTime(us uint64) *Builder {
	return b.Marker(record.MarkerBlockingTime, us)
}

// Unschedule appends a SYSCALL_UNSCHEDULE marker with the given timeout (0
// for infinite).
func (b *Builder) Unschedule(timeoutUs uint64) *Builder {
	return b.Marker(record.MarkerSyscallUnschedule, timeoutUs)
}

// DirectSwitchTo appends a SYSCALL_SCHEDULE marker naming the target tid.
func (b *Builder) DirectSwitchTo(tid int64) *Builder {
	return b.Marker(record.MarkerSyscallSchedule, uint64(tid))
}

// Records returns the accumulated record sequence, each record stamped
// with the shard's tid and pid as memref-flavor records are.
func (b *Builder) Records() []record.Record {
	out := append([]record.Record(nil), b.records...)
	for i := range out {
		out[i].TID, out[i].PID = b.tid, b.pid
	}
	return out
}

// TID returns the shard's tid.
func (b *Builder) TID() int64 { return b.tid }

// PID returns the shard's pid.
func (b *Builder) PID() int64 { return b.pid }
