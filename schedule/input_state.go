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
// input_state.go implements Input (spec.md §3): the scheduler's exclusive
// view of one recorded shard, its run state, and its pending-record queue.

package schedule

import (
	"sync"

	"github.com/google/tracesched/input"
	"github.com/google/tracesched/record"
)

// InputRunState is the per-input state machine spec.md §4.2.9 names:
// ready -> running -> {preempted, blocked, unscheduled, eof}; preempted ->
// ready; blocked(t) -> ready when clock >= t; unscheduled -> ready on
// direct-schedule or timeout expiry.
type InputRunState int8

const (
	inputReady InputRunState = iota
	inputRunning
	inputPreempted
	inputBlocked
	inputUnscheduled
	inputEOF
)

func (s InputRunState) String() string {
	switch s {
	case inputReady:
		return "ready"
	case inputRunning:
		return "running"
	case inputPreempted:
		return "preempted"
	case inputBlocked:
		return "blocked"
	case inputUnscheduled:
		return "unscheduled"
	case inputEOF:
		return "eof"
	default:
		return "unknown"
	}
}

// specFrame is one entry of an output's speculation stack: the real record
// stream is paused and replaced by synthesized nops starting at pc.
type specFrame struct {
	pc            uint64
	queueCurrent  bool
	savedPending  []record.Record
}

// inputState is the scheduler's exclusive, lock-guarded view of one
// recorded shard. Per spec.md §5's lock ordering, an inputState's mutex may
// be acquired while an outputState's mutex is held, never the reverse.
type inputState struct {
	mu sync.Mutex

	ordinal  InputOrdinal
	stream   input.Stream
	workload *workloadState

	tid, pid int64

	priority int32
	affinity map[OutputOrdinal]bool // nil means "any output"

	regions      []Region
	curRegionIdx int

	// needsWindowMarker and windowsAnnounced implement spec.md §4.2.6's
	// region-transition announcement: set by exitingRegion when crossing
	// into another declared region, consumed by deliverFrom to synthesize
	// one WINDOW_ID marker (sequentially numbered, not per-region-index)
	// before resuming delivery in the new region.
	needsWindowMarker bool
	windowsAnnounced  int

	// needsSyntheticExit is set by exitingRegion when the instruction just
	// delivered ended the last declared region: the instruction itself is
	// still returned normally this call, and the synthetic thread-exit is
	// deferred to the next deliverFrom call instead of overwriting it.
	needsSyntheticExit bool

	// pending is a FIFO of records the scheduler must deliver before
	// reading the underlying stream again: peeked records from init
	// readahead, and injected kernel-sequence records. Modeled as a plain
	// slice-backed queue rather than a coroutine yield, per DESIGN NOTES
	// §9.
	pending []record.Record

	curOutput OutputOrdinal

	state        InputRunState
	blockedUntil uint64 // logical time; state==inputBlocked until clock reaches this
	lastRunTime  uint64 // logical time this input last ran, for ready-queue tie-break

	instrsInQuantum  uint64
	quantumStartTime uint64

	// visibleInstrOrdinal counts only instructions actually delivered to a
	// tool via NextRecord -- spec.md §4.2.10's "output counts ... increment
	// only when ... actually delivered", distinct from stream.InstructionOrdinal
	// which also advances for skipped/peeked records.
	visibleInstrOrdinal uint64

	lastFallThroughPC uint64

	// pendingSyscall holds a syscall-trace sequence queued at a SYSCALL
	// marker, awaiting the next injection point (spec.md §4.2.7).
	pendingSyscall     []record.Record
	hasPendingSyscall  bool

	atEOF bool
}

func newInputState(ord InputOrdinal, s input.Stream, w *workloadState) *inputState {
	return &inputState{
		ordinal:   ord,
		stream:    s,
		workload:  w,
		curOutput: NoOutput,
		state:     inputReady,
	}
}

// eligibleFor reports whether this input may run on output o, honoring an
// affinity binding if one was set.
func (is *inputState) eligibleFor(o OutputOrdinal) bool {
	if is.affinity == nil {
		return true
	}
	return is.affinity[o]
}

// currentRegion returns the region of interest this input is currently
// inside, or nil if it has none (runs unrestricted) or has exhausted its
// list.
func (is *inputState) currentRegion() *Region {
	if is.curRegionIdx >= len(is.regions) {
		return nil
	}
	return &is.regions[is.curRegionIdx]
}

// pushPending enqueues an injected kernel-sequence record to be delivered
// before the underlying stream is read again, stamping it with the input's
// tid and pid (replacing any it carried) and flagging it Synthetic and
// InKernelSequence.
func (is *inputState) pushPending(r record.Record) {
	r.TID, r.PID = is.tid, is.pid
	r.Synthetic, r.InKernelSequence = true, true
	is.pending = append(is.pending, r)
}

// popPending dequeues the next pending record, if any.
func (is *inputState) popPending() (record.Record, bool) {
	if len(is.pending) == 0 {
		return record.Invalid, false
	}
	r := is.pending[0]
	is.pending = is.pending[1:]
	return r, true
}
