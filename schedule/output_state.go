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
// output_state.go implements Output (spec.md §3): one virtual core exposed
// to a single analyzer worker.

package schedule

import (
	"sync"

	"github.com/google/tracesched/record"
)

// runMode is the innermost state of an active, running output: spec.md
// §4.2.9's stacked "normal <-> in_syscall_code <-> in_context_switch_code
// <-> speculating".
type runMode int8

const (
	runNormal runMode = iota
	runInSyscallCode
	runInContextSwitchCode
	runSpeculating
)

// OutputStats are the per-output statistics counters spec.md §3 and the
// testable properties of §8 reference.
type OutputStats struct {
	DirectSwitchAttempts  uint64
	DirectSwitchSuccesses uint64
	Preemptions           uint64
	Migrations            uint64
	IdleTicks             uint64
	WaitTicks             uint64
	Steals                uint64
}

// outputState is the scheduler's exclusive, lock-guarded view of one
// virtual core. Per spec.md §5's lock ordering, an outputState's mutex may
// be held while acquiring an inputState's mutex, never the reverse.
type outputState struct {
	mu sync.Mutex

	ordinal  OutputOrdinal
	curInput InputOrdinal
	ready    *readyQueue
	active   bool
	curTime  uint64

	// idleCount counts every StatusIdle this output has returned so far,
	// fed into the derived cur_time formula alongside instrOrdinal.
	idleCount uint64

	runStack []runMode

	// speculation holds the nested speculation frames this output has
	// started; the speculator itself (nop synthesis) lives in
	// speculation.go.
	speculation []specFrame

	stats OutputStats

	// prevRunInput is the input that last ran on this output, or NoInput if
	// none has (an idle-to-input transition). Read at the next input switch
	// to classify it as a thread- or process-switch for
	// injectSwitchSequence: same workload means the same process, so a
	// thread switch; anything else, including coming from idle, is a
	// process switch (scheduler_impl.cpp's check_for_input_switch).
	prevRunInput InputOrdinal

	// baseTimestamp is the value of the first TIMESTAMP marker this output
	// ever delivered. Under a dynamic mapping the as-recorded timestamps no
	// longer reflect real ordering once inputs are interleaved, so every
	// later TIMESTAMP marker's value is rewritten relative to this base
	// (handleMarker's record.MarkerTimestamp case).
	baseTimestamp uint64
	lastRecord    record.Record
	haveLast      bool

	recorder *scheduleRecorder

	// pendingDirectSwitch, if not NoInput, names an input a
	// SYSCALL_SCHEDULE marker asked this output to switch to next, checked
	// by pickNextInput ahead of the ordinary ready queue.
	pendingDirectSwitch InputOrdinal

	// instrOrdinal counts every instruction this output has delivered
	// across its whole run, regardless of which input produced it. Used,
	// together with idleCount, to derive cur_time when NextRecord's caller
	// passes zero (spec.md §4.2.5).
	instrOrdinal uint64

	// replaySegments/replayIdx drive MAP_AS_PREVIOUSLY playback: the exact
	// ordered sequence of segments recorded for this output.
	replaySegments []scheduleSegment
	replayIdx      int
	// replayInstrsDelivered counts how many instructions of the current
	// replay segment have been delivered so far.
	replayInstrsDelivered uint64
}

func newOutputState(ord OutputOrdinal) *outputState {
	return &outputState{
		ordinal:             ord,
		curInput:            NoInput,
		ready:               newReadyQueue(),
		active:              true,
		runStack:            []runMode{runNormal},
		prevRunInput:        NoInput,
		pendingDirectSwitch: NoInput,
	}
}

func (os *outputState) mode() runMode {
	if len(os.runStack) == 0 {
		return runNormal
	}
	return os.runStack[len(os.runStack)-1]
}

func (os *outputState) pushMode(m runMode) {
	os.runStack = append(os.runStack, m)
}

func (os *outputState) popMode() {
	if len(os.runStack) > 1 {
		os.runStack = os.runStack[:len(os.runStack)-1]
	}
}
