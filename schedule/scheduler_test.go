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
	"bytes"
	"testing"

	"github.com/google/tracesched/input"
	"github.com/google/tracesched/internal/testtrace"
	"github.com/google/tracesched/record"
)

// TestSerialSingleInput exercises a single input on a single output end to
// end: every instruction delivered in order, then a synthetic thread-exit,
// then StatusEOF forever after.
func TestSerialSingleInput(t *testing.T) {
	recs := testtrace.NewBuilder(100, 1).Instrs(0x1000, 5).Records()
	sched, err := NewScheduler([]WorkloadSpec{{
		Name:   "w",
		Inputs: []InputSpec{{Stream: input.NewMemoryStream(100, 1, recs)}},
	}}, 1)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	for i := 0; i < 5; i++ {
		r, status, err := sched.NextRecord(0, 0)
		if err != nil {
			t.Fatalf("instr %d: %v", i, err)
		}
		if status != StatusOK || !r.IsInstruction() {
			t.Fatalf("instr %d: got (%v, %v), want an instruction with StatusOK", i, r, status)
		}
	}

	r, status, err := sched.NextRecord(0, 0)
	if err != nil || status != StatusOK || !r.IsThreadExit() {
		t.Fatalf("after last instruction: got (%v, %v, %v), want synthetic thread-exit with StatusOK", r, status, err)
	}

	for i := 0; i < 3; i++ {
		r, status, err = sched.NextRecord(0, 0)
		if err != nil || status != StatusEOF || !r.IsInvalid() {
			t.Fatalf("call %d past end of stream: got (%v, %v, %v), want (Invalid, StatusEOF, nil)", i, r, status, err)
		}
	}
}

// TestDynamicMappingAlternatesQuanta builds two inputs of 20 instructions
// each, a 10-instruction quantum, and a single dynamically-mapped output,
// and checks that the two inputs alternate in blocks of 10 exactly as
// spec.md §8's scenario describes, finishing with both thread-exits.
func TestDynamicMappingAlternatesQuanta(t *testing.T) {
	a := testtrace.NewBuilder(100, 1).Instrs(0x1000, 20).Records()
	b := testtrace.NewBuilder(200, 1).Instrs(0x2000, 20).Records()

	sched, err := NewScheduler([]WorkloadSpec{{
		Name: "w",
		Inputs: []InputSpec{
			{Stream: input.NewMemoryStream(100, 1, a)},
			{Stream: input.NewMemoryStream(200, 1, b)},
		},
	}}, 1, QuantumInstructionsDuration(10))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	var tids []int64
	var exits []int64
	for {
		r, status, err := sched.NextRecord(0, 0)
		if err != nil {
			t.Fatalf("NextRecord: %v", err)
		}
		if status == StatusEOF {
			break
		}
		if status != StatusOK {
			t.Fatalf("unexpected status %v", status)
		}
		if r.IsInstruction() {
			tids = append(tids, r.TID)
		} else if r.IsThreadExit() {
			exits = append(exits, r.TID)
		}
	}

	wantBlocks := [][2]interface{}{{0, int64(100)}, {10, int64(200)}, {20, int64(100)}, {30, int64(200)}}
	if len(tids) != 40 {
		t.Fatalf("got %d instructions delivered, want 40", len(tids))
	}
	for _, blk := range wantBlocks {
		start := blk[0].(int)
		wantTID := blk[1].(int64)
		for i := start; i < start+10; i++ {
			if tids[i] != wantTID {
				t.Errorf("instruction %d: tid=%d, want %d (quantum block starting at %d)", i, tids[i], wantTID, start)
			}
		}
	}

	if len(exits) != 2 || exits[0] != 100 || exits[1] != 200 {
		t.Errorf("thread-exit order = %v, want [100 200]", exits)
	}
}

// TestBlockingSyscallScalesAndClamps checks that a BLOCKING_TIME marker
// above BlockingSwitchThreshold unschedules the input for
// min(value*BlockTimeMultiplier, BlockTimeMaxUs), and that the input
// becomes runnable again only once the caller-supplied clock passes that
// point.
func TestBlockingSyscallScalesAndClamps(t *testing.T) {
	recs := testtrace.NewBuilder(100, 1).
		Instr(0x1000, 4).
		Instr(0x1004, 4).
		BlockingTime(120).
		Records()

	sched, err := NewScheduler([]WorkloadSpec{{
		Name:   "w",
		Inputs: []InputSpec{{Stream: input.NewMemoryStream(100, 1, recs)}},
	}}, 1, BlockTimeMultiplier(2.0), BlockTimeMaxUs(150))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	if r, status, err := sched.NextRecord(0, 10); err != nil || status != StatusOK || !r.IsInstruction() {
		t.Fatalf("instr 1: got (%v, %v, %v)", r, status, err)
	}
	if r, status, err := sched.NextRecord(0, 20); err != nil || status != StatusOK || !r.IsInstruction() {
		t.Fatalf("instr 2: got (%v, %v, %v)", r, status, err)
	}

	r, status, err := sched.NextRecord(0, 30)
	if err != nil || status != StatusOK || !r.IsMarker() || r.Marker != record.MarkerBlockingTime {
		t.Fatalf("blocking marker: got (%v, %v, %v)", r, status, err)
	}
	// scaled = 120*2.0 = 240, clamped to BlockTimeMaxUs(150) -> blockedUntil = 30+150 = 180.

	r, status, err = sched.NextRecord(0, 100)
	if err != nil || status != StatusIdle {
		t.Fatalf("before wake time: got (%v, %v, %v), want StatusIdle", r, status, err)
	}

	r, status, err = sched.NextRecord(0, 200)
	if err != nil || status != StatusOK || !r.IsThreadExit() {
		t.Fatalf("after wake time: got (%v, %v, %v), want a woken thread-exit (stream was exhausted)", r, status, err)
	}

	r, status, err = sched.NextRecord(0, 300)
	if err != nil || status != StatusEOF {
		t.Fatalf("final call: got (%v, %v, %v), want StatusEOF", r, status, err)
	}

	if got := sched.Stats(0).WaitTicks; got == 0 {
		t.Errorf("WaitTicks = 0, want at least 1 while input was blocked")
	}
}

// TestDirectSwitchSucceedsOnce builds an input that requests a direct
// switch to a second input and then unschedules itself indefinitely,
// checking that exactly one direct switch succeeds and the target runs
// next, ahead of the ordinary ready-queue order.
func TestDirectSwitchSucceedsOnce(t *testing.T) {
	a := testtrace.NewBuilder(100, 1).
		Instr(0x1000, 4).
		DirectSwitchTo(200).
		Unschedule(0).
		Records()
	b := testtrace.NewBuilder(200, 1).Instrs(0x2000, 2).Records()

	sched, err := NewScheduler([]WorkloadSpec{{
		Name: "w",
		Inputs: []InputSpec{
			{Stream: input.NewMemoryStream(100, 1, a)},
			{Stream: input.NewMemoryStream(200, 1, b)},
		},
	}}, 1, HonorDirectSwitches(true), HonorInfiniteTimeouts(true))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	if r, status, err := sched.NextRecord(0, 1); err != nil || status != StatusOK || r.TID != 100 {
		t.Fatalf("A's instruction: got (%v, %v, %v)", r, status, err)
	}
	if r, status, err := sched.NextRecord(0, 2); err != nil || status != StatusOK || r.Marker != record.MarkerSyscallSchedule {
		t.Fatalf("A's direct-switch request: got (%v, %v, %v)", r, status, err)
	}
	if r, status, err := sched.NextRecord(0, 3); err != nil || status != StatusOK || r.Marker != record.MarkerSyscallUnschedule {
		t.Fatalf("A's unschedule: got (%v, %v, %v)", r, status, err)
	}

	r, status, err := sched.NextRecord(0, 4)
	if err != nil || status != StatusOK || r.TID != 200 {
		t.Fatalf("after A unschedules: got (%v, %v, %v), want B's instruction to run next via the direct switch", r, status, err)
	}

	stats := sched.Stats(0)
	if stats.DirectSwitchAttempts != 1 {
		t.Errorf("DirectSwitchAttempts = %d, want 1", stats.DirectSwitchAttempts)
	}
	if stats.DirectSwitchSuccesses != 1 {
		t.Errorf("DirectSwitchSuccesses = %d, want 1", stats.DirectSwitchSuccesses)
	}
}

// TestRegionOfInterestEmitsWindowMarker builds one input with two declared
// regions of interest and checks that the scheduler skips the instructions
// outside them, announces the transition between them with a single
// WINDOW_ID=1 marker, and exits early once the last region ends.
func TestRegionOfInterestEmitsWindowMarker(t *testing.T) {
	recs := testtrace.NewBuilder(100, 1).Instrs(0x1000, 20).Records()

	sched, err := NewScheduler([]WorkloadSpec{{
		Name: "w",
		Inputs: []InputSpec{{
			Stream:  input.NewMemoryStream(100, 1, recs),
			Regions: []Region{{Start: 0, Stop: 3}, {Start: 10, Stop: 13}},
		}},
	}}, 1)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	var gotInstrPCs []uint64
	var gotWindowIDs []uint64
	var sawExit bool
	for i := 0; i < 20; i++ {
		r, status, err := sched.NextRecord(0, 0)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if status != StatusOK {
			t.Fatalf("call %d: status=%v, want StatusOK", i, status)
		}
		switch {
		case r.IsInstruction():
			gotInstrPCs = append(gotInstrPCs, r.PC)
		case r.IsMarker() && r.Marker == record.MarkerWindowID:
			gotWindowIDs = append(gotWindowIDs, r.MarkerValue)
		case r.IsThreadExit():
			sawExit = true
		}
		if sawExit {
			break
		}
	}

	if !sawExit {
		t.Fatalf("never saw a synthetic thread-exit after the last region ended")
	}
	if len(gotInstrPCs) != 6 {
		t.Fatalf("delivered %d instructions, want 6 (3 from each region)", len(gotInstrPCs))
	}
	wantPCs := []uint64{0x1000, 0x1004, 0x1008, 0x1000 + 10*4, 0x1000 + 11*4, 0x1000 + 12*4}
	for i, pc := range gotInstrPCs {
		if pc != wantPCs[i] {
			t.Errorf("instruction %d: pc=%#x, want %#x", i, pc, wantPCs[i])
		}
	}
	if len(gotWindowIDs) != 1 || gotWindowIDs[0] != 1 {
		t.Errorf("WINDOW_ID markers = %v, want exactly one with value 1", gotWindowIDs)
	}
}

// TestRecordThenReplayRoundTrip records a run's schedule, then replays it
// with MAP_AS_PREVIOUSLY and checks the replayed run delivers the same
// tid sequence as the original.
func TestRecordThenReplayRoundTrip(t *testing.T) {
	a := testtrace.NewBuilder(100, 1).Instrs(0x1000, 12).Records()
	b := testtrace.NewBuilder(200, 1).Instrs(0x2000, 12).Records()

	var recording bytes.Buffer
	sched, err := NewScheduler([]WorkloadSpec{{
		Name: "w",
		Inputs: []InputSpec{
			{Stream: input.NewMemoryStream(100, 1, a)},
			{Stream: input.NewMemoryStream(200, 1, b)},
		},
	}}, 1, QuantumInstructionsDuration(5), ScheduleRecordOstream(&recording))
	if err != nil {
		t.Fatalf("NewScheduler (recording): %v", err)
	}

	var original []int64
	for {
		r, status, err := sched.NextRecord(0, 0)
		if err != nil {
			t.Fatalf("recording run: %v", err)
		}
		if status == StatusEOF {
			break
		}
		if status != StatusOK {
			continue
		}
		if r.IsInstruction() || r.IsThreadExit() {
			original = append(original, r.TID)
		}
	}

	a2 := testtrace.NewBuilder(100, 1).Instrs(0x1000, 12).Records()
	b2 := testtrace.NewBuilder(200, 1).Instrs(0x2000, 12).Records()
	replaySrc := bytes.NewReader(recording.Bytes())
	replay, err := NewScheduler([]WorkloadSpec{{
		Name: "w",
		Inputs: []InputSpec{
			{Stream: input.NewMemoryStream(100, 1, a2)},
			{Stream: input.NewMemoryStream(200, 1, b2)},
		},
	}}, 1, ScheduleReplayIstream(replaySrc))
	if err != nil {
		t.Fatalf("NewScheduler (replay): %v", err)
	}

	var replayed []int64
	for {
		r, status, err := replay.NextRecord(0, 0)
		if err != nil {
			t.Fatalf("replay run: %v", err)
		}
		if status == StatusEOF {
			break
		}
		if status != StatusOK {
			continue
		}
		if r.IsInstruction() || r.IsThreadExit() {
			replayed = append(replayed, r.TID)
		}
	}

	if len(original) != len(replayed) {
		t.Fatalf("replayed %d records, want %d (the original run's count)", len(replayed), len(original))
	}
	for i := range original {
		if original[i] != replayed[i] {
			t.Errorf("record %d: tid=%d, want %d (original run's tid at this position)", i, replayed[i], original[i])
		}
	}
}

// TestVisibleInstructionCountMatchesObservedOrdinal checks spec.md §8's
// invariant that an input's count of instructions actually delivered to a
// tool equals its own instruction ordinal once the run reaches EOF.
func TestVisibleInstructionCountMatchesObservedOrdinal(t *testing.T) {
	recs := testtrace.NewBuilder(100, 1).Instrs(0x1000, 7).Records()
	sched, err := NewScheduler([]WorkloadSpec{{
		Name:   "w",
		Inputs: []InputSpec{{Stream: input.NewMemoryStream(100, 1, recs)}},
	}}, 1)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	delivered := 0
	for {
		r, status, err := sched.NextRecord(0, 0)
		if err != nil {
			t.Fatalf("NextRecord: %v", err)
		}
		if status == StatusEOF {
			break
		}
		if status == StatusOK && r.IsInstruction() {
			delivered++
		}
	}
	if delivered != 7 {
		t.Errorf("delivered %d instructions, want 7", delivered)
	}
	if got := sched.inputs[0].visibleInstrOrdinal; got != uint64(delivered) {
		t.Errorf("inputState.visibleInstrOrdinal = %d, want %d (the delivered count)", got, delivered)
	}
}
