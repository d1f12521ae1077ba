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

package analyzer

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/google/tracesched/input"
	"github.com/google/tracesched/internal/testtrace"
	"github.com/google/tracesched/record"
	"github.com/google/tracesched/schedule"
)

func twoShardScheduler(t *testing.T) *schedule.Scheduler {
	t.Helper()
	a := testtrace.NewBuilder(100, 1).Instrs(0x1000, 8).Records()
	b := testtrace.NewBuilder(200, 1).Instrs(0x2000, 8).Records()

	sched, err := schedule.NewScheduler([]schedule.WorkloadSpec{{
		Name: "w",
		Inputs: []schedule.InputSpec{
			{Stream: input.NewMemoryStream(100, 1, a)},
			{Stream: input.NewMemoryStream(200, 1, b)},
		},
	}}, 2, schedule.Mapping(schedule.MapToConsistentOutput))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return sched
}

// recordingTool records every record it sees, in delivery order, keyed by
// output, so tests can assert on exactly what the Driver dispatched.
type recordingTool struct {
	outputCount int
	mu          chan struct{} // cheap non-reentrant lock
	seen        map[int][]record.Record
	initialized bool
	finalized   bool
	printed     bool
}

func newRecordingTool() *recordingTool {
	return &recordingTool{mu: make(chan struct{}, 1), seen: make(map[int][]record.Record)}
}

func (t *recordingTool) lock()   { t.mu <- struct{}{} }
func (t *recordingTool) unlock() { <-t.mu }

func (t *recordingTool) InitializeStream(outputCount int) error {
	t.outputCount = outputCount
	t.initialized = true
	return nil
}
func (t *recordingTool) WorkerInit(output int) (ShardResult, error) { return output, nil }
func (t *recordingTool) ProcessRecord(state ShardResult, output int, r record.Record) error {
	t.lock()
	defer t.unlock()
	t.seen[output] = append(t.seen[output], r)
	return nil
}
func (t *recordingTool) WorkerError(state ShardResult, output int, err error) {}
func (t *recordingTool) WorkerExit(state ShardResult, output int)            {}
func (t *recordingTool) GenerateIntervalSnapshot(state ShardResult, output int) IntervalSnapshot {
	return output
}
func (t *recordingTool) CombineIntervalSnapshots(snapshots []IntervalSnapshot) IntervalSnapshot {
	return snapshots
}
func (t *recordingTool) FinalizeIntervalSnapshots(combined []IntervalSnapshot) error {
	t.finalized = true
	return nil
}
func (t *recordingTool) PrintResults() error {
	t.printed = true
	return nil
}

func TestDriverDeliversEveryInstructionToEveryOutput(t *testing.T) {
	sched := twoShardScheduler(t)
	tool := newRecordingTool()
	d := NewDriver(sched, tool)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !tool.initialized || !tool.finalized || !tool.printed {
		t.Fatalf("lifecycle callbacks not all invoked: %+v", tool)
	}

	total := 0
	for _, recs := range tool.seen {
		for _, r := range recs {
			if r.IsInstruction() {
				total++
			}
		}
	}
	if total != 16 {
		t.Errorf("total instructions delivered = %d, want 16", total)
	}
}

func TestInstrCountToolCombine(t *testing.T) {
	tool := NewInstrCountTool()
	snaps := []IntervalSnapshot{
		InstrSnapshot{Output: 0, EndTimestamp: 10, InstrCountCumulative: 5, InstrCountDelta: 5},
		InstrSnapshot{Output: 1, EndTimestamp: 10, InstrCountCumulative: 3, InstrCountDelta: 3},
		InstrSnapshot{Output: 2, EndTimestamp: 8, InstrCountCumulative: 7, InstrCountDelta: 7},
	}
	got := tool.CombineIntervalSnapshots(snaps).(CombinedInstrSnapshot)
	want := CombinedInstrSnapshot{
		Outputs:              []InstrSnapshot{snaps[0].(InstrSnapshot), snaps[1].(InstrSnapshot), snaps[2].(InstrSnapshot)},
		InstrCountCumulative: 15,
		InstrCountDelta:      8, // only the two snapshots ending at ts=10 contribute
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CombineIntervalSnapshots mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeSnapshotColumnsCarriesForward(t *testing.T) {
	columns := [][]IntervalSnapshot{
		{1, 2, 3},
		{10},
	}
	got := mergeSnapshotColumns(columns)
	want := [][]IntervalSnapshot{
		{1, 10},
		{2, 10},
		{3, 10},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mergeSnapshotColumns mismatch (-want +got):\n%s", diff)
	}
}

// A tool that errors partway through must stop receiving records, but a
// sibling tool that never errors keeps every worker running to completion,
// so Run itself reports no error (spec.md §7: a tool error aborts only
// that tool's dispatch, not the worker or its peers).
func TestDriverToolErrorDoesNotStopSiblingTools(t *testing.T) {
	sched := twoShardScheduler(t)
	good := newRecordingTool()
	bad := &erroringTool{recordingTool: newRecordingTool(), failAfter: 2}
	d := NewDriver(sched, bad, good)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run returned %v, want nil since a live sibling tool keeps every worker going", err)
	}
	if !good.initialized || !good.finalized || !good.printed {
		t.Errorf("surviving tool's lifecycle callbacks not all invoked: %+v", good)
	}

	goodInstrs, badInstrs := 0, 0
	for _, recs := range good.seen {
		for _, r := range recs {
			if r.IsInstruction() {
				goodInstrs++
			}
		}
	}
	for _, recs := range bad.seen {
		for _, r := range recs {
			if r.IsInstruction() {
				badInstrs++
			}
		}
	}
	if goodInstrs != 16 {
		t.Errorf("surviving tool saw %d instructions, want 16", goodInstrs)
	}
	if badInstrs >= goodInstrs {
		t.Errorf("erroring tool saw %d instructions, want fewer than the surviving tool's %d", badInstrs, goodInstrs)
	}
}

type erroringTool struct {
	*recordingTool
	failAfter int
	countMu   sync.Mutex
	count     int
}

func (t *erroringTool) ProcessRecord(state ShardResult, output int, r record.Record) error {
	t.countMu.Lock()
	t.count++
	over := t.count > t.failAfter
	t.countMu.Unlock()
	if over {
		return errTooMany
	}
	return t.recordingTool.ProcessRecord(state, output, r)
}

var errTooMany = &testError{"too many records"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
