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
// instrcount.go provides InstrCountTool, a reference Tool that tracks per-
// shard instruction counts across interval snapshots, grounded on
// sched_metrics.go's accumulate-then-finalize metric shape: each shard
// accumulates a running instruction count as records arrive, and a snapshot
// freezes that count (cumulative) along with the delta since the shard's
// previous snapshot.
package analyzer

import (
	"sync"

	"github.com/google/tracesched/record"
)

// InstrSnapshot is the IntervalSnapshot value InstrCountTool produces: one
// shard's instruction counters as of a snapshot boundary (spec.md §3's
// "shard id, interval id, end timestamp, cumulative and delta instruction
// counts").
type InstrSnapshot struct {
	Output               int
	IntervalID           int
	EndTimestamp         uint64
	InstrCountCumulative uint64
	InstrCountDelta      uint64
}

// CombinedInstrSnapshot is what InstrCountTool.CombineIntervalSnapshots
// returns: the per-output snapshots at one merge position, plus the sums
// spec.md §4.3 calls for (total cumulative across every shard; delta summed
// only over shards whose latest snapshot actually ended at this position).
type CombinedInstrSnapshot struct {
	Outputs              []InstrSnapshot
	InstrCountCumulative uint64
	InstrCountDelta      uint64
}

type instrShardState struct {
	mu               sync.Mutex
	count            uint64
	lastSnapshotAt   uint64
	intervalsEmitted int
	lastTimestamp    uint64
}

// InstrCountTool implements Tool, counting instructions delivered per
// output and emitting InstrSnapshot/CombinedInstrSnapshot values.
type InstrCountTool struct {
	outputCount int
}

// NewInstrCountTool returns a ready-to-register InstrCountTool.
func NewInstrCountTool() *InstrCountTool { return &InstrCountTool{} }

// InitializeStream implements Tool.
func (t *InstrCountTool) InitializeStream(outputCount int) error {
	t.outputCount = outputCount
	return nil
}

// WorkerInit implements Tool.
func (t *InstrCountTool) WorkerInit(output int) (ShardResult, error) {
	return &instrShardState{}, nil
}

// ProcessRecord implements Tool.
func (t *InstrCountTool) ProcessRecord(state ShardResult, output int, r record.Record) error {
	ss := state.(*instrShardState)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if r.IsInstruction() {
		ss.count++
	}
	if r.IsMarker() && r.Marker == record.MarkerTimestamp {
		ss.lastTimestamp = r.MarkerValue
	}
	return nil
}

// WorkerError implements Tool.
func (t *InstrCountTool) WorkerError(state ShardResult, output int, err error) {}

// WorkerExit implements Tool.
func (t *InstrCountTool) WorkerExit(state ShardResult, output int) {}

// GenerateIntervalSnapshot implements Tool.
func (t *InstrCountTool) GenerateIntervalSnapshot(state ShardResult, output int) IntervalSnapshot {
	ss := state.(*instrShardState)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delta := ss.count - ss.lastSnapshotAt
	ss.lastSnapshotAt = ss.count
	ss.intervalsEmitted++
	return InstrSnapshot{
		Output:               output,
		IntervalID:           ss.intervalsEmitted,
		EndTimestamp:         ss.lastTimestamp,
		InstrCountCumulative: ss.count,
		InstrCountDelta:      delta,
	}
}

// CombineIntervalSnapshots implements Tool, following spec.md §4.3's
// "instr_count_cumulative = sum over all latest, instr_count_delta = sum
// over shards whose latest snapshot ended at this timestamp".
func (t *InstrCountTool) CombineIntervalSnapshots(snapshots []IntervalSnapshot) IntervalSnapshot {
	combined := CombinedInstrSnapshot{}
	var latestEnd uint64
	for _, s := range snapshots {
		is, ok := s.(InstrSnapshot)
		if !ok {
			continue
		}
		combined.Outputs = append(combined.Outputs, is)
		combined.InstrCountCumulative += is.InstrCountCumulative
		if is.EndTimestamp > latestEnd {
			latestEnd = is.EndTimestamp
		}
	}
	for _, is := range combined.Outputs {
		if is.EndTimestamp == latestEnd {
			combined.InstrCountDelta += is.InstrCountDelta
		}
	}
	return combined
}

// FinalizeIntervalSnapshots implements Tool.
func (t *InstrCountTool) FinalizeIntervalSnapshots(combined []IntervalSnapshot) error { return nil }

// PrintResults implements Tool.
func (t *InstrCountTool) PrintResults() error { return nil }
