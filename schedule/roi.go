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
// roi.go implements spec.md §4.2.6's regions of interest: per-input
// instruction ranges the scheduler restricts playback to, plus the
// translation of a workload's wall-clock times of interest into those
// ranges at init.

package schedule

import "github.com/google/tracesched/record"

// translateTimesOfInterest resolves is.workload.timesOfInterest into
// per-input instruction Regions, appending them to any explicit Regions the
// InputSpec already carried.
//
// A precise translation needs a full pre-pass over each input's
// (timestamp, instruction-ordinal) pairs -- the recorded cpu_schedule file
// a from-scratch scheduler would consult offline. Absent that second pass,
// this is a deliberately approximate, documented simplification (see
// DESIGN.md's "Open Questions decided"): it assumes instruction ordinals advance
// linearly between the input's first and last observed timestamps, which
// is exact for a constant-rate trace and approximate otherwise. Callers
// that need exact times-of-interest boundaries should pre-translate them
// into explicit Regions instead.
func (s *Scheduler) translateTimesOfInterest(is *inputState) error {
	tois := is.workload.timesOfInterest
	if len(tois) == 0 {
		return nil
	}
	first := is.stream.FirstTimestamp()
	last := is.stream.LastTimestamp()
	if last <= first {
		return nil
	}
	for _, tr := range tois {
		start := timestampToOrdinal(first, last, tr.T0)
		stop := timestampToOrdinal(first, last, tr.T1)
		if stop <= start {
			continue
		}
		is.regions = append(is.regions, Region{Start: start, Stop: stop})
	}
	return nil
}

// timestampToOrdinal linearly maps ts within [first, last] onto an
// approximate instruction ordinal, clamped to [0, maxApproxInstrs].
const maxApproxInstrs = 1 << 32

func timestampToOrdinal(first, last, ts uint64) uint64 {
	if ts <= first {
		return 0
	}
	if ts >= last {
		return maxApproxInstrs
	}
	span := last - first
	frac := float64(ts-first) / float64(span)
	return uint64(frac * float64(maxApproxInstrs))
}

// exitingRegion reports whether ordinal -- the input stream's own raw
// instruction ordinal, which (unlike inputState.visibleInstrOrdinal) also
// counts instructions skipped to reach this region -- has reached the end
// of is's current region of interest, and advances is past it if so. Advancing
// into another declared region arms needsWindowMarker, so the next
// deliverFrom call announces the new region with a WINDOW_ID marker before
// skipping ahead into it (spec.md §4.2.6, scenario 5: the marker appears
// between two regions, not before the first). Advancing past the last
// declared region arms needsSyntheticExit instead, deferring the synthetic
// thread-exit to the next call so the instruction that just ended the
// region is still delivered.
func (is *inputState) exitingRegion(ordinal uint64) bool {
	r := is.currentRegion()
	if r == nil {
		return false
	}
	if ordinal < r.Stop {
		return false
	}
	is.curRegionIdx++
	if is.curRegionIdx < len(is.regions) {
		is.needsWindowMarker = true
	} else {
		is.needsSyntheticExit = true
	}
	return true
}

// windowMarker synthesizes a WINDOW_ID marker announcing a region-of-interest
// transition, per spec.md §4.2.6's "region entry is announced to the tool
// with a WINDOW_ID marker".
func windowMarker(idx int, tid, pid int64) record.Record {
	r := record.NewMarker(record.MarkerWindowID, uint64(idx))
	r.TID, r.PID = tid, pid
	r.Synthetic = true
	return r
}
