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
// snapshot.go merges the per-output interval snapshot columns produced by
// Driver.runWorker into the rows Tool.CombineIntervalSnapshots expects,
// following sched_elementary_intervals.go's CPUStateMergeType idiom: each
// output advances its own snapshot sequence independently and
// asynchronously, so merging lines them up by sequence position (not wall
// time) and carries each output's latest snapshot forward into any row
// where it produced none of its own, the way elementary-interval merging
// carries forward the last-known CPUState for a CPU that didn't transition
// this interval.
package analyzer

// mergeSnapshotColumns transposes per-output snapshot columns into rows
// suitable for Tool.CombineIntervalSnapshots, one row per snapshot
// position, carrying each output's last snapshot forward to fill rows
// where that output produced fewer snapshots than the longest column.
func mergeSnapshotColumns(columns [][]IntervalSnapshot) [][]IntervalSnapshot {
	maxLen := 0
	for _, col := range columns {
		if len(col) > maxLen {
			maxLen = len(col)
		}
	}
	if maxLen == 0 {
		return nil
	}

	rows := make([][]IntervalSnapshot, maxLen)
	last := make([]IntervalSnapshot, len(columns))
	for i := 0; i < maxLen; i++ {
		row := make([]IntervalSnapshot, len(columns))
		for c, col := range columns {
			if i < len(col) {
				last[c] = col[i]
			}
			row[c] = last[c]
		}
		rows[i] = row
	}
	return rows
}
