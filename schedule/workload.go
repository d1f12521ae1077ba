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

import "github.com/google/tracesched/input"

// InputSpec describes one input (one recorded shard) as supplied to
// NewScheduler: its stream, and the per-input modifiers spec.md §4.2 names
// (priority, affinity, regions of interest).
type InputSpec struct {
	// Stream is the already-constructed (but not yet Init'd) input.Stream
	// for this shard.
	Stream input.Stream
	// Priority orders this input ahead of lower-priority inputs in ready
	// queues sharing an output. Higher runs first.
	Priority int32
	// Affinity, if non-empty, restricts this input to the named outputs.
	Affinity []OutputOrdinal
	// Regions is this input's ordered, disjoint region-of-interest list.
	// Empty means "replay the whole shard".
	Regions []Region
}

// WorkloadSpec groups InputSpecs that originated from one recorded
// process, plus the per-workload modifiers spec.md §3 names.
type WorkloadSpec struct {
	// Name identifies the workload for logging and for
	// Scheduler.GetWorkloadOrdinal.
	Name string
	// Inputs are this workload's constituent shards.
	Inputs []InputSpec
	// OutputCountLimit is recorded on the workload's resolved state. The
	// scheduler does not enforce it: a workload's inputs may run on any
	// number of outputs.
	OutputCountLimit int
	// TimesOfInterest is this workload's wall-clock times of interest,
	// translated to per-input instruction Regions at init (spec.md
	// §4.2.6).
	TimesOfInterest []TimeRange
}

// workloadState is the scheduler's resolved view of one WorkloadSpec.
type workloadState struct {
	ordinal          int
	name             string
	outputCountLimit int
	timesOfInterest  []TimeRange
	inputs           []InputOrdinal
	// outputsUsed is allocated at construction and never updated or read;
	// OutputCountLimit is not enforced.
	outputsUsed map[OutputOrdinal]bool
}
