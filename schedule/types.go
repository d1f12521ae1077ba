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
// types.go collects the small value types the scheduler is built from:
// indices into its two flat arrays (DESIGN NOTES' "deep cycles of pointers
// ... become two flat arrays indexed by small integers"), mapping modes,
// the dependency model, quantum units, and region/time ranges.

package schedule

// InputOrdinal indexes Scheduler.inputs (equivalent to input_ordinal_t in
// C++ scheduler implementations this one is compatible with).
type InputOrdinal int32

// NoInput is the sentinel InputOrdinal meaning "no input", used by
// outputState.curInput when an output is idle.
const NoInput InputOrdinal = -1

// OutputOrdinal indexes Scheduler.outputs (output_ordinal_t).
type OutputOrdinal int32

// NoOutput is the sentinel OutputOrdinal meaning "not assigned to any
// output".
const NoOutput OutputOrdinal = -1

// MappingMode selects how the scheduler assigns inputs to outputs.
type MappingMode int8

const (
	// MapToAnyOutput dynamically schedules inputs across outputs; inputs
	// may migrate between outputs over the run.
	MapToAnyOutput MappingMode = iota
	// MapToRecordedOutput fixes each output to one recorded cpu; internally
	// lowered to MapAsPreviously after the recorded schedule is read.
	MapToRecordedOutput
	// MapAsPreviously replays a previously recorded scheduler output
	// verbatim.
	MapAsPreviously
	// MapToConsistentOutput assigns inputs to outputs round-robin, with no
	// migration.
	MapToConsistentOutput
	// MapSingleLockstepOutput queues every input on output 0, regardless of
	// output count, and schedules them there by the ordinary quantum; it
	// does not rotate inputs one record per call.
	// Supplements spec.md with a behavior original_source's scheduler
	// supports but the distilled spec only names in passing
	// (single_lockstep_output).
	MapSingleLockstepOutput
)

func (m MappingMode) String() string {
	switch m {
	case MapToAnyOutput:
		return "MAP_TO_ANY_OUTPUT"
	case MapToRecordedOutput:
		return "MAP_TO_RECORDED_OUTPUT"
	case MapAsPreviously:
		return "MAP_AS_PREVIOUSLY"
	case MapToConsistentOutput:
		return "MAP_TO_CONSISTENT_OUTPUT"
	case MapSingleLockstepOutput:
		return "MAP_SINGLE_LOCKSTEP_OUTPUT"
	default:
		return "MAP_UNKNOWN"
	}
}

// DependencyModel selects how strictly the scheduler enforces
// cross-input timestamp ordering.
type DependencyModel int8

const (
	// DependencyIgnore imposes no ordering between inputs.
	DependencyIgnore DependencyModel = iota
	// DependencyTimestamps requires that an input about to run on an output
	// not have a next-record timestamp earlier than the latest timestamp
	// already emitted by any output.
	DependencyTimestamps
)

func (d DependencyModel) String() string {
	if d == DependencyTimestamps {
		return "DEPENDENCY_TIMESTAMPS"
	}
	return "DEPENDENCY_IGNORE"
}

// QuantumUnit selects what a quantum is measured in.
type QuantumUnit int8

const (
	// QuantumInstructions measures a quantum in instructions observed at
	// the output.
	QuantumInstructions QuantumUnit = iota
	// QuantumTime measures a quantum in time units consumed since the
	// quantum started.
	QuantumTime
)

func (q QuantumUnit) String() string {
	if q == QuantumTime {
		return "QUANTUM_TIME"
	}
	return "QUANTUM_INSTRUCTIONS"
}

// Region is a half-open instruction range [Start, Stop) of one input's
// region of interest.
type Region struct {
	Start uint64
	Stop  uint64
}

// TimeRange is a closed wall-clock timestamp range [T0, T1] of a workload's
// times of interest, translated to instruction Regions at init.
type TimeRange struct {
	T0 uint64
	T1 uint64
}

// transitionKind distinguishes the two kinds of context-switch sequence a
// kernel-switch-trace file may key its templates by.
type transitionKind int8

const (
	transitionThreadSwitch transitionKind = iota
	transitionProcessSwitch
)
