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
// Package schedule implements the trace scheduler: it owns every input
// (recorded shard) and output (virtual core), and decides, record by
// record, which input feeds which output next -- emulating OS-like
// scheduling (quanta, blocking, unscheduling, migration, rebalancing)
// while honoring a configurable dependency model.
//
// Deep cycles of pointers among inputs and outputs, as the original
// implementation has them, are modeled here as two flat slices
// (Scheduler.inputs, Scheduler.outputs) indexed by InputOrdinal and
// OutputOrdinal (DESIGN NOTES §9); cross-references are indices, not
// pointers.
package schedule

import (
	"math/rand"
	"sync"
	"sync/atomic"

	log "github.com/golang/glog"

	"github.com/google/tracesched/input"
	"github.com/google/tracesched/record"
)

// Scheduler owns every input and output for one run and decides, on each
// NextRecord call, which record an output sees next.
type Scheduler struct {
	cfg Config

	inputs    []*inputState
	outputs   []*outputState
	workloads []*workloadState

	// tidToInput is built once during NewScheduler and never written again,
	// per DESIGN NOTES §9's "tid table is built once during init and
	// becomes read-only thereafter".
	tidToInput map[int64]InputOrdinal

	liveInputCount  int64 // atomic
	startInputCount int64

	// clock is the scheduler's internal logical clock, advanced once per
	// NextRecord call regardless of caller-supplied cur_time, used for the
	// rebalance cadence and migrateOne's MigrationThresholdUs check. Quantum
	// and blocked_until comparisons use each output's curTime instead.
	clock uint64 // atomic

	// latestEmittedTimestamp is the highest TIMESTAMP-marker value any
	// output has emitted so far, used by the DependencyTimestamps model.
	latestEmittedTimestamp uint64 // atomic

	switchSeqs  map[transitionKind][]record.Record
	syscallSeqs map[uint64][]record.Record

	rebalanceTicks uint64 // atomic
	rebalanceMu    sync.Mutex

	rng   *rand.Rand
	rngMu sync.Mutex

	globalMu sync.Mutex // guards one-time setup only, not per-call hot paths
}

// NewScheduler reserves the inputs named by workloads across outputCount
// outputs and returns a ready-to-run Scheduler, or an *Error if the
// configuration or workload set is invalid. This is spec.md §4.2.1's
// init().
func NewScheduler(workloads []WorkloadSpec, outputCount int, opts ...Option) (*Scheduler, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if outputCount <= 0 {
		return nil, newError(KindInvalidParameter, "output_count must be positive, got %d", outputCount)
	}
	if len(workloads) == 0 {
		return nil, newError(KindInvalidParameter, "at least one workload is required")
	}

	s := &Scheduler{
		cfg:         cfg,
		tidToInput:  make(map[int64]InputOrdinal),
		switchSeqs:  make(map[transitionKind][]record.Record),
		syscallSeqs: make(map[uint64][]record.Record),
	}
	if cfg.RandomizeNextInput {
		s.rng = rand.New(rand.NewSource(int64(cfg.RandSeed)))
	}

	s.outputs = make([]*outputState, outputCount)
	for i := range s.outputs {
		s.outputs[i] = newOutputState(OutputOrdinal(i))
		if cfg.ScheduleRecordOstream != nil {
			s.outputs[i].recorder = newScheduleRecorder(cfg.ScheduleRecordOstream)
		}
	}

	if err := s.buildInputs(workloads); err != nil {
		return nil, err
	}
	if err := s.initStreams(); err != nil {
		return nil, err
	}
	if cfg.KernelSwitchTracePath != "" {
		seqs, err := LoadSwitchSequences(cfg.KernelSwitchTracePath)
		if err != nil {
			return nil, newError(KindFileReadFailed, "reading kernel switch trace %s: %v", cfg.KernelSwitchTracePath, err)
		}
		s.switchSeqs = seqs
	}
	if cfg.KernelSyscallTracePath != "" {
		seqs, err := LoadSyscallSequences(cfg.KernelSyscallTracePath)
		if err != nil {
			return nil, newError(KindFileReadFailed, "reading kernel syscall trace %s: %v", cfg.KernelSyscallTracePath, err)
		}
		s.syscallSeqs = seqs
	}

	switch cfg.Mapping {
	case MapAsPreviously, MapToRecordedOutput:
		if err := s.loadReplay(); err != nil {
			return nil, err
		}
	default:
		s.assignInitial()
	}

	s.startInputCount = int64(len(s.inputs))
	atomic.StoreInt64(&s.liveInputCount, s.startInputCount)

	if cfg.Verbose {
		cfg.logConfig()
	}
	log.V(1).Infof("schedule: initialized %d inputs across %d outputs", len(s.inputs), outputCount)
	return s, nil
}

// buildInputs reserves one inputState per InputSpec across all workloads,
// applying priority/affinity/region modifiers.
func (s *Scheduler) buildInputs(workloads []WorkloadSpec) error {
	for wi, w := range workloads {
		ws := &workloadState{
			ordinal:          wi,
			name:             w.Name,
			outputCountLimit: w.OutputCountLimit,
			timesOfInterest:  w.TimesOfInterest,
			outputsUsed:      make(map[OutputOrdinal]bool),
		}
		s.workloads = append(s.workloads, ws)
		for _, is := range w.Inputs {
			if is.Stream == nil {
				return newError(KindInvalidParameter, "workload %q: input with nil Stream", w.Name)
			}
			ord := InputOrdinal(len(s.inputs))
			st := newInputState(ord, is.Stream, ws)
			st.priority = is.Priority
			if len(is.Affinity) > 0 {
				st.affinity = make(map[OutputOrdinal]bool, len(is.Affinity))
				for _, o := range is.Affinity {
					if int(o) < 0 || int(o) >= len(s.outputs) {
						return newError(KindInvalidParameter, "workload %q: affinity references out-of-range output %d", w.Name, o)
					}
					st.affinity[o] = true
				}
			}
			st.regions = append([]Region(nil), is.Regions...)
			s.inputs = append(s.inputs, st)
			ws.inputs = append(ws.inputs, ord)
		}
	}
	return nil
}

// initStreams calls Init on every input's stream to learn tid/pid (the
// header prologue), builds the write-once tid->input table, and, if
// configured, reads ahead one record per input to learn starting
// timestamps (spec.md §4.2.1, §4.2.3).
func (s *Scheduler) initStreams() error {
	for _, is := range s.inputs {
		if err := is.stream.Init(); err != nil {
			return newError(KindFileOpenFailed, "input %d: %v", is.ordinal, err)
		}
		is.tid, is.pid = is.stream.TID(), is.stream.PID()
		s.tidToInput[is.tid] = is.ordinal

		if err := s.translateTimesOfInterest(is); err != nil {
			return err
		}

		if s.cfg.ReadInputsInInit {
			r, err := is.stream.Next()
			if err == input.ErrEndOfStream {
				is.atEOF = true
				continue
			}
			if err != nil {
				return newError(KindFileReadFailed, "input %d: initial read: %v", is.ordinal, err)
			}
			is.pending = append(is.pending, r)
		}
	}
	return nil
}

// assignInitial distributes inputs across outputs round-robin, respecting
// affinity, for every mapping mode except the replayed ones. Dynamic
// modes (MapToAnyOutput, MapSingleLockstepOutput) treat this only as a
// starting point; MapToConsistentOutput treats it as permanent.
func (s *Scheduler) assignInitial() {
	if s.cfg.Mapping == MapSingleLockstepOutput {
		for _, is := range s.inputs {
			s.outputs[0].ready.Push(is.ordinal, is.priority, is.lastRunTime)
		}
		return
	}
	next := 0
	for _, is := range s.inputs {
		o := s.pickEligibleOutputRoundRobin(is, &next)
		s.outputs[o].ready.Push(is.ordinal, is.priority, is.lastRunTime)
	}
}

func (s *Scheduler) pickEligibleOutputRoundRobin(is *inputState, next *int) OutputOrdinal {
	n := len(s.outputs)
	for i := 0; i < n; i++ {
		o := OutputOrdinal((*next + i) % n)
		if is.eligibleFor(o) {
			*next = (int(o) + 1) % n
			return o
		}
	}
	// No eligible output among those declared (a misconfigured affinity);
	// fall back to output 0 rather than drop the input.
	return 0
}

// OutputCount returns the number of virtual cores this Scheduler
// multiplexes onto.
func (s *Scheduler) OutputCount() int { return len(s.outputs) }

// InputCount returns the number of inputs (recorded shards) this Scheduler
// owns.
func (s *Scheduler) InputCount() int { return len(s.inputs) }

// GetInputOrdinal returns the input ordinal currently running on output, or
// NoInput if the output is idle.
func (s *Scheduler) GetInputOrdinal(output OutputOrdinal) InputOrdinal {
	os := s.outputs[output]
	os.mu.Lock()
	defer os.mu.Unlock()
	return os.curInput
}

// GetTID returns the tid of the input currently running on output, or 0 if
// idle.
func (s *Scheduler) GetTID(output OutputOrdinal) int64 {
	ord := s.GetInputOrdinal(output)
	if ord == NoInput {
		return 0
	}
	return s.inputs[ord].tid
}

// GetWorkloadOrdinal returns the workload ordinal that owns input.
func (s *Scheduler) GetWorkloadOrdinal(in InputOrdinal) int {
	return s.inputs[in].workload.ordinal
}

// Stats returns a copy of output's statistics counters.
func (s *Scheduler) Stats(output OutputOrdinal) OutputStats {
	os := s.outputs[output]
	os.mu.Lock()
	defer os.mu.Unlock()
	return os.stats
}

// SetActive pauses or resumes output. While inactive, every NextRecord call
// for this output returns StatusIdle. Any input the output currently owns
// is released back to the global ready pool so other outputs can make
// progress, per spec.md §5's cancellation contract.
func (s *Scheduler) SetActive(output OutputOrdinal, on bool) {
	os := s.outputs[output]
	os.mu.Lock()
	defer os.mu.Unlock()
	os.active = on
	if !on && os.curInput != NoInput {
		in := s.inputs[os.curInput]
		in.mu.Lock()
		in.state = inputReady
		in.curOutput = NoOutput
		target := s.homeOutputExcluding(in, output)
		in.mu.Unlock()
		s.outputs[target].ready.Push(os.curInput, in.priority, in.lastRunTime)
		os.prevRunInput = os.curInput
		os.curInput = NoInput
	}
}

// homeOutputExcluding picks a fallback output for an input released by a
// deactivated output, preferring any eligible output other than excluded.
func (s *Scheduler) homeOutputExcluding(in *inputState, excluded OutputOrdinal) OutputOrdinal {
	for o := range s.outputs {
		if OutputOrdinal(o) != excluded && in.eligibleFor(OutputOrdinal(o)) {
			return OutputOrdinal(o)
		}
	}
	return excluded
}

// LogConfig logs the scheduler's resolved configuration at V(1), matching
// scheduler_impl.cpp's print_configuration().
func (s *Scheduler) LogConfig() {
	s.cfg.logConfig()
}

func (s *Scheduler) tick() uint64 {
	return atomic.AddUint64(&s.clock, 1)
}

func (s *Scheduler) now() uint64 {
	return atomic.LoadUint64(&s.clock)
}

func (s *Scheduler) recordLatestTimestamp(ts uint64) {
	for {
		cur := atomic.LoadUint64(&s.latestEmittedTimestamp)
		if ts <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&s.latestEmittedTimestamp, cur, ts) {
			return
		}
	}
}

func (s *Scheduler) liveInputs() int64 {
	return atomic.LoadInt64(&s.liveInputCount)
}

func (s *Scheduler) markInputDone() int64 {
	return atomic.AddInt64(&s.liveInputCount, -1)
}

// exitThresholdReached reports whether ExitIfFractionInputsLeft's floor has
// been crossed. Supplements spec.md with original_source's
// exit_if_fraction_inputs_left (see SPEC_FULL.md).
func (s *Scheduler) exitThresholdReached() bool {
	if s.cfg.ExitIfFractionInputsLeft <= 0 || s.startInputCount == 0 {
		return false
	}
	frac := float64(s.liveInputs()) / float64(s.startInputCount)
	return frac < s.cfg.ExitIfFractionInputsLeft
}
