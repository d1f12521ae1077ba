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
// next_record.go implements Scheduler.NextRecord, the one call an analyzer
// worker makes per record: spec.md §4.2's quantum accounting, blocking and
// unscheduling, direct switches, region-of-interest boundaries, and kernel
// sequence injection all converge here.

package schedule

import (
	"github.com/google/tracesched/input"
	"github.com/google/tracesched/record"
)

// NextRecord returns the next record output should see, or a Status other
// than StatusOK describing why none is available right now. curTime, if
// non-zero, is the caller's own notion of the current time (used by
// QUANTUM_TIME and blocking-wake comparisons); zero means "derive it from
// this output's progress" (1 + instructions delivered + idle returns).
func (s *Scheduler) NextRecord(output OutputOrdinal, curTime uint64) (record.Record, Status, error) {
	if int(output) < 0 || int(output) >= len(s.outputs) {
		return record.Invalid, StatusIdle, newError(KindInvalidParameter, "output ordinal %d out of range", output)
	}
	os := s.outputs[output]
	os.mu.Lock()
	defer os.mu.Unlock()

	tick := s.tick()
	if curTime == 0 {
		// 1 avoids a derived value of 0, which NextRecord's caller contract
		// reserves for "derive it" (spec.md §4.2.5).
		curTime = 1 + os.instrOrdinal + os.idleCount
	}
	os.curTime = curTime

	if !os.active {
		os.idleCount++
		return record.Invalid, StatusIdle, nil
	}

	s.maybeRebalance(tick, os.ordinal)

	if os.mode() == runSpeculating {
		r := nextSpeculatedRecord(os)
		os.lastRecord, os.haveLast = r, true
		return r, StatusOK, nil
	}

	if s.cfg.Mapping == MapAsPreviously {
		return s.replayNext(os)
	}
	return s.dynamicNext(os)
}

// dynamicNext implements NextRecord for every mapping mode except replay.
func (s *Scheduler) dynamicNext(os *outputState) (record.Record, Status, error) {
	stole := false
	for {
		if os.curInput == NoInput {
			in, status := s.pickNextInput(os)
			if in == NoInput {
				return record.Invalid, status, nil
			}
			is := s.inputs[in]
			is.mu.Lock()
			wasRunningElsewhere := is.curOutput != NoOutput && is.curOutput != os.ordinal
			is.curOutput = os.ordinal
			is.state = inputRunning
			is.quantumStartTime = os.curTime
			is.instrsInQuantum = 0
			is.mu.Unlock()
			if wasRunningElsewhere {
				os.stats.Migrations++
				os.stats.Steals++
				stole = true
			}
			s.injectSwitchSequence(is, s.switchKind(os, in))
			os.curInput = in
		}

		is := s.inputs[os.curInput]
		is.mu.Lock()
		r, status, relinquish, err := s.deliverFrom(os, is)
		is.mu.Unlock()
		if err != nil {
			return record.Invalid, StatusIdle, err
		}
		if relinquish {
			os.prevRunInput = os.curInput
			os.curInput = NoInput
		}
		if status == StatusSkipped {
			continue
		}
		if stole && status == StatusOK {
			status = StatusStole
		}
		os.lastRecord, os.haveLast = r, true
		return r, status, nil
	}
}

// deliverFrom produces the next record for os from is, which must already
// be locked by the caller. relinquish reports whether os should pick a new
// input before its next call (the input blocked, was preempted, finished,
// or stepped outside its last region of interest).
func (s *Scheduler) deliverFrom(os *outputState, is *inputState) (r record.Record, status Status, relinquish bool, err error) {
	is.drainPendingSyscall()

	if is.needsSyntheticExit {
		is.needsSyntheticExit = false
		is.state = inputEOF
		is.curOutput = NoOutput
		s.markInputDone()
		s.recordExit(os, is.ordinal, is.visibleInstrOrdinal-is.instrsInQuantum, is.instrsInQuantum, os.curTime)
		return record.NewThreadExit(is.tid, is.pid), StatusOK, true, nil
	}
	if is.needsWindowMarker {
		is.needsWindowMarker = false
		is.windowsAnnounced++
		return windowMarker(is.windowsAnnounced, is.tid, is.pid), StatusOK, false, nil
	}
	if len(is.regions) > 0 && is.curRegionIdx < len(is.regions) && is.stream.InstructionOrdinal() < is.regions[is.curRegionIdx].Start {
		delta := is.regions[is.curRegionIdx].Start - is.stream.InstructionOrdinal()
		if _, err := is.stream.SkipInstructions(delta); err != nil && err != input.ErrRegionInvalid {
			return record.Invalid, StatusIdle, false, newError(KindFileReadFailed, "input %d: region skip: %v", is.ordinal, err)
		}
	}

	if pr, ok := is.popPending(); ok {
		r = pr
	} else if is.atEOF {
		r = record.NewThreadExit(is.tid, is.pid)
	} else {
		nr, nerr := is.stream.Next()
		if nerr == input.ErrEndOfStream {
			is.atEOF = true
			r = record.NewThreadExit(is.tid, is.pid)
		} else if nerr != nil {
			return record.Invalid, StatusIdle, false, newError(KindFileReadFailed, "input %d: %v", is.ordinal, nerr)
		} else {
			r = nr
		}
	}

	if r.IsThreadExit() {
		is.state = inputEOF
		is.curOutput = NoOutput
		s.markInputDone()
		s.recordExit(os, is.ordinal, is.visibleInstrOrdinal-is.instrsInQuantum, is.instrsInQuantum, os.curTime)
		return r, StatusOK, true, nil
	}

	if r.IsInstruction() {
		is.visibleInstrOrdinal++
		is.instrsInQuantum++
		os.instrOrdinal++
		is.lastFallThroughPC = r.FallThroughPC()

		is.exitingRegion(is.stream.InstructionOrdinal())

		if s.quantumExpired(is, os) {
			is.state = inputPreempted
			is.lastRunTime = os.curTime
			is.curOutput = NoOutput
			target := s.homeOutputFor(is, os.ordinal)
			s.outputs[target].ready.Push(is.ordinal, is.priority, is.lastRunTime)
			os.stats.Preemptions++
			s.recordRun(os, is.ordinal, is.visibleInstrOrdinal-is.instrsInQuantum, is.instrsInQuantum, os.curTime)
			return r, StatusOK, true, nil
		}
	}

	if r.IsMarker() {
		if handled, relq := s.handleMarker(os, is, &r); handled {
			if relq {
				// Blocking, unscheduling, and a direct switch all relinquish
				// mid-quantum, the same as preemption below: the partial
				// quantum still needs a segRun, or MAP_AS_PREVIOUSLY replay
				// silently drops the instructions already run against it.
				s.recordRun(os, is.ordinal, is.visibleInstrOrdinal-is.instrsInQuantum, is.instrsInQuantum, os.curTime)
			}
			return r, StatusOK, relq, nil
		}
	}

	return r, StatusOK, false, nil
}

// quantumExpired reports whether is has run out its quantum on os.
func (s *Scheduler) quantumExpired(is *inputState, os *outputState) bool {
	switch s.cfg.QuantumUnit {
	case QuantumInstructions:
		return is.instrsInQuantum >= s.cfg.QuantumDurationInstrs
	case QuantumTime:
		elapsed := os.curTime - is.quantumStartTime
		return elapsed >= s.cfg.QuantumDurationUs*s.cfg.TimeUnitsPerUs
	default:
		return false
	}
}

// handleMarker applies the scheduling side effects of a just-delivered
// marker record: timestamp tracking, blocking, unscheduling, and direct
// switches (spec.md §4.2.5, §4.2.7). relinquish reports whether os should
// pick a new input next call.
func (s *Scheduler) handleMarker(os *outputState, is *inputState, r *record.Record) (handled, relinquish bool) {
	switch r.Marker {
	case record.MarkerTimestamp:
		s.rewriteTimestamp(os, r)
		s.recordLatestTimestamp(r.MarkerValue)
		return true, false

	case record.MarkerSyscall:
		s.injectSyscallSequence(is, r.MarkerValue)
		if r.MarkerValue >= s.cfg.SyscallSwitchThreshold {
			return s.blockInput(os, is, s.cfg.SyscallSwitchThreshold), true
		}
		return true, false

	case record.MarkerBlockingTime:
		if r.MarkerValue > s.cfg.BlockingSwitchThreshold {
			return s.blockInput(os, is, r.MarkerValue), true
		}
		return true, false

	case record.MarkerSyscallUnschedule:
		if !s.cfg.HonorDirectSwitches {
			return true, false
		}
		timeout := r.MarkerValue
		if timeout == 0 && !s.cfg.HonorInfiniteTimeouts {
			return true, false
		}
		is.state = inputUnscheduled
		if timeout == 0 {
			is.blockedUntil = 0 // infinite: only a direct switch or explicit wake resumes it
		} else {
			is.blockedUntil = os.curTime + timeout*s.cfg.TimeUnitsPerUs
		}
		is.curOutput = NoOutput
		return true, true

	case record.MarkerSyscallSchedule:
		if !s.cfg.HonorDirectSwitches {
			return true, false
		}
		os.stats.DirectSwitchAttempts++
		target, ok := s.tidToInput[int64(r.MarkerValue)]
		if !ok {
			return true, false
		}
		ti := s.inputs[target]
		ti.mu.Lock()
		if ti.state == inputUnscheduled || ti.state == inputReady {
			ti.state = inputReady
			ti.mu.Unlock()
			os.ready.Remove(target)
			os.pendingDirectSwitch = target
			os.stats.DirectSwitchSuccesses++
		} else {
			ti.mu.Unlock()
		}
		return true, false

	default:
		return false, false
	}
}

// rewriteTimestamp replaces a just-delivered TIMESTAMP marker's value with
// one synthesized from os's own progress, under every mapping mode except
// the replayed ones (those reproduce a recorded run's values verbatim).
// The as-recorded timestamp no longer means anything once a dynamic
// schedule has interleaved inputs across outputs (scheduler_impl.cpp's
// base_timestamp/INSTRS_PER_US synthesis); the first timestamp this output
// ever sees becomes the base every later one is rebuilt from.
func (s *Scheduler) rewriteTimestamp(os *outputState, r *record.Record) {
	if s.cfg.Mapping == MapAsPreviously || s.cfg.Mapping == MapToRecordedOutput {
		return
	}
	if os.baseTimestamp == 0 {
		os.baseTimestamp = r.MarkerValue
		return
	}
	perUs := s.cfg.TimeUnitsPerUs
	if perUs == 0 {
		perUs = 1
	}
	r.MarkerValue = os.baseTimestamp + (os.instrOrdinal+os.idleCount)/perUs
}

// blockInput transitions is to blocked, scaled by BlockTimeMultiplier and
// clamped to BlockTimeMaxUs, per spec.md §4.2.5's scale_block_time.
func (s *Scheduler) blockInput(os *outputState, is *inputState, rawUs uint64) bool {
	scaled := float64(rawUs) * s.cfg.BlockTimeMultiplier
	if s.cfg.BlockTimeMaxUs > 0 && scaled > float64(s.cfg.BlockTimeMaxUs) {
		scaled = float64(s.cfg.BlockTimeMaxUs)
	}
	is.state = inputBlocked
	is.blockedUntil = os.curTime + uint64(scaled)*s.cfg.TimeUnitsPerUs
	is.curOutput = NoOutput
	return true
}

// UnreadLastRecord pushes the record most recently delivered to output
// back onto its input's pending queue, so the next NextRecord call
// re-delivers it. Fails for flavors that don't support unread (spec.md
// §4.1.2).
func (s *Scheduler) UnreadLastRecord(output OutputOrdinal) error {
	if !s.cfg.Flavor.UnreadSupported() {
		return newError(KindNotImplemented, "flavor %s does not support unread", s.cfg.Flavor.Name())
	}
	os := s.outputs[output]
	os.mu.Lock()
	defer os.mu.Unlock()
	if !os.haveLast || os.curInput == NoInput {
		return newError(KindInvalidParameter, "output %d: no last record to unread", output)
	}
	is := s.inputs[os.curInput]
	is.mu.Lock()
	defer is.mu.Unlock()
	is.pending = append([]record.Record{os.lastRecord}, is.pending...)
	if os.lastRecord.IsInstruction() {
		is.visibleInstrOrdinal--
		if is.instrsInQuantum > 0 {
			is.instrsInQuantum--
		}
		if os.instrOrdinal > 0 {
			os.instrOrdinal--
		}
	}
	return nil
}
