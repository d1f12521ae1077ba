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
// pick.go implements picking the next input to run on an idle output:
// a pending direct switch first, otherwise the ready queue, onto which
// blocked/unscheduled inputs whose timeouts have elapsed are pushed first.

package schedule

// pickNextInput chooses the next input to run on os, or reports that none
// is currently runnable. It must be called with os.mu held.
func (s *Scheduler) pickNextInput(os *outputState) (InputOrdinal, Status) {
	s.wakeDue(os)

	if s.exitThresholdReached() {
		return NoInput, StatusEOF
	}
	if os.pendingDirectSwitch != NoInput {
		in := os.pendingDirectSwitch
		os.pendingDirectSwitch = NoInput
		os.ready.Remove(in)
		return in, StatusOK
	}

	if s.cfg.Mapping == MapToConsistentOutput || s.cfg.Mapping == MapSingleLockstepOutput {
		// Statically-bound modes never migrate; pull strictly from this
		// output's own queue.
		if in, ok := s.popReadyRandomized(os); ok {
			return in, StatusOK
		}
	} else {
		if in, ok := s.popReadyRandomized(os); ok {
			return in, StatusOK
		}
	}

	// Nothing ready right now. Distinguish a transient stall (something
	// will become ready soon: a blocked/unscheduled input, or a
	// timestamp-dependency wait) from true end of stream.
	if s.liveInputs() == 0 {
		return NoInput, StatusEOF
	}
	if s.anyBlockedOrUnscheduled() {
		os.stats.WaitTicks++
		os.idleCount++
		return NoInput, StatusIdle
	}
	if s.cfg.Dependency == DependencyTimestamps {
		os.stats.WaitTicks++
		return NoInput, StatusWait
	}
	os.stats.IdleTicks++
	os.idleCount++
	return NoInput, StatusIdle
}

// popReadyRandomized pops the next input from os's ready queue, or, if
// RandomizeNextInput is set, a uniformly-random member of the queue rather
// than strictly the head.
func (s *Scheduler) popReadyRandomized(os *outputState) (InputOrdinal, bool) {
	if !s.cfg.RandomizeNextInput || os.ready.Len() <= 1 {
		return os.ready.Pop()
	}
	all := os.ready.All()
	s.rngMu.Lock()
	idx := s.rng.Intn(len(all))
	s.rngMu.Unlock()
	chosen := all[idx]
	os.ready.Remove(chosen)
	return chosen, true
}

// wakeDue moves every blocked input whose timeout has elapsed, and every
// unscheduled input with a finite timeout that has elapsed, back onto its
// eligible output's ready queue. Timeouts are compared against os.curTime,
// the same clock blockInput and SYSCALL_UNSCHEDULE compute blockedUntil
// from.
func (s *Scheduler) wakeDue(os *outputState) {
	now := os.curTime
	for _, in := range s.inputs {
		in.mu.Lock()
		wake := false
		switch in.state {
		case inputBlocked:
			wake = now >= in.blockedUntil
		case inputUnscheduled:
			wake = in.blockedUntil != 0 && now >= in.blockedUntil
		}
		if wake {
			in.state = inputReady
		}
		ord, pri, lrt := in.ordinal, in.priority, in.lastRunTime
		in.mu.Unlock()
		if wake {
			target := s.homeOutputFor(in, os.ordinal)
			s.outputs[target].ready.Push(ord, pri, lrt)
		}
	}
}

// homeOutputFor picks the output a woken input should be queued on:
// preferentially the output asking (os), but any eligible output if it
// isn't.
func (s *Scheduler) homeOutputFor(in *inputState, preferred OutputOrdinal) OutputOrdinal {
	if in.eligibleFor(preferred) {
		return preferred
	}
	for o := range s.outputs {
		if in.eligibleFor(OutputOrdinal(o)) {
			return OutputOrdinal(o)
		}
	}
	return preferred
}

// anyBlockedOrUnscheduled reports whether any input is currently blocked
// or unscheduled (so a future wake could make an output runnable again).
func (s *Scheduler) anyBlockedOrUnscheduled() bool {
	for _, in := range s.inputs {
		in.mu.Lock()
		st := in.state
		in.mu.Unlock()
		if st == inputBlocked || st == inputUnscheduled {
			return true
		}
	}
	return false
}
