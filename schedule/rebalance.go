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
// rebalance.go implements spec.md §4.2's periodic load rebalancing under
// MAP_TO_ANY_OUTPUT: every RebalancePeriod ticks, inputs queued on an
// overloaded output migrate to an underloaded one.

package schedule

// maybeRebalance runs a rebalancing pass every Config.RebalancePeriod
// ticks, moving ready (not currently running) inputs from the most-loaded
// output's queue to the least-loaded one, honoring affinity and
// MigrationThresholdUs. A no-op outside MAP_TO_ANY_OUTPUT. caller is the
// output whose mutex the invoking NextRecord call already holds; a pass
// that would need to touch caller's own queue is skipped for this tick
// rather than attempt to re-lock a held mutex.
func (s *Scheduler) maybeRebalance(tick uint64, caller OutputOrdinal) {
	if s.cfg.Mapping != MapToAnyOutput {
		return
	}
	if s.cfg.RebalancePeriod == 0 || tick%s.cfg.RebalancePeriod != 0 {
		return
	}
	if len(s.outputs) < 2 {
		return
	}

	s.rebalanceMu.Lock()
	defer s.rebalanceMu.Unlock()

	for {
		most, least := s.mostAndLeastLoaded(caller)
		if most == nil || least == nil || most == least {
			return
		}
		if most.ready.Len()-least.ready.Len() <= 1 {
			return
		}
		if !s.migrateOne(most, least) {
			return
		}
	}
}

// migrateOne moves one eligible, sufficiently-aged input from most's ready
// queue to least's, locking both (in ordinal order) since neither is the
// caller's already-held output. Each lock is only tried: if either output
// is busy, the pass backs off and moves nothing.
func (s *Scheduler) migrateOne(most, least *outputState) bool {
	a, b := most, least
	if a.ordinal > b.ordinal {
		a, b = b, a
	}
	if !a.mu.TryLock() {
		return false
	}
	defer a.mu.Unlock()
	if !b.mu.TryLock() {
		return false
	}
	defer b.mu.Unlock()

	for _, ord := range most.ready.All() {
		in := s.inputs[ord]
		in.mu.Lock()
		eligible := in.eligibleFor(least.ordinal)
		ranLongEnough := s.cfg.MigrationThresholdUs == 0 || in.lastRunTime == 0 ||
			s.now()-in.lastRunTime >= s.cfg.MigrationThresholdUs*s.cfg.TimeUnitsPerUs
		pri, lrt := in.priority, in.lastRunTime
		in.mu.Unlock()
		if eligible && ranLongEnough && most.ready.Remove(ord) {
			least.ready.Push(ord, pri, lrt)
			most.stats.Migrations++
			return true
		}
	}
	return false
}

// mostAndLeastLoaded returns the outputs, other than caller (whose mutex
// the invoking NextRecord call already holds), with the largest and
// smallest ready-queue length. An output with zero queued inputs is never
// picked as "most".
func (s *Scheduler) mostAndLeastLoaded(caller OutputOrdinal) (most, least *outputState) {
	for _, os := range s.outputs {
		if os == nil || os.ordinal == caller {
			continue
		}
		if os.ready.Len() > 0 && (most == nil || os.ready.Len() > most.ready.Len()) {
			most = os
		}
		if least == nil || os.ready.Len() < least.ready.Len() {
			least = os
		}
	}
	return most, least
}
