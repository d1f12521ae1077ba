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
// speculation.go implements spec.md §4.2.9's speculation stack: a tool can
// ask an output to diverge from the recorded stream and run synthesized
// instructions instead (e.g. to model a mispredicted branch), then resume
// exactly where it left off.

package schedule

import "github.com/google/tracesched/record"

// nopInstrSize is the instruction width the nop speculator advances by.
// Real traces carry varying instruction sizes; a speculated stream carries
// no sizing information at all, so this is a fixed simplification rather
// than an attempt to guess real sizes.
const nopInstrSize = 1

// StartSpeculation pushes a new speculation frame onto output, diverting
// its subsequent NextRecord calls to synthesized instructions starting at
// pc instead of its real input stream, per spec.md §4.2.9. If
// queueCurrent is true, the record most recently delivered to this output
// is re-queued to be replayed first when speculation stops.
func (s *Scheduler) StartSpeculation(output OutputOrdinal, pc uint64, queueCurrent bool) error {
	os := s.outputs[output]
	os.mu.Lock()
	defer os.mu.Unlock()

	frame := specFrame{pc: pc, queueCurrent: queueCurrent}
	if queueCurrent && os.haveLast {
		frame.savedPending = []record.Record{os.lastRecord}
	}
	os.speculation = append(os.speculation, frame)
	os.pushMode(runSpeculating)
	return nil
}

// StopSpeculation pops output's innermost speculation frame, resuming its
// real input stream (or the next-outer speculation frame, if nested) where
// it left off.
func (s *Scheduler) StopSpeculation(output OutputOrdinal) error {
	os := s.outputs[output]
	os.mu.Lock()
	defer os.mu.Unlock()

	if len(os.speculation) == 0 {
		return newError(KindInvalidParameter, "output %d: StopSpeculation with no active speculation", output)
	}
	os.speculation = os.speculation[:len(os.speculation)-1]
	os.popMode()
	return nil
}

// nextSpeculatedRecord synthesizes the next instruction of output's
// innermost speculation frame: a straight-line nop stream advancing by
// nopInstrSize per call, a deliberately simple stand-in for whatever
// control flow a real speculator would model.
func nextSpeculatedRecord(os *outputState) record.Record {
	frame := &os.speculation[len(os.speculation)-1]
	if len(frame.savedPending) > 0 {
		r := frame.savedPending[0]
		frame.savedPending = frame.savedPending[1:]
		return r
	}
	r := record.NewInstruction(frame.pc, nopInstrSize, false)
	r.Synthetic = true
	frame.pc += nopInstrSize
	return r
}
