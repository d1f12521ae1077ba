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
// replayplay.go implements MAP_AS_PREVIOUSLY playback: NextRecord walks
// os.replaySegments in order rather than consulting the ready queue,
// reproducing a previously recorded run's exact input-to-output
// assignment (spec.md §4.2.8).

package schedule

import (
	"github.com/google/tracesched/input"
	"github.com/google/tracesched/record"
)

// replayNext implements NextRecord while Config.Mapping is MapAsPreviously.
// Must be called with os.mu held.
func (s *Scheduler) replayNext(os *outputState) (record.Record, Status, error) {
	for {
		if os.replayIdx >= len(os.replaySegments) {
			return record.Invalid, StatusEOF, nil
		}
		seg := &os.replaySegments[os.replayIdx]

		switch seg.Type {
		case segIdle:
			os.replayIdx++
			os.replayInstrsDelivered = 0
			os.stats.IdleTicks++
			os.idleCount++
			return record.Invalid, StatusIdle, nil

		case segSkip:
			os.replayIdx++
			os.replayInstrsDelivered = 0
			continue

		case segSyntheticEnd:
			os.replayIdx++
			os.replayInstrsDelivered = 0
			if int(seg.Input) < 0 || int(seg.Input) >= len(s.inputs) {
				continue
			}
			is := s.inputs[seg.Input]
			is.mu.Lock()
			alreadyDone := is.state == inputEOF
			is.state = inputEOF
			is.curOutput = NoOutput
			tid, pid := is.tid, is.pid
			is.mu.Unlock()
			if alreadyDone {
				continue
			}
			s.markInputDone()
			r := record.NewThreadExit(tid, pid)
			os.lastRecord, os.haveLast = r, true
			return r, StatusOK, nil

		case segRun:
			if os.replayInstrsDelivered >= seg.StopOrDuration {
				os.replayIdx++
				os.replayInstrsDelivered = 0
				continue
			}
			if int(seg.Input) < 0 || int(seg.Input) >= len(s.inputs) {
				return record.Invalid, StatusIdle, newError(KindRangeInvalid, "recorded schedule references out-of-range input %d", seg.Input)
			}
			is := s.inputs[seg.Input]
			is.mu.Lock()
			if is.curOutput != os.ordinal {
				wasElsewhere := is.curOutput != NoOutput
				is.curOutput = os.ordinal
				is.state = inputRunning
				is.mu.Unlock()
				if wasElsewhere {
					os.stats.Migrations++
				}
				s.injectSwitchSequence(is, s.switchKind(os, seg.Input))
				os.prevRunInput = seg.Input
				is.mu.Lock()
			}
			r, eof, err := s.replayDeliverOne(is)
			is.mu.Unlock()
			if err != nil {
				return record.Invalid, StatusIdle, err
			}
			if r.IsInstruction() {
				os.replayInstrsDelivered++
				os.instrOrdinal++
			}
			if eof {
				os.replayIdx++
				os.replayInstrsDelivered = 0
			}
			os.lastRecord, os.haveLast = r, true
			return r, StatusOK, nil

		default:
			os.replayIdx++
		}
	}
}

// replayDeliverOne reads or pops the next record from is during replay, a
// stripped-down counterpart of deliverFrom that skips quantum/blocking
// logic entirely: a recorded schedule already reflects every scheduling
// decision, so replay only needs to reproduce record delivery and
// timestamp bookkeeping. Must be called with is.mu held.
func (s *Scheduler) replayDeliverOne(is *inputState) (record.Record, bool, error) {
	is.drainPendingSyscall()

	var r record.Record
	if pr, ok := is.popPending(); ok {
		r = pr
	} else if is.atEOF {
		r = record.NewThreadExit(is.tid, is.pid)
	} else {
		nr, err := is.stream.Next()
		if err == input.ErrEndOfStream {
			is.atEOF = true
			r = record.NewThreadExit(is.tid, is.pid)
		} else if err != nil {
			return record.Invalid, false, newError(KindFileReadFailed, "input %d: %v", is.ordinal, err)
		} else {
			r = nr
		}
	}

	if r.IsThreadExit() {
		is.state = inputEOF
		is.curOutput = NoOutput
		s.markInputDone()
		return r, true, nil
	}
	if r.IsInstruction() {
		is.visibleInstrOrdinal++
	}
	if r.IsMarker() && r.Marker == record.MarkerTimestamp {
		s.recordLatestTimestamp(r.MarkerValue)
	}
	return r, false, nil
}
