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
// replay.go implements spec.md §4.2.8 and §6: a binary recorded schedule,
// one fixed-size record per scheduling decision, that can be replayed to
// reproduce a run's input-to-output assignment exactly (MAP_AS_PREVIOUSLY)
// or used to pin each output to its originally-recorded cpu
// (MAP_TO_RECORDED_OUTPUT, which is lowered to MAP_AS_PREVIOUSLY once the
// file is read).

package schedule

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// segmentType discriminates the kinds of scheduleSegment a recorded
// schedule file can hold.
type segmentType uint8

const (
	segRun segmentType = iota
	segIdle
	segSkip
	// segSyntheticEnd records that Input reached the end of its recorded
	// shard (or the end of its last region of interest) on Output, so
	// replay can reproduce the synthetic thread-exit rather than silently
	// dropping it.
	segSyntheticEnd
)

// scheduleSegment is one entry of a recorded schedule: spec.md §6's
// {type, input, start_instruction, stop_or_duration, timestamp}, extended
// with the output it ran on so replay can reconstruct the exact
// interleaving rather than just a static input/output binding.
type scheduleSegment struct {
	Type           segmentType
	Output         OutputOrdinal
	Input          InputOrdinal
	StartInstr     uint64
	StopOrDuration uint64
	Timestamp      uint64
}

// segmentSize is the fixed on-disk width of one scheduleSegment.
const segmentSize = 1 + 4 + 4 + 8 + 8 + 8

func encodeSegment(seg scheduleSegment) []byte {
	buf := make([]byte, segmentSize)
	buf[0] = byte(seg.Type)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(seg.Output))
	binary.LittleEndian.PutUint32(buf[5:9], uint32(seg.Input))
	binary.LittleEndian.PutUint64(buf[9:17], seg.StartInstr)
	binary.LittleEndian.PutUint64(buf[17:25], seg.StopOrDuration)
	binary.LittleEndian.PutUint64(buf[25:33], seg.Timestamp)
	return buf
}

func decodeSegment(buf []byte) (scheduleSegment, error) {
	if len(buf) != segmentSize {
		return scheduleSegment{}, fmt.Errorf("schedule: malformed segment, got %d bytes want %d", len(buf), segmentSize)
	}
	return scheduleSegment{
		Type:           segmentType(buf[0]),
		Output:         OutputOrdinal(binary.LittleEndian.Uint32(buf[1:5])),
		Input:          InputOrdinal(binary.LittleEndian.Uint32(buf[5:9])),
		StartInstr:     binary.LittleEndian.Uint64(buf[9:17]),
		StopOrDuration: binary.LittleEndian.Uint64(buf[17:25]),
		Timestamp:      binary.LittleEndian.Uint64(buf[25:33]),
	}, nil
}

// scheduleRecorder serializes scheduleSegments to an io.Writer as a run
// progresses, one output's worth of decisions interleaved by arrival order
// (spec.md §4.2.8: "the recording is a single interleaved stream, not
// one-per-output").
type scheduleRecorder struct {
	mu sync.Mutex
	w  io.Writer
	// nextChunkModulo supports the i#6107 legacy-format fix: older
	// recordings wrote one IDLE segment per output per rebalance tick even
	// when nothing changed, which fixLegacyChunkModulo collapses on replay.
	// Fresh recordings written by this scheduler never need the fix.
	nextChunkModulo uint64
}

func newScheduleRecorder(w io.Writer) *scheduleRecorder {
	return &scheduleRecorder{w: w}
}

func (r *scheduleRecorder) record(seg scheduleSegment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.w.Write(encodeSegment(seg))
	return err
}

// recordRun appends a segRun segment noting that in ran on os starting at
// startInstr for instrCount instructions, as of timestamp.
func (s *Scheduler) recordRun(os *outputState, in InputOrdinal, startInstr, instrCount, timestamp uint64) {
	if os.recorder == nil {
		return
	}
	_ = os.recorder.record(scheduleSegment{Type: segRun, Output: os.ordinal, Input: in, StartInstr: startInstr, StopOrDuration: instrCount, Timestamp: timestamp})
}

// recordIdle appends a segIdle segment noting that os was idle for
// duration time units, as of timestamp.
func (s *Scheduler) recordIdle(os *outputState, duration, timestamp uint64) {
	if os.recorder == nil {
		return
	}
	_ = os.recorder.record(scheduleSegment{Type: segIdle, Output: os.ordinal, Input: NoInput, StopOrDuration: duration, Timestamp: timestamp})
}

// recordExit appends the final segRun for in's last partial quantum (if any
// instructions remain in it), then a segSyntheticEnd marking that in
// reached end of stream on os, so replay reproduces the synthetic
// thread-exit instead of stopping one record short.
func (s *Scheduler) recordExit(os *outputState, in InputOrdinal, startInstr, instrCount, timestamp uint64) {
	if os.recorder == nil {
		return
	}
	if instrCount > 0 {
		_ = os.recorder.record(scheduleSegment{Type: segRun, Output: os.ordinal, Input: in, StartInstr: startInstr, StopOrDuration: instrCount, Timestamp: timestamp})
	}
	_ = os.recorder.record(scheduleSegment{Type: segSyntheticEnd, Output: os.ordinal, Input: in, Timestamp: timestamp})
}

// loadReplay reads every segment from Config.ScheduleReplayIstream and
// distributes them onto the outputState each segment names, in file order,
// for per-output sequential playback during NextRecord (see replayplay.go's
// replayNext). MAP_TO_RECORDED_OUTPUT additionally pins
// every input to the single output its segments name, then behaves exactly
// like MAP_AS_PREVIOUSLY from then on (spec.md §4.2.1).
func (s *Scheduler) loadReplay() error {
	r := s.cfg.ScheduleReplayIstream
	segs, err := s.readReplaySegments(r)
	if err != nil {
		return err
	}
	segs = fixLegacyChunkModulo(segs)

	for _, seg := range segs {
		if int(seg.Output) < 0 || int(seg.Output) >= len(s.outputs) {
			return newError(KindRangeInvalid, "recorded schedule references out-of-range output %d", seg.Output)
		}
		os := s.outputs[seg.Output]
		os.replaySegments = append(os.replaySegments, seg)
	}

	if s.cfg.Mapping == MapToRecordedOutput {
		// Establish a static input->output binding from the first segment
		// each input appears in, then fall through to ordinary
		// MAP_AS_PREVIOUSLY replay of the full interleaving.
		for _, is := range s.inputs {
			is.affinity = nil
		}
		for _, seg := range segs {
			if seg.Type != segRun {
				continue
			}
			if int(seg.Input) >= 0 && int(seg.Input) < len(s.inputs) {
				is := s.inputs[seg.Input]
				if is.affinity == nil {
					is.affinity = map[OutputOrdinal]bool{seg.Output: true}
				}
			}
		}
	}
	// MAP_TO_RECORDED_OUTPUT is purely a one-time binding step; thereafter
	// the scheduler replays exactly like MAP_AS_PREVIOUSLY.
	s.cfg.Mapping = MapAsPreviously
	return nil
}

// readReplaySegments decodes every segment from r in file order.
func (s *Scheduler) readReplaySegments(r io.Reader) ([]scheduleSegment, error) {
	var segs []scheduleSegment
	buf := make([]byte, segmentSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, newError(KindFileReadFailed, "reading recorded schedule: %v", err)
		}
		seg, err := decodeSegment(buf)
		if err != nil {
			return nil, newError(KindFileReadFailed, "%v", err)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// fixLegacyChunkModulo collapses runs of adjacent segIdle segments into one,
// working around i#6107: an older recorder emitted one IDLE segment per
// output per rebalance tick even when the output stayed idle across many
// ticks in a row, which otherwise reads back as a burst of zero-length
// idle periods.
func fixLegacyChunkModulo(segs []scheduleSegment) []scheduleSegment {
	if len(segs) == 0 {
		return segs
	}
	out := make([]scheduleSegment, 0, len(segs))
	for _, seg := range segs {
		if seg.Type == segIdle && len(out) > 0 {
			last := &out[len(out)-1]
			if last.Type == segIdle && last.Output == seg.Output {
				last.StopOrDuration += seg.StopOrDuration
				last.Timestamp = seg.Timestamp
				continue
			}
		}
		out = append(out, seg)
	}
	return out
}
