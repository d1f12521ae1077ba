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
// kernelseq.go implements spec.md §4.2.7's kernel-sequence injection: short
// runs of synthesized records (a context switch, a syscall trace) spliced
// into an input's record stream at a transition point, modeled as a FIFO
// push onto inputState.pending rather than a coroutine, per DESIGN NOTES
// §9.

package schedule

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/google/tracesched/input"
	"github.com/google/tracesched/record"
)

// Kernel-switch and kernel-syscall trace files share one simple container
// format: a sequence of (key uint64, count uint32, count*frame) groups,
// each frame encoded the way input.WriteFrame encodes one record.Record.
// This is this module's own format -- the files these paths name are
// produced by the same tooling that writes schedule recordings, not by
// any upstream trace format.

func loadSequenceFile(path string) (map[uint64][]record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[uint64][]record.Record)
	hdr := make([]byte, 12)
	for {
		if _, err := io.ReadFull(f, hdr); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, fmt.Errorf("schedule: malformed sequence file %s: %w", path, err)
		}
		key := binary.LittleEndian.Uint64(hdr[0:8])
		count := binary.LittleEndian.Uint32(hdr[8:12])
		seq := make([]record.Record, 0, count)
		for i := uint32(0); i < count; i++ {
			r, err := input.ReadFrame(f)
			if err != nil {
				return nil, fmt.Errorf("schedule: sequence file %s: %w", path, err)
			}
			seq = append(seq, r)
		}
		out[key] = seq
	}
}

// LoadSwitchSequences reads a context-switch sequence template file, keyed
// by transitionKind.
func LoadSwitchSequences(path string) (map[transitionKind][]record.Record, error) {
	raw, err := loadSequenceFile(path)
	if err != nil {
		return nil, err
	}
	out := make(map[transitionKind][]record.Record, len(raw))
	for k, v := range raw {
		out[transitionKind(k)] = v
	}
	return out, nil
}

// LoadSyscallSequences reads a syscall-trace sequence template file, keyed
// by syscall number.
func LoadSyscallSequences(path string) (map[uint64][]record.Record, error) {
	return loadSequenceFile(path)
}

// switchKind classifies the transition onto in on os as a thread switch (the
// previously-running input belongs to the same workload, i.e. the same
// process) or a process switch (any other transition, including from idle),
// mirroring scheduler_impl.cpp's check_for_input_switch heuristic.
func (s *Scheduler) switchKind(os *outputState, in InputOrdinal) transitionKind {
	if os.prevRunInput == NoInput {
		return transitionProcessSwitch
	}
	if s.inputs[os.prevRunInput].workload != s.inputs[in].workload {
		return transitionProcessSwitch
	}
	return transitionThreadSwitch
}

// injectSwitchSequence puts the context-switch sequence template for kind
// at the front of target's pending queue, ahead of any record already
// queued there, stamped with target's identity, if one was configured. A
// no-op otherwise, so a run with no kernel-switch-trace file behaves
// exactly as if the marker boundary were crossed invisibly.
func (s *Scheduler) injectSwitchSequence(target *inputState, kind transitionKind) {
	seq, ok := s.switchSeqs[kind]
	if !ok {
		return
	}
	queued := target.pending
	target.pending = nil
	for _, r := range seq {
		target.pushPending(r)
	}
	target.pending = append(target.pending, queued...)
}

// injectSyscallSequence queues the syscall-trace sequence template for
// syscallNum against in, to be delivered the next time in is scheduled
// (spec.md §4.2.7's "queued at the marker, delivered at the next injection
// point" rule, since a SYSCALL marker often arrives just before the input
// blocks or is switched out).
func (s *Scheduler) injectSyscallSequence(in *inputState, syscallNum uint64) {
	seq, ok := s.syscallSeqs[syscallNum]
	if !ok {
		return
	}
	in.pendingSyscall = append(in.pendingSyscall, seq...)
	in.hasPendingSyscall = true
}

// drainPendingSyscall moves any queued syscall-trace sequence onto in's
// delivery queue, stamping each record with in's identity.
func (in *inputState) drainPendingSyscall() {
	if !in.hasPendingSyscall {
		return
	}
	for _, r := range in.pendingSyscall {
		in.pushPending(r)
	}
	in.pendingSyscall = nil
	in.hasPendingSyscall = false
}
