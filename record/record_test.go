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

package record

import (
	"testing"
)

func TestRecordPredicates(t *testing.T) {
	tests := []struct {
		description string
		r           Record
		wantKind    Kind
		wantInstr   bool
		wantMem     bool
		wantMarker  bool
		wantExit    bool
	}{
		{
			description: "instruction",
			r:           NewInstruction(0x1000, 4, false),
			wantKind:    KindInstruction,
			wantInstr:   true,
		},
		{
			description: "memory access",
			r:           NewMemoryAccess(0x2000, 8, true),
			wantKind:    KindMemoryAccess,
			wantMem:     true,
		},
		{
			description: "marker",
			r:           NewMarker(MarkerTimestamp, 42),
			wantKind:    KindMarker,
			wantMarker:  true,
		},
		{
			description: "thread exit",
			r:           NewThreadExit(7, 9),
			wantKind:    KindThreadBoundary,
			wantExit:    true,
		},
		{
			description: "invalid",
			r:           Invalid,
			wantKind:    KindInvalid,
		},
	}
	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			if tc.r.Kind != tc.wantKind {
				t.Errorf("%s: Kind = %v, want %v", tc.description, tc.r.Kind, tc.wantKind)
			}
			if got := tc.r.IsInstruction(); got != tc.wantInstr {
				t.Errorf("%s: IsInstruction() = %v, want %v", tc.description, got, tc.wantInstr)
			}
			if got := tc.r.IsMemoryAccess(); got != tc.wantMem {
				t.Errorf("%s: IsMemoryAccess() = %v, want %v", tc.description, got, tc.wantMem)
			}
			if got := tc.r.IsMarker(); got != tc.wantMarker {
				t.Errorf("%s: IsMarker() = %v, want %v", tc.description, got, tc.wantMarker)
			}
			if got := tc.r.IsThreadExit(); got != tc.wantExit {
				t.Errorf("%s: IsThreadExit() = %v, want %v", tc.description, got, tc.wantExit)
			}
		})
	}
}

func TestFallThroughPC(t *testing.T) {
	r := NewInstruction(0x400000, 5, false)
	if got, want := r.FallThroughPC(), uint64(0x400005); got != want {
		t.Errorf("FallThroughPC() = %#x, want %#x", got, want)
	}
}

func TestFlavorIdentity(t *testing.T) {
	instr := NewInstruction(0x1000, 4, false)
	instr.TID = 5

	boundary := NewThreadBoundary(BoundaryThread, 5, 0)

	var m Memref
	if !m.HasTID(instr) {
		t.Errorf("Memref.HasTID(instruction) = false, want true")
	}
	var te TraceEntry
	if te.HasTID(instr) {
		t.Errorf("TraceEntry.HasTID(instruction) = true, want false")
	}
	if !te.HasTID(boundary) {
		t.Errorf("TraceEntry.HasTID(thread-boundary) = false, want true")
	}
}
