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

package roiquery

import (
	"testing"

	"github.com/google/tracesched/record"
)

func TestRecordMatcherLiteralAttribute(t *testing.T) {
	log := &Log{}
	tok := log.Append(record.NewMarker(record.MarkerSyscall, 42))

	m, err := Generator(log)("record.marker_value=42")
	if err != nil {
		t.Fatalf("Generator returned unparseable matcher: %v", err)
	}
	rm, ok := m.(*RecordMatcher)
	if !ok {
		t.Fatalf("Generator returned %T, want *RecordMatcher", m)
	}
	_, env := rm.Match(tok)
	if env == nil {
		t.Fatalf("Match returned a nil environment")
	}
}

func TestRecordMatcherRejectsUnknownField(t *testing.T) {
	log := &Log{}
	if _, err := Generator(log)("record.nonsense=1"); err == nil {
		t.Fatalf("Generator accepted an unknown field, want error")
	}
}

func TestLogAtOutOfRange(t *testing.T) {
	log := &Log{}
	log.Append(record.NewInstruction(0x1000, 4, false))
	if _, err := log.At(5); err == nil {
		t.Fatalf("At(5) succeeded on a 1-record log, want error")
	}
}
