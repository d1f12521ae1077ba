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

// Flavor captures the handful of decisions that differ between the two
// on-disk record encodings the scheduler can be built against: a
// self-describing "memref" record (tid/pid stamped on every record) and a
// raw "trace-entry" record (tid/pid carried only on thread-boundary
// records, with later records inheriting the most recently seen pair). Its
// methods mirror scheduler_impl_tmpl_t's record_type_* predicates in the
// original implementation; callers select a Flavor at scheduler
// construction rather than at compile time, since Go has no cheap
// equivalent of a template parameter here and the two behave identically
// above the record package.
type Flavor interface {
	// Name identifies the flavor for logging.
	Name() string
	// HasTID reports whether r carries its own tid inline, without needing
	// an input's last-seen-identity side channel.
	HasTID(r Record) bool
	// HasPID reports whether r carries its own pid inline.
	HasPID(r Record) bool
	// UnreadSupported reports whether UnreadLastRecord is implemented for
	// this flavor.
	UnreadSupported() bool
}

// Memref is the self-describing flavor: every record already carries the
// tid and pid of the thread that produced it.
type Memref struct{}

// Name implements Flavor.
func (Memref) Name() string { return "memref" }

// HasTID implements Flavor.
func (Memref) HasTID(r Record) bool { return !r.IsInvalid() }

// HasPID implements Flavor.
func (Memref) HasPID(r Record) bool { return !r.IsInvalid() }

// UnreadSupported implements Flavor.
func (Memref) UnreadSupported() bool { return true }

// TraceEntry is the raw on-disk flavor: only thread-boundary records carry
// identity; instruction, memory, and marker records inherit the most
// recently seen tid/pid, which the input layer is responsible for stamping
// onto Record.TID/Record.PID before a record is ever handed to the
// scheduler.
type TraceEntry struct{}

// Name implements Flavor.
func (TraceEntry) Name() string { return "trace-entry" }

// HasTID implements Flavor.
func (TraceEntry) HasTID(r Record) bool {
	return r.IsThreadBoundary() && r.Boundary == BoundaryThread
}

// HasPID implements Flavor.
func (TraceEntry) HasPID(r Record) bool {
	return r.IsThreadBoundary() && r.Boundary == BoundaryPid
}

// UnreadSupported implements Flavor.
func (TraceEntry) UnreadSupported() bool { return false }
