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
// Package analyzer drives a schedule.Scheduler: it owns one goroutine per
// output, pulls records from Scheduler.NextRecord, and dispatches them to a
// Tool's callback contract -- the Go realization of the original
// implementation's per-shard analysis tool interface (spec.md §4.3).
package analyzer

import "github.com/google/tracesched/record"

// ShardResult is whatever per-output state a Tool accumulates; the Driver
// never inspects it beyond passing it back to the Tool's own methods.
type ShardResult interface{}

// IntervalSnapshot is one tool-defined point-in-time summary a shard
// produces at a snapshot boundary, merged across shards by
// Tool.CombineIntervalSnapshots. Opaque to the Driver, same as ShardResult.
type IntervalSnapshot interface{}

// Tool is the callback contract an analysis implements against a
// schedule.Scheduler-driven record stream, mirroring the original
// implementation's parallel-shard analysis tool hooks (initialize_stream,
// parallel_shard_init_stream/memref/exit/error, generate_interval_snapshot,
// combine_interval_snapshots, print_results, ...), adapted to Go's
// error-return idiom instead of a boolean-plus-errno pair.
type Tool interface {
	// InitializeStream is called once, before any shard is processed, to
	// let the tool learn the output count of the run about to begin.
	InitializeStream(outputCount int) error

	// WorkerInit is called once per output's goroutine before it processes
	// any record, and returns the per-output state subsequent calls for
	// that output receive.
	WorkerInit(output int) (ShardResult, error)

	// ProcessRecord is called for every record.Record an output produces,
	// in delivery order. Returning a non-nil error stops the Driver from
	// passing this tool any further records of this output; the output's
	// worker keeps running for the other tools. Only once every tool on the
	// output has returned an error does the Driver deactivate the output
	// and return that error from Run. A tool error while another tool on
	// the same output is still live does not stop the worker and is not
	// returned from Run.
	ProcessRecord(state ShardResult, output int, r record.Record) error

	// WorkerError is called if ProcessRecord (or the Scheduler itself)
	// fails for output, so the tool can record diagnostic context tied to
	// its per-output state.
	WorkerError(state ShardResult, output int, err error)

	// WorkerExit is called once per output's goroutine as it finishes
	// (successfully or not), in case the tool needs to flush anything
	// buffered in ShardResult.
	WorkerExit(state ShardResult, output int)

	// GenerateIntervalSnapshot asks for a snapshot of state as of its most
	// recent ProcessRecord call, to be merged with other outputs'
	// snapshots at the same approximate point in time.
	GenerateIntervalSnapshot(state ShardResult, output int) IntervalSnapshot

	// CombineIntervalSnapshots merges the latest snapshot from every
	// output into one combined snapshot, in output-ordinal order.
	CombineIntervalSnapshots(snapshots []IntervalSnapshot) IntervalSnapshot

	// FinalizeIntervalSnapshots is called once, after every output has
	// finished, with every combined snapshot produced during the run, in
	// the order they were generated.
	FinalizeIntervalSnapshots(combined []IntervalSnapshot) error

	// PrintResults is called once, after every output's worker has exited
	// and FinalizeIntervalSnapshots has returned, to let the tool report
	// its final results.
	PrintResults() error
}
