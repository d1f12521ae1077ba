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

package analyzer

import (
	"context"
	"time"

	log "github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/google/tracesched/record"
	"github.com/google/tracesched/schedule"
)

// Driver runs one worker goroutine per output of a schedule.Scheduler,
// feeding each record it produces to every registered Tool in registration
// order, the way api_service.go's GetPIDIntervals fans a request out across
// shards with an errgroup.Group and joins on the first error. A tool that
// returns an error from ProcessRecord stops receiving records for the rest
// of the run, but other tools keep going, per spec.md §7's "any tool error
// aborts its worker" (here, its slot in the dispatch list, not the whole
// worker) -- unless every tool has exited, in which case the worker itself
// relinquishes its input and returns.
type Driver struct {
	sched *schedule.Scheduler
	tools []Tool

	// IdlePollInterval is how long a worker backs off after StatusIdle or
	// StatusWait before calling NextRecord again. Defaults to 100
	// microseconds if zero (spec.md §4.3's "sleep 1 ms in parallel mode";
	// shortened here to keep single-process tests fast).
	IdlePollInterval time.Duration

	// SnapshotEvery, if positive, makes the Driver call
	// GenerateIntervalSnapshot/CombineIntervalSnapshots once every
	// SnapshotEvery records an output delivers (spec.md §4.3's interval
	// snapshot generation). Zero disables interval snapshotting.
	SnapshotEvery uint64
}

// NewDriver returns a Driver that will run every tool's callbacks against
// sched, dispatching to them in the order given.
func NewDriver(sched *schedule.Scheduler, tools ...Tool) *Driver {
	return &Driver{sched: sched, tools: tools, IdlePollInterval: 100 * time.Microsecond}
}

// workerState is the per-(output, tool) state a Driver tracks while
// running, paired so a tool that errors out can be dropped from dispatch
// without disturbing its siblings.
type workerState struct {
	state ShardResult
	done  bool
}

// Run drives every output of the Scheduler to completion in parallel,
// calling every Tool's callbacks as records are produced, and returns the
// first error any worker reported: a Scheduler or lifecycle-callback
// error, or a ProcessRecord error on an output where every tool has
// failed. A ProcessRecord error from one tool while another tool on the
// same output is still live is not returned. Run blocks until every
// output has reached StatusEOF, ctx is cancelled, or every tool has
// exited on every output.
func (d *Driver) Run(ctx context.Context) error {
	outputCount := d.sched.OutputCount()
	for _, t := range d.tools {
		if err := t.InitializeStream(outputCount); err != nil {
			return err
		}
	}

	// combined[tool][output] holds that (tool, output) pair's interval
	// snapshot sequence, ready for mergeSnapshotColumns per tool.
	combined := make([][][]IntervalSnapshot, len(d.tools))
	for ti := range combined {
		combined[ti] = make([][]IntervalSnapshot, outputCount)
	}

	g, ctx := errgroup.WithContext(ctx)
	for o := 0; o < outputCount; o++ {
		output := schedule.OutputOrdinal(o)
		g.Go(func() error {
			perTool, err := d.runWorker(ctx, output)
			for ti, snaps := range perTool {
				combined[ti][output] = snaps
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for ti, tool := range d.tools {
		merged := mergeSnapshotColumns(combined[ti])
		finalSnaps := make([]IntervalSnapshot, len(merged))
		for i, row := range merged {
			finalSnaps[i] = tool.CombineIntervalSnapshots(row)
		}
		if err := tool.FinalizeIntervalSnapshots(finalSnaps); err != nil {
			return err
		}
	}
	for _, tool := range d.tools {
		if err := tool.PrintResults(); err != nil {
			return err
		}
	}
	return nil
}

// runWorker is the per-output goroutine body: it pulls records from the
// Scheduler until EOF, every tool has exited, or ctx is cancelled,
// dispatching each record to every still-live tool and periodically
// generating interval snapshots (spec.md §4.3).
func (d *Driver) runWorker(ctx context.Context, output schedule.OutputOrdinal) ([][]IntervalSnapshot, error) {
	workers := make([]workerState, len(d.tools))
	for i, t := range d.tools {
		state, err := t.WorkerInit(int(output))
		if err != nil {
			return nil, err
		}
		workers[i] = workerState{state: state}
	}
	defer func() {
		for i, t := range d.tools {
			t.WorkerExit(workers[i].state, int(output))
		}
	}()

	snaps := make([][]IntervalSnapshot, len(d.tools))
	var delivered uint64

	for {
		if d.allDone(workers) {
			return snaps, nil
		}
		select {
		case <-ctx.Done():
			return snaps, ctx.Err()
		default:
		}

		r, status, err := d.sched.NextRecord(output, 0)
		if err != nil {
			d.failAll(workers, output, err)
			return snaps, err
		}

		switch status {
		case schedule.StatusEOF:
			log.V(2).Infof("analyzer: output %d reached EOF after %d records", output, delivered)
			return snaps, nil
		case schedule.StatusIdle:
			r = record.NewMarker(record.MarkerCoreIdle, 0)
		case schedule.StatusWait:
			r = record.NewMarker(record.MarkerCoreWait, 0)
		}

		var firstErr error
		for i, t := range d.tools {
			if workers[i].done {
				continue
			}
			if err := t.ProcessRecord(workers[i].state, int(output), r); err != nil {
				t.WorkerError(workers[i].state, int(output), err)
				workers[i].done = true
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		if firstErr != nil && d.allDone(workers) {
			d.sched.SetActive(output, false)
			return snaps, firstErr
		}

		if status == schedule.StatusIdle || status == schedule.StatusWait {
			select {
			case <-ctx.Done():
				return snaps, ctx.Err()
			case <-time.After(d.pollInterval()):
			}
			continue
		}

		delivered++
		if d.SnapshotEvery > 0 && delivered%d.SnapshotEvery == 0 {
			for i, t := range d.tools {
				if !workers[i].done {
					snaps[i] = append(snaps[i], t.GenerateIntervalSnapshot(workers[i].state, int(output)))
				}
			}
		}
	}
}

func (d *Driver) allDone(workers []workerState) bool {
	for _, w := range workers {
		if !w.done {
			return false
		}
	}
	return len(workers) > 0
}

func (d *Driver) failAll(workers []workerState, output schedule.OutputOrdinal, err error) {
	for i, t := range d.tools {
		if !workers[i].done {
			t.WorkerError(workers[i].state, int(output), err)
			workers[i].done = true
		}
	}
}

func (d *Driver) pollInterval() time.Duration {
	if d.IdlePollInterval <= 0 {
		return 100 * time.Microsecond
	}
	return d.IdlePollInterval
}
