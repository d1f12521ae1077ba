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
// queue.go implements one output's ready queue: higher priority first, then
// smaller last_run_time, then smaller input index (spec.md §4.2.10).

package schedule

import "container/heap"

type readyItem struct {
	input       InputOrdinal
	priority    int32
	lastRunTime uint64
}

type readyItems []readyItem

func (q readyItems) Len() int { return len(q) }

func (q readyItems) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.priority != b.priority {
		return a.priority > b.priority // higher priority first
	}
	if a.lastRunTime != b.lastRunTime {
		return a.lastRunTime < b.lastRunTime // smaller last_run_time first
	}
	return a.input < b.input // smaller input index first
}

func (q readyItems) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyItems) Push(x interface{}) {
	*q = append(*q, x.(readyItem))
}

func (q *readyItems) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// readyQueue is a priority queue of InputOrdinals eligible to run on one
// output, ordered per spec.md §4.2.10's tie-break rule.
type readyQueue struct {
	items readyItems
	// present tracks membership so the same input is never queued twice.
	present map[InputOrdinal]bool
}

func newReadyQueue() *readyQueue {
	return &readyQueue{present: make(map[InputOrdinal]bool)}
}

// Push enqueues input ord with the given priority and last-run time. A
// no-op if ord is already queued.
func (rq *readyQueue) Push(ord InputOrdinal, priority int32, lastRunTime uint64) {
	if rq.present[ord] {
		return
	}
	rq.present[ord] = true
	heap.Push(&rq.items, readyItem{input: ord, priority: priority, lastRunTime: lastRunTime})
}

// Pop removes and returns the highest-priority eligible input, or (NoInput,
// false) if the queue is empty.
func (rq *readyQueue) Pop() (InputOrdinal, bool) {
	if rq.items.Len() == 0 {
		return NoInput, false
	}
	item := heap.Pop(&rq.items).(readyItem)
	delete(rq.present, item.input)
	return item.input, true
}

// Remove drops ord from the queue if present, for migration during
// rebalancing. O(n); rebalancing is infrequent relative to NextRecord.
func (rq *readyQueue) Remove(ord InputOrdinal) bool {
	if !rq.present[ord] {
		return false
	}
	for i, it := range rq.items {
		if it.input == ord {
			heap.Remove(&rq.items, i)
			delete(rq.present, ord)
			return true
		}
	}
	return false
}

// Len reports the number of inputs currently queued.
func (rq *readyQueue) Len() int { return rq.items.Len() }

// Contains reports whether ord is currently queued.
func (rq *readyQueue) Contains(ord InputOrdinal) bool { return rq.present[ord] }

// All returns the currently-queued input ordinals in no particular order,
// for rebalancing scans.
func (rq *readyQueue) All() []InputOrdinal {
	out := make([]InputOrdinal, 0, len(rq.items))
	for _, it := range rq.items {
		out = append(out, it.input)
	}
	return out
}
