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

// MarkerType enumerates the out-of-band signals a KindMarker Record may
// carry. The set is the one spec'd in the external interface: every marker
// the scheduler must recognize and act on.
type MarkerType uint8

const (
	// MarkerTimestamp carries a trace timestamp in MarkerValue.
	MarkerTimestamp MarkerType = iota
	// MarkerCPUID carries the originating CPU.
	MarkerCPUID
	// MarkerFileType carries the shard's file type/version bits.
	MarkerFileType
	// MarkerCacheLineSize carries the recorded cache line size.
	MarkerCacheLineSize
	// MarkerPageSize carries the recorded page size.
	MarkerPageSize
	// MarkerChunkInstrCount carries the shard's chunk instruction count.
	MarkerChunkInstrCount
	// MarkerVersion carries the trace format version.
	MarkerVersion
	// MarkerSyscall carries a syscall number.
	MarkerSyscall
	// MarkerFuncID carries a recorded function's id, for function-argument
	// and retval markers.
	MarkerFuncID
	// MarkerFuncArg carries one recorded function argument.
	MarkerFuncArg
	// MarkerFuncRetval carries a recorded function's return value.
	MarkerFuncRetval
	// MarkerKernelEvent carries a kernel-event injection point id.
	MarkerKernelEvent
	// MarkerKernelXfer carries a kernel-transfer injection point id.
	MarkerKernelXfer
	// MarkerSyscallTraceStart opens an injected syscall-trace sequence,
	// MarkerValue is the syscall number.
	MarkerSyscallTraceStart
	// MarkerSyscallTraceEnd closes an injected syscall-trace sequence.
	MarkerSyscallTraceEnd
	// MarkerContextSwitchStart opens an injected context-switch sequence.
	MarkerContextSwitchStart
	// MarkerContextSwitchEnd closes an injected context-switch sequence.
	MarkerContextSwitchEnd
	// MarkerSyscallUnschedule requests that the emitting input be
	// unscheduled; MarkerValue is an optional timeout in microseconds (0
	// for none).
	MarkerSyscallUnschedule
	// MarkerSyscallSchedule requests a direct switch to the input whose tid
	// is MarkerValue.
	MarkerSyscallSchedule
	// MarkerWindowID identifies a region-of-interest window; MarkerValue is
	// the 1-based window index.
	MarkerWindowID
	// MarkerCoreIdle is synthesized by the analyzer driver when an output
	// goes idle.
	MarkerCoreIdle
	// MarkerCoreWait is synthesized by the analyzer driver when an output
	// must wait on the dependency model.
	MarkerCoreWait
	// MarkerBranchTarget carries an indirect branch's resolved target, or,
	// for the last instruction of an injected sequence, its fall-through PC.
	MarkerBranchTarget
	// MarkerBlockingTime annotates a preceding syscall with a measured or
	// declared blocking duration, compared against
	// Config.BlockingSwitchThreshold.
	MarkerBlockingTime
)

var markerNames = map[MarkerType]string{
	MarkerTimestamp:          "TIMESTAMP",
	MarkerCPUID:              "CPU_ID",
	MarkerFileType:           "FILETYPE",
	MarkerCacheLineSize:      "CACHE_LINE_SIZE",
	MarkerPageSize:           "PAGE_SIZE",
	MarkerChunkInstrCount:    "CHUNK_INSTR_COUNT",
	MarkerVersion:            "VERSION",
	MarkerSyscall:            "SYSCALL",
	MarkerFuncID:             "FUNC_ID",
	MarkerFuncArg:            "FUNC_ARG",
	MarkerFuncRetval:         "FUNC_RETVAL",
	MarkerKernelEvent:        "KERNEL_EVENT",
	MarkerKernelXfer:         "KERNEL_XFER",
	MarkerSyscallTraceStart:  "SYSCALL_TRACE_START",
	MarkerSyscallTraceEnd:    "SYSCALL_TRACE_END",
	MarkerContextSwitchStart: "CONTEXT_SWITCH_START",
	MarkerContextSwitchEnd:   "CONTEXT_SWITCH_END",
	MarkerSyscallUnschedule:  "SYSCALL_UNSCHEDULE",
	MarkerSyscallSchedule:    "SYSCALL_SCHEDULE",
	MarkerWindowID:           "WINDOW_ID",
	MarkerCoreIdle:           "CORE_IDLE",
	MarkerCoreWait:           "CORE_WAIT",
	MarkerBranchTarget:       "BRANCH_TARGET",
	MarkerBlockingTime:       "BLOCKING_TIME",
}

func (mt MarkerType) String() string {
	if n, ok := markerNames[mt]; ok {
		return n
	}
	return "UNKNOWN_MARKER"
}
