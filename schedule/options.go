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
// options.go follows the functional-options pattern (an Option func(*Config)
// error, applied in sequence, validated once construction finishes),
// generalized from a handful of boolean flags to the full configuration
// surface spec.md §6 names.

package schedule

import (
	"io"

	log "github.com/golang/glog"

	"github.com/google/tracesched/record"
)

// Config is the fully-resolved configuration a Scheduler was built with.
// It is unexported-by-convention (callers build it only through Option
// values); Scheduler.LogConfig prints its scheduling knobs.
type Config struct {
	Mapping    MappingMode
	Dependency DependencyModel

	QuantumUnit           QuantumUnit
	QuantumDurationUs     uint64
	QuantumDurationInstrs uint64
	TimeUnitsPerUs        uint64

	BlockTimeMultiplier     float64
	BlockTimeMaxUs          uint64
	SyscallSwitchThreshold  uint64
	BlockingSwitchThreshold uint64

	MigrationThresholdUs uint64
	RebalancePeriod      uint64

	HonorInfiniteTimeouts bool
	HonorDirectSwitches   bool
	RandomizeNextInput    bool
	RandSeed              uint64

	ReadInputsInInit         bool
	ExitIfFractionInputsLeft float64

	KernelSwitchTracePath  string
	KernelSyscallTracePath string

	ScheduleRecordOstream io.Writer
	ScheduleReplayIstream io.Reader

	Flavor record.Flavor

	Verbose bool
}

// defaultConfig mirrors scheduler_impl.cpp's defaults: dynamic mapping,
// no enforced cross-input ordering, a generous instruction quantum, and
// the block-time scaling the six end-to-end scenarios exercise.
func defaultConfig() Config {
	return Config{
		Mapping:                 MapToAnyOutput,
		Dependency:              DependencyIgnore,
		QuantumUnit:             QuantumInstructions,
		QuantumDurationInstrs:   10_000_000,
		TimeUnitsPerUs:          1,
		BlockTimeMultiplier:     1.0,
		BlockTimeMaxUs:          250_000,
		SyscallSwitchThreshold:  500,
		BlockingSwitchThreshold: 100,
		RebalancePeriod:         5_000_000,
		HonorInfiniteTimeouts:   false,
		Flavor:                  record.Memref{},
	}
}

// Option configures a Scheduler at construction time. Following
// analysis/sched_collection_options.go's Option pattern, each Option can
// fail (a malformed combination is reported synchronously from
// NewScheduler, per spec.md §7's "invalid configuration fails init
// synchronously").
type Option func(c *Config) error

// Mapping selects the mapping mode.
func Mapping(m MappingMode) Option {
	return func(c *Config) error {
		c.Mapping = m
		return nil
	}
}

// Dependency selects the dependency model.
func Dependency(d DependencyModel) Option {
	return func(c *Config) error {
		c.Dependency = d
		return nil
	}
}

// QuantumInstructionsDuration sets an instruction-count quantum.
func QuantumInstructionsDuration(n uint64) Option {
	return func(c *Config) error {
		if n == 0 {
			return newError(KindInvalidParameter, "quantum duration in instructions must be positive")
		}
		c.QuantumUnit = QuantumInstructions
		c.QuantumDurationInstrs = n
		return nil
	}
}

// QuantumTimeDuration sets a time-based quantum, in microseconds.
func QuantumTimeDuration(us uint64) Option {
	return func(c *Config) error {
		if us == 0 {
			return newError(KindInvalidParameter, "quantum duration in microseconds must be positive")
		}
		c.QuantumUnit = QuantumTime
		c.QuantumDurationUs = us
		return nil
	}
}

// TimeUnitsPerUs sets how many of the scheduler's internal time units
// elapse per microsecond of wall-clock-like time.
func TimeUnitsPerUs(n uint64) Option {
	return func(c *Config) error {
		if n == 0 {
			return newError(KindInvalidParameter, "time_units_per_us must be positive")
		}
		c.TimeUnitsPerUs = n
		return nil
	}
}

// BlockTimeMultiplier sets the scale factor applied to a blocking
// duration before clamping to BlockTimeMaxUs.
func BlockTimeMultiplier(m float64) Option {
	return func(c *Config) error {
		if m < 0 {
			return newError(KindInvalidParameter, "block_time_multiplier must be non-negative")
		}
		c.BlockTimeMultiplier = m
		return nil
	}
}

// BlockTimeMaxUs caps the scaled blocking duration.
func BlockTimeMaxUs(us uint64) Option {
	return func(c *Config) error {
		c.BlockTimeMaxUs = us
		return nil
	}
}

// SyscallSwitchThreshold sets the measured syscall latency, in time units,
// above which an input is switched out.
func SyscallSwitchThreshold(v uint64) Option {
	return func(c *Config) error {
		c.SyscallSwitchThreshold = v
		return nil
	}
}

// BlockingSwitchThreshold sets the MarkerBlockingTime value above which an
// input is switched out.
func BlockingSwitchThreshold(v uint64) Option {
	return func(c *Config) error {
		c.BlockingSwitchThreshold = v
		return nil
	}
}

// MigrationThresholdUs sets the minimum time an input must have run before
// it is eligible to be migrated during rebalancing.
func MigrationThresholdUs(us uint64) Option {
	return func(c *Config) error {
		c.MigrationThresholdUs = us
		return nil
	}
}

// RebalancePeriod sets how many scheduler ticks elapse between rebalancing
// passes.
func RebalancePeriod(ticks uint64) Option {
	return func(c *Config) error {
		if ticks == 0 {
			return newError(KindInvalidParameter, "rebalance_period must be positive")
		}
		c.RebalancePeriod = ticks
		return nil
	}
}

// HonorInfiniteTimeouts, when true, allows MarkerSyscallUnschedule to
// unschedule an input with no timeout at all (only a direct switch or
// explicit wake can resume it).
func HonorInfiniteTimeouts(b bool) Option {
	return func(c *Config) error {
		c.HonorInfiniteTimeouts = b
		return nil
	}
}

// HonorDirectSwitches enables MarkerSyscallUnschedule/MarkerSyscallSchedule
// handling.
func HonorDirectSwitches(b bool) Option {
	return func(c *Config) error {
		c.HonorDirectSwitches = b
		return nil
	}
}

// RandomizeNextInput picks the next input uniformly at random (seeded by
// RandSeed) from everything in the output's ready queue, without regard to
// priority or last-run time, for fuzzing/stress configurations. Supplements spec.md with a
// behavior original_source supports (randomize_next_input) that the
// distillation names but does not specify the seeding for; this
// implementation seeds deterministically per Scheduler so tests stay
// reproducible.
func RandomizeNextInput(b bool, seed uint64) Option {
	return func(c *Config) error {
		c.RandomizeNextInput = b
		c.RandSeed = seed
		return nil
	}
}

// ReadInputsInInit causes NewScheduler to read each input's first record
// during initialization, to learn starting timestamps and file types
// before the run begins. Required (and forced on) when Dependency is
// DependencyTimestamps under MapToAnyOutput.
func ReadInputsInInit(b bool) Option {
	return func(c *Config) error {
		c.ReadInputsInInit = b
		return nil
	}
}

// ExitIfFractionInputsLeft stops the run once the live input count drops
// below this fraction of the starting count. Supplements spec.md with
// original_source's exit_if_fraction_inputs_left.
func ExitIfFractionInputsLeft(frac float64) Option {
	return func(c *Config) error {
		if frac < 0 || frac > 1 {
			return newError(KindInvalidParameter, "exit_if_fraction_inputs_left must be in [0,1], got %v", frac)
		}
		c.ExitIfFractionInputsLeft = frac
		return nil
	}
}

// KernelSwitchTracePath names a file of context-switch sequence templates,
// keyed by transition type.
func KernelSwitchTracePath(path string) Option {
	return func(c *Config) error {
		c.KernelSwitchTracePath = path
		return nil
	}
}

// KernelSyscallTracePath names a file of syscall-trace sequence templates,
// keyed by syscall number.
func KernelSyscallTracePath(path string) Option {
	return func(c *Config) error {
		c.KernelSyscallTracePath = path
		return nil
	}
}

// ScheduleRecordOstream causes the scheduler to emit a binary recorded
// schedule (spec.md §6) to w as the run progresses.
func ScheduleRecordOstream(w io.Writer) Option {
	return func(c *Config) error {
		c.ScheduleRecordOstream = w
		return nil
	}
}

// ScheduleReplayIstream supplies a previously recorded schedule to replay;
// implies Mapping(MapAsPreviously) unless the caller already chose
// MapToRecordedOutput.
func ScheduleReplayIstream(r io.Reader) Option {
	return func(c *Config) error {
		c.ScheduleReplayIstream = r
		if c.Mapping != MapToRecordedOutput {
			c.Mapping = MapAsPreviously
		}
		return nil
	}
}

// WithFlavor selects the record.Flavor (memref or trace-entry) this
// Scheduler's records conform to.
func WithFlavor(f record.Flavor) Option {
	return func(c *Config) error {
		if f == nil {
			return newError(KindInvalidParameter, "flavor must not be nil")
		}
		c.Flavor = f
		return nil
	}
}

// Verbose enables LogConfig's automatic call at construction time.
func Verbose(b bool) Option {
	return func(c *Config) error {
		c.Verbose = b
		return nil
	}
}

// validate checks for conflicting option combinations, per spec.md §7's
// "invalid configuration fails init synchronously".
func (c *Config) validate() error {
	if c.Mapping == MapAsPreviously && c.ScheduleReplayIstream == nil {
		return newError(KindInvalidParameter, "MAP_AS_PREVIOUSLY requires ScheduleReplayIstream")
	}
	if c.Mapping == MapToRecordedOutput && c.ScheduleReplayIstream == nil {
		return newError(KindInvalidParameter, "MAP_TO_RECORDED_OUTPUT requires ScheduleReplayIstream")
	}
	if c.Dependency == DependencyTimestamps && c.Mapping == MapToAnyOutput {
		// Dynamic mapping under timestamp dependency requires initial
		// readahead so every input has a known starting timestamp (spec.md
		// §4.2.3); rather than reject the combination, force it on, the way
		// scheduler_impl.cpp silently requires read_inputs_in_init in this
		// case.
		c.ReadInputsInInit = true
	}
	if c.QuantumUnit == QuantumInstructions && c.QuantumDurationInstrs == 0 {
		return newError(KindInvalidParameter, "QUANTUM_INSTRUCTIONS requires a positive instruction quantum")
	}
	if c.QuantumUnit == QuantumTime && c.QuantumDurationUs == 0 {
		return newError(KindInvalidParameter, "QUANTUM_TIME requires a positive time quantum")
	}
	if c.Flavor == nil {
		c.Flavor = record.Memref{}
	}
	return nil
}

// logConfig prints every resolved option at V(1), matching
// scheduler_impl.cpp's print_configuration() diagnostic dump.
func (c *Config) logConfig() {
	log.V(1).Infof(
		"schedule: mapping=%s dependency=%s quantum=%s(instrs=%d us=%d) time_units_per_us=%d "+
			"block_time_multiplier=%v block_time_max_us=%d syscall_switch_threshold=%d "+
			"blocking_switch_threshold=%d migration_threshold_us=%d rebalance_period=%d "+
			"honor_infinite_timeouts=%v honor_direct_switches=%v randomize_next_input=%v "+
			"read_inputs_in_init=%v exit_if_fraction_inputs_left=%v flavor=%s",
		c.Mapping, c.Dependency, c.QuantumUnit, c.QuantumDurationInstrs, c.QuantumDurationUs,
		c.TimeUnitsPerUs, c.BlockTimeMultiplier, c.BlockTimeMaxUs, c.SyscallSwitchThreshold,
		c.BlockingSwitchThreshold, c.MigrationThresholdUs, c.RebalancePeriod,
		c.HonorInfiniteTimeouts, c.HonorDirectSwitches, c.RandomizeNextInput,
		c.ReadInputsInInit, c.ExitIfFractionInputsLeft, c.Flavor.Name())
}
