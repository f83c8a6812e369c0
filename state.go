// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package automata

import (
	"fmt"
	"sync"
)

// Kernel identifies one of the two compute kernel entry points.
type Kernel int

const (
	// KernelInit seeds the cell grid. Entry point "init" in the kernel source.
	KernelInit Kernel = iota

	// KernelUpdate advances the simulation one generation.
	// Entry point "update" in the kernel source.
	KernelUpdate

	// kernelCount is the total number of kernels.
	kernelCount
)

// String returns the kernel's entry point name.
func (k Kernel) String() string {
	switch k {
	case KernelInit:
		return "init"
	case KernelUpdate:
		return "update"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// KernelStatus reports the compilation state of a kernel pipeline.
type KernelStatus int

const (
	// StatusPending means compilation has been queued but not finished.
	StatusPending KernelStatus = iota

	// StatusReady means the pipeline compiled and can be dispatched.
	StatusReady

	// StatusFailed means compilation failed. Failure is terminal for the
	// kernel; recompilation requires an explicit reload.
	StatusFailed
)

// String returns the string representation of KernelStatus.
func (s KernelStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusReady:
		return "Ready"
	case StatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// StatusSource answers per-frame pipeline status polls. It is implemented
// by *PipelineLoader; the state machine never blocks on it.
type StatusSource interface {
	// Status returns the compilation status of the given kernel, and the
	// compile error when the status is StatusFailed.
	Status(k Kernel) (KernelStatus, error)
}

// DispatchState is the orchestration loop's phase. Transitions are
// monotonic: a state never regresses, and Loading never jumps straight
// to StateSteady.
type DispatchState int

const (
	// StateLoading is the initial state: no kernel is ready yet and every
	// frame is a no-op.
	StateLoading DispatchState = iota

	// StateInitializing dispatches the init kernel once per frame until
	// the update kernel is also ready.
	StateInitializing

	// StateSteady is terminal: the update kernel is dispatched every frame.
	StateSteady
)

// String returns the string representation of DispatchState.
func (s DispatchState) String() string {
	switch s {
	case StateLoading:
		return "Loading"
	case StateInitializing:
		return "Initializing"
	case StateSteady:
		return "SteadyState"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// StateMachine tracks the dispatch phase across frames and selects the
// kernel to run each frame.
//
// A kernel compile failure latches a sticky error: the machine stops
// planning dispatches, logs one diagnostic, and reports the error from
// Err. It deliberately does not add a fourth state, so the three-state
// progression stays monotonic.
//
// StateMachine is safe for concurrent use, though the frame driver calls
// it from a single goroutine.
type StateMachine struct {
	mu sync.Mutex

	state DispatchState

	// failed is the sticky compile error, nil while healthy.
	failed error

	// reported guards the one-shot failure diagnostic.
	reported bool
}

// NewStateMachine returns a state machine in StateLoading.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateLoading}
}

// State returns the current dispatch state.
func (m *StateMachine) State() DispatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the sticky compile error, or nil while both kernels are
// healthy.
func (m *StateMachine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed
}

// Advance polls the loader and applies at most one state transition:
//
//	Loading      -> Initializing  when the init kernel is Ready
//	Initializing -> SteadyState   when the update kernel is Ready
//	SteadyState  -> (terminal)
//
// A StatusFailed report from the kernel the machine is waiting on latches
// the sticky error and permanently stalls the affected pipeline. Advance
// never regresses the state. SteadyState keeps polling the update kernel
// so a failed recompile after a reload is latched too; a pending
// recompile simply holds the state.
func (m *StateMachine) Advance(src StatusSource) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failed != nil {
		return
	}

	switch m.state {
	case StateLoading:
		m.poll(src, KernelInit, StateInitializing)
	case StateInitializing:
		m.poll(src, KernelUpdate, StateSteady)
	case StateSteady:
		m.poll(src, KernelUpdate, StateSteady)
	}
}

// poll checks one kernel and either transitions to next or latches the
// kernel's failure. The caller must hold m.mu.
func (m *StateMachine) poll(src StatusSource, k Kernel, next DispatchState) {
	status, err := src.Status(k)
	switch status {
	case StatusReady:
		m.state = next
	case StatusFailed:
		if err == nil {
			err = fmt.Errorf("automata: %s kernel failed", k)
		}
		m.failed = err
		if !m.reported {
			m.reported = true
			slogger().Error("automata: kernel compilation failed, dispatch stalled",
				"kernel", k.String(),
				"state", m.state.String(),
				"error", err)
		}
	case StatusPending:
		// Stay put; this frame is a no-op for the pending pipeline.
	}
}

// Plan returns the kernel to dispatch this frame. ok is false during
// StateLoading and after a latched failure, meaning the frame performs
// no dispatch.
func (m *StateMachine) Plan() (k Kernel, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failed != nil {
		return 0, false
	}

	switch m.state {
	case StateInitializing:
		// The init kernel runs every frame spent in this state. Seeding is
		// a pure function of cell coordinate and the salted hash, so
		// repeating it is harmless, and the state usually lasts one frame.
		return KernelInit, true
	case StateSteady:
		return KernelUpdate, true
	default:
		return 0, false
	}
}
