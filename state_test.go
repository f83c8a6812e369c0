// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package automata

import (
	"errors"
	"testing"
)

// fakeStatusSource scripts per-kernel compilation status for the state
// machine tests.
type fakeStatusSource struct {
	status [kernelCount]KernelStatus
	err    [kernelCount]error
}

func (f *fakeStatusSource) Status(k Kernel) (KernelStatus, error) {
	return f.status[k], f.err[k]
}

func TestStateMachineStartsLoading(t *testing.T) {
	m := NewStateMachine()
	if got := m.State(); got != StateLoading {
		t.Fatalf("initial state = %v, want %v", got, StateLoading)
	}
	if _, ok := m.Plan(); ok {
		t.Error("Plan() in Loading should not dispatch")
	}
}

func TestStateMachineProgression(t *testing.T) {
	src := &fakeStatusSource{}
	m := NewStateMachine()

	// Nothing compiled yet: stays in Loading, no dispatch.
	m.Advance(src)
	if got := m.State(); got != StateLoading {
		t.Fatalf("state = %v, want %v", got, StateLoading)
	}

	// Init ready: Loading -> Initializing, init kernel dispatches.
	src.status[KernelInit] = StatusReady
	m.Advance(src)
	if got := m.State(); got != StateInitializing {
		t.Fatalf("state = %v, want %v", got, StateInitializing)
	}
	k, ok := m.Plan()
	if !ok || k != KernelInit {
		t.Fatalf("Plan() = (%v, %v), want (%v, true)", k, ok, KernelInit)
	}

	// Update still pending: holds Initializing, init re-dispatches.
	m.Advance(src)
	if got := m.State(); got != StateInitializing {
		t.Fatalf("state = %v, want %v", got, StateInitializing)
	}

	// Update ready: Initializing -> SteadyState, update dispatches.
	src.status[KernelUpdate] = StatusReady
	m.Advance(src)
	if got := m.State(); got != StateSteady {
		t.Fatalf("state = %v, want %v", got, StateSteady)
	}
	k, ok = m.Plan()
	if !ok || k != KernelUpdate {
		t.Fatalf("Plan() = (%v, %v), want (%v, true)", k, ok, KernelUpdate)
	}
}

func TestStateMachineOneTransitionPerFrame(t *testing.T) {
	// Both kernels become ready before the first Advance; the machine
	// must still pass through Initializing rather than jumping straight
	// to steady state.
	src := &fakeStatusSource{}
	src.status[KernelInit] = StatusReady
	src.status[KernelUpdate] = StatusReady

	m := NewStateMachine()
	m.Advance(src)
	if got := m.State(); got != StateInitializing {
		t.Fatalf("first Advance: state = %v, want %v", got, StateInitializing)
	}
	m.Advance(src)
	if got := m.State(); got != StateSteady {
		t.Fatalf("second Advance: state = %v, want %v", got, StateSteady)
	}
}

func TestStateMachineNeverRegresses(t *testing.T) {
	src := &fakeStatusSource{}
	src.status[KernelInit] = StatusReady
	src.status[KernelUpdate] = StatusReady

	m := NewStateMachine()
	m.Advance(src)
	m.Advance(src)
	if got := m.State(); got != StateSteady {
		t.Fatalf("state = %v, want %v", got, StateSteady)
	}

	// A later reload drops kernels back to pending; steady state holds.
	src.status[KernelInit] = StatusPending
	src.status[KernelUpdate] = StatusPending
	m.Advance(src)
	if got := m.State(); got != StateSteady {
		t.Errorf("state after status regression = %v, want %v", got, StateSteady)
	}
}

func TestStateMachineFailureIsSticky(t *testing.T) {
	compileErr := errors.New("wgsl parse error")
	src := &fakeStatusSource{}
	src.status[KernelInit] = StatusFailed
	src.err[KernelInit] = compileErr

	m := NewStateMachine()
	m.Advance(src)

	if got := m.State(); got != StateLoading {
		t.Errorf("state = %v, want %v", got, StateLoading)
	}
	if err := m.Err(); !errors.Is(err, compileErr) {
		t.Fatalf("Err() = %v, want wrapping %v", err, compileErr)
	}
	if _, ok := m.Plan(); ok {
		t.Error("Plan() after failure should not dispatch")
	}

	// The failure stays latched even if the source later reports ready.
	src.status[KernelInit] = StatusReady
	src.err[KernelInit] = nil
	m.Advance(src)
	if err := m.Err(); !errors.Is(err, compileErr) {
		t.Errorf("Err() after recovery = %v, want %v", err, compileErr)
	}
	if got := m.State(); got != StateLoading {
		t.Errorf("state after recovery = %v, want %v", got, StateLoading)
	}
}

func TestStateMachineUpdateFailureDuringInit(t *testing.T) {
	compileErr := errors.New("entry point missing")
	src := &fakeStatusSource{}
	src.status[KernelInit] = StatusReady

	m := NewStateMachine()
	m.Advance(src)
	if got := m.State(); got != StateInitializing {
		t.Fatalf("state = %v, want %v", got, StateInitializing)
	}

	src.status[KernelUpdate] = StatusFailed
	src.err[KernelUpdate] = compileErr
	m.Advance(src)

	if err := m.Err(); !errors.Is(err, compileErr) {
		t.Fatalf("Err() = %v, want %v", err, compileErr)
	}
	if _, ok := m.Plan(); ok {
		t.Error("Plan() after update failure should not dispatch")
	}
}

func TestStateMachineLatchesFailureInSteady(t *testing.T) {
	// A reload can fail after the machine already reached steady state.
	// The failure must still latch so Err reports it and dispatch stops.
	compileErr := errors.New("unexpected token")
	src := &fakeStatusSource{}
	src.status[KernelInit] = StatusReady
	src.status[KernelUpdate] = StatusReady

	m := NewStateMachine()
	m.Advance(src)
	m.Advance(src)
	if got := m.State(); got != StateSteady {
		t.Fatalf("state = %v, want %v", got, StateSteady)
	}

	src.status[KernelUpdate] = StatusFailed
	src.err[KernelUpdate] = compileErr
	m.Advance(src)

	if err := m.Err(); !errors.Is(err, compileErr) {
		t.Fatalf("Err() = %v, want wrapping %v", err, compileErr)
	}
	if got := m.State(); got != StateSteady {
		t.Errorf("state after failure = %v, want %v", got, StateSteady)
	}
	if _, ok := m.Plan(); ok {
		t.Error("Plan() after latched failure should not dispatch")
	}
}

func TestFrameScenario(t *testing.T) {
	// Frame-by-frame walk of a small 16x8 grid with workgroup size 8,
	// mirroring the advance-then-plan order the frame driver uses.
	cfg := Config{Width: 16, Height: 8, WorkgroupSize: 8}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if x, y, z := cfg.WorkgroupCount(); x != 2 || y != 1 || z != 1 {
		t.Fatalf("WorkgroupCount() = (%d,%d,%d), want (2,1,1)", x, y, z)
	}

	src := &fakeStatusSource{}
	m := NewStateMachine()

	type frame struct {
		init, update KernelStatus
		wantState    DispatchState
		wantKernel   Kernel
		wantDispatch bool
	}
	frames := []frame{
		{StatusPending, StatusPending, StateLoading, 0, false},
		{StatusReady, StatusPending, StateInitializing, KernelInit, true},
		{StatusReady, StatusPending, StateInitializing, KernelInit, true},
		{StatusReady, StatusReady, StateSteady, KernelUpdate, true},
		{StatusReady, StatusReady, StateSteady, KernelUpdate, true},
		{StatusReady, StatusReady, StateSteady, KernelUpdate, true},
	}
	for i, f := range frames {
		src.status[KernelInit] = f.init
		src.status[KernelUpdate] = f.update

		m.Advance(src)
		if got := m.State(); got != f.wantState {
			t.Fatalf("frame %d: state = %v, want %v", i+1, got, f.wantState)
		}
		k, ok := m.Plan()
		if ok != f.wantDispatch {
			t.Fatalf("frame %d: dispatch = %v, want %v", i+1, ok, f.wantDispatch)
		}
		if ok && k != f.wantKernel {
			t.Fatalf("frame %d: kernel = %v, want %v", i+1, k, f.wantKernel)
		}
	}
}

func TestDispatchStateString(t *testing.T) {
	tests := []struct {
		state DispatchState
		want  string
	}{
		{StateLoading, "Loading"},
		{StateInitializing, "Initializing"},
		{StateSteady, "SteadyState"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestKernelString(t *testing.T) {
	if got := KernelInit.String(); got != "init" {
		t.Errorf("KernelInit.String() = %q, want %q", got, "init")
	}
	if got := KernelUpdate.String(); got != "update" {
		t.Errorf("KernelUpdate.String() = %q, want %q", got, "update")
	}
}
