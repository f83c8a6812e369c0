// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package automata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// frameTimeout is the maximum time to wait for one frame's GPU work.
const frameTimeout = 5 * time.Second

// ErrSimulatorClosed is returned when stepping a closed simulator.
var ErrSimulatorClosed = errors.New("automata: simulator is closed")

// FrameStats describes the most recent frame.
type FrameStats struct {
	// Frame is the 1-based frame number.
	Frame uint64

	// State is the dispatch state the frame executed in.
	State DispatchState

	// Dispatched reports whether a kernel was dispatched.
	Dispatched bool

	// Kernel is the dispatched kernel, valid only when Dispatched.
	Kernel Kernel

	// Elapsed is the time uploaded to the params uniform this frame.
	Elapsed float32
}

// Simulator is the frame driver: it owns the cell grid and params
// uniform, sequences the per-frame work, and issues at most one kernel
// dispatch per frame.
//
// Each Step performs, strictly in order:
//  1. sample elapsed time and upload it to the uniform
//  2. ensure a valid bind group exists
//  3. advance the dispatch state machine on current loader status
//  4. dispatch the selected kernel, if any, and wait for the fence
//
// The fence wait before returning guarantees that no two frames overlap
// on the cell grid: the grid has exactly one writer per frame.
//
// Simulator methods are not safe for concurrent use except where noted.
type Simulator struct {
	mu sync.Mutex

	cfg Config

	device hal.Device
	queue  hal.Queue

	feed    *TimeFeed
	loader  *PipelineLoader
	binder  *ResourceBinder
	machine *StateMachine

	cells   hal.Buffer
	uniform hal.Buffer

	frame      uint64
	dispatches uint64
	last       FrameStats

	// owned standalone device state; nil when the device is external.
	instance   hal.Instance
	ownsDevice bool

	closed bool
}

// NewSimulator creates a simulator on an existing device and queue and
// queues compilation of the bundled Game-of-Life kernels. The caller
// retains ownership of the device.
//
// The configuration is validated before any GPU resource is created;
// a grid size not divisible by the workgroup size fails here.
func NewSimulator(device hal.Device, queue hal.Queue, cfg Config) (*Simulator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulator{
		cfg:     cfg,
		device:  device,
		queue:   queue,
		feed:    NewTimeFeed(),
		machine: NewStateMachine(),
	}

	loader, err := NewPipelineLoader(device)
	if err != nil {
		return nil, err
	}
	s.loader = loader
	s.binder = NewResourceBinder(device, loader.BindGroupLayout())

	if err := s.createBuffers(); err != nil {
		s.Close()
		return nil, err
	}

	if err := loader.Queue(lifeShaderSource); err != nil {
		s.Close()
		return nil, err
	}

	slogger().Info("automata: simulator created",
		"grid", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"workgroup", cfg.WorkgroupSize)
	return s, nil
}

// createBuffers allocates the cell grid and params uniform and writes
// the static tail of the uniform (grid dimensions).
func (s *Simulator) createBuffers() error {
	cells, err := s.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "automata_cells",
		Size:  s.cfg.cellBufferSize(),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("automata: create cell buffer: %w", err)
	}
	s.cells = cells

	uniform, err := s.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "automata_params",
		Size:  uniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("automata: create uniform buffer: %w", err)
	}
	s.uniform = uniform

	// Zero the grid so the display path shows a cleared surface until
	// the init kernel runs.
	s.queue.WriteBuffer(cells, 0, make([]byte, s.cfg.cellBufferSize()))

	// Params: time f32 (rewritten every frame), width u32, height u32, pad.
	params := make([]byte, uniformSize)
	binary.LittleEndian.PutUint32(params[4:8], uint32(s.cfg.Width))
	binary.LittleEndian.PutUint32(params[8:12], uint32(s.cfg.Height))
	s.queue.WriteBuffer(uniform, 0, params)

	return nil
}

// Step runs one frame. While kernels are still compiling the frame is a
// no-op; after a kernel compile failure Step keeps returning nil (the
// pipeline is stalled, not the process) and Err reports the diagnostic.
func (s *Simulator) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSimulatorClosed
	}

	s.frame++

	// 1. Time feed: sample and upload before anything else so the value
	// is visible to any dispatch in this frame.
	elapsed := s.feed.Sample()
	s.queue.WriteBuffer(s.uniform, uniformTimeOffset, s.feed.Bytes())

	// 2. Resource binder: reuses the cached group unless a handle changed.
	group, err := s.binder.Ensure(s.cells, s.uniform, uniformSize)
	if err != nil {
		return err
	}

	// 3. State machine: at most one transition per frame.
	s.machine.Advance(s.loader)

	s.last = FrameStats{Frame: s.frame, State: s.machine.State(), Elapsed: elapsed}

	// 4. Dispatch the selected kernel, if any. A Reload puts the selected
	// kernel back in flight without regressing the state, so the frame
	// stays a no-op until the new pipeline is ready. Failures are latched
	// by Advance and reported through Err, never from here.
	kernel, ok := s.machine.Plan()
	if !ok {
		return nil
	}
	if status, _ := s.loader.Status(kernel); status != StatusReady {
		return nil
	}

	if err := s.dispatch(kernel, group); err != nil {
		return err
	}

	s.dispatches++
	s.last.Dispatched = true
	s.last.Kernel = kernel
	return nil
}

// dispatch encodes one compute pass for the kernel and submits it,
// waiting for completion so frames never overlap on the cell grid.
func (s *Simulator) dispatch(kernel Kernel, group hal.BindGroup) error {
	pipeline, err := s.loader.Pipeline(kernel)
	if err != nil {
		return err
	}

	encoder, err := s.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "automata_frame",
	})
	if err != nil {
		return fmt.Errorf("automata: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("automata_frame"); err != nil {
		return fmt.Errorf("automata: begin encoding: %w", err)
	}

	wx, wy, wz := s.cfg.WorkgroupCount()

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: "automata_" + kernel.String(),
	})
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group, nil)
	pass.Dispatch(wx, wy, wz)
	pass.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("automata: end encoding: %w", err)
	}
	defer s.device.FreeCommandBuffer(cmdBuf)

	fence, err := s.device.CreateFence()
	if err != nil {
		return fmt.Errorf("automata: create fence: %w", err)
	}
	defer s.device.DestroyFence(fence)

	if err := s.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("automata: submit frame %d: %w", s.frame, err)
	}

	ok, err := s.device.Wait(fence, 1, frameTimeout)
	if err != nil {
		return fmt.Errorf("automata: wait for frame %d: %w", s.frame, err)
	}
	if !ok {
		return fmt.Errorf("automata: frame %d timed out after %v", s.frame, frameTimeout)
	}

	slogger().Debug("automata: frame dispatched",
		"frame", s.frame,
		"kernel", kernel.String(),
		"workgroups", fmt.Sprintf("(%d,%d,%d)", wx, wy, wz))
	return nil
}

// Reload requeues kernel compilation from new WGSL source. The state
// machine is not reset: an already-initialized grid keeps advancing once
// the new update kernel is ready.
func (s *Simulator) Reload(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSimulatorClosed
	}
	return s.loader.Reload(source)
}

// State returns the current dispatch state. Safe for concurrent use.
func (s *Simulator) State() DispatchState {
	return s.machine.State()
}

// Err returns the sticky kernel failure, or nil while both kernels are
// healthy. Safe for concurrent use.
func (s *Simulator) Err() error {
	return s.machine.Err()
}

// Frame returns the number of completed Step calls.
func (s *Simulator) Frame() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Dispatches returns the total number of kernel dispatches issued.
func (s *Simulator) Dispatches() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatches
}

// LastFrame returns statistics for the most recent frame.
func (s *Simulator) LastFrame() FrameStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Config returns the simulator configuration.
func (s *Simulator) Config() Config {
	return s.cfg
}

// Close releases all GPU resources. If the simulator owns its device
// (created via Open), the device and instance are destroyed too.
func (s *Simulator) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if s.binder != nil {
		s.binder.Close()
	}
	if s.loader != nil {
		s.loader.Close()
	}
	if s.cells != nil {
		s.device.DestroyBuffer(s.cells)
		s.cells = nil
	}
	if s.uniform != nil {
		s.device.DestroyBuffer(s.uniform)
		s.uniform = nil
	}

	if s.ownsDevice {
		if s.device != nil {
			s.device.Destroy()
			s.device = nil
		}
		if s.instance != nil {
			s.instance.Destroy()
			s.instance = nil
		}
	}
}
