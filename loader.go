// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package automata

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/automata/internal/cache"
)

// Loader errors.
var (
	// ErrKernelNotReady is returned when a pipeline is requested before
	// its compilation finished.
	ErrKernelNotReady = errors.New("automata: kernel pipeline is not ready")

	// ErrLoaderClosed is returned when operating on a closed loader.
	ErrLoaderClosed = errors.New("automata: pipeline loader is closed")
)

// translationCacheCapacity bounds the per-shard SPIR-V translation cache.
// Reloads of unchanged source hit the cache and skip the WGSL front end.
const translationCacheCapacity = 8

// PipelineLoader compiles kernel entry points asynchronously and answers
// non-blocking status polls.
//
// Queue submits a compilation in a background goroutine and returns
// immediately; the frame driver polls Status once per frame and never
// blocks on compilation. A compilation failure is terminal for that
// kernel: the loader reports StatusFailed until an explicit Reload.
//
// The loader owns the bind group layout shared by every kernel:
//
//	binding 0: read-write storage buffer (cell grid)
//	binding 1: uniform buffer (params, elapsed seconds at offset 0)
type PipelineLoader struct {
	mu sync.Mutex

	device hal.Device

	// bgLayout and pipelineLayout are shared by both kernels and created
	// eagerly so layout errors surface at construction, not mid-frame.
	bgLayout       hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout

	slots [kernelCount]kernelSlot

	// translations memoizes naga WGSL -> SPIR-V output by source text,
	// so reloading unchanged source skips the front end entirely.
	translations *cache.Sharded[string, []uint32]

	// translate is the WGSL front end, replaceable in tests.
	translate func(source string) ([]uint32, error)

	// inflight tracks background compilations for Close and tests.
	inflight sync.WaitGroup

	// generation invalidates stragglers from before a Reload.
	generation uint64

	closed bool
}

// kernelSlot is the compilation state of one kernel entry point.
type kernelSlot struct {
	status   KernelStatus
	err      error
	module   hal.ShaderModule
	pipeline hal.ComputePipeline
}

// NewPipelineLoader creates a loader bound to the given device and
// builds the shared bind group and pipeline layouts.
func NewPipelineLoader(device hal.Device) (*PipelineLoader, error) {
	l := &PipelineLoader{
		device:       device,
		translations: cache.NewSharded[string, []uint32](translationCacheCapacity, cache.StringHasher),
		translate:    translateWGSL,
	}

	bgLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "automata_bgl",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("automata: create bind group layout: %w", err)
	}
	l.bgLayout = bgLayout

	pipelineLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "automata_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		if bgLayout != nil {
			device.DestroyBindGroupLayout(bgLayout)
		}
		return nil, fmt.Errorf("automata: create pipeline layout: %w", err)
	}
	l.pipelineLayout = pipelineLayout

	return l, nil
}

// translateWGSL runs the naga front end and packs the SPIR-V bytes into
// little-endian 32-bit words.
func translateWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	return packWords(spirvBytes), nil
}

// packWords reassembles little-endian SPIR-V bytes into the 32-bit words
// the HAL shader descriptor expects.
func packWords(spirv []byte) []uint32 {
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = uint32(spirv[i*4]) |
			uint32(spirv[i*4+1])<<8 |
			uint32(spirv[i*4+2])<<16 |
			uint32(spirv[i*4+3])<<24
	}
	return words
}

// BindGroupLayout returns the shared bind group layout. The resource
// binder builds bind groups against it.
func (l *PipelineLoader) BindGroupLayout() hal.BindGroupLayout {
	return l.bgLayout
}

// Queue submits asynchronous compilation of both kernel entry points
// from the given WGSL source and returns immediately. Poll Status for
// completion.
func (l *PipelineLoader) Queue(source string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLoaderClosed
	}

	gen := l.generation
	for k := Kernel(0); k < kernelCount; k++ {
		l.slots[k] = kernelSlot{status: StatusPending}
		l.inflight.Add(1)
		go l.compile(k, source, gen)
	}
	return nil
}

// Reload discards the current pipelines and requeues compilation from
// new source. This is the only way to recover a Failed kernel; there is
// no automatic retry.
func (l *PipelineLoader) Reload(source string) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoaderClosed
	}
	l.generation++
	for k := Kernel(0); k < kernelCount; k++ {
		l.destroySlotLocked(k)
	}
	l.mu.Unlock()

	return l.Queue(source)
}

// compile translates, creates the shader module, and builds the compute
// pipeline for one kernel. Runs on a background goroutine; the result is
// observed only through Status.
func (l *PipelineLoader) compile(k Kernel, source string, gen uint64) {
	defer l.inflight.Done()

	spirv, hit := l.translations.Get(source)
	if !hit {
		var err error
		spirv, err = l.translate(source)
		if err != nil {
			l.finishCompile(k, gen, nil, nil, fmt.Errorf("automata: compile %s: %w", k, err))
			return
		}
		l.translations.Set(source, spirv)
	}

	label := "automata_" + k.String()
	module, err := l.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		l.finishCompile(k, gen, nil, nil, fmt.Errorf("automata: create shader module for %s: %w", k, err))
		return
	}

	pipeline, err := l.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  label,
		Layout: l.pipelineLayout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: entryPoint(k),
		},
	})
	if err != nil {
		if module != nil {
			l.device.DestroyShaderModule(module)
		}
		l.finishCompile(k, gen, nil, nil, fmt.Errorf("automata: create compute pipeline for %s: %w", k, err))
		return
	}

	l.finishCompile(k, gen, module, pipeline, nil)
}

// finishCompile publishes a compilation result, discarding stale results
// from before a Reload or Close.
func (l *PipelineLoader) finishCompile(k Kernel, gen uint64, module hal.ShaderModule, pipeline hal.ComputePipeline, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || gen != l.generation {
		// A Reload or Close superseded this compilation.
		if pipeline != nil {
			l.device.DestroyComputePipeline(pipeline)
		}
		if module != nil {
			l.device.DestroyShaderModule(module)
		}
		return
	}

	if err != nil {
		l.slots[k] = kernelSlot{status: StatusFailed, err: err}
		slogger().Warn("automata: kernel compilation failed",
			"kernel", k.String(),
			"error", err)
		return
	}

	l.slots[k] = kernelSlot{status: StatusReady, module: module, pipeline: pipeline}
	slogger().Debug("automata: kernel pipeline ready", "kernel", k.String())
}

// Status reports the compilation status of a kernel. The error is
// non-nil only when the status is StatusFailed.
func (l *PipelineLoader) Status(k Kernel) (KernelStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[k]
	return s.status, s.err
}

// Pipeline returns the compiled pipeline for a kernel, or
// ErrKernelNotReady (wrapping the compile error for failed kernels).
func (l *PipelineLoader) Pipeline(k Kernel) (hal.ComputePipeline, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.slots[k]
	if s.status != StatusReady {
		if s.err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrKernelNotReady, k, s.err)
		}
		return nil, fmt.Errorf("%w: %s", ErrKernelNotReady, k)
	}
	return s.pipeline, nil
}

// TranslationStats returns hit/miss counters of the SPIR-V translation
// cache.
func (l *PipelineLoader) TranslationStats() cache.Stats {
	return l.translations.Stats()
}

// destroySlotLocked releases one kernel's GPU resources.
// The caller must hold l.mu.
func (l *PipelineLoader) destroySlotLocked(k Kernel) {
	s := &l.slots[k]
	if s.pipeline != nil {
		l.device.DestroyComputePipeline(s.pipeline)
	}
	if s.module != nil {
		l.device.DestroyShaderModule(s.module)
	}
	*s = kernelSlot{}
}

// Close waits for in-flight compilations to settle and releases all GPU
// resources. The loader cannot be reused afterwards.
func (l *PipelineLoader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	// Stragglers see closed=true and self-destruct their results.
	l.inflight.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	for k := Kernel(0); k < kernelCount; k++ {
		l.destroySlotLocked(k)
	}
	if l.pipelineLayout != nil {
		l.device.DestroyPipelineLayout(l.pipelineLayout)
		l.pipelineLayout = nil
	}
	if l.bgLayout != nil {
		l.device.DestroyBindGroupLayout(l.bgLayout)
		l.bgLayout = nil
	}
}
