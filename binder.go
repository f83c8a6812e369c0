// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package automata

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Binder errors.
var (
	// ErrNilResource is returned when Ensure is called with a nil buffer.
	ErrNilResource = errors.New("automata: bind group resource is nil")

	// ErrUniformTooSmall is returned when the uniform buffer cannot hold
	// one 4-byte scalar. Construction fails loudly rather than producing
	// a corrupt binding.
	ErrUniformTooSmall = errors.New("automata: uniform buffer smaller than one 4-byte scalar")
)

// ResourceBinder builds the kernel bind group over the cell grid and the
// params uniform and caches it across frames.
//
// The cached group is reused while both underlying resources keep their
// native handles; if either handle changes (resize, reload), the stale
// group is destroyed and rebuilt. Staleness is detected on the GPU
// handle identity reported by the HAL, never on Go pointer equality, so
// a reallocated buffer at a recycled address still invalidates the
// cache.
//
// ResourceBinder is not safe for concurrent use; the frame driver owns it.
type ResourceBinder struct {
	device hal.Device
	layout hal.BindGroupLayout

	group hal.BindGroup

	// cellsHandle/uniformHandle identify the resources the cached group
	// was built from.
	cellsHandle   any
	uniformHandle any

	// rebuilds counts bind group constructions, exposed for stats.
	rebuilds uint64
}

// NewResourceBinder creates a binder building groups against the given
// layout (normally PipelineLoader.BindGroupLayout).
func NewResourceBinder(device hal.Device, layout hal.BindGroupLayout) *ResourceBinder {
	return &ResourceBinder{device: device, layout: layout}
}

// bindingStale reports whether a cached binding built from oldHandle
// must be rebuilt for a resource now reporting newHandle.
func bindingStale(oldHandle, newHandle any) bool {
	return oldHandle != newHandle
}

// Ensure returns a bind group for (cells, uniform), rebuilding only when
// a resource handle changed since the last call. uniformSize is the
// bound size of the uniform buffer and must hold at least one 4-byte
// scalar.
func (b *ResourceBinder) Ensure(cells, uniform hal.Buffer, uniformSize uint64) (hal.BindGroup, error) {
	if cells == nil || uniform == nil {
		return nil, ErrNilResource
	}
	if uniformSize < minUniformBinding {
		return nil, fmt.Errorf("%w: %d bytes", ErrUniformTooSmall, uniformSize)
	}

	cellsHandle := cells.NativeHandle()
	uniformHandle := uniform.NativeHandle()

	if b.group != nil &&
		!bindingStale(b.cellsHandle, cellsHandle) &&
		!bindingStale(b.uniformHandle, uniformHandle) {
		return b.group, nil
	}

	// A resource changed identity: the old group may reference a freed
	// buffer and must never be reused.
	b.invalidate()

	group, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "automata_bg",
		Layout: b.layout,
		Entries: []gputypes.BindGroupEntry{
			{
				Binding:  0,
				Resource: gputypes.BufferBinding{Buffer: cells.NativeHandle(), Offset: 0, Size: 0}, // 0 = entire buffer
			},
			{
				Binding:  1,
				Resource: gputypes.BufferBinding{Buffer: uniform.NativeHandle(), Offset: 0, Size: uniformSize},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("automata: create bind group: %w", err)
	}

	b.group = group
	b.cellsHandle = cellsHandle
	b.uniformHandle = uniformHandle
	b.rebuilds++

	slogger().Debug("automata: bind group built", "rebuilds", b.rebuilds)
	return group, nil
}

// Rebuilds returns the number of bind group constructions performed.
func (b *ResourceBinder) Rebuilds() uint64 {
	return b.rebuilds
}

// invalidate destroys the cached group, if any.
func (b *ResourceBinder) invalidate() {
	if b.group != nil {
		b.device.DestroyBindGroup(b.group)
		b.group = nil
	}
	b.cellsHandle = nil
	b.uniformHandle = nil
}

// Close releases the cached bind group.
func (b *ResourceBinder) Close() {
	b.invalidate()
}
