// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package automata

import (
	"errors"
	"fmt"
)

// Configuration errors.
var (
	// ErrInvalidSize is returned when the grid has a non-positive dimension.
	ErrInvalidSize = errors.New("automata: grid dimensions must be positive")

	// ErrInvalidWorkgroupSize is returned when the workgroup size is not positive.
	ErrInvalidWorkgroupSize = errors.New("automata: workgroup size must be positive")

	// ErrNotDivisible is returned when a grid dimension is not evenly
	// divisible by the workgroup size. The domain is never silently
	// truncated; mismatched sizes are a startup configuration error.
	ErrNotDivisible = errors.New("automata: grid size not divisible by workgroup size")
)

// Default configuration constants, matching the bundled life.wgsl kernels.
const (
	// DefaultWidth is the default grid width in cells.
	DefaultWidth = 1280

	// DefaultHeight is the default grid height in cells.
	DefaultHeight = 720

	// DefaultWorkgroupSize is the per-axis workgroup size. This must match
	// the @workgroup_size attribute in the kernel source.
	DefaultWorkgroupSize = 8
)

// Uniform buffer layout constants. The params uniform is shared by all
// kernels at binding 1 and must match the Params struct in life.wgsl.
const (
	// uniformSize is the byte size of the params uniform:
	// time f32, width u32, height u32, pad u32.
	uniformSize = 16

	// uniformTimeOffset is the byte offset of the elapsed-seconds field.
	// The time feed rewrites exactly [uniformTimeOffset, uniformTimeOffset+4)
	// every frame; the rest of the uniform is written once at startup.
	uniformTimeOffset = 0

	// minUniformBinding is the minimum binding size the resource binder
	// accepts: one 4-byte scalar.
	minUniformBinding = 4
)

// Config fixes the problem size and workgroup size at startup.
// Both are immutable once a Simulator is created.
type Config struct {
	// Width is the grid width in cells. If 0, DefaultWidth is used.
	Width int

	// Height is the grid height in cells. If 0, DefaultHeight is used.
	Height int

	// WorkgroupSize is the per-axis kernel workgroup size.
	// If 0, DefaultWorkgroupSize is used.
	WorkgroupSize int
}

// withDefaults returns a copy of the config with zero fields replaced
// by package defaults.
func (c Config) withDefaults() Config {
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.WorkgroupSize == 0 {
		c.WorkgroupSize = DefaultWorkgroupSize
	}
	return c
}

// Validate checks the configuration invariants. It is called by the
// Simulator constructors before any GPU resource is created, so a bad
// configuration fails fast rather than truncating the domain.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, c.Width, c.Height)
	}
	if c.WorkgroupSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkgroupSize, c.WorkgroupSize)
	}
	if c.Width%c.WorkgroupSize != 0 {
		return fmt.Errorf("%w: width %d %% %d != 0", ErrNotDivisible, c.Width, c.WorkgroupSize)
	}
	if c.Height%c.WorkgroupSize != 0 {
		return fmt.Errorf("%w: height %d %% %d != 0", ErrNotDivisible, c.Height, c.WorkgroupSize)
	}
	return nil
}

// WorkgroupCount returns the dispatch dimensions for the grid:
// exact division of the problem size by the workgroup size along X and Y,
// and always 1 along Z (the domain is 2D).
//
// The division is exact by the Validate invariant.
func (c Config) WorkgroupCount() (x, y, z uint32) {
	return uint32(c.Width / c.WorkgroupSize), uint32(c.Height / c.WorkgroupSize), 1
}

// Cells returns the total number of cells in the grid.
func (c Config) Cells() int {
	return c.Width * c.Height
}

// cellBufferSize returns the byte size of the cell-grid storage buffer:
// one u32 per cell.
func (c Config) cellBufferSize() uint64 {
	return uint64(c.Width) * uint64(c.Height) * 4
}
