// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package automata

import (
	_ "embed"
)

// Embedded WGSL kernel source, compiled at build time via go:embed.
// Both entry points live in one module and share the binding layout.

//go:embed shaders/life.wgsl
var lifeShaderSource string

// Kernel entry point names in the embedded source. The pipeline loader
// queues one compute pipeline per entry point.
const (
	entryPointInit   = "init"
	entryPointUpdate = "update"
)

// entryPoint returns the WGSL entry point name for a kernel.
func entryPoint(k Kernel) string {
	if k == KernelInit {
		return entryPointInit
	}
	return entryPointUpdate
}

// LifeShaderSource returns the WGSL source of the bundled Game-of-Life
// kernels. Useful for feeding a modified copy to Simulator.Reload.
func LifeShaderSource() string {
	return lifeShaderSource
}
