// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package automata runs GPU compute kernels over a 2D cell grid in
// lock-step with a per-frame cadence.
//
// # Overview
//
// The package orchestrates a minimal compute loop on top of gogpu/wgpu:
// two kernel entry points (init and update) are compiled asynchronously
// from embedded WGSL, and once ready are dispatched once per frame
// against a cell-grid storage buffer and a small time uniform. The
// bundled kernels implement Conway's Game of Life, but the loop itself
// is kernel-agnostic: any pair of entry points consuming the fixed
// two-slot binding layout works.
//
// # Quick Start
//
//	sim, err := automata.Open(automata.Config{Width: 1280, Height: 720})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sim.Close()
//
//	for i := 0; i < 600; i++ {
//	    if err := sim.Step(); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
//	img, _ := sim.Snapshot()
//
// # Frame model
//
// Each Step performs, strictly in order: elapsed-time upload, bind-group
// validation, dispatch-state evaluation, and at most one kernel dispatch.
// The dispatch is submitted and fence-waited before Step returns, so no
// two frames ever overlap on the cell grid.
//
// Kernel compilation never blocks a frame. While a pipeline is pending
// the corresponding frames are no-ops; a failed compilation permanently
// stalls dispatch and is reported through Simulator.Err.
//
// # Binding layout
//
// All kernels see one bind group:
//   - binding 0: read-write storage buffer, one u32 cell per grid texel
//   - binding 1: uniform buffer, elapsed seconds as f32 at offset 0
package automata

// Version is the current version of the library.
const Version = "0.1.0"
