// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package automata

import (
	"strings"
	"testing"
)

func TestLifeShaderEmbedded(t *testing.T) {
	src := LifeShaderSource()
	if src == "" {
		t.Fatal("embedded kernel source is empty")
	}
	for _, want := range []string{
		"fn " + entryPointInit,
		"fn " + entryPointUpdate,
		"@compute",
		"var<storage, read_write>",
		"var<uniform>",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("kernel source missing %q", want)
		}
	}
}

func TestLifeShaderWorkgroupSize(t *testing.T) {
	// The bundled kernels are written for the default workgroup size;
	// a mismatch here would silently skip cells.
	src := LifeShaderSource()
	want := "@workgroup_size(8, 8, 1)"
	if strings.Count(src, want) != int(kernelCount) {
		t.Errorf("kernel source must declare %s on both entry points", want)
	}
}

func TestEntryPoint(t *testing.T) {
	if got := entryPoint(KernelInit); got != entryPointInit {
		t.Errorf("entryPoint(KernelInit) = %q, want %q", got, entryPointInit)
	}
	if got := entryPoint(KernelUpdate); got != entryPointUpdate {
		t.Errorf("entryPoint(KernelUpdate) = %q, want %q", got, entryPointUpdate)
	}
}
