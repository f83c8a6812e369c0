// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package automata

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Register the Vulkan backend for standalone device creation.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// DeviceHandle is an alias for gpucontext.DeviceProvider, giving callers
// already running inside the gpucontext ecosystem (a gogpu window, for
// example) a way to hand their device to the simulator.
type DeviceHandle = gpucontext.DeviceProvider

// Open creates a standalone Vulkan device and a simulator on it. The
// simulator owns the device and destroys it on Close. This is the
// compute-only path used by headless tools; embedders with an existing
// device use NewFromProvider or NewSimulator instead.
func Open(cfg Config) (*Simulator, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("automata: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("automata: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("automata: no GPU adapters found")
	}

	// Prefer a real GPU; software rasterizers run the kernels too but
	// make a poor default.
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("automata: open device: %w", err)
	}

	slogger().Info("automata: opened adapter",
		"name", selected.Info.Name,
		"type", selected.Info.DeviceType)

	sim, err := NewSimulator(openDev.Device, openDev.Queue, cfg)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	sim.instance = instance
	sim.ownsDevice = true
	return sim, nil
}

// NewFromProvider creates a simulator on a shared device exposed by a
// gpucontext provider. The provider must also expose the underlying HAL
// types via HalDevice() any and HalQueue() any. The caller retains
// ownership of the device.
func NewFromProvider(provider DeviceHandle, cfg Config) (*Simulator, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("automata: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("automata: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("automata: provider HalQueue is not hal.Queue")
	}
	return NewSimulator(device, queue, cfg)
}
