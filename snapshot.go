// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package automata

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/draw"
)

// Snapshot reads the cell grid back from the GPU and renders it as a
// black and white image: live cells white, dead cells black.
//
// The copy is submitted and fence-waited, so the returned image reflects
// every dispatch issued before the call. Snapshot must not run
// concurrently with Step.
func (s *Simulator) Snapshot() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSimulatorClosed
	}

	size := s.cfg.cellBufferSize()
	staging, err := s.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "automata_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("automata: create staging buffer: %w", err)
	}
	defer s.device.DestroyBuffer(staging)

	encoder, err := s.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "automata_snapshot",
	})
	if err != nil {
		return nil, fmt.Errorf("automata: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("automata_snapshot"); err != nil {
		return nil, fmt.Errorf("automata: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(s.cells, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("automata: end encoding: %w", err)
	}
	defer s.device.FreeCommandBuffer(cmdBuf)

	fence, err := s.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("automata: create fence: %w", err)
	}
	defer s.device.DestroyFence(fence)

	if err := s.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("automata: submit snapshot copy: %w", err)
	}
	fenceOK, err := s.device.Wait(fence, 1, frameTimeout)
	if err != nil {
		return nil, fmt.Errorf("automata: wait for snapshot copy: %w", err)
	}
	if !fenceOK {
		return nil, fmt.Errorf("automata: snapshot copy timed out after %v", frameTimeout)
	}

	readback := make([]byte, size)
	if err := s.queue.ReadBuffer(staging, 0, readback); err != nil {
		return nil, fmt.Errorf("automata: read staging buffer: %w", err)
	}

	return decodeCells(readback, s.cfg.Width, s.cfg.Height), nil
}

// decodeCells renders one u32 per cell into an RGBA image. Any non-zero
// cell counts as alive.
func decodeCells(raw []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		c := color.RGBA{0, 0, 0, 255}
		if binary.LittleEndian.Uint32(raw[i*4:]) != 0 {
			c = color.RGBA{255, 255, 255, 255}
		}
		img.SetRGBA(i%width, i/width, c)
	}
	return img
}

// Preview returns a snapshot scaled down by the given integer factor,
// useful for thumbnails of large grids. A factor <= 1 returns the
// full-size snapshot. Cells are crisp squares, so nearest neighbor is
// the right filter here.
func (s *Simulator) Preview(factor int) (*image.RGBA, error) {
	full, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	if factor <= 1 {
		return full, nil
	}

	b := full.Bounds()
	scaled := image.NewRGBA(image.Rect(0, 0, b.Dx()/factor, b.Dy()/factor))
	draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), full, b, draw.Src, nil)
	return scaled, nil
}
