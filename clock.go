// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package automata

import (
	"encoding/binary"
	"math"
	"time"
)

// TimeFeed samples the monotonic elapsed-time clock once per frame and
// stages the value for upload into the params uniform.
//
// Only the latest sample matters: Stage overwrites the previous value,
// there is no history. The frame driver uploads the staged bytes before
// any dispatch in the same frame, so kernels always observe the time
// sampled earlier in their own frame.
type TimeFeed struct {
	// start anchors elapsed time. time.Time carries a monotonic reading,
	// so wall-clock adjustments do not affect Sub.
	start time.Time

	// now is the clock source, replaceable in tests.
	now func() time.Time

	// staged is the latest sample in seconds.
	staged float32
}

// NewTimeFeed returns a time feed anchored at the current instant.
func NewTimeFeed() *TimeFeed {
	return &TimeFeed{start: time.Now(), now: time.Now}
}

// Sample reads the elapsed time, stages it, and returns it in seconds.
func (t *TimeFeed) Sample() float32 {
	t.staged = float32(t.now().Sub(t.start).Seconds())
	return t.staged
}

// Staged returns the most recently sampled elapsed seconds.
func (t *TimeFeed) Staged() float32 {
	return t.staged
}

// Bytes returns the staged sample as a 4-byte little-endian IEEE 754
// float, the exact representation written at offset 0 of the params
// uniform.
func (t *TimeFeed) Bytes() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(t.staged))
	return buf
}
