// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"github.com/beluga3858/TeensyLogicAnalyzer/capture"
)

type config struct {
	clkDiv uint32

	buf struct {
		words uint32
		shift uint32
		pre   uint32
	}

	stages []capture.TriggerStage

	sensor struct {
		bus  int
		addr uint8
	}
}

func newConfig() config {
	var cfg config
	cfg.clkDiv = 1
	cfg.buf.words = 4096
	cfg.buf.shift = 4
	cfg.sensor.bus = -1 // no temperature sensor
	return cfg
}

// Option configures an analyzer board device.
type Option func(*config)

// WithClockDiv sets the sample-clock divider.
func WithClockDiv(div uint32) Option {
	return func(cfg *config) {
		cfg.clkDiv = div
	}
}

// WithBufferWords sets the capture buffer capacity, in storage words.
func WithBufferWords(n uint32) Option {
	return func(cfg *config) {
		cfg.buf.words = n
	}
}

// WithSampleShift sets the width of one sub-sample slot, in bits.
// The number of slots per storage word follows as 32/shift.
func WithSampleShift(shift uint32) Option {
	return func(cfg *config) {
		cfg.buf.shift = shift
	}
}

// WithPreTrigger sets the pre-trigger depth, in storage words.
func WithPreTrigger(n uint32) Option {
	return func(cfg *config) {
		cfg.buf.pre = n
	}
}

// WithStages sets the trigger stage sequence.
func WithStages(stages []capture.TriggerStage) Option {
	return func(cfg *config) {
		cfg.stages = stages
	}
}

// WithSensor enables the SMBus temperature sensor on the given bus
// and device address.
func WithSensor(bus int, addr uint8) Option {
	return func(cfg *config) {
		cfg.sensor.bus = bus
		cfg.sensor.addr = addr
	}
}
