// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cfgdb

import (
	"github.com/beluga3858/TeensyLogicAnalyzer/capture"
)

// Setup is one capture setup: sample clock, buffer geometry and
// pre-trigger depth. Trigger stages are stored separately, keyed by
// the setup identifier.
type Setup struct {
	ID          uint32
	Name        string
	ClockDiv    uint32 // sample-clock divider
	BufferWords uint32
	SampleShift uint32
	PreTrigger  uint32 // in storage words
}

// SamplesPerWord returns the number of sub-sample slots a 32-bit
// storage word carries under this setup.
func (set Setup) SamplesPerWord() uint32 {
	if set.SampleShift == 0 {
		return 0
	}
	return 32 / set.SampleShift
}

// Config builds the capture configuration of this setup.
func (set Setup) Config(stages []Stage) capture.Config {
	cfg := capture.Config{
		Words:          make([]uint32, set.BufferWords),
		SamplesPerWord: set.SamplesPerWord(),
		SampleShift:    set.SampleShift,
		PreTrigger:     set.PreTrigger,
	}
	for _, stage := range stages {
		cfg.Stages = append(cfg.Stages, capture.TriggerStage{
			Mask:  stage.Mask,
			Value: stage.Value,
			Delay: stage.Delay,
		})
	}
	return cfg
}

// Stage is one level of a setup's trigger sequence.
type Stage struct {
	SetupID uint32
	Level   uint8
	Mask    uint32
	Value   uint32
	Delay   uint32
}
