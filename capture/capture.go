// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package capture implements the acquisition engine of the logic
// analyzer: it samples a parallel input port at a fixed cadence,
// folds repeated values into run-length encoded storage words,
// detects a multi-stage trigger condition and records the surrounding
// window of samples into a circular buffer.
//
// The engine owns no hardware: the sample clock, the sample register,
// the host-pending poll, the interrupt mask and the status indicator
// are all reached through the Driver interface, so the engine runs
// unchanged against the memory-mapped sampler or against a scripted
// fake.
package capture // import "github.com/beluga3858/TeensyLogicAnalyzer/capture"

import (
	"fmt"
)

// TriggerStage is one level of the trigger match sequence. A stage
// matches when the raw sample, masked with Mask, equals Value. A
// non-zero Delay makes the stage count down that many samples after
// its match before the trigger advances to the next stage (or fires,
// on the last stage).
type TriggerStage struct {
	Mask  uint32
	Value uint32
	Delay uint32
}

// Config describes one capture: the storage ring, the word geometry
// and the trigger stages. It is read-only for the duration of the
// capture.
type Config struct {
	// Words is the circular storage the capture records into.
	Words []uint32

	// TotalSamples is the logical sample capacity of the recording
	// window. Zero means len(Words)*SamplesPerWord.
	TotalSamples uint32

	// SamplesPerWord is the number of sub-sample slots packed into
	// one storage word, each SampleShift bits wide, most significant
	// slot first.
	SamplesPerWord uint32
	SampleShift    uint32

	// PreTrigger is the depth of pre-trigger history to retain, in
	// storage words.
	PreTrigger uint32

	// Stages is the ordered trigger sequence. An empty slice disables
	// the trigger: the capture fills the buffer exactly once and
	// stops.
	Stages []TriggerStage
}

// Driver is the hardware surface the engine drives. All calls are
// synchronous; WaitSample blocks until the next sample-clock tick.
type Driver interface {
	WaitSample()
	ReadSample() uint32

	// HostPending reports whether the host sent data, interpreted as
	// an abort request.
	HostPending() bool

	MaskIRQ()
	UnmaskIRQ()

	// SetStatus drives the status indicator: on when the trigger is
	// armed, off once it fired.
	SetStatus(on bool)

	// Reset is invoked when a capture is aborted by the host.
	Reset()
}

// Result is the metadata of one completed capture.
type Result struct {
	// TriggerIndex is the logical sample index, within the recorded
	// window, at which the trigger matched.
	TriggerIndex uint32

	// Wrapped reports whether the write cursor wrapped around the
	// storage ring at least once.
	Wrapped bool

	// Interrupted is the logical sample index the capture had reached
	// when it was aborted. Only valid when Aborted is true.
	Interrupted uint32
	Aborted     bool

	// FirstValue preserves the true value of the logical first
	// recorded word, captured before an RLE run overwrote it.
	FirstValue uint32
}

type state uint8

const (
	stBuffering state = iota
	stLooking
	stDelay
	stFirstPass
	stSecondPass
	stTriggered
)

type capture struct {
	drv Driver

	ring ring
	enc  rleEncoder

	stages []TriggerStage
	level  int
	mask   uint32
	value  uint32
	delay  uint32

	st        state
	armAt     int
	startPtr  int
	trigCount uint32
	aborted   bool

	data  uint32 // per-slot data mask, applied to raw reads before encoding
	spw   uint32
	pre   uint32
	total uint32
}

// Run performs one capture with the given configuration, driving the
// sampler through drv. It returns once the recording window is
// complete or the host aborted the capture.
func Run(cfg Config, drv Driver) (Result, error) {
	c, err := newCapture(cfg, drv)
	if err != nil {
		return Result{}, err
	}
	return c.run(), nil
}

func newCapture(cfg Config, drv Driver) (*capture, error) {
	switch {
	case len(cfg.Words) == 0:
		return nil, fmt.Errorf("capture: empty storage buffer")
	case cfg.SampleShift < 2:
		return nil, fmt.Errorf("capture: invalid sample shift %d", cfg.SampleShift)
	case cfg.SamplesPerWord == 0 || cfg.SamplesPerWord*cfg.SampleShift > 32:
		return nil, fmt.Errorf(
			"capture: invalid geometry (samples/word=%d, shift=%d)",
			cfg.SamplesPerWord, cfg.SampleShift,
		)
	}

	var (
		sampleMask = uint32(1)<<cfg.SampleShift - 1
		flag       = uint32(1) << (cfg.SampleShift - 1)
		data       = sampleMask >> 1
	)

	// anyData replicates the per-slot data mask into every slot: a
	// word with no bit in anyData carries no real sample, only RLE
	// continuations.
	var anyData uint32
	for i := uint32(0); i < cfg.SamplesPerWord; i++ {
		anyData = anyData<<cfg.SampleShift | data
	}

	total := cfg.TotalSamples
	if total == 0 {
		total = uint32(len(cfg.Words)) * cfg.SamplesPerWord
	}

	c := &capture{
		drv:    drv,
		stages: cfg.Stages,
		data:   data,
		spw:    cfg.SamplesPerWord,
		pre:    cfg.PreTrigger,
		total:  total,
		ring: ring{
			words:   cfg.Words,
			anyData: anyData,
		},
	}
	c.enc = rleEncoder{
		ring:  &c.ring,
		shift: cfg.SampleShift,
		spw:   cfg.SamplesPerWord,
		data:  data,
		flag:  flag,
		room:  cfg.SamplesPerWord,
		last:  ^uint32(0), // no previous sample
	}

	if len(cfg.Stages) == 0 {
		// no trigger: pass-through capture of exactly one buffer.
		c.st = stSecondPass
		c.startPtr = len(cfg.Words)
		return c, nil
	}

	c.mask = cfg.Stages[0].Mask
	c.value = cfg.Stages[0].Value
	c.delay = cfg.Stages[0].Delay
	c.st = stBuffering

	// clamp the arm position to one word before the end, so a
	// pre-trigger depth covering the whole buffer can not leave the
	// machine stuck in Buffering.
	c.armAt = int(cfg.PreTrigger)
	if max := len(cfg.Words) - 1; c.armAt > max {
		c.armAt = max
	}
	return c, nil
}

func (c *capture) run() Result {
	c.drv.MaskIRQ()
	defer c.drv.UnmaskIRQ()

	for {
		c.drv.WaitSample()
		raw := c.drv.ReadSample()
		poll := c.enc.encode(raw & c.data)
		if c.step(raw) {
			break
		}
		if poll && c.drv.HostPending() {
			c.aborted = true
			c.drv.Reset()
			break
		}
	}
	return c.result()
}

// step advances the capture state machine by one sample and reports
// whether the capture is complete.
func (c *capture) step(raw uint32) bool {
	switch c.st {
	case stBuffering:
		if c.ring.cur >= c.armAt {
			c.st = stLooking
			c.drv.SetStatus(true)
		}

	case stLooking:
		if raw&c.mask == c.value {
			if c.delay > 0 {
				c.st = stDelay
				break
			}
			c.advance()
		}

	case stDelay:
		c.delay--
		if c.delay == 0 {
			c.advance()
		}

	case stFirstPass:
		// one-sample transitional state: the status signal must fire
		// exactly once.
		c.drv.SetStatus(false)
		c.st = stSecondPass

	case stSecondPass:
		// normalize to the lazy-wrap convention: ring position 0 is
		// observed as len(words) once the cursor has committed a word.
		if c.startPtr <= 0 {
			c.startPtr += len(c.ring.words)
		}
		c.st = stTriggered

	case stTriggered:
		if c.ring.cur == c.startPtr {
			return true
		}
	}
	return false
}

// advance moves the trigger to the next stage, or fires it when the
// current stage was the last one.
func (c *capture) advance() {
	if c.level == len(c.stages)-1 {
		c.fire()
		return
	}
	c.level++
	c.mask = c.stages[c.level].Mask
	c.value = c.stages[c.level].Value
	c.delay = c.stages[c.level].Delay
	c.st = stLooking
}

func (c *capture) fire() {
	c.trigCount = c.enc.room
	c.startPtr = c.ring.cur - int(c.pre)
	c.st = stFirstPass
}

func (c *capture) result() Result {
	res := Result{
		Wrapped:    c.ring.wrapped,
		FirstValue: c.ring.first,
	}

	spw := int(c.spw)
	idx := (c.startPtr+int(c.pre))*spw + spw - 1 - int(c.trigCount)
	if idx > int(c.total) {
		idx %= int(c.total)
	}
	res.TriggerIndex = uint32(idx)

	if c.aborted || c.ring.cur != c.startPtr {
		res.Aborted = true
		res.Interrupted = uint32(c.ring.cur) * c.spw
	}
	return res
}
