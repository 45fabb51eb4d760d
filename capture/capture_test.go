// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/beluga3858/TeensyLogicAnalyzer/capture"
)

type fakeDriver struct {
	t       *testing.T
	samples []uint32
	abortAt int // pending host data once this many samples were read; -1 for never

	i       int
	status  []bool
	resets  int
	masks   int
	unmasks int
}

func newFakeDriver(t *testing.T, samples []uint32) *fakeDriver {
	return &fakeDriver{t: t, samples: samples, abortAt: -1}
}

func (drv *fakeDriver) WaitSample() {}

func (drv *fakeDriver) ReadSample() uint32 {
	if drv.i >= len(drv.samples) {
		drv.t.Fatalf("sample script exhausted after %d samples", drv.i)
	}
	v := drv.samples[drv.i]
	drv.i++
	return v
}

func (drv *fakeDriver) HostPending() bool {
	return drv.abortAt >= 0 && drv.i > drv.abortAt
}

func (drv *fakeDriver) MaskIRQ()          { drv.masks++ }
func (drv *fakeDriver) UnmaskIRQ()        { drv.unmasks++ }
func (drv *fakeDriver) SetStatus(on bool) { drv.status = append(drv.status, on) }
func (drv *fakeDriver) Reset()            { drv.resets++ }

// cycle builds a stream of n samples cycling through vs, so no two
// consecutive samples are equal and every sample packs one slot.
func cycle(n int, vs ...uint32) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = vs[i%len(vs)]
	}
	return out
}

func TestImmediateCapture(t *testing.T) {
	cfg := capture.Config{
		Words:          make([]uint32, 4),
		SamplesPerWord: 4,
		SampleShift:    4,
	}
	drv := newFakeDriver(t, cycle(16, 1, 2, 3))

	res, err := capture.Run(cfg, drv)
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}

	if res.Aborted {
		t.Fatalf("capture aborted: %#v", res)
	}
	if res.Wrapped {
		t.Fatalf("capture wrapped on an exact fill")
	}
	if got, want := cfg.Words, []uint32{0x1231, 0x2312, 0x3123, 0x1231}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid buffer content:\ngot = %#v\nwant= %#v", got, want)
	}
	if got, want := drv.i, 16; got != want {
		t.Fatalf("invalid sample count: got=%d, want=%d", got, want)
	}
	if len(drv.status) != 0 {
		t.Fatalf("status signaled without a trigger: %v", drv.status)
	}
	if drv.masks != 1 || drv.unmasks != 1 {
		t.Fatalf("invalid IRQ masking: masks=%d, unmasks=%d", drv.masks, drv.unmasks)
	}
	if drv.resets != 0 {
		t.Fatalf("reset invoked on a clean capture")
	}
}

func TestTriggerCapture(t *testing.T) {
	// 8 samples of pre-trigger filler, 3 more in the armed state,
	// the trigger value at the 12th sample, filler until the window
	// closes.
	samples := append(cycle(8, 1, 2, 3, 4), 1, 2, 3, 5)
	samples = append(samples, cycle(16, 1, 2, 3, 4)...)

	run := func() (capture.Result, *fakeDriver) {
		cfg := capture.Config{
			Words:          make([]uint32, 6),
			SamplesPerWord: 4,
			SampleShift:    4,
			PreTrigger:     2,
			Stages: []capture.TriggerStage{
				{Mask: 0x7, Value: 0x5},
			},
		}
		drv := newFakeDriver(t, samples)
		res, err := capture.Run(cfg, drv)
		if err != nil {
			t.Fatalf("could not run capture: %+v", err)
		}
		return res, drv
	}

	res, drv := run()

	if res.Aborted {
		t.Fatalf("capture aborted: %#v", res)
	}
	if got, want := res.TriggerIndex, uint32(11); got != want {
		t.Fatalf("invalid trigger index: got=%d, want=%d", got, want)
	}
	if !res.Wrapped {
		t.Fatalf("capture did not wrap")
	}
	if got, want := res.FirstValue, uint32(0x1234); got != want {
		t.Fatalf("invalid first value: got=0x%x, want=0x%x", got, want)
	}
	if got, want := drv.status, []bool{true, false}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid status sequence: got=%v, want=%v", got, want)
	}
	if got, want := drv.i, 28; got != want {
		t.Fatalf("invalid sample count: got=%d, want=%d", got, want)
	}

	// same stream, same result.
	res2, _ := run()
	if !reflect.DeepEqual(res, res2) {
		t.Fatalf("capture not reproducible:\ngot = %#v\nwant= %#v", res2, res)
	}
}

func TestTriggerDelayOrdering(t *testing.T) {
	// stage B values seen before stage A matched must not advance the
	// trigger; once A matched, B fires only after its delay elapsed.
	samples := []uint32{
		2, 3, 2, 3, // buffering; contains the B value
		2, 3, // armed, looking for A: B value again, no advance
		1,    // A matches
		3,    // no B match
		2,    // B matches, delay=2 armed
		3, 4, // countdown; fires on the second sample
	}
	samples = append(samples, cycle(25, 1, 2, 3, 4)...)

	cfg := capture.Config{
		Words:          make([]uint32, 8),
		SamplesPerWord: 4,
		SampleShift:    4,
		PreTrigger:     1,
		Stages: []capture.TriggerStage{
			{Mask: 0x7, Value: 0x1},
			{Mask: 0x7, Value: 0x2, Delay: 2},
		},
	}
	drv := newFakeDriver(t, samples)

	res, err := capture.Run(cfg, drv)
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}

	if res.Aborted {
		t.Fatalf("capture aborted: %#v", res)
	}
	if got, want := res.TriggerIndex, uint32(10); got != want {
		t.Fatalf("invalid trigger index: got=%d, want=%d", got, want)
	}
	if got, want := res.FirstValue, uint32(0x2323); got != want {
		t.Fatalf("invalid first value: got=0x%x, want=0x%x", got, want)
	}
	if got, want := drv.status, []bool{true, false}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid status sequence: got=%v, want=%v", got, want)
	}
	if got, want := drv.i, 36; got != want {
		t.Fatalf("invalid sample count: got=%d, want=%d", got, want)
	}
}

func TestTriggerStartWrapCorrection(t *testing.T) {
	// pre-trigger depth covering the whole buffer: the arm position is
	// clamped one word before the end and the post-trigger start
	// pointer wraps below the buffer start.
	samples := append(cycle(12, 1, 2, 3, 4), 5)
	samples = append(samples, cycle(15, 1, 2, 3, 4)...)

	cfg := capture.Config{
		Words:          make([]uint32, 4),
		SamplesPerWord: 4,
		SampleShift:    4,
		PreTrigger:     4,
		Stages: []capture.TriggerStage{
			{Mask: 0x7, Value: 0x5},
		},
	}
	drv := newFakeDriver(t, samples)

	res, err := capture.Run(cfg, drv)
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}

	if res.Aborted {
		t.Fatalf("capture aborted: %#v", res)
	}
	// the raw index (28) exceeds the 16-sample window and is reduced
	// modulo the total sample count.
	if got, want := res.TriggerIndex, uint32(12); got != want {
		t.Fatalf("invalid trigger index: got=%d, want=%d", got, want)
	}
	if !res.Wrapped {
		t.Fatalf("capture did not wrap")
	}
	if got, want := drv.i, 28; got != want {
		t.Fatalf("invalid sample count: got=%d, want=%d", got, want)
	}
}

func TestAbort(t *testing.T) {
	cfg := capture.Config{
		Words:          make([]uint32, 4),
		SamplesPerWord: 4,
		SampleShift:    4,
	}
	drv := newFakeDriver(t, cycle(16, 1, 2, 3, 4))
	drv.abortAt = 5

	res, err := capture.Run(cfg, drv)
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}

	if !res.Aborted {
		t.Fatalf("capture did not abort: %#v", res)
	}
	if got, want := res.Interrupted, uint32(4); got != want {
		t.Fatalf("invalid interrupted index: got=%d, want=%d", got, want)
	}
	if got, want := drv.i, 6; got != want {
		t.Fatalf("abort not taken at the next sample boundary: got=%d, want=%d", got, want)
	}
	if drv.resets != 1 {
		t.Fatalf("invalid reset count: got=%d, want=1", drv.resets)
	}
	if drv.unmasks != 1 {
		t.Fatalf("IRQs left masked after abort")
	}
}

func TestConfigValidation(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  capture.Config
		want string
	}{
		{
			name: "empty-buffer",
			cfg: capture.Config{
				SamplesPerWord: 4,
				SampleShift:    4,
			},
			want: "capture: empty storage buffer",
		},
		{
			name: "narrow-shift",
			cfg: capture.Config{
				Words:          make([]uint32, 4),
				SamplesPerWord: 4,
				SampleShift:    1,
			},
			want: "capture: invalid sample shift 1",
		},
		{
			name: "oversized-geometry",
			cfg: capture.Config{
				Words:          make([]uint32, 4),
				SamplesPerWord: 5,
				SampleShift:    8,
			},
			want: "capture: invalid geometry",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := capture.Run(tc.cfg, newFakeDriver(t, nil))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.HasPrefix(err.Error(), tc.want) {
				t.Fatalf("invalid error: got=%q, want prefix %q", err, tc.want)
			}
		})
	}
}
