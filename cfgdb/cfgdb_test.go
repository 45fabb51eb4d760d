// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cfgdb

import (
	"context"
	"database/sql/driver"
	"reflect"
	"testing"

	"github.com/beluga3858/TeensyLogicAnalyzer/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open cfgdb: %+v", err)
	}
	defer db.Close()
}

func TestLastSetup(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open cfgdb: %+v", err)
	}
	defer db.Close()

	want := Setup{
		ID:          42,
		Name:        "uart-921600",
		ClockDiv:    52,
		BufferWords: 4096,
		SampleShift: 4,
		PreTrigger:  1024,
	}

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{
			"identifier", "name", "clock_div",
			"buffer_words", "sample_shift", "pre_trigger",
		},
		Values: [][]driver.Value{
			{want.ID, want.Name, want.ClockDiv, want.BufferWords, want.SampleShift, want.PreTrigger},
		},
	}, func(ctx context.Context) error {
		set, err := db.LastSetup(ctx)
		if err != nil {
			t.Fatalf("could not retrieve last setup: %+v", err)
		}

		if got, want := set, want; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid last setup:\ngot= %#v\nwant=%#v", got, want)
		}

		if got, want := set.SamplesPerWord(), uint32(8); got != want {
			t.Fatalf("invalid samples/word: got=%d, want=%d", got, want)
		}
		return nil
	})
}

func TestSetupByName(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open cfgdb: %+v", err)
	}
	defer db.Close()

	want := Setup{
		ID:          7,
		Name:        "spi-glitch",
		ClockDiv:    10,
		BufferWords: 2048,
		SampleShift: 8,
		PreTrigger:  16,
	}

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{
			"identifier", "name", "clock_div",
			"buffer_words", "sample_shift", "pre_trigger",
		},
		Values: [][]driver.Value{
			{want.ID, want.Name, want.ClockDiv, want.BufferWords, want.SampleShift, want.PreTrigger},
		},
	}, func(ctx context.Context) error {
		set, err := db.SetupByName(ctx, "spi-glitch")
		if err != nil {
			t.Fatalf("could not retrieve setup: %+v", err)
		}

		if got, want := set, want; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid setup:\ngot= %#v\nwant=%#v", got, want)
		}
		return nil
	})
}

func TestStages(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open cfgdb: %+v", err)
	}
	defer db.Close()

	want := []Stage{
		{SetupID: 42, Level: 0, Mask: 0x0f, Value: 0x05, Delay: 0},
		{SetupID: 42, Level: 1, Mask: 0x0f, Value: 0x0a, Delay: 100},
	}

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"setup", "level", "trig_mask", "trig_value", "trig_delay"},
		Values: [][]driver.Value{
			{want[0].SetupID, want[0].Level, want[0].Mask, want[0].Value, want[0].Delay},
			{want[1].SetupID, want[1].Level, want[1].Mask, want[1].Value, want[1].Delay},
		},
	}, func(ctx context.Context) error {
		stages, err := db.Stages(ctx, 42)
		if err != nil {
			t.Fatalf("could not retrieve stages: %+v", err)
		}

		if got, want := stages, want; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid stages:\ngot= %#v\nwant=%#v", got, want)
		}
		return nil
	})
}

func TestSetupConfig(t *testing.T) {
	set := Setup{
		ID:          42,
		Name:        "uart-921600",
		ClockDiv:    52,
		BufferWords: 16,
		SampleShift: 4,
		PreTrigger:  4,
	}
	stages := []Stage{
		{SetupID: 42, Level: 0, Mask: 0x7, Value: 0x5, Delay: 2},
	}

	cfg := set.Config(stages)
	if got, want := len(cfg.Words), 16; got != want {
		t.Fatalf("invalid buffer size: got=%d, want=%d", got, want)
	}
	if got, want := cfg.SamplesPerWord, uint32(8); got != want {
		t.Fatalf("invalid samples/word: got=%d, want=%d", got, want)
	}
	if got, want := len(cfg.Stages), 1; got != want {
		t.Fatalf("invalid stages: got=%d, want=%d", got, want)
	}
	if got, want := cfg.Stages[0].Delay, uint32(2); got != want {
		t.Fatalf("invalid stage delay: got=%d, want=%d", got, want)
	}
}
