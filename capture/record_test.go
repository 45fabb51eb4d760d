// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture_test

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/beluga3858/TeensyLogicAnalyzer/capture"
)

func TestRecordRoundTrip(t *testing.T) {
	want := capture.Record{
		SampleShift:    4,
		SamplesPerWord: 4,
		TotalSamples:   96,
		PreTrigger:     2,
		Meta: capture.Result{
			TriggerIndex: 11,
			Wrapped:      true,
			FirstValue:   0x1234,
		},
		Words: []uint32{0x1231, 0x2312, 0x3123, 0x8888, 0x1f19, 0xdead},
	}

	buf := new(bytes.Buffer)
	enc := capture.NewEncoder(buf)
	if err := enc.Encode(&want); err != nil {
		t.Fatalf("could not encode record: %+v", err)
	}

	var got capture.Record
	dec := capture.NewDecoder(buf)
	if err := dec.Decode(&got); err != nil {
		t.Fatalf("could not decode record: %+v", err)
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip failed:\ngot = %#v\nwant= %#v", got, want)
	}

	var eof capture.Record
	if err := dec.Decode(&eof); err != io.EOF {
		t.Fatalf("invalid error at end of stream: %+v", err)
	}
}

func TestRecordStream(t *testing.T) {
	buf := new(bytes.Buffer)
	enc := capture.NewEncoder(buf)
	recs := []capture.Record{
		{
			SampleShift:    4,
			SamplesPerWord: 4,
			TotalSamples:   16,
			Words:          []uint32{0x1231, 0x2312},
		},
		{
			SampleShift:    8,
			SamplesPerWord: 2,
			TotalSamples:   8,
			Meta: capture.Result{
				Interrupted: 4,
				Aborted:     true,
			},
			Words: []uint32{0xcafe0042},
		},
	}
	for i := range recs {
		if err := enc.Encode(&recs[i]); err != nil {
			t.Fatalf("could not encode record %d: %+v", i, err)
		}
	}

	dec := capture.NewDecoder(buf)
	for i := range recs {
		var got capture.Record
		if err := dec.Decode(&got); err != nil {
			t.Fatalf("could not decode record %d: %+v", i, err)
		}
		if !reflect.DeepEqual(got, recs[i]) {
			t.Fatalf("invalid record %d:\ngot = %#v\nwant= %#v", i, got, recs[i])
		}
	}
}

func TestRecordCorruption(t *testing.T) {
	rec := capture.Record{
		SampleShift:    4,
		SamplesPerWord: 4,
		TotalSamples:   16,
		Words:          []uint32{0x1231, 0x2312, 0x3123},
	}

	encode := func() []byte {
		buf := new(bytes.Buffer)
		if err := capture.NewEncoder(buf).Encode(&rec); err != nil {
			t.Fatalf("could not encode record: %+v", err)
		}
		return buf.Bytes()
	}

	for _, tc := range []struct {
		name string
		mod  func(raw []byte) []byte
		want string
	}{
		{
			name: "bad-magic",
			mod: func(raw []byte) []byte {
				raw[0] = 'X'
				return raw
			},
			want: "capture: invalid record magic",
		},
		{
			name: "bad-version",
			mod: func(raw []byte) []byte {
				raw[4] = 0xff
				return raw
			},
			want: "capture: invalid record version",
		},
		{
			name: "flipped-payload",
			mod: func(raw []byte) []byte {
				raw[len(raw)-4] ^= 0x01 // inside the last word
				return raw
			},
			want: "capture: inconsistent CRC",
		},
		{
			name: "flipped-crc",
			mod: func(raw []byte) []byte {
				raw[len(raw)-1] ^= 0x01
				return raw
			},
			want: "capture: inconsistent CRC",
		},
		{
			name: "truncated",
			mod: func(raw []byte) []byte {
				return raw[:len(raw)-6]
			},
			want: "capture: could not read",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			raw := tc.mod(encode())
			var got capture.Record
			err := capture.NewDecoder(bytes.NewReader(raw)).Decode(&got)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.HasPrefix(err.Error(), tc.want) {
				t.Fatalf("invalid error: got=%q, want prefix %q", err, tc.want)
			}
		})
	}
}
