// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/beluga3858/TeensyLogicAnalyzer/board/internal/regs"
)

// fakeBus is a scripted sampler register file. The tick register
// always reports a pending sample clock, the input port replays a
// scripted sample sequence and, once the script is drained, the UART
// reports pending host data so a capture in flight aborts.
type fakeBus struct {
	mu  sync.Mutex
	mem [regs.SAMPLER_SPAN]byte

	id      uint32
	samples []uint32
	i       int
	drained bool
}

func newFakeBus(samples []uint32) *fakeBus {
	return &fakeBus{
		id:      regs.SAMPLER_ID_MAGIC,
		samples: samples,
	}
}

func (bus *fakeBus) ReadAt(p []byte, off int64) (int, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if len(p) != 4 {
		return 0, fmt.Errorf("invalid register read size %d", len(p))
	}

	var v uint32
	switch off {
	case regs.SAMPLER_TICK:
		v = regs.TICK_PENDING
	case regs.SAMPLER_PORT_IN:
		switch {
		case bus.i < len(bus.samples):
			v = bus.samples[bus.i]
			bus.i++
		default:
			bus.drained = true
			v = bus.samples[len(bus.samples)-1]
		}
	case regs.SAMPLER_UART_CSR:
		if bus.drained {
			v = regs.UART_RX_READY
		}
	case regs.SAMPLER_ID:
		v = bus.id
	default:
		v = binary.LittleEndian.Uint32(bus.mem[off : off+4])
	}

	binary.LittleEndian.PutUint32(p, v)
	return len(p), nil
}

func (bus *fakeBus) WriteAt(p []byte, off int64) (int, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if len(p) != 4 {
		return 0, fmt.Errorf("invalid register write size %d", len(p))
	}

	if off == regs.SAMPLER_TICK {
		// write 1 to clear, nothing to store.
		return len(p), nil
	}

	copy(bus.mem[off:off+4], p)
	return len(p), nil
}

func (bus *fakeBus) doneSampling() bool {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return bus.drained
}

func (bus *fakeBus) reg(off int64) uint32 {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return binary.LittleEndian.Uint32(bus.mem[off : off+4])
}

func newTestDevice(t *testing.T, bus *fakeBus) *Device {
	t.Helper()

	dev := &Device{
		msg: log.New(os.Stdout, "board: ", 0),
		dir: t.TempDir(),
		cfg: newConfig(),
	}
	dev.bind(bus)
	return dev
}
