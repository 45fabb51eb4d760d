// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs holds the register map of the sampler block.
package regs // import "github.com/beluga3858/TeensyLogicAnalyzer/board/internal/regs"

// Sampler block: physical base address and span of the memory-mapped
// register file.
const (
	SAMPLER_BASE = 0x4000_8000
	SAMPLER_SPAN = 0x40
)

// Register byte offsets from the sampler base.
const (
	SAMPLER_PORT_IN  = 0x00 // parallel input port, one channel per bit
	SAMPLER_TICK     = 0x04 // sample-clock tick flag, write 1 to clear
	SAMPLER_CTRL     = 0x08 // run, status LED, IRQ enable
	SAMPLER_STATE    = 0x0c // sampler state, read-only
	SAMPLER_CLK_DIV  = 0x10 // sample-clock divider
	SAMPLER_UART_CSR = 0x14 // host UART control/status
	SAMPLER_ID       = 0x18 // block identifier
)

// SAMPLER_CTRL bits.
const (
	CTRL_RUN    = 1 << 0
	CTRL_STATUS = 1 << 1
	CTRL_IRQ_EN = 1 << 2
)

// SAMPLER_TICK bits.
const (
	TICK_PENDING = 1 << 0
)

// SAMPLER_UART_CSR bits.
const (
	UART_RX_READY = 1 << 0
)

// SAMPLER_ID value for the sampler block revision this package drives.
const (
	SAMPLER_ID_MAGIC = 0x7e5710a
)
