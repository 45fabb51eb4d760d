// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"io"
)

type rwer interface {
	io.ReaderAt
	io.WriterAt
}

type reg32 struct {
	r func() uint32
	w func(v uint32)
}

func newReg32(dev *Device, rw rwer, offset int64) reg32 {
	return reg32{
		r: func() uint32 {
			return dev.readU32(rw, offset)
		},
		w: func(v uint32) {
			dev.writeU32(rw, offset, v)
		},
	}
}

// set ORs bits into the register, clear ANDs them out.
func (reg reg32) set(bits uint32)   { reg.w(reg.r() | bits) }
func (reg reg32) clear(bits uint32) { reg.w(reg.r() &^ bits) }
