// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crc16 implements the 16-bit cyclic redundancy check
// (CRC-16/CCITT-FALSE) used to checksum capture records.
package crc16 // import "github.com/beluga3858/TeensyLogicAnalyzer/internal/crc16"

import "hash"

const (
	// Size of a CRC-16 checksum in bytes.
	Size = 2

	poly  = 0x1021
	init0 = 0xFFFF
)

// Table is a 256-entry table representing the polynomial for efficient
// processing.
type Table [256]uint16

var ccittFalse = makeTable(poly)

func makeTable(poly uint16) *Table {
	t := new(Table)
	for i := range t {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// Hash16 is the common interface implemented by all 16-bit hash functions.
type Hash16 interface {
	hash.Hash
	Sum16() uint16
}

// New creates a new Hash16 computing the CRC-16 checksum using the
// polynomial represented by the Table. A nil Table selects the default
// CCITT polynomial.
func New(tab *Table) Hash16 {
	if tab == nil {
		tab = ccittFalse
	}
	return &digest{crc: init0, tab: tab}
}

type digest struct {
	crc uint16
	tab *Table
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 1 }
func (d *digest) Reset()         { d.crc = init0 }

func (d *digest) Write(p []byte) (int, error) {
	crc := d.crc
	for _, v := range p {
		crc = crc<<8 ^ d.tab[byte(crc>>8)^v]
	}
	d.crc = crc
	return len(p), nil
}

func (d *digest) Sum16() uint16 { return d.crc }

func (d *digest) Sum(in []byte) []byte {
	s := d.Sum16()
	return append(in, byte(s>>8), byte(s))
}
