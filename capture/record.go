// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/beluga3858/TeensyLogicAnalyzer/internal/crc16"
	"golang.org/x/xerrors"
)

const (
	recMagic   = "CAP\x00"
	recVersion = 1

	flagWrapped = 1 << 0
	flagAborted = 1 << 1

	// maxRecWords bounds the word count announced by a record header,
	// so a corrupted stream can not drive an arbitrary allocation.
	maxRecWords = 1 << 24
)

// Record is one complete capture: the buffer geometry, the capture
// metadata and the raw storage words.
type Record struct {
	SampleShift    uint8
	SamplesPerWord uint8
	TotalSamples   uint32
	PreTrigger     uint32

	Meta  Result
	Words []uint32
}

// Encoder writes capture records to an output stream.
// Encoder computes the CRC-16 checksum on the fly and appends it
// at the end of each record.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
	crc crc16.Hash16
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

func (enc *Encoder) crcw(p []byte) {
	_, _ = enc.crc.Write(p) // can not fail.
}

func (enc *Encoder) reset() {
	enc.crc.Reset()
}

// Encode writes the capture record to the stream, computes the
// corresponding CRC-16 checksum on the fly and appends it to the
// stream.
func (enc *Encoder) Encode(rec *Record) error {
	if rec == nil {
		return nil
	}

	enc.reset()

	enc.write([]byte(recMagic))
	if enc.err != nil {
		return fmt.Errorf("capture: could not write record magic: %w", enc.err)
	}

	enc.writeU8(recVersion)
	enc.writeU8(rec.SampleShift)
	enc.writeU8(rec.SamplesPerWord)

	var flags uint8
	if rec.Meta.Wrapped {
		flags |= flagWrapped
	}
	if rec.Meta.Aborted {
		flags |= flagAborted
	}
	enc.writeU8(flags)

	enc.writeU32(rec.TotalSamples)
	enc.writeU32(rec.PreTrigger)
	enc.writeU32(rec.Meta.TriggerIndex)
	enc.writeU32(rec.Meta.Interrupted)
	enc.writeU32(rec.Meta.FirstValue)

	enc.writeU32(uint32(len(rec.Words)))
	for _, w := range rec.Words {
		enc.writeU32(w)
	}

	crc := enc.crc.Sum16()
	enc.writeU16(crc)

	return enc.err
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
	enc.crcw(p)
}

func (enc *Encoder) writeU8(v uint8) {
	const n = 1
	enc.buf[0] = v
	enc.write(enc.buf[:n])
}

func (enc *Encoder) writeU16(v uint16) {
	const n = 2
	binary.BigEndian.PutUint16(enc.buf[:n], v)
	enc.write(enc.buf[:n])
}

func (enc *Encoder) writeU32(v uint32) {
	const n = 4
	binary.BigEndian.PutUint32(enc.buf[:n], v)
	enc.write(enc.buf[:n])
}

// Decoder reads (and validates) capture records from an underlying
// data source. Decoder computes CRC-16 checksums on the fly and
// checks them against the record trailer.
type Decoder struct {
	r   io.Reader
	buf []byte
	err error
	crc crc16.Hash16
}

// NewDecoder creates a decoder that reads and validates records from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

func (dec *Decoder) crcw(p []byte) {
	_, _ = dec.crc.Write(p) // can not fail.
}

func (dec *Decoder) reset() {
	dec.crc.Reset()
}

// Decode reads the next capture record from the stream into rec.
// It returns io.EOF when the stream is exhausted.
func (dec *Decoder) Decode(rec *Record) error {
	dec.reset()

	dec.load(4)
	if dec.err != nil {
		if xerrors.Is(dec.err, io.EOF) {
			return io.EOF
		}
		return xerrors.Errorf("capture: could not read record magic: %w", dec.err)
	}
	if string(dec.buf[:4]) != recMagic {
		return xerrors.Errorf("capture: invalid record magic (got=%q)", dec.buf[:4])
	}
	dec.crcw(dec.buf[:4])

	version := dec.readU8()
	if dec.err != nil {
		return xerrors.Errorf("capture: could not read record version: %w", dec.err)
	}
	if version != recVersion {
		return xerrors.Errorf(
			"capture: invalid record version (got=%d, want=%d)",
			version, recVersion,
		)
	}

	rec.SampleShift = dec.readU8()
	rec.SamplesPerWord = dec.readU8()
	flags := dec.readU8()

	rec.TotalSamples = dec.readU32()
	rec.PreTrigger = dec.readU32()
	rec.Meta.TriggerIndex = dec.readU32()
	rec.Meta.Interrupted = dec.readU32()
	rec.Meta.FirstValue = dec.readU32()
	rec.Meta.Wrapped = flags&flagWrapped != 0
	rec.Meta.Aborted = flags&flagAborted != 0

	nwords := dec.readU32()
	if dec.err != nil {
		return xerrors.Errorf("capture: could not read record header: %w", dec.err)
	}
	if nwords > maxRecWords {
		return xerrors.Errorf("capture: invalid record size (nwords=%d)", nwords)
	}

	rec.Words = rec.Words[:0]
	for i := uint32(0); i < nwords; i++ {
		rec.Words = append(rec.Words, dec.readU32())
	}
	if dec.err != nil {
		if xerrors.Is(dec.err, io.EOF) {
			dec.err = io.ErrUnexpectedEOF
		}
		return xerrors.Errorf("capture: could not read record payload: %w", dec.err)
	}

	var (
		compCRC = dec.crc.Sum16()
		recvCRC = dec.readU16crc()
	)
	if dec.err != nil {
		return xerrors.Errorf("capture: could not read record CRC-16: %w", dec.err)
	}
	if compCRC != recvCRC {
		return xerrors.Errorf(
			"capture: inconsistent CRC: recv=0x%04x comp=0x%04x",
			recvCRC, compCRC,
		)
	}

	return dec.err
}

func (dec *Decoder) readU8() uint8 {
	dec.load(1)
	if dec.err != nil {
		return 0
	}
	dec.crcw(dec.buf[:1])
	return dec.buf[0]
}

func (dec *Decoder) readU32() uint32 {
	const n = 4
	dec.load(n)
	if dec.err != nil {
		return 0
	}
	dec.crcw(dec.buf[:n])
	return binary.BigEndian.Uint32(dec.buf[:n])
}

// readU16crc reads the record trailer checksum, which is not part of
// the checksummed stream.
func (dec *Decoder) readU16crc() uint16 {
	const n = 2
	dec.load(n)
	if dec.err != nil {
		return 0
	}
	return binary.BigEndian.Uint16(dec.buf[:n])
}

func (dec *Decoder) load(n int) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, dec.buf[:n])
}
