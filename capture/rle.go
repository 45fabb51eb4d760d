// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

// ring is the circular storage the encoder commits words into. The
// cursor wraps lazily: it may sit at len(words) until the next commit,
// so a capture that fills the buffer exactly once terminates with the
// wrap flag still clear.
type ring struct {
	words   []uint32
	anyData uint32

	cur      int
	wrapped  bool
	first    uint32
	hasFirst bool
}

func (r *ring) commit(w uint32) {
	if r.cur == len(r.words) {
		r.cur = 0
		r.wrapped = true
	}
	if r.wrapped && !r.hasFirst {
		// the word about to be overwritten is the logical first word
		// of the window: preserve its value while it still carries
		// real data, not just an RLE continuation.
		if v := r.words[r.cur]; v&r.anyData != 0 {
			r.first = v
			r.hasFirst = true
		}
	}
	r.words[r.cur] = w
	r.cur++
}

// top returns the most recently committed word.
func (r *ring) top() uint32 {
	return r.words[r.cur-1]
}

// patch rewrites the most recently committed word. Used when an RLE
// count keeps growing after its slot reached storage.
func (r *ring) patch(w uint32) {
	r.words[r.cur-1] = w
}

// rleEncoder folds the raw sample stream into packed storage words,
// collapsing runs of identical values into marker+count slots.
//
// A slot is SampleShift bits wide; its top bit is reserved for the RLE
// marker, which makes the top channel of the configured width unusable
// for real data. Samples are packed most significant slot first, so
// the earliest sample of a word ends up in its highest slot.
type rleEncoder struct {
	ring *ring

	shift uint32
	spw   uint32
	data  uint32 // per-slot data mask (marker bit excluded)
	flag  uint32 // RLE marker slot pattern

	work   uint32 // word being assembled
	room   uint32 // slots remaining in work
	last   uint32
	rle    bool // current low slot holds an in-flight run count
	inRing bool // the count slot is already committed; increments patch storage
}

// encode feeds one sample, already masked to the data width. It
// reports whether the host-pending poll may run this sample period:
// the poll is skipped while a run count is maintained in committed
// storage, where the sample budget has no room for it.
func (enc *rleEncoder) encode(v uint32) bool {
	switch {
	case v != enc.last:
		enc.last = v
		enc.rle = false
		enc.inRing = false
		enc.pack(v)

	case enc.rle:
		return enc.repeat(v)

	default:
		// first repeat: open a run with a zero count.
		enc.rle = true
		enc.pack(enc.flag)
		enc.inRing = enc.room == enc.spw
	}
	return true
}

// repeat grows the current run by one sample. A saturated count
// force-closes the run: the sample is packed as if the value had
// changed, and the repeat after it opens a fresh run.
func (enc *rleEncoder) repeat(v uint32) bool {
	if enc.inRing {
		w := enc.ring.top()
		if w&enc.data == enc.data {
			enc.rle = false
			enc.inRing = false
			enc.pack(v)
			return true
		}
		enc.ring.patch(w + 1)
		return false
	}
	if enc.work&enc.data == enc.data {
		enc.rle = false
		enc.pack(v)
		return true
	}
	enc.work++
	return true
}

func (enc *rleEncoder) pack(v uint32) {
	enc.work = enc.work<<enc.shift + v
	enc.room--
	if enc.room == 0 {
		enc.ring.commit(enc.work)
		enc.work = 0
		enc.room = enc.spw
	}
}
