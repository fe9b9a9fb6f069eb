// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ringbuf tracks producer and consumer byte counters over a
// fixed-size memory-mapped circular buffer.
//
// Counters are unsigned 32-bit values that wrap around.
// The number of unread bytes is always computed as write-read modulo 2^32
// and must never exceed the capacity of the buffer.
package ringbuf // import "github.com/go-lpc/comedi/ringbuf"

import (
	"errors"
	"fmt"
)

var (
	ErrDesync      = errors.New("ringbuf: buffer desync")
	ErrInvalidated = errors.New("ringbuf: buffer invalidated")
	ErrOverrun     = errors.New("ringbuf: acknowledge past available bytes")
)

// DesyncError reports a consumer that fell behind the producer's wrap.
type DesyncError struct {
	Capacity uint32
	Write    uint32
	Read     uint32
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf(
		"ringbuf: buffer desync (capacity=%d, write=%d, read=%d, unread=%d)",
		e.Capacity, e.Write, e.Read, e.Write-e.Read,
	)
}

func (e *DesyncError) Is(target error) bool { return target == ErrDesync }

// Direction is the data flow direction of a buffer.
type Direction uint8

const (
	Input  Direction = iota // engine produces, caller consumes
	Output                  // caller produces, engine consumes
)

func (dir Direction) String() string {
	switch dir {
	case Input:
		return "input"
	case Output:
		return "output"
	}
	return fmt.Sprintf("direction(%d)", uint8(dir))
}

// Span is a contiguous byte range of the mapped buffer.
type Span struct {
	Offset uint32
	Len    uint32
}

// End returns the offset one past the last byte of the span.
func (s Span) End() uint32 { return s.Offset + s.Len }

// Tracker tracks the write and read counters of a ring buffer.
//
// The physical read and write offsets are kept alongside the counters,
// so the capacity need not be a power of two.
type Tracker struct {
	size uint32
	dir  Direction

	wr   uint32 // bytes produced
	rd   uint32 // bytes consumed
	woff uint32 // physical write offset
	roff uint32 // physical read offset

	valid bool
}

// New returns a tracker for a buffer of size bytes.
func New(size uint32, dir Direction) *Tracker {
	return &Tracker{size: size, dir: dir, valid: size > 0}
}

// Capacity returns the size of the buffer in bytes.
func (t *Tracker) Capacity() uint32 { return t.size }

func (t *Tracker) Direction() Direction { return t.dir }

// Valid returns whether the tracker may still be used.
func (t *Tracker) Valid() bool { return t.valid }

// Counters returns the raw write and read counters.
func (t *Tracker) Counters() (write, read uint32) { return t.wr, t.rd }

// Available returns the number of produced but not yet consumed bytes.
func (t *Tracker) Available() (uint32, error) {
	if !t.valid {
		return 0, ErrInvalidated
	}
	n := t.wr - t.rd
	if n > t.size {
		return 0, &DesyncError{Capacity: t.size, Write: t.wr, Read: t.rd}
	}
	return n, nil
}

// Free returns the number of bytes that may be produced.
func (t *Tracker) Free() (uint32, error) {
	n, err := t.Available()
	if err != nil {
		return 0, err
	}
	return t.size - n, nil
}

// ReadWindow returns the spans holding the next min(max, Available())
// unread bytes.
func (t *Tracker) ReadWindow(max uint32) ([]Span, error) {
	n, err := t.Available()
	if err != nil {
		return nil, err
	}
	return t.window(t.roff, min(max, n)), nil
}

// WriteWindow returns the spans where the next min(max, Free()) bytes
// may be produced.
func (t *Tracker) WriteWindow(max uint32) ([]Span, error) {
	n, err := t.Free()
	if err != nil {
		return nil, err
	}
	return t.window(t.woff, min(max, n)), nil
}

func (t *Tracker) window(off, n uint32) []Span {
	switch {
	case n == 0:
		return nil
	case uint64(off)+uint64(n) <= uint64(t.size):
		return []Span{{Offset: off, Len: n}}
	default:
		p1 := t.size - off
		return []Span{
			{Offset: off, Len: p1},
			{Offset: 0, Len: n - p1},
		}
	}
}

// AckRead marks n bytes as consumed.
func (t *Tracker) AckRead(n uint32) error {
	avail, err := t.Available()
	if err != nil {
		return err
	}
	if n > avail {
		return fmt.Errorf("%w (n=%d, available=%d)", ErrOverrun, n, avail)
	}
	t.rd += n
	t.roff = t.advance(t.roff, n)
	return nil
}

// AckWrite marks n bytes as produced by the caller.
func (t *Tracker) AckWrite(n uint32) error {
	free, err := t.Free()
	if err != nil {
		return err
	}
	if n > free {
		return fmt.Errorf("%w (n=%d, free=%d)", ErrOverrun, n, free)
	}
	t.wr += n
	t.woff = t.advance(t.woff, n)
	return nil
}

// Advance records n bytes produced by the engine.
// A producer moving past the capacity is reported by the next call to
// Available.
func (t *Tracker) Advance(n uint32) error {
	if !t.valid {
		return ErrInvalidated
	}
	t.wr += n
	t.woff = t.advance(t.woff, n)
	return nil
}

// Consume records n bytes consumed by the engine.
func (t *Tracker) Consume(n uint32) error {
	return t.AckRead(n)
}

// Sync reconciles the tracker with the number of unread bytes reported by
// the engine.
//
// For an input buffer, the write counter is moved to read+unread.
// For an output buffer, the read counter is moved to write-unread.
func (t *Tracker) Sync(unread uint32) error {
	if !t.valid {
		return ErrInvalidated
	}
	switch t.dir {
	case Input:
		cur := t.wr - t.rd
		if unread < cur {
			return fmt.Errorf("ringbuf: producer moved backward (unread=%d, tracked=%d)", unread, cur)
		}
		return t.Advance(unread - cur)
	default:
		cur := t.wr - t.rd
		if unread > cur {
			return fmt.Errorf("ringbuf: consumer moved backward (unread=%d, tracked=%d)", unread, cur)
		}
		return t.Consume(cur - unread)
	}
}

func (t *Tracker) advance(off, n uint32) uint32 {
	if t.size == 0 {
		return 0
	}
	return uint32((uint64(off) + uint64(n)) % uint64(t.size))
}

// Invalidate marks the tracker as unusable.
func (t *Tracker) Invalidate() { t.valid = false }

// Reset zeroes the counters and revalidates the tracker.
func (t *Tracker) Reset() {
	t.wr = 0
	t.rd = 0
	t.woff = 0
	t.roff = 0
	t.valid = t.size > 0
}

func min(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
