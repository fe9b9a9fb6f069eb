// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dds generates periodic waveforms by direct digital synthesis.
//
// A 32-bit phase accumulator is advanced by a fixed amount at every update
// and its upper bits index a lookup table holding one period of the
// waveform, in raw DAC units.
package dds // import "github.com/go-lpc/comedi/dds"

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// Waveform identifies the shape of a generated signal.
type Waveform uint8

const (
	Sine Waveform = iota
	RampUp
	RampDown
	Triangle
	Square
	Cycloid
	Blancmange
)

var waveNames = [...]string{
	Sine:       "sine",
	RampUp:     "ramp_up",
	RampDown:   "ramp_down",
	Triangle:   "triangle",
	Square:     "square",
	Cycloid:    "cycloid",
	Blancmange: "blancmange",
}

func (w Waveform) String() string {
	if int(w) < len(waveNames) {
		return waveNames[w]
	}
	return fmt.Sprintf("waveform(%d)", uint8(w))
}

// Waveforms returns the names of all known waveforms.
func Waveforms() []string {
	return append([]string(nil), waveNames[:]...)
}

// ParseWaveform returns the waveform named name.
func ParseWaveform(name string) (Waveform, error) {
	for i, v := range waveNames {
		if strings.EqualFold(v, name) {
			return Waveform(i), nil
		}
	}
	return 0, fmt.Errorf("dds: unknown waveform %q", name)
}

// MaxLen is the maximum number of entries of a waveform table.
const MaxLen = 1 << 16

// Generator produces interleaved little-endian samples for a set of
// channels, all carrying the same waveform.
//
// Generator implements io.Reader. Reads return whole scans unless the
// destination buffer is too small, in which case the rest of the scan is
// returned by the next read.
type Generator struct {
	wave  Waveform
	table []uint32
	adder uint32
	acc   uint32

	nchans int
	ssize  int
	scans  int64 // remaining scans, <0 when unbounded

	scan    []byte
	pending []byte
}

// New creates a waveform generator.
func New(w Waveform, opts ...Option) (*Generator, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if int(w) >= len(waveNames) {
		return nil, fmt.Errorf("dds: invalid waveform %v", w)
	}
	switch {
	case cfg.update <= 0:
		return nil, fmt.Errorf("dds: invalid update frequency %v", cfg.update)
	case cfg.freq <= 0:
		return nil, fmt.Errorf("dds: invalid waveform frequency %v", cfg.freq)
	case cfg.freq >= cfg.update:
		return nil, fmt.Errorf("dds: waveform frequency (%v) not below update frequency (%v)", cfg.freq, cfg.update)
	case cfg.nchans <= 0:
		return nil, fmt.Errorf("dds: invalid number of channels %d", cfg.nchans)
	}
	switch cfg.ssize {
	case 2, 4:
	default:
		return nil, fmt.Errorf("dds: invalid sample size %d", cfg.ssize)
	}
	if cfg.size <= 1 || cfg.size > MaxLen {
		return nil, fmt.Errorf("dds: invalid waveform length %d", cfg.size)
	}

	var (
		shift   = uint(math.Round(math.Log2(float64(cfg.size))))
		size    = 1 << shift
		maxData = cfg.max
		limit   = uint32(math.MaxUint16)
	)
	if cfg.ssize == 4 {
		limit = math.MaxUint32
	}
	if maxData == 0 || maxData > limit {
		maxData = limit
	}

	gen := &Generator{
		wave:   w,
		table:  makeTable(w, size, cfg.amp, cfg.offset, maxData),
		adder:  uint32(cfg.freq / cfg.update * float64(uint64(1)<<16) * float64(size)),
		nchans: cfg.nchans,
		ssize:  cfg.ssize,
		scans:  -1,
	}
	if cfg.scans > 0 {
		gen.scans = cfg.scans
	}
	gen.scan = make([]byte, gen.nchans*gen.ssize)
	return gen, nil
}

// Waveform returns the generated waveform.
func (gen *Generator) Waveform() Waveform { return gen.wave }

// Table returns one period of the waveform.
func (gen *Generator) Table() []uint32 { return gen.table }

// Adder returns the phase increment applied at every update.
func (gen *Generator) Adder() uint32 { return gen.adder }

// ScanSize returns the number of bytes of a scan.
func (gen *Generator) ScanSize() int { return len(gen.scan) }

// Next returns the next value of the waveform and advances the phase.
func (gen *Generator) Next() uint32 {
	mask := uint32(len(gen.table) - 1)
	v := gen.table[(gen.acc>>16)&mask]
	gen.acc += gen.adder
	return v
}

// Reset rewinds the phase accumulator.
func (gen *Generator) Reset() {
	gen.acc = 0
	gen.pending = nil
}

// Read implements io.Reader.
// It returns io.EOF once the requested number of scans has been produced.
func (gen *Generator) Read(p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		if len(gen.pending) == 0 {
			if gen.scans == 0 {
				break
			}
			gen.fill()
			gen.pending = gen.scan
		}
		m := copy(p, gen.pending)
		gen.pending = gen.pending[m:]
		p = p[m:]
		n += m
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (gen *Generator) fill() {
	v := gen.Next()
	for i := 0; i < gen.nchans; i++ {
		beg := i * gen.ssize
		switch gen.ssize {
		case 2:
			binary.LittleEndian.PutUint16(gen.scan[beg:], uint16(v))
		case 4:
			binary.LittleEndian.PutUint32(gen.scan[beg:], v)
		}
	}
	if gen.scans > 0 {
		gen.scans--
	}
}

var _ io.Reader = (*Generator)(nil)

func makeTable(w Waveform, size int, amp, ofs float64, maxData uint32) []uint32 {
	var (
		vs = make([]float64, size)
		n  = float64(size)
	)
	switch w {
	case Sine:
		half := 0.5 * amp
		if ofs < half {
			// unipolar range.
			ofs = half
		}
		for i := range vs {
			vs[i] = ofs + half*math.Cos(2*math.Pi*float64(i)/n)
		}
	case RampUp:
		for i := range vs {
			vs[i] = ofs + amp*float64(i)/n
		}
	case RampDown:
		for i := range vs {
			vs[i] = ofs + amp*float64(size-1-i)/n
		}
	case Triangle:
		for i := range vs {
			vs[i] = ofs + amp*2*triangle(float64(i)/n)
		}
	case Square:
		for i := range vs {
			vs[i] = ofs
			if i >= size/2 {
				vs[i] += amp
			}
		}
	case Cycloid:
		const subscale = 2
		var (
			prev = -1
			last = ofs
		)
		for h := 0; h < size*subscale; h++ {
			t := float64(h) * 2 * math.Pi / float64(size*subscale)
			x := t - math.Sin(t)
			j := int(x * n / (2 * math.Pi))
			if j <= prev || j >= size {
				continue
			}
			v := ofs + amp*(1-math.Cos(t))/2
			// hold the last value over the indices skipped by the
			// steep part of the arch.
			for k := prev + 1; k < j; k++ {
				vs[k] = last
			}
			vs[j] = v
			prev, last = j, v
		}
		for k := prev + 1; k < size; k++ {
			vs[k] = last
		}
	case Blancmange:
		for i := range vs {
			b := 0.0
			for k := 0; k < 16; k++ {
				x := float64(i) / n * float64(uint(1)<<k)
				x -= math.Floor(x)
				b += triangle(x) / float64(uint(1)<<k)
			}
			vs[i] = ofs + amp*1.5*b
		}
	}

	table := make([]uint32, size)
	for i, v := range vs {
		v = math.Round(v)
		switch {
		case v < 0:
			v = 0
		case v > float64(maxData):
			v = float64(maxData)
		}
		table[i] = uint32(v)
	}
	return table
}

// triangle is defined over [0,1].
func triangle(x float64) float64 {
	if x > 0.5 {
		return 1 - x
	}
	return x
}
