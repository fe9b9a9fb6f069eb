// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chanspec packs and unpacks comedi channel references.
//
// A channel reference selects a channel, an input range and an analog
// reference for one sample. On the wire it is a single 32-bit word:
//
//	bits [ 0:16) channel
//	bits [16:24) range index
//	bits [24:26) analog reference
//	bits [26:32) flags
//
// Values are masked, never rejected.
package chanspec // import "github.com/go-lpc/comedi/chanspec"

import (
	"fmt"
	"strings"
)

// Aref is the analog reference of a channel.
type Aref uint8

const (
	Ground Aref = 0 // analog ref = analog ground
	Common Aref = 1 // analog ref = analog common
	Diff   Aref = 2 // analog ref = differential
	Other  Aref = 3 // analog ref = other (undefined)
)

var arefNames = [...]string{
	Ground: "ground",
	Common: "common",
	Diff:   "diff",
	Other:  "other",
}

func (a Aref) String() string {
	return arefNames[a&3]
}

// ParseAref returns the analog reference named s.
func ParseAref(s string) (Aref, error) {
	for i, name := range arefNames {
		if strings.EqualFold(s, name) {
			return Aref(i), nil
		}
	}
	return 0, fmt.Errorf("chanspec: invalid analog reference %q", s)
}

// Flag holds the per-channel flags of a channel reference.
type Flag uint32

const (
	AltFilter Flag = 1 << 26
	AltSource Flag = 1 << 27
	Edge      Flag = 1 << 30
	Invert    Flag = 1 << 31

	Dither   = AltFilter
	Deglitch = AltFilter

	FlagsMask Flag = 0xfc000000
)

var flagNames = []struct {
	f    Flag
	name string
}{
	{AltFilter, "alt_filter"},
	{AltSource, "alt_source"},
	{Edge, "edge"},
	{Invert, "invert"},
}

func (f Flag) String() string {
	if f == 0 {
		return "0"
	}
	var names []string
	for _, v := range flagNames {
		if f&v.f != 0 {
			names = append(names, v.name)
			f &^= v.f
		}
	}
	if f != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(f)))
	}
	return strings.Join(names, "|")
}

// Spec is a packed channel reference.
type Spec uint32

// Pack packs a channel reference.
func Pack(chn uint16, rng uint8, aref Aref, flags Flag) Spec {
	return Spec(uint32(flags&FlagsMask) |
		(uint32(aref)&3)<<24 |
		uint32(rng)<<16 |
		uint32(chn),
	)
}

// Chan returns the channel index.
func (v Spec) Chan() uint16 { return uint16(v & 0xffff) }

// Range returns the range index.
func (v Spec) Range() uint8 { return uint8((v >> 16) & 0xff) }

// Aref returns the analog reference.
func (v Spec) Aref() Aref { return Aref((v >> 24) & 0x3) }

// Flags returns the channel flags.
func (v Spec) Flags() Flag { return Flag(v) & FlagsMask }

func (v Spec) String() string { return Unpack(v).String() }

// Ref is an unpacked channel reference.
type Ref struct {
	Channel uint16
	Range   uint8
	Aref    Aref
	Flags   Flag
}

// Pack returns the packed form of the channel reference.
func (r Ref) Pack() Spec {
	return Pack(r.Channel, r.Range, r.Aref, r.Flags)
}

func (r Ref) String() string {
	o := new(strings.Builder)
	fmt.Fprintf(o, "chan=%d range=%d aref=%v", r.Channel, r.Range, r.Aref)
	if r.Flags != 0 {
		fmt.Fprintf(o, " flags=%v", r.Flags)
	}
	return o.String()
}

// Unpack unpacks a channel reference.
func Unpack(v Spec) Ref {
	return Ref{
		Channel: v.Chan(),
		Range:   v.Range(),
		Aref:    v.Aref(),
		Flags:   v.Flags(),
	}
}

// List packs a list of channels sharing the same range and reference.
func List(rng uint8, aref Aref, chans ...uint16) []Spec {
	o := make([]Spec, len(chans))
	for i, c := range chans {
		o[i] = Pack(c, rng, aref, 0)
	}
	return o
}
