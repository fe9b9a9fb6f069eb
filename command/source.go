// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package command

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Source is a bitset of trigger sources for a command phase.
type Source uint32

const (
	None   Source = 0x001 // never trigger
	Now    Source = 0x002 // trigger now + N ns
	Follow Source = 0x004 // trigger when previous phase ends
	Time   Source = 0x008 // trigger at time N ns
	Timer  Source = 0x010 // trigger at rate N ns
	Count  Source = 0x020 // trigger when count reaches N
	Ext    Source = 0x040 // trigger on external signal N
	Int    Source = 0x080 // trigger on comedi-internal signal N
	Other  Source = 0x100 // driver defined

	Any     Source = 0xffffffff
	Invalid Source = 0
)

var srcNames = []struct {
	src  Source
	name string
}{
	{None, "none"},
	{Now, "now"},
	{Follow, "follow"},
	{Time, "time"},
	{Timer, "timer"},
	{Count, "count"},
	{Ext, "ext"},
	{Int, "int"},
	{Other, "other"},
}

func (src Source) String() string {
	switch src {
	case Invalid:
		return "invalid"
	case Any:
		return "any"
	}
	var names []string
	for _, v := range srcNames {
		if src&v.src != 0 {
			names = append(names, v.name)
			src &^= v.src
		}
	}
	if src != 0 {
		names = append(names, "0x"+strconv.FormatUint(uint64(src), 16))
	}
	return strings.Join(names, "|")
}

// ParseSource parses a '|' separated list of source names.
func ParseSource(s string) (Source, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "invalid":
		return Invalid, nil
	case "any":
		return Any, nil
	}

	var src Source
loop:
	for _, tok := range strings.Split(s, "|") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		for _, v := range srcNames {
			if v.name == tok {
				src |= v.src
				continue loop
			}
		}
		return Invalid, fmt.Errorf("command: invalid trigger source %q", tok)
	}
	return src, nil
}

// Single returns whether exactly one source is selected.
func (src Source) Single() bool {
	return bits.OnesCount32(uint32(src)) == 1
}

// Lowest returns the lowest selected source, or Invalid.
func (src Source) Lowest() Source {
	return src & -src
}

// MarshalText implements encoding.TextMarshaler.
func (src Source) MarshalText() ([]byte, error) {
	return []byte(src.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (src *Source) UnmarshalText(p []byte) error {
	v, err := ParseSource(string(p))
	if err != nil {
		return err
	}
	*src = v
	return nil
}
