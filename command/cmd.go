// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package command describes comedi streaming commands and negotiates
// them with an acquisition engine.
package command // import "github.com/go-lpc/comedi/command"

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-lpc/comedi/chanspec"
)

// Flags holds the command flags.
type Flags uint32

const (
	Priority Flags = 0x00000008 // try to use a real-time interrupt while performing command
	WakeEOS  Flags = 0x00000020 // wake up on end-of-scan events
	Write    Flags = 0x00000040 // command is to perform output
	RawData  Flags = 0x00000080 // raw data, no calibration

	RoundMask    Flags = 0x00030000
	RoundNearest Flags = 0x00000000
	RoundDown    Flags = 0x00010000
	RoundUp      Flags = 0x00020000
	RoundUpNext  Flags = 0x00030000
)

// Round returns the rounding mode of timing arguments.
func (f Flags) Round() Flags { return f & RoundMask }

func (f Flags) String() string {
	var names []string
	for _, v := range []struct {
		f    Flags
		name string
	}{
		{Priority, "priority"},
		{WakeEOS, "wake_eos"},
		{Write, "write"},
		{RawData, "raw_data"},
	} {
		if f&v.f != 0 {
			names = append(names, v.name)
		}
	}
	switch f.Round() {
	case RoundDown:
		names = append(names, "round_down")
	case RoundUp:
		names = append(names, "round_up")
	case RoundUpNext:
		names = append(names, "round_up_next")
	}
	if rest := f &^ (Priority | WakeEOS | Write | RawData | RoundMask); rest != 0 {
		names = append(names, "0x"+strconv.FormatUint(uint64(rest), 16))
	}
	if len(names) == 0 {
		return "0"
	}
	return strings.Join(names, "|")
}

// PhaseID identifies one of the five timing stages of a command.
type PhaseID uint8

const (
	Start PhaseID = iota
	ScanBegin
	Convert
	ScanEnd
	Stop

	NumPhases = 5
)

var phaseNames = [NumPhases]string{
	Start:     "start",
	ScanBegin: "scan_begin",
	Convert:   "convert",
	ScanEnd:   "scan_end",
	Stop:      "stop",
}

func (id PhaseID) String() string {
	if int(id) < len(phaseNames) {
		return phaseNames[id]
	}
	return "phase(" + strconv.Itoa(int(id)) + ")"
}

// Phase is a trigger source selection and its argument.
type Phase struct {
	Src Source `yaml:"src"`
	Arg uint32 `yaml:"arg"`
}

func (p Phase) String() string {
	return fmt.Sprintf("%v(%d)", p.Src, p.Arg)
}

// Cmd describes a streaming acquisition or generation job.
type Cmd struct {
	Subdev uint32
	Flags  Flags

	Start     Phase
	ScanBegin Phase
	Convert   Phase
	ScanEnd   Phase
	Stop      Phase

	ChanList []chanspec.Spec
	DataLen  uint32 // length of the command data buffer, in samples
}

// Phase returns the phase identified by id.
func (cmd *Cmd) Phase(id PhaseID) *Phase {
	switch id {
	case Start:
		return &cmd.Start
	case ScanBegin:
		return &cmd.ScanBegin
	case Convert:
		return &cmd.Convert
	case ScanEnd:
		return &cmd.ScanEnd
	case Stop:
		return &cmd.Stop
	}
	panic(fmt.Errorf("command: invalid phase %v", id))
}

// Clone returns a deep copy of cmd.
func (cmd *Cmd) Clone() *Cmd {
	o := *cmd
	if cmd.ChanList != nil {
		o.ChanList = make([]chanspec.Spec, len(cmd.ChanList))
		copy(o.ChanList, cmd.ChanList)
	}
	return &o
}

// IsWrite returns whether the command performs output.
func (cmd *Cmd) IsWrite() bool { return cmd.Flags&Write != 0 }

// CheckChanList verifies the channel list length matches the scan-end
// count.
func (cmd *Cmd) CheckChanList() error {
	if cmd.ScanEnd.Src != Count {
		return nil
	}
	if got, want := len(cmd.ChanList), int(cmd.ScanEnd.Arg); got != want {
		return fmt.Errorf(
			"command: channel list length (%d) does not match scan_end count (%d)",
			got, want,
		)
	}
	return nil
}

// Diff returns the fields of cmd that differ in o.
func (cmd *Cmd) Diff(o *Cmd) []FieldDiff {
	var diffs []FieldDiff
	for _, f := range fields {
		if f.eq(cmd, o) {
			continue
		}
		diffs = append(diffs, FieldDiff{
			Field: f.id,
			Old:   f.str(cmd),
			New:   f.str(o),
		})
	}
	return diffs
}

// Changed returns the set of fields of cmd that differ in o.
func (cmd *Cmd) Changed(o *Cmd) FieldSet {
	var set FieldSet
	for _, f := range fields {
		if !f.eq(cmd, o) {
			set |= 1 << f.id
		}
	}
	return set
}

func (cmd *Cmd) String() string {
	o := new(strings.Builder)
	o.WriteString("{")
	for i, f := range fields {
		if i > 0 {
			o.WriteString(", ")
		}
		fmt.Fprintf(o, "%s: %s", f.id, f.str(cmd))
	}
	o.WriteString("}")
	return o.String()
}
