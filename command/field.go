// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Field identifies a field of a command.
type Field uint8

const (
	FieldSubdev Field = iota
	FieldFlags
	FieldStartSrc
	FieldStartArg
	FieldScanBeginSrc
	FieldScanBeginArg
	FieldConvertSrc
	FieldConvertArg
	FieldScanEndSrc
	FieldScanEndArg
	FieldStopSrc
	FieldStopArg
	FieldChanList
	FieldDataLen

	numFields
)

var fieldNames = [numFields]string{
	FieldSubdev:       "subdev",
	FieldFlags:        "flags",
	FieldStartSrc:     "start_src",
	FieldStartArg:     "start_arg",
	FieldScanBeginSrc: "scan_begin_src",
	FieldScanBeginArg: "scan_begin_arg",
	FieldConvertSrc:   "convert_src",
	FieldConvertArg:   "convert_arg",
	FieldScanEndSrc:   "scan_end_src",
	FieldScanEndArg:   "scan_end_arg",
	FieldStopSrc:      "stop_src",
	FieldStopArg:      "stop_arg",
	FieldChanList:     "chanlist",
	FieldDataLen:      "data_len",
}

func (f Field) String() string {
	if f < numFields {
		return fieldNames[f]
	}
	return "field(" + strconv.Itoa(int(f)) + ")"
}

// SrcField returns the source field of a phase.
func SrcField(id PhaseID) Field { return FieldStartSrc + Field(2*id) }

// ArgField returns the argument field of a phase.
func ArgField(id PhaseID) Field { return FieldStartArg + Field(2*id) }

// FieldSet is a set of command fields.
type FieldSet uint32

// Has returns whether f is in the set.
func (set FieldSet) Has(f Field) bool { return set&(1<<f) != 0 }

// Fields returns the fields of the set, in declaration order.
func (set FieldSet) Fields() []Field {
	var o []Field
	for f := Field(0); f < numFields; f++ {
		if set.Has(f) {
			o = append(o, f)
		}
	}
	return o
}

func (set FieldSet) String() string {
	fs := set.Fields()
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.String()
	}
	return "[" + strings.Join(names, ",") + "]"
}

// Fields returns the set made of the provided fields.
func Fields(fs ...Field) FieldSet {
	var set FieldSet
	for _, f := range fs {
		set |= 1 << f
	}
	return set
}

// FieldDiff describes a changed command field.
type FieldDiff struct {
	Field Field
	Old   string
	New   string
}

func (d FieldDiff) String() string {
	return fmt.Sprintf("%s: %s -> %s", d.Field, d.Old, d.New)
}

// field is an entry of the static command field table.
type field struct {
	id  Field
	eq  func(a, b *Cmd) bool
	str func(cmd *Cmd) string
}

func u32Field(id Field, get func(cmd *Cmd) uint32) field {
	return field{
		id:  id,
		eq:  func(a, b *Cmd) bool { return get(a) == get(b) },
		str: func(cmd *Cmd) string { return strconv.FormatUint(uint64(get(cmd)), 10) },
	}
}

func srcField(id Field, get func(cmd *Cmd) Source) field {
	return field{
		id:  id,
		eq:  func(a, b *Cmd) bool { return get(a) == get(b) },
		str: func(cmd *Cmd) string { return get(cmd).String() },
	}
}

var fields = [numFields]field{
	u32Field(FieldSubdev, func(cmd *Cmd) uint32 { return cmd.Subdev }),
	{
		id:  FieldFlags,
		eq:  func(a, b *Cmd) bool { return a.Flags == b.Flags },
		str: func(cmd *Cmd) string { return cmd.Flags.String() },
	},
	srcField(FieldStartSrc, func(cmd *Cmd) Source { return cmd.Start.Src }),
	u32Field(FieldStartArg, func(cmd *Cmd) uint32 { return cmd.Start.Arg }),
	srcField(FieldScanBeginSrc, func(cmd *Cmd) Source { return cmd.ScanBegin.Src }),
	u32Field(FieldScanBeginArg, func(cmd *Cmd) uint32 { return cmd.ScanBegin.Arg }),
	srcField(FieldConvertSrc, func(cmd *Cmd) Source { return cmd.Convert.Src }),
	u32Field(FieldConvertArg, func(cmd *Cmd) uint32 { return cmd.Convert.Arg }),
	srcField(FieldScanEndSrc, func(cmd *Cmd) Source { return cmd.ScanEnd.Src }),
	u32Field(FieldScanEndArg, func(cmd *Cmd) uint32 { return cmd.ScanEnd.Arg }),
	srcField(FieldStopSrc, func(cmd *Cmd) Source { return cmd.Stop.Src }),
	u32Field(FieldStopArg, func(cmd *Cmd) uint32 { return cmd.Stop.Arg }),
	{
		id: FieldChanList,
		eq: func(a, b *Cmd) bool {
			if len(a.ChanList) != len(b.ChanList) {
				return false
			}
			for i := range a.ChanList {
				if a.ChanList[i] != b.ChanList[i] {
					return false
				}
			}
			return true
		},
		str: func(cmd *Cmd) string {
			o := make([]string, len(cmd.ChanList))
			for i, v := range cmd.ChanList {
				o[i] = "0x" + strconv.FormatUint(uint64(v), 16)
			}
			return "[" + strings.Join(o, " ") + "]"
		},
	},
	u32Field(FieldDataLen, func(cmd *Cmd) uint32 { return cmd.DataLen }),
}
