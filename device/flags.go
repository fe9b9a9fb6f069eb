// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"strings"
)

// Flags describes the capabilities and the status of a subdevice.
type Flags uint32

const (
	SDFBusy           Flags = 0x0001 // device is busy
	SDFBusyOwner      Flags = 0x0002 // device is busy with your job
	SDFLocked         Flags = 0x0004 // subdevice is locked
	SDFLockOwner      Flags = 0x0008 // you own lock
	SDFMaxData        Flags = 0x0010 // maxdata depends on channel
	SDFFlags          Flags = 0x0020 // flags depend on channel
	SDFRangeType      Flags = 0x0040 // range type depends on channel
	SDFCmd            Flags = 0x1000 // can do commands
	SDFSoftCalibrated Flags = 0x2000 // subdevice uses software calibration
	SDFCmdWrite       Flags = 0x4000 // can do output commands
	SDFCmdRead        Flags = 0x8000 // can do input commands

	SDFReadable Flags = 0x00010000 // subdevice can be read
	SDFWritable Flags = 0x00020000 // subdevice can be written
	SDFInternal Flags = 0x00040000 // subdevice does not have externally visible lines

	SDFGround Flags = 0x00100000 // can do aref=ground
	SDFCommon Flags = 0x00200000 // can do aref=common
	SDFDiff   Flags = 0x00400000 // can do aref=diff
	SDFOther  Flags = 0x00800000 // can do aref=other

	SDFDither   Flags = 0x01000000 // can do dithering
	SDFDeglitch Flags = 0x02000000 // can do deglitching
	SDFMmap     Flags = 0x04000000 // can do mmap()
	SDFRunning  Flags = 0x08000000 // subdevice is acquiring data
	SDFLSampl   Flags = 0x10000000 // subdevice uses 32-bit samples
	SDFPacked   Flags = 0x20000000 // subdevice can do packed DIO
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{SDFBusy, "busy"},
	{SDFBusyOwner, "busy_owner"},
	{SDFLocked, "locked"},
	{SDFLockOwner, "lock_owner"},
	{SDFMaxData, "maxdata"},
	{SDFFlags, "flags"},
	{SDFRangeType, "rangetype"},
	{SDFCmd, "cmd"},
	{SDFSoftCalibrated, "soft_calibrated"},
	{SDFCmdWrite, "cmd_write"},
	{SDFCmdRead, "cmd_read"},
	{SDFReadable, "readable"},
	{SDFWritable, "writable"},
	{SDFInternal, "internal"},
	{SDFGround, "ground"},
	{SDFCommon, "common"},
	{SDFDiff, "diff"},
	{SDFOther, "other"},
	{SDFDither, "dither"},
	{SDFDeglitch, "deglitch"},
	{SDFMmap, "mmap"},
	{SDFRunning, "running"},
	{SDFLSampl, "lsampl"},
	{SDFPacked, "packed"},
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var (
		names []string
		rest  = f
	)
	for _, v := range flagNames {
		if f&v.flag != 0 {
			names = append(names, v.name)
			rest &^= v.flag
		}
	}
	if rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(names, "|")
}

func (f Flags) Busy() bool { return f&SDFBusy != 0 }
func (f Flags) Locked() bool { return f&SDFLocked != 0 }
func (f Flags) Running() bool { return f&SDFRunning != 0 }
func (f Flags) LSampl() bool { return f&SDFLSampl != 0 }

// Streaming returns whether the subdevice supports commands.
func (f Flags) Streaming() bool { return f&SDFCmd != 0 }

// SampleSize returns the size in bytes of a sample in the ring buffer.
func (f Flags) SampleSize() int {
	if f.LSampl() {
		return 4
	}
	return 2
}

// SubdType is the type of a subdevice.
type SubdType uint32

const (
	Unused SubdType = iota
	AI
	AO
	DI
	DO
	DIO
	Counter
	Timer
	Memory
	Calib
	Proc
	Serial
	PWM
)

var subdNames = [...]string{
	Unused:  "unused",
	AI:      "ai",
	AO:      "ao",
	DI:      "di",
	DO:      "do",
	DIO:     "dio",
	Counter: "counter",
	Timer:   "timer",
	Memory:  "memory",
	Calib:   "calib",
	Proc:    "proc",
	Serial:  "serial",
	PWM:     "pwm",
}

func (typ SubdType) String() string {
	if int(typ) < len(subdNames) {
		return subdNames[typ]
	}
	return fmt.Sprintf("subdtype(%d)", uint32(typ))
}

// ParseSubdType returns the subdevice type named s.
func ParseSubdType(s string) (SubdType, error) {
	for i, name := range subdNames {
		if strings.EqualFold(name, s) {
			return SubdType(i), nil
		}
	}
	return 0, fmt.Errorf("device: invalid subdevice type %q", s)
}
