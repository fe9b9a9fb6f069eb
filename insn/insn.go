// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package insn builds synchronous comedi instructions and executes them
// as atomic batches.
package insn // import "github.com/go-lpc/comedi/insn"

import (
	"fmt"
	"time"

	"github.com/go-lpc/comedi/chanspec"
)

// Opcode is the operation code of an instruction.
type Opcode uint32

const (
	maskWrite   = 0x08000000
	maskRead    = 0x04000000
	maskSpecial = 0x02000000

	Read            Opcode = 0 | maskRead
	Write           Opcode = 1 | maskWrite
	Bits            Opcode = 2 | maskRead | maskWrite
	Config          Opcode = 3 | maskRead | maskWrite
	DeviceConfig    Opcode = Config | maskSpecial
	GTOD            Opcode = 4 | maskRead | maskSpecial
	Wait            Opcode = 5 | maskWrite | maskSpecial
	InternalTrigger Opcode = 6 | maskWrite | maskSpecial
)

func (op Opcode) String() string {
	switch op {
	case Read:
		return "read"
	case Write:
		return "write"
	case Bits:
		return "bits"
	case Config:
		return "config"
	case DeviceConfig:
		return "device_config"
	case GTOD:
		return "gtod"
	case Wait:
		return "wait"
	case InternalTrigger:
		return "inttrig"
	}
	return fmt.Sprintf("opcode(0x%x)", uint32(op))
}

// Reads returns whether the engine writes data back into the instruction.
func (op Opcode) Reads() bool { return op&maskRead != 0 }

// Writes returns whether the engine reads data from the instruction.
func (op Opcode) Writes() bool { return op&maskWrite != 0 }

// Special returns whether the instruction is not bound to a subdevice.
func (op Opcode) Special() bool { return op&maskSpecial != 0 }

// Instruction is a synchronous one-shot operation.
//
// Data is owned by the instruction: the engine reads operands from it
// and writes results into it, in place.
type Instruction struct {
	Op     Opcode
	Subdev uint32
	Chan   chanspec.Spec
	Data   []uint32
}

// N returns the number of operands of the instruction.
func (ins *Instruction) N() int { return len(ins.Data) }

func (ins Instruction) String() string {
	return fmt.Sprintf("{%v subdev=%d %v n=%d data=%v}",
		ins.Op, ins.Subdev, ins.Chan, len(ins.Data), ins.Data,
	)
}

// NewGTOD returns a gettimeofday instruction.
func NewGTOD() Instruction {
	return Instruction{Op: GTOD, Data: make([]uint32, 2)}
}

// Time decodes the result of a gettimeofday instruction.
func (ins *Instruction) Time() (time.Time, error) {
	if ins.Op != GTOD || len(ins.Data) != 2 {
		return time.Time{}, fmt.Errorf("insn: %v is not a gettimeofday instruction", ins.Op)
	}
	return time.Unix(int64(ins.Data[0]), int64(ins.Data[1])*int64(time.Microsecond)), nil
}

// NewRead returns an instruction reading n samples from a channel.
func NewRead(subdev uint32, spec chanspec.Spec, n int) Instruction {
	return Instruction{Op: Read, Subdev: subdev, Chan: spec, Data: make([]uint32, n)}
}

// NewWrite returns an instruction writing samples to a channel.
func NewWrite(subdev uint32, spec chanspec.Spec, samples ...uint32) Instruction {
	data := make([]uint32, len(samples))
	copy(data, samples)
	return Instruction{Op: Write, Subdev: subdev, Chan: spec, Data: data}
}

// NewBits returns a digital read-modify-write instruction.
// Channels selected in mask are written with bits, then all channels are
// read back into Data[1].
func NewBits(subdev uint32, mask, bits uint32) Instruction {
	return Instruction{Op: Bits, Subdev: subdev, Data: []uint32{mask, bits}}
}

// NewBitsRead returns an instruction reading the digital channels.
func NewBitsRead(subdev uint32) Instruction { return NewBits(subdev, 0, 0) }

// NewConfig returns a configuration instruction.
func NewConfig(subdev uint32, spec chanspec.Spec, data ...uint32) Instruction {
	buf := make([]uint32, len(data))
	copy(buf, data)
	return Instruction{Op: Config, Subdev: subdev, Chan: spec, Data: buf}
}

// NewDeviceConfig returns a device-level configuration instruction.
func NewDeviceConfig(data ...uint32) Instruction {
	buf := make([]uint32, len(data))
	copy(buf, data)
	return Instruction{Op: DeviceConfig, Data: buf}
}

// NewWait returns an instruction pausing the batch.
func NewWait(d time.Duration) Instruction {
	return Instruction{Op: Wait, Data: []uint32{uint32(d.Nanoseconds())}}
}

// NewInternalTrigger returns an instruction firing the internal trigger
// trig of a subdevice.
func NewInternalTrigger(subdev, trig uint32) Instruction {
	return Instruction{Op: InternalTrigger, Subdev: subdev, Data: []uint32{trig}}
}
