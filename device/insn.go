// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-lpc/comedi/insn"
)

func toInsn(ins *insn.Instruction) insnT {
	v := insnT{
		insn:     uint32(ins.Op),
		n:        uint32(len(ins.Data)),
		subdev:   ins.Subdev,
		chanspec: uint32(ins.Chan),
	}
	if len(ins.Data) > 0 {
		v.data = &ins.Data[0]
	}
	return v
}

// DoInsnList executes insns in one call and returns the number of
// executed instructions.
// The driver does not report which instruction failed: a failing list
// reports no executed instruction.
func (dev *Device) DoInsnList(insns []insn.Instruction) (int, error) {
	if len(insns) == 0 {
		return 0, nil
	}
	raw := make([]insnT, len(insns))
	for i := range insns {
		raw[i] = toInsn(&insns[i])
	}
	list := insnlistT{n: uint32(len(raw)), insns: &raw[0]}
	n, err := ioctlPtr(dev.fd, ioctlInsnList, unsafe.Pointer(&list))
	runtime.KeepAlive(raw)
	runtime.KeepAlive(insns)
	if err != nil {
		return 0, fmt.Errorf("device: could not execute instruction list: %w", err)
	}
	return n, nil
}

// DoInsn executes a single instruction and returns the number of
// processed samples.
func (dev *Device) DoInsn(ins *insn.Instruction) (int, error) {
	raw := toInsn(ins)
	n, err := ioctlPtr(dev.fd, ioctlInsn, unsafe.Pointer(&raw))
	runtime.KeepAlive(ins)
	if err != nil {
		return 0, fmt.Errorf("device: could not execute %v instruction: %w", ins.Op, err)
	}
	return n, nil
}
