// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-lpc/comedi/chanspec"
	"github.com/go-lpc/comedi/command"
)

func toKernel(cmd *command.Cmd, chans []uint32) cmdT {
	c := cmdT{
		subdev:       cmd.Subdev,
		flags:        uint32(cmd.Flags),
		startSrc:     uint32(cmd.Start.Src),
		startArg:     cmd.Start.Arg,
		scanBeginSrc: uint32(cmd.ScanBegin.Src),
		scanBeginArg: cmd.ScanBegin.Arg,
		convertSrc:   uint32(cmd.Convert.Src),
		convertArg:   cmd.Convert.Arg,
		scanEndSrc:   uint32(cmd.ScanEnd.Src),
		scanEndArg:   cmd.ScanEnd.Arg,
		stopSrc:      uint32(cmd.Stop.Src),
		stopArg:      cmd.Stop.Arg,
		chanlistLen:  uint32(len(chans)),
		dataLen:      cmd.DataLen,
	}
	if len(chans) > 0 {
		c.chanlist = &chans[0]
	}
	return c
}

func fromKernel(cmd *command.Cmd, c *cmdT, chans []uint32) {
	cmd.Subdev = c.subdev
	cmd.Flags = command.Flags(c.flags)
	cmd.Start = command.Phase{Src: command.Source(c.startSrc), Arg: c.startArg}
	cmd.ScanBegin = command.Phase{Src: command.Source(c.scanBeginSrc), Arg: c.scanBeginArg}
	cmd.Convert = command.Phase{Src: command.Source(c.convertSrc), Arg: c.convertArg}
	cmd.ScanEnd = command.Phase{Src: command.Source(c.scanEndSrc), Arg: c.scanEndArg}
	cmd.Stop = command.Phase{Src: command.Source(c.stopSrc), Arg: c.stopArg}
	n := int(c.chanlistLen)
	if n > len(chans) {
		n = len(chans)
	}
	cmd.ChanList = cmd.ChanList[:0]
	for _, v := range chans[:n] {
		cmd.ChanList = append(cmd.ChanList, chanspec.Spec(v))
	}
}

func chanList(cmd *command.Cmd) []uint32 {
	chans := make([]uint32, len(cmd.ChanList))
	for i, v := range cmd.ChanList {
		chans[i] = uint32(v)
	}
	return chans
}

// CommandTest submits cmd to the driver for validation and returns the
// severity of the corrections applied in place to cmd.
func (dev *Device) CommandTest(cmd *command.Cmd) (int, error) {
	chans := chanList(cmd)
	c := toKernel(cmd, chans)
	rc, err := ioctlPtr(dev.fd, ioctlCmdTest, unsafe.Pointer(&c))
	runtime.KeepAlive(chans)
	if err != nil {
		return rc, fmt.Errorf("device: could not test command: %w", err)
	}
	fromKernel(cmd, &c, chans)
	return rc, nil
}

// Command starts the execution of cmd.
func (dev *Device) Command(cmd *command.Cmd) error {
	chans := chanList(cmd)
	c := toKernel(cmd, chans)
	_, err := ioctlPtr(dev.fd, ioctlCmd, unsafe.Pointer(&c))
	runtime.KeepAlive(chans)
	if err != nil {
		return fmt.Errorf("device: could not execute command on subdev %d: %w", cmd.Subdev, err)
	}
	dev.msg.Printf("command started on subdev %d", cmd.Subdev)
	return nil
}

// Cancel stops the command running on a subdevice.
func (dev *Device) Cancel(subdev uint32) error {
	_, err := ioctlInt(dev.fd, ioctlCancel, uintptr(subdev))
	if err != nil {
		return fmt.Errorf("device: could not cancel command on subdev %d: %w", subdev, err)
	}
	return nil
}

// Poll forces the driver to transfer pending data to the ring buffer.
func (dev *Device) Poll(subdev uint32) (int, error) {
	n, err := ioctlInt(dev.fd, ioctlPoll, uintptr(subdev))
	if err != nil {
		return 0, fmt.Errorf("device: could not poll subdev %d: %w", subdev, err)
	}
	return n, nil
}
