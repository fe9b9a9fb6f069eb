// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daq drives the life cycle of an asynchronous comedi command:
// configuration, arming, triggering and the polling loops streaming data
// through the memory-mapped ring buffer.
package daq // import "github.com/go-lpc/comedi/daq"

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/go-lpc/comedi/command"
	"github.com/go-lpc/comedi/insn"
)

// Engine is the asynchronous command interface of a comedi device.
type Engine interface {
	command.Tester
	insn.Executor

	Command(cmd *command.Cmd) error
	Cancel(subdev uint32) error
	Running(subdev uint32) (bool, error)

	BufferSize(subdev uint32) (uint32, error)
	BufferContents(subdev uint32) (uint32, error)
	MarkRead(subdev uint32, n uint32) (uint32, error)
	MarkWritten(subdev uint32, n uint32) (uint32, error)
}

// Region is the memory-mapped ring buffer of a subdevice.
type Region interface {
	io.ReaderAt
	io.WriterAt
	Len() int
}

// Buffer is a mapped Region that must be unmapped once streaming is done.
type Buffer interface {
	Region
	io.Closer
}

// State is the state of a Controller.
type State uint8

const (
	Idle State = iota
	Configured
	Armed
	Running
	Completed
	Cancelled
	Error
)

func (st State) String() string {
	switch st {
	case Idle:
		return "idle"
	case Configured:
		return "configured"
	case Armed:
		return "armed"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", uint8(st))
}

// Terminal returns whether no further data may flow in this state.
func (st State) Terminal() bool {
	switch st {
	case Completed, Cancelled, Error:
		return true
	}
	return false
}

// ErrTransition is the sentinel error matched by *TransitionError.
var ErrTransition = errors.New("daq: invalid transition")

// TransitionError reports an operation invalid in the current state.
type TransitionError struct {
	Op    string
	State State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("daq: invalid transition %s from state %v", e.Op, e.State)
}

func (e *TransitionError) Is(target error) bool { return target == ErrTransition }

// EngineFault reports an engine call returning a negative status.
type EngineFault struct {
	Op     string // engine operation
	Status int    // negative status code
	Err    error
}

func (e *EngineFault) Error() string {
	return fmt.Sprintf("daq: engine fault during %s (status=%d): %v", e.Op, e.Status, e.Err)
}

func (e *EngineFault) Unwrap() error { return e.Err }

func fault(op string, err error) error {
	var ef *EngineFault
	if errors.As(err, &ef) {
		return err
	}
	status := -1
	var errno syscall.Errno
	if errors.As(err, &errno) {
		status = -int(errno)
	}
	return &EngineFault{Op: op, Status: status, Err: err}
}
