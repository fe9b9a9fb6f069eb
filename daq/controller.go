// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"
	"log"
	"time"

	"github.com/go-lpc/comedi/command"
	"github.com/go-lpc/comedi/insn"
	"github.com/go-lpc/comedi/ringbuf"
)

// Controller drives one command on one subdevice.
//
// A Controller is not safe for concurrent use.
type Controller struct {
	msg  *log.Logger
	eng  Engine
	val  *command.Validator
	poll time.Duration

	state  State
	cmd    *command.Cmd // frozen once armed
	res    command.Result
	buf    *ringbuf.Tracker
	issued bool // command submitted to the engine
	err    error
}

// New returns a controller in the Idle state.
func New(eng Engine, opts ...Option) *Controller {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Controller{
		msg:  cfg.msg,
		eng:  eng,
		val:  command.NewValidator(eng, cfg.vopt...),
		poll: cfg.poll,
	}
}

// State returns the current state of the controller.
func (c *Controller) State() State { return c.state }

// Err returns the fault that moved the controller to the Error state.
func (c *Controller) Err() error { return c.err }

// Cmd returns a copy of the configured command.
func (c *Controller) Cmd() *command.Cmd {
	if c.cmd == nil {
		return nil
	}
	return c.cmd.Clone()
}

// Result returns the history of the last command negotiation.
func (c *Controller) Result() command.Result { return c.res }

// Buffer returns the ring buffer tracker of the armed command.
// The tracker is invalidated once the command is cancelled.
func (c *Controller) Buffer() *ringbuf.Tracker { return c.buf }

// PollInterval returns the sleep duration of the streaming loops.
func (c *Controller) PollInterval() time.Duration { return c.poll }

func (c *Controller) setState(st State) {
	if c.state == st {
		return
	}
	c.msg.Printf("subdev %d: %v -> %v", c.subdev(), c.state, st)
	c.state = st
}

func (c *Controller) subdev() uint32 {
	if c.cmd == nil {
		return 0
	}
	return c.cmd.Subdev
}

// Configure negotiates cmd with the engine.
// cmd itself is left untouched: the controller works on a copy.
func (c *Controller) Configure(cmd *command.Cmd) (command.Result, error) {
	if c.state != Idle {
		return command.Result{}, &TransitionError{Op: "configure", State: c.state}
	}

	cmd = cmd.Clone()
	res, err := c.val.Validate(cmd)
	c.res = res
	if err != nil {
		return res, fmt.Errorf("daq: could not configure command: %w", err)
	}

	c.cmd = cmd
	c.setState(Configured)
	return res, nil
}

// Arm submits the configured command for execution and allocates the
// ring buffer tracker.
func (c *Controller) Arm() error {
	if c.state != Configured {
		return &TransitionError{Op: "arm", State: c.state}
	}

	err := c.eng.Command(c.cmd.Clone())
	if err != nil {
		return fault("command", err)
	}
	c.issued = true

	size, err := c.eng.BufferSize(c.cmd.Subdev)
	if err != nil {
		return c.fail(fault("buffer-size", err))
	}

	dir := ringbuf.Input
	if c.cmd.IsWrite() {
		dir = ringbuf.Output
	}
	c.buf = ringbuf.New(size, dir)
	c.setState(Armed)
	return nil
}

// Trigger fires the internal start trigger of the armed command.
func (c *Controller) Trigger() error {
	if c.state != Armed {
		return &TransitionError{Op: "trigger", State: c.state}
	}
	if c.cmd.Start.Src != command.Int {
		return fmt.Errorf("daq: command start source is %v, not %v", c.cmd.Start.Src, command.Int)
	}

	batch := insn.NewBatch(0)
	batch.Add(insn.NewInternalTrigger(c.cmd.Subdev, c.cmd.Start.Arg))
	_, err := batch.Execute(c.eng)
	if err != nil {
		return fault("internal-trigger", err)
	}
	c.setState(Running)
	return nil
}

// Update polls the engine and moves an armed command with an automatic
// start to Running, and a running command that stopped to Completed.
func (c *Controller) Update() (State, error) {
	switch c.state {
	case Armed:
		if c.cmd.Start.Src != command.Int {
			c.setState(Running)
		}
	case Running:
	case Completed, Cancelled, Error:
		return c.state, nil
	default:
		return c.state, &TransitionError{Op: "update", State: c.state}
	}

	if c.state != Running {
		return c.state, nil
	}

	running, err := c.eng.Running(c.cmd.Subdev)
	if err != nil {
		return c.state, fault("subdevice-flags", err)
	}
	if !running {
		c.setState(Completed)
	}
	return c.state, nil
}

// Fail moves an armed or running command to the Error state.
func (c *Controller) Fail(err error) error {
	switch c.state {
	case Armed, Running:
		return c.fail(err)
	}
	return &TransitionError{Op: "fail", State: c.state}
}

func (c *Controller) fail(err error) error {
	c.err = err
	c.msg.Printf("subdev %d: %+v", c.subdev(), err)
	c.setState(Error)
	return err
}

// Cancel stops the command and invalidates the ring buffer.
// Cancel is always permitted and cancelling an idle or cancelled
// controller is a no-op.
func (c *Controller) Cancel() error {
	switch c.state {
	case Idle, Cancelled:
		return nil
	}
	err := c.stop()
	c.setState(Cancelled)
	return err
}

func (c *Controller) stop() error {
	if c.buf != nil {
		c.buf.Invalidate()
	}
	if !c.issued {
		return nil
	}
	c.issued = false
	err := c.eng.Cancel(c.cmd.Subdev)
	if err != nil {
		return fault("cancel", err)
	}
	return nil
}

// Release is the exit path of the streaming loops.
// Completed and Error states are kept, with the engine command cancelled
// and the ring buffer invalidated. Any other state is cancelled.
func (c *Controller) Release() error {
	switch c.state {
	case Completed, Error:
		return c.stop()
	}
	return c.Cancel()
}

// Reset moves a terminated controller back to Idle.
func (c *Controller) Reset() error {
	if !c.state.Terminal() {
		return &TransitionError{Op: "reset", State: c.state}
	}
	err := c.stop()
	c.cmd = nil
	c.buf = nil
	c.err = nil
	c.res = command.Result{}
	c.setState(Idle)
	return err
}
