// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package acq runs complete acquisition sessions on a comedi device.
//
// A session locks the subdevice, negotiates the configured command,
// streams data through the mapped ring buffer and records the outcome in
// a run log, a status board and mail alerts.
package acq // import "github.com/go-lpc/comedi/acq"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/go-lpc/comedi/command"
	"github.com/go-lpc/comedi/config"
	"github.com/go-lpc/comedi/daq"
	"github.com/go-lpc/comedi/internal/xcnv"
	"github.com/go-lpc/comedi/ringbuf"
	"github.com/go-lpc/comedi/runlog"
	"github.com/go-lpc/comedi/statusd"
)

// Device is a comedi device able to run streaming sessions.
type Device interface {
	daq.Engine

	Lock(subdev uint32) error
	Unlock(subdev uint32) error
	SampleSize(subdev uint32) (int, error)
	MapBuffer(subdev uint32, size int, write bool) (daq.Buffer, error)
}

type bufferSizer interface {
	SetBufferSize(subdev, size uint32) (uint32, error)
}

// Alerter sends rate-limited alerts.
type Alerter interface {
	Alert(key, body string) (bool, error)
}

// Session runs acquisitions described by a configuration on a device.
type Session struct {
	msg   *log.Logger
	name  string
	dev   Device
	cfg   config.Config
	ctl   *daq.Controller
	ssize int

	board *statusd.Board
	runs  runlog.Store
	alert Alerter

	locked bool
	rec    *runlog.Record

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a new session for the device named name.
func New(name string, dev Device, cfg config.Config, opts ...Option) *Session {
	c := newConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return &Session{
		msg:   c.msg,
		name:  name,
		dev:   dev,
		cfg:   cfg,
		board: c.board,
		runs:  c.runs,
		alert: c.alert,
		ctl: daq.New(
			dev,
			daq.WithLogger(c.msg),
			daq.WithPollInterval(cfg.Poll),
			daq.WithValidator(cfg.ValidatorOptions()...),
		),
	}
}

// Controller returns the command controller of the session.
func (s *Session) Controller() *daq.Controller { return s.ctl }

// Board returns the status board of the session.
func (s *Session) Board() *statusd.Board { return s.board }

// Layout returns the layout of the samples streamed by the session.
// It is only valid once the session is configured.
func (s *Session) Layout() xcnv.Layout {
	return xcnv.Layout{
		Channels:   append([]uint16(nil), s.cfg.Channels...),
		SampleSize: s.ssize,
	}
}

// Configure locks the subdevice and negotiates the command with the
// device.
func (s *Session) Configure() (command.Result, error) {
	subdev := s.cfg.Subdev
	if !s.locked {
		err := s.dev.Lock(subdev)
		if err != nil {
			return command.Result{}, fmt.Errorf("acq: could not lock subdevice %d: %w", subdev, err)
		}
		s.locked = true
	}

	ssize, err := s.dev.SampleSize(subdev)
	if err != nil {
		return command.Result{}, fmt.Errorf("acq: could not get sample size: %w", err)
	}
	s.ssize = ssize

	if size := s.cfg.BufferSize; size > 0 {
		dev, ok := s.dev.(bufferSizer)
		if !ok {
			return command.Result{}, fmt.Errorf("acq: device can not resize its buffer")
		}
		got, err := dev.SetBufferSize(subdev, size)
		if err != nil {
			return command.Result{}, fmt.Errorf("acq: could not set buffer size: %w", err)
		}
		s.msg.Printf("buffer size: %d bytes", got)
	}

	res, err := s.ctl.Configure(s.cfg.Cmd())
	for i, o := range res.Outcomes {
		s.msg.Printf("cmdtest[%d]: %v", i, o)
	}
	if err != nil {
		return res, fmt.Errorf("acq: could not configure subdevice %d: %w", subdev, err)
	}
	s.publish(func(snap *statusd.Snapshot) {
		*snap = statusd.Snapshot{
			Device: s.name,
			Subdev: subdev,
			State:  s.ctl.State().String(),
		}
	})
	return res, nil
}

// Acquire streams the samples of the configured input command into w
// until the command completes, fails or ctx is done.
// A session stopped by ctx or by Cancel returns a nil error.
func (s *Session) Acquire(ctx context.Context, w io.Writer) (int64, error) {
	if s.cfg.Write {
		return 0, fmt.Errorf("acq: could not acquire with an output command")
	}
	return s.stream(ctx, func(ctx context.Context, region daq.Region) (int64, error) {
		return s.ctl.Drain(ctx, region, &writer{s: s, w: w})
	})
}

// Generate streams the samples read from r to the configured output
// command, until r is exhausted and the command completes, or ctx is done.
func (s *Session) Generate(ctx context.Context, r io.Reader) (int64, error) {
	if !s.cfg.Write {
		return 0, fmt.Errorf("acq: could not generate with an input command")
	}
	return s.stream(ctx, func(ctx context.Context, region daq.Region) (int64, error) {
		return s.ctl.Fill(ctx, region, &reader{s: s, r: r})
	})
}

func (s *Session) stream(ctx context.Context, f func(ctx context.Context, region daq.Region) (int64, error)) (n int64, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	s.rec = nil
	err = s.ctl.Arm()
	if err != nil {
		err = fmt.Errorf("acq: could not arm command: %w", err)
		s.finish(0, err)
		return 0, err
	}

	var (
		subdev = s.cfg.Subdev
		size   = int(s.ctl.Buffer().Capacity())
	)
	region, err := s.dev.MapBuffer(subdev, size, s.cfg.Write)
	if err != nil {
		err = fmt.Errorf("acq: could not map ring buffer: %w", err)
		_ = s.ctl.Fail(err)
		_ = s.ctl.Release()
		s.finish(0, err)
		return 0, err
	}
	defer func() {
		e := region.Close()
		if e != nil && err == nil {
			err = fmt.Errorf("acq: could not unmap ring buffer: %w", e)
		}
	}()

	s.start()

	n, err = f(ctx, region)
	if err != nil && s.ctl.State() == daq.Cancelled && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}
	if err != nil {
		err = fmt.Errorf("acq: could not stream samples: %w", err)
	}
	s.finish(n, err)
	return n, err
}

// Cancel requests the running acquisition to stop.
// It is safe to call Cancel from another goroutine.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return fmt.Errorf("acq: no running acquisition")
	}
	s.cancel()
	return nil
}

// Reset moves a terminated session back to idle, ready for a new Configure.
func (s *Session) Reset() error {
	err := s.ctl.Reset()
	if err != nil {
		return fmt.Errorf("acq: could not reset session: %w", err)
	}
	return nil
}

// Close cancels any command and unlocks the subdevice.
func (s *Session) Close() error {
	var err error
	if s.ctl.State() != daq.Idle {
		err = s.ctl.Cancel()
		if err != nil {
			err = fmt.Errorf("acq: could not cancel command: %w", err)
		}
	}
	if s.locked {
		e := s.dev.Unlock(s.cfg.Subdev)
		s.locked = false
		if e != nil && err == nil {
			err = fmt.Errorf("acq: could not unlock subdevice %d: %w", s.cfg.Subdev, e)
		}
	}
	return err
}

func (s *Session) start() {
	s.rec = runlog.New(s.name, s.cfg.Subdev, s.ctl.Cmd().String())
	if s.runs != nil {
		err := s.runs.Put(context.Background(), s.rec)
		if err != nil {
			s.msg.Printf("could not record run: %+v", err)
		}
	}
	s.publish(func(snap *statusd.Snapshot) {
		snap.RunID = s.rec.ID
		snap.State = s.ctl.State().String()
		snap.Bytes = 0
		snap.Err = ""
		snap.Buffer = statusd.Buffer{Capacity: s.ctl.Buffer().Capacity()}
	})
}

func (s *Session) finish(n int64, err error) {
	state := s.ctl.State()
	if err != nil && !state.Terminal() {
		state = daq.Error
	}
	if s.rec == nil {
		s.rec = runlog.New(s.name, s.cfg.Subdev, s.cfg.Cmd().String())
	}
	s.rec.Finish(state.String(), n, err)
	if s.runs != nil {
		e := s.runs.Put(context.Background(), s.rec)
		if e != nil {
			s.msg.Printf("could not record run: %+v", e)
		}
	}
	s.publish(func(snap *statusd.Snapshot) {
		snap.State = state.String()
		snap.Bytes = n
		snap.Err = s.rec.Err
	})
	s.rec = nil

	if err != nil {
		s.notify(err)
	}
}

func (s *Session) notify(err error) {
	if s.alert == nil {
		return
	}
	key := "error"
	var fault *daq.EngineFault
	switch {
	case errors.Is(err, ringbuf.ErrDesync):
		key = "desync"
	case errors.As(err, &fault):
		key = "engine-fault"
	}
	body := fmt.Sprintf("device %s, subdevice %d: %+v", s.name, s.cfg.Subdev, err)
	_, e := s.alert.Alert(key, body)
	if e != nil {
		s.msg.Printf("could not send %s alert: %+v", key, e)
	}
}

func (s *Session) publish(f func(snap *statusd.Snapshot)) {
	if s.board == nil {
		return
	}
	s.board.Update(f)
}

// progress publishes the state of the ring buffer after n bytes were
// streamed.
func (s *Session) progress(n int) {
	if s.board == nil {
		return
	}
	var (
		buf    = s.ctl.Buffer()
		wr, rd = buf.Counters()
		avail  uint32
	)
	switch buf.Direction() {
	case ringbuf.Input:
		avail, _ = buf.Available()
	default:
		avail, _ = buf.Free()
	}
	s.board.Update(func(snap *statusd.Snapshot) {
		snap.State = s.ctl.State().String()
		snap.Bytes += int64(n)
		snap.Buffer = statusd.Buffer{
			Capacity:  buf.Capacity(),
			Available: avail,
			Produced:  wr,
			Consumed:  rd,
		}
	})
}

type writer struct {
	s *Session
	w io.Writer
}

func (w *writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.s.progress(n)
	return n, err
}

type reader struct {
	s *Session
	r io.Reader
}

func (r *reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.s.progress(n)
	return n, err
}
