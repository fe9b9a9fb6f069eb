// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package node implements a TDAQ run-control node streaming the samples of
// a comedi device.
package node // import "github.com/go-lpc/comedi/node"

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/comedi/acq"
	"github.com/go-lpc/comedi/config"
	"github.com/go-lpc/comedi/device"
	"github.com/go-lpc/comedi/runlog"
	"github.com/go-lpc/comedi/statusd"
	"golang.org/x/xerrors"
)

// Device is a comedi device driven by a node.
type Device interface {
	acq.Device
	io.Closer
}

// Server is a TDAQ node driving one acquisition session.
type Server struct {
	msg   *log.Logger
	fname string // configuration file
	board *statusd.Board
	alert acq.Alerter

	newDevice func(path string) (Device, error)

	mu    sync.Mutex
	cfg   config.Config
	dev   Device
	sess  *acq.Session
	store runlog.Store
	data  chan []byte
	n     int64
	err   error
}

// New creates a node reading its configuration from fname.
func New(fname string, msg *log.Logger) *Server {
	return &Server{
		msg:   msg,
		fname: fname,
		board: new(statusd.Board),
		newDevice: func(path string) (Device, error) {
			dev, err := device.Open(path, device.WithLogger(msg))
			if err != nil {
				return nil, err
			}
			return dev, nil
		},
	}
}

// Board returns the status board of the node.
func (srv *Server) Board() *statusd.Board { return srv.board }

// Config returns the current configuration of the node.
func (srv *Server) Config() config.Config {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.cfg
}

// SetAlerter sets the alerter used by the acquisition sessions.
func (srv *Server) SetAlerter(a acq.Alerter) {
	srv.alert = a
}

// Cancel requests the running acquisition to stop.
func (srv *Server) Cancel() error {
	srv.mu.Lock()
	sess := srv.sess
	srv.mu.Unlock()
	if sess == nil {
		return xerrors.Errorf("node: no acquisition session")
	}
	return sess.Cancel()
}

// RunLog returns a view of the run log of the current session.
func (srv *Server) RunLog() runlog.Store {
	return &runs{srv: srv}
}

func (srv *Server) configure(fname string) error {
	if fname == "" {
		fname = srv.fname
	}
	cfg, err := config.Load(fname)
	if err != nil {
		return xerrors.Errorf("node: could not load configuration: %w", err)
	}
	if cfg.Write {
		return xerrors.Errorf("node: could not stream an output subdevice")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.fname = fname
	srv.cfg = cfg
	return nil
}

func (srv *Server) initialize() error {
	err := srv.reset()
	if err != nil {
		return err
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()

	cfg := srv.cfg
	if cfg.Device == "" {
		return xerrors.Errorf("node: not configured")
	}

	dev, err := srv.newDevice(cfg.Device)
	if err != nil {
		return xerrors.Errorf("node: could not open device %q: %w", cfg.Device, err)
	}

	store, err := acq.OpenRunLog(cfg.RunLog)
	if err != nil {
		_ = dev.Close()
		return xerrors.Errorf("node: could not open run log: %w", err)
	}

	opts := []acq.Option{
		acq.WithLogger(srv.msg),
		acq.WithBoard(srv.board),
	}
	if store != nil {
		opts = append(opts, acq.WithRunLog(store))
	}
	if srv.alert != nil {
		opts = append(opts, acq.WithAlerter(srv.alert))
	}

	sess := acq.New(cfg.Device, dev, cfg, opts...)
	_, err = sess.Configure()
	if err != nil {
		_ = sess.Close()
		_ = dev.Close()
		if store != nil {
			_ = store.Close()
		}
		return xerrors.Errorf("node: could not configure session: %w", err)
	}

	srv.dev = &closer{Device: dev, store: store}
	srv.sess = sess
	srv.store = store
	srv.data = make(chan []byte, 1024)
	srv.n = 0
	return nil
}

func (srv *Server) reset() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	var err error
	if srv.sess != nil {
		err = srv.sess.Close()
		srv.sess = nil
	}
	if srv.dev != nil {
		e := srv.dev.Close()
		if e != nil && err == nil {
			err = e
		}
		srv.dev = nil
	}
	srv.store = nil
	if err != nil {
		return xerrors.Errorf("node: could not reset: %w", err)
	}
	return nil
}

func (srv *Server) start() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.sess == nil {
		return xerrors.Errorf("node: not initialized")
	}
	if srv.sess.Controller().State().Terminal() {
		err := srv.sess.Reset()
		if err != nil {
			return err
		}
		_, err = srv.sess.Configure()
		if err != nil {
			return xerrors.Errorf("node: could not configure session: %w", err)
		}
	}
	srv.n = 0
	srv.err = nil
	return nil
}

// acquire streams samples into the data channel until ctx is done or the
// command terminates.
func (srv *Server) acquire(ctx context.Context) error {
	srv.mu.Lock()
	sess := srv.sess
	data := srv.data
	srv.mu.Unlock()
	if sess == nil {
		return xerrors.Errorf("node: not initialized")
	}

	n, err := sess.Acquire(ctx, &frameWriter{ctx: ctx, data: data})
	srv.mu.Lock()
	srv.n = n
	srv.err = err
	srv.mu.Unlock()
	return err
}

// next returns the next frame of samples, or false when ctx is done.
func (srv *Server) next(ctx context.Context) ([]byte, bool) {
	srv.mu.Lock()
	data := srv.data
	srv.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, false
	case p := <-data:
		return p, true
	}
}

// OnConfig loads the configuration file named in the request, or the
// default one when the request is empty.
func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	var fname string
	if len(req.Body) > 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		fname = dec.ReadStr()
	}
	err := srv.configure(fname)
	if err != nil {
		ctx.Msg.Errorf("could not configure: %+v", err)
		return err
	}
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	err := srv.initialize()
	if err != nil {
		ctx.Msg.Errorf("could not initialize: %+v", err)
		return err
	}
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	err := srv.reset()
	if err != nil {
		ctx.Msg.Errorf("could not reset: %+v", err)
		return err
	}
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	err := srv.start()
	if err != nil {
		ctx.Msg.Errorf("could not start: %+v", err)
		return err
	}
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	n, err := srv.n, srv.err
	srv.mu.Unlock()
	ctx.Msg.Debugf("received /stop command... -> n=%d", n)
	if err != nil {
		ctx.Msg.Errorf("acquisition failed: %+v", err)
	}
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return srv.reset()
}

// ADC sends the acquired samples on the /adc output.
func (srv *Server) ADC(ctx tdaq.Context, dst *tdaq.Frame) error {
	p, ok := srv.next(ctx.Ctx)
	if !ok {
		dst.Body = nil
		return nil
	}
	dst.Body = p
	return nil
}

// Run runs the acquisition loop between /start and /stop.
func (srv *Server) Run(ctx tdaq.Context) error {
	err := srv.acquire(ctx.Ctx)
	if err != nil {
		ctx.Msg.Errorf("could not acquire: %+v", err)
		return err
	}
	return nil
}

type frameWriter struct {
	ctx  context.Context
	data chan []byte
}

// Write sends a copy of p on the data channel.
// Frames written once the run is stopped are dropped.
func (w *frameWriter) Write(p []byte) (int, error) {
	frame := make([]byte, len(p))
	copy(frame, p)
	select {
	case w.data <- frame:
	case <-w.ctx.Done():
	}
	return len(p), nil
}

// closer closes the run log together with the device.
type closer struct {
	Device
	store io.Closer
}

func (c *closer) Close() error {
	err := c.Device.Close()
	if c.store != nil {
		e := c.store.Close()
		if e != nil && err == nil {
			err = e
		}
	}
	if err != nil {
		return fmt.Errorf("node: could not close device: %w", err)
	}
	return nil
}

// runs forwards run log queries to the store of the current session.
type runs struct {
	srv *Server
}

func (r *runs) current() (runlog.Store, error) {
	r.srv.mu.Lock()
	defer r.srv.mu.Unlock()
	if r.srv.store == nil {
		return nil, xerrors.Errorf("node: no run log")
	}
	return r.srv.store, nil
}

func (r *runs) Put(ctx context.Context, rec *runlog.Record) error {
	store, err := r.current()
	if err != nil {
		return err
	}
	return store.Put(ctx, rec)
}

func (r *runs) List(ctx context.Context, n int) ([]runlog.Record, error) {
	store, err := r.current()
	if err != nil {
		return nil, err
	}
	return store.List(ctx, n)
}

// Close is a no-op: the store is owned by the session.
func (r *runs) Close() error { return nil }
