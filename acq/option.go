// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"log"
	"os"

	"github.com/go-lpc/comedi/runlog"
	"github.com/go-lpc/comedi/statusd"
)

type options struct {
	msg   *log.Logger
	board *statusd.Board
	runs  runlog.Store
	alert Alerter
}

func newConfig() options {
	return options{
		msg: log.New(os.Stdout, "acq: ", 0),
	}
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the logger of the session.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *options) {
		cfg.msg = msg
	}
}

// WithBoard publishes the state of the session on board.
func WithBoard(board *statusd.Board) Option {
	return func(cfg *options) {
		cfg.board = board
	}
}

// WithRunLog records each acquisition in store.
func WithRunLog(store runlog.Store) Option {
	return func(cfg *options) {
		cfg.runs = store
	}
}

// WithAlerter sends an alert when an acquisition fails.
func WithAlerter(a Alerter) Option {
	return func(cfg *options) {
		cfg.alert = a
	}
}
