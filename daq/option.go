// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"log"
	"os"
	"time"

	"github.com/go-lpc/comedi/command"
)

type config struct {
	msg  *log.Logger
	poll time.Duration
	vopt []command.Option
}

func newConfig() config {
	return config{
		msg:  log.New(os.Stdout, "daq: ", 0),
		poll: 10 * time.Millisecond,
	}
}

// Option configures a Controller.
type Option func(*config)

// WithLogger sets the logger of the controller.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithPollInterval sets the sleep duration between two iterations of the
// streaming loops.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.poll = d
		}
	}
}

// WithValidator configures the command validator used by Configure.
func WithValidator(opts ...command.Option) Option {
	return func(cfg *config) {
		cfg.vopt = append(cfg.vopt, opts...)
	}
}
