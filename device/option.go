// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"io"
	"log"
)

type config struct {
	msg *log.Logger
}

func newConfig() config {
	return config{
		msg: log.New(io.Discard, "comedi: ", 0),
	}
}

// Option configures a Device.
type Option func(*config)

// WithLogger sets the logger of the device.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}
