// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alert

import (
	"io"
	"log"
)

type config struct {
	msg     *log.Logger
	subject string
	max     int
}

func newConfig() config {
	return config{
		msg:     log.New(io.Discard, "alert: ", 0),
		subject: "comedi",
		max:     5,
	}
}

// Option configures a Mailer.
type Option func(*config)

// WithLogger sets the logger of the mailer.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithSubject sets the tag prefixed to the subject of alerts.
func WithSubject(tag string) Option {
	return func(cfg *config) {
		if tag != "" {
			cfg.subject = tag
		}
	}
}

// WithMaxAlerts sets the maximum number of alerts sent per key.
func WithMaxAlerts(n int) Option {
	return func(cfg *config) {
		cfg.max = n
	}
}
