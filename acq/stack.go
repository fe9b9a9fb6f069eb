// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-lpc/comedi/alert"
	"github.com/go-lpc/comedi/config"
	"github.com/go-lpc/comedi/runlog"
)

// OpenRunLog opens the run log store described by cfg.
// A MySQL store is preferred over a bbolt one. OpenRunLog returns a nil
// store when no run log is configured.
func OpenRunLog(cfg config.RunLog) (runlog.Store, error) {
	dsn := cfg.SQL
	if dsn == "" {
		dsn = os.Getenv("COMEDI_RUNLOG_DSN")
	}

	switch {
	case dsn != "":
		db, err := runlog.OpenSQL(dsn)
		if err != nil {
			return nil, fmt.Errorf("acq: could not open run log: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = db.Init(ctx)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("acq: could not initialize run log: %w", err)
		}
		return db, nil

	case cfg.Bolt != "":
		db, err := runlog.OpenBolt(cfg.Bolt)
		if err != nil {
			return nil, fmt.Errorf("acq: could not open run log: %w", err)
		}
		return db, nil
	}
	return nil, nil
}

// NewAlerter returns the mail alerter described by cfg, with credentials
// taken from the MAIL_XXX environment variables.
// NewAlerter returns nil when alerts are disabled.
func NewAlerter(cfg config.Alert, msg *log.Logger) Alerter {
	if !cfg.Enabled {
		return nil
	}
	opts := []alert.Option{alert.WithLogger(msg)}
	if cfg.Subject != "" {
		opts = append(opts, alert.WithSubject(cfg.Subject))
	}
	return alert.New(alert.ConfigFromEnv(), opts...)
}
