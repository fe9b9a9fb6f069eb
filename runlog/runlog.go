// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package runlog records the acquisition sessions run on comedi devices.
package runlog // import "github.com/go-lpc/comedi/runlog"

import (
	"context"
	"time"
)

// Record describes an acquisition session.
type Record struct {
	ID      uint64    `json:"id"`
	Device  string    `json:"device"`
	Subdev  uint32    `json:"subdev"`
	Command string    `json:"command"`
	State   string    `json:"state"`
	Start   time.Time `json:"start"`
	Stop    time.Time `json:"stop"`
	Bytes   int64     `json:"bytes"`
	Err     string    `json:"error,omitempty"`
}

// New returns a record for a session started now.
func New(device string, subdev uint32, cmd string) *Record {
	return &Record{
		Device:  device,
		Subdev:  subdev,
		Command: cmd,
		State:   "running",
		Start:   now().UTC(),
	}
}

// Finish marks the session as stopped in the provided state.
func (rec *Record) Finish(state string, n int64, err error) {
	rec.State = state
	rec.Stop = now().UTC()
	rec.Bytes = n
	if err != nil {
		rec.Err = err.Error()
	}
}

// Duration returns the duration of a stopped session.
func (rec Record) Duration() time.Duration {
	if rec.Stop.IsZero() {
		return 0
	}
	return rec.Stop.Sub(rec.Start)
}

// Store persists session records.
type Store interface {
	// Put inserts or updates a record.
	// A record with a zero ID is inserted and assigned a new ID.
	Put(ctx context.Context, rec *Record) error

	// List returns the n most recent records, most recent first.
	// All records are returned when n <= 0.
	List(ctx context.Context, n int) ([]Record, error)

	Close() error
}

var now = time.Now

var (
	_ Store = (*Bolt)(nil)
	_ Store = (*SQL)(nil)
)
