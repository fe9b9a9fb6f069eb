// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package statusd exposes the state of an acquisition over HTTP.
//
// The acquisition loop publishes snapshots on a Board; the HTTP handlers
// only read the board. Cancellation requests are forwarded to a
// user-provided function and observed by the acquisition loop.
package statusd // import "github.com/go-lpc/comedi/statusd"

import (
	"sync"
	"time"
)

// Buffer describes the ring buffer of the running command.
type Buffer struct {
	Capacity  uint32 `json:"capacity"`
	Available uint32 `json:"available"`
	Produced  uint32 `json:"produced"`
	Consumed  uint32 `json:"consumed"`
}

// Snapshot is the state of an acquisition at a given time.
type Snapshot struct {
	Device  string    `json:"device"`
	Subdev  uint32    `json:"subdev"`
	RunID   uint64    `json:"run_id"`
	State   string    `json:"state"`
	Bytes   int64     `json:"bytes"`
	Buffer  Buffer    `json:"buffer"`
	Err     string    `json:"error,omitempty"`
	Updated time.Time `json:"updated"`
}

// Board holds the last published snapshot.
// It is safe for concurrent use.
type Board struct {
	mu   sync.RWMutex
	snap Snapshot
}

// Publish replaces the current snapshot.
func (b *Board) Publish(snap Snapshot) {
	if snap.Updated.IsZero() {
		snap.Updated = time.Now().UTC()
	}
	b.mu.Lock()
	b.snap = snap
	b.mu.Unlock()
}

// Update modifies the current snapshot in place.
func (b *Board) Update(f func(snap *Snapshot)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f(&b.snap)
	b.snap.Updated = time.Now().UTC()
}

// Snapshot returns the current snapshot.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}
