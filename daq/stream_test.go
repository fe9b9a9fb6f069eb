// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"bytes"
	"context"
	"errors"
	"io"
	"syscall"
	"testing"

	"github.com/go-lpc/comedi/command"
	"github.com/go-lpc/comedi/internal/fakedev"
	"github.com/go-lpc/comedi/ringbuf"
)

func armTestController(t *testing.T, eng *fakedev.Engine, start command.Source, write bool) (*Controller, *fakedev.Region) {
	t.Helper()

	ctl := newTestController(eng)
	_, err := ctl.Configure(newTestCmd(start, write))
	if err != nil {
		t.Fatalf("could not configure: %+v", err)
	}
	err = ctl.Arm()
	if err != nil {
		t.Fatalf("could not arm: %+v", err)
	}
	region, err := eng.Map(1, int(eng.Size), write)
	if err != nil {
		t.Fatalf("could not map buffer: %+v", err)
	}
	return ctl, region
}

func TestDrain(t *testing.T) {
	eng := &fakedev.Engine{Size: 4096, Bursts: []uint32{1000, 3500}}
	ctl, region := armTestController(t, eng, command.Now, false)

	out := new(bytes.Buffer)
	n, err := ctl.Drain(context.Background(), region, out)
	if err != nil {
		t.Fatalf("could not drain: %+v", err)
	}
	if got, want := n, int64(4500); got != want {
		t.Fatalf("invalid number of bytes: got=%d, want=%d", got, want)
	}
	if got, want := out.Len(), 4500; got != want {
		t.Fatalf("invalid output size: got=%d, want=%d", got, want)
	}
	for i, v := range out.Bytes() {
		if v != byte(i) {
			t.Fatalf("invalid byte %d: got=%d, want=%d", i, v, byte(i))
		}
	}

	if got, want := ctl.State(), Completed; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}
	if ctl.Buffer().Valid() {
		t.Fatalf("buffer should be invalidated after drain")
	}
	if got, want := eng.Calls["cancel"], 1; got != want {
		t.Fatalf("invalid number of engine cancels: got=%d, want=%d", got, want)
	}
	if got, want := eng.Calls["markread"], 2; got != want {
		t.Fatalf("invalid number of mark-read: got=%d, want=%d", got, want)
	}
}

func TestDrainDesync(t *testing.T) {
	eng := &fakedev.Engine{Size: 16, Bursts: []uint32{20}}
	ctl, region := armTestController(t, eng, command.Now, false)

	_, err := ctl.Drain(context.Background(), region, new(bytes.Buffer))
	if !errors.Is(err, ringbuf.ErrDesync) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, ringbuf.ErrDesync)
	}
	if got, want := ctl.State(), Error; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}
	if !errors.Is(ctl.Err(), ringbuf.ErrDesync) {
		t.Fatalf("invalid recorded error: %+v", ctl.Err())
	}
	if got, want := eng.Calls["cancel"], 1; got != want {
		t.Fatalf("desync did not cancel the command: got=%d, want=%d", got, want)
	}
}

type cancelWriter struct {
	w      io.Writer
	cancel context.CancelFunc
}

func (w *cancelWriter) Write(p []byte) (int, error) {
	w.cancel()
	return w.w.Write(p)
}

// cancelReader produces an endless ramp and cancels once max bytes were read.
type cancelReader struct {
	n      int
	max    int
	cancel context.CancelFunc
}

func (r *cancelReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.n + i)
	}
	r.n += len(p)
	if r.n >= r.max {
		r.cancel()
	}
	return len(p), nil
}

func newBursts(n int, size uint32) []uint32 {
	bursts := make([]uint32, n)
	for i := range bursts {
		bursts[i] = size
	}
	return bursts
}

func TestDrainCancel(t *testing.T) {
	for _, tc := range []struct {
		name   string
		bursts []uint32
		early  bool
		n      int64
		polls  int
	}{
		{"idle", make([]uint32, 100), true, 0, 0},
		{"pre-cancelled", newBursts(1000, 8), true, 0, 0},
		{"streaming", newBursts(1000, 8), false, 8, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			eng := &fakedev.Engine{Size: 64, Bursts: tc.bursts}
			ctl, region := armTestController(t, eng, command.Now, false)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tc.early {
				cancel()
			}

			out := &cancelWriter{w: new(bytes.Buffer), cancel: cancel}

			n, err := ctl.Drain(ctx, region, out)
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("invalid error: %+v", err)
			}
			if got, want := n, tc.n; got != want {
				t.Fatalf("invalid number of bytes: got=%d, want=%d", got, want)
			}
			if got, want := ctl.State(), Cancelled; got != want {
				t.Fatalf("invalid state: got=%v, want=%v", got, want)
			}
			if got, want := eng.Calls["contents"], tc.polls; got > want {
				t.Fatalf("too many polls after cancel: got=%d, want<=%d", got, want)
			}
			if got, want := eng.Calls["cancel"], 1; got != want {
				t.Fatalf("invalid number of engine cancels: got=%d, want=%d", got, want)
			}
		})
	}
}

func TestDrainTrigger(t *testing.T) {
	eng := &fakedev.Engine{Size: 64, Bursts: []uint32{8, 16}}
	ctl, region := armTestController(t, eng, command.Int, false)

	out := new(bytes.Buffer)
	n, err := ctl.Drain(context.Background(), region, out)
	if err != nil {
		t.Fatalf("could not drain: %+v", err)
	}
	if got, want := n, int64(24); got != want {
		t.Fatalf("invalid number of bytes: got=%d, want=%d", got, want)
	}
	if got, want := len(eng.Insns), 1; got != want {
		t.Fatalf("invalid number of triggers: got=%d, want=%d", got, want)
	}
	if got, want := ctl.State(), Completed; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}
}

func TestDrainFault(t *testing.T) {
	for _, tc := range []struct {
		name string
		op   string
		fop  string
	}{
		{"contents", "contents", "buffer-contents"},
		{"mark-read", "markread", "mark-read"},
		{"flags", "running", "subdevice-flags"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			eng := &fakedev.Engine{
				Size:   64,
				Bursts: []uint32{8, 8},
				Errs:   map[string]error{tc.op: syscall.EIO},
			}
			ctl, region := armTestController(t, eng, command.Now, false)

			_, err := ctl.Drain(context.Background(), region, new(bytes.Buffer))
			var ef *EngineFault
			if !errors.As(err, &ef) {
				t.Fatalf("invalid error type %T: %+v", err, err)
			}
			if got, want := ef.Op, tc.fop; got != want {
				t.Fatalf("invalid fault operation: got=%q, want=%q", got, want)
			}
			if got, want := ef.Status, -int(syscall.EIO); got != want {
				t.Fatalf("invalid fault status: got=%d, want=%d", got, want)
			}
			if got, want := ctl.State(), Error; got != want {
				t.Fatalf("invalid state: got=%v, want=%v", got, want)
			}
		})
	}
}

func TestFill(t *testing.T) {
	eng := &fakedev.Engine{
		Size:   64,
		Bursts: []uint32{30, 30, 30, 30, 30, 30, 30},
	}
	ctl, region := armTestController(t, eng, command.Int, true)
	if got, want := ctl.Buffer().Direction(), ringbuf.Output; got != want {
		t.Fatalf("invalid buffer direction: got=%v, want=%v", got, want)
	}

	src := make([]byte, 200)
	for i := range src {
		src[i] = byte(3 * i)
	}

	n, err := ctl.Fill(context.Background(), region, bytes.NewReader(src))
	if err != nil {
		t.Fatalf("could not fill: %+v", err)
	}
	if got, want := n, int64(len(src)); got != want {
		t.Fatalf("invalid number of bytes: got=%d, want=%d", got, want)
	}
	if !bytes.Equal(eng.Consumed, src) {
		t.Fatalf("invalid output samples:\ngot= %v\nwant=%v", eng.Consumed, src)
	}
	if got, want := ctl.State(), Completed; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}
	if got, want := len(eng.Insns), 1; got != want {
		t.Fatalf("invalid number of triggers: got=%d, want=%d", got, want)
	}
	if got, want := eng.Calls["cancel"], 1; got != want {
		t.Fatalf("invalid number of engine cancels: got=%d, want=%d", got, want)
	}
}

func TestFillCancel(t *testing.T) {
	eng := &fakedev.Engine{Size: 64, Bursts: newBursts(1000, 8)}
	ctl, region := armTestController(t, eng, command.Int, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &cancelReader{max: 128, cancel: cancel}
	n, err := ctl.Fill(ctx, region, src)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("invalid error: %+v", err)
	}
	if got, want := n, int64(128); got != want {
		t.Fatalf("invalid number of bytes: got=%d, want=%d", got, want)
	}
	if got, want := ctl.State(), Cancelled; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}
	if got := eng.Calls["contents"]; got >= len(eng.Bursts) {
		t.Fatalf("fill did not stop on cancel: polls=%d", got)
	}
	if got, want := eng.Calls["cancel"], 1; got != want {
		t.Fatalf("invalid number of engine cancels: got=%d, want=%d", got, want)
	}
}

func TestStreamDirection(t *testing.T) {
	eng := &fakedev.Engine{Size: 64, Bursts: []uint32{8}}
	ctl, region := armTestController(t, eng, command.Now, false)

	_, err := ctl.Fill(context.Background(), region, bytes.NewReader(nil))
	if err == nil {
		t.Fatalf("expected an error filling an input buffer")
	}
	if got, want := ctl.State(), Armed; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}

	_, err = ctl.Drain(context.Background(), &fakedev.Region{}, new(bytes.Buffer))
	if err == nil {
		t.Fatalf("expected an error for a too small region")
	}
}
