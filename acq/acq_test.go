// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/go-lpc/comedi/command"
	"github.com/go-lpc/comedi/config"
	"github.com/go-lpc/comedi/daq"
	"github.com/go-lpc/comedi/internal/fakedev"
	"github.com/go-lpc/comedi/internal/xcnv"
	"github.com/go-lpc/comedi/ringbuf"
	"github.com/go-lpc/comedi/runlog"
	"github.com/go-lpc/comedi/statusd"
)

type fakeDevice struct {
	*fakedev.Engine

	ssize int
	locks map[uint32]int
}

func newFakeDevice(eng *fakedev.Engine) *fakeDevice {
	return &fakeDevice{
		Engine: eng,
		ssize:  2,
		locks:  make(map[uint32]int),
	}
}

func (dev *fakeDevice) Lock(subdev uint32) error {
	dev.locks[subdev]++
	return nil
}

func (dev *fakeDevice) Unlock(subdev uint32) error {
	dev.locks[subdev]--
	return nil
}

func (dev *fakeDevice) SampleSize(subdev uint32) (int, error) {
	return dev.ssize, nil
}

func (dev *fakeDevice) MapBuffer(subdev uint32, size int, write bool) (daq.Buffer, error) {
	region, err := dev.Map(subdev, size, write)
	if err != nil {
		return nil, err
	}
	return region, nil
}

type fakeAlerter struct {
	keys []string
}

func (a *fakeAlerter) Alert(key, body string) (bool, error) {
	a.keys = append(a.keys, key)
	return true, nil
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func newTestConfig(write bool) config.Config {
	cfg := config.Default()
	cfg.Channels = []uint16{0, 1}
	cfg.ScanEnd.Arg = 2
	cfg.Poll = time.Millisecond
	if write {
		cfg.Subdev = 1
		cfg.Write = true
		cfg.Start = command.Phase{Src: command.Int}
	}
	return cfg
}

func newTestSession(t *testing.T, dev Device, cfg config.Config, opts ...Option) *Session {
	t.Helper()

	opts = append([]Option{WithLogger(log.New(io.Discard, "acq: ", 0))}, opts...)
	sess := New("/dev/comedi0", dev, cfg, opts...)
	_, err := sess.Configure()
	if err != nil {
		t.Fatalf("could not configure session: %+v", err)
	}
	return sess
}

func openTestRunLog(t *testing.T) *runlog.Bolt {
	t.Helper()

	store, err := runlog.OpenBolt(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("could not open run log: %+v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAcquire(t *testing.T) {
	var (
		eng   = &fakedev.Engine{Size: 64, Bursts: []uint32{8, 16}}
		dev   = newFakeDevice(eng)
		board = new(statusd.Board)
		store = openTestRunLog(t)
		alrt  = new(fakeAlerter)
	)

	sess := newTestSession(
		t, dev, newTestConfig(false),
		WithBoard(board), WithRunLog(store), WithAlerter(alrt),
	)
	if got, want := dev.locks[0], 1; got != want {
		t.Fatalf("invalid lock count: got=%d, want=%d", got, want)
	}
	if got, want := sess.Layout(), (xcnv.Layout{Channels: []uint16{0, 1}, SampleSize: 2}); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid layout: got=%+v, want=%+v", got, want)
	}
	if got, want := board.Snapshot().State, "configured"; got != want {
		t.Fatalf("invalid board state: got=%q, want=%q", got, want)
	}

	out := new(bytes.Buffer)
	n, err := sess.Acquire(context.Background(), out)
	if err != nil {
		t.Fatalf("could not acquire: %+v", err)
	}
	if got, want := n, int64(24); got != want {
		t.Fatalf("invalid number of bytes: got=%d, want=%d", got, want)
	}
	for i, v := range out.Bytes() {
		if v != byte(i) {
			t.Fatalf("invalid byte %d: got=%d, want=%d", i, v, byte(i))
		}
	}

	snap := board.Snapshot()
	if got, want := snap.State, "completed"; got != want {
		t.Fatalf("invalid board state: got=%q, want=%q", got, want)
	}
	if got, want := snap.Bytes, int64(24); got != want {
		t.Fatalf("invalid board bytes: got=%d, want=%d", got, want)
	}
	if got, want := snap.RunID, uint64(1); got != want {
		t.Fatalf("invalid run id: got=%d, want=%d", got, want)
	}
	if got, want := snap.Buffer.Capacity, uint32(64); got != want {
		t.Fatalf("invalid buffer capacity: got=%d, want=%d", got, want)
	}

	recs, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("could not list runs: %+v", err)
	}
	if got, want := len(recs), 1; got != want {
		t.Fatalf("invalid number of runs: got=%d, want=%d", got, want)
	}
	rec := recs[0]
	if rec.State != "completed" || rec.Bytes != 24 || rec.Err != "" || rec.Device != "/dev/comedi0" {
		t.Fatalf("invalid run record: %+v", rec)
	}
	if rec.Stop.IsZero() {
		t.Fatalf("run record not stopped")
	}
	if len(alrt.keys) != 0 {
		t.Fatalf("unexpected alerts: %q", alrt.keys)
	}

	err = sess.Reset()
	if err != nil {
		t.Fatalf("could not reset session: %+v", err)
	}
	_, err = sess.Configure()
	if err != nil {
		t.Fatalf("could not reconfigure session: %+v", err)
	}
	if got, want := dev.locks[0], 1; got != want {
		t.Fatalf("invalid lock count after reconfigure: got=%d, want=%d", got, want)
	}

	err = sess.Close()
	if err != nil {
		t.Fatalf("could not close session: %+v", err)
	}
	if got, want := dev.locks[0], 0; got != want {
		t.Fatalf("invalid lock count after close: got=%d, want=%d", got, want)
	}
}

func TestAcquireDesync(t *testing.T) {
	var (
		eng   = &fakedev.Engine{Size: 16, Bursts: []uint32{20}}
		board = new(statusd.Board)
		store = openTestRunLog(t)
		alrt  = new(fakeAlerter)
	)

	sess := newTestSession(
		t, newFakeDevice(eng), newTestConfig(false),
		WithBoard(board), WithRunLog(store), WithAlerter(alrt),
	)
	defer sess.Close()

	_, err := sess.Acquire(context.Background(), io.Discard)
	if !errors.Is(err, ringbuf.ErrDesync) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, ringbuf.ErrDesync)
	}
	if got, want := sess.Controller().State(), daq.Error; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}
	if got, want := alrt.keys, []string{"desync"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid alerts: got=%q, want=%q", got, want)
	}
	if snap := board.Snapshot(); snap.State != "error" || snap.Err == "" {
		t.Fatalf("invalid snapshot: %+v", snap)
	}

	recs, err := store.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("could not list runs: %+v", err)
	}
	if recs[0].State != "error" || recs[0].Err == "" {
		t.Fatalf("invalid run record: %+v", recs[0])
	}
}

func TestAcquireCancel(t *testing.T) {
	eng := &fakedev.Engine{Size: 64, Bursts: make([]uint32, 1000)}
	for i := range eng.Bursts {
		eng.Bursts[i] = 8
	}
	board := new(statusd.Board)
	sess := newTestSession(t, newFakeDevice(eng), newTestConfig(false), WithBoard(board))
	defer sess.Close()

	err := sess.Cancel()
	if err == nil {
		t.Fatalf("expected an error cancelling an idle session")
	}

	out := writerFunc(func(p []byte) (int, error) {
		err := sess.Cancel()
		if err != nil {
			return 0, err
		}
		return len(p), nil
	})

	n, err := sess.Acquire(context.Background(), out)
	if err != nil {
		t.Fatalf("could not acquire: %+v", err)
	}
	if got, want := n, int64(8); got != want {
		t.Fatalf("invalid number of bytes: got=%d, want=%d", got, want)
	}
	if got, want := sess.Controller().State(), daq.Cancelled; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}
	if got, want := eng.Calls["cancel"], 1; got != want {
		t.Fatalf("invalid number of engine cancels: got=%d, want=%d", got, want)
	}
	if got, want := board.Snapshot().State, "cancelled"; got != want {
		t.Fatalf("invalid board state: got=%q, want=%q", got, want)
	}
}

func TestAcquireStartFailure(t *testing.T) {
	var (
		eng   = &fakedev.Engine{Size: 64, Bursts: []uint32{8, 8}}
		dev   = newFakeDevice(eng)
		store = openTestRunLog(t)
		alrt  = new(fakeAlerter)
	)

	sess := newTestSession(t, dev, newTestConfig(false), WithRunLog(store), WithAlerter(alrt))
	defer sess.Close()

	_, err := sess.Acquire(context.Background(), io.Discard)
	if err != nil {
		t.Fatalf("could not acquire: %+v", err)
	}
	err = sess.Reset()
	if err != nil {
		t.Fatalf("could not reset session: %+v", err)
	}
	_, err = sess.Configure()
	if err != nil {
		t.Fatalf("could not reconfigure session: %+v", err)
	}

	eng.Errs = map[string]error{"cmd": syscall.EIO}
	_, err = sess.Acquire(context.Background(), io.Discard)
	if !errors.Is(err, syscall.EIO) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, syscall.EIO)
	}

	recs, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("could not list runs: %+v", err)
	}
	if got, want := len(recs), 2; got != want {
		t.Fatalf("invalid number of runs: got=%d, want=%d", got, want)
	}
	if recs[0].State != "error" || recs[0].Err == "" {
		t.Fatalf("invalid failed run record: %+v", recs[0])
	}
	if recs[1].State != "completed" || recs[1].Err != "" {
		t.Fatalf("previous run record was modified: %+v", recs[1])
	}
	if got, want := alrt.keys, []string{"engine-fault"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid alerts: got=%q, want=%q", got, want)
	}
}

func TestGenerate(t *testing.T) {
	var (
		eng  = &fakedev.Engine{Size: 64, Bursts: []uint32{16, 16}}
		data = make([]byte, 32)
	)
	for i := range data {
		data[i] = byte(2 * i)
	}

	sess := newTestSession(t, newFakeDevice(eng), newTestConfig(true))
	defer sess.Close()

	_, err := sess.Acquire(context.Background(), io.Discard)
	if err == nil {
		t.Fatalf("expected an error acquiring with an output command")
	}

	n, err := sess.Generate(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("could not generate: %+v", err)
	}
	if got, want := n, int64(len(data)); got != want {
		t.Fatalf("invalid number of bytes: got=%d, want=%d", got, want)
	}
	if !bytes.Equal(eng.Consumed, data) {
		t.Fatalf("invalid consumed data:\ngot= %v\nwant=%v", eng.Consumed, data)
	}
	if got, want := sess.Controller().State(), daq.Completed; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}
	if got, want := eng.Calls["insn"], 1; got != want {
		t.Fatalf("invalid number of internal triggers: got=%d, want=%d", got, want)
	}
}

func TestConfigureErrors(t *testing.T) {
	eng := &fakedev.Engine{
		Size: 64,
		Steps: []func(cmd *command.Cmd) int{
			func(cmd *command.Cmd) int { return 5 },
		},
	}
	dev := newFakeDevice(eng)
	cfg := newTestConfig(false)
	sess := New("/dev/comedi0", dev, cfg, WithLogger(log.New(io.Discard, "", 0)))
	_, err := sess.Configure()
	if err == nil {
		t.Fatalf("expected an error")
	}
	var verr *command.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("invalid error type: %+v", err)
	}
	err = sess.Close()
	if err != nil {
		t.Fatalf("could not close session: %+v", err)
	}
	if got, want := dev.locks[0], 0; got != want {
		t.Fatalf("invalid lock count: got=%d, want=%d", got, want)
	}

	cfg.BufferSize = 1024
	sess = New("/dev/comedi0", dev, cfg, WithLogger(log.New(io.Discard, "", 0)))
	defer sess.Close()
	_, err = sess.Configure()
	if err == nil || !strings.Contains(err.Error(), "can not resize") {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestOpenSink(t *testing.T) {
	var (
		lay = xcnv.Layout{Channels: []uint16{0, 1}, SampleSize: 2}
		raw = []byte{1, 0, 2, 0, 3, 0, 4, 0}
		dir = t.TempDir()
	)

	for _, tc := range []struct {
		name string
		out  config.Output
		want string
		file bool
	}{
		{
			name: "text",
			out:  config.Output{Format: "text"},
			want: "1 2\n3 4\n",
		},
		{
			name: "raw",
			out:  config.Output{Format: "raw"},
			want: string(raw),
		},
		{
			name: "text-file",
			out:  config.Output{Format: "text", File: filepath.Join(dir, "out.txt")},
			want: "1 2\n3 4\n",
			file: true,
		},
		{
			name: "csv",
			out:  config.Output{Format: "csv", File: filepath.Join(dir, "out.csv")},
			want: "# ch0,ch1\n1,2\n3,4\n",
			file: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			stdout := new(bytes.Buffer)
			w, err := OpenSink(tc.out, lay, stdout)
			if err != nil {
				t.Fatalf("could not open sink: %+v", err)
			}
			_, err = w.Write(raw)
			if err != nil {
				t.Fatalf("could not write samples: %+v", err)
			}
			err = w.Close()
			if err != nil {
				t.Fatalf("could not close sink: %+v", err)
			}

			got := stdout.String()
			if tc.file {
				p, err := os.ReadFile(tc.out.File)
				if err != nil {
					t.Fatalf("could not read output file: %+v", err)
				}
				got = string(p)
			}
			if got != tc.want {
				t.Fatalf("invalid output:\ngot= %q\nwant=%q", got, tc.want)
			}
		})
	}

	_, err := OpenSink(config.Output{Format: "hdf5"}, lay, io.Discard)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestOpenRunLog(t *testing.T) {
	t.Setenv("COMEDI_RUNLOG_DSN", "")

	store, err := OpenRunLog(config.RunLog{})
	if err != nil {
		t.Fatalf("could not open empty run log: %+v", err)
	}
	if store != nil {
		t.Fatalf("expected a nil run log")
	}

	store, err = OpenRunLog(config.RunLog{Bolt: filepath.Join(t.TempDir(), "runs.db")})
	if err != nil {
		t.Fatalf("could not open bolt run log: %+v", err)
	}
	defer store.Close()
	if _, ok := store.(*runlog.Bolt); !ok {
		t.Fatalf("invalid run log type %T", store)
	}

	_, err = OpenRunLog(config.RunLog{SQL: "not a DSN"})
	if err == nil {
		t.Fatalf("expected an error opening an invalid DSN")
	}
}

func TestNewAlerter(t *testing.T) {
	msg := log.New(io.Discard, "", 0)
	if a := NewAlerter(config.Alert{}, msg); a != nil {
		t.Fatalf("expected a nil alerter")
	}
	if a := NewAlerter(config.Alert{Enabled: true, Subject: "comedi-ai"}, msg); a == nil {
		t.Fatalf("expected a non-nil alerter")
	}
}
