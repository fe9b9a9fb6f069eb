// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/comedi/command"
	"github.com/go-lpc/comedi/device"
	"github.com/go-lpc/comedi/internal/fakedev"
	"github.com/go-lpc/comedi/runlog"
	"github.com/go-lpc/comedi/statusd"
)

type fakeDevice struct {
	*fakedev.Engine

	closed int
}

func (dev *fakeDevice) Info() device.Info {
	return device.Info{
		Version:     0x00074c,
		Driver:      "fake_drv",
		Board:       "fake_board",
		NumSubdevs:  2,
		ReadSubdev:  0,
		WriteSubdev: -1,
	}
}

func (dev *fakeDevice) Subdevices() ([]device.SubdInfo, error) {
	flags := device.SDFCmd | device.SDFCmdRead | device.SDFReadable | device.SDFGround
	return []device.SubdInfo{
		{
			Index:     0,
			Type:      device.AI,
			TypeName:  device.AI.String(),
			NumChans:  8,
			Flags:     flags,
			FlagNames: flags.String(),
			MaxData:   0xffff,
		},
		{
			Index:    1,
			Type:     device.Unused,
			TypeName: device.Unused.String(),
		},
	}, nil
}

func (dev *fakeDevice) BufInfo(subdev uint32) (device.BufInfo, error) {
	return device.BufInfo{
		Subdev:     subdev,
		WritePtr:   96,
		ReadPtr:    32,
		WriteCount: 1120,
		ReadCount:  1056,
	}, nil
}

func (dev *fakeDevice) Close() error {
	dev.closed++
	return nil
}

func withDevice(t *testing.T, dev *fakeDevice) {
	t.Helper()
	orig := openDevice
	t.Cleanup(func() { openDevice = orig })
	openDevice = func(path string) (engine, error) {
		return dev, nil
	}
}

func execute(args ...string) (string, error) {
	out := new(bytes.Buffer)
	cmd := NewRootCommand(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInfo(t *testing.T) {
	dev := &fakeDevice{Engine: &fakedev.Engine{Size: 4096}}
	withDevice(t, dev)

	for _, tc := range []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "text",
			args: []string{"info", "-d", "/dev/comedi0"},
			want: []string{
				"driver name:       fake_drv",
				"version code:      0.7.76",
				"type:            ai",
				"buffer size:     4096",
				"scan_begin:  any",
				"generic timed:   {",
				"subdevice 1:\n  type:            unused\n",
			},
		},
		{
			name: "yaml",
			args: []string{"info", "-o", "yaml"},
			want: []string{
				"path: /dev/comedi0",
				"driver: fake_drv",
				"version: 0.7.76",
				"buffer_size: 4096",
				"scan_begin: any",
				"type: ai",
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(tc.args...)
			if err != nil {
				t.Fatalf("could not run info: %+v", err)
			}
			for _, want := range tc.want {
				if !strings.Contains(out, want) {
					t.Fatalf("missing %q in output:\n%s", want, out)
				}
			}
		})
	}
	if got, want := dev.closed, 2; got != want {
		t.Fatalf("invalid number of closes: got=%d, want=%d", got, want)
	}
}

func TestNegotiate(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "ai.yaml")
	err := os.WriteFile(fname, []byte("device: /dev/comedi3\nchannels: [0, 1]\n"), 0644)
	if err != nil {
		t.Fatalf("could not write config file: %+v", err)
	}

	for _, tc := range []struct {
		name  string
		steps []func(cmd *command.Cmd) int
		args  []string
		want  []string
		fail  bool
	}{
		{
			name: "clamped",
			steps: []func(cmd *command.Cmd) int{
				func(cmd *command.Cmd) int {
					cmd.ScanBegin.Arg = 1000500
					return int(command.ArgClamped)
				},
			},
			args: []string{"test", fname},
			want: []string{
				"device /dev/comedi3, subdevice 0:",
				"round 0: argument-clamped (severity=3)",
				"1000000 -> 1000500",
				"round 1: accepted (severity=0)",
			},
		},
		{
			name: "yaml",
			args: []string{"test", fname, "-o", "yaml", "-d", "/dev/comedi1"},
			want: []string{
				"device: /dev/comedi1",
				"kind: accepted",
			},
		},
		{
			name: "rejected",
			steps: []func(cmd *command.Cmd) int{
				func(cmd *command.Cmd) int { return int(command.ChanListRejected) },
			},
			args: []string{"test", fname},
			want: []string{
				"round 0: channel-list-rejected (severity=5)",
				"error: command: unrecoverable command",
			},
			fail: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			withDevice(t, &fakeDevice{Engine: &fakedev.Engine{Steps: tc.steps}})
			out, err := execute(tc.args...)
			switch {
			case err == nil && tc.fail:
				t.Fatalf("expected an error")
			case err != nil && !tc.fail:
				t.Fatalf("could not negotiate command: %+v", err)
			}
			for _, want := range tc.want {
				if !strings.Contains(out, want) {
					t.Fatalf("missing %q in output:\n%s", want, out)
				}
			}
		})
	}
}

func TestDeviceCommands(t *testing.T) {
	dev := &fakeDevice{Engine: &fakedev.Engine{Size: 4096}}
	withDevice(t, dev)

	out, err := execute("bufinfo", "-s", "0")
	if err != nil {
		t.Fatalf("could not run bufinfo: %+v", err)
	}
	for _, want := range []string{"size:        4096", "contents:    64", "read ptr:    32"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}

	out, err = execute("cancel", "-s", "0", "-d", "/dev/comedi2")
	if err != nil {
		t.Fatalf("could not run cancel: %+v", err)
	}
	if got, want := out, "cancelled /dev/comedi2, subdevice 0\n"; got != want {
		t.Fatalf("invalid output: got=%q, want=%q", got, want)
	}
	if got, want := dev.Calls["cancel"], 1; got != want {
		t.Fatalf("invalid number of cancel calls: got=%d, want=%d", got, want)
	}

	_, err = execute("bufinfo", "-o", "xml")
	if err == nil {
		t.Fatalf("expected an error with an invalid output format")
	}
}

type fakeStore struct {
	recs []runlog.Record
}

func (s *fakeStore) Put(ctx context.Context, rec *runlog.Record) error { return nil }
func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) List(ctx context.Context, n int) ([]runlog.Record, error) {
	if n > 0 && n < len(s.recs) {
		return s.recs[:n], nil
	}
	return s.recs, nil
}

func TestRemote(t *testing.T) {
	board := new(statusd.Board)
	board.Publish(statusd.Snapshot{
		Device: "/dev/comedi0",
		RunID:  42,
		State:  "running",
		Bytes:  1024,
		Buffer: statusd.Buffer{Capacity: 4096, Available: 128},
	})
	store := &fakeStore{recs: []runlog.Record{
		{ID: 2, Device: "/dev/comedi0", State: "running"},
		{ID: 1, Device: "/dev/comedi0", State: "error", Err: "buffer overrun"},
	}}
	cancelled := 0
	srv := statusd.New(
		board,
		statusd.WithLogger(log.New(io.Discard, "", 0)),
		statusd.WithRunLog(store),
		statusd.WithCancel(func() error {
			cancelled++
			return nil
		}),
	)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, tc := range []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "status",
			args: []string{"remote", "status", "--addr", ts.URL},
			want: []string{"run:     42", "state:   running", "buffer:  128/4096"},
		},
		{
			name: "status-yaml",
			args: []string{"remote", "status", "--addr", ts.URL, "-o", "yaml"},
			want: []string{"run_id: 42", "state: running"},
		},
		{
			name: "runs",
			args: []string{"remote", "runs", "--addr", ts.URL, "-n", "0"},
			want: []string{"run 2: /dev/comedi0", `run 1: /dev/comedi0 subdev=0 state=error bytes=0`, `error="buffer overrun"`},
		},
		{
			name: "cancel",
			args: []string{"remote", "cancel", "--addr", ts.URL},
			want: []string{"cancel requested on " + ts.URL},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(tc.args...)
			if err != nil {
				t.Fatalf("could not run remote %s: %+v", tc.name, err)
			}
			for _, want := range tc.want {
				if !strings.Contains(out, want) {
					t.Fatalf("missing %q in output:\n%s", want, out)
				}
			}
		})
	}
	if got, want := cancelled, 1; got != want {
		t.Fatalf("invalid number of cancellations: got=%d, want=%d", got, want)
	}

	ts.Close()
	_, err := execute("remote", "status", "--addr", ts.URL)
	if err == nil {
		t.Fatalf("expected an error querying a closed server")
	}
}
