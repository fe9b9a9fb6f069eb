// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runlog

import (
	"context"
	"database/sql/driver"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/comedi/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

var t0 = time.Date(2021, 3, 4, 10, 20, 30, 0, time.UTC)

func withClock(t *testing.T) {
	tick := t0
	now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	t.Cleanup(func() { now = time.Now })
}

func TestRecord(t *testing.T) {
	withClock(t)

	rec := New("/dev/comedi0", 1, "cmd")
	if got, want := rec.Duration(), time.Duration(0); got != want {
		t.Fatalf("invalid duration: got=%v, want=%v", got, want)
	}
	rec.Finish("error", 42, errors.New("boom"))

	want := &Record{
		Device:  "/dev/comedi0",
		Subdev:  1,
		Command: "cmd",
		State:   "error",
		Start:   t0.Add(1 * time.Second),
		Stop:    t0.Add(2 * time.Second),
		Bytes:   42,
		Err:     "boom",
	}
	if !reflect.DeepEqual(rec, want) {
		t.Fatalf("invalid record:\ngot= %+v\nwant=%+v", rec, want)
	}
	if got, want := rec.Duration(), time.Second; got != want {
		t.Fatalf("invalid duration: got=%v, want=%v", got, want)
	}
}

func TestBolt(t *testing.T) {
	withClock(t)

	fname := filepath.Join(t.TempDir(), "runs.db")
	db, err := OpenBolt(fname)
	if err != nil {
		t.Fatalf("could not open bolt db: %+v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for i, dev := range []string{"/dev/comedi0", "/dev/comedi1", "/dev/comedi2"} {
		rec := New(dev, uint32(i), "cmd")
		err := db.Put(ctx, rec)
		if err != nil {
			t.Fatalf("could not put record %d: %+v", i, err)
		}
		if got, want := rec.ID, uint64(i+1); got != want {
			t.Fatalf("invalid record id: got=%d, want=%d", got, want)
		}
		if i == 1 {
			rec.Finish("completed", 1024, nil)
			err = db.Put(ctx, rec)
			if err != nil {
				t.Fatalf("could not update record %d: %+v", i, err)
			}
		}
	}

	recs, err := db.List(ctx, 0)
	if err != nil {
		t.Fatalf("could not list records: %+v", err)
	}
	if got, want := len(recs), 3; got != want {
		t.Fatalf("invalid number of records: got=%d, want=%d", got, want)
	}
	for i, rec := range recs {
		if got, want := rec.ID, uint64(3-i); got != want {
			t.Fatalf("invalid record[%d] id: got=%d, want=%d", i, got, want)
		}
	}
	if got, want := recs[1].State, "completed"; got != want {
		t.Fatalf("invalid state: got=%q, want=%q", got, want)
	}
	if got, want := recs[1].Bytes, int64(1024); got != want {
		t.Fatalf("invalid bytes: got=%d, want=%d", got, want)
	}

	recs, err = db.List(ctx, 2)
	if err != nil {
		t.Fatalf("could not list records: %+v", err)
	}
	if got, want := len(recs), 2; got != want {
		t.Fatalf("invalid number of records: got=%d, want=%d", got, want)
	}

	err = db.Close()
	if err != nil {
		t.Fatalf("could not close bolt db: %+v", err)
	}

	// records survive a reopen.
	db, err = OpenBolt(fname)
	if err != nil {
		t.Fatalf("could not reopen bolt db: %+v", err)
	}
	recs, err = db.List(ctx, 1)
	if err != nil {
		t.Fatalf("could not list records: %+v", err)
	}
	if got, want := recs[0].Device, "/dev/comedi2"; got != want {
		t.Fatalf("invalid device: got=%q, want=%q", got, want)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err = db.Put(cctx, New("/dev/comedi0", 0, "cmd"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("invalid error: got=%v, want=%v", err, context.Canceled)
	}
}

func TestDSN(t *testing.T) {
	got := DSN("daq", "s3cr3t", "localhost:3306", "comedi")
	for _, want := range []string{"daq:s3cr3t@tcp(localhost:3306)/comedi", "parseTime=true"} {
		if !strings.Contains(got, want) {
			t.Fatalf("invalid dsn %q: missing %q", got, want)
		}
	}

	_, err := OpenSQL("not a dsn")
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestSQL(t *testing.T) {
	db, err := OpenSQL(DSN("daq", "s3cr3t", "localhost", "comedi"))
	if err != nil {
		t.Fatalf("could not open sql db: %+v", err)
	}
	defer db.Close()

	stop := t0.Add(time.Minute)
	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"id", "device", "subdev", "command", "state", "start", "stop", "bytes", "error"},
		Values: [][]driver.Value{
			{int64(2), "/dev/comedi0", int64(0), "cmd-2", "running", t0, nil, int64(0), ""},
			{int64(1), "/dev/comedi0", int64(1), "cmd-1", "error", t0, stop, int64(64), "boom"},
		},
	}, func(ctx context.Context) error {
		err := db.Init(ctx)
		if err != nil {
			t.Fatalf("could not create table: %+v", err)
		}

		rec := &Record{Device: "/dev/comedi0", Command: "cmd", State: "running", Start: t0}
		err = db.Put(ctx, rec)
		if err != nil {
			t.Fatalf("could not insert record: %+v", err)
		}
		if rec.ID == 0 {
			t.Fatalf("record id not assigned")
		}

		rec.Finish("completed", 10, nil)
		err = db.Put(ctx, rec)
		if err != nil {
			t.Fatalf("could not update record: %+v", err)
		}

		execs := fakedb.Execs()
		if got, want := len(execs), 3; got != want {
			t.Fatalf("invalid number of statements: got=%d, want=%d", got, want)
		}
		for i, want := range []string{"CREATE TABLE", "INSERT INTO runs", "UPDATE runs"} {
			if !strings.Contains(execs[i].Query, want) {
				t.Fatalf("invalid statement[%d]: got=%q, want=%q", i, execs[i].Query, want)
			}
		}
		if got, want := execs[2].Args[len(execs[2].Args)-1], int64(rec.ID); got != want {
			t.Fatalf("invalid updated id: got=%v, want=%v", got, want)
		}

		recs, err := db.List(ctx, 10)
		if err != nil {
			t.Fatalf("could not list records: %+v", err)
		}
		want := []Record{
			{ID: 2, Device: "/dev/comedi0", Subdev: 0, Command: "cmd-2", State: "running", Start: t0},
			{ID: 1, Device: "/dev/comedi0", Subdev: 1, Command: "cmd-1", State: "error", Start: t0, Stop: stop, Bytes: 64, Err: "boom"},
		}
		if !reflect.DeepEqual(recs, want) {
			t.Fatalf("invalid records:\ngot= %+v\nwant=%+v", recs, want)
		}
		return nil
	})

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Err: errors.New("db down"),
	}, func(ctx context.Context) error {
		err := db.Put(ctx, &Record{Device: "/dev/comedi0"})
		if err == nil {
			t.Fatalf("expected an error")
		}
		_, err = db.List(ctx, 0)
		if err == nil {
			t.Fatalf("expected an error")
		}
		return nil
	})
}
