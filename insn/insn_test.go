// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package insn

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/go-lpc/comedi/chanspec"
)

func TestOpcode(t *testing.T) {
	for _, tc := range []struct {
		op      Opcode
		name    string
		value   uint32
		r, w, s bool
	}{
		{Read, "read", 0x04000000, true, false, false},
		{Write, "write", 0x08000001, false, true, false},
		{Bits, "bits", 0x0c000002, true, true, false},
		{Config, "config", 0x0c000003, true, true, false},
		{DeviceConfig, "device_config", 0x0e000003, true, true, true},
		{GTOD, "gtod", 0x06000004, true, false, true},
		{Wait, "wait", 0x0a000005, false, true, true},
		{InternalTrigger, "inttrig", 0x0a000006, false, true, true},
		{Opcode(0x42), "opcode(0x42)", 0x42, false, false, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got, want := uint32(tc.op), tc.value; got != want {
				t.Fatalf("invalid opcode value: got=0x%x, want=0x%x", got, want)
			}
			if got, want := tc.op.String(), tc.name; got != want {
				t.Fatalf("invalid name: got=%q, want=%q", got, want)
			}
			if got, want := tc.op.Reads(), tc.r; got != want {
				t.Fatalf("invalid read flag: got=%v, want=%v", got, want)
			}
			if got, want := tc.op.Writes(), tc.w; got != want {
				t.Fatalf("invalid write flag: got=%v, want=%v", got, want)
			}
			if got, want := tc.op.Special(), tc.s; got != want {
				t.Fatalf("invalid special flag: got=%v, want=%v", got, want)
			}
		})
	}
}

func TestConstructors(t *testing.T) {
	spec := chanspec.Pack(2, 1, chanspec.Diff, 0)
	samples := []uint32{1, 2, 3}

	for _, tc := range []struct {
		name string
		ins  Instruction
		op   Opcode
		n    int
	}{
		{"gtod", NewGTOD(), GTOD, 2},
		{"read", NewRead(0, spec, 10), Read, 10},
		{"write", NewWrite(1, spec, samples...), Write, 3},
		{"bits", NewBits(2, 0x3, 0x1), Bits, 2},
		{"bits-read", NewBitsRead(2), Bits, 2},
		{"config", NewConfig(3, spec, 1, 2), Config, 2},
		{"device-config", NewDeviceConfig(1, 2, 3, 4), DeviceConfig, 4},
		{"wait", NewWait(2 * time.Microsecond), Wait, 1},
		{"inttrig", NewInternalTrigger(1, 0), InternalTrigger, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got, want := tc.ins.Op, tc.op; got != want {
				t.Fatalf("invalid opcode: got=%v, want=%v", got, want)
			}
			if got, want := tc.ins.N(), tc.n; got != want {
				t.Fatalf("invalid operand count: got=%d, want=%d", got, want)
			}
		})
	}

	w := NewWrite(1, spec, samples...)
	samples[0] = 42
	if w.Data[0] != 1 {
		t.Fatalf("write instruction does not own its data")
	}
	if got, want := NewWait(2*time.Microsecond).Data[0], uint32(2000); got != want {
		t.Fatalf("invalid wait duration: got=%d, want=%d", got, want)
	}
}

func TestTime(t *testing.T) {
	ins := NewGTOD()
	ins.Data[0] = 1600000000
	ins.Data[1] = 250000

	tv, err := ins.Time()
	if err != nil {
		t.Fatalf("could not decode time: %+v", err)
	}
	if got, want := tv, time.Unix(1600000000, 250*int64(time.Millisecond)); !got.Equal(want) {
		t.Fatalf("invalid time: got=%v, want=%v", got, want)
	}

	rd := NewRead(0, 0, 2)
	if _, err := rd.Time(); err == nil {
		t.Fatalf("expected an error")
	}
}

type fakeExec struct {
	n   int
	err error
	got []Instruction
}

func (e *fakeExec) DoInsnList(insns []Instruction) (int, error) {
	e.got = insns
	for i := 0; i < e.n && i < len(insns); i++ {
		if insns[i].Op == GTOD {
			insns[i].Data[0] = uint32(10 + i)
		}
	}
	return e.n, e.err
}

func TestBatch(t *testing.T) {
	errIO := syscall.EIO
	for _, tc := range []struct {
		name  string
		exec  fakeExec
		n     int
		index int
		err   error
	}{
		{name: "ok", exec: fakeExec{n: 3}, n: 3, index: -1},
		{name: "partial", exec: fakeExec{n: 1, err: errIO}, n: 1, index: 1, err: errIO},
		{name: "partial-no-err", exec: fakeExec{n: 2}, n: 2, index: 2},
		{name: "none", exec: fakeExec{n: -1, err: errIO}, n: 0, index: 0, err: errIO},
		{name: "all-with-err", exec: fakeExec{n: 3, err: errIO}, n: 3, index: -1, err: errIO},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBatch(0)
			b.Add(NewGTOD(), NewRead(0, chanspec.Pack(0, 0, chanspec.Ground, 0), 4), NewGTOD())

			n, err := b.Execute(&tc.exec)
			if got, want := n, tc.n; got != want {
				t.Fatalf("invalid executed count: got=%d, want=%d", got, want)
			}
			if len(tc.exec.got) != 3 {
				t.Fatalf("invalid submitted count: %d", len(tc.exec.got))
			}

			var perr *PartialBatchError
			switch {
			case tc.index < 0 && tc.err == nil:
				if err != nil {
					t.Fatalf("could not execute batch: %+v", err)
				}
				if got, want := b.At(2).Data[0], uint32(12); got != want {
					t.Fatalf("invalid in-place result: got=%d, want=%d", got, want)
				}
			case tc.index < 0:
				if !errors.Is(err, tc.err) {
					t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.err)
				}
				if errors.As(err, &perr) {
					t.Fatalf("unexpected partial batch error: %+v", err)
				}
			default:
				if !errors.As(err, &perr) {
					t.Fatalf("invalid error type %T: %+v", err, err)
				}
				if got, want := perr.Index, tc.index; got != want {
					t.Fatalf("invalid failing index: got=%d, want=%d", got, want)
				}
				if got, want := perr.Op, b.At(tc.index).Op; got != want {
					t.Fatalf("invalid failing opcode: got=%v, want=%v", got, want)
				}
				if tc.err != nil && !errors.Is(err, tc.err) {
					t.Fatalf("invalid wrapped error: got=%+v, want=%+v", err, tc.err)
				}
			}
		})
	}

	n, err := NewBatch(0).Execute(&fakeExec{n: 1, err: fmt.Errorf("boom")})
	if n != 0 || err != nil {
		t.Fatalf("empty batch should be a no-op: n=%d, err=%+v", n, err)
	}
}

func TestPartialBatchError(t *testing.T) {
	err := &PartialBatchError{Index: 1, Op: Read, N: 3, Err: syscall.EINVAL}
	if got, want := err.Error(), "insn: batch stopped at instruction 1/3 (read): invalid argument"; got != want {
		t.Fatalf("invalid message: got=%q, want=%q", got, want)
	}
	err.Err = nil
	if got, want := err.Error(), "insn: batch stopped at instruction 1/3 (read)"; got != want {
		t.Fatalf("invalid message: got=%q, want=%q", got, want)
	}
}

func TestResize(t *testing.T) {
	b := NewBatch(3)
	*b.At(0) = NewGTOD()
	*b.At(1) = NewRead(0, 0, 4)
	*b.At(2) = NewGTOD()
	data := b.At(1).Data

	b.Resize(2)
	if got, want := b.Len(), 2; got != want {
		t.Fatalf("invalid length: got=%d, want=%d", got, want)
	}
	if &b.At(1).Data[0] != &data[0] {
		t.Fatalf("resize should move data buffers")
	}

	b.Resize(5)
	if got, want := b.Len(), 5; got != want {
		t.Fatalf("invalid length: got=%d, want=%d", got, want)
	}
	if got, want := b.At(0).Op, GTOD; got != want {
		t.Fatalf("invalid kept instruction: got=%v, want=%v", got, want)
	}
	if got := b.At(4).Op; got != 0 {
		t.Fatalf("invalid new instruction: got=%v", got)
	}

	b.Resize(-1)
	if got, want := b.Len(), 0; got != want {
		t.Fatalf("invalid length: got=%d, want=%d", got, want)
	}

	b.Add(NewGTOD())
	b.Reset()
	if got := len(b.Instructions()); got != 0 {
		t.Fatalf("invalid length after reset: %d", got)
	}
}
