// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedev provides a scripted in-memory comedi engine.
package fakedev // import "github.com/go-lpc/comedi/internal/fakedev"

import (
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/go-lpc/comedi/command"
	"github.com/go-lpc/comedi/insn"
)

// Engine is a fake comedi engine driven by a script.
//
// For an input command, each call to BufferContents produces the next
// burst of Bursts into the mapped region.
// For an output command, each call to BufferContents consumes the next
// step of Bursts from the mapped region, once the command started.
// The command stops running once all bursts were played.
type Engine struct {
	mu sync.Mutex

	Size   uint32                       // ring buffer size in bytes
	Steps  []func(cmd *command.Cmd) int // command test script
	Bursts []uint32                     // bytes produced or consumed per poll
	Errs   map[string]error             // errors injected per operation

	Calls    map[string]int       // number of calls per operation
	Tested   []*command.Cmd       // commands submitted to CommandTest
	Cmd      *command.Cmd         // command submitted to Command
	Insns    [][]insn.Instruction // instruction lists executed
	Consumed []byte               // bytes consumed by the output hardware

	region  *Region
	started bool
	stopped bool
	burst   int
	wr, rd  uint32
	woff    uint32
	roff    uint32
}

func (eng *Engine) call(op string) error {
	if eng.Calls == nil {
		eng.Calls = make(map[string]int)
	}
	eng.Calls[op]++
	return eng.Errs[op]
}

// CommandTest implements command.Tester.
func (eng *Engine) CommandTest(cmd *command.Cmd) (int, error) {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if err := eng.call("cmdtest"); err != nil {
		return -1, err
	}
	i := len(eng.Tested)
	eng.Tested = append(eng.Tested, cmd.Clone())
	if i >= len(eng.Steps) {
		return 0, nil
	}
	return eng.Steps[i](cmd), nil
}

// Command starts the execution of a command.
func (eng *Engine) Command(cmd *command.Cmd) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if err := eng.call("cmd"); err != nil {
		return err
	}
	if eng.Cmd != nil && !eng.stopped {
		return syscall.EBUSY
	}
	eng.Cmd = cmd.Clone()
	eng.started = cmd.Start.Src != command.Int
	eng.stopped = false
	eng.burst = 0
	eng.wr = 0
	eng.rd = 0
	eng.woff = 0
	eng.roff = 0
	return nil
}

// Cancel stops the current command.
func (eng *Engine) Cancel(subdev uint32) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if err := eng.call("cancel"); err != nil {
		return err
	}
	eng.stopped = true
	return nil
}

// Running returns whether the current command is still running.
func (eng *Engine) Running(subdev uint32) (bool, error) {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if err := eng.call("running"); err != nil {
		return false, err
	}
	return eng.running(), nil
}

func (eng *Engine) running() bool {
	return eng.Cmd != nil && !eng.stopped && eng.burst < len(eng.Bursts)
}

// BufferSize returns the size of the ring buffer.
func (eng *Engine) BufferSize(subdev uint32) (uint32, error) {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if err := eng.call("bufsize"); err != nil {
		return 0, err
	}
	return eng.Size, nil
}

// BufferContents plays the next burst and returns the number of bytes
// written to the buffer and not yet read.
func (eng *Engine) BufferContents(subdev uint32) (uint32, error) {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if err := eng.call("contents"); err != nil {
		return 0, err
	}
	if eng.started && eng.running() {
		n := eng.Bursts[eng.burst]
		eng.burst++
		switch {
		case eng.Cmd.IsWrite():
			eng.consume(n)
		default:
			eng.produce(n)
		}
	}
	return eng.wr - eng.rd, nil
}

func (eng *Engine) produce(n uint32) {
	var buf []byte
	if eng.region != nil {
		buf = eng.region.Bytes()
	}
	for i := uint32(0); i < n; i++ {
		if len(buf) > 0 {
			buf[eng.woff] = byte(eng.wr + i)
			eng.woff = (eng.woff + 1) % uint32(len(buf))
		}
	}
	eng.wr += n
}

func (eng *Engine) consume(n uint32) {
	if avail := eng.wr - eng.rd; n > avail {
		n = avail
	}
	var buf []byte
	if eng.region != nil {
		buf = eng.region.Bytes()
	}
	if len(buf) == 0 {
		eng.rd += n
		return
	}
	for i := uint32(0); i < n; i++ {
		eng.Consumed = append(eng.Consumed, buf[eng.roff])
		eng.roff = (eng.roff + 1) % uint32(len(buf))
	}
	eng.rd += n
}

// MarkRead marks n bytes of the buffer as read.
func (eng *Engine) MarkRead(subdev uint32, n uint32) (uint32, error) {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if err := eng.call("markread"); err != nil {
		return 0, err
	}
	if avail := eng.wr - eng.rd; n > avail {
		return 0, syscall.EINVAL
	}
	eng.rd += n
	return n, nil
}

// MarkWritten marks n bytes of the buffer as written.
func (eng *Engine) MarkWritten(subdev uint32, n uint32) (uint32, error) {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if err := eng.call("markwritten"); err != nil {
		return 0, err
	}
	if free := eng.Size - (eng.wr - eng.rd); n > free {
		return 0, syscall.EINVAL
	}
	eng.wr += n
	return n, nil
}

// DoInsnList implements insn.Executor.
func (eng *Engine) DoInsnList(insns []insn.Instruction) (int, error) {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if err := eng.call("insn"); err != nil {
		return 0, err
	}
	eng.Insns = append(eng.Insns, insns)
	for i := range insns {
		ins := &insns[i]
		switch ins.Op {
		case insn.GTOD:
			now := time.Now()
			ins.Data[0] = uint32(now.Unix())
			ins.Data[1] = uint32(now.Nanosecond() / 1000)
		case insn.Read:
			for j := range ins.Data {
				ins.Data[j] = uint32(ins.Chan.Chan())<<8 | uint32(j)
			}
		case insn.InternalTrigger:
			if eng.Cmd == nil || eng.stopped || eng.Cmd.Start.Src != command.Int {
				return i, syscall.EINVAL
			}
			eng.started = true
		}
	}
	return len(insns), nil
}

// Map returns the in-memory ring buffer region.
func (eng *Engine) Map(subdev uint32, size int, write bool) (*Region, error) {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if err := eng.call("map"); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("fakedev: invalid mapping size %d", size)
	}
	eng.region = &Region{data: make([]byte, size)}
	return eng.region, nil
}

// Region is an in-memory ring buffer region.
type Region struct {
	data []byte
}

// Len returns the size of the region.
func (r *Region) Len() int { return len(r.data) }

// Bytes returns the content of the region.
func (r *Region) Bytes() []byte { return r.data }

// ReadAt implements io.ReaderAt.
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(r.data)) {
		return 0, fmt.Errorf("fakedev: invalid ReadAt offset %d", off)
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(r.data)) {
		return 0, fmt.Errorf("fakedev: invalid WriteAt offset %d", off)
	}
	n := copy(r.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Close releases the region.
func (r *Region) Close() error {
	r.data = nil
	return nil
}

var (
	_ command.Tester = (*Engine)(nil)
	_ insn.Executor  = (*Engine)(nil)
	_ io.ReaderAt    = (*Region)(nil)
	_ io.WriterAt    = (*Region)(nil)
)
