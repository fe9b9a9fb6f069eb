// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-lpc/comedi/chanspec"
	"github.com/go-lpc/comedi/insn"
)

type shell struct {
	dev  insn.Executor
	w    io.Writer
	rng  uint8
	aref chanspec.Aref
}

func newShell(dev insn.Executor, w io.Writer) *shell {
	return &shell{dev: dev, w: w, aref: chanspec.Ground}
}

const help = `commands:
  read  <subdev> <chan> [n]      read n samples from a channel
  write <subdev> <chan> <v>...   write samples to a channel
  bits  <subdev> <mask> <bits>   read-modify-write digital channels
  gtod                           display the time of the device
  help                           display this help
  quit                           leave the shell
`

// exec executes one shell command line.
func (sh *shell) exec(line string) (quit bool, err error) {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return false, nil
	}
	args := toks[1:]
	switch toks[0] {
	case "quit", "exit":
		return true, nil
	case "help", "?":
		fmt.Fprint(sh.w, help)
		return false, nil
	case "gtod":
		return false, sh.gtod()
	case "read":
		if len(args) < 2 || len(args) > 3 {
			return false, fmt.Errorf("usage: read <subdev> <chan> [n]")
		}
		vs, err := parseUints(args)
		if err != nil {
			return false, err
		}
		n := 1
		if len(vs) == 3 {
			n = int(vs[2])
		}
		return false, sh.read(vs[0], uint16(vs[1]), n)
	case "write":
		if len(args) < 3 {
			return false, fmt.Errorf("usage: write <subdev> <chan> <v>...")
		}
		vs, err := parseUints(args)
		if err != nil {
			return false, err
		}
		return false, sh.write(vs[0], uint16(vs[1]), vs[2:])
	case "bits":
		if len(args) != 3 {
			return false, fmt.Errorf("usage: bits <subdev> <mask> <bits>")
		}
		vs, err := parseUints(args)
		if err != nil {
			return false, err
		}
		return false, sh.bits(vs[0], vs[1], vs[2])
	}
	return false, fmt.Errorf("unknown command %q (try \"help\")", toks[0])
}

func parseUints(args []string) ([]uint32, error) {
	vs := make([]uint32, len(args))
	for i, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("could not parse argument %q: %w", arg, err)
		}
		vs[i] = uint32(v)
	}
	return vs, nil
}

func (sh *shell) spec(chn uint16) chanspec.Spec {
	return chanspec.Pack(chn, sh.rng, sh.aref, 0)
}

// read reads n samples from a channel, between two gettimeofday
// instructions executed in the same batch.
func (sh *shell) read(subdev uint32, chn uint16, n int) error {
	if n <= 0 {
		return fmt.Errorf("invalid number of samples %d", n)
	}

	batch := insn.NewBatch(0)
	batch.Add(
		insn.NewGTOD(),
		insn.NewRead(subdev, sh.spec(chn), n),
		insn.NewGTOD(),
	)
	_, err := batch.Execute(sh.dev)
	if err != nil {
		return fmt.Errorf("could not read channel %d: %w", chn, err)
	}

	t0, err := batch.At(0).Time()
	if err != nil {
		return err
	}
	t1, err := batch.At(2).Time()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "initial time: %d.%06d\n", t0.Unix(), t0.Nanosecond()/1000)
	fmt.Fprintf(sh.w, "final time:   %d.%06d\n", t1.Unix(), t1.Nanosecond()/1000)
	fmt.Fprintf(sh.w, "difference (us): %d\n", t1.Sub(t0).Microseconds())
	for i, v := range batch.At(1).Data {
		fmt.Fprintf(sh.w, "data[%d]: %d\n", i, v)
	}
	return nil
}

func (sh *shell) write(subdev uint32, chn uint16, samples []uint32) error {
	batch := insn.NewBatch(0)
	batch.Add(insn.NewWrite(subdev, sh.spec(chn), samples...))
	_, err := batch.Execute(sh.dev)
	if err != nil {
		return fmt.Errorf("could not write channel %d: %w", chn, err)
	}
	fmt.Fprintf(sh.w, "wrote %d samples\n", len(samples))
	return nil
}

func (sh *shell) bits(subdev, mask, bits uint32) error {
	batch := insn.NewBatch(0)
	batch.Add(insn.NewBits(subdev, mask, bits))
	_, err := batch.Execute(sh.dev)
	if err != nil {
		return fmt.Errorf("could not update digital channels: %w", err)
	}
	fmt.Fprintf(sh.w, "bits: 0x%08x\n", batch.At(0).Data[1])
	return nil
}

func (sh *shell) gtod() error {
	batch := insn.NewBatch(0)
	batch.Add(insn.NewGTOD())
	_, err := batch.Execute(sh.dev)
	if err != nil {
		return fmt.Errorf("could not get time of day: %w", err)
	}
	t, err := batch.At(0).Time()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "time: %d.%06d\n", t.Unix(), t.Nanosecond()/1000)
	return nil
}
