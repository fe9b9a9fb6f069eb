// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command comedi-insn executes synchronous instructions on a comedi device.
//
// By default, comedi-insn reads a channel between two gettimeofday
// instructions, in a single atomic batch, and displays the samples with
// the time spent executing the batch.
//
// Usage: comedi-insn [OPTIONS]
//
// Example:
//
//	$> comedi-insn -dev /dev/comedi0 -subdev 0 -chan 3 -n 10
//	$> comedi-insn -dev /dev/comedi0 -i
//	comedi> read 0 3 4
//	comedi> write 1 0 2048
//	comedi> bits 2 0xff 0x0f
//	comedi> quit
package main // import "github.com/go-lpc/comedi/cmd/comedi-insn"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/go-lpc/comedi/chanspec"
	"github.com/go-lpc/comedi/device"
	"github.com/go-lpc/comedi/insn"
	"github.com/peterh/liner"
)

type engine interface {
	insn.Executor
	io.Closer
}

var openDevice = func(path string) (engine, error) {
	dev, err := device.Open(path)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func main() {
	var (
		dname  = flag.String("dev", "/dev/comedi0", "comedi device file")
		subdev = flag.Uint("subdev", 0, "subdevice")
		chn    = flag.Uint("chan", 0, "channel")
		rng    = flag.Uint("range", 0, "range")
		aref   = flag.String("aref", "ground", "analog reference")
		nsamps = flag.Int("n", 10, "number of samples")
		interp = flag.Bool("i", false, "run an interactive shell")
	)

	log.SetPrefix("comedi-insn: ")
	log.SetFlags(0)

	flag.Parse()

	ref, err := chanspec.ParseAref(*aref)
	if err != nil {
		log.Fatalf("could not parse analog reference: %+v", err)
	}

	dev, err := openDevice(*dname)
	if err != nil {
		log.Fatalf("could not open comedi device: %+v", err)
	}
	defer dev.Close()

	sh := newShell(dev, os.Stdout)
	sh.rng = uint8(*rng)
	sh.aref = ref

	switch {
	case *interp:
		err = sh.loop()
	default:
		err = sh.read(uint32(*subdev), uint16(*chn), *nsamps)
	}
	if err != nil {
		_ = dev.Close()
		log.Fatalf("could not execute instructions: %+v", err)
	}
}

const historyFile = ".comedi-insn.history"

// loop runs the interactive shell until quit or end of input.
func (sh *shell) loop() error {
	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	fname := filepath.Join(os.Getenv("HOME"), historyFile)
	if f, err := os.Open(fname); err == nil {
		_, _ = term.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(fname)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	for {
		line, err := term.Prompt("comedi> ")
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, liner.ErrPromptAborted):
			return nil
		default:
			return fmt.Errorf("could not read command: %w", err)
		}
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		quit, err := sh.exec(line)
		if err != nil {
			fmt.Fprintf(sh.w, "error: %+v\n", err)
		}
		if quit {
			return nil
		}
	}
}
