// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// lcio-dump displays the comedi samples stored in LCIO files.
//
// Usage: lcio-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> lcio-dump -hdr ./run-0042.slcio
//	=== run 42 (COMEDI) ===
//	description: comedi raw samples
//	channels:    [0 1]
//	sample size: [2]
//	2048 1024
//	2049 1023
//	[...]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/comedi/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

const usage = `lcio-dump displays the comedi samples stored in LCIO files.

Usage: lcio-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> lcio-dump -hdr ./run-0042.slcio
 === run 42 (COMEDI) ===
 description: comedi raw samples
 channels:    [0 1]
 sample size: [2]
 2048 1024
 2049 1023
 [...]

`

func main() {
	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	log.SetPrefix("lcio-dump: ")
	log.SetFlags(0)

	var (
		fset = flag.NewFlagSet("lcio", flag.ExitOnError)

		hdr  = fset.Bool("hdr", false, "display the run header")
		freq = fset.Int("freq", 0, "frequency of progress messages (in events)")
	)

	fset.Usage = func() {
		fmt.Print(usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input LCIO file")
	}

	for _, fname := range fset.Args() {
		err := process(w, fname, *hdr, *freq)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, hdr bool, freq int) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	if hdr {
		err := dumpHeader(wbuf, fname)
		if err != nil {
			return err
		}
	}

	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open LCIO file: %w", err)
	}
	defer r.Close()

	msg := log.New(os.Stderr, "lcio-dump: ", 0)
	err = xcnv.LCIO2Text(wbuf, r, freq, msg)
	if err != nil {
		return fmt.Errorf("could not dump samples: %w", err)
	}

	return wbuf.Flush()
}

func dumpHeader(w io.Writer, fname string) error {
	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open LCIO file: %w", err)
	}
	defer r.Close()

	// the run header is read together with the first event.
	if !r.Next() {
		if err := r.Err(); err != nil && err != io.EOF {
			return fmt.Errorf("could not read LCIO file: %w", err)
		}
	}

	rhdr := r.RunHeader()
	fmt.Fprintf(w, "=== run %d (%s) ===\n", rhdr.RunNumber, rhdr.Detector)
	fmt.Fprintf(w, "description: %s\n", rhdr.Descr)
	fmt.Fprintf(w, "channels:    %v\n", rhdr.Params.Ints["Channels"])
	fmt.Fprintf(w, "sample size: %v\n", rhdr.Params.Ints["SampleSize"])
	return nil
}
