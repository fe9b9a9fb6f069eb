// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"fmt"
	"io"
	"os"

	"github.com/go-lpc/comedi/config"
	"github.com/go-lpc/comedi/internal/xcnv"
)

// OpenSink returns the writer of acquired samples described by out.
// Text and raw samples go to stdout when no output file is configured.
func OpenSink(out config.Output, lay xcnv.Layout, stdout io.Writer) (io.WriteCloser, error) {
	switch out.Format {
	case "csv":
		w, err := xcnv.CreateCSV(out.File, lay)
		if err != nil {
			return nil, err
		}
		return w, nil
	case "lcio":
		w, err := xcnv.CreateLCIO(out.File, out.Run, lay, out.Level)
		if err != nil {
			return nil, err
		}
		return w, nil
	case "text", "raw":
		var (
			w io.Writer = stdout
			f *os.File
		)
		if out.File != "" {
			var err error
			f, err = os.Create(out.File)
			if err != nil {
				return nil, fmt.Errorf("acq: could not create output file: %w", err)
			}
			w = f
		}
		if out.Format == "raw" {
			return &sink{w: w, f: f}, nil
		}
		txt, err := xcnv.NewText(w, lay)
		if err != nil {
			if f != nil {
				_ = f.Close()
			}
			return nil, err
		}
		return &sink{w: txt, c: txt, f: f}, nil
	}
	return nil, fmt.Errorf("acq: invalid output format %q", out.Format)
}

type sink struct {
	w io.Writer
	c io.Closer
	f *os.File
}

func (s *sink) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *sink) Close() error {
	var err error
	if s.c != nil {
		err = s.c.Close()
	}
	if s.f != nil {
		e := s.f.Close()
		if e != nil && err == nil {
			err = fmt.Errorf("acq: could not close output file: %w", e)
		}
	}
	return err
}
