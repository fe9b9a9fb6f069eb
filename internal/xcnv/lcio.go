// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"fmt"
	"io"
	"log"
	"time"

	"go-hep.org/x/hep/lcio"
)

const (
	lcioDetector   = "COMEDI"
	lcioCollection = "COMEDI_RAW"
)

// LCIO writes one LCIO event per written chunk of complete scans.
// Samples are stored as the int32 data of a generic object.
type LCIO struct {
	w   *lcio.Writer
	run int32
	evt int32
	sc  *scanner

	raw *lcio.GenericObject
}

// CreateLCIO creates the LCIO file fname for the run number run.
// The run header records the channel list and the sample size.
func CreateLCIO(fname string, run int32, lay Layout, lvl int) (*LCIO, error) {
	sc, err := newScanner(lay)
	if err != nil {
		return nil, err
	}

	w, err := lcio.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("xcnv: could not create LCIO file: %w", err)
	}
	w.SetCompressionLevel(lvl)

	chans := make([]int32, len(lay.Channels))
	for i, ch := range lay.Channels {
		chans[i] = int32(ch)
	}
	err = w.WriteRunHeader(&lcio.RunHeader{
		RunNumber: run,
		Detector:  lcioDetector,
		Descr:     "comedi raw samples",
		Params: lcio.Params{
			Ints: map[string][]int32{
				"Channels":   chans,
				"SampleSize": {int32(lay.SampleSize)},
			},
		},
	})
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("xcnv: could not write run header: %w", err)
	}

	return &LCIO{
		w:   w,
		run: run,
		sc:  sc,
		raw: &lcio.GenericObject{
			Data: []lcio.GenericObjectData{{I32s: nil}},
		},
	}, nil
}

func (o *LCIO) Write(p []byte) (int, error) {
	samples := o.raw.Data[0].I32s[:0]
	err := o.sc.feed(p, func(scan []uint32) error {
		for _, v := range scan {
			samples = append(samples, int32(v))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	o.raw.Data[0].I32s = samples
	if len(samples) == 0 {
		return len(p), nil
	}

	evt := lcio.Event{
		RunNumber:   o.run,
		EventNumber: o.evt,
		TimeStamp:   now().UnixNano(),
		Detector:    lcioDetector,
	}
	evt.Add(lcioCollection, o.raw)

	err = o.w.WriteEvent(&evt)
	if err != nil {
		return 0, fmt.Errorf("xcnv: could not write LCIO event %d: %w", o.evt, err)
	}
	o.evt++
	return len(p), nil
}

// Events returns the number of written events.
func (o *LCIO) Events() int { return int(o.evt) }

// Close closes the LCIO file.
func (o *LCIO) Close() error {
	err := o.w.Close()
	if err != nil {
		return fmt.Errorf("xcnv: could not close LCIO file: %w", err)
	}
	if n := o.sc.pending(); n != 0 {
		return fmt.Errorf("xcnv: %d bytes of incomplete scan left", n)
	}
	return nil
}

// LCIO2Text writes the samples stored in an LCIO file as text, one line
// per scan.
func LCIO2Text(w io.Writer, r *lcio.Reader, freq int, msg *log.Logger) error {
	var (
		out *Text
		i   = 0
	)

	for r.Next() {
		if freq > 0 && i%freq == 0 {
			msg.Printf("processing evt %d...", i)
		}
		evt := r.Event()
		if out == nil {
			lay, err := layoutFrom(r.RunHeader())
			if err != nil {
				return err
			}
			out, err = NewText(w, lay)
			if err != nil {
				return err
			}
		}

		obj, ok := evt.Get(lcioCollection).(*lcio.GenericObject)
		if !ok || len(obj.Data) == 0 {
			return fmt.Errorf("xcnv: event %d has no %s collection", evt.EventNumber, lcioCollection)
		}
		err := out.writeSamples(obj.Data[0].I32s)
		if err != nil {
			return fmt.Errorf("xcnv: could not convert event %d: %w", evt.EventNumber, err)
		}
		i++
	}

	if err := r.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("xcnv: could not read LCIO file: %w", err)
	}
	if out == nil {
		return nil
	}
	return out.Close()
}

func layoutFrom(hdr lcio.RunHeader) (Layout, error) {
	var lay Layout
	chans, ok := hdr.Params.Ints["Channels"]
	if !ok {
		return lay, fmt.Errorf("xcnv: run header without channel list")
	}
	lay.Channels = make([]uint16, len(chans))
	for i, ch := range chans {
		lay.Channels[i] = uint16(ch)
	}
	lay.SampleSize = 4
	if v := hdr.Params.Ints["SampleSize"]; len(v) == 1 {
		lay.SampleSize = int(v[0])
	}
	return lay, lay.validate()
}

var now = time.Now
