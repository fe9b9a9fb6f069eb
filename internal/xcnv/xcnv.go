// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv converts the raw samples streamed out of a comedi ring
// buffer into text, CSV or LCIO data.
//
// Raw samples are little-endian, 2 or 4 bytes wide, interleaved in scans
// following the order of the channel list. Sinks accept arbitrary chunks
// of raw data: incomplete scans are kept until the next write.
package xcnv // import "github.com/go-lpc/comedi/internal/xcnv"

import (
	"encoding/binary"
	"fmt"
)

// Layout describes the raw samples of an acquisition.
type Layout struct {
	Channels   []uint16 // channel of each sample in a scan
	SampleSize int      // 2 or 4 bytes
}

func (lay Layout) validate() error {
	switch lay.SampleSize {
	case 2, 4:
	default:
		return fmt.Errorf("xcnv: invalid sample size %d", lay.SampleSize)
	}
	if len(lay.Channels) == 0 {
		return fmt.Errorf("xcnv: empty channel list")
	}
	return nil
}

// ScanSize returns the size in bytes of a scan.
func (lay Layout) ScanSize() int {
	return lay.SampleSize * len(lay.Channels)
}

// scanner splits raw data into scans.
type scanner struct {
	lay  Layout
	rem  []byte   // incomplete scan
	scan []uint32 // last decoded scan
}

func newScanner(lay Layout) (*scanner, error) {
	err := lay.validate()
	if err != nil {
		return nil, err
	}
	return &scanner{
		lay:  lay,
		rem:  make([]byte, 0, lay.ScanSize()),
		scan: make([]uint32, len(lay.Channels)),
	}, nil
}

// feed decodes all complete scans of rem+p and calls f for each of them.
// The scan passed to f is only valid during the call.
func (sc *scanner) feed(p []byte, f func(scan []uint32) error) error {
	size := sc.lay.ScanSize()
	if len(sc.rem) > 0 {
		n := copy(sc.rem[len(sc.rem):size], p)
		sc.rem = sc.rem[:len(sc.rem)+n]
		p = p[n:]
		if len(sc.rem) < size {
			return nil
		}
		err := f(sc.decode(sc.rem))
		sc.rem = sc.rem[:0]
		if err != nil {
			return err
		}
	}
	for len(p) >= size {
		err := f(sc.decode(p[:size]))
		if err != nil {
			return err
		}
		p = p[size:]
	}
	sc.rem = append(sc.rem, p...)
	return nil
}

func (sc *scanner) decode(p []byte) []uint32 {
	switch sc.lay.SampleSize {
	case 2:
		for i := range sc.scan {
			sc.scan[i] = uint32(binary.LittleEndian.Uint16(p[2*i:]))
		}
	case 4:
		for i := range sc.scan {
			sc.scan[i] = binary.LittleEndian.Uint32(p[4*i:])
		}
	}
	return sc.scan
}

// pending returns the number of buffered bytes of an incomplete scan.
func (sc *scanner) pending() int { return len(sc.rem) }
