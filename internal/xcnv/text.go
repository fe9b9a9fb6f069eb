// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Text writes one line per scan, samples separated by a space.
type Text struct {
	w   *bufio.Writer
	sc  *scanner
	buf []byte
}

// NewText returns a text sink writing to w.
func NewText(w io.Writer, lay Layout) (*Text, error) {
	sc, err := newScanner(lay)
	if err != nil {
		return nil, err
	}
	return &Text{w: bufio.NewWriter(w), sc: sc}, nil
}

func (t *Text) Write(p []byte) (int, error) {
	err := t.sc.feed(p, t.writeScan)
	if err != nil {
		return 0, fmt.Errorf("xcnv: could not write text scan: %w", err)
	}
	return len(p), nil
}

func (t *Text) writeScan(scan []uint32) error {
	t.buf = t.buf[:0]
	for i, v := range scan {
		if i > 0 {
			t.buf = append(t.buf, ' ')
		}
		t.buf = strconv.AppendUint(t.buf, uint64(v), 10)
	}
	t.buf = append(t.buf, '\n')
	_, err := t.w.Write(t.buf)
	return err
}

// writeSamples writes already decoded samples.
func (t *Text) writeSamples(vs []int32) error {
	n := len(t.sc.scan)
	if len(vs)%n != 0 {
		return fmt.Errorf("xcnv: %d samples do not fill scans of %d channels", len(vs), n)
	}
	scan := make([]uint32, n)
	for len(vs) > 0 {
		for i := range scan {
			scan[i] = uint32(vs[i])
		}
		err := t.writeScan(scan)
		if err != nil {
			return err
		}
		vs = vs[n:]
	}
	return nil
}

// Close flushes the sink. It does not close the underlying writer.
func (t *Text) Close() error {
	if n := t.sc.pending(); n != 0 {
		_ = t.w.Flush()
		return fmt.Errorf("xcnv: %d bytes of incomplete scan left", n)
	}
	return t.w.Flush()
}
