// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"fmt"
	"strings"

	"go-hep.org/x/hep/csvutil"
)

// CSV writes one row per scan, one column per channel, in a CSV file.
type CSV struct {
	tbl *csvutil.Table
	sc  *scanner
	row []interface{}
}

// CreateCSV creates the CSV file fname.
func CreateCSV(fname string, lay Layout) (*CSV, error) {
	sc, err := newScanner(lay)
	if err != nil {
		return nil, err
	}

	tbl, err := csvutil.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("xcnv: could not create CSV file: %w", err)
	}
	tbl.Writer.Comma = ','

	hdr := make([]string, len(lay.Channels))
	for i, ch := range lay.Channels {
		hdr[i] = fmt.Sprintf("ch%d", ch)
	}
	err = tbl.WriteHeader("# " + strings.Join(hdr, ",") + "\n")
	if err != nil {
		_ = tbl.Close()
		return nil, fmt.Errorf("xcnv: could not write CSV header: %w", err)
	}

	return &CSV{
		tbl: tbl,
		sc:  sc,
		row: make([]interface{}, len(lay.Channels)),
	}, nil
}

func (c *CSV) Write(p []byte) (int, error) {
	err := c.sc.feed(p, func(scan []uint32) error {
		for i, v := range scan {
			c.row[i] = v
		}
		return c.tbl.WriteRow(c.row...)
	})
	if err != nil {
		return 0, fmt.Errorf("xcnv: could not write CSV row: %w", err)
	}
	return len(p), nil
}

// Close flushes and closes the CSV file.
func (c *CSV) Close() error {
	err := c.tbl.Close()
	if err != nil {
		return fmt.Errorf("xcnv: could not close CSV file: %w", err)
	}
	if n := c.sc.pending(); n != 0 {
		return fmt.Errorf("xcnv: %d bytes of incomplete scan left", n)
	}
	return nil
}
