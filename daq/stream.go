// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-lpc/comedi/command"
	"github.com/go-lpc/comedi/ringbuf"
)

func (c *Controller) checkStream(op string, region Region, dir ringbuf.Direction) error {
	switch c.state {
	case Armed, Running:
	default:
		return &TransitionError{Op: op, State: c.state}
	}
	if got := c.buf.Direction(); got != dir {
		return fmt.Errorf("daq: could not %s %v buffer", op, got)
	}
	if region == nil || uint64(region.Len()) < uint64(c.buf.Capacity()) {
		return fmt.Errorf("daq: mapped region too small for a %d bytes buffer", c.buf.Capacity())
	}
	return nil
}

// Drain streams the data acquired by an input command into w until the
// command completes, fails or ctx is done.
// An armed command with an internal start is triggered first.
//
// Drain always releases the command before returning: the region may be
// unmapped afterwards.
func (c *Controller) Drain(ctx context.Context, region Region, w io.Writer) (n int64, err error) {
	err = c.checkStream("drain", region, ringbuf.Input)
	if err != nil {
		return 0, err
	}
	defer func() {
		e := c.Release()
		if err == nil {
			err = e
		}
	}()

	if c.state == Armed && c.cmd.Start.Src == command.Int {
		err = c.Trigger()
		if err != nil {
			return 0, c.fail(err)
		}
	}

	var (
		subdev = c.cmd.Subdev
		tmp    = make([]byte, c.buf.Capacity())
	)
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		state, err := c.Update()
		if err != nil {
			return n, c.fail(err)
		}

		unread, err := c.eng.BufferContents(subdev)
		if err != nil {
			return n, c.fail(fault("buffer-contents", err))
		}
		err = c.buf.Sync(unread)
		if err != nil {
			return n, c.fail(err)
		}

		spans, err := c.buf.ReadWindow(math.MaxUint32)
		if err != nil {
			return n, c.fail(err)
		}

		var nn uint32
		for _, span := range spans {
			p := tmp[:span.Len]
			_, err = region.ReadAt(p, int64(span.Offset))
			if err != nil {
				return n, c.fail(fmt.Errorf("daq: could not read mapped buffer: %w", err))
			}
			_, err = w.Write(p)
			if err != nil {
				return n, c.fail(fmt.Errorf("daq: could not write samples: %w", err))
			}
			nn += span.Len
		}

		if nn > 0 {
			_, err = c.eng.MarkRead(subdev, nn)
			if err != nil {
				return n, c.fail(fault("mark-read", err))
			}
			err = c.buf.AckRead(nn)
			if err != nil {
				return n, c.fail(err)
			}
			n += int64(nn)
		}

		if state == Completed && nn == unread {
			return n, nil
		}

		if nn > 0 {
			continue
		}
		err = c.sleep(ctx)
		if err != nil {
			return n, err
		}
	}
}

// Fill streams data from r to an output command.
// The whole buffer is preloaded before the internal start trigger fires.
// Once r is exhausted, Fill waits for the command to complete.
//
// Fill always releases the command before returning.
func (c *Controller) Fill(ctx context.Context, region Region, r io.Reader) (n int64, err error) {
	err = c.checkStream("fill", region, ringbuf.Output)
	if err != nil {
		return 0, err
	}
	defer func() {
		e := c.Release()
		if err == nil {
			err = e
		}
	}()

	var (
		subdev = c.cmd.Subdev
		tmp    = make([]byte, c.buf.Capacity())
		eof    bool
	)

	if c.state == Armed {
		nn, done, err := c.feed(region, r, tmp)
		n += int64(nn)
		if err != nil {
			return n, c.fail(err)
		}
		eof = done
		if c.cmd.Start.Src == command.Int {
			err = c.Trigger()
			if err != nil {
				return n, c.fail(err)
			}
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		state, err := c.Update()
		if err != nil {
			return n, c.fail(err)
		}

		pending, err := c.eng.BufferContents(subdev)
		if err != nil {
			return n, c.fail(fault("buffer-contents", err))
		}
		err = c.buf.Sync(pending)
		if err != nil {
			return n, c.fail(err)
		}

		if state == Completed {
			return n, nil
		}

		var nn uint32
		if !eof {
			nn, eof, err = c.feed(region, r, tmp)
			n += int64(nn)
			if err != nil {
				return n, c.fail(err)
			}
		}
		if nn > 0 {
			continue
		}
		err = c.sleep(ctx)
		if err != nil {
			return n, err
		}
	}
}

// feed copies data from r into the free window of the buffer and
// publishes it to the engine.
func (c *Controller) feed(region Region, r io.Reader, tmp []byte) (uint32, bool, error) {
	spans, err := c.buf.WriteWindow(math.MaxUint32)
	if err != nil {
		return 0, false, err
	}

	var (
		nn  uint32
		eof bool
	)
	for _, span := range spans {
		p := tmp[:span.Len]
		k, err := io.ReadFull(r, p)
		if k > 0 {
			_, werr := region.WriteAt(p[:k], int64(span.Offset))
			if werr != nil {
				return nn, eof, fmt.Errorf("daq: could not write mapped buffer: %w", werr)
			}
			nn += uint32(k)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				eof = true
				break
			}
			return nn, eof, fmt.Errorf("daq: could not read samples: %w", err)
		}
	}

	if nn == 0 {
		return 0, eof, nil
	}
	_, err = c.eng.MarkWritten(c.cmd.Subdev, nn)
	if err != nil {
		return 0, eof, fault("mark-written", err)
	}
	err = c.buf.AckWrite(nn)
	if err != nil {
		return 0, eof, err
	}
	return nn, eof, nil
}

func (c *Controller) sleep(ctx context.Context) error {
	timer := time.NewTimer(c.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
