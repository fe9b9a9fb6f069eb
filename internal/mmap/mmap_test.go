// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmap

import (
	"bytes"
	"errors"
	"io"
	"os"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"
)

func TestHandle(t *testing.T) {
	t.Run("nil-handle", func(t *testing.T) {
		var h *Handle

		_, err := h.ReadAt(nil, 0)
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid read-at error: %+v", err)
		}

		_, err = h.WriteAt(nil, 0)
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid write-at error: %+v", err)
		}

		err = h.Close()
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid close error: %+v", err)
		}
	})
	t.Run("nil-data", func(t *testing.T) {
		var h Handle

		_, err := h.ReadAt(nil, 0)
		if !errors.Is(err, errClosed) {
			t.Fatalf("invalid read-at error: %+v", err)
		}

		_, err = h.WriteAt(nil, 0)
		if !errors.Is(err, errClosed) {
			t.Fatalf("invalid write-at error: %+v", err)
		}

		err = h.Close()
		if err != nil {
			t.Fatalf("error closing nil-data handle: %+v", err)
		}
	})
}

func TestMap(t *testing.T) {
	defer func(f func(int, int64, int, int, int) ([]byte, error), g func([]byte) error) {
		mmap = f
		munmap = g
	}(mmap, munmap)

	var (
		prot     int
		unmapped int
	)
	mmap = func(fd int, off int64, size, p, flags int) ([]byte, error) {
		if fd < 0 {
			return nil, syscall.EBADF
		}
		prot = p
		return make([]byte, size), nil
	}
	munmap = func([]byte) error {
		unmapped++
		return nil
	}

	_, err := Map(3, 0, false)
	if err == nil {
		t.Fatalf("expected an error for a zero-sized mapping")
	}

	_, err = Map(-1, 16, false)
	if !errors.Is(err, syscall.EBADF) {
		t.Fatalf("invalid error: %+v", err)
	}

	h, err := Map(3, 16, false)
	if err != nil {
		t.Fatalf("could not map: %+v", err)
	}
	if got, want := prot, unix.PROT_READ; got != want {
		t.Fatalf("invalid protection: got=%d, want=%d", got, want)
	}
	_ = h.Close()

	h, err = Map(3, 16, true)
	if err != nil {
		t.Fatalf("could not map: %+v", err)
	}
	if got, want := prot, unix.PROT_READ|unix.PROT_WRITE; got != want {
		t.Fatalf("invalid protection: got=%d, want=%d", got, want)
	}
	if got, want := h.Len(), 16; got != want {
		t.Fatalf("invalid length: got=%d, want=%d", got, want)
	}

	_, err = h.WriteAt([]byte{1, 2, 3}, 14)
	if !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("invalid short write error: %+v", err)
	}
	_, err = h.WriteAt([]byte{4, 5}, 0)
	if err != nil {
		t.Fatalf("could not write: %+v", err)
	}
	if got, want := h.At(1), byte(5); got != want {
		t.Fatalf("invalid byte: got=%d, want=%d", got, want)
	}

	buf := make([]byte, 4)
	_, err = h.ReadAt(buf, 14)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("invalid short read error: %+v", err)
	}
	if !bytes.Equal(buf[:2], []byte{1, 2}) {
		t.Fatalf("invalid data: %v", buf)
	}

	_, err = h.ReadAt(buf, 17)
	if err == nil {
		t.Fatalf("expected an error for an out of range offset")
	}

	err = h.Close()
	if err != nil {
		t.Fatalf("could not close: %+v", err)
	}
	err = h.Close()
	if err != nil {
		t.Fatalf("could not close twice: %+v", err)
	}
	if got, want := unmapped, 2; got != want {
		t.Fatalf("invalid number of unmaps: got=%d, want=%d", got, want)
	}
}
