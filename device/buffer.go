// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"unsafe"
)

// BufInfo is the status of the ring buffer of a subdevice.
type BufInfo struct {
	Subdev     uint32 `json:"subdev"`
	WritePtr   uint32 `json:"write_ptr"`
	ReadPtr    uint32 `json:"read_ptr"`
	WriteCount uint32 `json:"write_count"`
	ReadCount  uint32 `json:"read_count"`
}

// Contents returns the number of bytes written and not yet read.
func (bi BufInfo) Contents() uint32 { return bi.WriteCount - bi.ReadCount }

func (dev *Device) bufconfig(subdev, maxSize, size uint32) (bufconfigT, error) {
	bc := bufconfigT{subdev: subdev, maxSize: maxSize, size: size}
	_, err := ioctlPtr(dev.fd, ioctlBufConfig, unsafe.Pointer(&bc))
	return bc, err
}

func (dev *Device) bufinfo(subdev, read, written uint32) (bufinfoT, error) {
	bi := bufinfoT{subdev: subdev, bytesRead: read, bytesWritten: written}
	_, err := ioctlPtr(dev.fd, ioctlBufInfo, unsafe.Pointer(&bi))
	return bi, err
}

// BufferSize returns the size in bytes of the ring buffer of a subdevice.
func (dev *Device) BufferSize(subdev uint32) (uint32, error) {
	bc, err := dev.bufconfig(subdev, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("device: could not read buffer size of subdev %d: %w", subdev, err)
	}
	return bc.size, nil
}

// MaxBufferSize returns the maximum size of the ring buffer of a subdevice.
func (dev *Device) MaxBufferSize(subdev uint32) (uint32, error) {
	bc, err := dev.bufconfig(subdev, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("device: could not read max buffer size of subdev %d: %w", subdev, err)
	}
	return bc.maxSize, nil
}

// SetBufferSize resizes the ring buffer of a subdevice and returns its
// new size, rounded up by the driver to a page size multiple.
func (dev *Device) SetBufferSize(subdev, size uint32) (uint32, error) {
	bc, err := dev.bufconfig(subdev, 0, size)
	if err != nil {
		return 0, fmt.Errorf("device: could not set buffer size of subdev %d to %d: %w", subdev, size, err)
	}
	return bc.size, nil
}

// SetMaxBufferSize sets the maximum size of the ring buffer of a subdevice.
func (dev *Device) SetMaxBufferSize(subdev, size uint32) (uint32, error) {
	bc, err := dev.bufconfig(subdev, size, 0)
	if err != nil {
		return 0, fmt.Errorf("device: could not set max buffer size of subdev %d to %d: %w", subdev, size, err)
	}
	return bc.maxSize, nil
}

// BufInfo returns the status of the ring buffer of a subdevice.
func (dev *Device) BufInfo(subdev uint32) (BufInfo, error) {
	bi, err := dev.bufinfo(subdev, 0, 0)
	if err != nil {
		return BufInfo{}, fmt.Errorf("device: could not read buffer info of subdev %d: %w", subdev, err)
	}
	return BufInfo{
		Subdev:     bi.subdev,
		WritePtr:   bi.bufWritePtr,
		ReadPtr:    bi.bufReadPtr,
		WriteCount: bi.bufWriteCnt,
		ReadCount:  bi.bufReadCnt,
	}, nil
}

// BufferContents returns the number of bytes written to the ring buffer
// and not yet read.
func (dev *Device) BufferContents(subdev uint32) (uint32, error) {
	bi, err := dev.BufInfo(subdev)
	if err != nil {
		return 0, err
	}
	return bi.Contents(), nil
}

// MarkRead marks n bytes of the ring buffer as read and returns the
// number of bytes the driver released.
func (dev *Device) MarkRead(subdev, n uint32) (uint32, error) {
	bi, err := dev.bufinfo(subdev, n, 0)
	if err != nil {
		return 0, fmt.Errorf("device: could not mark %d bytes read on subdev %d: %w", n, subdev, err)
	}
	return bi.bytesRead, nil
}

// MarkWritten marks n bytes of the ring buffer as written and returns
// the number of bytes the driver accepted.
func (dev *Device) MarkWritten(subdev, n uint32) (uint32, error) {
	bi, err := dev.bufinfo(subdev, 0, n)
	if err != nil {
		return 0, fmt.Errorf("device: could not mark %d bytes written on subdev %d: %w", n, subdev, err)
	}
	return bi.bytesWritten, nil
}
