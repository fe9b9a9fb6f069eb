// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocType = 'd'
)

func ioc(dir, nr, size uintptr) uint {
	return uint(dir<<30 | size<<16 | iocType<<8 | nr)
}

var (
	ioctlDevInfo   = ioc(iocRead, 1, unsafe.Sizeof(devinfoT{}))
	ioctlSubdInfo  = ioc(iocRead, 2, unsafe.Sizeof(subdinfoT{}))
	ioctlLock      = ioc(iocNone, 5, 0)
	ioctlUnlock    = ioc(iocNone, 6, 0)
	ioctlCancel    = ioc(iocNone, 7, 0)
	ioctlCmd       = ioc(iocRead, 9, unsafe.Sizeof(cmdT{}))
	ioctlCmdTest   = ioc(iocRead, 10, unsafe.Sizeof(cmdT{}))
	ioctlInsnList  = ioc(iocRead, 11, unsafe.Sizeof(insnlistT{}))
	ioctlInsn      = ioc(iocRead, 12, unsafe.Sizeof(insnT{}))
	ioctlBufConfig = ioc(iocRead, 13, unsafe.Sizeof(bufconfigT{}))
	ioctlBufInfo   = ioc(iocRead|iocWrite, 14, unsafe.Sizeof(bufinfoT{}))
	ioctlPoll      = ioc(iocNone, 15, 0)
)

// kernel structures, laid out as in linux/comedi.h.

type devinfoT struct {
	version   uint32
	nSubdevs  uint32
	driver    [20]byte
	board     [20]byte
	readSubd  int32
	writeSubd int32
	unused    [30]int32
}

type subdinfoT struct {
	typ          uint32
	nChan        uint32
	subdFlags    uint32
	timerType    uint32
	lenChanlist  uint32
	maxdata      uint32
	flags        uint32
	rangeType    uint32
	settlingTime uint32
	insnBits     uint32
	unused       [8]uint32
}

type cmdT struct {
	subdev       uint32
	flags        uint32
	startSrc     uint32
	startArg     uint32
	scanBeginSrc uint32
	scanBeginArg uint32
	convertSrc   uint32
	convertArg   uint32
	scanEndSrc   uint32
	scanEndArg   uint32
	stopSrc      uint32
	stopArg      uint32
	chanlist     *uint32
	chanlistLen  uint32
	data         *uint16
	dataLen      uint32
}

type insnT struct {
	insn     uint32
	n        uint32
	data     *uint32
	subdev   uint32
	chanspec uint32
	unused   [3]uint32
}

type insnlistT struct {
	n     uint32
	insns *insnT
}

type bufconfigT struct {
	subdev  uint32
	flags   uint32
	maxSize uint32
	size    uint32
	unused  [4]uint32
}

type bufinfoT struct {
	subdev       uint32
	bytesRead    uint32
	bufWritePtr  uint32
	bufReadPtr   uint32
	bufWriteCnt  uint32
	bufReadCnt   uint32
	bytesWritten uint32
	unused       [4]uint32
}

var (
	ioctlPtr = ioctlPtrImpl
	ioctlInt = ioctlIntImpl
)

func ioctlPtrImpl(fd int, req uint, arg unsafe.Pointer) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return -1, errno
	}
	return int(r), nil
}

func ioctlIntImpl(fd int, req uint, arg uintptr) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), arg)
	if errno != 0 {
		return -1, errno
	}
	return int(r), nil
}
