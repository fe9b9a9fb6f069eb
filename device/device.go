// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device talks to a comedi character device through the kernel
// ioctl interface.
package device // import "github.com/go-lpc/comedi/device"

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"unsafe"

	"github.com/go-lpc/comedi/daq"
	"github.com/go-lpc/comedi/insn"
	"github.com/go-lpc/comedi/internal/mmap"
)

// SessionError reports a failure to open, close or lock a device.
type SessionError struct {
	Op     string
	Path   string
	Subdev int // -1 when the whole device is concerned
	Err    error
}

func (e *SessionError) Error() string {
	if e.Subdev < 0 {
		return fmt.Sprintf("device: could not %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("device: could not %s %s (subdev=%d): %v", e.Op, e.Path, e.Subdev, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Info describes a comedi device.
type Info struct {
	Version     Version `json:"version"`
	Driver      string  `json:"driver"`
	Board       string  `json:"board"`
	NumSubdevs  int     `json:"n_subdevs"`
	ReadSubdev  int     `json:"read_subdev"`
	WriteSubdev int     `json:"write_subdev"`
}

// Version is a comedi version code.
type Version uint32

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", (v>>16)&0xff, (v>>8)&0xff, v&0xff)
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// SubdInfo describes a subdevice.
type SubdInfo struct {
	Index       int      `json:"index"`
	Type        SubdType `json:"-"`
	TypeName    string   `json:"type"`
	NumChans    uint32   `json:"n_chans"`
	Flags       Flags    `json:"-"`
	FlagNames   string   `json:"flags"`
	MaxData     uint32   `json:"maxdata"`
	LenChanList uint32   `json:"len_chanlist"`
	RangeType   uint32   `json:"range_type"`
}

// Device is an open comedi device.
type Device struct {
	msg  *log.Logger
	path string
	f    *os.File
	fd   int

	err  error // sticky error
	info Info
}

// Open opens the comedi device file at path.
func Open(path string, opts ...Option) (*Device, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, &SessionError{Op: "open", Path: path, Subdev: -1, Err: err}
	}

	dev := &Device{
		msg:  cfg.msg,
		path: path,
		f:    f,
		fd:   int(f.Fd()),
	}

	dev.readInfo()
	if dev.err != nil {
		_ = f.Close()
		return nil, &SessionError{Op: "open", Path: path, Subdev: -1, Err: dev.err}
	}
	dev.msg.Printf("opened %s: driver=%s, board=%s, subdevs=%d",
		path, dev.info.Driver, dev.info.Board, dev.info.NumSubdevs,
	)

	return dev, nil
}

func (dev *Device) readInfo() {
	if dev.err != nil {
		return
	}
	var di devinfoT
	_, dev.err = ioctlPtr(dev.fd, ioctlDevInfo, unsafe.Pointer(&di))
	if dev.err != nil {
		dev.err = fmt.Errorf("device: could not read device info: %w", dev.err)
		return
	}
	dev.info = Info{
		Version:     Version(di.version),
		Driver:      cstring(di.driver[:]),
		Board:       cstring(di.board[:]),
		NumSubdevs:  int(di.nSubdevs),
		ReadSubdev:  int(di.readSubd),
		WriteSubdev: int(di.writeSubd),
	}
}

func cstring(p []byte) string {
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	return string(p)
}

// Close closes the device.
func (dev *Device) Close() error {
	if dev.f == nil {
		return nil
	}
	err := dev.f.Close()
	dev.f = nil
	if err != nil {
		return &SessionError{Op: "close", Path: dev.path, Subdev: -1, Err: err}
	}
	return nil
}

// Path returns the path of the device file.
func (dev *Device) Path() string { return dev.path }

// Fd returns the file descriptor of the device.
func (dev *Device) Fd() int { return dev.fd }

// Info returns the description of the device.
func (dev *Device) Info() Info { return dev.info }

// Lock reserves a subdevice for this process.
func (dev *Device) Lock(subdev uint32) error {
	_, err := ioctlInt(dev.fd, ioctlLock, uintptr(subdev))
	if err != nil {
		return &SessionError{Op: "lock", Path: dev.path, Subdev: int(subdev), Err: err}
	}
	return nil
}

// Unlock releases a subdevice locked with Lock.
func (dev *Device) Unlock(subdev uint32) error {
	_, err := ioctlInt(dev.fd, ioctlUnlock, uintptr(subdev))
	if err != nil {
		return &SessionError{Op: "unlock", Path: dev.path, Subdev: int(subdev), Err: err}
	}
	return nil
}

// Subdevices returns the description of all subdevices.
func (dev *Device) Subdevices() ([]SubdInfo, error) {
	n := dev.info.NumSubdevs
	if n <= 0 {
		return nil, nil
	}
	raw := make([]subdinfoT, n)
	_, err := ioctlPtr(dev.fd, ioctlSubdInfo, unsafe.Pointer(&raw[0]))
	if err != nil {
		return nil, fmt.Errorf("device: could not read subdevices info: %w", err)
	}
	subs := make([]SubdInfo, n)
	for i, v := range raw {
		subs[i] = SubdInfo{
			Index:       i,
			Type:        SubdType(v.typ),
			TypeName:    SubdType(v.typ).String(),
			NumChans:    v.nChan,
			Flags:       Flags(v.subdFlags),
			FlagNames:   Flags(v.subdFlags).String(),
			MaxData:     v.maxdata,
			LenChanList: v.lenChanlist,
			RangeType:   v.rangeType,
		}
	}
	return subs, nil
}

// Subdevice returns the description of a subdevice.
func (dev *Device) Subdevice(subdev uint32) (SubdInfo, error) {
	subs, err := dev.Subdevices()
	if err != nil {
		return SubdInfo{}, err
	}
	if int(subdev) >= len(subs) {
		return SubdInfo{}, fmt.Errorf("device: invalid subdevice %d (n_subdevs=%d)", subdev, len(subs))
	}
	return subs[subdev], nil
}

// FindSubdevice returns the index of the first subdevice of type typ,
// starting at index start.
func (dev *Device) FindSubdevice(typ SubdType, start int) (uint32, error) {
	subs, err := dev.Subdevices()
	if err != nil {
		return 0, err
	}
	for i := start; i < len(subs); i++ {
		if subs[i].Type == typ {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("device: no %v subdevice in %s", typ, dev.path)
}

// SubdeviceFlags returns the current flags of a subdevice.
func (dev *Device) SubdeviceFlags(subdev uint32) (Flags, error) {
	sub, err := dev.Subdevice(subdev)
	if err != nil {
		return 0, err
	}
	return sub.Flags, nil
}

// Running returns whether a command is still running on a subdevice.
func (dev *Device) Running(subdev uint32) (bool, error) {
	flags, err := dev.SubdeviceFlags(subdev)
	if err != nil {
		return false, err
	}
	return flags.Running(), nil
}

// SampleSize returns the size in bytes of a sample of a subdevice.
func (dev *Device) SampleSize(subdev uint32) (int, error) {
	flags, err := dev.SubdeviceFlags(subdev)
	if err != nil {
		return 0, err
	}
	return flags.SampleSize(), nil
}

// Map maps the ring buffer of the read subdevice, or of the write
// subdevice when write is set.
func (dev *Device) Map(size int, write bool) (*mmap.Handle, error) {
	h, err := mmap.Map(dev.fd, size, write)
	if err != nil {
		return nil, fmt.Errorf("device: could not map ring buffer: %w", err)
	}
	return h, nil
}

// MapBuffer maps the ring buffer of subdev.
// The kernel only maps the buffer of the read subdevice, or of the write
// subdevice when write is set: subdev must be one of those.
func (dev *Device) MapBuffer(subdev uint32, size int, write bool) (daq.Buffer, error) {
	dir, want := "read", dev.info.ReadSubdev
	if write {
		dir, want = "write", dev.info.WriteSubdev
	}
	if want < 0 || uint32(want) != subdev {
		return nil, fmt.Errorf("device: subdevice %d is not the %s subdevice of %s (%d)",
			subdev, dir, dev.path, want,
		)
	}
	h, err := dev.Map(size, write)
	if err != nil {
		return nil, err
	}
	return h, nil
}

var (
	_ daq.Engine    = (*Device)(nil)
	_ insn.Executor = (*Device)(nil)
	_ daq.Buffer    = (*mmap.Handle)(nil)
)
