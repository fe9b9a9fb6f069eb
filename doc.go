// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package comedi holds client code to drive comedi data acquisition
// devices: synchronous instruction batches and asynchronous streaming
// commands over a memory-mapped ring buffer.
//
// The sub-packages are layered as follows:
//   - chanspec packs channel references,
//   - command describes and negotiates streaming commands,
//   - ringbuf tracks the mapped circular buffer,
//   - insn builds instruction batches,
//   - daq drives a streaming session,
//   - device talks to the Linux kernel driver,
//   - acq runs complete sessions on top of them,
//   - node exposes a session as a TDAQ run-control node.
package comedi // import "github.com/go-lpc/comedi"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of comedi and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	const root = "github.com/go-lpc/comedi"
	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace != nil {
			switch {
			case m.Replace.Version != "" && m.Replace.Path != "":
				return fmt.Sprintf("%s %s", m.Replace.Path, m.Replace.Version), m.Replace.Sum
			case m.Replace.Version != "":
				return m.Replace.Version, m.Replace.Sum
			case m.Replace.Path != "":
				return m.Replace.Path, m.Replace.Sum
			default:
				return m.Version + "*", ""
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
