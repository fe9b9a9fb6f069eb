// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command comedi-ctl inspects and controls comedi devices and remote
// acquisition nodes.
//
// Usage: comedi-ctl <command> [OPTIONS]
//
// Example:
//
//	$> comedi-ctl info -d /dev/comedi0
//	$> comedi-ctl test ./ai.yaml -o yaml
//	$> comedi-ctl bufinfo -d /dev/comedi0 -s 0
//	$> comedi-ctl cancel -d /dev/comedi0 -s 0
//	$> comedi-ctl remote status --addr daq01:8080
//	$> comedi-ctl remote runs --addr daq01:8080 -n 10
package main // import "github.com/go-lpc/comedi/cmd/comedi-ctl"

import (
	"log"
	"os"
)

func main() {
	log.SetPrefix("comedi-ctl: ")
	log.SetFlags(0)

	err := NewRootCommand(os.Stdout).Execute()
	if err != nil {
		os.Exit(1)
	}
}
