// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"

	"github.com/go-lpc/comedi/command"
	"github.com/go-lpc/comedi/device"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

const (
	DeviceOptionName = "dev"
	OutputOptionName = "output"
)

// engine is the part of a comedi device used by comedi-ctl.
type engine interface {
	command.Tester

	Info() device.Info
	Subdevices() ([]device.SubdInfo, error)
	Cancel(subdev uint32) error
	BufferSize(subdev uint32) (uint32, error)
	BufInfo(subdev uint32) (device.BufInfo, error)
	Close() error
}

var openDevice = func(path string) (engine, error) {
	dev, err := device.Open(path)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

type options struct {
	dev    string
	output string
}

// devicePath returns the device file to open, def when none was requested.
func (o *options) devicePath(def string) string {
	if o.dev != "" {
		return o.dev
	}
	if def != "" {
		return def
	}
	return "/dev/comedi0"
}

// print writes v to w as YAML, or with the text printer.
func (o *options) print(w io.Writer, v interface{}, text func(w io.Writer) error) error {
	switch o.output {
	case "", "text":
		return text(w)
	case "yaml":
		raw, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("could not encode YAML: %w", err)
		}
		_, err = w.Write(raw)
		return err
	}
	return fmt.Errorf("invalid output format %q", o.output)
}

// NewRootCommand returns the comedi-ctl command tree.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := new(options)
	cmd := &cobra.Command{
		Use:          "comedi-ctl",
		Short:        "Tool to inspect and control comedi devices",
		SilenceUsage: true,
	}
	cmd.SetOut(out)
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewCancelCommand(opts))
	cmd.AddCommand(NewBufInfoCommand(opts))
	cmd.AddCommand(NewRemoteCommand(opts))
	cmd.PersistentFlags().StringVarP(&opts.dev, DeviceOptionName, "d", "", "comedi device file (default /dev/comedi0)")
	cmd.PersistentFlags().StringVarP(&opts.output, OutputOptionName, "o", "text", "output format (text, yaml)")
	return cmd
}
