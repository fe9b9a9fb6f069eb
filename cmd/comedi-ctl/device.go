// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"

	"github.com/go-lpc/comedi/device"
	"github.com/spf13/cobra"
)

const SubdevOptionName = "subdev"

func NewCancelCommand(opts *options) *cobra.Command {
	var subdev uint32
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the command running on a subdevice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fname := opts.devicePath("")
			dev, err := openDevice(fname)
			if err != nil {
				return fmt.Errorf("could not open comedi device: %w", err)
			}
			defer dev.Close()

			err = dev.Cancel(subdev)
			if err != nil {
				return fmt.Errorf("could not cancel subdevice %d: %w", subdev, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s, subdevice %d\n", fname, subdev)
			return nil
		},
	}
	cmd.Flags().Uint32VarP(&subdev, SubdevOptionName, "s", 0, "subdevice")
	return cmd
}

type bufReport struct {
	device.BufInfo
	Size     uint32 `json:"size"`
	Contents uint32 `json:"contents"`
}

func NewBufInfoCommand(opts *options) *cobra.Command {
	var subdev uint32
	cmd := &cobra.Command{
		Use:   "bufinfo",
		Short: "Display the ring buffer state of a subdevice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := openDevice(opts.devicePath(""))
			if err != nil {
				return fmt.Errorf("could not open comedi device: %w", err)
			}
			defer dev.Close()

			size, err := dev.BufferSize(subdev)
			if err != nil {
				return fmt.Errorf("could not read buffer size: %w", err)
			}
			bi, err := dev.BufInfo(subdev)
			if err != nil {
				return fmt.Errorf("could not read buffer info: %w", err)
			}
			rep := bufReport{BufInfo: bi, Size: size, Contents: bi.Contents()}
			return opts.print(cmd.OutOrStdout(), rep, rep.print)
		},
	}
	cmd.Flags().Uint32VarP(&subdev, SubdevOptionName, "s", 0, "subdevice")
	return cmd
}

func (rep bufReport) print(w io.Writer) error {
	fmt.Fprintf(w, "subdevice %d:\n", rep.Subdev)
	fmt.Fprintf(w, "  size:        %d\n", rep.Size)
	fmt.Fprintf(w, "  contents:    %d\n", rep.Contents)
	fmt.Fprintf(w, "  write count: %d\n", rep.WriteCount)
	fmt.Fprintf(w, "  read count:  %d\n", rep.ReadCount)
	fmt.Fprintf(w, "  write ptr:   %d\n", rep.WritePtr)
	fmt.Fprintf(w, "  read ptr:    %d\n", rep.ReadPtr)
	return nil
}
