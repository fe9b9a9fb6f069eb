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
)

var phases = []command.PhaseID{
	command.Start,
	command.ScanBegin,
	command.Convert,
	command.ScanEnd,
	command.Stop,
}

type infoReport struct {
	Path       string       `json:"path"`
	Info       device.Info  `json:"info"`
	Subdevices []subdReport `json:"subdevices"`
}

type subdReport struct {
	device.SubdInfo
	BufferSize uint32            `json:"buffer_size,omitempty"`
	Sources    map[string]string `json:"sources,omitempty"`
	Timed      string            `json:"generic_timed,omitempty"`
}

func NewInfoCommand(opts *options) *cobra.Command {
	var (
		nchan  int
		period uint32
	)
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Display the description of a device and its subdevices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fname := opts.devicePath("")
			dev, err := openDevice(fname)
			if err != nil {
				return fmt.Errorf("could not open comedi device: %w", err)
			}
			defer dev.Close()

			rep, err := info(dev, fname, nchan, period)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), rep, rep.print)
		},
	}
	cmd.Flags().IntVar(&nchan, "nchan", 1, "number of channels of the generic timed command probe")
	cmd.Flags().Uint32Var(&period, "period", 1e6, "sampling period of the generic timed command probe (ns)")
	return cmd
}

func info(dev engine, fname string, nchan int, period uint32) (infoReport, error) {
	rep := infoReport{
		Path: fname,
		Info: dev.Info(),
	}
	subs, err := dev.Subdevices()
	if err != nil {
		return rep, fmt.Errorf("could not read subdevices: %w", err)
	}
	for _, sub := range subs {
		sr := subdReport{SubdInfo: sub}
		if sub.Flags.Streaming() {
			subdev := uint32(sub.Index)
			sr.BufferSize, err = dev.BufferSize(subdev)
			if err != nil {
				return rep, fmt.Errorf("could not read buffer size of subdevice %d: %w", subdev, err)
			}

			mask, err := command.SourceMask(dev, subdev)
			if err != nil {
				return rep, err
			}
			sr.Sources = make(map[string]string, 5)
			for _, id := range phases {
				sr.Sources[id.String()] = mask.Phase(id).Src.String()
			}

			n := nchan
			if n > int(sub.NumChans) {
				n = int(sub.NumChans)
			}
			timed, err := command.GenericTimed(dev, subdev, n, period)
			if err != nil {
				sr.Timed = err.Error()
			} else {
				sr.Timed = timed.String()
			}
		}
		rep.Subdevices = append(rep.Subdevices, sr)
	}
	return rep, nil
}

func (rep infoReport) print(w io.Writer) error {
	fmt.Fprintf(w, "overall info:\n")
	fmt.Fprintf(w, "  device:            %s\n", rep.Path)
	fmt.Fprintf(w, "  version code:      %v\n", rep.Info.Version)
	fmt.Fprintf(w, "  driver name:       %s\n", rep.Info.Driver)
	fmt.Fprintf(w, "  board name:        %s\n", rep.Info.Board)
	fmt.Fprintf(w, "  number subdevices: %d\n", rep.Info.NumSubdevs)
	fmt.Fprintf(w, "  read subdevice:    %d\n", rep.Info.ReadSubdev)
	fmt.Fprintf(w, "  write subdevice:   %d\n", rep.Info.WriteSubdev)
	for _, sub := range rep.Subdevices {
		fmt.Fprintf(w, "subdevice %d:\n", sub.Index)
		fmt.Fprintf(w, "  type:            %s\n", sub.TypeName)
		if sub.Type == device.Unused {
			continue
		}
		fmt.Fprintf(w, "  flags:           %s\n", sub.FlagNames)
		fmt.Fprintf(w, "  number channels: %d\n", sub.NumChans)
		fmt.Fprintf(w, "  max data value:  %d\n", sub.MaxData)
		if sub.Sources == nil {
			fmt.Fprintf(w, "  command:         not supported\n")
			continue
		}
		fmt.Fprintf(w, "  buffer size:     %d\n", sub.BufferSize)
		fmt.Fprintf(w, "  command:\n")
		for _, id := range phases {
			fmt.Fprintf(w, "    %-12s %s\n", id.String()+":", sub.Sources[id.String()])
		}
		fmt.Fprintf(w, "  generic timed:   %s\n", sub.Timed)
	}
	return nil
}
