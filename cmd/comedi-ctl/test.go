// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/comedi/command"
	"github.com/go-lpc/comedi/config"
	"github.com/spf13/cobra"
)

type testReport struct {
	Device string        `json:"device"`
	Subdev uint32        `json:"subdev"`
	Rounds []roundReport `json:"rounds"`
	Cmd    string        `json:"cmd"`
	Err    string        `json:"error,omitempty"`
}

type roundReport struct {
	Kind     string   `json:"kind"`
	Severity int      `json:"severity"`
	Diff     []string `json:"diff,omitempty"`
}

func NewTestCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <config.yaml>",
		Short: "Negotiate the command of an acquisition descriptor with a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}

			fname := opts.devicePath(cfg.Device)
			dev, err := openDevice(fname)
			if err != nil {
				return fmt.Errorf("could not open comedi device: %w", err)
			}
			defer dev.Close()

			rep, err := negotiate(dev, fname, cfg)
			if e := opts.print(cmd.OutOrStdout(), rep, rep.print); e != nil {
				return e
			}
			return err
		},
	}
	return cmd
}

// negotiate validates the command of cfg against dev.
// The report holds the rounds of the negotiation, even when it failed.
func negotiate(dev command.Tester, fname string, cfg config.Config) (testReport, error) {
	var (
		msg = log.New(io.Discard, "", 0)
		val = command.NewValidator(dev, append(cfg.ValidatorOptions(), command.WithLogger(msg))...)
		cmd = cfg.Cmd()
		rep = testReport{Device: fname, Subdev: cfg.Subdev}
	)
	res, err := val.Validate(cmd)
	for _, o := range res.Outcomes {
		rr := roundReport{
			Kind:     o.Kind.String(),
			Severity: int(o.Severity),
		}
		for _, d := range o.Diff {
			rr.Diff = append(rr.Diff, d.String())
		}
		rep.Rounds = append(rep.Rounds, rr)
	}
	rep.Cmd = cmd.String()
	if err != nil {
		rep.Err = err.Error()
		return rep, fmt.Errorf("could not validate command: %w", err)
	}
	return rep, nil
}

func (rep testReport) print(w io.Writer) error {
	fmt.Fprintf(w, "device %s, subdevice %d:\n", rep.Device, rep.Subdev)
	for i, r := range rep.Rounds {
		fmt.Fprintf(w, "  round %d: %s (severity=%d)\n", i, r.Kind, r.Severity)
		for _, d := range r.Diff {
			fmt.Fprintf(w, "    %s\n", d)
		}
	}
	fmt.Fprintf(w, "command: %s\n", rep.Cmd)
	if rep.Err != "" {
		fmt.Fprintf(w, "error: %s\n", rep.Err)
	}
	return nil
}
