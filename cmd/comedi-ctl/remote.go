// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/go-lpc/comedi/runlog"
	"github.com/go-lpc/comedi/statusd"
	"github.com/spf13/cobra"
)

const AddrOptionName = "addr"

// NewRemoteCommand returns the commands querying the status server of a
// remote acquisition node.
func NewRemoteCommand(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Query a remote acquisition node",
	}
	cmd.PersistentFlags().StringVar(&addr, AddrOptionName, "localhost:8080", "address of the status server")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Display the status of the remote acquisition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := statusd.NewClient(addr).Status()
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), snap, func(w io.Writer) error {
				return printSnapshot(w, snap)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel",
		Short: "Cancel the remote acquisition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := statusd.NewClient(addr).Cancel()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancel requested on %s\n", addr)
			return nil
		},
	})

	var n int
	runs := &cobra.Command{
		Use:   "runs",
		Short: "Display the most recent runs of the remote run log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := statusd.NewClient(addr).Runs(n)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), recs, func(w io.Writer) error {
				return printRuns(w, recs)
			})
		},
	}
	runs.Flags().IntVarP(&n, "num", "n", 10, "number of runs (0: all)")
	cmd.AddCommand(runs)

	return cmd
}

func printSnapshot(w io.Writer, snap statusd.Snapshot) error {
	fmt.Fprintf(w, "device:  %s (subdevice %d)\n", snap.Device, snap.Subdev)
	fmt.Fprintf(w, "run:     %d\n", snap.RunID)
	fmt.Fprintf(w, "state:   %s\n", snap.State)
	fmt.Fprintf(w, "bytes:   %d\n", snap.Bytes)
	fmt.Fprintf(w, "buffer:  %d/%d (produced=%d, consumed=%d)\n",
		snap.Buffer.Available, snap.Buffer.Capacity,
		snap.Buffer.Produced, snap.Buffer.Consumed,
	)
	if snap.Err != "" {
		fmt.Fprintf(w, "error:   %s\n", snap.Err)
	}
	fmt.Fprintf(w, "updated: %s\n", snap.Updated.Format(time.RFC3339))
	return nil
}

func printRuns(w io.Writer, recs []runlog.Record) error {
	for _, rec := range recs {
		fmt.Fprintf(w, "run %d: %s subdev=%d state=%s bytes=%d start=%s",
			rec.ID, rec.Device, rec.Subdev, rec.State, rec.Bytes,
			rec.Start.Format(time.RFC3339),
		)
		if rec.Err != "" {
			fmt.Fprintf(w, " error=%q", rec.Err)
		}
		fmt.Fprintf(w, "\n")
	}
	return nil
}
