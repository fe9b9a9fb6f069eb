// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command comedi-tdaq starts a TDAQ server streaming the samples of a
// comedi device on its /adc output.
//
// Usage:
//
//	$> comedi-tdaq [tdaq options] ./config.yaml
//
// The HTTP status server and the process monitoring are configured by the
// status section of the configuration file.
package main // import "github.com/go-lpc/comedi/cmd/comedi-tdaq"

import (
	"context"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/comedi/acq"
	"github.com/go-lpc/comedi/config"
	"github.com/go-lpc/comedi/node"
	"github.com/go-lpc/comedi/statusd"
	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

func main() {
	cmd := flags.New()

	log.SetPrefix("comedi-tdaq: ")
	log.SetFlags(0)

	if len(cmd.Args) == 0 {
		log.Fatalf("missing configuration file")
	}
	fname := cmd.Args[0]

	cfg, err := config.Load(fname)
	if err != nil {
		log.Fatalf("could not load configuration: %+v", err)
	}

	srv := tdaq.New(cmd, os.Stdout)
	err = run(srv, fname, cfg)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(srv *tdaq.Server, fname string, cfg config.Config) error {
	msg := log.New(os.Stdout, "comedi-tdaq: ", 0)

	dev := node.New(fname, msg)
	if a := acq.NewAlerter(cfg.Alert, msg); a != nil {
		dev.SetAlerter(a)
	}

	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/adc", dev.ADC)

	srv.RunHandle(dev.Run)

	if oname := cfg.Status.Pmon; oname != "" {
		p, err := pmon.Monitor(os.Getpid())
		if err != nil {
			return xerrors.Errorf("could not start monitoring: %w", err)
		}
		f, err := os.Create(oname)
		if err != nil {
			return xerrors.Errorf("could not create pmon log file: %w", err)
		}
		defer f.Close()
		p.W = f
		p.Freq = cfg.Status.Freq

		go func() {
			err := p.Run()
			if err != nil {
				log.Printf("could not run pmon: %+v", err)
			}
		}()

		defer func() {
			err := p.Kill()
			if err != nil {
				log.Printf("could not stop monitoring: %+v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var grp errgroup.Group
	grp.Go(func() error {
		defer cancel()
		err := srv.Run(ctx)
		if err != nil {
			return xerrors.Errorf("could not run tdaq server: %w", err)
		}
		return nil
	})

	if addr := cfg.Status.Addr; addr != "" {
		status := statusd.New(
			dev.Board(),
			statusd.WithLogger(msg),
			statusd.WithAccessLog(os.Stdout),
			statusd.WithRunLog(dev.RunLog()),
			statusd.WithCancel(dev.Cancel),
		)
		grp.Go(func() error {
			return status.ListenAndServe(ctx, addr)
		})
	}

	return grp.Wait()
}
