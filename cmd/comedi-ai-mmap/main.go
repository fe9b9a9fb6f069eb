// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command comedi-ai-mmap acquires analog samples through the mapped ring
// buffer of a comedi device.
//
// Usage: comedi-ai-mmap [OPTIONS]
//
// Example:
//
//	$> comedi-ai-mmap -dev /dev/comedi0 -chans 0,1,2,3 -n 1000
//	$> comedi-ai-mmap -cfg ./ai.yaml -fmt lcio -o run-42.slcio
//
// The acquisition stops once the requested number of scans was acquired,
// or on SIGINT.
package main // import "github.com/go-lpc/comedi/cmd/comedi-ai-mmap"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/comedi/acq"
	"github.com/go-lpc/comedi/command"
	"github.com/go-lpc/comedi/config"
	"github.com/go-lpc/comedi/device"
	"github.com/go-lpc/comedi/statusd"
)

type engine interface {
	acq.Device
	io.Closer
}

var openDevice = func(path string) (engine, error) {
	dev, err := device.Open(path)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func main() {
	var (
		fname  = flag.String("cfg", "", "path to YAML configuration file")
		dname  = flag.String("dev", "", "comedi device file")
		chans  = flag.String("chans", "", "comma-separated list of channels")
		nscans = flag.Int("n", -1, "number of scans to acquire (0: until interrupted)")
		format = flag.String("fmt", "", "output format (text, csv, lcio, raw)")
		oname  = flag.String("o", "", "output file")
		runlog = flag.String("runlog", "", "bbolt run log file")
	)

	log.SetPrefix("comedi-ai-mmap: ")
	log.SetFlags(0)

	flag.Parse()

	cfg, err := setup(*fname, overrides{
		dev:    *dname,
		chans:  *chans,
		nscans: *nscans,
		format: *format,
		oname:  *oname,
		runlog: *runlog,
	})
	if err != nil {
		log.Fatalf("could not setup acquisition: %+v", err)
	}

	stop := make(chan os.Signal, 1)
	err = run(cfg, os.Stdout, stop)
	if err != nil {
		log.Fatalf("could not run acquisition: %+v", err)
	}
}

type overrides struct {
	dev    string
	chans  string
	nscans int
	format string
	oname  string
	runlog string
}

func setup(fname string, o overrides) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	switch fname {
	case "":
		cfg, err = config.Decode(strings.NewReader(""))
	default:
		cfg, err = config.Load(fname)
	}
	if err != nil {
		return cfg, err
	}

	if o.dev != "" {
		cfg.Device = o.dev
	}
	if o.chans != "" {
		cfg.Channels = cfg.Channels[:0]
		for _, v := range strings.Split(o.chans, ",") {
			ch, err := strconv.ParseUint(strings.TrimSpace(v), 10, 16)
			if err != nil {
				return cfg, fmt.Errorf("could not parse channel %q: %w", v, err)
			}
			cfg.Channels = append(cfg.Channels, uint16(ch))
		}
		if cfg.ScanEnd.Src == command.Count {
			cfg.ScanEnd.Arg = uint32(len(cfg.Channels))
		}
	}
	switch {
	case o.nscans == 0:
		cfg.Stop = command.Phase{Src: command.None}
	case o.nscans > 0:
		cfg.Stop = command.Phase{Src: command.Count, Arg: uint32(o.nscans)}
	}
	if o.format != "" {
		cfg.Output.Format = o.format
	}
	if o.oname != "" {
		cfg.Output.File = o.oname
	}
	if o.runlog != "" {
		cfg.RunLog.Bolt = o.runlog
	}
	if cfg.Write {
		return cfg, fmt.Errorf("subdevice %d is configured for output", cfg.Subdev)
	}

	return cfg, cfg.Validate()
}

func run(cfg config.Config, stdout io.Writer, stop chan os.Signal) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	dev, err := openDevice(cfg.Device)
	if err != nil {
		return fmt.Errorf("could not open comedi device: %w", err)
	}
	defer dev.Close()

	store, err := acq.OpenRunLog(cfg.RunLog)
	if err != nil {
		return fmt.Errorf("could not open run log: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	var (
		msg   = log.New(os.Stderr, "comedi-ai-mmap: ", 0)
		board = new(statusd.Board)
		opts  = []acq.Option{acq.WithLogger(msg), acq.WithBoard(board)}
	)
	if store != nil {
		opts = append(opts, acq.WithRunLog(store))
	}
	if a := acq.NewAlerter(cfg.Alert, msg); a != nil {
		opts = append(opts, acq.WithAlerter(a))
	}

	sess := acq.New(cfg.Device, dev, cfg, opts...)
	defer sess.Close()

	res, err := sess.Configure()
	if err != nil {
		return fmt.Errorf("could not configure acquisition: %w", err)
	}
	log.Printf("command: %v (rounds=%d)", res.Cmd, res.Rounds())

	sink, err := acq.OpenSink(cfg.Output, sess.Layout(), stdout)
	if err != nil {
		return fmt.Errorf("could not open output: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if addr := cfg.Status.Addr; addr != "" {
		srv := statusd.New(
			board,
			statusd.WithLogger(msg),
			statusd.WithCancel(sess.Cancel),
		)
		go func() {
			err := srv.ListenAndServe(ctx, addr)
			if err != nil {
				log.Printf("could not serve status: %+v", err)
			}
		}()
	}

	go func() {
		select {
		case <-stop:
			log.Printf("interrupt received, stopping acquisition...")
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	n, err := sess.Acquire(ctx, sink)
	if err != nil {
		_ = sink.Close()
		return fmt.Errorf("could not acquire samples: %w", err)
	}

	err = sink.Close()
	if err != nil {
		return fmt.Errorf("could not close output: %w", err)
	}

	log.Printf("acquired %d bytes in %v", n, time.Since(start))
	return nil
}
