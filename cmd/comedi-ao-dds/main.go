// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command comedi-ao-dds generates a waveform on the analog outputs of a
// comedi device, using direct digital synthesis.
//
// Usage: comedi-ao-dds [OPTIONS]
//
// Example:
//
//	$> comedi-ao-dds -dev /dev/comedi0 -subdev 1 -wave triangle -freq 100 -update 10000
//	$> comedi-ao-dds -cfg ./ao.yaml -n 100000
//
// The ring buffer is preloaded before the internal trigger starts the
// command. Without a number of scans, the waveform is generated until
// interrupted.
package main // import "github.com/go-lpc/comedi/cmd/comedi-ao-dds"

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

	"github.com/go-lpc/comedi/acq"
	"github.com/go-lpc/comedi/command"
	"github.com/go-lpc/comedi/config"
	"github.com/go-lpc/comedi/dds"
	"github.com/go-lpc/comedi/device"
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
		subdev = flag.Int("subdev", -1, "analog output subdevice")
		chans  = flag.String("chans", "", "comma-separated list of channels")
		wave   = flag.String("wave", "", "waveform ("+strings.Join(dds.Waveforms(), ", ")+")")
		freq   = flag.Float64("freq", 0, "waveform frequency (Hz)")
		update = flag.Float64("update", 0, "update frequency (Hz)")
		amp    = flag.Float64("amp", -1, "amplitude (raw DAC units)")
		ofs    = flag.Float64("ofs", -1, "offset (raw DAC units)")
		nscans = flag.Int("n", 0, "number of scans to generate (0: until interrupted)")
	)

	log.SetPrefix("comedi-ao-dds: ")
	log.SetFlags(0)

	flag.Parse()

	cfg, err := setup(*fname, overrides{
		dev:    *dname,
		subdev: *subdev,
		chans:  *chans,
		wave:   *wave,
		freq:   *freq,
		update: *update,
		amp:    *amp,
		ofs:    *ofs,
		nscans: *nscans,
	})
	if err != nil {
		log.Fatalf("could not setup waveform generation: %+v", err)
	}

	stop := make(chan os.Signal, 1)
	err = run(cfg, stop)
	if err != nil {
		log.Fatalf("could not generate waveform: %+v", err)
	}
}

type overrides struct {
	dev    string
	subdev int
	chans  string
	wave   string
	freq   float64
	update float64
	amp    float64
	ofs    float64
	nscans int
}

func setup(fname string, o overrides) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	switch fname {
	case "":
		cfg, err = config.Decode(strings.NewReader("subdev: 1\nwrite: true\n"))
	default:
		cfg, err = config.Load(fname)
	}
	if err != nil {
		return cfg, err
	}

	cfg.Write = true
	cfg.Start = command.Phase{Src: command.Int}
	cfg.Convert = command.Phase{Src: command.Now}
	switch {
	case o.nscans > 0:
		cfg.Stop = command.Phase{Src: command.Count, Arg: uint32(o.nscans)}
	default:
		cfg.Stop = command.Phase{Src: command.None}
	}

	if o.dev != "" {
		cfg.Device = o.dev
	}
	if o.subdev >= 0 {
		cfg.Subdev = uint32(o.subdev)
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
	if o.wave != "" {
		cfg.DDS.Waveform = o.wave
	}
	if o.freq > 0 {
		cfg.DDS.Freq = o.freq
	}
	if o.update > 0 {
		cfg.ScanBegin = command.Phase{Src: command.Timer, Arg: uint32(1e9 / o.update)}
	}
	if o.amp >= 0 {
		cfg.DDS.Amplitude = o.amp
	}
	if o.ofs >= 0 {
		cfg.DDS.Offset = o.ofs
	}

	_, err = dds.ParseWaveform(cfg.DDS.Waveform)
	if err != nil {
		return cfg, err
	}
	if cfg.ScanBegin.Src != command.Timer || cfg.ScanBegin.Arg == 0 {
		return cfg, fmt.Errorf("scan_begin must be a non-zero timer (got %v)", cfg.ScanBegin)
	}

	return cfg, cfg.Validate()
}

func run(cfg config.Config, stop chan os.Signal) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	dev, err := openDevice(cfg.Device)
	if err != nil {
		return fmt.Errorf("could not open comedi device: %w", err)
	}
	defer dev.Close()

	msg := log.New(os.Stderr, "comedi-ao-dds: ", 0)
	sess := acq.New(cfg.Device, dev, cfg, acq.WithLogger(msg))
	defer sess.Close()

	res, err := sess.Configure()
	if err != nil {
		return fmt.Errorf("could not configure waveform generation: %w", err)
	}

	gen, err := newGenerator(cfg, res.Cmd, sess.Layout().SampleSize)
	if err != nil {
		return fmt.Errorf("could not create waveform generator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-stop:
			log.Printf("interrupt received, stopping waveform generation...")
			cancel()
		case <-ctx.Done():
		}
	}()

	n, err := sess.Generate(ctx, gen)
	if err != nil {
		return fmt.Errorf("could not generate waveform: %w", err)
	}
	log.Printf("generated %d bytes", n)
	return nil
}

// newGenerator creates the waveform generator of the negotiated command.
// The update frequency follows the scan period accepted by the device.
func newGenerator(cfg config.Config, cmd *command.Cmd, ssize int) (*dds.Generator, error) {
	wave, err := dds.ParseWaveform(cfg.DDS.Waveform)
	if err != nil {
		return nil, err
	}

	update := 1e9 / float64(cmd.ScanBegin.Arg)
	log.Printf(
		"%v waveform: freq=%gHz, update=%gHz, amplitude=%g, offset=%g",
		wave, cfg.DDS.Freq, update, cfg.DDS.Amplitude, cfg.DDS.Offset,
	)

	opts := []dds.Option{
		dds.WithFrequency(cfg.DDS.Freq, update),
		dds.WithAmplitude(cfg.DDS.Amplitude, cfg.DDS.Offset),
		dds.WithChannels(len(cmd.ChanList)),
		dds.WithSampleSize(ssize),
	}
	if cmd.Stop.Src == command.Count {
		opts = append(opts, dds.WithScans(int64(cmd.Stop.Arg)))
	}
	return dds.New(wave, opts...)
}
