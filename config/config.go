// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the YAML description of an acquisition.
package config // import "github.com/go-lpc/comedi/config"

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-lpc/comedi/chanspec"
	"github.com/go-lpc/comedi/command"
	"gopkg.in/yaml.v3"
)

// Config describes an acquisition session.
type Config struct {
	Device   string   `yaml:"device"`
	Subdev   uint32   `yaml:"subdev"`
	Channels []uint16 `yaml:"channels"`
	Range    uint8    `yaml:"range"`
	Aref     string   `yaml:"aref"`
	Write    bool     `yaml:"write"`
	WakeEOS  bool     `yaml:"wake_eos"`

	Start     command.Phase `yaml:"start"`
	ScanBegin command.Phase `yaml:"scan_begin"`
	Convert   command.Phase `yaml:"convert"`
	ScanEnd   command.Phase `yaml:"scan_end"`
	Stop      command.Phase `yaml:"stop"`

	BufferSize    uint32        `yaml:"buffer_size"`
	Poll          time.Duration `yaml:"poll"`
	Retries       int           `yaml:"retries"`
	AcceptRounded bool          `yaml:"accept_rounded"`

	Output Output `yaml:"output"`
	RunLog RunLog `yaml:"runlog"`
	Alert  Alert  `yaml:"alert"`
	Status Status `yaml:"status"`
	DDS    DDS    `yaml:"dds"`
}

// Output describes where acquired samples are written.
type Output struct {
	Format string `yaml:"format"` // text, csv, lcio or raw
	File   string `yaml:"file"`
	Run    int32  `yaml:"run"`
	Level  int    `yaml:"level"` // LCIO compression level
}

// RunLog describes where session records are stored.
type RunLog struct {
	Bolt string `yaml:"bolt"`
	SQL  string `yaml:"sql"` // DSN, $COMEDI_RUNLOG_DSN when empty
}

// Alert describes mail alerts.
type Alert struct {
	Enabled bool   `yaml:"enabled"`
	Subject string `yaml:"subject"`
}

// Status describes the HTTP status server and the process monitoring.
type Status struct {
	Addr string        `yaml:"addr"`
	Pmon string        `yaml:"pmon"` // pmon output file, disabled when empty
	Freq time.Duration `yaml:"freq"` // pmon sampling interval
}

// DDS describes a generated output waveform.
type DDS struct {
	Waveform  string  `yaml:"waveform"`
	Freq      float64 `yaml:"freq"`
	Amplitude float64 `yaml:"amplitude"`
	Offset    float64 `yaml:"offset"`
}

// Default returns the configuration of a single channel acquisition at
// 1 kHz on the first analog input subdevice.
func Default() Config {
	return Config{
		Device:    "/dev/comedi0",
		Channels:  []uint16{0},
		Aref:      "ground",
		Start:     command.Phase{Src: command.Now},
		ScanBegin: command.Phase{Src: command.Timer, Arg: 1e6},
		Convert:   command.Phase{Src: command.Timer, Arg: 1},
		ScanEnd:   command.Phase{Src: command.Count},
		Stop:      command.Phase{Src: command.Count, Arg: 1000},
		Poll:      10 * time.Millisecond,
		Retries:   2,
		Status: Status{
			Freq: time.Second,
		},
		Output: Output{
			Format: "text",
			Level:  flate.DefaultCompression,
		},
		DDS: DDS{
			Waveform:  "sine",
			Freq:      1000,
			Amplitude: 4000,
			Offset:    2048,
		},
	}
}

// Load reads the configuration file fname on top of the default
// configuration.
func Load(fname string) (Config, error) {
	f, err := os.Open(fname)
	if err != nil {
		return Config{}, fmt.Errorf("config: could not open %q: %w", fname, err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return cfg, fmt.Errorf("config: could not load %q: %w", fname, err)
	}
	return cfg, nil
}

// Decode reads a YAML configuration from r on top of the default
// configuration, and validates it.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&cfg)
	if err != nil && err != io.EOF {
		return cfg, fmt.Errorf("config: could not decode YAML: %w", err)
	}
	if cfg.ScanEnd.Src == command.Count && cfg.ScanEnd.Arg == 0 {
		cfg.ScanEnd.Arg = uint32(len(cfg.Channels))
	}
	err = cfg.Validate()
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Encode writes the configuration as YAML.
func (cfg Config) Encode(w io.Writer) error {
	buf := new(bytes.Buffer)
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	err := enc.Encode(cfg)
	if err != nil {
		return fmt.Errorf("config: could not encode YAML: %w", err)
	}
	err = enc.Close()
	if err != nil {
		return fmt.Errorf("config: could not encode YAML: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// Validate checks the configuration is consistent.
// It does not mutate the configuration.
func (cfg Config) Validate() error {
	if cfg.Device == "" {
		return fmt.Errorf("config: missing device file")
	}
	if len(cfg.Channels) == 0 {
		return fmt.Errorf("config: empty channel list")
	}
	if _, err := chanspec.ParseAref(cfg.Aref); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, p := range []struct {
		name  string
		phase command.Phase
	}{
		{"start", cfg.Start},
		{"scan_begin", cfg.ScanBegin},
		{"convert", cfg.Convert},
		{"scan_end", cfg.ScanEnd},
		{"stop", cfg.Stop},
	} {
		if !p.phase.Src.Single() {
			return fmt.Errorf("config: %s source must be a single trigger source (got %v)", p.name, p.phase.Src)
		}
	}
	if cfg.ScanEnd.Src == command.Count && int(cfg.ScanEnd.Arg) != len(cfg.Channels) {
		return fmt.Errorf(
			"config: scan_end argument (%d) does not match the number of channels (%d)",
			cfg.ScanEnd.Arg, len(cfg.Channels),
		)
	}
	if cfg.Poll <= 0 {
		return fmt.Errorf("config: invalid poll interval %v", cfg.Poll)
	}
	if cfg.Retries < 0 {
		return fmt.Errorf("config: invalid number of retries %d", cfg.Retries)
	}
	switch cfg.Output.Format {
	case "text", "csv", "lcio", "raw":
	default:
		return fmt.Errorf("config: invalid output format %q", cfg.Output.Format)
	}
	switch cfg.Output.Format {
	case "csv", "lcio":
		if cfg.Output.File == "" {
			return fmt.Errorf("config: %s output requires an output file", cfg.Output.Format)
		}
	}
	return nil
}

// ChanList returns the packed channel list of the acquisition.
func (cfg Config) ChanList() []chanspec.Spec {
	aref, _ := chanspec.ParseAref(cfg.Aref)
	return chanspec.List(cfg.Range, aref, cfg.Channels...)
}

// Cmd returns the command described by the configuration.
func (cfg Config) Cmd() *command.Cmd {
	cmd := &command.Cmd{
		Subdev:    cfg.Subdev,
		Start:     cfg.Start,
		ScanBegin: cfg.ScanBegin,
		Convert:   cfg.Convert,
		ScanEnd:   cfg.ScanEnd,
		Stop:      cfg.Stop,
		ChanList:  cfg.ChanList(),
	}
	if cfg.Write {
		cmd.Flags |= command.Write
	}
	if cfg.WakeEOS {
		cmd.Flags |= command.WakeEOS
	}
	return cmd
}

// ValidatorOptions returns the command negotiation policy.
func (cfg Config) ValidatorOptions() []command.Option {
	opts := []command.Option{command.WithMaxRetries(cfg.Retries)}
	if cfg.AcceptRounded {
		opts = append(opts, command.WithAcceptRounded())
	}
	return opts
}
