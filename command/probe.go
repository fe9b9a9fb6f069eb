// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package command

import (
	"fmt"

	"github.com/go-lpc/comedi/chanspec"
)

// SourceMask returns a command whose phases hold the trigger sources the
// engine supports for the subdevice.
func SourceMask(t Tester, subdev uint32) (*Cmd, error) {
	cmd := &Cmd{
		Subdev:    subdev,
		Start:     Phase{Src: Any},
		ScanBegin: Phase{Src: Any},
		Convert:   Phase{Src: Any},
		ScanEnd:   Phase{Src: Any},
		Stop:      Phase{Src: Any},
	}
	_, err := t.CommandTest(cmd)
	if err != nil {
		return nil, fmt.Errorf("command: could not probe trigger sources of subdevice %d: %w", subdev, err)
	}
	return cmd, nil
}

// GenericTimed returns a command sampling nchan channels every period
// nanoseconds, started immediately and running until cancelled.
//
// The returned command has been tested once against the engine, twice if
// the first round clamped an argument.
func GenericTimed(t Tester, subdev uint32, nchan int, period uint32) (*Cmd, error) {
	if nchan <= 0 {
		return nil, fmt.Errorf("command: invalid number of channels (%d)", nchan)
	}

	mask, err := SourceMask(t, subdev)
	if err != nil {
		return nil, err
	}

	cmd := &Cmd{
		Subdev:  subdev,
		Start:   Phase{Src: Now},
		ScanEnd: Phase{Src: Count, Arg: uint32(nchan)},
		Stop:    Phase{Src: None},
	}
	switch {
	case mask.Convert.Src&Timer != 0 && mask.ScanBegin.Src&Follow != 0:
		cmd.Convert = Phase{Src: Timer, Arg: period}
		cmd.ScanBegin = Phase{Src: Follow}
	case mask.Convert.Src&Timer != 0 && mask.ScanBegin.Src&Timer != 0:
		cmd.Convert = Phase{Src: Timer, Arg: period}
		cmd.ScanBegin = Phase{Src: Timer, Arg: period * uint32(nchan)}
	case mask.Convert.Src&Now != 0 && mask.ScanBegin.Src&Timer != 0:
		cmd.Convert = Phase{Src: Now}
		cmd.ScanBegin = Phase{Src: Timer, Arg: period}
	default:
		return nil, fmt.Errorf(
			"command: subdevice %d does not support timed commands (scan_begin=%v, convert=%v)",
			subdev, mask.ScanBegin.Src, mask.Convert.Src,
		)
	}

	cmd.ChanList = make([]chanspec.Spec, nchan)
	for i := range cmd.ChanList {
		cmd.ChanList[i] = chanspec.Pack(uint16(i), 0, chanspec.Ground, 0)
	}

	rc, err := t.CommandTest(cmd)
	if err != nil {
		return nil, fmt.Errorf("command: could not test generic timed command: %w", err)
	}
	if Severity(rc) == ArgClamped {
		rc, err = t.CommandTest(cmd)
		if err != nil {
			return nil, fmt.Errorf("command: could not test generic timed command: %w", err)
		}
	}

	switch sev := Severity(rc); sev {
	case Valid, ArgRounded:
		return cmd, nil
	default:
		return nil, &ValidationError{
			Err:      ErrUnrecoverable,
			Severity: sev,
			Reason:   "generic timed command not accepted",
		}
	}
}
