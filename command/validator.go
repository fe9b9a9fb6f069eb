// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package command

import (
	"errors"
	"fmt"
	"io"
	"log"
)

// Tester tests a command against an acquisition engine.
//
// CommandTest returns the severity of the engine response and may modify
// cmd in place.
type Tester interface {
	CommandTest(cmd *Cmd) (int, error)
}

// Severity is the engine's command test response code.
type Severity int

const (
	Valid            Severity = 0 // valid, no changes
	SrcZeroed        Severity = 1 // unsupported trigger sources were masked out
	SrcUnsupported   Severity = 2 // trigger source selection is not supported
	ArgClamped       Severity = 3 // an argument was out of range and clamped
	ArgRounded       Severity = 4 // an argument was rounded
	ChanListRejected Severity = 5 // channel list is not supported
)

func (sev Severity) String() string {
	switch sev {
	case Valid:
		return "valid"
	case SrcZeroed:
		return "source zeroed"
	case SrcUnsupported:
		return "source unsupported"
	case ArgClamped:
		return "argument clamped"
	case ArgRounded:
		return "argument rounded"
	case ChanListRejected:
		return "channel list rejected"
	}
	return fmt.Sprintf("severity(%d)", int(sev))
}

// Kind classifies a validation round.
type Kind uint8

const (
	Accepted Kind = iota
	SourceZeroed
	SourceUnsupported
	ArgumentClamped
	ArgumentRounded
	ChannelListRejected
)

func (k Kind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case SourceZeroed:
		return "source-zeroed"
	case SourceUnsupported:
		return "source-unsupported"
	case ArgumentClamped:
		return "argument-clamped"
	case ArgumentRounded:
		return "argument-rounded"
	case ChannelListRejected:
		return "channel-list-rejected"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is the result of one submission to the engine.
type Outcome struct {
	Kind     Kind
	Severity Severity
	Fields   FieldSet    // fields modified by the engine
	Diff     []FieldDiff // submitted -> returned
}

func (o Outcome) String() string {
	if o.Fields == 0 {
		return o.Kind.String()
	}
	return fmt.Sprintf("%v%v", o.Kind, o.Fields)
}

// Result is the history of a negotiation.
type Result struct {
	Cmd      *Cmd
	Outcomes []Outcome
}

// Rounds returns the number of submissions to the engine.
func (res Result) Rounds() int { return len(res.Outcomes) }

// Last returns the last outcome.
func (res Result) Last() Outcome {
	if len(res.Outcomes) == 0 {
		return Outcome{}
	}
	return res.Outcomes[len(res.Outcomes)-1]
}

var (
	ErrUnrecoverable = errors.New("command: unrecoverable command")
	ErrNonConvergent = errors.New("command: non-convergent command negotiation")
)

// ValidationError describes a failed negotiation.
type ValidationError struct {
	Err      error // ErrUnrecoverable or ErrNonConvergent
	Severity Severity
	Fields   FieldSet
	Rounds   int
	Reason   string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%v (severity=%d: %v, rounds=%d", e.Err, int(e.Severity), e.Severity, e.Rounds)
	if e.Fields != 0 {
		msg += ", fields=" + e.Fields.String()
	}
	msg += ")"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Picker selects a trigger source for a phase after the engine masked out
// unsupported sources.
// rejected holds the sources the engine removed, candidates the ones left.
// Returning Invalid gives up.
type Picker func(id PhaseID, rejected, candidates Source) Source

type config struct {
	retries int
	pick    Picker
	rounded bool
	msg     *log.Logger
}

func newConfig() config {
	return config{
		retries: 2,
		msg:     log.New(io.Discard, "command: ", 0),
	}
}

// Option configures a Validator.
type Option func(*config)

// WithMaxRetries sets the maximum number of resubmissions.
func WithMaxRetries(n int) Option {
	return func(cfg *config) {
		if n < 0 {
			n = 0
		}
		cfg.retries = n
	}
}

// WithPicker sets the trigger source picker.
func WithPicker(p Picker) Option {
	return func(cfg *config) {
		cfg.pick = p
	}
}

// WithAcceptRounded considers a rounded command as converged.
func WithAcceptRounded() Option {
	return func(cfg *config) {
		cfg.rounded = true
	}
}

// WithLogger sets the logger used to trace negotiations.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// Validator negotiates a command with an engine until it is accepted or
// rejected.
type Validator struct {
	eng Tester
	cfg config
}

// NewValidator returns a new command validator.
func NewValidator(eng Tester, opts ...Option) *Validator {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Validator{eng: eng, cfg: cfg}
}

// MaxRetries returns the maximum number of resubmissions.
func (v *Validator) MaxRetries() int { return v.cfg.retries }

// Validate negotiates cmd with the engine.
// cmd is modified in place with the corrections returned by the engine.
func (v *Validator) Validate(cmd *Cmd) (Result, error) {
	res := Result{Cmd: cmd}
	for retry := 0; ; retry++ {
		sent := cmd.Clone()
		rc, err := v.eng.CommandTest(cmd)
		if err != nil {
			return res, fmt.Errorf("command: could not test command: %w", err)
		}
		sev := Severity(rc)
		out := Outcome{
			Kind:     kindOf(sev),
			Severity: sev,
			Fields:   sent.Changed(cmd),
			Diff:     sent.Diff(cmd),
		}
		res.Outcomes = append(res.Outcomes, out)
		v.cfg.msg.Printf("round %d: %v", retry, out)
		for _, d := range out.Diff {
			v.cfg.msg.Printf("  %v", d)
		}

		switch sev {
		case Valid:
			return res, v.converged(cmd, res)

		case SrcUnsupported:
			fields := out.Fields
			if fields == 0 {
				fields = ambiguousSources(cmd)
			}
			return res, v.abort(ErrUnrecoverable, sev, fields, res, "")

		case ChanListRejected:
			return res, v.abort(ErrUnrecoverable, sev, out.Fields|Fields(FieldChanList), res, "")

		case SrcZeroed:
			err = v.repick(cmd, sent, sev, res)
			if err != nil {
				return res, err
			}

		case ArgClamped:
			// accept the clamped arguments.

		case ArgRounded:
			if v.cfg.rounded {
				return res, v.converged(cmd, res)
			}

		default:
			return res, fmt.Errorf("command: invalid command test severity %d", rc)
		}

		if sent.Changed(cmd) == 0 {
			return res, v.abort(
				ErrNonConvergent, sev, out.Fields, res,
				"engine returned an unchanged command",
			)
		}

		if retry >= v.cfg.retries {
			return res, v.abort(
				ErrNonConvergent, sev, out.Fields, res,
				fmt.Sprintf("retry limit (%d) reached", v.cfg.retries),
			)
		}
	}
}

func (v *Validator) converged(cmd *Cmd, res Result) error {
	err := cmd.CheckChanList()
	if err != nil {
		return v.abort(
			ErrUnrecoverable, res.Last().Severity,
			Fields(FieldChanList, FieldScanEndArg), res, err.Error(),
		)
	}
	return nil
}

func (v *Validator) abort(kind error, sev Severity, fields FieldSet, res Result, reason string) error {
	err := &ValidationError{
		Err:      kind,
		Severity: sev,
		Fields:   fields,
		Rounds:   res.Rounds(),
		Reason:   reason,
	}
	v.cfg.msg.Printf("%+v", err)
	return err
}

// repick selects a single trigger source for every phase the engine
// left zeroed or ambiguous.
func (v *Validator) repick(cmd, sent *Cmd, sev Severity, res Result) error {
	for id := Start; id < NumPhases; id++ {
		var (
			p        = cmd.Phase(id)
			rejected = sent.Phase(id).Src &^ p.Src
		)
		if p.Src.Single() {
			continue
		}
		src := p.Src.Lowest()
		if v.cfg.pick != nil {
			src = v.cfg.pick(id, rejected, p.Src)
		}
		if src == Invalid {
			return v.abort(
				ErrUnrecoverable, sev, Fields(SrcField(id)), res,
				fmt.Sprintf("no trigger source left for %v phase", id),
			)
		}
		p.Src = src
	}
	return nil
}

func kindOf(sev Severity) Kind {
	switch sev {
	case SrcZeroed:
		return SourceZeroed
	case SrcUnsupported:
		return SourceUnsupported
	case ArgClamped:
		return ArgumentClamped
	case ArgRounded:
		return ArgumentRounded
	case ChanListRejected:
		return ChannelListRejected
	}
	return Accepted
}

func ambiguousSources(cmd *Cmd) FieldSet {
	var set FieldSet
	for id := Start; id < NumPhases; id++ {
		if !cmd.Phase(id).Src.Single() {
			set |= Fields(SrcField(id))
		}
	}
	return set
}
