// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package insn

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Executor executes a list of instructions in one atomic engine call.
//
// DoInsnList returns the number of instructions actually executed.
type Executor interface {
	DoInsnList(insns []Instruction) (int, error)
}

// PartialBatchError reports a batch that stopped before its end.
type PartialBatchError struct {
	Index int    // index of the failing instruction
	Op    Opcode // opcode of the failing instruction
	N     int    // number of submitted instructions
	Err   error  // engine status, if any
}

func (e *PartialBatchError) Error() string {
	msg := fmt.Sprintf("insn: batch stopped at instruction %d/%d (%v)", e.Index, e.N, e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PartialBatchError) Unwrap() error { return e.Err }

// Batch is an ordered list of instructions it owns.
type Batch struct {
	insns []Instruction
}

// NewBatch returns a batch of n zero instructions.
func NewBatch(n int) *Batch {
	return &Batch{insns: make([]Instruction, n)}
}

// Len returns the number of instructions in the batch.
func (b *Batch) Len() int { return len(b.insns) }

// At returns the i-th instruction.
func (b *Batch) At(i int) *Instruction { return &b.insns[i] }

// Instructions returns the instructions of the batch.
func (b *Batch) Instructions() []Instruction { return b.insns }

// Add appends instructions to the batch.
func (b *Batch) Add(insns ...Instruction) {
	b.insns = append(b.insns, insns...)
}

// Resize changes the number of instructions of the batch.
//
// A new backing array is allocated and the first min(n, Len()) instructions
// are moved into it. The previous array is released.
// Moved instructions keep their data buffers.
func (b *Batch) Resize(n int) {
	if n < 0 {
		n = 0
	}
	insns := make([]Instruction, n)
	copy(insns, b.insns)
	b.insns = insns
}

// Reset removes all instructions from the batch.
func (b *Batch) Reset() { b.insns = nil }

// Execute runs the batch as one atomic engine call and returns the number
// of executed instructions.
//
// A batch executed partially returns a *PartialBatchError.
func (b *Batch) Execute(e Executor) (int, error) {
	if len(b.insns) == 0 {
		return 0, nil
	}
	n, err := e.DoInsnList(b.insns)
	switch {
	case n >= len(b.insns) && err == nil:
		return n, nil
	case n < 0:
		n = 0
	case n > len(b.insns):
		n = len(b.insns)
	}
	if n == len(b.insns) {
		return n, xerrors.Errorf("insn: could not execute batch: %w", err)
	}
	return n, &PartialBatchError{
		Index: n,
		Op:    b.insns[n].Op,
		N:     len(b.insns),
		Err:   err,
	}
}
