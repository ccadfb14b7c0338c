// Package jit is the code-generating back-end: it lowers the optimized IR
// onto an abstract two-register machine (REG_P, REG_ACC) with an
// accumulator cache, instead of re-reading every cell from the tape on
// every node the way internal/interp does.
//
// The actual machine-code emission a GNU Lightning binding would do is
// out of scope for this core (spec.md section 1 names it a sibling
// concern); what is in scope, and what this package implements, is the
// register-allocation and accumulator-caching discipline that decides
// what code an emitter would need to produce. Available reports whether
// that discipline can run at all; it is always true in this tree, and the
// CLI refuses -jit with an error when it is false.
//
// Grounded on the teacher's internal/jit stub (Profiler/Compiler tiering
// skeleton), generalized from a no-op tier-selection stub into a real
// execution engine with its own state machine.
package jit

import (
	"bytes"
	"context"
	"io"

	"bf/internal/bferror"
	"bf/internal/interp"
	"bf/internal/ir"
	"bf/internal/tape"
)

// accState is the accumulator cache's state, per spec's explicit
// Empty/LoadedClean/LoadedDirty enum: the offset it caches is tracked
// alongside it rather than inside the variant.
type accState int

const (
	accEmpty accState = iota
	accClean
	accDirty
)

// loopFrame mirrors the generator's (forward_ref, back_label) pair. Since
// this engine executes nodes directly instead of emitting and linking
// patchable machine code, pc doubles as both: the opener's own index.
type loopFrame struct {
	openerPC int
}

// Options mirrors interp.Options; the two back-ends share a single
// configuration shape so the CLI can pick either one uninformed of the
// difference.
type Options struct {
	Cell             tape.Config
	PhysicalOverflow bool
	EOF              interp.EOFPolicy
	SuppressIO       bool
	Stdout           io.Writer
	Stdin            io.Reader
}

// Engine runs the optimized IR through the accumulator-cached register
// machine.
type Engine struct {
	prog *ir.Program
	opts Options
	tape *tape.Tape
	cell tape.Config

	m int // REG_P, a logical tape index

	acc       int64
	accOffset int
	accSt     accState
	hiDirty   bool

	loops []loopFrame

	overflows, underflows int64
	hardWrap              bool
}

// applyOverflow mirrors interp's wrap/trap accounting so the two
// back-ends report identical overflow statistics for identical programs.
func (e *Engine) applyOverflow(v int64) int64 {
	if e.opts.PhysicalOverflow {
		rng := e.cell.Range()
		for v > e.cell.PhysicalMax {
			v -= rng
			e.overflows++
		}
		for v < e.cell.PhysicalMin {
			v += rng
			e.underflows++
		}
		return v
	}
	if v > tape.SafeCellMax {
		v -= tape.SafeCellMax + 1
		e.overflows++
	} else if v < -tape.SafeCellMax {
		v += tape.SafeCellMax + 1
		e.underflows++
	}
	if v > e.cell.PhysicalMax || v < e.cell.PhysicalMin {
		e.hardWrap = true
	}
	return v
}

// New prepares an Engine to run prog under opts.
func New(prog *ir.Program, opts Options) *Engine {
	return &Engine{prog: prog, opts: opts, tape: tape.New(), cell: opts.Cell}
}

// Available reports whether the code-generation discipline in this
// package can run. Built as a package variable (rather than a constant)
// so a "nojit" build could override it in an alternate file; no such file
// exists in this tree, so the JIT is always available here.
var Available = true

// Run executes prog to completion and returns the same RunSummary shape
// internal/interp produces, so the CLI can treat either back-end's
// output identically. Returns bferror for a fatal tape underflow, a
// malformed loop stack, or STOP.
func (e *Engine) Run(ctx context.Context) (*interp.RunSummary, error) {
	if !Available {
		return nil, bferror.Setup("JIT back-end unavailable")
	}
	prof := make(interp.Profile)
	nodes := e.prog.Nodes
	var trailingText bool
	var coalesce bytes.Buffer
	var step int64

	flushCoalesce := func() {
		if coalesce.Len() == 0 {
			return
		}
		if !e.opts.SuppressIO && e.opts.Stdout != nil {
			e.opts.Stdout.Write(coalesce.Bytes())
		}
		coalesce.Reset()
	}

	bump := func(op ir.OpCode) *interp.Counts {
		c, ok := prof[op]
		if !ok {
			c = &interp.Counts{}
			prof[op] = c
		}
		return c
	}

	for pc := 0; pc < len(nodes); pc++ {
		step++
		if step&0x3FF == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		n := &nodes[pc]
		c := bump(n.Op)

		if n.Op != ir.OpChr {
			flushCoalesce()
		}

		switch n.Op {
		case ir.OpMov:
			// REG_P shifts; a cached value keeps addressing the same
			// physical cell, now at offset-k relative to the new REG_P.
			if e.accSt != accEmpty {
				e.accOffset -= n.Count
			}
			target := e.m + n.Count
			if n.Count > 0 {
				e.tape.EnsureRight(target)
			} else if n.Count < 0 {
				if err := e.tape.EnsureLeft(target); err != nil {
					return nil, bferror.TapeBound("%s", err)
				}
			}
			e.m = target
			dm := int64(absInt(n.Count))
			c.Total += dm
			if n.Count > 0 {
				c.Pos += dm
			} else {
				c.Neg += dm
			}

		case ir.OpAdd:
			e.loadAccOffset(n.Offset)
			e.setAccOffset(n.Offset)
			before := e.overflows + e.underflows
			e.acc = e.applyOverflow(e.acc + int64(n.Count))
			if e.overflows+e.underflows != before {
				c.Overflows++
			}
			e.hiDirty = true
			da := int64(absInt(n.Count))
			c.Total += da
			if n.Count > 0 {
				c.Pos += da
			} else {
				c.Neg += da
			}

		case ir.OpSet:
			prev := e.acc
			if e.accSt == accDirty && e.accOffset == n.Offset {
				// A SET without a prior load tests the previous cached
				// value only if it happened to be this same offset;
				// otherwise fall back to the tape for the zero/nonzero
				// classification, matching profilebf.c's '=' handling.
			} else {
				idx := e.m + n.Offset
				if err := e.ensure(idx); err != nil {
					return nil, bferror.TapeBound("%s", err)
				}
				prev = e.tape.Get(idx)
			}
			if prev < 0 {
				c.Overflows++
				e.underflows++
			} else if prev > 0 {
				c.NonZero++
			} else {
				c.ZeroPath++
			}
			e.setAccOffset(n.Offset)
			e.acc = int64(n.Count)
			c.Total++

		case ir.OpCalc:
			if err := e.lowerCalc(n); err != nil {
				return nil, err
			}
			c.Total++

		case ir.OpWhl, ir.OpMult, ir.OpCMult, ir.OpFor:
			e.cleanAcc()
			v, err := e.maskedLoad(n.Offset)
			if err != nil {
				return nil, err
			}
			e.loops = append(e.loops, loopFrame{openerPC: pc})
			if v == 0 {
				c.ZeroPath++
				pc = n.Link
				e.loops = e.loops[:len(e.loops)-1]
			} else {
				c.NonZero++
			}

		case ir.OpEnd:
			e.cleanAcc()
			v, err := e.maskedLoad(n.Offset)
			if err != nil {
				return nil, err
			}
			if len(e.loops) == 0 {
				return nil, bferror.Runtime(bferror.Location{}, "JIT loop stack underflow at END")
			}
			if v != 0 {
				// branching back resumes after the opener, so its frame
				// stays on the stack for the next pass.
				pc = n.Link
			} else {
				e.loops = e.loops[:len(e.loops)-1]
			}
			c.Total++

		case ir.OpIf:
			e.cleanAcc()
			v, err := e.maskedLoad(n.Offset)
			if err != nil {
				return nil, err
			}
			e.loops = append(e.loops, loopFrame{openerPC: pc})
			if v == 0 {
				c.ZeroPath++
				pc = n.Link
				e.loops = e.loops[:len(e.loops)-1]
			} else {
				c.NonZero++
			}

		case ir.OpEndIf:
			e.cleanAcc()
			e.invalidate()
			if len(e.loops) == 0 {
				return nil, bferror.Runtime(bferror.Location{}, "JIT loop stack underflow at ENDIF")
			}
			e.loops = e.loops[:len(e.loops)-1]
			c.Total++

		case ir.OpPrt:
			e.cleanAcc()
			v, err := e.maskedLoad(n.Offset)
			if err != nil {
				return nil, err
			}
			e.invalidate()
			a := byte(v & 0xFF & e.cell.CellMask)
			if !e.opts.SuppressIO && e.opts.Stdout != nil {
				e.opts.Stdout.Write([]byte{a})
			}
			if a != '\r' {
				trailingText = a != '\n'
			}
			c.Total++

		case ir.OpChr:
			a := byte(n.Count)
			printable := a >= 1 && a <= 126
			if printable {
				coalesce.WriteByte(a)
			} else {
				flushCoalesce()
				if !e.opts.SuppressIO && e.opts.Stdout != nil {
					e.opts.Stdout.Write([]byte{a})
				}
			}
			if a != '\r' {
				trailingText = a != '\n'
			}
			c.Total++

		case ir.OpInp:
			idx := e.m + n.Offset
			if err := e.ensure(idx); err != nil {
				return nil, bferror.TapeBound("%s", err)
			}
			// An I/O site is a clean_acc barrier: load (or keep) the
			// accumulator at this offset before classifying it, so a
			// still-dirty preceding ADD at the same cell isn't read as
			// stale tape content.
			e.loadAccOffset(n.Offset)
			cur := e.acc
			if e.hiDirty {
				cur &= e.cell.CellMask
			}
			if cur != 0 {
				c.NonZero++
			} else {
				c.ZeroPath++
			}
			var buf [1]byte
			var v int64
			var got bool
			if !e.opts.SuppressIO && e.opts.Stdin != nil {
				if _, err := e.opts.Stdin.Read(buf[:]); err == nil {
					v = int64(buf[0])
					got = true
				}
			}
			e.setAccOffset(n.Offset)
			if got {
				e.acc = v
			} else {
				switch e.opts.EOF {
				case interp.EOFZero:
					e.acc = 0
				case interp.EOFMinusOne:
					e.acc = -1
				case interp.EOFNoChange:
					e.acc = cur
				}
			}
			c.Total++

		case ir.OpStop:
			flushCoalesce()
			c.Total++
			return nil, bferror.Runtime(bferror.Location{}, "STOP command executed")
		}
	}
	flushCoalesce()
	e.cleanAcc()
	return &interp.RunSummary{
		ProgramLen:   e.prog.Len,
		TapeMin:      e.tape.Min(),
		TapeMax:      e.tape.Max(),
		FinalPos:     e.m,
		FinalCell:    e.tape.Get(e.m),
		Overflows:    e.overflows,
		Underflows:   e.underflows,
		HardWrap:     e.hardWrap,
		TrailingText: trailingText,
		Profile:      prof,
		Steps:        step,
	}, nil
}

// lowerCalc follows spec.md 4.5's CALC lowering rules verbatim, including
// the (o,c2)==(o2,1) self-accumulate special case the optimizer's
// balanced-loop rewrite relies on.
func (e *Engine) lowerCalc(n *ir.Node) error {
	switch {
	case n.Offset == n.Offset2 && n.Count2 == 1:
		e.loadAccOffset(n.Offset)
		e.setAccOffset(n.Offset)
		e.acc += int64(n.Count)
	case n.Count2 != 0:
		v, err := e.rawLoad(n.Offset2)
		if err != nil {
			return err
		}
		e.setAccOffset(n.Offset)
		e.acc = int64(n.Count) + int64(n.Count2)*v
	default:
		e.cleanAcc()
		e.setAccOffset(n.Offset)
		e.acc = int64(n.Count)
	}
	if n.Count3 != 0 {
		v, err := e.rawLoad(n.Offset3)
		if err != nil {
			return err
		}
		e.acc += int64(n.Count3) * v
	}
	e.acc = e.applyOverflow(e.acc)
	e.hiDirty = true
	return nil
}

func (e *Engine) loadAccOffset(o int) {
	if e.accSt != accEmpty && e.accOffset == o {
		return
	}
	e.cleanAcc()
	idx := e.m + o
	e.tape.EnsureRight(idx)
	_ = e.tape.EnsureLeft(idx)
	e.acc = e.tape.Get(idx)
	e.accOffset = o
	e.accSt = accClean
	e.hiDirty = false
}

// rawLoad reads offset o without disturbing the accumulator cache's own
// offset (used for CALC's secondary/tertiary source reads).
func (e *Engine) rawLoad(o int) (int64, error) {
	idx := e.m + o
	if err := e.ensure(idx); err != nil {
		return 0, err
	}
	return e.tape.Get(idx), nil
}

func (e *Engine) setAccOffset(o int) {
	if e.accSt != accEmpty && e.accOffset != o {
		e.cleanAcc()
	}
	e.accOffset = o
	e.accSt = accDirty
}

func (e *Engine) cleanAcc() {
	if e.accSt == accDirty {
		idx := e.m + e.accOffset
		e.tape.EnsureRight(idx)
		_ = e.tape.EnsureLeft(idx)
		e.tape.Set(idx, e.acc)
	}
	e.accSt = accEmpty
}

func (e *Engine) invalidate() {
	e.accSt = accEmpty
}

// maskedLoad reads offset o, applying the cell mask if the cache's high
// bits may be stale, per the masking policy in spec.md 4.5.
func (e *Engine) maskedLoad(o int) (int64, error) {
	idx := e.m + o
	if err := e.ensure(idx); err != nil {
		return 0, err
	}
	v := e.tape.Get(idx)
	if e.hiDirty {
		v &= e.cell.CellMask
		e.hiDirty = false
	}
	return v, nil
}

func (e *Engine) ensure(idx int) error {
	e.tape.EnsureRight(idx)
	return e.tape.EnsureLeft(idx)
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
