// Package interp is the profiling tree-walking back-end: it executes the
// optimized IR directly against a tape, counting per-opcode statistics as
// it goes, instead of lowering to machine code the way internal/jit does.
//
// Grounded on original_source/extras/profilebf.c's run(): the same
// physical/logical overflow split, the same EOF policies, and the same
// four-bucket profile counters, adapted from a flat switch over raw bf
// command bytes to an exhaustive switch over ir.OpCode.
package interp

import (
	"context"
	"io"

	"bf/internal/bferror"
	"bf/internal/ir"
	"bf/internal/tape"
)

// EOFPolicy controls what a ',' read does once the input is exhausted.
type EOFPolicy int

const (
	// EOFNoChange leaves the current cell untouched (the default, -n).
	EOFNoChange EOFPolicy = iota
	// EOFZero stores zero in the current cell (-z).
	EOFZero
	// EOFMinusOne stores -1 in the current cell (-e).
	EOFMinusOne
)

// Options configures one Interp run.
type Options struct {
	Cell             tape.Config
	PhysicalOverflow bool
	EOF              EOFPolicy
	SuppressIO       bool
	Stdout           io.Writer
	Stdin            io.Reader
	// Tick, if set, is called after every opcode with a live snapshot of
	// the run so far. Used to drive internal/live; nil disables it.
	Tick func(Snapshot)
}

// Snapshot is a cheap, read-only view of an in-progress run, handed to
// Options.Tick without copying the accumulated profile.
type Snapshot struct {
	Step    int64
	Pointer int
	Cell    int64
	Profile Profile
}

// RunSummary is the back-end-agnostic result of executing a program, used
// by both internal/interp and internal/jit so the CLI and internal/history
// can treat either back-end identically.
type RunSummary struct {
	ProgramLen   int
	TapeMin      int
	TapeMax      int
	FinalPos     int
	FinalCell    int64
	Overflows    int64
	Underflows   int64
	HardWrap     bool
	TrailingText bool // last byte written was not a newline
	Profile      Profile
	Steps        int64
}

// Interp walks the optimized IR against a growable tape.
type Interp struct {
	prog *ir.Program
	opts Options
	tape *tape.Tape
	cell tape.Config
}

// New prepares an Interp to run prog under opts.
func New(prog *ir.Program, opts Options) *Interp {
	return &Interp{prog: prog, opts: opts, tape: tape.New(), cell: opts.Cell}
}

// Run executes the program to completion (STOP, a natural fall-through
// past the last node, or ctx cancellation) and returns its RunSummary.
// A fatal tape underflow or a context cancellation is returned as an
// error; every other condition profilebf.c treats as a "soft" anomaly
// (physical overflow, hard wrap) is folded into the RunSummary instead.
func (in *Interp) Run(ctx context.Context) (*RunSummary, error) {
	prof := newProfile()
	var overflows, underflows int64
	var hardWrap bool
	var trailingText bool

	nodes := in.prog.Nodes
	m := 0
	var stdinBuf [1]byte

	var step int64
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
		c := prof.at(n.Op)

		switch n.Op {
		case ir.OpMov:
			target := m + n.Count
			if n.Count > 0 {
				in.tape.EnsureRight(target)
			} else if n.Count < 0 {
				if err := in.tape.EnsureLeft(target); err != nil {
					return nil, bferror.TapeBound("%s", err)
				}
			}
			m = target
			d := int64(abs(n.Count))
			c.Total += d
			if n.Count > 0 {
				c.Pos += d
			} else {
				c.Neg += d
			}

		case ir.OpAdd:
			idx := m + n.Offset
			if err := in.ensure(idx); err != nil {
				return nil, bferror.TapeBound("%s", err)
			}
			v := in.tape.Get(idx) + int64(n.Count)
			v, ov, under := in.applyOverflow(v)
			overflows += ov
			underflows += under
			if ov+under > 0 {
				c.Overflows++
			}
			if v > in.cell.PhysicalMax || v < in.cell.PhysicalMin {
				hardWrap = true
			}
			in.tape.Set(idx, v)
			d := int64(abs(n.Count))
			c.Total += d
			if n.Count > 0 {
				c.Pos += d
			} else {
				c.Neg += d
			}

		case ir.OpSet:
			idx := m + n.Offset
			if err := in.ensure(idx); err != nil {
				return nil, bferror.TapeBound("%s", err)
			}
			cur := in.tape.Get(idx)
			if cur < 0 {
				c.Overflows++
				underflows++
			} else if cur > 0 {
				c.NonZero++
			} else {
				c.ZeroPath++
			}
			in.tape.Set(idx, int64(n.Count))
			c.Total++

		case ir.OpCalc:
			dst := m + n.Offset
			src2 := m + n.Offset2
			src3 := m + n.Offset3
			for _, idx := range [3]int{dst, src2, src3} {
				if err := in.ensure(idx); err != nil {
					return nil, bferror.TapeBound("%s", err)
				}
			}
			v := int64(n.Count) + int64(n.Count2)*in.tape.Get(src2) + int64(n.Count3)*in.tape.Get(src3)
			v, ov, under := in.applyOverflow(v)
			overflows += ov
			underflows += under
			if ov+under > 0 {
				c.Overflows++
			}
			in.tape.Set(dst, v)
			c.Total++

		case ir.OpWhl, ir.OpMult, ir.OpCMult, ir.OpFor:
			idx := m + n.Offset
			if err := in.ensure(idx); err != nil {
				return nil, bferror.TapeBound("%s", err)
			}
			if in.tape.Get(idx) == 0 {
				c.ZeroPath++
				pc = n.Link
			} else {
				c.NonZero++
			}

		case ir.OpEnd:
			idx := m + n.Offset
			if err := in.ensure(idx); err != nil {
				return nil, bferror.TapeBound("%s", err)
			}
			if in.tape.Get(idx) != 0 {
				pc = n.Link
			}
			c.Total++

		case ir.OpIf:
			idx := m + n.Offset
			if err := in.ensure(idx); err != nil {
				return nil, bferror.TapeBound("%s", err)
			}
			if in.tape.Get(idx) == 0 {
				c.ZeroPath++
				pc = n.Link
			} else {
				c.NonZero++
			}

		case ir.OpEndIf:
			c.Total++

		case ir.OpPrt:
			idx := m + n.Offset
			if err := in.ensure(idx); err != nil {
				return nil, bferror.TapeBound("%s", err)
			}
			a := byte(in.tape.Get(idx) & 0xFF & in.cell.CellMask)
			if !in.opts.SuppressIO && in.opts.Stdout != nil {
				in.opts.Stdout.Write([]byte{a})
			}
			if a != '\r' {
				trailingText = a != '\n'
			}
			c.Total++

		case ir.OpChr:
			if !in.opts.SuppressIO && in.opts.Stdout != nil {
				in.opts.Stdout.Write([]byte{byte(n.Count)})
			}
			if byte(n.Count) != '\r' {
				trailingText = byte(n.Count) != '\n'
			}
			c.Total++

		case ir.OpInp:
			idx := m + n.Offset
			if err := in.ensure(idx); err != nil {
				return nil, bferror.TapeBound("%s", err)
			}
			cur := in.tape.Get(idx)
			if cur != 0 {
				c.NonZero++
			} else {
				c.ZeroPath++
			}
			var v int64
			var gotByte bool
			if !in.opts.SuppressIO && in.opts.Stdin != nil {
				if _, err := in.opts.Stdin.Read(stdinBuf[:]); err == nil {
					v = int64(stdinBuf[0])
					gotByte = true
				}
			}
			if gotByte {
				in.tape.Set(idx, v)
			} else {
				switch in.opts.EOF {
				case EOFZero:
					in.tape.Set(idx, 0)
				case EOFMinusOne:
					in.tape.Set(idx, -1)
				case EOFNoChange:
					// leave the cell untouched
				}
			}
			c.Total++

		case ir.OpStop:
			c.Total++
			return in.summary(prof, m, overflows, underflows, hardWrap, trailingText, step), nil
		}

		if in.opts.Tick != nil {
			in.opts.Tick(Snapshot{Step: step, Pointer: m, Cell: in.tape.Get(m), Profile: prof})
		}
	}
	return in.summary(prof, m, overflows, underflows, hardWrap, trailingText, step), nil
}

func (in *Interp) ensure(idx int) error {
	in.tape.EnsureRight(idx)
	return in.tape.EnsureLeft(idx)
}

// applyOverflow wraps v at the configured cell bounds (physical mode) or at
// SafeCellMax (logical mode), returning the adjusted value and how many
// overflow/underflow incidents occurred.
func (in *Interp) applyOverflow(v int64) (out int64, overflows, underflows int64) {
	if in.opts.PhysicalOverflow {
		rng := in.cell.Range()
		for v > in.cell.PhysicalMax {
			v -= rng
			overflows++
		}
		for v < in.cell.PhysicalMin {
			v += rng
			underflows++
		}
		return v, overflows, underflows
	}
	if v > tape.SafeCellMax {
		v -= tape.SafeCellMax + 1
		overflows++
	} else if v < -tape.SafeCellMax {
		v += tape.SafeCellMax + 1
		underflows++
	}
	return v, overflows, underflows
}

func (in *Interp) summary(prof Profile, m int, overflows, underflows int64, hardWrap, trailingText bool, steps int64) *RunSummary {
	return &RunSummary{
		ProgramLen:   in.prog.Len,
		TapeMin:      in.tape.Min(),
		TapeMax:      in.tape.Max(),
		FinalPos:     m,
		FinalCell:    in.tape.Get(m),
		Overflows:    overflows,
		Underflows:   underflows,
		HardWrap:     hardWrap,
		TrailingText: trailingText,
		Profile:      prof,
		Steps:        steps,
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
