// Package cliutil formats run results for the command line: the
// long-form and quick-form summaries from spec.md section 6, each
// mirroring original_source/extras/profilebf.c's print_summary().
package cliutil

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"bf/internal/interp"
	"bf/internal/ir"
)

// bfCommands is the fixed reporting order for the "Counts:" line, mirroring
// profilebf.c's "char bf[] = \"+-><[].,\"" ordering. sign picks which of a
// merged opcode's sub-counts a row reports: +1 for Pos, -1 for Neg, 0 for
// Total (opcodes that aren't a merged +/- or >/< pair).
var bfCommands = []struct {
	label string
	op    ir.OpCode
	sign  int
}{
	{"+", ir.OpAdd, 1}, {"-", ir.OpAdd, -1}, {">", ir.OpMov, 1}, {"<", ir.OpMov, -1},
	{"[", ir.OpWhl, 0}, {"]", ir.OpEnd, 0}, {".", ir.OpPrt, 0}, {",", ir.OpInp, 0},
}

// PrintSummary writes the long-form run report.
func PrintSummary(w io.Writer, sum *interp.RunSummary, physicalOverflow bool) {
	fmt.Fprintf(w, "Program size %d\n", sum.ProgramLen)
	fmt.Fprintf(w, "Final tape contents: cell[%d] = %d\n", sum.FinalPos, sum.FinalCell)
	if sum.TapeMin < 0 {
		fmt.Fprintf(w, "WARNING: Tape pointer minimum %d, segfault.\n", sum.TapeMin)
	}
	fmt.Fprintf(w, "Tape pointer maximum %d\n", sum.TapeMax)

	if sum.Overflows != 0 || sum.Underflows != 0 {
		fmt.Fprintf(w, "Range error: ")
		if physicalOverflow {
			fmt.Fprintf(w, "physical range check")
		} else {
			fmt.Fprintf(w, "value check")
		}
		if sum.Overflows != 0 {
			fmt.Fprintf(w, ", overflows: %s", humanize.Comma(sum.Overflows))
		}
		if sum.Underflows != 0 {
			fmt.Fprintf(w, ", underflows: %s", humanize.Comma(sum.Underflows))
		}
		fmt.Fprintln(w)
	} else if !physicalOverflow && sum.HardWrap {
		fmt.Fprintln(w, "Hard wrapping would occur for this cell width.")
	}

	if skipped, ok := sum.Profile[ir.OpWhl]; ok && skipped.ZeroPath > 0 {
		fmt.Fprintf(w, "Skipped loops (zero on entry): %s\n", humanize.Comma(skipped.ZeroPath))
	}

	fmt.Fprintf(w, "Counts:")
	for _, c := range bfCommands {
		n := int64(0)
		if p, ok := sum.Profile[c.op]; ok {
			switch c.sign {
			case 1:
				n = p.Pos
			case -1:
				n = p.Neg
			default:
				n = p.Total
			}
		}
		fmt.Fprintf(w, " %s: %-10s", c.label, humanize.Comma(n))
	}
	fmt.Fprintf(w, "\nTotal steps: %s\n", humanize.Comma(sum.Steps))
}

// PrintQuickSummary writes the single-line -q/-Q report: spec.md's
// "final_cell program_len tape_span total_ops program (span_stats)
// wrapping_tag", with the parenthesized span stats only under -Q.
func PrintQuickSummary(w io.Writer, sum *interp.RunSummary, program string, withCounts bool) {
	tapeSpan := sum.TapeMax - sum.TapeMin + 1
	fmt.Fprintf(w, "%d %d %d %d %s", sum.FinalCell, sum.ProgramLen, tapeSpan, sum.Profile.Total(), program)
	if withCounts {
		fmt.Fprintf(w, " (%d, %d)", sum.TapeMin, sum.TapeMax)
	}
	wrapWord := "non-wrapping"
	if sum.Overflows != 0 || sum.Underflows != 0 {
		wrapWord = "wrapping"
	} else if sum.HardWrap {
		wrapWord = "non-wrapping (soft)"
	}
	fmt.Fprintf(w, " %s\n", wrapWord)
}
