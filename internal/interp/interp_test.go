package interp

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"bf/internal/ir"
	"bf/internal/lexer"
	"bf/internal/optimizer"
	"bf/internal/tape"
)

func run(t *testing.T, src string, opts Options) (*RunSummary, string) {
	t.Helper()
	toks, _ := lexer.NewScanner([]byte(src), lexer.Options{}).Scan()
	prog := optimizer.Optimize(ir.Build(toks))
	var out bytes.Buffer
	opts.Stdout = &out
	if opts.Cell == (tape.Config{}) {
		opts.Cell = tape.NewConfig(tape.Cell8)
	}
	sum, err := New(prog, opts).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	return sum, out.String()
}

func TestHelloWorldOutput(t *testing.T) {
	const hello = "++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.>>.<-.<.+++.------.--------.>>+.>++."
	_, out := run(t, hello, Options{})
	if !strings.Contains(out, "Hello World!") {
		t.Fatalf("expected Hello World! output, got %q", out)
	}
}

func TestLogicalModeDoesNotWrapAtCellMax(t *testing.T) {
	// an 8-bit cell pushed to 256 via repeated ADD; logical mode wraps only
	// at SafeCellMax, not at the cell's own maximum, so the value stays 256.
	var b strings.Builder
	b.WriteString(strings.Repeat("+", 256))
	sum, _ := run(t, b.String(), Options{Cell: tape.NewConfig(tape.Cell8)})
	if sum.FinalCell != 256 {
		t.Fatalf("logical mode should not mask mid-run, got %d", sum.FinalCell)
	}
	if sum.Overflows != 0 {
		t.Fatalf("expected no overflow this far from SafeCellMax, got %d", sum.Overflows)
	}
}

func TestPhysicalOverflowWrapsAtCellBoundary(t *testing.T) {
	sum, _ := run(t, strings.Repeat("+", 260), Options{
		Cell:             tape.NewConfig(tape.Cell8),
		PhysicalOverflow: true,
	})
	if sum.FinalCell != 260%256 {
		t.Fatalf("expected physical wrap at 256, got %d", sum.FinalCell)
	}
	if sum.Overflows != 1 {
		t.Fatalf("expected exactly one overflow incident, got %d", sum.Overflows)
	}
}

func TestTapeUnderflowIsFatal(t *testing.T) {
	toks, _ := lexer.NewScanner([]byte(strings.Repeat("<", 1002)), lexer.Options{}).Scan()
	prog := optimizer.Optimize(ir.Build(toks))
	_, err := New(prog, Options{Cell: tape.NewConfig(tape.Cell8)}).Run(context.Background())
	if err == nil {
		t.Fatalf("expected a fatal tape underflow error")
	}
}

func TestEOFPolicies(t *testing.T) {
	toks, _ := lexer.NewScanner([]byte(","), lexer.Options{}).Scan()
	prog := optimizer.Optimize(ir.Build(toks))

	cases := []struct {
		policy EOFPolicy
		want   int64
	}{
		{EOFNoChange, 0},
		{EOFZero, 0},
		{EOFMinusOne, -1},
	}
	for _, c := range cases {
		sum, err := New(prog, Options{
			Cell:   tape.NewConfig(tape.Cell8),
			EOF:    c.policy,
			Stdin:  strings.NewReader(""),
			Stdout: &bytes.Buffer{},
		}).Run(context.Background())
		if err != nil {
			t.Fatalf("policy %v: unexpected error: %v", c.policy, err)
		}
		if sum.FinalCell != c.want {
			t.Fatalf("policy %v: expected final cell %d, got %d", c.policy, c.want, sum.FinalCell)
		}
	}
}

func TestClearCellBalancedLoopEquivalence(t *testing.T) {
	// The transfer loop "[->+<]" must leave the same tape whether or not
	// the optimizer rewrites it: running the raw WHL/END IR (optimizer not
	// applied) should match the MULT/CALC/SET rewrite.
	run := func(p *ir.Program) int64 {
		sum, err := New(p, Options{Cell: tape.NewConfig(tape.Cell8), Stdout: &bytes.Buffer{}}).Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return sum.FinalCell
	}

	// The naive program ends with the pointer at offset 0 (back at the
	// loop head) after MOV(-1) undoes the last MOV(+1); follow it with a
	// MOV(+1) for both versions so FinalCell reads the transferred value.
	toks2, _ := lexer.NewScanner([]byte("++++++++++[->+<]>"), lexer.Options{}).Scan()
	naive2 := ir.Build(toks2)
	optimized2 := optimizer.Optimize(naive2)

	if got, want := run(naive2), int64(10); got != want {
		t.Fatalf("naive interpretation: got %d want %d", got, want)
	}
	if got, want := run(optimized2), int64(10); got != want {
		t.Fatalf("optimized interpretation: got %d want %d", got, want)
	}
}

func TestNoNewlineAtEndDetected(t *testing.T) {
	sum, out := run(t, "+++++++++++++++++++++++++++++++++++++++++++++++++.", Options{})
	if out == "" {
		t.Fatalf("expected some output")
	}
	if !sum.TrailingText {
		t.Fatalf("expected TrailingText to be set for non-newline output")
	}
}
