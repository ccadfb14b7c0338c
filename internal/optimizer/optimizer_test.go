package optimizer

import (
	"testing"

	"bf/internal/ir"
	"bf/internal/lexer"
)

func build(t *testing.T, src string) *ir.Program {
	t.Helper()
	toks, _ := lexer.NewScanner([]byte(src), lexer.Options{}).Scan()
	return ir.Build(toks)
}

func TestCoalesceMovesDropsZero(t *testing.T) {
	p := build(t, ">><<")
	opt := Optimize(p)
	for _, n := range opt.Nodes {
		if n.Op == ir.OpMov && n.Count == 0 {
			t.Fatalf("expected MOV(0) to be dropped, got %v", opt.Nodes)
		}
	}
	if len(opt.Nodes) != 0 {
		t.Fatalf("expected fully canceling moves to vanish, got %v", opt.Nodes)
	}
}

func TestClearCellFoldedAtLexStage(t *testing.T) {
	p := build(t, "[-]")
	if len(p.Nodes) != 1 || p.Nodes[0].Op != ir.OpSet {
		t.Fatalf("expected a single SET node from [-], got %v", p.Nodes)
	}
	opt := Optimize(p)
	if len(opt.Nodes) != 1 || opt.Nodes[0].Op != ir.OpSet {
		t.Fatalf("expected SET to survive optimization untouched, got %v", opt.Nodes)
	}
}

func TestBalancedLoopBecomesCalc(t *testing.T) {
	// classic transfer loop: move cell 0 into cell 1, eight at a time.
	p := build(t, "++++++++[->+<]")
	opt := Optimize(p)
	var sawMult, sawCalc, sawWhl bool
	for _, n := range opt.Nodes {
		switch n.Op {
		case ir.OpMult:
			sawMult = true
		case ir.OpCalc:
			sawCalc = true
			if n.Offset != 1 || n.Offset3 != 0 || n.Count3 != 1 {
				t.Fatalf("unexpected CALC shape: %+v", n)
			}
		case ir.OpWhl:
			sawWhl = true
		}
	}
	if !sawMult || !sawCalc {
		t.Fatalf("expected loop to rewrite to MULT/CALC, got %v", opt.Nodes)
	}
	if sawWhl {
		t.Fatalf("expected no surviving WHL, got %v", opt.Nodes)
	}
}

func TestSlippingLoopIsNotRewritten(t *testing.T) {
	// net pointer move of -1 per iteration: not a balanced simple loop.
	// (guarded by a leading '+' so the loop isn't also dropped as dead.)
	p := build(t, "+[->+<<]")
	opt := Optimize(p)
	var sawWhl bool
	for _, n := range opt.Nodes {
		if n.Op == ir.OpWhl {
			sawWhl = true
		}
		if n.Op == ir.OpCalc {
			t.Fatalf("did not expect a CALC rewrite for a slipping loop, got %v", opt.Nodes)
		}
	}
	if !sawWhl {
		t.Fatalf("expected the slipping loop to survive as WHL, got %v", opt.Nodes)
	}
}

func TestLeadingZeroLoopDropped(t *testing.T) {
	p := build(t, "[>++<-]+.")
	opt := Optimize(p)
	for _, n := range opt.Nodes {
		if n.Op == ir.OpWhl || n.Op == ir.OpEnd {
			t.Fatalf("expected leading dead loop to be dropped, got %v", opt.Nodes)
		}
	}
	if len(opt.Nodes) != 2 {
		t.Fatalf("expected only ADD + PRT to remain, got %v", opt.Nodes)
	}
}

func TestRunsOnceLoopBecomesIf(t *testing.T) {
	// body unconditionally clears the head cell: provably runs at most once.
	p := build(t, "+[>+<[-]]")
	opt := Optimize(p)
	var sawIf, sawEndIf, sawWhl bool
	for _, n := range opt.Nodes {
		switch n.Op {
		case ir.OpIf:
			sawIf = true
		case ir.OpEndIf:
			sawEndIf = true
		case ir.OpWhl:
			sawWhl = true
		}
	}
	if !sawIf || !sawEndIf {
		t.Fatalf("expected outer loop to rewrite to IF/ENDIF, got %v", opt.Nodes)
	}
	if sawWhl {
		t.Fatalf("expected no surviving WHL, got %v", opt.Nodes)
	}
}

func TestLinksStayConsistentAfterRewrite(t *testing.T) {
	p := build(t, "+++[>++<-]>[-]<[>+<-]")
	opt := Optimize(p)
	for i, n := range opt.Nodes {
		if n.Op.IsLoopOpener() {
			if n.Link < 0 || n.Link >= len(opt.Nodes) {
				t.Fatalf("node %d: Link out of range: %+v", i, n)
			}
			closer := opt.Nodes[n.Link]
			if closer.Op != ir.OpEnd && closer.Op != ir.OpEndIf {
				t.Fatalf("node %d: Link does not point at a closer: %+v", i, closer)
			}
			if closer.Link != i {
				t.Fatalf("node %d and %d: Link is not symmetric", i, n.Link)
			}
		}
	}
}

func TestProgramLenRecomputed(t *testing.T) {
	p := build(t, "+++[-]")
	opt := Optimize(p)
	if opt.Len <= 0 {
		t.Fatalf("expected a positive Len, got %d", opt.Len)
	}
}
