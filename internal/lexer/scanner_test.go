package lexer

import "testing"

func scan(t *testing.T, src string, opts Options) []Token {
	t.Helper()
	toks, _ := NewScanner([]byte(src), opts).Scan()
	return toks
}

func TestFoldsRuns(t *testing.T) {
	toks := scan(t, "+++>><", Options{})
	want := []Token{
		{Type: TokPlus, Count: 3, Line: 1, Col: 1},
		{Type: TokRight, Count: 2, Line: 1, Col: 4},
		{Type: TokLeft, Count: 1, Line: 1, Col: 6},
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i := range want {
		if toks[i].Type != want[i].Type || toks[i].Count != want[i].Count {
			t.Errorf("token %d = %v, want %v", i, toks[i], want[i])
		}
	}
}

func TestFoldCapAppliesOnlyToPlusMinus(t *testing.T) {
	src := ""
	for i := 0; i < 130; i++ {
		src += "+"
	}
	for i := 0; i < 130; i++ {
		src += ">"
	}
	toks := scan(t, src, Options{})
	var plusToks, rightToks []Token
	for _, tk := range toks {
		if tk.Type == TokPlus {
			plusToks = append(plusToks, tk)
		}
		if tk.Type == TokRight {
			rightToks = append(rightToks, tk)
		}
	}
	if len(plusToks) != 2 || plusToks[0].Count != RunCap || plusToks[1].Count != 2 {
		t.Errorf("plus folding = %v, want split at 128", plusToks)
	}
	if len(rightToks) != 1 || rightToks[0].Count != 130 {
		t.Errorf("'>' run got capped: %v", rightToks)
	}
}

func TestClearCellPeephole(t *testing.T) {
	toks := scan(t, "++++[-]", Options{})
	if len(toks) != 2 || toks[0].Type != TokPlus || toks[1].Type != TokClear {
		t.Fatalf("got %v, want [ADD(4), CLEAR]", toks)
	}
}

func TestUnmatchedCloseIsDropped(t *testing.T) {
	toks := scan(t, "+]+", Options{})
	if len(toks) != 1 || toks[0].Count != 2 {
		t.Fatalf("got %v, want single folded ADD(2)", toks)
	}
}

func TestUnmatchedOpenDropsItsBody(t *testing.T) {
	toks := scan(t, "++[++>", Options{})
	if len(toks) != 1 || toks[0].Type != TokPlus || toks[0].Count != 2 {
		t.Fatalf("got %v, want only the leading ADD(2)", toks)
	}
}

func TestDebugTokenRequiresOption(t *testing.T) {
	if toks := scan(t, "#", Options{}); len(toks) != 0 {
		t.Fatalf("debug token emitted without Options.Debug: %v", toks)
	}
	if toks := scan(t, "#", Options{Debug: true}); len(toks) != 1 || toks[0].Type != TokDebug {
		t.Fatalf("debug token not emitted with Options.Debug: %v", toks)
	}
}

func TestInteractiveBangEndsProgram(t *testing.T) {
	toks, runtime := NewScanner([]byte("++!hello"), Options{Interactive: true}).Scan()
	if len(toks) != 1 || toks[0].Count != 2 {
		t.Fatalf("program tokens = %v", toks)
	}
	if string(runtime) != "hello" {
		t.Fatalf("runtime input = %q, want %q", runtime, "hello")
	}
}

func TestBangInsideOpenLoopIsOrdinaryByte(t *testing.T) {
	// A '!' while a loop is still open is not a program terminator (no
	// command maps to it either), so it is simply ignored like any other
	// non-command byte and scanning continues.
	toks, runtime := NewScanner([]byte("[+!-]>"), Options{Interactive: true}).Scan()
	if runtime != nil {
		t.Fatalf("runtime input = %q, want nil (loop still open)", runtime)
	}
	if len(toks) != 5 {
		t.Fatalf("got %v", toks)
	}
}

func TestTokenizationIdempotence(t *testing.T) {
	src := "++++++++[>++++++++<-]>+."
	toks1 := scan(t, src, Options{})
	printable := Sprint(toks1)
	toks2 := scan(t, printable, Options{})
	if len(toks1) != len(toks2) {
		t.Fatalf("re-tokenizing printable form changed token count: %v vs %v", toks1, toks2)
	}
	for i := range toks1 {
		if toks1[i].Type != toks2[i].Type || toks1[i].Count != toks2[i].Count {
			t.Errorf("token %d mismatch: %v vs %v", i, toks1[i], toks2[i])
		}
	}
}
