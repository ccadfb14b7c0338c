package ir

import "bf/internal/lexer"

// Build walks a folded token stream once and produces the naive IR: a flat
// node list with every WHL linked to its matching END. Grounded on the
// teacher's Chunk.WriteOp append style, generalized from a byte-code
// buffer to a typed node slice.
func Build(tokens []lexer.Token) *Program {
	p := &Program{}
	var opens []int // stack of indices of still-open WHL nodes

	push := func(n Node) int {
		p.Nodes = append(p.Nodes, n)
		return len(p.Nodes) - 1
	}

	for _, t := range tokens {
		switch t.Type {
		case lexer.TokRight:
			push(Node{Op: OpMov, Count: t.Count, Line: t.Line, Col: t.Col})
			p.Len += t.Count
		case lexer.TokLeft:
			push(Node{Op: OpMov, Count: -t.Count, Line: t.Line, Col: t.Col})
			p.Len += t.Count
		case lexer.TokPlus:
			push(Node{Op: OpAdd, Count: t.Count, Line: t.Line, Col: t.Col})
			p.Len += t.Count
		case lexer.TokMinus:
			push(Node{Op: OpAdd, Count: -t.Count, Line: t.Line, Col: t.Col})
			p.Len += t.Count
		case lexer.TokClear:
			push(Node{Op: OpSet, Count: 0, Line: t.Line, Col: t.Col})
			p.Len += 3
		case lexer.TokOpen:
			idx := push(Node{Op: OpWhl, Line: t.Line, Col: t.Col})
			opens = append(opens, idx)
			p.Len++
		case lexer.TokClose:
			if len(opens) == 0 {
				// The lexer guarantees this can't happen, but stay
				// defensive rather than panic on a malformed stream.
				continue
			}
			openIdx := opens[len(opens)-1]
			opens = opens[:len(opens)-1]
			closeIdx := push(Node{Op: OpEnd, Line: t.Line, Col: t.Col})
			p.Nodes[openIdx].Link = closeIdx
			p.Nodes[closeIdx].Link = openIdx
			p.Len++
		case lexer.TokDot:
			push(Node{Op: OpPrt, Line: t.Line, Col: t.Col})
			p.Len++
		case lexer.TokComma:
			push(Node{Op: OpInp, Line: t.Line, Col: t.Col})
			p.Len++
		case lexer.TokDebug:
			// Debug dump has no IR representation of its own in this
			// core; sibling tools consume the token stream directly.
		}
	}
	return p
}
