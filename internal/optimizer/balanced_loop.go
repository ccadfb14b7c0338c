package optimizer

import "bf/internal/ir"

// rewriteBalancedLoops finds loops whose body touches only '+'/'-'/'<'/'>'
// with zero net pointer movement and exactly one decrement-by-one of the
// entry cell, and rewrites them to a closed-form CALC sequence instead of
// a branch-and-repeat loop. Loops containing a nested loop are left as
// WHL/END (their own bodies are still recursed into).
func rewriteBalancedLoops(nodes []ir.Node) []ir.Node {
	out := make([]ir.Node, 0, len(nodes))
	i := 0
	for i < len(nodes) {
		n := nodes[i]
		if n.Op == ir.OpWhl {
			end := n.Link
			if hasNestedLoop(nodes[i+1 : end]) {
				// Links are indices into nodes; rebase them onto a copy of
				// the body before recursing into it.
				body := relinkAfterFilter(append([]ir.Node(nil), nodes[i+1:end]...))
				out = append(out, n)
				out = append(out, rewriteBalancedLoops(body)...)
				out = append(out, nodes[end])
				i = end + 1
				continue
			}
			if rewritten, ok := tryRewriteBalanced(nodes[i+1 : end]); ok {
				out = append(out, rewritten...)
				i = end + 1
				continue
			}
			out = append(out, n)
			out = append(out, nodes[i+1:end]...)
			out = append(out, nodes[end])
			i = end + 1
			continue
		}
		out = append(out, n)
		i++
	}
	return relinkAfterFilter(out)
}

func hasNestedLoop(body []ir.Node) bool {
	for _, n := range body {
		if n.Op.IsLoopOpener() {
			return true
		}
	}
	return false
}

type loopTarget struct {
	offset int
	factor int
}

// tryRewriteBalanced tests a flat (no nested loop) loop body against the
// "balanced simple loop" shape from spec.md 4.3 and returns its
// replacement node sequence if it qualifies.
func tryRewriteBalanced(body []ir.Node) ([]ir.Node, bool) {
	cursor := 0
	headSeen := 0
	byOffset := map[int]int{}
	var touched []loopTarget

	for _, n := range body {
		switch n.Op {
		case ir.OpMov:
			cursor += n.Count
		case ir.OpAdd:
			if cursor == 0 {
				if n.Count != -1 {
					return nil, false
				}
				headSeen++
				if headSeen > 1 {
					return nil, false
				}
				continue
			}
			if j, ok := byOffset[cursor]; ok {
				touched[j].factor += n.Count
			} else {
				byOffset[cursor] = len(touched)
				touched = append(touched, loopTarget{offset: cursor, factor: n.Count})
			}
		default:
			return nil, false
		}
	}
	if cursor != 0 || headSeen != 1 {
		return nil, false
	}

	filtered := touched[:0]
	for _, t := range touched {
		if t.factor != 0 {
			filtered = append(filtered, t)
		}
	}

	var opener ir.Node
	switch {
	case len(filtered) == 1 && filtered[0].factor > 0:
		opener = ir.Node{Op: ir.OpMult}
	case len(filtered) == 1 && filtered[0].factor < 0:
		opener = ir.Node{Op: ir.OpCMult}
	default:
		opener = ir.Node{Op: ir.OpFor}
	}

	out := []ir.Node{opener}
	for _, t := range filtered {
		out = append(out, ir.Node{
			Op: ir.OpCalc,
			// T[offset] := T[offset] + factor * T[head(0)]
			Offset: t.offset, Count: 0,
			Offset2: t.offset, Count2: 1,
			Offset3: 0, Count3: t.factor,
		})
	}
	out = append(out, ir.Node{Op: ir.OpSet, Count: 0, Offset: 0})
	out = append(out, ir.Node{Op: ir.OpEnd})
	return out, true
}

// rewriteRunsOnceLoops converts a WHL/END pair into IF/ENDIF when the body
// unconditionally clears the entry cell (offset 0) via SET before any
// possible second pass, so the loop provably runs at most once and the
// back-ends can skip the branch-back test.
func rewriteRunsOnceLoops(nodes []ir.Node) []ir.Node {
	out := make([]ir.Node, 0, len(nodes))
	i := 0
	for i < len(nodes) {
		n := nodes[i]
		if n.Op == ir.OpWhl {
			end := n.Link
			// Links are indices into nodes; rebase them onto a copy of the
			// body before recursing into it.
			body := relinkAfterFilter(append([]ir.Node(nil), nodes[i+1:end]...))
			if clearsHeadUnconditionally(body) {
				out = append(out, ir.Node{Op: ir.OpIf, Offset: n.Offset, Line: n.Line, Col: n.Col})
				out = append(out, rewriteRunsOnceLoops(body)...)
				out = append(out, ir.Node{Op: ir.OpEndIf})
				i = end + 1
				continue
			}
			out = append(out, n)
			out = append(out, rewriteRunsOnceLoops(body)...)
			out = append(out, nodes[end])
			i = end + 1
			continue
		}
		out = append(out, n)
		i++
	}
	return relinkAfterFilter(out)
}

// clearsHeadUnconditionally reports whether the top-level (not nested)
// statements of body contain a SET at offset 0 with no later top-level ADD
// to offset 0 and no later nested loop (which could leave it non-zero
// again), and whether the body ends back at offset 0.
func clearsHeadUnconditionally(body []ir.Node) bool {
	cursor := 0
	cleared := false
	depth := 0
	for _, n := range body {
		if depth == 0 {
			switch n.Op {
			case ir.OpMov:
				cursor += n.Count
			case ir.OpSet:
				if cursor == 0 {
					cleared = true
				}
			case ir.OpAdd:
				if cursor == 0 {
					cleared = false
				}
			}
		}
		if n.Op.IsLoopOpener() {
			if depth == 0 {
				// a nested loop may write the head again
				cleared = false
			}
			depth++
		} else if n.Op == ir.OpEnd || n.Op == ir.OpEndIf {
			depth--
		}
	}
	// the closing test reads the cell under the final cursor
	return cleared && cursor == 0
}
