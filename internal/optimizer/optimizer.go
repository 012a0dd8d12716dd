// Package optimizer implements the two pure AST-to-AST rewrites spec §4.4
// describes: constant folding of BINARY_OP/UNARY_OP, and dead-branch
// elimination of IF nodes whose condition folds to a literal boolean.
package optimizer

import (
	"github.com/pscal-lang/pscal/internal/ast"
)

// Stats reports how much rewriting an Optimize call performed; it reaches
// callers through bootstrap.Result.OptimizerStats and is not printed by
// cmd/pscal.
type Stats struct {
	Folded             int
	BranchesEliminated int
}

// Optimize rewrites root in place and returns the replacement root (the
// root itself may be folded away, e.g. `if true then X else Y` rewrites to
// X) along with statistics about the rewrite. Optimize never reorders CALL
// or WRITE/WRITE_LN nodes; the only statements it removes are those in the
// untaken branch of an IF whose condition is a literal boolean, whatever
// they contain.
func Optimize(root *ast.Node) (*ast.Node, Stats) {
	var st Stats
	return rewrite(root, &st), st
}

func rewrite(n *ast.Node, st *Stats) *ast.Node {
	if n == nil {
		return nil
	}

	n.Left = rewriteChild(n, n.Left, st)
	n.Right = rewriteChild(n, n.Right, st)
	n.Extra = rewriteChild(n, n.Extra, st)
	for i, c := range n.Children {
		n.Children[i] = rewriteChild(n, c, st)
	}

	switch n.Kind {
	case ast.BINARY_OP:
		if folded := foldBinary(n); folded != nil {
			st.Folded++
			return reparent(n.Parent, folded)
		}
	case ast.UNARY_OP:
		if folded := foldUnary(n); folded != nil {
			st.Folded++
			return reparent(n.Parent, folded)
		}
	case ast.IF:
		if taken := selectBranch(n); taken != nil {
			st.BranchesEliminated++
			return reparent(n.Parent, taken)
		}
	}
	return n
}

func rewriteChild(parent, child *ast.Node, st *Stats) *ast.Node {
	if child == nil {
		return nil
	}
	repl := rewrite(child, st)
	if repl != nil {
		repl.Parent = parent
	}
	return repl
}

// reparent re-establishes repl's parent back-pointer to newParent, which is
// the invariant the optimizer must restore for every surviving node after a
// rewrite (spec §4.4: "the parent back-pointer of each surviving child is
// re-established").
func reparent(newParent, repl *ast.Node) *ast.Node {
	if repl != nil {
		repl.Parent = newParent
	}
	return repl
}

// selectBranch returns the branch an IF node collapses to when its
// condition (Left) is a literal BOOLEAN, or nil if the condition is not
// foldable. Left is the condition, Right the then-branch, Extra the
// (possibly nil) else-branch.
func selectBranch(n *ast.Node) *ast.Node {
	cond := n.Left
	if cond == nil || cond.Kind != ast.BOOLEAN {
		return nil
	}
	if cond.BoolLit {
		return n.Right
	}
	if n.Extra != nil {
		return n.Extra
	}
	// both branches eliminated: the statement becomes a no-op COMPOUND with
	// no children, preserving the "some node must occupy this slot" shape
	// codegen expects.
	return ast.New(ast.COMPOUND, nil)
}
