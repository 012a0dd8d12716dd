package optimizer_test

import (
	"testing"

	"github.com/pscal-lang/pscal/internal/ast"
	"github.com/pscal-lang/pscal/internal/optimizer"
	"github.com/pscal-lang/pscal/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intNode(v int64) *ast.Node {
	n := ast.New(ast.NUMBER, &ast.Token{Type: ast.TokIntLit})
	n.IntLit = v
	ast.SetType(n, value.KindInt64)
	return n
}

func realNode(v float64) *ast.Node {
	n := ast.New(ast.NUMBER, &ast.Token{Type: ast.TokRealLit})
	n.RealLit = v
	ast.SetType(n, value.KindDouble)
	return n
}

func boolNode(b bool) *ast.Node {
	n := ast.New(ast.BOOLEAN, &ast.Token{Type: ast.TokKeyword})
	n.BoolLit = b
	ast.SetType(n, value.KindBool)
	return n
}

func binOp(op string, l, r *ast.Node) *ast.Node {
	n := ast.New(ast.BINARY_OP, &ast.Token{Type: ast.TokOperator, Lexeme: op})
	ast.SetLeft(n, l)
	ast.SetRight(n, r)
	return n
}

func TestFoldsIntegerArithmetic(t *testing.T) {
	root := binOp("+", intNode(2), intNode(3))
	out, st := optimizer.Optimize(root)
	require.Equal(t, ast.NUMBER, out.Kind)
	assert.EqualValues(t, 5, out.IntLit)
	assert.Equal(t, 1, st.Folded)
}

func TestDoesNotFoldMixedIntReal(t *testing.T) {
	root := binOp("+", intNode(2), realNode(3.5))
	out, st := optimizer.Optimize(root)
	assert.Equal(t, ast.BINARY_OP, out.Kind)
	assert.Equal(t, 0, st.Folded)
}

func TestIntDivUsesIntegerSemantics(t *testing.T) {
	root := binOp("div", intNode(7), intNode(2))
	out, _ := optimizer.Optimize(root)
	assert.EqualValues(t, 3, out.IntLit)
}

func TestSlashForcesRealEvenOnIntegers(t *testing.T) {
	root := binOp("/", intNode(7), intNode(2))
	out, _ := optimizer.Optimize(root)
	assert.Equal(t, ast.NUMBER, out.Kind)
	assert.Equal(t, value.KindDouble, out.VarType)
	assert.InDelta(t, 3.5, out.RealLit, 1e-9)
}

func TestDeadBranchEliminationTakesThenBranch(t *testing.T) {
	ifNode := ast.New(ast.IF, nil)
	ast.SetLeft(ifNode, boolNode(true))
	ast.SetRight(ifNode, intNode(1))
	ast.SetExtra(ifNode, intNode(2))

	out, st := optimizer.Optimize(ifNode)
	assert.EqualValues(t, 1, out.IntLit)
	assert.Equal(t, 1, st.BranchesEliminated)
}

func TestDeadBranchEliminationTakesElseBranch(t *testing.T) {
	ifNode := ast.New(ast.IF, nil)
	ast.SetLeft(ifNode, boolNode(false))
	ast.SetRight(ifNode, intNode(1))
	ast.SetExtra(ifNode, intNode(2))

	out, _ := optimizer.Optimize(ifNode)
	assert.EqualValues(t, 2, out.IntLit)
}

func TestOptimizePreservesParentInvariant(t *testing.T) {
	inner := binOp("+", intNode(1), intNode(1))
	outer := binOp("*", inner, intNode(10))

	out, _ := optimizer.Optimize(outer)
	require.NoError(t, ast.Verify(out))
}
