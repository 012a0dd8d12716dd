package ast_test

import (
	"encoding/json"
	"testing"

	"github.com/pscal-lang/pscal/internal/ast"
	"github.com/pscal-lang/pscal/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func number(n int64) *ast.Node {
	node := ast.New(ast.NUMBER, &ast.Token{Type: ast.TokIntLit, Lexeme: "1"})
	node.IntLit = n
	ast.SetType(node, value.KindInt64)
	return node
}

func TestVerifyPassesOnWellFormedTree(t *testing.T) {
	root := ast.New(ast.BINARY_OP, nil)
	ast.SetLeft(root, number(1))
	ast.SetRight(root, number(2))
	require.NoError(t, ast.Verify(root))
}

func TestVerifyCatchesStaleParent(t *testing.T) {
	root := ast.New(ast.BINARY_OP, nil)
	child := number(1)
	ast.SetLeft(root, child)

	// detach child from the tree structurally without clearing its parent
	// pointer, simulating a frontend bug the verifier must catch.
	other := ast.New(ast.COMPOUND, nil)
	root.Left = nil
	ast.AddChild(other, child)
	child.Parent = root // stale: points at root, not other

	err := ast.Verify(other)
	require.Error(t, err)
	var verr *ast.VerifyError
	require.ErrorAs(t, err, &verr)
}

func TestCopyIsDeepAndReparents(t *testing.T) {
	root := ast.New(ast.BINARY_OP, nil)
	ast.SetLeft(root, number(1))
	ast.SetRight(root, number(2))

	cp := ast.Copy(root)
	require.NotSame(t, root.Left, cp.Left)
	assert.Equal(t, root.Left.IntLit, cp.Left.IntLit)
	assert.Same(t, cp, cp.Left.Parent)
	require.NoError(t, ast.Verify(cp))

	// mutating the copy must not affect the original
	cp.Left.IntLit = 99
	assert.EqualValues(t, 1, root.Left.IntLit)
}

func TestWalkVisitsInOrder(t *testing.T) {
	root := ast.New(ast.BINARY_OP, nil)
	left := number(1)
	right := number(2)
	ast.SetLeft(root, left)
	ast.SetRight(root, right)

	var entered []ast.NodeKind
	ast.Walk(ast.VisitorFunc(func(n *ast.Node, dir ast.VisitDirection) ast.Visitor {
		if dir == ast.VisitEnter {
			entered = append(entered, n.Kind)
		}
		return ast.VisitorFunc(func(n *ast.Node, dir ast.VisitDirection) ast.Visitor {
			if dir == ast.VisitEnter {
				entered = append(entered, n.Kind)
			}
			return nil
		})
	}), root)

	assert.Equal(t, []ast.NodeKind{ast.BINARY_OP, ast.NUMBER, ast.NUMBER}, entered)
}

func TestMarshalJSONContractFields(t *testing.T) {
	root := ast.New(ast.BINARY_OP, &ast.Token{Type: ast.TokOperator, Lexeme: "+", Line: 3})
	ast.SetLeft(root, number(1))
	ast.SetRight(root, number(2))

	data, err := json.Marshal(root)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "BINARY_OP", decoded["node_type"])
	assert.Contains(t, decoded, "token")
	assert.Contains(t, decoded, "var_type")
	assert.Contains(t, decoded, "children")
}
