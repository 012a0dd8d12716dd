package bytecode_test

import (
	"testing"

	"github.com/pscal-lang/pscal/internal/ast"
	"github.com/pscal-lang/pscal/internal/bytecode"
	"github.com/pscal-lang/pscal/internal/symbol"
	"github.com/pscal-lang/pscal/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ident(name string) *ast.Node {
	n := ast.New(ast.VARIABLE, &ast.Token{Type: ast.TokIdent, Lexeme: name})
	ast.SetType(n, value.KindInt64)
	return n
}

func intLit(v int64) *ast.Node {
	n := ast.New(ast.NUMBER, &ast.Token{Type: ast.TokIntLit})
	n.IntLit = v
	ast.SetType(n, value.KindInt64)
	return n
}

// x := 1 + 2
func TestCompileSimpleAssign(t *testing.T) {
	assign := ast.New(ast.ASSIGN, nil)
	ast.SetLeft(assign, ident("x"))
	add := ast.New(ast.BINARY_OP, &ast.Token{Type: ast.TokOperator, Lexeme: "+"})
	ast.SetLeft(add, intLit(1))
	ast.SetRight(add, intLit(2))
	ast.SetRight(assign, add)

	chunk, err := bytecode.Compile(assign, symbol.NewScope())
	require.NoError(t, err)
	assert.Equal(t, bytecode.HALT, bytecode.Opcode(chunk.Code[len(chunk.Code)-1]))
	assert.Equal(t, bytecode.CONSTANT, bytecode.Opcode(chunk.Code[0]))
}

// if true then x := 1 else x := 2
func TestCompileIfEmitsJumps(t *testing.T) {
	ifNode := ast.New(ast.IF, nil)
	cond := ast.New(ast.BOOLEAN, &ast.Token{Type: ast.TokKeyword})
	cond.BoolLit = true
	ast.SetType(cond, value.KindBool)
	ast.SetLeft(ifNode, cond)

	thenAssign := ast.New(ast.ASSIGN, nil)
	ast.SetLeft(thenAssign, ident("x"))
	ast.SetRight(thenAssign, intLit(1))
	ast.SetRight(ifNode, thenAssign)

	elseAssign := ast.New(ast.ASSIGN, nil)
	ast.SetLeft(elseAssign, ident("x"))
	ast.SetRight(elseAssign, intLit(2))
	ast.SetExtra(ifNode, elseAssign)

	chunk, err := bytecode.Compile(ifNode, symbol.NewScope())
	require.NoError(t, err)

	out, err := bytecode.Dasm(chunk)
	require.NoError(t, err)
	assert.Contains(t, string(out), "jump_if_false")
	assert.Contains(t, string(out), "jump ")
}

func TestCompileLowersUnknownCallToBuiltin(t *testing.T) {
	call := ast.New(ast.CALL, &ast.Token{Type: ast.TokIdent, Lexeme: "DoStuff"})
	_, err := bytecode.Compile(call, symbol.NewScope())
	// DoStuff resolves as a builtin call since it is absent from the
	// procedure table, which codegen allows (spec §4.6): the VM raises the
	// runtime error for an unresolved builtin name, not codegen.
	require.NoError(t, err)
}

func TestCompileReportsUndefinedProcedure(t *testing.T) {
	call := ast.New(ast.CALL, &ast.Token{Type: ast.TokIdent, Lexeme: "DoStuff"})
	scope := symbol.NewScope()
	require.NoError(t, scope.Procedures.Insert(&symbol.Symbol{Name: "DoStuff", IsDefined: false}))

	_, err := bytecode.Compile(call, scope)
	require.Error(t, err)
	var cerr *bytecode.CodegenError
	require.ErrorAs(t, err, &cerr)
}
