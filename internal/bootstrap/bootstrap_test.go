package bootstrap_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pscal-lang/pscal/internal/ast"
	"github.com/pscal-lang/pscal/internal/bootstrap"
	"github.com/pscal-lang/pscal/internal/symbol"
	"github.com/pscal-lang/pscal/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intLit(v int64) *ast.Node {
	n := ast.New(ast.NUMBER, &ast.Token{Type: ast.TokIntLit})
	n.IntLit = v
	ast.SetType(n, value.KindInt64)
	return n
}

// writeln(1 + 2), built directly through the AST constructor helpers the
// way a future frontend (or this test) would, since no concrete grammar
// ships with this package.
func program() *ast.Node {
	add := ast.New(ast.BINARY_OP, &ast.Token{Type: ast.TokOperator, Lexeme: "+"})
	ast.SetLeft(add, intLit(1))
	ast.SetRight(add, intLit(2))
	ast.SetType(add, value.KindInt64)

	wr := ast.New(ast.WRITE_LN, nil)
	ast.AddChild(wr, add)
	return wr
}

func TestRunCompilesAndExecutesOnCacheMiss(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	source := filepath.Join(dir, "prog.pasm")

	var out bytes.Buffer
	res, err := bootstrap.Run(bootstrap.Options{
		SourcePath: source,
		Stdout:     &out,
	}, program(), symbol.NewScope(), nil)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, "3\n", out.String())
}

func TestRunReusesCacheOnSecondCall(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	source := filepath.Join(dir, "prog.pasm")
	require.NoError(t, os.WriteFile(source, []byte("writeln(1 + 2)\n"), 0o644))

	opts := bootstrap.Options{SourcePath: source}
	_, err := bootstrap.Run(opts, program(), symbol.NewScope(), nil)
	require.NoError(t, err)

	var out bytes.Buffer
	opts.Stdout = &out
	res, err := bootstrap.Run(opts, program(), symbol.NewScope(), nil)
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Equal(t, "3\n", out.String())
}

func TestRunNoCacheSkipsPersistence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	source := filepath.Join(dir, "prog.pasm")

	opts := bootstrap.Options{SourcePath: source, NoCache: true}
	_, err := bootstrap.Run(opts, program(), symbol.NewScope(), nil)
	require.NoError(t, err)

	var out bytes.Buffer
	opts.Stdout = &out
	res, err := bootstrap.Run(opts, program(), symbol.NewScope(), nil)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
}
