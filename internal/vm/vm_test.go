package vm_test

import (
	"bytes"
	"testing"

	"github.com/pscal-lang/pscal/internal/builtin"
	"github.com/pscal-lang/pscal/internal/bytecode"
	"github.com/pscal-lang/pscal/internal/symbol"
	"github.com/pscal-lang/pscal/internal/value"
	"github.com/pscal-lang/pscal/internal/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func asmChunk(t *testing.T, src string) *bytecode.Chunk {
	t.Helper()
	c, err := bytecode.Asm([]byte(src))
	require.NoError(t, err)
	return c
}

func globalInt(t *testing.T, scope *symbol.Scope, name string) int64 {
	t.Helper()
	sym, ok := scope.Globals.Lookup(name)
	require.True(t, ok)
	n, err := value.AsInt(symbol.Get(sym))
	require.NoError(t, err)
	return n
}

func TestRunArithmeticAndWrite(t *testing.T) {
	c := asmChunk(t, `
program:
	entry: 0
	constants:
		int 2
		int 3
	code:
		constant 0
		constant 1
		add
		write_ln 1
		halt
`)
	var out bytes.Buffer
	th := vm.NewThread(c, symbol.NewScope(), builtin.NewRegistry())
	th.Stdout = &out
	require.NoError(t, th.Run())
	assert.Equal(t, "5\n", out.String())
}

func TestRunGlobalAssignmentRoundTrip(t *testing.T) {
	c := asmChunk(t, `
program:
	entry: 0
	constants:
		string "x"
		int 41
	code:
		constant 1
		set_global 0
		get_global 0
		write_ln 1
		halt
`)
	var out bytes.Buffer
	scope := symbol.NewScope()
	th := vm.NewThread(c, scope, builtin.NewRegistry())
	th.Stdout = &out
	require.NoError(t, th.Run())
	assert.Equal(t, "41\n", out.String())
	assert.Equal(t, int64(41), globalInt(t, scope, "x"))
}

func TestRunProcedureCallAndReturn(t *testing.T) {
	// procedure body: x := 41; return   (bytes 0..5)
	// program body:   call proc; halt  (the call instruction starts at byte 6)
	c := asmChunk(t, `
program:
	entry: 6
	constants:
		string "x"
		int 41
		string "proc"
	code:
		constant 1
		set_global 0
		return
		call 2 0 0
		halt
`)
	scope := symbol.NewScope()
	require.NoError(t, scope.Procedures.Insert(&symbol.Symbol{
		Name: "proc", IsDefined: true, Address: 0, Arity: 0, LocalsCnt: 0,
	}))

	th := vm.NewThread(c, scope, builtin.NewRegistry())
	require.NoError(t, th.Run())

	assert.Equal(t, int64(41), globalInt(t, scope, "x"))
}

func TestRunCallBuiltinUpcase(t *testing.T) {
	c := asmChunk(t, `
program:
	entry: 0
	constants:
		string "ab"
		string "upcase"
	code:
		constant 0
		call_builtin 1 1
		write_ln 1
		halt
`)
	var out bytes.Buffer
	th := vm.NewThread(c, symbol.NewScope(), builtin.Default())
	th.Stdout = &out
	require.NoError(t, th.Run())
	assert.Equal(t, "AB\n", out.String())
}

func TestThreadSpawnJoinRoundTrip(t *testing.T) {
	c := asmChunk(t, `
program:
	entry: 0
	constants:
		string "hello"
		string "length"
	code:
		constant 0
		thread_spawn 1 1
		thread_join
		write_ln 1
		halt
`)
	var out bytes.Buffer
	th := vm.NewThread(c, symbol.NewScope(), builtin.Default())
	th.Stdout = &out
	require.NoError(t, th.Run())
	assert.Equal(t, "5\n", out.String())
}

func TestRunReportsRuntimeErrorOnUnresolvedBuiltin(t *testing.T) {
	c := asmChunk(t, `
program:
	entry: 0
	constants:
		string "nope"
	code:
		call_builtin 0 0
		halt
`)
	th := vm.NewThread(c, symbol.NewScope(), builtin.NewRegistry())
	require.Error(t, th.Run())
}

func TestThreadCancelMarksStatus(t *testing.T) {
	c := asmChunk(t, `
program:
	entry: 0
	constants:
	code:
		halt
`)
	th := vm.NewThread(c, symbol.NewScope(), builtin.Default())
	handle, err := th.SpawnNamed("worker", "length", []value.Value{value.MakeString("x")})
	require.NoError(t, err)
	require.NoError(t, th.ThreadCancel(handle))
	st, err := th.ThreadStatus(handle)
	require.NoError(t, err)
	assert.True(t, st.Cancelled)
}
