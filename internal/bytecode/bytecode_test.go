package bytecode_test

import (
	"io/fs"
	"testing"
	"time"

	"github.com/pscal-lang/pscal/internal/bytecode"
	"github.com/pscal-lang/pscal/internal/filetest"
	"github.com/pscal-lang/pscal/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noUpdate = false

// namedFileInfo satisfies os.FileInfo with only a Name, enough for
// filetest.DiffCustom which only ever reads fi.Name() to locate the golden
// file; the golden chunks here are built in-memory rather than read from a
// source fixture on disk, so there is no real file to os.Stat.
type namedFileInfo string

func (n namedFileInfo) Name() string       { return string(n) }
func (n namedFileInfo) Size() int64        { return 0 }
func (n namedFileInfo) Mode() fs.FileMode  { return 0 }
func (n namedFileInfo) ModTime() time.Time { return time.Time{} }
func (n namedFileInfo) IsDir() bool        { return false }
func (n namedFileInfo) Sys() any           { return nil }

const simpleAsm = `program:
	entry: 0

	constants:
		int    2
		int    3

	code:
		constant 0   # 000
		constant 1   # 001
		add          # 002
		write_ln 1   # 003
		halt         # 004
`

func TestAsmDasmRoundTrip(t *testing.T) {
	chunk, err := bytecode.Asm([]byte(simpleAsm))
	require.NoError(t, err)
	require.Len(t, chunk.Constants, 2)

	out, err := bytecode.Dasm(chunk)
	require.NoError(t, err)

	reparsed, err := bytecode.Asm(out)
	require.NoError(t, err)
	assert.Equal(t, chunk.Code, reparsed.Code)
	assert.Equal(t, len(chunk.Constants), len(reparsed.Constants))
}

const jumpAsm = `program:
	entry: 0
	constants:
		bool true
	code:
		constant 0         # 000
		jump_if_false 3    # 001
		jump 4             # 002
		nop                # 003
		halt               # 004
`

func TestAsmResolvesJumpIndicesToOffsets(t *testing.T) {
	chunk, err := bytecode.Asm([]byte(jumpAsm))
	require.NoError(t, err)

	// constant takes 2 bytes, so jump_if_false is at addr 2 (1 opcode byte +
	// 2 operand bytes = 3 bytes), operand bytes are at chunk.Code[3:5];
	// target instruction 3 starts at byte offset 2+3(jmp_if_false)+3(jump) = 8.
	offset := chunk.ReadI16(3)
	posAfterOperand := 5
	assert.Equal(t, 8, posAfterOperand+int(offset))
}

func TestDasmMatchesGoldenRendering(t *testing.T) {
	chunk := bytecode.NewChunk()
	i0, err := chunk.AddConstant(value.MakeInt64(2))
	require.NoError(t, err)
	i1, err := chunk.AddConstant(value.MakeInt64(3))
	require.NoError(t, err)
	chunk.EmitU8(bytecode.CONSTANT, uint8(i0), 1)
	chunk.EmitU8(bytecode.CONSTANT, uint8(i1), 1)
	chunk.EmitSimple(bytecode.ADD, 1)
	chunk.EmitU8(bytecode.WRITE_LN, 1, 1)
	chunk.EmitSimple(bytecode.HALT, 1)

	out, err := bytecode.Dasm(chunk)
	require.NoError(t, err)
	filetest.DiffCustom(t, namedFileInfo("sum"), "dasm", ".golden", string(out), "testdata", &noUpdate)
}

func TestDasmOfEmptyChunkStillEmitsProgramHeader(t *testing.T) {
	chunk := bytecode.NewChunk()
	chunk.EmitSimple(bytecode.HALT, 1)

	out, err := bytecode.Dasm(chunk)
	require.NoError(t, err)
	assert.Contains(t, string(out), "program:")
	assert.Contains(t, string(out), "halt")
}
