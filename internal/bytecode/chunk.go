package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/pscal-lang/pscal/internal/value"
)

// Chunk is the append-only-then-frozen code buffer spec §3 describes: a
// byte sequence, a parallel line-number table, and an ordered constant
// pool. Procedure bodies are compiled into the same Chunk as the program
// body (spec §4.5); a Symbol's bytecode_address is simply an offset into
// Code.
type Chunk struct {
	Code      []byte
	Lines     []int
	Constants []value.Value

	// EntryAddr is the code offset of the program's top-level statement
	// body (as opposed to a procedure/function body reached only via CALL).
	EntryAddr int
}

// NewChunk returns an empty chunk.
func NewChunk() *Chunk { return &Chunk{} }

// ErrConstantPoolOverflow is returned by AddConstant once the pool already
// holds 65,535 entries (spec §4.5: "constant-pool overflow (> 65,535
// entries)" is a codegen error).
var ErrConstantPoolOverflow = fmt.Errorf("bytecode: constant pool overflow (> 65535 entries)")

// AddConstant appends v to the constant pool and returns its index. The
// pool is append-only; duplicate literal constants are not required to
// share slots (spec §4.5), so no deduplication is performed here.
func (c *Chunk) AddConstant(v value.Value) (int, error) {
	if len(c.Constants) >= 0xFFFF {
		return 0, ErrConstantPoolOverflow
	}
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1, nil
}

// emit appends op (and line) with no operand.
func (c *Chunk) emit(op Opcode, line int) int {
	addr := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Lines = append(c.Lines, line)
	return addr
}

// EmitSimple appends a no-operand instruction and returns its address.
func (c *Chunk) EmitSimple(op Opcode, line int) int {
	if kindOf(op) != operandNone {
		panic(fmt.Sprintf("bytecode: %s requires an operand", op))
	}
	return c.emit(op, line)
}

// EmitU8 appends an opcode with a single unsigned byte operand (CONSTANT
// index, local slot, WRITE/WRITE_LN count).
func (c *Chunk) EmitU8(op Opcode, arg uint8, line int) int {
	addr := c.emit(op, line)
	c.Code = append(c.Code, arg)
	c.Lines = append(c.Lines, line)
	return addr
}

// EmitU16 appends an opcode with a 16-bit little-endian operand
// (GET_GLOBAL/SET_GLOBAL/GET_FIELD/SET_FIELD name-constant index).
func (c *Chunk) EmitU16(op Opcode, arg uint16, line int) int {
	addr := c.emit(op, line)
	c.appendU16(arg, line)
	return addr
}

// EmitJump appends a jump opcode with a placeholder 16-bit offset and
// returns the address of the offset's first byte, for later patching via
// PatchJump (the canonical "patch after" pattern, spec §3).
func (c *Chunk) EmitJump(op Opcode, line int) int {
	c.emit(op, line)
	at := len(c.Code)
	c.appendU16(0, line)
	return at
}

// PatchJump backfills the jump offset at byte-offset `at` (as returned by
// EmitJump) so it lands on the current end of Code: the offset is relative
// to the position immediately after the 2 operand bytes.
func (c *Chunk) PatchJump(at int) {
	offset := len(c.Code) - (at + 2)
	binary.LittleEndian.PutUint16(c.Code[at:at+2], uint16(int16(offset)))
}

// EmitLoop appends a LOOP instruction whose offset jumps back to loopStart
// (the address recorded before the loop body was compiled).
func (c *Chunk) EmitLoop(loopStart, line int) {
	at := c.emit(LOOP, line)
	c.appendU16(0, line)
	offset := (at + 3) - loopStart // +3: opcode byte + 2 operand bytes
	binary.LittleEndian.PutUint16(c.Code[at+1:at+3], uint16(-int16(offset)))
}

// EmitCall appends a CALL instruction: u16 name-constant, u16 address, u8
// arity.
func (c *Chunk) EmitCall(nameConst uint16, addr uint16, arity uint8, line int) int {
	at := c.emit(CALL, line)
	c.appendU16(nameConst, line)
	c.appendU16(addr, line)
	c.Code = append(c.Code, arity)
	c.Lines = append(c.Lines, line)
	return at
}

// EmitCallBuiltin appends a CALL_BUILTIN instruction: u16 name-constant, u8
// arity. THREAD_SPAWN shares the same encoding.
func (c *Chunk) EmitCallBuiltin(op Opcode, nameConst uint16, arity uint8, line int) int {
	at := c.emit(op, line)
	c.appendU16(nameConst, line)
	c.Code = append(c.Code, arity)
	c.Lines = append(c.Lines, line)
	return at
}

func (c *Chunk) appendU16(v uint16, line int) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	c.Code = append(c.Code, buf[:]...)
	c.Lines = append(c.Lines, line, line)
}

// ReadU8 reads the unsigned byte operand at addr.
func (c *Chunk) ReadU8(addr int) uint8 { return c.Code[addr] }

// ReadU16 reads the 16-bit little-endian operand at addr.
func (c *Chunk) ReadU16(addr int) uint16 { return binary.LittleEndian.Uint16(c.Code[addr : addr+2]) }

// ReadI16 reads a signed 16-bit little-endian jump offset at addr.
func (c *Chunk) ReadI16(addr int) int16 { return int16(binary.LittleEndian.Uint16(c.Code[addr : addr+2])) }

// InstructionSize returns the total size in bytes (opcode + operands) of
// the instruction starting at addr.
func InstructionSize(op Opcode) int { return 1 + operandSize(op) }
