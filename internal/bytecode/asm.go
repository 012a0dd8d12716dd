package bytecode

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pscal-lang/pscal/internal/value"
)

// This file implements the pseudo-assembly text format that stands in for
// a real frontend when exercising the optimizer/codegen/VM pipeline
// directly (spec §9): a human-readable, round-trippable textual rendering
// of a Chunk, adapted from the teacher's own Asm/Dasm (lang/compiler/asm.go)
// but over a single flat Chunk rather than a table of Funcodes, since every
// procedure in PSCAL's model is compiled into the same chunk addressed by
// byte offset (spec §4.5).
//
// 	program:
// 		entry: 12                # byte offset of the top-level body
// 		constants:
// 			string "hello"
// 			int    42
// 			real   3.5
// 		code:
// 			constant 0
// 			write_ln 1
// 			halt

var sections = map[string]bool{
	"program:":   true,
	"constants:": true,
	"code:":      true,
}

// Asm parses a chunk from its assembler textual format.
func Asm(b []byte) (*Chunk, error) {
	a := &asm{s: bufio.NewScanner(bytes.NewReader(b)), chunk: NewChunk()}

	fields := a.next()
	fields = a.program(fields)
	fields = a.constants(fields)
	fields = a.code(fields)

	if a.err == nil && len(fields) > 0 {
		a.err = fmt.Errorf("unexpected section: %s", fields[0])
	}
	return a.chunk, a.err
}

type asm struct {
	s       *bufio.Scanner
	rawLine string
	chunk   *Chunk
	entry   int
	err     error
}

func (a *asm) program(fields []string) []string {
	if a.err != nil {
		return nil
	}
	if len(fields) == 0 || !strings.EqualFold(fields[0], "program:") {
		msg := "expected program section"
		if len(fields) > 0 {
			msg += ", found " + fields[0]
		}
		a.err = errors.New(msg)
		return nil
	}
	fields = a.next()
	if len(fields) == 2 && strings.EqualFold(fields[0], "entry:") {
		a.entry = int(a.int(fields[1]))
		fields = a.next()
	}
	return fields
}

func (a *asm) constants(fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "constants:") {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		if len(fields) < 2 {
			a.err = fmt.Errorf("invalid constant: expected type and value, got %d fields", len(fields))
			return fields
		}
		switch fields[0] {
		case "int":
			a.chunk.Constants = append(a.chunk.Constants, value.MakeInt64(a.int(fields[1])))
		case "real":
			f, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				a.err = fmt.Errorf("invalid real: %s: %w", fields[1], err)
				return fields
			}
			a.chunk.Constants = append(a.chunk.Constants, value.MakeDouble(f))
		case "bool":
			a.chunk.Constants = append(a.chunk.Constants, value.MakeBool(fields[1] == "true"))
		case "string":
			raw := strings.TrimPrefix(strings.TrimSpace(a.rawLine), "string")
			raw = strings.TrimSpace(raw)
			quoted, err := strconv.QuotedPrefix(raw)
			var s string
			if err == nil {
				s, err = strconv.Unquote(quoted)
			}
			if err != nil {
				a.err = fmt.Errorf("invalid string: %q: %w", raw, err)
				return fields
			}
			a.chunk.Constants = append(a.chunk.Constants, value.MakeString(s))
		default:
			a.err = fmt.Errorf("invalid constant type: %s", fields[0])
			return fields
		}
	}
	return fields
}

// code parses the code section, translating jump operands (given as
// instruction indices, not byte offsets) into byte-offset relative jumps.
func (a *asm) code(fields []string) []string {
	if a.err != nil {
		return fields
	}
	if len(fields) == 0 || !strings.EqualFold(fields[0], "code:") {
		msg := "expected code section"
		if len(fields) > 0 {
			msg += ", found " + fields[0]
		}
		a.err = errors.New(msg)
		return fields
	}

	type pending struct {
		op   Opcode
		args []uint64
	}
	var insns []pending
	var indexToAddr []int
	addr := 0

	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		op, ok := reverseOpcodeNames[strings.ToLower(fields[0])]
		if !ok {
			a.err = fmt.Errorf("invalid opcode: %s", fields[0])
			return fields
		}
		wantArgs := operandCountFor(op)
		gotArgs := fields[1:]
		if len(gotArgs) != wantArgs {
			a.err = fmt.Errorf("opcode %s wants %d argument(s), got %d", fields[0], wantArgs, len(gotArgs))
			return fields
		}
		var args []uint64
		for _, f := range gotArgs {
			args = append(args, a.uint(f))
		}
		insns = append(insns, pending{op: op, args: args})
		indexToAddr = append(indexToAddr, addr)
		addr += InstructionSize(op)
	}

	for _, insn := range insns {
		op := insn.op
		switch kindOf(op) {
		case operandNone:
			a.chunk.EmitSimple(op, 0)
		case operandU8:
			a.chunk.EmitU8(op, uint8(insn.args[0]), 0)
		case operandU16:
			a.chunk.EmitU16(op, uint16(insn.args[0]), 0)
		case operandI16:
			idx := insn.args[0]
			if int(idx) >= len(indexToAddr) {
				a.err = fmt.Errorf("invalid jump index %d for opcode %s", idx, op)
				return fields
			}
			target := indexToAddr[idx]
			at := a.chunk.EmitJump(op, 0)
			patchAbsolute(a.chunk, at, target)
		case operandCall:
			a.chunk.EmitCall(uint16(insn.args[0]), uint16(insn.args[1]), uint8(insn.args[2]), 0)
		case operandCallBuiltin:
			a.chunk.EmitCallBuiltin(op, uint16(insn.args[0]), uint8(insn.args[1]), 0)
		}
	}

	a.chunk.EntryAddr = a.entry
	return fields
}

// patchAbsolute rewrites the jump offset at byte-offset at so that it
// lands exactly on the absolute byte address target, regardless of how
// much code has been emitted since at was reserved.
func patchAbsolute(c *Chunk, at, target int) {
	offset := target - (at + 2)
	c.Code[at] = byte(offset)
	c.Code[at+1] = byte(offset >> 8)
}

func operandCountFor(op Opcode) int {
	switch kindOf(op) {
	case operandNone:
		return 0
	case operandU8, operandU16, operandI16:
		return 1
	case operandCall:
		return 3
	case operandCallBuiltin:
		return 2
	}
	return 0
}

func (a *asm) int(s string) int64 {
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		a.err = fmt.Errorf("invalid integer: %s: %w", s, err)
	}
	return i
}

func (a *asm) uint(s string) uint64 {
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		a.err = fmt.Errorf("invalid unsigned integer: %s: %w", s, err)
	}
	return u
}

func (a *asm) next() []string {
	a.rawLine = ""
	if a.err != nil {
		return nil
	}
	for a.s.Scan() {
		line := a.s.Text()
		fields := strings.Fields(line)
		if len(fields) != 0 && !strings.HasPrefix(fields[0], "#") {
			for i, fld := range fields {
				if strings.HasPrefix(fld, "#") {
					fields = fields[:i]
					break
				}
			}
			a.rawLine = line
			return fields
		}
	}
	a.err = a.s.Err()
	return nil
}

// Dasm renders a Chunk to its assembler textual format.
func Dasm(c *Chunk) ([]byte, error) {
	d := &dasm{c: c, buf: new(bytes.Buffer)}
	d.write("program:\n")
	d.writef("\tentry: %d\n\n", d.c.EntryAddr)

	if len(c.Constants) > 0 {
		d.write("\tconstants:\n")
		for i, v := range c.Constants {
			switch v.Type() {
			case value.KindString:
				d.writef("\t\tstring\t%q\t# %03d\n", value.AsString(v), i)
			case value.KindBool:
				d.writef("\t\tbool\t%s\t# %03d\n", value.AsString(v), i)
			default:
				if v.Type().IsReal() {
					r, _ := value.AsReal(v)
					d.writef("\t\treal\t%g\t# %03d\n", r, i)
				} else {
					iv, _ := value.AsInt(v)
					d.writef("\t\tint\t%d\t# %03d\n", iv, i)
				}
			}
		}
	}

	if d.err == nil {
		d.code()
	}
	return d.buf.Bytes(), d.err
}

type dasm struct {
	c   *Chunk
	buf *bytes.Buffer
	err error
}

type decodedInsn struct {
	op   Opcode
	args []uint64
}

func (d *dasm) code() {
	addrToIndex := make([]int, len(d.c.Code)+1)
	for i := range addrToIndex {
		addrToIndex[i] = -1
	}

	var insns []decodedInsn
	addr := 0
	for addr < len(d.c.Code) {
		addrToIndex[addr] = len(insns)
		op := Opcode(d.c.Code[addr])
		var args []uint64
		switch kindOf(op) {
		case operandU8:
			args = []uint64{uint64(d.c.ReadU8(addr + 1))}
		case operandU16:
			args = []uint64{uint64(d.c.ReadU16(addr + 1))}
		case operandI16:
			args = []uint64{uint64(int64(d.c.ReadI16(addr + 1)))} // placeholder, replaced below with target index
		case operandCall:
			args = []uint64{uint64(d.c.ReadU16(addr + 1)), uint64(d.c.ReadU16(addr + 3)), uint64(d.c.ReadU8(addr + 5))}
		case operandCallBuiltin:
			args = []uint64{uint64(d.c.ReadU16(addr + 1)), uint64(d.c.ReadU8(addr + 3))}
		}
		insns = append(insns, decodedInsn{op: op, args: args})
		addr += InstructionSize(op)
	}

	d.write("\tcode:\n")
	for i, insn := range insns {
		op := insn.op
		if kindOf(op) == operandI16 {
			// recompute the jump's absolute target address, then translate to
			// an instruction index for the round-trippable text form.
			instrAddr := addrForIndex(insns, i)
			offset := int16(insn.args[0])
			target := instrAddr + InstructionSize(op) + int(offset)
			idx := addrToIndex[target]
			if idx < 0 {
				d.err = fmt.Errorf("invalid jump target %d at instruction %d (%s)", target, i, op)
				return
			}
			d.writef("\t\t%s %d\t# %03d\n", op, idx, i)
			continue
		}
		if len(insn.args) == 0 {
			d.writef("\t\t%s\t# %03d\n", op, i)
			continue
		}
		parts := make([]string, len(insn.args))
		for j, a := range insn.args {
			parts[j] = strconv.FormatUint(a, 10)
		}
		d.writef("\t\t%s %s\t# %03d\n", op, strings.Join(parts, " "), i)
	}
}

func addrForIndex(insns []decodedInsn, idx int) int {
	addr := 0
	for i := 0; i < idx; i++ {
		addr += InstructionSize(insns[i].op)
	}
	return addr
}

func (d *dasm) writef(s string, args ...any) { d.write(fmt.Sprintf(s, args...)) }

func (d *dasm) write(s string) {
	if d.err != nil {
		return
	}
	_, d.err = d.buf.WriteString(s)
}
