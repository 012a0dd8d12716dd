// Package bytecode implements the shared instruction set, chunk structure,
// AST→chunk codegen, and the pseudo-assembly Asm/Dasm round-trip that
// exercises the VM without a concrete frontend (spec §3/§4.5, §9).
package bytecode

import "fmt"

// Opcode is a single byte identifying an instruction; zero or more operand
// bytes follow depending on the opcode (spec §3: "one-byte opcode followed
// by zero or more operands").
type Opcode uint8

// "x y OP z" stack pictures describe the operand stack before/after.
const ( //nolint:revive
	NOP Opcode = iota // - NOP -

	// stack management
	POP //   x POP -
	DUP //   x DUP x x

	// arithmetic; ADD/SUB/MUL/DIV dispatch on the runtime tag of the
	// top-of-stack operands (integer or real), per spec §3.
	ADD
	SUB
	MUL
	DIV
	INT_DIV
	MOD
	NEGATE
	NOT

	// logical and bitwise
	AND
	OR
	XOR

	// relational
	EQUAL
	NOT_EQUAL
	LESS
	LESS_EQUAL
	GREATER
	GREATER_EQUAL

	// literals
	CONSTANT // - CONSTANT<u8 const>  value

	// locals and globals
	GET_LOCAL         //             - GET_LOCAL<u8 slot>          value
	SET_LOCAL         //         value SET_LOCAL<u8 slot>          -
	GET_LOCAL_ADDRESS //             - GET_LOCAL_ADDRESS<u8 slot>  pointer
	GET_GLOBAL        //             - GET_GLOBAL<u16 name>        value
	SET_GLOBAL        //         value SET_GLOBAL<u16 name>        -
	INIT_LOCAL_POINTER

	// composite access
	GET_FIELD   //            rec GET_FIELD<u16 name>   value
	SET_FIELD   //      rec value SET_FIELD<u16 name>   -
	GET_ELEMENT //        arr idx GET_ELEMENT            value
	SET_ELEMENT //  arr idx value SET_ELEMENT            -

	// control flow; jump operands are 16-bit little-endian relative offsets
	// computed from the position immediately after the operand bytes (spec
	// §3, the canonical "patch after" pattern).
	JUMP          //      - JUMP<i16>           -
	JUMP_IF_FALSE //   cond JUMP_IF_FALSE<i16>   -
	LOOP          //      - LOOP<i16 back>       -

	// calls
	CALL         // args... CALL<u16 name><u16 addr><u8 arity>           result
	CALL_BUILTIN // args... CALL_BUILTIN<u16 name><u8 arity>             result
	RETURN       //   value RETURN                                      -

	// I/O; each consumes N already-pushed values (the N operand follows the
	// opcode as a single byte).
	WRITE    // v1..vN WRITE<u8 n>    -
	WRITE_LN // v1..vN WRITE_LN<u8 n> -

	// cooperative threading
	THREAD_SPAWN // args... THREAD_SPAWN<u16 name><u8 arity>  handle
	THREAD_JOIN  //  handle THREAD_JOIN                       result

	HALT // - HALT -

	opcodeArgMin = CONSTANT
	opcodeMax    = HALT
)

var opcodeNames = [...]string{
	NOP:                 "nop",
	POP:                 "pop",
	DUP:                 "dup",
	ADD:                 "add",
	SUB:                 "sub",
	MUL:                 "mul",
	DIV:                 "div",
	INT_DIV:             "int_div",
	MOD:                 "mod",
	NEGATE:              "negate",
	NOT:                 "not",
	AND:                 "and",
	OR:                  "or",
	XOR:                 "xor",
	EQUAL:               "equal",
	NOT_EQUAL:           "not_equal",
	LESS:                "less",
	LESS_EQUAL:          "less_equal",
	GREATER:             "greater",
	GREATER_EQUAL:       "greater_equal",
	CONSTANT:            "constant",
	GET_LOCAL:           "get_local",
	SET_LOCAL:           "set_local",
	GET_LOCAL_ADDRESS:   "get_local_address",
	GET_GLOBAL:          "get_global",
	SET_GLOBAL:          "set_global",
	INIT_LOCAL_POINTER:  "init_local_pointer",
	GET_FIELD:           "get_field",
	SET_FIELD:           "set_field",
	GET_ELEMENT:         "get_element",
	SET_ELEMENT:         "set_element",
	JUMP:                "jump",
	JUMP_IF_FALSE:       "jump_if_false",
	LOOP:                "loop",
	CALL:                "call",
	CALL_BUILTIN:        "call_builtin",
	RETURN:              "return",
	WRITE:               "write",
	WRITE_LN:            "write_ln",
	THREAD_SPAWN:        "thread_spawn",
	THREAD_JOIN:         "thread_join",
	HALT:                "halt",
}

var reverseOpcodeNames = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		if name != "" {
			m[name] = Opcode(op)
		}
	}
	return m
}()

func (op Opcode) String() string {
	if op <= opcodeMax && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("illegal opcode (%d)", op)
}

// operandKind distinguishes how many, and how wide, the operand bytes of an
// opcode are.
type operandKind int

const (
	operandNone  operandKind = iota
	operandU8                // CONSTANT index, GET_LOCAL/SET_LOCAL slot, WRITE/WRITE_LN arity
	operandU16               // GET_GLOBAL/SET_GLOBAL/GET_FIELD/SET_FIELD name-constant
	operandI16               // JUMP/JUMP_IF_FALSE/LOOP relative offset
	operandCall              // CALL: u16 name, u16 addr, u8 arity
	operandCallBuiltin       // CALL_BUILTIN/THREAD_SPAWN: u16 name, u8 arity
)

func kindOf(op Opcode) operandKind {
	switch op {
	case CONSTANT, GET_LOCAL, SET_LOCAL, GET_LOCAL_ADDRESS, INIT_LOCAL_POINTER, WRITE, WRITE_LN:
		return operandU8
	case GET_GLOBAL, SET_GLOBAL, GET_FIELD, SET_FIELD:
		return operandU16
	case JUMP, JUMP_IF_FALSE, LOOP:
		return operandI16
	case CALL:
		return operandCall
	case CALL_BUILTIN, THREAD_SPAWN:
		return operandCallBuiltin
	}
	return operandNone
}

// operandSize returns the number of operand bytes (not counting the opcode
// byte itself) encoded for op.
func operandSize(op Opcode) int {
	switch kindOf(op) {
	case operandU8:
		return 1
	case operandU16, operandI16:
		return 2
	case operandCall:
		return 5 // u16 name + u16 addr + u8 arity
	case operandCallBuiltin:
		return 3 // u16 name + u8 arity
	}
	return 0
}
