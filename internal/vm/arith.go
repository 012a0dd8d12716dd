package vm

import (
	"fmt"

	"github.com/pscal-lang/pscal/internal/bytecode"
	"github.com/pscal-lang/pscal/internal/value"
)

// arith evaluates a binary ADD/SUB/MUL/DIV/INT_DIV/MOD/AND/OR/XOR
// instruction, promoting to the wider of the two operand kinds the way
// spec §4.8 describes ("promote integers to the wider of the two operands'
// widths; mixed integer/real promotes to real").
func arith(op bytecode.Opcode, a, b value.Value) (value.Value, error) {
	switch op {
	case bytecode.AND, bytecode.OR, bytecode.XOR:
		return boolOrBitwise(op, a, b)
	}

	if a.Type().IsReal() || b.Type().IsReal() {
		fa, err := value.AsReal(a)
		if err != nil {
			return value.Value{}, err
		}
		fb, err := value.AsReal(b)
		if err != nil {
			return value.Value{}, err
		}
		r, err := realOp(op, fa, fb)
		if err != nil {
			return value.Value{}, err
		}
		return value.MakeDouble(r), nil
	}

	if op == bytecode.DIV {
		// "/" is real division even between two integer operands (spec
		// §4.8): the distinction from INT_DIV is by opcode, not operand
		// kind.
		fa, _ := value.AsReal(a)
		fb, _ := value.AsReal(b)
		if fb == 0 {
			return value.Value{}, fmt.Errorf("division by zero")
		}
		return value.MakeDouble(fa / fb), nil
	}

	ia, err := value.AsInt(a)
	if err != nil {
		return value.Value{}, err
	}
	ib, err := value.AsInt(b)
	if err != nil {
		return value.Value{}, err
	}
	i, err := intOp(op, ia, ib)
	if err != nil {
		return value.Value{}, err
	}
	return widenInt(value.Wider(a.Type(), b.Type()), i), nil
}

func realOp(op bytecode.Opcode, a, b float64) (float64, error) {
	switch op {
	case bytecode.ADD:
		return a + b, nil
	case bytecode.SUB:
		return a - b, nil
	case bytecode.MUL:
		return a * b, nil
	case bytecode.DIV:
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	}
	return 0, fmt.Errorf("operator %s is not defined over real operands", op)
}

func intOp(op bytecode.Opcode, a, b int64) (int64, error) {
	switch op {
	case bytecode.ADD:
		return a + b, nil
	case bytecode.SUB:
		return a - b, nil
	case bytecode.MUL:
		return a * b, nil
	case bytecode.INT_DIV:
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	case bytecode.MOD:
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a % b, nil
	}
	return 0, fmt.Errorf("operator %s is not defined over integer operands", op)
}

func boolOrBitwise(op bytecode.Opcode, a, b value.Value) (value.Value, error) {
	if a.Type() == value.KindBool && b.Type() == value.KindBool {
		ba, _ := value.AsBool(a)
		bb, _ := value.AsBool(b)
		switch op {
		case bytecode.AND:
			return value.MakeBool(ba && bb), nil
		case bytecode.OR:
			return value.MakeBool(ba || bb), nil
		case bytecode.XOR:
			return value.MakeBool(ba != bb), nil
		}
	}
	ia, err := value.AsInt(a)
	if err != nil {
		return value.Value{}, err
	}
	ib, err := value.AsInt(b)
	if err != nil {
		return value.Value{}, err
	}
	var r int64
	switch op {
	case bytecode.AND:
		r = ia & ib
	case bytecode.OR:
		r = ia | ib
	case bytecode.XOR:
		r = ia ^ ib
	}
	return widenInt(value.Wider(a.Type(), b.Type()), r), nil
}

func negate(a value.Value) (value.Value, error) {
	if a.Type().IsReal() {
		f, err := value.AsReal(a)
		if err != nil {
			return value.Value{}, err
		}
		return value.MakeDouble(-f), nil
	}
	i, err := value.AsInt(a)
	if err != nil {
		return value.Value{}, err
	}
	return widenInt(a.Type(), -i), nil
}

// widenInt materializes i as the integer Kind k, defaulting to Int64 for
// any kind widenInt doesn't recognize as integer-like (e.g. promotion
// produced a real kind by mistake, which the caller should not do).
func widenInt(k value.Kind, i int64) value.Value {
	switch k {
	case value.KindInt8:
		return value.MakeInt8(int8(i))
	case value.KindInt16:
		return value.MakeInt16(int16(i))
	case value.KindInt32:
		return value.MakeInt32(int32(i))
	case value.KindByte:
		return value.MakeByte(uint8(i))
	case value.KindChar:
		return value.MakeChar(rune(i))
	default:
		return value.MakeInt64(i)
	}
}
