package optimizer

import (
	"math"

	"github.com/pscal-lang/pscal/internal/ast"
	"github.com/pscal-lang/pscal/internal/value"
)

// literalInt pulls the integer payload out of a non-real NUMBER node. The
// second return is false if n is not such a literal.
func literalInt(n *ast.Node) (int64, bool) {
	if n == nil || n.Kind != ast.NUMBER || n.VarType.IsReal() {
		return 0, false
	}
	return n.IntLit, true
}

func literalReal(n *ast.Node) (float64, bool) {
	if n == nil || n.Kind != ast.NUMBER || !n.VarType.IsReal() {
		return 0, false
	}
	return n.RealLit, true
}

func literalBool(n *ast.Node) (bool, bool) {
	if n == nil || n.Kind != ast.BOOLEAN {
		return false, false
	}
	return n.BoolLit, true
}

func boolLit(b bool) *ast.Node {
	lit := ast.New(ast.BOOLEAN, &ast.Token{Type: ast.TokKeyword})
	lit.BoolLit = b
	ast.SetType(lit, value.KindBool)
	return lit
}

// foldBinary folds n (a BINARY_OP node, Token.Lexeme the operator, Left and
// Right the operands) when both operands are compatible literal constants,
// per spec §4.4(a). Returns nil when n is not foldable.
func foldBinary(n *ast.Node) *ast.Node {
	op := ""
	if n.Token != nil {
		op = n.Token.Lexeme
	}

	if lb, lok := literalBool(n.Left); lok {
		if rb, rok := literalBool(n.Right); rok {
			return foldBoolBinary(op, lb, rb)
		}
	}

	li, liok := literalInt(n.Left)
	lr, lrok := literalReal(n.Left)
	ri, riok := literalInt(n.Right)
	rr, rrok := literalReal(n.Right)

	switch {
	case liok && riok:
		return foldIntBinary(op, li, ri)
	case (liok || lrok) && (riok || rrok):
		if (liok && rrok) || (lrok && riok) {
			// mixed integer+real: spec §4.4(a) says this is NOT folded so the
			// runtime's own conversion rules stay visible.
			return nil
		}
		if lrok && rrok {
			return foldRealBinary(op, lr, rr)
		}
	}
	return nil
}

func foldIntBinary(op string, a, b int64) *ast.Node {
	switch op {
	case "+":
		return mkInt(a + b)
	case "-":
		return mkInt(a - b)
	case "*":
		return mkInt(a * b)
	case "div":
		if b == 0 {
			return nil
		}
		return mkInt(a / b)
	case "mod":
		if b == 0 {
			return nil
		}
		return mkInt(a % b)
	case "/":
		if b == 0 {
			return nil
		}
		return mkReal(float64(a) / float64(b))
	case "xor":
		return mkInt(a ^ b)
	case "and":
		return mkInt(a & b)
	case "or":
		return mkInt(a | b)
	case "=":
		return mkBool(a == b)
	case "<>":
		return mkBool(a != b)
	case "<":
		return mkBool(a < b)
	case "<=":
		return mkBool(a <= b)
	case ">":
		return mkBool(a > b)
	case ">=":
		return mkBool(a >= b)
	}
	return nil
}

func foldRealBinary(op string, a, b float64) *ast.Node {
	switch op {
	case "+":
		return mkReal(a + b)
	case "-":
		return mkReal(a - b)
	case "*":
		return mkReal(a * b)
	case "/":
		if b == 0 {
			return nil
		}
		return mkReal(a / b)
	case "=":
		return mkBool(a == b)
	case "<>":
		return mkBool(a != b)
	case "<":
		return mkBool(a < b)
	case "<=":
		return mkBool(a <= b)
	case ">":
		return mkBool(a > b)
	case ">=":
		return mkBool(a >= b)
	}
	return nil
}

func foldBoolBinary(op string, a, b bool) *ast.Node {
	switch op {
	case "and":
		return mkBool(a && b)
	case "or":
		return mkBool(a || b)
	case "xor":
		return mkBool(a != b)
	case "=":
		return mkBool(a == b)
	case "<>":
		return mkBool(a != b)
	}
	return nil
}

// foldUnary folds n (a UNARY_OP node, Token.Lexeme the operator, Left the
// operand).
func foldUnary(n *ast.Node) *ast.Node {
	op := ""
	if n.Token != nil {
		op = n.Token.Lexeme
	}
	if i, ok := literalInt(n.Left); ok {
		switch op {
		case "-":
			return mkInt(-i)
		case "not":
			return mkInt(^i)
		}
	}
	if r, ok := literalReal(n.Left); ok && op == "-" {
		return mkReal(-r)
	}
	if b, ok := literalBool(n.Left); ok && op == "not" {
		return mkBool(!b)
	}
	return nil
}

func mkInt(v int64) *ast.Node {
	n := ast.New(ast.NUMBER, &ast.Token{Type: ast.TokIntLit})
	n.IntLit = v
	ast.SetType(n, value.KindInt64)
	return n
}

func mkReal(v float64) *ast.Node {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	n := ast.New(ast.NUMBER, &ast.Token{Type: ast.TokRealLit})
	n.RealLit = v
	ast.SetType(n, value.KindDouble)
	return n
}

func mkBool(v bool) *ast.Node {
	return boolLit(v)
}
