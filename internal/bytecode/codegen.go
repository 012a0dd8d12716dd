package bytecode

import (
	"fmt"

	"github.com/pscal-lang/pscal/internal/ast"
	"github.com/pscal-lang/pscal/internal/symbol"
	"github.com/pscal-lang/pscal/internal/value"
)

// CodegenError is returned by Compile when codegen must abort: an
// unannotated AST node, an unresolved procedure call, or a constant-pool
// overflow (spec §4.5).
type CodegenError struct {
	Node *ast.Node
	Msg  string
}

func (e *CodegenError) Error() string {
	if e.Node != nil {
		return fmt.Sprintf("codegen: %s (at %s)", e.Msg, e.Node.Kind)
	}
	return "codegen: " + e.Msg
}

// compiler holds the state of a single compile_ast_to_bytecode call: the
// chunk being built, the name table (for 16-bit name-carrying opcodes), and
// the local-slot allocation of the function currently being compiled.
type compiler struct {
	chunk  *Chunk
	scope  *symbol.Scope
	names  map[string]uint16 // interned name -> constant index (string kind)
	locals []string          // slot index -> local name, for the current function
}

// Compile implements spec §4.5's compile_ast_to_bytecode(root, chunk):
// root must have already passed ast.Verify and carry a type annotation on
// every typed node. Procedure/function bodies found while walking root are
// compiled into the same chunk, and their entry address is stored into the
// corresponding Symbol.
func Compile(root *ast.Node, scope *symbol.Scope) (*Chunk, error) {
	if err := ast.Verify(root); err != nil {
		return nil, err
	}
	c := &compiler{chunk: NewChunk(), scope: scope, names: map[string]uint16{}}
	c.chunk.EntryAddr = 0
	if err := c.compileProgramBody(root); err != nil {
		return nil, err
	}
	c.chunk.EmitSimple(HALT, lineOf(root))
	return c.chunk, nil
}

func lineOf(n *ast.Node) int {
	if n != nil && n.Token != nil {
		return n.Token.Line
	}
	return 0
}

func (c *compiler) nameConstant(name string) (uint16, error) {
	if idx, ok := c.names[name]; ok {
		return idx, nil
	}
	i, err := c.chunk.AddConstant(value.MakeString(name))
	if err != nil {
		return 0, err
	}
	idx := uint16(i)
	c.names[name] = idx
	return idx, nil
}

func (c *compiler) localSlot(name string) (uint8, bool) {
	for i, l := range c.locals {
		if l == name {
			return uint8(i), true
		}
	}
	return 0, false
}

// compileProgramBody walks a PROGRAM/BLOCK/COMPOUND root, registering
// procedure/function declarations (compiling their bodies inline and
// recording the Symbol's bytecode address) and then the main statement
// body.
func (c *compiler) compileProgramBody(root *ast.Node) error {
	switch root.Kind {
	case ast.PROGRAM, ast.BLOCK:
		for _, child := range root.Children {
			if err := c.compileProgramBody(child); err != nil {
				return err
			}
		}
		if root.Left != nil {
			return c.compileProgramBody(root.Left)
		}
		return nil
	case ast.PROC_DECL, ast.FUNC_DECL:
		return c.compileProcDecl(root)
	default:
		c.chunk.EntryAddr = len(c.chunk.Code)
		return c.stmt(root)
	}
}

func (c *compiler) compileProcDecl(n *ast.Node) error {
	name := ""
	if n.Token != nil {
		name = n.Token.Lexeme
	}
	sym, ok := c.scope.Procedures.Lookup(name)
	if !ok {
		return &CodegenError{Node: n, Msg: fmt.Sprintf("undeclared procedure symbol %q", name)}
	}

	savedLocals := c.locals
	c.locals = nil
	for _, p := range n.Children {
		if p.Token != nil {
			c.locals = append(c.locals, p.Token.Lexeme)
		}
	}
	c.locals = append(c.locals, collectLocalDecls(n.Right)...)

	addr := len(c.chunk.Code)
	if n.Right != nil { // Right holds the body block
		if err := c.stmt(n.Right); err != nil {
			c.locals = savedLocals
			return err
		}
	}
	c.chunk.EmitSimple(RETURN, lineOf(n))

	sym.Address = addr
	sym.IsDefined = true
	sym.Arity = len(n.Children)
	sym.LocalsCnt = len(c.locals)

	c.locals = savedLocals
	return nil
}

// collectLocalDecls walks a procedure/function body (without descending into
// nested PROC_DECL/FUNC_DECL bodies) and returns the names declared by every
// VAR_DECL it finds, so CALL's "reserve locals_count slots" (spec §4.8) has
// room for body-local variables as well as parameters.
func collectLocalDecls(body *ast.Node) []string {
	if body == nil {
		return nil
	}
	var names []string
	var walk func(n *ast.Node)
	walk = func(n *ast.Node) {
		if n == nil {
			return
		}
		switch n.Kind {
		case ast.PROC_DECL, ast.FUNC_DECL:
			return
		case ast.VAR_DECL:
			if n.Token != nil {
				names = append(names, n.Token.Lexeme)
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
		walk(n.Left)
	}
	walk(body)
	return names
}

// stmt compiles n as a statement: on return, the operand stack depth is
// unchanged (spec §4.5).
func (c *compiler) stmt(n *ast.Node) error {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case ast.COMPOUND, ast.BLOCK:
		for _, s := range n.Children {
			if err := c.stmt(s); err != nil {
				return err
			}
		}
		return nil

	case ast.ASSIGN:
		return c.compileAssign(n)

	case ast.IF:
		return c.compileIf(n)

	case ast.WHILE:
		return c.compileWhile(n)

	case ast.REPEAT:
		return c.compileRepeat(n)

	case ast.FOR:
		return c.compileFor(n)

	case ast.WRITE, ast.WRITE_LN:
		return c.compileWrite(n)

	case ast.CALL:
		if err := c.compileCallExpr(n); err != nil {
			return err
		}
		// a bare call statement discards its result if it is a function
		if n.VarType != value.KindNil {
			c.chunk.EmitSimple(POP, lineOf(n))
		}
		return nil

	case ast.THREAD_SPAWN:
		return c.compileThreadSpawn(n)

	case ast.THREAD_JOIN:
		if err := c.expr(n.Left); err != nil {
			return err
		}
		c.chunk.EmitSimple(THREAD_JOIN, lineOf(n))
		c.chunk.EmitSimple(POP, lineOf(n))
		return nil

	default:
		return &CodegenError{Node: n, Msg: "unsupported statement kind"}
	}
}

func (c *compiler) compileAssign(n *ast.Node) error {
	target := n.Left
	if target == nil {
		return &CodegenError{Node: n, Msg: "assignment missing target"}
	}
	if err := c.expr(n.Right); err != nil {
		return err
	}
	switch target.Kind {
	case ast.VARIABLE:
		name := target.Token.Lexeme
		if slot, ok := c.localSlot(name); ok {
			c.chunk.EmitU8(SET_LOCAL, slot, lineOf(n))
			return nil
		}
		idx, err := c.nameConstant(name)
		if err != nil {
			return err
		}
		c.chunk.EmitU16(SET_GLOBAL, idx, lineOf(n))
		return nil
	case ast.FIELD_ACCESS:
		if err := c.expr(target.Left); err != nil {
			return err
		}
		idx, err := c.nameConstant(target.Token.Lexeme)
		if err != nil {
			return err
		}
		c.chunk.EmitU16(SET_FIELD, idx, lineOf(n))
		return nil
	case ast.ARRAY_ACCESS:
		if err := c.expr(target.Left); err != nil {
			return err
		}
		if err := c.expr(target.Right); err != nil {
			return err
		}
		c.chunk.EmitSimple(SET_ELEMENT, lineOf(n))
		return nil
	}
	return &CodegenError{Node: target, Msg: "invalid assignment target"}
}

func (c *compiler) compileIf(n *ast.Node) error {
	if err := c.expr(n.Left); err != nil {
		return err
	}
	thenJump := c.chunk.EmitJump(JUMP_IF_FALSE, lineOf(n))
	if err := c.stmt(n.Right); err != nil {
		return err
	}
	if n.Extra != nil {
		elseJump := c.chunk.EmitJump(JUMP, lineOf(n))
		c.chunk.PatchJump(thenJump)
		if err := c.stmt(n.Extra); err != nil {
			return err
		}
		c.chunk.PatchJump(elseJump)
	} else {
		c.chunk.PatchJump(thenJump)
	}
	return nil
}

func (c *compiler) compileWhile(n *ast.Node) error {
	loopStart := len(c.chunk.Code)
	if err := c.expr(n.Left); err != nil {
		return err
	}
	exitJump := c.chunk.EmitJump(JUMP_IF_FALSE, lineOf(n))
	if err := c.stmt(n.Right); err != nil {
		return err
	}
	c.chunk.EmitLoop(loopStart, lineOf(n))
	c.chunk.PatchJump(exitJump)
	return nil
}

func (c *compiler) compileRepeat(n *ast.Node) error {
	loopStart := len(c.chunk.Code)
	if err := c.stmt(n.Right); err != nil {
		return err
	}
	if err := c.expr(n.Left); err != nil {
		return err
	}
	exitJump := c.chunk.EmitJump(JUMP_IF_FALSE, lineOf(n))
	c.chunk.EmitLoop(loopStart, lineOf(n))
	c.chunk.PatchJump(exitJump)
	return nil
}

// compileFor compiles a counted FOR loop: Left is the loop variable
// (VARIABLE), Right the body, Extra the {lower, upper} bound pair encoded
// as a RANGE node.
func (c *compiler) compileFor(n *ast.Node) error {
	bounds := n.Extra
	if bounds == nil || bounds.Kind != ast.RANGE {
		return &CodegenError{Node: n, Msg: "for loop missing range bounds"}
	}
	assign := ast.New(ast.ASSIGN, n.Token)
	ast.SetLeft(assign, n.Left)
	ast.SetRight(assign, bounds.Left)
	if err := c.compileAssign(assign); err != nil {
		return err
	}

	loopStart := len(c.chunk.Code)
	if err := c.expr(n.Left); err != nil {
		return err
	}
	if err := c.expr(bounds.Right); err != nil {
		return err
	}
	c.chunk.EmitSimple(LESS_EQUAL, lineOf(n))
	exitJump := c.chunk.EmitJump(JUMP_IF_FALSE, lineOf(n))

	if err := c.stmt(n.Right); err != nil {
		return err
	}

	// loopVar := loopVar + 1
	incr := ast.New(ast.ASSIGN, n.Token)
	ast.SetLeft(incr, n.Left)
	one := ast.New(ast.NUMBER, &ast.Token{Type: ast.TokIntLit})
	one.IntLit = 1
	ast.SetType(one, value.KindInt64)
	plus := ast.New(ast.BINARY_OP, &ast.Token{Type: ast.TokOperator, Lexeme: "+"})
	ast.SetLeft(plus, n.Left)
	ast.SetRight(plus, one)
	ast.SetRight(incr, plus)
	if err := c.compileAssign(incr); err != nil {
		return err
	}

	c.chunk.EmitLoop(loopStart, lineOf(n))
	c.chunk.PatchJump(exitJump)
	return nil
}

func (c *compiler) compileWrite(n *ast.Node) error {
	for _, arg := range n.Children {
		if err := c.expr(arg); err != nil {
			return err
		}
	}
	op := WRITE
	if n.Kind == ast.WRITE_LN {
		op = WRITE_LN
	}
	if len(n.Children) > 255 {
		return &CodegenError{Node: n, Msg: "too many write arguments"}
	}
	c.chunk.EmitU8(op, uint8(len(n.Children)), lineOf(n))
	return nil
}

func (c *compiler) compileCallExpr(n *ast.Node) error {
	name := ""
	if n.Token != nil {
		name = n.Token.Lexeme
	}
	for _, arg := range n.Children {
		if err := c.expr(arg); err != nil {
			return err
		}
	}
	if len(n.Children) > 255 {
		return &CodegenError{Node: n, Msg: "too many call arguments"}
	}
	idx, err := c.nameConstant(name)
	if err != nil {
		return err
	}
	if sym, ok := c.scope.Procedures.Lookup(name); ok {
		if !sym.IsDefined {
			return &CodegenError{Node: n, Msg: fmt.Sprintf("unresolved procedure call %q", name)}
		}
		c.chunk.EmitCall(idx, uint16(sym.Address), uint8(len(n.Children)), lineOf(n))
		return nil
	}
	// not a user procedure: resolve through the builtin registry at VM time
	c.chunk.EmitCallBuiltin(CALL_BUILTIN, idx, uint8(len(n.Children)), lineOf(n))
	return nil
}

func (c *compiler) compileThreadSpawn(n *ast.Node) error {
	name := ""
	if n.Token != nil {
		name = n.Token.Lexeme
	}
	for _, arg := range n.Children {
		if err := c.expr(arg); err != nil {
			return err
		}
	}
	idx, err := c.nameConstant(name)
	if err != nil {
		return err
	}
	c.chunk.EmitCallBuiltin(THREAD_SPAWN, idx, uint8(len(n.Children)), lineOf(n))
	c.chunk.EmitSimple(POP, lineOf(n))
	return nil
}

// expr compiles n as an expression, leaving exactly one Value pushed onto
// the evaluation stack (spec §4.5).
func (c *compiler) expr(n *ast.Node) error {
	if n == nil {
		return &CodegenError{Msg: "nil expression"}
	}
	switch n.Kind {
	case ast.NUMBER:
		return c.pushConstant(numberValue(n), lineOf(n))
	case ast.STRING:
		return c.pushConstant(value.MakeString(n.Token.Lexeme), lineOf(n))
	case ast.BOOLEAN:
		return c.pushConstant(value.MakeBool(n.BoolLit), lineOf(n))
	case ast.CHAR_LIT:
		return c.pushConstant(value.MakeChar(rune(n.IntLit)), lineOf(n))
	case ast.NIL_LIT:
		return c.pushConstant(value.MakeNil(), lineOf(n))

	case ast.VARIABLE:
		name := n.Token.Lexeme
		if slot, ok := c.localSlot(name); ok {
			c.chunk.EmitU8(GET_LOCAL, slot, lineOf(n))
			return nil
		}
		idx, err := c.nameConstant(name)
		if err != nil {
			return err
		}
		c.chunk.EmitU16(GET_GLOBAL, idx, lineOf(n))
		return nil

	case ast.FIELD_ACCESS:
		if err := c.expr(n.Left); err != nil {
			return err
		}
		idx, err := c.nameConstant(n.Token.Lexeme)
		if err != nil {
			return err
		}
		c.chunk.EmitU16(GET_FIELD, idx, lineOf(n))
		return nil

	case ast.ARRAY_ACCESS:
		if err := c.expr(n.Left); err != nil {
			return err
		}
		if err := c.expr(n.Right); err != nil {
			return err
		}
		c.chunk.EmitSimple(GET_ELEMENT, lineOf(n))
		return nil

	case ast.BINARY_OP:
		return c.compileBinary(n)

	case ast.UNARY_OP:
		return c.compileUnary(n)

	case ast.CALL:
		return c.compileCallExpr(n)
	}
	return &CodegenError{Node: n, Msg: "unsupported expression kind"}
}

func (c *compiler) pushConstant(v value.Value, line int) error {
	idx, err := c.chunk.AddConstant(v)
	if err != nil {
		return err
	}
	if idx > 0xFF {
		return &CodegenError{Msg: "constant index exceeds 8-bit CONSTANT operand"}
	}
	c.chunk.EmitU8(CONSTANT, uint8(idx), line)
	return nil
}

func numberValue(n *ast.Node) value.Value {
	if n.VarType.IsReal() {
		return value.MakeDouble(n.RealLit)
	}
	return value.MakeInt64(n.IntLit)
}

// compileBinary compiles a BINARY_OP's short-circuiting AND/OR as
// JUMP_IF_FALSE/JUMP with a DUP-and-POP sequence so the result is left on
// the stack (spec §4.5); every other operator simply evaluates both
// operands and emits the corresponding opcode.
func (c *compiler) compileBinary(n *ast.Node) error {
	op := ""
	if n.Token != nil {
		op = n.Token.Lexeme
	}

	switch op {
	case "and":
		if err := c.expr(n.Left); err != nil {
			return err
		}
		c.chunk.EmitSimple(DUP, lineOf(n))
		shortCircuit := c.chunk.EmitJump(JUMP_IF_FALSE, lineOf(n))
		c.chunk.EmitSimple(POP, lineOf(n))
		if err := c.expr(n.Right); err != nil {
			return err
		}
		c.chunk.PatchJump(shortCircuit)
		return nil
	case "or":
		if err := c.expr(n.Left); err != nil {
			return err
		}
		c.chunk.EmitSimple(DUP, lineOf(n))
		elseJump := c.chunk.EmitJump(JUMP_IF_FALSE, lineOf(n))
		shortCircuit := c.chunk.EmitJump(JUMP, lineOf(n))
		c.chunk.PatchJump(elseJump)
		c.chunk.EmitSimple(POP, lineOf(n))
		if err := c.expr(n.Right); err != nil {
			return err
		}
		c.chunk.PatchJump(shortCircuit)
		return nil
	}

	if err := c.expr(n.Left); err != nil {
		return err
	}
	if err := c.expr(n.Right); err != nil {
		return err
	}
	return c.emitBinaryOp(n, op)
}

func (c *compiler) emitBinaryOp(n *ast.Node, op string) error {
	line := lineOf(n)
	switch op {
	case "+":
		c.chunk.EmitSimple(ADD, line)
	case "-":
		c.chunk.EmitSimple(SUB, line)
	case "*":
		c.chunk.EmitSimple(MUL, line)
	case "/":
		c.chunk.EmitSimple(DIV, line)
	case "div":
		c.chunk.EmitSimple(INT_DIV, line)
	case "mod":
		c.chunk.EmitSimple(MOD, line)
	case "xor":
		c.chunk.EmitSimple(XOR, line)
	case "=":
		c.chunk.EmitSimple(EQUAL, line)
	case "<>":
		c.chunk.EmitSimple(NOT_EQUAL, line)
	case "<":
		c.chunk.EmitSimple(LESS, line)
	case "<=":
		c.chunk.EmitSimple(LESS_EQUAL, line)
	case ">":
		c.chunk.EmitSimple(GREATER, line)
	case ">=":
		c.chunk.EmitSimple(GREATER_EQUAL, line)
	default:
		return &CodegenError{Node: n, Msg: fmt.Sprintf("unsupported binary operator %q", op)}
	}
	return nil
}

func (c *compiler) compileUnary(n *ast.Node) error {
	if err := c.expr(n.Left); err != nil {
		return err
	}
	op := ""
	if n.Token != nil {
		op = n.Token.Lexeme
	}
	switch op {
	case "-":
		c.chunk.EmitSimple(NEGATE, lineOf(n))
	case "not":
		c.chunk.EmitSimple(NOT, lineOf(n))
	default:
		return &CodegenError{Node: n, Msg: fmt.Sprintf("unsupported unary operator %q", op)}
	}
	return nil
}
