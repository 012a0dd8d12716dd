// Package ast defines PSCAL's single, language-neutral AST node. Every
// frontend (Pascal, clike, rea, shell) reduces its own concrete syntax to
// this one shape before handing the tree to the optimizer and codegen; the
// package does not distinguish Go types per production the way a recursive
// descent parser's own AST normally would.
package ast

import "github.com/pscal-lang/pscal/internal/value"

// TokenType tags the lexeme carried by a Node, for frontends that want to
// keep the originating token around for diagnostics.
type TokenType uint8

const (
	TokNone TokenType = iota
	TokIdent
	TokIntLit
	TokRealLit
	TokStringLit
	TokCharLit
	TokKeyword
	TokOperator
	TokPunct
)

// Token is the lexical origin of a Node, kept for diagnostics and for the
// --dump-ast-json debug format (spec §6).
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int
	Col    int
}

// Node is the single AST node shape shared by every frontend. Left, Right
// and Extra are the three "distinguished children" spec §3 calls out (e.g.
// Left/Right operands of a BINARY_OP, Extra holding a FOR loop's step
// expression); Children holds an ordered list for productions with
// variable arity (statement lists, call arguments, record fields).
//
// Ownership: a Node exclusively owns Left, Right, Extra, Children and Token.
// Parent is a non-owning back-reference, never walked by Release/Copy.
type Node struct {
	Kind  NodeKind
	Token *Token

	// VarType is the static type annotation every typed node must carry by
	// the time it reaches codegen (spec §4.2, "unannotated AST node" is a
	// codegen error).
	VarType value.Kind

	Left, Right, Extra *Node
	Children           []*Node
	Parent             *Node

	// Unit lists the module dependencies attached to a PROGRAM/IMPORT node
	// for frontends that support modules (spec §3).
	Unit []string

	// Literal fields, populated for NUMBER/BOOLEAN nodes ahead of constant
	// folding so the optimizer never has to re-parse a lexeme.
	IntLit  int64
	RealLit float64
	BoolLit bool
}

// New allocates a bare node of the given kind with the given token. The
// caller wires children via SetLeft/SetRight/SetExtra/AddChild.
func New(kind NodeKind, tok *Token) *Node {
	return &Node{Kind: kind, Token: tok}
}

// SetLeft installs child as n's left operand, transferring ownership and
// setting child's parent back-pointer.
func SetLeft(n, child *Node) {
	n.Left = child
	if child != nil {
		child.Parent = n
	}
}

// SetRight installs child as n's right operand.
func SetRight(n, child *Node) {
	n.Right = child
	if child != nil {
		child.Parent = n
	}
}

// SetExtra installs child as n's extra operand (e.g. a FOR loop's step, a
// CASE branch's guard).
func SetExtra(n, child *Node) {
	n.Extra = child
	if child != nil {
		child.Parent = n
	}
}

// AddChild appends child to n's ordered child list, installing the parent
// back-pointer.
func AddChild(n, child *Node) {
	n.Children = append(n.Children, child)
	if child != nil {
		child.Parent = n
	}
}

// SetType annotates n with its static type.
func SetType(n *Node, t value.Kind) { n.VarType = t }

// Copy returns a deep copy of n: every owned child is itself copied and
// re-parented, but Parent on the returned root is left nil (the caller
// re-parents it, mirroring the teacher's "ownership moves on assignment"
// idiom for heap-backed value.Value).
func Copy(n *Node) *Node {
	if n == nil {
		return nil
	}
	cp := &Node{
		Kind:    n.Kind,
		VarType: n.VarType,
		IntLit:  n.IntLit,
		RealLit: n.RealLit,
		BoolLit: n.BoolLit,
		Unit:    append([]string(nil), n.Unit...),
	}
	if n.Token != nil {
		tok := *n.Token
		cp.Token = &tok
	}
	SetLeft(cp, Copy(n.Left))
	SetRight(cp, Copy(n.Right))
	SetExtra(cp, Copy(n.Extra))
	for _, c := range n.Children {
		AddChild(cp, Copy(c))
	}
	return cp
}

// Free detaches n's children so they become eligible for garbage
// collection. The core has no manual heap to release (spec's C arena is
// replaced by ordinary Go ownership, see DESIGN.md), so Free only clears
// the fields rather than performing any deallocation; it exists so codegen
// and tests can express the same "free(node)" lifecycle step the
// specification names.
func Free(n *Node) {
	if n == nil {
		return
	}
	Free(n.Left)
	Free(n.Right)
	Free(n.Extra)
	for _, c := range n.Children {
		Free(c)
	}
	n.Left, n.Right, n.Extra, n.Children = nil, nil, nil, nil
}
