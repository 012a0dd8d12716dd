package ast

import "fmt"

// VerifyError reports a structural invariant violation found by Verify.
type VerifyError struct {
	Node *Node
	Want *Node
	Got  *Node
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("ast: node %s has parent %s, want %s", describe(e.Node), describe(e.Got), describe(e.Want))
}

func describe(n *Node) string {
	if n == nil {
		return "<nil>"
	}
	return n.Kind.String()
}

// Verify walks n and asserts every child's Parent pointer matches its
// textual parent (spec §4.2 testable property 1: "for every AST node n and
// every child c in {left, right, extra, children[...]}, c.parent == n").
// It must pass at entry to the optimizer and at entry to codegen.
func Verify(n *Node) error {
	return verify(n)
}

func verify(n *Node) error {
	if n == nil {
		return nil
	}
	check := func(child *Node) error {
		if child == nil {
			return nil
		}
		if child.Parent != n {
			return &VerifyError{Node: child, Want: n, Got: child.Parent}
		}
		return verify(child)
	}
	if err := check(n.Left); err != nil {
		return err
	}
	if err := check(n.Right); err != nil {
		return err
	}
	if err := check(n.Extra); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := check(c); err != nil {
			return err
		}
	}
	return nil
}
