// Package symbol implements the case-insensitive global/constant/procedure
// tables (spec §4.3): a hash table keyed by name, with a distinguished
// procedure table that additionally records arity, local count and the
// resolved bytecode entry point.
package symbol

import (
	"strings"

	"github.com/dolthub/swiss"
	"github.com/pscal-lang/pscal/internal/ast"
	"github.com/pscal-lang/pscal/internal/value"
)

// Symbol is one entry in a Table.
type Symbol struct {
	Name       string
	Type       value.Kind
	IsConst    bool
	IsAlias    bool
	IsDefined  bool
	Arity      int
	LocalsCnt  int
	Address    int // bytecode_address, valid once IsDefined for a procedure
	Value      value.Value
	TypeDef    *ast.Node // AST back-reference for record/enum type symbols

	// alias points at the heap-sharing target for IsAlias symbols (spec
	// §4.3/Open Question: "CRT.TextAttr aliases TextAttr" shares storage).
	alias *Symbol
}

// Table is a hash table of Symbol keyed by case-insensitive name, backed by
// the same swiss-table implementation the teacher uses for its own runtime
// maps (lang/machine/map.go), reused here for compile-time name resolution.
type Table struct {
	m *swiss.Map[string, *Symbol]
}

// NewTable returns an empty table with initial capacity for at least size
// entries.
func NewTable(size int) *Table {
	return &Table{m: swiss.NewMap[string, *Symbol](uint32(size))}
}

func key(name string) string { return strings.ToUpper(name) }

// Insert adds sym under its Name. Redefinition of an already-defined
// procedure symbol is a semantic error the frontend must catch before
// calling Insert again (spec §4.3): Insert itself reports it rather than
// silently overwriting, since bytecode addresses would otherwise dangle.
func (t *Table) Insert(sym *Symbol) error {
	k := key(sym.Name)
	if existing, ok := t.m.Get(k); ok && existing.IsDefined && sym.IsDefined {
		return &RedefinitionError{Name: sym.Name}
	}
	t.m.Put(k, sym)
	return nil
}

// Lookup returns the symbol registered under name, case-insensitively.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	return t.m.Get(key(name))
}

// Remove deletes the symbol registered under name.
func (t *Table) Remove(name string) {
	t.m.Delete(key(name))
}

// Iterate calls fn for every entry in the table, stopping early if fn
// returns false.
func (t *Table) Iterate(fn func(*Symbol) bool) {
	t.m.Iter(func(_ string, sym *Symbol) bool {
		return !fn(sym)
	})
}

// RedefinitionError reports an attempt to redefine an already-defined
// procedure or function symbol.
type RedefinitionError struct{ Name string }

func (e *RedefinitionError) Error() string {
	return "symbol: \"" + e.Name + "\" is already defined"
}
