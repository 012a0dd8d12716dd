package symbol

import "github.com/pscal-lang/pscal/internal/value"

// Scope bundles the three distinguished tables spec §4.3 calls for: global
// variables, global constants, and procedures/functions.
type Scope struct {
	Globals    *Table
	Constants  *Table
	Procedures *Table
}

// NewScope returns an empty Scope with reasonable default table capacities.
func NewScope() *Scope {
	return &Scope{
		Globals:    NewTable(64),
		Constants:  NewTable(32),
		Procedures: NewTable(32),
	}
}

// Alias registers aliasName in t as a symbol sharing storage with target
// (spec §4.3: "an alias symbol shares storage with its target, e.g.
// CRT.TextAttr aliases TextAttr"). Reads and writes through either name
// via Get/Set observe the same value.Value, since both resolve through the
// alias back-pointer to the target; the alias's own Value field is only a
// copy taken here and is not updated afterwards.
func Alias(t *Table, aliasName string, target *Symbol) error {
	sym := &Symbol{
		Name:      aliasName,
		Type:      target.Type,
		IsAlias:   true,
		IsDefined: target.IsDefined,
		Value:     target.Value,
		alias:     target,
	}
	return t.Insert(sym)
}

// Resolve follows a chain of alias symbols to the non-alias symbol that
// ultimately owns the storage, returning sym itself if it is not an alias.
func Resolve(sym *Symbol) *Symbol {
	for sym.IsAlias && sym.alias != nil {
		sym = sym.alias
	}
	return sym
}

// Set writes val into sym's storage, resolving through the alias chain
// first so every alias of the same target observes the write (spec Open
// Question: alias observability) and IsDefined becomes true on the owning
// symbol.
func Set(sym *Symbol, val value.Value) {
	owner := Resolve(sym)
	owner.Value = val
	owner.IsDefined = true
}

// Get reads sym's storage, resolving through the alias chain first.
func Get(sym *Symbol) value.Value {
	return Resolve(sym).Value
}
