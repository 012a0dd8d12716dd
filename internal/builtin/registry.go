// Package builtin implements the process-wide, case-insensitive registry of
// host functions that CALL_BUILTIN dispatches against (spec §4.6), plus the
// standard library registered into it.
package builtin

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dolthub/swiss"
	"github.com/pscal-lang/pscal/internal/value"
)

// Kind distinguishes a builtin callable as a statement (procedure) or an
// expression (function), so a frontend can reject a function call used in
// statement position and vice versa.
type Kind uint8

const (
	Procedure Kind = iota
	Function
)

// VM is the minimal surface internal/builtin needs from the virtual machine
// to implement host functions: reporting a runtime error and observing the
// cooperative cancellation flag. The concrete *vm.Thread satisfies this.
type VM interface {
	RuntimeError(format string, args ...any) error
	Aborted() bool
}

// Func is a host function: given the VM, the call's arguments, it returns a
// Value (Procedure entries return value.MakeNil()) or an error.
type Func func(vm VM, args []value.Value) (value.Value, error)

// Entry is one registered builtin.
type Entry struct {
	Name  string
	Kind  Kind
	Arity int // -1 means variadic
	Fn    Func
}

// Registry is a case-insensitive name -> Entry table. The zero value is not
// usable; use NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	entries *swiss.Map[string, Entry]
}

func NewRegistry() *Registry {
	return &Registry{entries: swiss.NewMap[string, Entry](64)}
}

func key(name string) string { return strings.ToUpper(name) }

// Register installs an entry. Registration is idempotent: registering the
// same name twice with an identical Kind/Arity silently succeeds (so two
// frontends loading the same standard library concurrently never race); a
// genuine name collision with a different signature is rejected.
func (r *Registry) Register(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(e.Name)
	if existing, ok := r.entries.Get(k); ok {
		if existing.Kind == e.Kind && existing.Arity == e.Arity {
			return nil
		}
		return fmt.Errorf("builtin: %s already registered with a different signature", e.Name)
	}
	r.entries.Put(k, e)
	return nil
}

// Alias registers newName as resolving to the same Entry as existing, used
// for the clike name-rewrite hooks (strlen->length, itoa->str, ...).
func (r *Registry) Alias(newName, existing string) error {
	r.mu.RLock()
	e, ok := r.entries.Get(key(existing))
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("builtin: cannot alias %s to unknown builtin %s", newName, existing)
	}
	e.Name = newName
	return r.Register(e)
}

// Lookup resolves name case-insensitively.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries.Get(key(name))
	return e, ok
}

// Call resolves name and invokes it, producing the "unresolved name and
// arity" runtime error spec §4.6 requires when the name is absent.
func (r *Registry) Call(vm VM, name string, args []value.Value) (value.Value, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return value.Value{}, vm.RuntimeError("unresolved builtin %q called with %d argument(s)", name, len(args))
	}
	if e.Arity >= 0 && len(args) != e.Arity {
		return value.Value{}, vm.RuntimeError("builtin %q expects %d argument(s), got %d", name, e.Arity, len(args))
	}
	return e.Fn(vm, args)
}

// Names returns every registered name, for --dump-ext-builtins and similar
// introspection commands.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, r.entries.Count())
	r.entries.Iter(func(k string, _ Entry) bool {
		out = append(out, k)
		return false
	})
	return out
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, populated exactly once with the
// standard library, threading builtins, and the "ext" namespace (spec §4.6's
// "one-time initializer" requirement).
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		registerStdlib(defaultRegistry)
		registerThreading(defaultRegistry)
		registerExt(defaultRegistry)
		registerClikeAliases(defaultRegistry)
	})
	return defaultRegistry
}

// registerClikeAliases installs the clike frontend's canonical name rewrites
// (spec §4.6): strlen->length, itoa->str, exit->halt, remove->erase,
// toupper->upcase. Each frontend may install additional aliases of its own
// on top of the shared registry; these five are common enough to ship by
// default rather than have every clike program re-register them.
func registerClikeAliases(r *Registry) {
	aliases := map[string]string{
		"strlen":  "length",
		"itoa":    "str",
		"exit":    "halt",
		"remove":  "erase",
		"toupper": "upcase",
	}
	for newName, existing := range aliases {
		if err := r.Alias(newName, existing); err != nil {
			panic(err)
		}
	}
}
