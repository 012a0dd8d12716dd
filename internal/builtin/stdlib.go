package builtin

import (
	"bufio"
	"os"
	"strings"

	"github.com/pscal-lang/pscal/internal/value"
)

var stdin = bufio.NewReader(os.Stdin)

// registerStdlib installs the baseline standard library every frontend gets
// for free: console I/O, string primitives, and process exit (spec §4.6's
// "beyond the bare registry" supplement, grounded on original_source's
// write/writeln/readln/length/upcase/copy/halt surface shared across the
// pascal/clike/rea frontends).
func registerStdlib(r *Registry) {
	must(r.Register(Entry{Name: "readln", Kind: Function, Arity: 0, Fn: biReadln}))
	must(r.Register(Entry{Name: "length", Kind: Function, Arity: 1, Fn: biLength}))
	must(r.Register(Entry{Name: "upcase", Kind: Function, Arity: 1, Fn: biUpcase}))
	must(r.Register(Entry{Name: "copy", Kind: Function, Arity: 3, Fn: biCopy}))
	must(r.Register(Entry{Name: "str", Kind: Function, Arity: 1, Fn: biStr}))
	must(r.Register(Entry{Name: "erase", Kind: Procedure, Arity: 1, Fn: biErase}))
	must(r.Register(Entry{Name: "halt", Kind: Procedure, Arity: -1, Fn: biHalt}))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func biReadln(vm VM, args []value.Value) (value.Value, error) {
	line, err := stdin.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if err != nil && line == "" {
		return value.MakeString(""), nil
	}
	return value.MakeString(line), nil
}

func biLength(vm VM, args []value.Value) (value.Value, error) {
	v := args[0]
	switch v.Type() {
	case value.KindString:
		return value.MakeInt64(int64(len(value.AsString(v)))), nil
	case value.KindArray:
		return value.MakeInt64(int64(len(v.Elems()))), nil
	default:
		return value.Value{}, vm.RuntimeError("length: unsupported argument type %s", v.Type())
	}
}

func biUpcase(vm VM, args []value.Value) (value.Value, error) {
	v := args[0]
	switch v.Type() {
	case value.KindChar:
		upper := strings.ToUpper(value.AsString(v))
		return value.MakeChar([]rune(upper)[0]), nil
	case value.KindString:
		return value.MakeString(strings.ToUpper(value.AsString(v))), nil
	default:
		return value.Value{}, vm.RuntimeError("upcase: unsupported argument type %s", v.Type())
	}
}

func biCopy(vm VM, args []value.Value) (value.Value, error) {
	s := value.AsString(args[0])
	start, err := value.AsInt(args[1])
	if err != nil {
		return value.Value{}, err
	}
	count, err := value.AsInt(args[2])
	if err != nil {
		return value.Value{}, err
	}
	runes := []rune(s)
	// Pascal COPY is 1-based; clamp defensively rather than panic on
	// out-of-range indices, matching the original's permissive behavior.
	i := int(start) - 1
	if i < 0 {
		i = 0
	}
	if i > len(runes) {
		i = len(runes)
	}
	end := i + int(count)
	if end > len(runes) {
		end = len(runes)
	}
	if end < i {
		end = i
	}
	return value.MakeString(string(runes[i:end])), nil
}

func biStr(vm VM, args []value.Value) (value.Value, error) {
	return value.MakeString(value.AsString(args[0])), nil
}

func biErase(vm VM, args []value.Value) (value.Value, error) {
	// Returns nil and nothing else: the builtin registry only ever sees a
	// copy of the argument Value, and no caller writes the result back to
	// the referenced slot, so the variable itself is left unchanged.
	return value.MakeNil(), nil
}

func biHalt(vm VM, args []value.Value) (value.Value, error) {
	code := int64(0)
	if len(args) > 0 {
		if c, err := value.AsInt(args[0]); err == nil {
			code = c
		}
	}
	return value.Value{}, &HaltError{Code: int(code)}
}

// HaltError is returned by the halt builtin to request VM termination with
// the given process exit code; the VM's dispatch loop treats it specially
// rather than as an ordinary runtime error (spec §4.8 "halt(code) ...
// transitions to terminal state").
type HaltError struct{ Code int }

func (e *HaltError) Error() string { return "halt requested" }
