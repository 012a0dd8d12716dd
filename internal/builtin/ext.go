package builtin

import (
	"math"
	"os"
	"time"

	"github.com/pscal-lang/pscal/internal/value"
)

// registerExt installs the "ext" namespace builtins the task supplements
// from original_source/src/ext_builtins: chudnovsky, mandelbrot,
// reversestring, swap, realtimeclock, getcurrentdir. These six carry no
// external dependency (unlike the SDL/sqlite/yyjson/OpenAI ext builtins the
// distilled spec's Non-goals rule out), so they round out the registry
// demonstration behind a --dump-ext-builtins-visible "ext." prefix.
func registerExt(r *Registry) {
	must(r.Register(Entry{Name: "ext.chudnovsky", Kind: Function, Arity: 1, Fn: biChudnovsky}))
	must(r.Register(Entry{Name: "ext.mandelbrotrow", Kind: Procedure, Arity: 6, Fn: biMandelbrotRow}))
	must(r.Register(Entry{Name: "ext.reversestring", Kind: Function, Arity: 1, Fn: biReverseString}))
	must(r.Register(Entry{Name: "ext.swap", Kind: Procedure, Arity: 2, Fn: biSwap}))
	must(r.Register(Entry{Name: "ext.realtimeclock", Kind: Function, Arity: 0, Fn: biRealTimeClock}))
	must(r.Register(Entry{Name: "ext.getcurrentdir", Kind: Function, Arity: 0, Fn: biGetCurrentDir}))
}

// ExtNames returns the names of every registered "ext." builtin, used by
// --dump-ext-builtins.
func ExtNames(r *Registry) []string {
	var out []string
	for _, n := range r.Names() {
		if len(n) > 4 && n[:4] == "EXT." {
			out = append(out, n)
		}
	}
	return out
}

// biChudnovsky computes pi to n terms of the Chudnovsky series, ported
// directly from ext_builtins/chudnovsky.c's term recurrence (in float64
// rather than long double: Go has no portable extended-precision type).
func biChudnovsky(vm VM, args []value.Value) (value.Value, error) {
	n, err := value.AsInt(args[0])
	if err != nil {
		return value.Value{}, err
	}
	if n <= 0 {
		return value.Value{}, vm.RuntimeError("ext.chudnovsky: argument must be positive")
	}

	m := 1.0
	l := 13591409.0
	x := 1.0
	k := 6.0
	s := l

	for i := int64(1); i < n; i++ {
		k3 := float64(i * i * i)
		m = (k*k*k - 16.0*k) * m / k3
		l += 545140134.0
		x *= -262537412640768000.0
		s += m * l / x
		k += 12.0
	}

	pi := 426880.0 * math.Sqrt(10005.0) / s
	return value.MakeDouble(pi), nil
}

// biMandelbrotRow fills a caller-allocated array with escape-iteration
// counts for one scanline, mirroring ext_builtins/math/mandelbrot.c's
// MandelbrotRow: the output Value must be a pointer to (or already be) an
// array of at least maxX+1 zero-based elements.
func biMandelbrotRow(vm VM, args []value.Value) (value.Value, error) {
	minRe, err := value.AsReal(args[0])
	if err != nil {
		return value.Value{}, err
	}
	reFactor, err := value.AsReal(args[1])
	if err != nil {
		return value.Value{}, err
	}
	cIm, err := value.AsReal(args[2])
	if err != nil {
		return value.Value{}, err
	}
	maxIterations, err := value.AsInt(args[3])
	if err != nil {
		return value.Value{}, err
	}
	maxX, err := value.AsInt(args[4])
	if err != nil {
		return value.Value{}, err
	}

	out := args[5]
	if out.Type() == value.KindPointer {
		out = *out.Pointer()
	}
	if out.Type() != value.KindArray {
		return value.Value{}, vm.RuntimeError("ext.mandelbrotrow: expected a VAR array parameter")
	}
	dims := out.Dims()
	if len(dims) != 1 || dims[0].Lower != 0 {
		return value.Value{}, vm.RuntimeError("ext.mandelbrotrow: output array must be single-dimensional and zero-based")
	}
	elems := out.Elems()
	if int64(len(elems)) <= maxX {
		return value.Value{}, vm.RuntimeError("ext.mandelbrotrow: output array too small for max x of %d", maxX)
	}

	cRe := minRe
	for x := int64(0); x <= maxX; x, cRe = x+1, cRe+reFactor {
		var zRe, zIm float64
		var it int64
		for ; it < maxIterations; it++ {
			zRe2, zIm2 := zRe*zRe, zIm*zIm
			if zRe2+zIm2 > 4.0 {
				break
			}
			tmp := 2.0*zRe*zIm + cIm
			zRe = zRe2 - zIm2 + cRe
			zIm = tmp
		}
		elems[x] = value.MakeInt64(it)
	}
	return value.MakeNil(), nil
}

func biReverseString(vm VM, args []value.Value) (value.Value, error) {
	runes := []rune(value.AsString(args[0]))
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return value.MakeString(string(runes)), nil
}

// biSwap exchanges the contents of two VAR parameters, grounded on
// ext_builtins/swap.c's pointer-swap; both arguments must be pointers of
// matching type (the language-level VAR-parameter convention).
func biSwap(vm VM, args []value.Value) (value.Value, error) {
	a, b := args[0], args[1]
	if a.Type() != value.KindPointer || b.Type() != value.KindPointer {
		return value.Value{}, vm.RuntimeError("ext.swap: both arguments must be VAR parameters")
	}
	pa, pb := a.Pointer(), b.Pointer()
	if pa == nil || pb == nil {
		return value.Value{}, vm.RuntimeError("ext.swap: received a nil pointer for a VAR parameter")
	}
	if pa.Type() != pb.Type() {
		return value.Value{}, vm.RuntimeError("ext.swap: cannot swap variables of different types (%s and %s)", pa.Type(), pb.Type())
	}
	*pa, *pb = *pb, *pa
	return value.MakeNil(), nil
}

func biRealTimeClock(vm VM, args []value.Value) (value.Value, error) {
	seconds := float64(time.Now().UnixNano()) / 1e9
	return value.MakeDouble(seconds), nil
}

func biGetCurrentDir(vm VM, args []value.Value) (value.Value, error) {
	wd, err := os.Getwd()
	if err != nil {
		return value.Value{}, vm.RuntimeError("ext.getcurrentdir: %v", err)
	}
	return value.MakeString(wd), nil
}
