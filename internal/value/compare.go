package value

// Ordering is the three-way result of Compare.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// Compare orders a and b, promoting across any combination of integer/real
// kinds (spec §4.1 "compare(a, b) producing {<, =, >} with numeric
// promotion across all integer/real kinds"). Strings compare
// lexicographically, booleans compare false < true, and nil only equals
// nil. Mismatched non-numeric kinds are a type error.
func Compare(a, b Value) (Ordering, error) {
	switch {
	case a.kind == KindNil && b.kind == KindNil:
		return Equal, nil
	case a.kind == KindString && b.kind == KindString:
		return orderStrings(a.heap.str, b.heap.str), nil
	case a.kind == KindBool && b.kind == KindBool:
		return Ordering(a.i - b.i), nil
	case a.kind == KindEnum && b.kind == KindEnum:
		if a.heap.enum != b.heap.enum {
			return 0, &TypeError{Op: "compare", Left: a.kind, Right: b.kind, Detail: "different enum types"}
		}
		return orderInt(a.i, b.i), nil
	case (a.kind.IsIntLike() || a.kind.IsReal()) && (b.kind.IsIntLike() || b.kind.IsReal()):
		if a.kind.IsReal() || b.kind.IsReal() {
			fa, _ := AsReal(a)
			fb, _ := AsReal(b)
			return orderReal(fa, fb), nil
		}
		return orderInt(a.i, b.i), nil
	}
	return 0, &TypeError{Op: "compare", Left: a.kind, Right: b.kind}
}

func orderInt(a, b int64) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

func orderReal(a, b float64) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

func orderStrings(a, b string) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}
