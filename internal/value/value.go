// Package value implements the tagged-union runtime value used by the
// optimizer, codegen and virtual machine: a single Value type with a Kind
// discriminant and reference-counted heap payloads for strings, arrays,
// records and byte streams.
package value

import "fmt"

// Kind discriminates the active payload of a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindByte // unsigned 8-bit
	KindBool
	KindSingle // single-precision real
	KindDouble // double-precision real
	KindExtended
	KindChar
	KindString
	KindEnum
	KindPointer
	KindRecord
	KindArray
	KindStream // memory-stream (opaque byte buffer)
	KindFile
)

var kindNames = [...]string{
	KindNil:      "nil",
	KindInt8:     "int8",
	KindInt16:    "int16",
	KindInt32:    "int32",
	KindInt64:    "int64",
	KindByte:     "byte",
	KindBool:     "boolean",
	KindSingle:   "single",
	KindDouble:   "double",
	KindExtended: "extended",
	KindChar:     "char",
	KindString:   "string",
	KindEnum:     "enum",
	KindPointer:  "pointer",
	KindRecord:   "record",
	KindArray:    "array",
	KindStream:   "stream",
	KindFile:     "file",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// IsIntLike reports whether k is one of the integer-like kinds (signed
// widths, byte, char and enum ordinal are integer-like for arithmetic
// promotion purposes; boolean is not, it never promotes).
func (k Kind) IsIntLike() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindByte, KindChar, KindEnum:
		return true
	}
	return false
}

// IsReal reports whether k is one of the floating-point kinds.
func (k Kind) IsReal() bool {
	switch k {
	case KindSingle, KindDouble, KindExtended:
		return true
	}
	return false
}

// widthRank orders integer/real kinds so that binary promotion can pick the
// wider of two operand kinds (spec §4.8: "promote integers to the wider of
// the two operands' widths").
var widthRank = map[Kind]int{
	KindByte:     1,
	KindInt8:     1,
	KindChar:     1,
	KindInt16:    2,
	KindInt32:    3,
	KindEnum:     3,
	KindInt64:    4,
	KindSingle:   5,
	KindDouble:   6,
	KindExtended: 7,
}

// Wider returns the kind with the greater promotion rank between a and b.
func Wider(a, b Kind) Kind {
	if widthRank[b] > widthRank[a] {
		return b
	}
	return a
}

// Value is the tagged-union runtime value. Scalars are stored inline; heap
// kinds (string, array, record, stream, and the boxed name of an enum) hold
// a pointer to a reference-counted payload in heap.
type Value struct {
	kind Kind
	i    int64   // ints of every width, byte, bool (0/1), char (rune), enum ordinal
	r    float64 // single/double/extended real
	ptr  *Value  // KindPointer: target
	heap *heapObj
}

// heapObj is the reference-counted payload shared by heap-backed kinds.
type heapObj struct {
	rc     int32
	str    string
	enum   string // enum's type name, when kind == KindEnum
	fields []Field
	elems  []Value
	dims   []Dim
	elemTy Kind
	stream []byte
	file   *FileHandle
}

// Field is one named value inside a record, in declaration order.
type Field struct {
	Name  string
	Value Value
}

// Dim is one array dimension's inclusive bounds.
type Dim struct {
	Lower, Upper int64
}

// FileHandle is the payload of a KindFile value. The core only owns the
// lifetime contract (closed exactly once, on Release); builtins that open
// files populate Backing.
type FileHandle struct {
	Name    string
	Backing interface {
		Close() error
	}
}

func (k Kind) Kind() Kind { return k } // convenience for embedding in error types

// Type returns the runtime Kind of v.
func (v Value) Type() Kind { return v.kind }

func newHeap() *heapObj { return &heapObj{rc: 1} }

// ---- constructors ----

func MakeNil() Value                  { return Value{kind: KindNil} }
func MakeBool(b bool) Value           { return Value{kind: KindBool, i: b2i(b)} }
func MakeByte(b uint8) Value          { return Value{kind: KindByte, i: int64(b)} }
func MakeChar(r rune) Value           { return Value{kind: KindChar, i: int64(r)} }
func MakeInt8(n int8) Value           { return Value{kind: KindInt8, i: int64(n)} }
func MakeInt16(n int16) Value         { return Value{kind: KindInt16, i: int64(n)} }
func MakeInt32(n int32) Value         { return Value{kind: KindInt32, i: int64(n)} }
func MakeInt64(n int64) Value         { return Value{kind: KindInt64, i: n} }
func MakeSingle(f float32) Value      { return Value{kind: KindSingle, r: float64(f)} }
func MakeDouble(f float64) Value      { return Value{kind: KindDouble, r: f} }
func MakeExtended(f float64) Value    { return Value{kind: KindExtended, r: f} }

func MakeString(s string) Value {
	h := newHeap()
	h.str = s
	return Value{kind: KindString, heap: h}
}

func MakeEnum(typeName string, ordinal int64) Value {
	h := newHeap()
	h.enum = typeName
	return Value{kind: KindEnum, i: ordinal, heap: h}
}

func MakePointer(target *Value) Value { return Value{kind: KindPointer, ptr: target} }

func MakeRecord(fields []Field) Value {
	h := newHeap()
	h.fields = fields
	return Value{kind: KindRecord, heap: h}
}

func MakeArray(dims []Dim, elemTy Kind, elems []Value) Value {
	h := newHeap()
	h.dims = append([]Dim(nil), dims...)
	h.elemTy = elemTy
	h.elems = elems
	return Value{kind: KindArray, heap: h}
}

func MakeStream(buf []byte) Value {
	h := newHeap()
	h.stream = buf
	return Value{kind: KindStream, heap: h}
}

func MakeFile(fh *FileHandle) Value {
	h := newHeap()
	h.file = fh
	return Value{kind: KindFile, heap: h}
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// EnumName returns the declared enum type name of an enum value.
func (v Value) EnumName() string {
	if v.kind != KindEnum || v.heap == nil {
		return ""
	}
	return v.heap.enum
}

// Fields returns the ordered fields of a record value. The caller must not
// modify the returned slice.
func (v Value) Fields() []Field {
	if v.kind != KindRecord || v.heap == nil {
		return nil
	}
	return v.heap.fields
}

// Dims returns the per-dimension bounds of an array value.
func (v Value) Dims() []Dim {
	if v.kind != KindArray || v.heap == nil {
		return nil
	}
	return v.heap.dims
}

// ElemType returns the declared element kind of an array value.
func (v Value) ElemType() Kind {
	if v.heap == nil {
		return KindNil
	}
	return v.heap.elemTy
}

// Elems returns the backing element slice of an array value. The caller must
// not modify the returned slice without holding exclusive ownership.
func (v Value) Elems() []Value {
	if v.kind != KindArray || v.heap == nil {
		return nil
	}
	return v.heap.elems
}

// Stream returns the backing byte buffer of a memory-stream value.
func (v Value) Stream() []byte {
	if v.kind != KindStream || v.heap == nil {
		return nil
	}
	return v.heap.stream
}

// File returns the file handle payload of a KindFile value.
func (v Value) File() *FileHandle {
	if v.kind != KindFile || v.heap == nil {
		return nil
	}
	return v.heap.file
}

// Pointer returns the target of a KindPointer value.
func (v Value) Pointer() *Value { return v.ptr }

// Retain increments the reference count of a heap-backed value. It is a
// no-op for scalar kinds. Used when a Value is shared via explicit pointer
// semantics rather than copied.
func (v Value) Retain() {
	if v.heap != nil {
		v.heap.rc++
	}
}

// Release decrements the reference count of a heap-backed value, freeing its
// payload (including closing any open file handle) once the count reaches
// zero. It is a no-op for scalar kinds and for values already released.
func (v Value) Release() {
	if v.heap == nil || v.heap.rc <= 0 {
		return
	}
	v.heap.rc--
	if v.heap.rc > 0 {
		return
	}
	if v.kind == KindFile && v.heap.file != nil && v.heap.file.Backing != nil {
		_ = v.heap.file.Backing.Close()
	}
	if v.kind == KindArray || v.kind == KindRecord {
		for _, f := range v.heap.fields {
			f.Value.Release()
		}
		for _, e := range v.heap.elems {
			e.Release()
		}
	}
}

// Copy returns a deep copy of v: heap payloads are duplicated rather than
// shared, matching by-value assignment and by-value parameter semantics. Use
// Retain/a raw field copy instead for VAR/pointer (by-reference) semantics,
// which must share the same heap payload.
func Copy(v Value) Value {
	if v.heap == nil {
		return v
	}
	switch v.kind {
	case KindString:
		return MakeString(v.heap.str)
	case KindEnum:
		return MakeEnum(v.heap.enum, v.i)
	case KindRecord:
		fields := make([]Field, len(v.heap.fields))
		for i, f := range v.heap.fields {
			fields[i] = Field{Name: f.Name, Value: Copy(f.Value)}
		}
		return MakeRecord(fields)
	case KindArray:
		elems := make([]Value, len(v.heap.elems))
		for i, e := range v.heap.elems {
			elems[i] = Copy(e)
		}
		return MakeArray(v.heap.dims, v.heap.elemTy, elems)
	case KindStream:
		buf := append([]byte(nil), v.heap.stream...)
		return MakeStream(buf)
	case KindFile:
		// file handles are exclusively owned; "copying" one is a semantic
		// error the frontend must prevent, but defensively alias here rather
		// than duplicate the OS resource.
		return v
	}
	return v
}
