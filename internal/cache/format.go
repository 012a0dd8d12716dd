package cache

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/pscal-lang/pscal/internal/value"
)

// writeValue serializes one constant-pool entry: a one-byte kind tag
// followed by a kind-specific payload, grounded on original_source's
// write_value (core/cache.c) but resolving spec §9's open question by
// serializing arrays and records too (length-prefixed element/field
// sequences) instead of aborting the save. Pointer/stream/file constants
// cannot appear in a well-formed constant pool (codegen never emits them as
// literals) and are rejected rather than silently dropped.
func writeValue(w io.Writer, v value.Value) error {
	if err := binary.Write(w, binary.LittleEndian, byte(v.Type())); err != nil {
		return err
	}
	switch v.Type() {
	case value.KindNil:
		return nil
	case value.KindBool:
		b, _ := value.AsBool(v)
		return binary.Write(w, binary.LittleEndian, b)
	case value.KindInt8, value.KindInt16, value.KindInt32, value.KindInt64, value.KindByte:
		i, _ := value.AsInt(v)
		return binary.Write(w, binary.LittleEndian, i)
	case value.KindSingle, value.KindDouble, value.KindExtended:
		r, _ := value.AsReal(v)
		return binary.Write(w, binary.LittleEndian, math.Float64bits(r))
	case value.KindChar:
		i, _ := value.AsInt(v)
		return binary.Write(w, binary.LittleEndian, int32(i))
	case value.KindString:
		return writeString(w, value.AsString(v))
	case value.KindEnum:
		if err := writeString(w, v.EnumName()); err != nil {
			return err
		}
		i, _ := value.AsInt(v)
		return binary.Write(w, binary.LittleEndian, i)
	case value.KindRecord:
		return writeRecord(w, v)
	case value.KindArray:
		return writeArray(w, v)
	default:
		return fmt.Errorf("cache: constant kind %s cannot be cached", v.Type())
	}
}

func writeRecord(w io.Writer, v value.Value) error {
	fields := v.Fields()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(fields))); err != nil {
		return err
	}
	for _, f := range fields {
		if err := writeString(w, f.Name); err != nil {
			return err
		}
		if err := writeValue(w, f.Value); err != nil {
			return err
		}
	}
	return nil
}

func writeArray(w io.Writer, v value.Value) error {
	dims := v.Dims()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(dims))); err != nil {
		return err
	}
	for _, d := range dims {
		if err := binary.Write(w, binary.LittleEndian, d.Lower); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, d.Upper); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, byte(v.ElemType())); err != nil {
		return err
	}
	elems := v.Elems()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(elems))); err != nil {
		return err
	}
	for _, e := range elems {
		if err := writeValue(w, e); err != nil {
			return err
		}
	}
	return nil
}

func readValue(r io.Reader) (value.Value, error) {
	var tagByte byte
	if err := binary.Read(r, binary.LittleEndian, &tagByte); err != nil {
		return value.Value{}, err
	}
	kind := value.Kind(tagByte)
	switch kind {
	case value.KindNil:
		return value.MakeNil(), nil
	case value.KindBool:
		var b bool
		if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
			return value.Value{}, err
		}
		return value.MakeBool(b), nil
	case value.KindByte:
		var i int64
		if err := binary.Read(r, binary.LittleEndian, &i); err != nil {
			return value.Value{}, err
		}
		return value.MakeByte(uint8(i)), nil
	case value.KindInt8:
		i, err := readInt(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.MakeInt8(int8(i)), nil
	case value.KindInt16:
		i, err := readInt(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.MakeInt16(int16(i)), nil
	case value.KindInt32:
		i, err := readInt(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.MakeInt32(int32(i)), nil
	case value.KindInt64:
		i, err := readInt(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.MakeInt64(i), nil
	case value.KindSingle, value.KindDouble, value.KindExtended:
		var bits uint64
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return value.Value{}, err
		}
		f := math.Float64frombits(bits)
		switch kind {
		case value.KindSingle:
			return value.MakeSingle(float32(f)), nil
		case value.KindExtended:
			return value.MakeExtended(f), nil
		default:
			return value.MakeDouble(f), nil
		}
	case value.KindChar:
		var r32 int32
		if err := binary.Read(r, binary.LittleEndian, &r32); err != nil {
			return value.Value{}, err
		}
		return value.MakeChar(rune(r32)), nil
	case value.KindString:
		s, err := readString(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.MakeString(s), nil
	case value.KindEnum:
		name, err := readString(r)
		if err != nil {
			return value.Value{}, err
		}
		ordinal, err := readInt(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.MakeEnum(name, ordinal), nil
	case value.KindRecord:
		return readRecord(r)
	case value.KindArray:
		return readArray(r)
	default:
		return value.Value{}, fmt.Errorf("cache: unknown constant kind tag %d", tagByte)
	}
}

func readInt(r io.Reader) (int64, error) {
	var i int64
	err := binary.Read(r, binary.LittleEndian, &i)
	return i, err
}

func readRecord(r io.Reader) (value.Value, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return value.Value{}, err
	}
	fields := make([]value.Field, n)
	for i := range fields {
		name, err := readString(r)
		if err != nil {
			return value.Value{}, err
		}
		v, err := readValue(r)
		if err != nil {
			return value.Value{}, err
		}
		fields[i] = value.Field{Name: name, Value: v}
	}
	return value.MakeRecord(fields), nil
}

func readArray(r io.Reader) (value.Value, error) {
	var dimCount uint32
	if err := binary.Read(r, binary.LittleEndian, &dimCount); err != nil {
		return value.Value{}, err
	}
	dims := make([]value.Dim, dimCount)
	for i := range dims {
		if err := binary.Read(r, binary.LittleEndian, &dims[i].Lower); err != nil {
			return value.Value{}, err
		}
		if err := binary.Read(r, binary.LittleEndian, &dims[i].Upper); err != nil {
			return value.Value{}, err
		}
	}
	var elemTag byte
	if err := binary.Read(r, binary.LittleEndian, &elemTag); err != nil {
		return value.Value{}, err
	}
	var elemCount uint32
	if err := binary.Read(r, binary.LittleEndian, &elemCount); err != nil {
		return value.Value{}, err
	}
	elems := make([]value.Value, elemCount)
	for i := range elems {
		v, err := readValue(r)
		if err != nil {
			return value.Value{}, err
		}
		elems[i] = v
	}
	return value.MakeArray(dims, value.Kind(elemTag), elems), nil
}
