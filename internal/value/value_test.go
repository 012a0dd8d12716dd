package value_test

import (
	"testing"

	"github.com/pscal-lang/pscal/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoercions(t *testing.T) {
	i, err := value.AsInt(value.MakeInt32(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), i)

	r, err := value.AsReal(value.MakeInt64(7))
	require.NoError(t, err)
	assert.Equal(t, 7.0, r)

	_, err = value.AsBool(value.MakeInt8(1))
	assert.Error(t, err)

	var terr *value.TypeError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, value.KindInt8, terr.Left)
}

func TestCompareNumericPromotion(t *testing.T) {
	ord, err := value.Compare(value.MakeInt32(1), value.MakeDouble(1.5))
	require.NoError(t, err)
	assert.Equal(t, value.Less, ord)

	ord, err = value.Compare(value.MakeString("abc"), value.MakeString("abd"))
	require.NoError(t, err)
	assert.Equal(t, value.Less, ord)
}

func TestCopyIsDeep(t *testing.T) {
	inner := value.MakeString("hi")
	arr := value.MakeArray([]value.Dim{{Lower: 0, Upper: 0}}, value.KindString, []value.Value{inner})

	cp := value.Copy(arr)
	cpElems := cp.Elems()
	require.Len(t, cpElems, 1)
	assert.Equal(t, "hi", value.AsString(cpElems[0]))

	// mutating the copy's backing slice must not be visible through arr
	cpElems[0] = value.MakeString("bye")
	assert.Equal(t, "hi", value.AsString(arr.Elems()[0]))
}

func TestWidening(t *testing.T) {
	assert.Equal(t, value.KindDouble, value.Wider(value.KindInt32, value.KindDouble))
	assert.Equal(t, value.KindInt64, value.Wider(value.KindInt64, value.KindByte))
}
