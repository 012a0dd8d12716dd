package builtin_test

import (
	"fmt"
	"testing"

	"github.com/pscal-lang/pscal/internal/builtin"
	"github.com/pscal-lang/pscal/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVM struct {
	aborted bool
}

func (f *fakeVM) RuntimeError(format string, args ...any) error {
	return fmt.Errorf("runtime error: "+format, args...)
}

func (f *fakeVM) Aborted() bool { return f.aborted }

func TestLookupIsCaseInsensitive(t *testing.T) {
	r := builtin.NewRegistry()
	require.NoError(t, r.Register(builtin.Entry{Name: "Length", Kind: builtin.Function, Arity: 1, Fn: func(vm builtin.VM, args []value.Value) (value.Value, error) {
		return value.MakeInt64(1), nil
	}}))

	_, ok := r.Lookup("LENGTH")
	assert.True(t, ok)
	_, ok = r.Lookup("length")
	assert.True(t, ok)
}

func TestRegisterIsIdempotent(t *testing.T) {
	fn := func(vm builtin.VM, args []value.Value) (value.Value, error) { return value.MakeNil(), nil }
	r := builtin.NewRegistry()
	require.NoError(t, r.Register(builtin.Entry{Name: "foo", Kind: builtin.Procedure, Arity: 0, Fn: fn}))
	require.NoError(t, r.Register(builtin.Entry{Name: "foo", Kind: builtin.Procedure, Arity: 0, Fn: fn}))

	err := r.Register(builtin.Entry{Name: "foo", Kind: builtin.Function, Arity: 1, Fn: fn})
	assert.Error(t, err)
}

func TestCallUnresolvedNameReportsArity(t *testing.T) {
	r := builtin.NewRegistry()
	vm := &fakeVM{}
	_, err := r.Call(vm, "NoSuchBuiltin", []value.Value{value.MakeInt64(1), value.MakeInt64(2)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoSuchBuiltin")
	assert.Contains(t, err.Error(), "2 argument")
}

func TestDefaultRegistryHasClikeAliases(t *testing.T) {
	r := builtin.Default()
	_, ok := r.Lookup("strlen")
	assert.True(t, ok)
	_, ok = r.Lookup("toupper")
	assert.True(t, ok)
}

func TestLengthOnStringAndArray(t *testing.T) {
	r := builtin.Default()
	vm := &fakeVM{}
	out, err := r.Call(vm, "length", []value.Value{value.MakeString("hello")})
	require.NoError(t, err)
	got, _ := value.AsInt(out)
	assert.Equal(t, int64(5), got)

	arr := value.MakeArray(nil, value.KindInt64, []value.Value{value.MakeInt64(1), value.MakeInt64(2), value.MakeInt64(3)})
	out, err = r.Call(vm, "length", []value.Value{arr})
	require.NoError(t, err)
	got, _ = value.AsInt(out)
	assert.Equal(t, int64(3), got)
}

func TestUpcaseString(t *testing.T) {
	r := builtin.Default()
	vm := &fakeVM{}
	out, err := r.Call(vm, "upcase", []value.Value{value.MakeString("abc")})
	require.NoError(t, err)
	assert.Equal(t, "ABC", value.AsString(out))
}

func TestCopySubstring(t *testing.T) {
	r := builtin.Default()
	vm := &fakeVM{}
	out, err := r.Call(vm, "copy", []value.Value{value.MakeString("hello world"), value.MakeInt64(7), value.MakeInt64(5)})
	require.NoError(t, err)
	assert.Equal(t, "world", value.AsString(out))
}

func TestHaltReturnsHaltError(t *testing.T) {
	r := builtin.Default()
	vm := &fakeVM{}
	_, err := r.Call(vm, "halt", []value.Value{value.MakeInt64(3)})
	require.Error(t, err)
	var herr *builtin.HaltError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, 3, herr.Code)
}

func TestReverseString(t *testing.T) {
	r := builtin.Default()
	vm := &fakeVM{}
	out, err := r.Call(vm, "ext.reversestring", []value.Value{value.MakeString("abcd")})
	require.NoError(t, err)
	assert.Equal(t, "dcba", value.AsString(out))
}

func TestSwapExchangesPointees(t *testing.T) {
	r := builtin.Default()
	vm := &fakeVM{}
	a := value.MakeInt64(1)
	b := value.MakeInt64(2)
	_, err := r.Call(vm, "ext.swap", []value.Value{value.MakePointer(&a), value.MakePointer(&b)})
	require.NoError(t, err)
	av, _ := value.AsInt(a)
	bv, _ := value.AsInt(b)
	assert.Equal(t, int64(2), av)
	assert.Equal(t, int64(1), bv)
}

func TestChudnovskyApproximatesPi(t *testing.T) {
	r := builtin.Default()
	vm := &fakeVM{}
	out, err := r.Call(vm, "ext.chudnovsky", []value.Value{value.MakeInt64(3)})
	require.NoError(t, err)
	pi, _ := value.AsReal(out)
	assert.InDelta(t, 3.14159265358979, pi, 1e-9)
}

type threadingFakeVM struct {
	fakeVM
	spawned []string
}

func (f *threadingFakeVM) SpawnNamed(label, name string, args []value.Value) (int64, error) {
	f.spawned = append(f.spawned, name)
	return 1, nil
}
func (f *threadingFakeVM) PoolSubmit(pool, name string, args []value.Value) (int64, error) {
	return 2, nil
}
func (f *threadingFakeVM) ThreadPause(handle int64) error  { return nil }
func (f *threadingFakeVM) ThreadResume(handle int64) error { return nil }
func (f *threadingFakeVM) ThreadCancel(handle int64) error { return nil }
func (f *threadingFakeVM) ThreadStatus(handle int64) (builtin.ThreadStatus, error) {
	return builtin.ThreadStatus{Done: true}, nil
}
func (f *threadingFakeVM) ThreadStats() builtin.ThreadStats {
	return builtin.ThreadStats{Pending: 0}
}

func TestThreadSpawnNamedDeepCopiesArgs(t *testing.T) {
	r := builtin.Default()
	vm := &threadingFakeVM{}
	out, err := r.Call(vm, "thread_spawn_named", []value.Value{value.MakeString("worker"), value.MakeString("compute"), value.MakeInt64(42)})
	require.NoError(t, err)
	handle, _ := value.AsInt(out)
	assert.Equal(t, int64(1), handle)
	assert.Equal(t, []string{"compute"}, vm.spawned)
}

func TestThreadSpawnWithoutHostReportsError(t *testing.T) {
	r := builtin.Default()
	vm := &fakeVM{}
	_, err := r.Call(vm, "thread_spawn_named", []value.Value{value.MakeString("w"), value.MakeString("compute")})
	require.Error(t, err)
}
