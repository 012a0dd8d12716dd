package cache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pscal-lang/pscal/internal/bytecode"
	"github.com/pscal-lang/pscal/internal/cache"
	"github.com/pscal-lang/pscal/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return dir
}

func sampleChunk(t *testing.T) *bytecode.Chunk {
	t.Helper()
	c := bytecode.NewChunk()
	idx, err := c.AddConstant(value.MakeInt64(7))
	require.NoError(t, err)
	c.EmitU8(bytecode.CONSTANT, uint8(idx), 1)
	c.EmitSimple(bytecode.HALT, 1)
	c.EntryAddr = 0
	return c
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	withHome(t)
	src := filepath.Join(t.TempDir(), "prog.pas")
	require.NoError(t, os.WriteFile(src, []byte("program p;"), 0o644))

	chunk := sampleChunk(t)
	require.NoError(t, cache.Save(src, "pascal", nil, chunk))

	got, err := cache.Load(src, "pascal", nil)
	require.NoError(t, err)
	assert.Equal(t, chunk.Code, got.Code)
	assert.Equal(t, len(chunk.Constants), len(got.Constants))
	iv, _ := value.AsInt(got.Constants[0])
	assert.Equal(t, int64(7), iv)
}

func TestLoadMissesOnCompilerIDMismatch(t *testing.T) {
	withHome(t)
	src := filepath.Join(t.TempDir(), "prog.c")
	require.NoError(t, os.WriteFile(src, []byte("int main(){}"), 0o644))

	require.NoError(t, cache.Save(src, "clike", nil, sampleChunk(t)))

	_, err := cache.Load(src, "pascal", nil)
	assert.ErrorIs(t, err, cache.ErrStale)
}

func TestLoadMissesWhenSourceIsNewerThanCache(t *testing.T) {
	withHome(t)
	src := filepath.Join(t.TempDir(), "prog.pas")
	require.NoError(t, os.WriteFile(src, []byte("program p;"), 0o644))
	require.NoError(t, cache.Save(src, "pascal", nil, sampleChunk(t)))

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(src, future, future))

	_, err := cache.Load(src, "pascal", nil)
	assert.ErrorIs(t, err, cache.ErrStale)
}

func TestLoadMissesOnStaleDependency(t *testing.T) {
	withHome(t)
	src := filepath.Join(t.TempDir(), "prog.pas")
	require.NoError(t, os.WriteFile(src, []byte("program p;"), 0o644))

	dep := cache.Dependency{Path: "unit.pas", ModTime: time.Now().Add(time.Hour)}
	require.NoError(t, cache.Save(src, "pascal", []cache.Dependency{dep}, sampleChunk(t)))

	_, err := cache.Load(src, "pascal", []cache.Dependency{dep})
	assert.ErrorIs(t, err, cache.ErrStale)
}

func TestRecordAndClear(t *testing.T) {
	withHome(t)
	src := filepath.Join(t.TempDir(), "prog.pas")
	require.NoError(t, os.WriteFile(src, []byte("program p;"), 0o644))
	require.NoError(t, cache.Save(src, "pascal", nil, sampleChunk(t)))
	require.NoError(t, cache.Record(src, "pascal"))

	idx, err := cache.LoadIndex()
	require.NoError(t, err)
	require.Len(t, idx.Entries, 1)
	assert.Equal(t, "pascal", idx.Entries[0].CompilerID)

	require.NoError(t, cache.Clear())
	idx, err = cache.LoadIndex()
	require.NoError(t, err)
	assert.Empty(t, idx.Entries)
}

func TestArrayConstantRoundTrips(t *testing.T) {
	withHome(t)
	src := filepath.Join(t.TempDir(), "prog.pas")
	require.NoError(t, os.WriteFile(src, []byte("program p;"), 0o644))

	arr := value.MakeArray([]value.Dim{{Lower: 0, Upper: 2}}, value.KindInt64,
		[]value.Value{value.MakeInt64(1), value.MakeInt64(2), value.MakeInt64(3)})
	c := bytecode.NewChunk()
	_, err := c.AddConstant(arr)
	require.NoError(t, err)
	c.EmitSimple(bytecode.HALT, 1)

	require.NoError(t, cache.Save(src, "pascal", nil, c))
	got, err := cache.Load(src, "pascal", nil)
	require.NoError(t, err)
	require.Len(t, got.Constants, 1)
	assert.Len(t, got.Constants[0].Elems(), 3)
}
