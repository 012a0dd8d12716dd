// Package cache implements the disk-backed bytecode cache (spec §4.7): a
// content-addressed store under $HOME/.pscal_cache keyed by the hash of a
// source file's absolute path, holding a versioned, magic-tagged blob of the
// compiled Chunk plus enough metadata (compiler-id, dependency mtimes) to
// decide whether a cached entry is still fresh.
package cache

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pscal-lang/pscal/internal/bytecode"
	"github.com/pscal-lang/pscal/internal/value"
)

const (
	magic          = "PSBC"
	formatVersion  = uint32(1)
	cacheDirName   = ".pscal_cache"
)

// ErrStale is returned by Load when the cache entry exists but fails a
// freshness check (magic/version/compiler-id mismatch, or a dependency is
// newer than the cache file); callers should treat it exactly like a miss
// and recompile.
var ErrStale = errors.New("cache: stale or incompatible entry")

// Dependency is one resolved path (a uses/import target, or the frontend
// binary itself) whose modification time gates cache freshness.
type Dependency struct {
	Path    string
	ModTime time.Time
}

// Dir returns the cache directory, creating it if necessary.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, cacheDirName)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return "", err
	}
	return dir, nil
}

// pathFor returns the cache file path for sourcePath, named after an FNV-1a
// hash of its absolute form (original_source/src/core/cache.c's
// hash_path/build_cache_path, ported from the FNV-1a constants it hard-codes
// to Go's stdlib hash/fnv implementation of the same algorithm).
func pathFor(dir, sourcePath string) (string, error) {
	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return "", err
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(abs))
	return filepath.Join(dir, fmt.Sprintf("%d.bc", h.Sum32())), nil
}

// Load attempts to read a fresh cache entry for sourcePath. It returns
// ErrStale (never a bare os.ErrNotExist) on any miss so callers have one
// code path for "recompile," per spec §4.7's load/save contract.
func Load(sourcePath, compilerID string, deps []Dependency) (*bytecode.Chunk, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	cachePath, err := pathFor(dir, sourcePath)
	if err != nil {
		return nil, err
	}

	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return nil, ErrStale
	}
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return nil, ErrStale
	}
	if cacheInfo.ModTime().Before(srcInfo.ModTime()) {
		return nil, ErrStale
	}
	for _, d := range deps {
		if cacheInfo.ModTime().Before(d.ModTime) {
			return nil, ErrStale
		}
	}

	f, err := os.Open(cachePath)
	if err != nil {
		return nil, ErrStale
	}
	defer f.Close()

	r := bufio.NewReader(f)
	chunk, fileCompilerID, fileDeps, err := decode(r)
	if err != nil {
		return nil, ErrStale
	}
	if fileCompilerID != compilerID {
		return nil, ErrStale
	}
	if len(fileDeps) != len(deps) {
		return nil, ErrStale
	}
	for i, d := range deps {
		if fileDeps[i].Path != d.Path || !fileDeps[i].ModTime.Equal(d.ModTime) {
			return nil, ErrStale
		}
	}
	return chunk, nil
}

// Save writes chunk to the cache atomically (temp file + rename), so a
// concurrent Load never observes a torn write; the last writer among racing
// saves simply wins (spec §4.7 "Concurrency").
func Save(sourcePath, compilerID string, deps []Dependency, chunk *bytecode.Chunk) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	cachePath, err := pathFor(dir, sourcePath)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "tmp-*.bc")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	w := bufio.NewWriter(tmp)
	if err := encode(w, compilerID, deps, chunk); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, cachePath)
}

func encode(w io.Writer, compilerID string, deps []Dependency, chunk *bytecode.Chunk) error {
	if _, err := io.WriteString(w, magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, formatVersion); err != nil {
		return err
	}
	if err := writeString(w, compilerID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(deps))); err != nil {
		return err
	}
	for _, d := range deps {
		if err := writeString(w, d.Path); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, d.ModTime.UnixNano()); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, int32(chunk.EntryAddr)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(chunk.Code))); err != nil {
		return err
	}
	if _, err := w.Write(chunk.Code); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(chunk.Lines))); err != nil {
		return err
	}
	for _, line := range chunk.Lines {
		if err := binary.Write(w, binary.LittleEndian, int32(line)); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(chunk.Constants))); err != nil {
		return err
	}
	for _, c := range chunk.Constants {
		if err := writeValue(w, c); err != nil {
			return err
		}
	}
	return nil
}

func decode(r io.Reader) (*bytecode.Chunk, string, []Dependency, error) {
	magicBuf := make([]byte, len(magic))
	if _, err := io.ReadFull(r, magicBuf); err != nil {
		return nil, "", nil, err
	}
	if string(magicBuf) != magic {
		return nil, "", nil, fmt.Errorf("cache: bad magic %q", magicBuf)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, "", nil, err
	}
	if version != formatVersion {
		return nil, "", nil, fmt.Errorf("cache: unsupported version %d", version)
	}

	compilerID, err := readString(r)
	if err != nil {
		return nil, "", nil, err
	}

	var depCount uint32
	if err := binary.Read(r, binary.LittleEndian, &depCount); err != nil {
		return nil, "", nil, err
	}
	deps := make([]Dependency, depCount)
	for i := range deps {
		path, err := readString(r)
		if err != nil {
			return nil, "", nil, err
		}
		var nanos int64
		if err := binary.Read(r, binary.LittleEndian, &nanos); err != nil {
			return nil, "", nil, err
		}
		deps[i] = Dependency{Path: path, ModTime: time.Unix(0, nanos)}
	}

	chunk := bytecode.NewChunk()
	var entry int32
	if err := binary.Read(r, binary.LittleEndian, &entry); err != nil {
		return nil, "", nil, err
	}
	chunk.EntryAddr = int(entry)

	var codeLen uint32
	if err := binary.Read(r, binary.LittleEndian, &codeLen); err != nil {
		return nil, "", nil, err
	}
	chunk.Code = make([]byte, codeLen)
	if _, err := io.ReadFull(r, chunk.Code); err != nil {
		return nil, "", nil, err
	}

	var lineCount uint32
	if err := binary.Read(r, binary.LittleEndian, &lineCount); err != nil {
		return nil, "", nil, err
	}
	chunk.Lines = make([]int, lineCount)
	for i := range chunk.Lines {
		var line int32
		if err := binary.Read(r, binary.LittleEndian, &line); err != nil {
			return nil, "", nil, err
		}
		chunk.Lines[i] = int(line)
	}

	var constCount uint32
	if err := binary.Read(r, binary.LittleEndian, &constCount); err != nil {
		return nil, "", nil, err
	}
	chunk.Constants = make([]value.Value, 0, constCount)
	for i := uint32(0); i < constCount; i++ {
		v, err := readValue(r)
		if err != nil {
			return nil, "", nil, err
		}
		chunk.Constants = append(chunk.Constants, v)
	}

	return chunk, compilerID, deps, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
