package cache

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// IndexEntry is a single human-inspectable record in the sidecar manifest:
// purely informational, never consulted by Load/Save (spec §4.7's
// content-addressed protocol stays exactly as specified). It exists so
// `pscal cache list`/`clear` has something to report without re-parsing
// every .bc file's binary header.
type IndexEntry struct {
	Key        string    `yaml:"key"`
	SourcePath string    `yaml:"source_path"`
	CompilerID string    `yaml:"compiler_id"`
	LastWrite  time.Time `yaml:"last_write"`
}

type Index struct {
	Entries []IndexEntry `yaml:"entries"`
}

func indexPath(dir string) string { return filepath.Join(dir, "index.yaml") }

// LoadIndex reads the sidecar manifest, returning an empty Index if it does
// not yet exist.
func LoadIndex() (*Index, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(indexPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return &Index{}, nil
		}
		return nil, err
	}
	var idx Index
	if err := yaml.Unmarshal(b, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// Record appends (or updates) the manifest entry for sourcePath, called
// right after a successful Save so `cache list` reflects reality without
// having to stat every .bc file.
func Record(sourcePath, compilerID string) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	cachePath, err := pathFor(dir, sourcePath)
	if err != nil {
		return err
	}
	key := filepath.Base(cachePath)

	idx, err := LoadIndex()
	if err != nil {
		return err
	}
	entry := IndexEntry{Key: key, SourcePath: sourcePath, CompilerID: compilerID, LastWrite: time.Now()}
	replaced := false
	for i, e := range idx.Entries {
		if e.Key == key {
			idx.Entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		idx.Entries = append(idx.Entries, entry)
	}

	b, err := yaml.Marshal(idx)
	if err != nil {
		return err
	}
	return os.WriteFile(indexPath(dir), b, 0o600)
}

// Clear removes every cached chunk and resets the sidecar manifest, backing
// `pscal cache clear`.
func Clear() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	dents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, d := range dents {
		if filepath.Ext(d.Name()) == ".bc" || d.Name() == "index.yaml" {
			if err := os.Remove(filepath.Join(dir, d.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}
