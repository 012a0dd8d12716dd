// Package config binds the environment variables spec §6 says the core
// consumes onto a struct, the way the teacher's own CLI dependency
// (github.com/mna/mainer) resolves flags from the environment internally.
// Here the binding is explicit: a caller reads a single, typed Config
// instead of scattering os.Getenv calls. cmd/pscal and internal/bootstrap
// do not call Load.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v6"
)

// Config holds every environment variable the core reads (spec §6), plus
// the generic per-frontend "<FRONTEND>_LIB_DIR" vars that Load scans for
// separately since their name isn't fixed.
type Config struct {
	Home              string `env:"HOME"`
	StrictSuccess     bool   `env:"PSCAL_STRICT_SUCCESS"`
	InitTerm          bool   `env:"PSCAL_INIT_TERM"`
	RunConfig         string `env:"PSCAL_RUN_CONFIG"`
	RunBinary         string `env:"PSCAL_RUN_BINARY"`
	RunArguments      string `env:"PSCAL_RUN_ARGUMENTS"`
	RunWorkingDir     string `env:"PSCAL_RUN_WORKING_DIRECTORY"`

	// LibDirs maps a frontend name ("CLIKE", "PASCAL", "REA", "SHELL", ...)
	// to the value of its "<FRONTEND>_LIB_DIR" variable, populated by Load
	// from the raw environment rather than a fixed struct field, since the
	// set of frontends is open-ended (spec.md §1 keeps frontends outside the
	// core's scope).
	LibDirs map[string]string
}

// Load reads Config from environ ("KEY=value" entries) when it is non-nil,
// ignoring the process environment entirely; tests use this to avoid
// mutating the real environment. A nil environ reads the process
// environment instead.
func Load(environ []string) (*Config, error) {
	cfg := &Config{}
	envMap := parseEnviron(environ)
	opts := env.Options{Environment: envMap}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.LibDirs = libDirs(envMap)
	return cfg, nil
}

func parseEnviron(environ []string) map[string]string {
	if environ == nil {
		return nil
	}
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			m[k] = v
		}
	}
	return m
}

// libDirs scans env for "<NAME>_LIB_DIR" keys (spec §6's "per-frontend lib
// directories (e.g. CLIKE_LIB_DIR)"); when env is nil, the real process
// environment is consulted instead.
func libDirs(env map[string]string) map[string]string {
	dirs := make(map[string]string)
	scan := func(key, val string) {
		const suffix = "_LIB_DIR"
		if strings.HasSuffix(key, suffix) && len(key) > len(suffix) {
			dirs[strings.TrimSuffix(key, suffix)] = val
		}
	}
	if env != nil {
		for k, v := range env {
			scan(k, v)
		}
		return dirs
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			scan(k, v)
		}
	}
	return dirs
}
