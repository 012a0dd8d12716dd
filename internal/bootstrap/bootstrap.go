// Package bootstrap implements the frontend-neutral driver spec §4.9
// describes: given an already-parsed, type-annotated AST and a symbol
// scope, it consults the bytecode cache, falls back to optimize+codegen on
// a miss, saves the result, and runs the VM to completion. Every concrete
// frontend (Pascal/clike/rea/shell, all out of scope per spec.md §1) is
// expected to call into this package after its own parse/resolve phases.
// Since no surface grammar ships here, this package's own tests drive it
// with an AST built through internal/ast's constructor helpers; cmd/pscal
// runs pseudo-assembly directly and shares only CompilerID with it.
package bootstrap

import (
	"errors"
	"io"
	"os"
	"os/signal"

	"github.com/pscal-lang/pscal/internal/ast"
	"github.com/pscal-lang/pscal/internal/builtin"
	"github.com/pscal-lang/pscal/internal/bytecode"
	"github.com/pscal-lang/pscal/internal/cache"
	"github.com/pscal-lang/pscal/internal/optimizer"
	"github.com/pscal-lang/pscal/internal/symbol"
	"github.com/pscal-lang/pscal/internal/vm"
)

// CompilerID identifies the codegen/opcode version a cache entry was built
// with; bump it whenever Chunk's wire shape or opcode semantics change so
// stale entries from an older build of this package are never trusted.
const CompilerID = "pscal-core-1"

// Options configures one Run call, covering the bootstrap responsibilities
// of spec §4.9 item 1 (CLI options) that reach this far below the CLI
// layer: whether to consult/write the cache, tracing, and step budgets.
type Options struct {
	SourcePath string
	NoCache    bool
	Verbose    bool
	TraceHead  int
	MaxSteps   int64

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	// Deps lists additional files (uses/import targets) whose mtimes gate
	// cache freshness alongside SourcePath itself.
	Deps []cache.Dependency
}

// Result reports what Run did, for a CLI layer to print under --verbose or
// to use for exit-code selection (halt(n) vs. a plain runtime error).
type Result struct {
	CacheHit       bool
	OptimizerStats optimizer.Stats
	ExitCode       int
}

// Run drives parse-result -> optimize -> cache-lookup -> (on miss) codegen
// -> cache-save -> VM execute (spec §4.9 items 3-4), given root already
// past ast.Verify with every node type-annotated. registry may be nil, in
// which case builtin.Default() is used.
func Run(opts Options, root *ast.Node, scope *symbol.Scope, registry *builtin.Registry) (Result, error) {
	if registry == nil {
		registry = builtin.Default()
	}

	var res Result

	chunk, hit, err := loadOrCompile(opts, root, scope, &res)
	if err != nil {
		return res, err
	}
	res.CacheHit = hit

	th := vm.NewThread(chunk, scope, registry)
	if opts.Stdout != nil {
		th.Stdout = opts.Stdout
	}
	if opts.Stderr != nil {
		th.Stderr = opts.Stderr
	}
	if opts.Stdin != nil {
		th.Stdin = opts.Stdin
	}
	th.TraceHead = opts.TraceHead
	th.MaxSteps = opts.MaxSteps

	cancelOnSignal(th)

	runErr := th.Run()
	if runErr == nil {
		return res, nil
	}

	var exit *vm.ExitError
	if errors.As(runErr, &exit) {
		res.ExitCode = exit.Code
		return res, nil
	}
	return res, runErr
}

// loadOrCompile implements spec §4.9 item 4's cache-lookup/codegen split:
// a fresh cache entry is used as-is; a miss (or --no-cache) rewrites the
// AST through the optimizer and compiles it, then saves the result unless
// --no-cache was given.
func loadOrCompile(opts Options, root *ast.Node, scope *symbol.Scope, res *Result) (*bytecode.Chunk, bool, error) {
	if !opts.NoCache && opts.SourcePath != "" {
		if chunk, err := cache.Load(opts.SourcePath, CompilerID, opts.Deps); err == nil {
			return chunk, true, nil
		}
	}

	optimized, stats := optimizer.Optimize(root)
	res.OptimizerStats = stats

	chunk, err := bytecode.Compile(optimized, scope)
	if err != nil {
		return nil, false, err
	}

	if !opts.NoCache && opts.SourcePath != "" {
		_ = cache.Save(opts.SourcePath, CompilerID, opts.Deps, chunk)
	}
	return chunk, false, nil
}

// cancelOnSignal installs the interrupt handler spec §4.9 item 5 calls for,
// mapping the first SIGINT to a cooperative VM abort exactly once per
// Thread (a second SIGINT falls through to the process default, the way a
// stuck builtin that never polls Aborted() should still be killable).
func cancelOnSignal(th *vm.Thread) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	go func() {
		if _, ok := <-ch; ok {
			th.Cancel("interrupt")
			signal.Stop(ch)
		}
	}()
}
