package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/pscal-lang/pscal/internal/bootstrap"
	"github.com/pscal-lang/pscal/internal/builtin"
	"github.com/pscal-lang/pscal/internal/bytecode"
	"github.com/pscal-lang/pscal/internal/cache"
	"github.com/pscal-lang/pscal/internal/symbol"
	"github.com/pscal-lang/pscal/internal/vm"
)

// Run assembles args[0]'s pseudo-assembly source (cache-assisted unless
// --no-cache) and executes it, implementing spec §6's CLI contract: exit 0
// on success, 1 on a compile/runtime error, and halt(n)'s exit code when
// the program called halt.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	if c.DumpExtBuiltins {
		for _, name := range builtin.ExtNames(builtin.Default()) {
			fmt.Fprintln(stdio.Stdout, name)
		}
		return nil
	}

	sourcePath := args[0]
	chunk, hit, err := loadOrAssemble(sourcePath, c.NoCache)
	if err != nil {
		return err
	}
	if c.Verbose {
		fmt.Fprintf(stdio.Stderr, "pscal: cache hit=%t source=%s\n", hit, sourcePath)
	}

	if c.DumpBytecode || c.DumpBytecodeOnly {
		text, err := bytecode.Dasm(chunk)
		if err != nil {
			return err
		}
		fmt.Fprint(stdio.Stdout, string(text))
		if c.DumpBytecodeOnly {
			return nil
		}
	}

	th := vm.NewThread(chunk, symbol.NewScope(), builtin.Default())
	th.Stdout = stdio.Stdout
	th.Stderr = stdio.Stderr
	th.Stdin = stdio.Stdin
	th.TraceHead = c.VMTraceHead

	go func() {
		<-ctx.Done()
		th.Cancel("interrupt")
	}()

	runErr := th.Run()
	if runErr == nil {
		return nil
	}

	var exit *vm.ExitError
	if errors.As(runErr, &exit) {
		if exit.Code != 0 {
			os.Exit(exit.Code)
		}
		return nil
	}

	var abort *vm.AbortError
	if !errors.As(runErr, &abort) {
		fmt.Fprintln(stdio.Stderr, runErr)
	}
	return runErr
}

// loadOrAssemble consults the disk cache for sourcePath unless noCache is
// set, falling back to assembling the source text (spec §4.7's load/save
// protocol, exercised here against pre-compiled assembly text rather than
// an AST since cmd/pscal has no frontend of its own).
func loadOrAssemble(sourcePath string, noCache bool) (*bytecode.Chunk, bool, error) {
	info, statErr := os.Stat(sourcePath)
	if statErr != nil {
		return nil, false, statErr
	}
	deps := []cache.Dependency{{Path: sourcePath, ModTime: info.ModTime()}}

	if !noCache {
		if chunk, err := cache.Load(sourcePath, bootstrap.CompilerID, deps); err == nil {
			return chunk, true, nil
		}
	}

	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, false, err
	}
	chunk, err := bytecode.Asm(src)
	if err != nil {
		return nil, false, err
	}

	if !noCache {
		if err := cache.Save(sourcePath, bootstrap.CompilerID, deps, chunk); err == nil {
			_ = cache.Record(sourcePath, bootstrap.CompilerID)
		}
	}
	return chunk, false, nil
}
