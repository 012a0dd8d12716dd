package main

import (
	"context"
	"fmt"

	"github.com/mna/mainer"
	"github.com/pscal-lang/pscal/internal/bytecode"
	"github.com/pscal-lang/pscal/internal/cache"
)

// Asm assembles args[0] and warms the disk cache without executing it,
// exercising internal/cache's Save path on its own (spec §4.7's load/save
// protocol) the way a build step would ahead of a later `run`.
func (c *Cmd) Asm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	sourcePath := args[0]
	_, hit, err := loadOrAssemble(sourcePath, c.NoCache)
	if err != nil {
		return err
	}
	if c.Verbose {
		fmt.Fprintf(stdio.Stderr, "pscal: cache hit=%t source=%s\n", hit, sourcePath)
	}
	return nil
}

// Disasm loads args[0] from cache (or assembles it on a miss) and prints
// its canonical pseudo-assembly disassembly, without running the VM.
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	sourcePath := args[0]
	chunk, _, err := loadOrAssemble(sourcePath, c.NoCache)
	if err != nil {
		return err
	}
	text, err := bytecode.Dasm(chunk)
	if err != nil {
		return err
	}
	fmt.Fprint(stdio.Stdout, string(text))
	return nil
}

// Cache dispatches `cache list` and `cache clear`, backed by the bytecode
// cache's YAML sidecar index (spec §4.7's cache is content-addressed and
// never consults this manifest itself; it exists purely for this command).
func (c *Cmd) Cache(ctx context.Context, stdio mainer.Stdio, args []string) error {
	switch args[0] {
	case "list":
		idx, err := cache.LoadIndex()
		if err != nil {
			return err
		}
		if len(idx.Entries) == 0 {
			fmt.Fprintln(stdio.Stderr, "pscal: cache is empty")
			return nil
		}
		for _, e := range idx.Entries {
			fmt.Fprintf(stdio.Stdout, "%s\t%s\t%s\t%s\n",
				e.Key, e.SourcePath, e.CompilerID, e.LastWrite.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	case "clear":
		if err := cache.Clear(); err != nil {
			return err
		}
		if c.Verbose {
			fmt.Fprintln(stdio.Stderr, "pscal: cache cleared")
		}
		return nil
	default:
		return &usageError{msg: fmt.Sprintf("cache: unknown subcommand %q (want list|clear)", args[0])}
	}
}
