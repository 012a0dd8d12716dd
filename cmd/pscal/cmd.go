// Command pscal is the shared CLI driver spec §4.9 describes, exercised
// directly against the pseudo-assembly text format internal/bytecode's
// Asm/Dasm implements rather than a concrete surface grammar (frontends
// are out of scope per spec.md §1). Its Cmd/Main/buildCmds shape follows
// the teacher's internal/maincmd.Cmd almost field-for-field.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"
)

const binName = "pscal"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> [<path>...]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> <path> [-- <arg>...]
       %[1]s -h|--help
       %[1]s -v|--version

Compiler, disassembler and VM for the PSCAL bytecode core.

The <command> can be one of:
       run                       Assemble (cache-assisted) and execute a
                                  pseudo-assembly source file.
       asm                       Assemble a source file and warm the disk
                                  cache without executing it.
       disasm                    Print the canonical disassembly of a
                                  source file.
       cache list                List entries in the bytecode cache.
       cache clear               Remove every entry from the bytecode cache.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.

Valid flag options for the <run>/<asm>/<disasm> commands are:
       --no-cache                Skip cache lookup and save.
       --verbose                 Print the cache hit/miss line to stderr.
       --dump-bytecode           Print the disassembly before running.
       --dump-bytecode-only      Print the disassembly and exit without running.
       --dump-ext-builtins       List the registered "ext.*" builtins and exit.
       --vm-trace-head=N         Trace the first N executed instructions to stderr.
`, binName)
)

// Cmd mirrors the teacher's maincmd.Cmd: a flat struct of flag-tagged
// fields, populated by mainer.Parser, dispatched to one method per
// subcommand via buildCmds' reflection.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	NoCache          bool `flag:"no-cache"`
	Verbose          bool `flag:"verbose"`
	DumpBytecode     bool `flag:"dump-bytecode"`
	DumpBytecodeOnly bool `flag:"dump-bytecode-only"`
	DumpExtBuiltins  bool `flag:"dump-ext-builtins"`
	VMTraceHead      int  `flag:"vm-trace-head"`

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) { c.args = args }
func (c *Cmd) SetFlags(flags map[string]bool) { c.flags = flags }

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]
	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	if cmdName == "run" || cmdName == "asm" || cmdName == "disasm" {
		if len(c.args[1:]) == 0 {
			return fmt.Errorf("%s: a source path is required", cmdName)
		}
	}
	if cmdName == "cache" && len(c.args[1:]) == 0 {
		return errors.New("cache: expected a subcommand (list|clear)")
	}
	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{EnvVars: false, EnvPrefix: binName + "_"}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		return exitCodeFor(err)
	}
	return mainer.Success
}

// exitCodeFor maps a command error onto spec §6's CLI exit codes: 1 for a
// compile/runtime error, 2 for a usage error. halt(n)'s own exit code is
// handled separately in run.go, since it is not an error at all.
func exitCodeFor(err error) mainer.ExitCode {
	var usage *usageError
	if errors.As(err, &usage) {
		return mainer.ExitCode(2)
	}
	return mainer.Failure
}

// usageError marks a command error as spec §6's "usage error" (exit code
// 2) rather than a compile/runtime error (exit code 1).
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

// buildCmds mirrors maincmd.buildCmds exactly: any *Cmd method shaped like
// func(context.Context, mainer.Stdio, []string) error becomes a subcommand
// named after its lowercased method name.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
