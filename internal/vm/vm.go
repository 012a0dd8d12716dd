// Package vm implements the register-less stack machine that executes a
// bytecode.Chunk (spec §4.8): a value stack and a call-frame stack, both
// fixed-size and preallocated the way the teacher's lang/machine.run
// preallocates locals+operand space per call, globals/constants/procedures
// resolved through a *symbol.Scope, and CALL_BUILTIN/THREAD_SPAWN dispatched
// through a *builtin.Registry.
package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/pscal-lang/pscal/internal/builtin"
	"github.com/pscal-lang/pscal/internal/bytecode"
	"github.com/pscal-lang/pscal/internal/symbol"
	"github.com/pscal-lang/pscal/internal/value"
)

const (
	maxStackDepth = 1 << 16
	maxFrameDepth = 1 << 10
)

// Thread is one execution context: a value stack, a call-frame stack, and
// the shared, read-mostly tables (chunk, scope, builtin registry) it runs
// against. A Thread spawned by THREAD_SPAWN/thread_spawn_named gets its own
// Thread sharing the same Chunk/Scope/Builtins but an independent stack and
// abort flag (spec §4.8 "Threading": "no ownership transfer").
type Thread struct {
	Name  string
	Chunk *bytecode.Chunk
	Scope *symbol.Scope

	Builtins *builtin.Registry

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	// MaxSteps bounds the number of instructions this Thread will execute
	// before it cancels itself with a runtime error; zero means unbounded.
	MaxSteps int64

	// TraceHead, when > 0, makes Run emit one line to Stderr per
	// instruction for the first TraceHead instructions (spec §4.8
	// "Tracing", surfaced as --vm-trace-head=N).
	TraceHead int

	ctx    context.Context
	cancel context.CancelCauseFunc

	abortRequested atomic.Bool

	steps     int64
	traced    int
	currentIP int

	stack []value.Value
	sp    int

	frames []Frame
	fp     int

	threads *threadTable
}

// NewThread returns a ready-to-run Thread over chunk/scope/registry, with
// Stdout/Stderr/Stdin defaulted to the process streams.
func NewThread(chunk *bytecode.Chunk, scope *symbol.Scope, registry *builtin.Registry) *Thread {
	ctx, cancel := context.WithCancelCause(context.Background())
	th := &Thread{
		Chunk:    chunk,
		Scope:    scope,
		Builtins: registry,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Stdin:    os.Stdin,
		ctx:      ctx,
		cancel:   cancel,
		stack:    make([]value.Value, maxStackDepth),
		frames:   make([]Frame, maxFrameDepth),
	}
	th.threads = newThreadTable(th)
	return th
}

// Aborted reports whether Cancel (called on SIGINT) has asked this thread
// to stop (spec §4.8 "Cancellation"); thread_cancel sets a worker's own
// flag instead, and a step-budget overrun returns a RuntimeError without
// setting it. Builtins that
// loop internally (e.g. ext.chudnovsky with a large term count) should poll
// it themselves if they want to be interruptible mid-call.
func (th *Thread) Aborted() bool { return th.abortRequested.Load() }

// RuntimeError builds the *RuntimeError carrying the chunk line active at
// the current instruction pointer, satisfying builtin.VM.
func (th *Thread) RuntimeError(format string, args ...any) error {
	line := 0
	if th.Chunk != nil && th.currentIP < len(th.Chunk.Lines) {
		line = th.Chunk.Lines[th.currentIP]
	}
	return &RuntimeError{Kind: "runtime", Message: fmt.Sprintf(format, args...), Line: line}
}

// Cancel requests cooperative shutdown: the dispatch loop observes it at
// the next instruction boundary and returns an *AbortError.
func (th *Thread) Cancel(reason string) {
	th.abortRequested.Store(true)
	th.cancel(fmt.Errorf("%s", reason))
}

func (th *Thread) push(v value.Value) { th.stack[th.sp] = v; th.sp++ }
func (th *Thread) pop() value.Value   { th.sp--; return th.stack[th.sp] }
func (th *Thread) peek(back int) value.Value { return th.stack[th.sp-1-back] }

// Run executes the chunk's program body from EntryAddr (spec §4.5's
// top-level statement body, as opposed to a procedure reached only via
// CALL) until it falls off the end of Code or a HALT/error/abort stops it.
func (th *Thread) Run() error {
	th.frames[0] = Frame{ReturnIP: -1, BasePointer: 0, LocalsCount: 0, ProcedureName: "program"}
	th.fp = 1
	return th.dispatch(th.Chunk.EntryAddr)
}

// RunProcedure invokes a single defined procedure/function by symbol,
// pushing args as its first locals (spec §4.8 "Call frame"); used by
// the threading worker model to run a called-by-name procedure on a fresh
// Thread rather than CALL_BUILTIN's host-function dispatch.
func (th *Thread) RunProcedure(sym *symbol.Symbol, args []value.Value) (value.Value, error) {
	base := th.sp
	for _, a := range args {
		th.push(a)
	}
	th.frames[0] = Frame{ReturnIP: -1, BasePointer: base, LocalsCount: sym.LocalsCnt, ProcedureName: sym.Name}
	th.fp = 1
	th.sp = base + sym.LocalsCnt
	if err := th.dispatch(sym.Address); err != nil {
		return value.Value{}, err
	}
	if th.sp > base {
		return th.pop(), nil
	}
	return value.MakeNil(), nil
}

// dispatch is the instruction loop, grounded on the teacher's
// lang/machine.run: a per-instruction step count, a cancellation poll, a
// decode of the opcode and its operands, and a big switch. Unlike the
// teacher's per-function Funcode+locals-relative stack, every procedure here
// shares one Chunk and one flat stack; CALL pushes a Frame whose
// BasePointer marks where the callee's locals begin.
func (th *Thread) dispatch(ip int) error {
	code := th.Chunk.Code
	for ip < len(code) {
		select {
		case <-th.ctx.Done():
			return &AbortError{Reason: fmt.Sprint(context.Cause(th.ctx))}
		default:
		}
		if th.abortRequested.Load() {
			return &AbortError{Reason: "abort requested"}
		}

		th.steps++
		if th.MaxSteps > 0 && th.steps > th.MaxSteps {
			return th.RuntimeError("step budget of %d instructions exceeded", th.MaxSteps)
		}

		op := bytecode.Opcode(code[ip])
		th.currentIP = ip
		if th.TraceHead > 0 && th.traced < th.TraceHead {
			fmt.Fprintf(th.Stderr, "trace %04d: %-18s sp=%d fp=%d\n", ip, op, th.sp, th.fp)
			th.traced++
		}

		next, err := th.step(ip, op)
		if err != nil {
			return err
		}
		if next < 0 {
			// RETURN/HALT from the outermost frame: stop cleanly.
			return nil
		}
		ip = next
	}
	return nil
}

// step executes the single instruction at ip and returns the address of
// the next instruction to execute, or -1 if the program has terminated.
func (th *Thread) step(ip int, op bytecode.Opcode) (int, error) {
	c := th.Chunk
	switch op {
	case bytecode.NOP:
		return ip + 1, nil

	case bytecode.POP:
		th.pop()
		return ip + 1, nil

	case bytecode.DUP:
		th.push(th.peek(0))
		return ip + 1, nil

	case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV, bytecode.INT_DIV, bytecode.MOD,
		bytecode.AND, bytecode.OR, bytecode.XOR:
		b := th.pop()
		a := th.pop()
		v, err := arith(op, a, b)
		if err != nil {
			return 0, th.RuntimeError("%s", err)
		}
		th.push(v)
		return ip + 1, nil

	case bytecode.EQUAL, bytecode.NOT_EQUAL, bytecode.LESS, bytecode.LESS_EQUAL,
		bytecode.GREATER, bytecode.GREATER_EQUAL:
		b := th.pop()
		a := th.pop()
		ord, err := value.Compare(a, b)
		if err != nil {
			return 0, th.RuntimeError("%s", err)
		}
		th.push(value.MakeBool(relates(op, ord)))
		return ip + 1, nil

	case bytecode.NEGATE:
		a := th.pop()
		v, err := negate(a)
		if err != nil {
			return 0, th.RuntimeError("%s", err)
		}
		th.push(v)
		return ip + 1, nil

	case bytecode.NOT:
		b, err := value.AsBool(th.pop())
		if err != nil {
			return 0, th.RuntimeError("%s", err)
		}
		th.push(value.MakeBool(!b))
		return ip + 1, nil

	case bytecode.CONSTANT:
		idx := c.ReadU8(ip + 1)
		th.push(c.Constants[idx])
		return ip + 2, nil

	case bytecode.GET_LOCAL:
		slot := c.ReadU8(ip + 1)
		th.push(th.stack[th.frames[th.fp-1].BasePointer+int(slot)])
		return ip + 2, nil

	case bytecode.SET_LOCAL:
		slot := c.ReadU8(ip + 1)
		th.stack[th.frames[th.fp-1].BasePointer+int(slot)] = th.pop()
		return ip + 2, nil

	case bytecode.GET_LOCAL_ADDRESS:
		slot := c.ReadU8(ip + 1)
		th.push(value.MakePointer(&th.stack[th.frames[th.fp-1].BasePointer+int(slot)]))
		return ip + 2, nil

	case bytecode.INIT_LOCAL_POINTER:
		slot := c.ReadU8(ip + 1)
		th.stack[th.frames[th.fp-1].BasePointer+int(slot)] = th.pop()
		return ip + 2, nil

	case bytecode.GET_GLOBAL:
		idx := c.ReadU16(ip + 1)
		name := value.AsString(c.Constants[idx])
		sym, ok := th.Scope.Globals.Lookup(name)
		if !ok {
			return 0, th.RuntimeError("undefined global %q", name)
		}
		th.push(symbol.Get(sym))
		return ip + 3, nil

	case bytecode.SET_GLOBAL:
		idx := c.ReadU16(ip + 1)
		name := value.AsString(c.Constants[idx])
		sym, ok := th.Scope.Globals.Lookup(name)
		if !ok {
			sym = &symbol.Symbol{Name: name}
			if err := th.Scope.Globals.Insert(sym); err != nil {
				return 0, th.RuntimeError("%s", err)
			}
		}
		symbol.Set(sym, th.pop())
		return ip + 3, nil

	case bytecode.GET_FIELD:
		idx := c.ReadU16(ip + 1)
		name := value.AsString(c.Constants[idx])
		rec := th.pop()
		for _, f := range rec.Fields() {
			if f.Name == name {
				th.push(f.Value)
				return ip + 3, nil
			}
		}
		return 0, th.RuntimeError("record has no field %q", name)

	case bytecode.SET_FIELD:
		idx := c.ReadU16(ip + 1)
		name := value.AsString(c.Constants[idx])
		v := th.pop()
		rec := th.pop()
		fields := rec.Fields()
		for i, f := range fields {
			if f.Name == name {
				fields[i].Value = v
				return ip + 3, nil
			}
		}
		return 0, th.RuntimeError("record has no field %q", name)

	case bytecode.GET_ELEMENT:
		idxVal := th.pop()
		arr := th.pop()
		i, err := value.AsInt(idxVal)
		if err != nil {
			return 0, th.RuntimeError("%s", err)
		}
		elems := arr.Elems()
		dims := arr.Dims()
		pos, err := arrayIndex(dims, elems, i)
		if err != nil {
			return 0, th.RuntimeError("%s", err)
		}
		th.push(elems[pos])
		return ip + 1, nil

	case bytecode.SET_ELEMENT:
		v := th.pop()
		idxVal := th.pop()
		arr := th.pop()
		i, err := value.AsInt(idxVal)
		if err != nil {
			return 0, th.RuntimeError("%s", err)
		}
		elems := arr.Elems()
		dims := arr.Dims()
		pos, err := arrayIndex(dims, elems, i)
		if err != nil {
			return 0, th.RuntimeError("%s", err)
		}
		elems[pos] = v
		return ip + 1, nil

	case bytecode.JUMP:
		off := c.ReadI16(ip + 1)
		return ip + 3 + int(off), nil

	case bytecode.JUMP_IF_FALSE:
		off := c.ReadI16(ip + 1)
		cond, err := value.AsBool(th.pop())
		if err != nil {
			return 0, th.RuntimeError("%s", err)
		}
		if !cond {
			return ip + 3 + int(off), nil
		}
		return ip + 3, nil

	case bytecode.LOOP:
		off := c.ReadI16(ip + 1)
		return ip + 3 + int(off), nil

	case bytecode.CALL:
		return th.call(ip)

	case bytecode.CALL_BUILTIN:
		return th.callBuiltin(ip)

	case bytecode.RETURN:
		return th.ret()

	case bytecode.WRITE, bytecode.WRITE_LN:
		n := int(c.ReadU8(ip + 1))
		args := make([]value.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = th.pop()
		}
		for _, a := range args {
			fmt.Fprint(th.Stdout, value.Format(a, 0))
		}
		if op == bytecode.WRITE_LN {
			fmt.Fprintln(th.Stdout)
		}
		return ip + 2, nil

	case bytecode.THREAD_SPAWN:
		return th.threadSpawn(ip)

	case bytecode.THREAD_JOIN:
		return th.threadJoin(ip)

	case bytecode.HALT:
		return -1, nil
	}
	return 0, th.RuntimeError("illegal opcode %s", op)
}

// call pushes a new Frame for a user-defined procedure/function (spec
// §4.8 "Call frame": reserve locals_count slots, pop args into the start of
// the new frame's locals).
func (th *Thread) call(ip int) (int, error) {
	c := th.Chunk
	addr := int(c.ReadU16(ip + 3))
	arity := int(c.ReadU8(ip + 5))

	if th.fp >= len(th.frames) {
		return 0, th.RuntimeError("call stack overflow (max depth %d)", maxFrameDepth)
	}

	// find the defined symbol by address to learn its locals count and
	// name for the new frame; codegen only ever emits CALL for resolved,
	// defined procedures, so a lookup miss here is an internal error.
	sym := th.procedureAt(addr)
	if sym == nil {
		return 0, th.RuntimeError("call to undefined procedure at address %d", addr)
	}

	base := th.sp - arity
	if base < 0 {
		return 0, th.RuntimeError("procedure %q called with too few arguments on the stack", sym.Name)
	}
	// reserve the remaining declared locals beyond the arguments already on
	// the stack.
	for i := arity; i < sym.LocalsCnt; i++ {
		th.push(value.MakeNil())
	}

	th.frames[th.fp] = Frame{ReturnIP: ip + 6, BasePointer: base, LocalsCount: sym.LocalsCnt, ProcedureName: sym.Name}
	th.fp++
	return addr, nil
}

// ret pops the current frame, optionally moving a top-of-stack result down
// to the caller's stack top, and resumes at the saved return address (spec
// §4.8 "On RETURN").
func (th *Thread) ret() (int, error) {
	fr := th.frames[th.fp-1]
	th.fp--

	var result value.Value
	hasResult := th.sp > fr.BasePointer+fr.LocalsCount
	if hasResult {
		result = th.pop()
	}
	th.sp = fr.BasePointer
	if hasResult {
		th.push(result)
	}

	if th.fp == 0 || fr.ReturnIP < 0 {
		return -1, nil
	}
	return fr.ReturnIP, nil
}

// procedureAt finds the Symbol whose bytecode address is addr, by scanning
// the procedure table. A real frontend-facing build would keep an
// address->Symbol index alongside the Chunk; the scan is acceptable here
// since it only runs once per CALL against a table sized to the program's
// own procedure count.
func (th *Thread) procedureAt(addr int) *symbol.Symbol {
	var found *symbol.Symbol
	th.Scope.Procedures.Iterate(func(s *symbol.Symbol) bool {
		if s.IsDefined && s.Address == addr {
			found = s
			return false
		}
		return true
	})
	return found
}

func (th *Thread) callBuiltin(ip int) (int, error) {
	c := th.Chunk
	nameIdx := c.ReadU16(ip + 1)
	arity := int(c.ReadU8(ip + 3))
	name := value.AsString(c.Constants[nameIdx])

	args := make([]value.Value, arity)
	for i := arity - 1; i >= 0; i-- {
		args[i] = th.pop()
	}
	result, err := th.Builtins.Call(th, name, args)
	if err != nil {
		var halt *builtin.HaltError
		if errors.As(err, &halt) {
			return 0, &ExitError{Code: halt.Code}
		}
		return 0, err
	}
	th.push(result)
	return ip + 4, nil
}

func arrayIndex(dims []value.Dim, elems []value.Value, i int64) (int, error) {
	if len(dims) == 0 {
		return 0, fmt.Errorf("index into a non-array value")
	}
	lower := dims[0].Lower
	pos := i - lower
	if pos < 0 || int(pos) >= len(elems) {
		return 0, fmt.Errorf("array index %d out of bounds [%d..%d]", i, dims[0].Lower, dims[0].Upper)
	}
	return int(pos), nil
}

func relates(op bytecode.Opcode, ord value.Ordering) bool {
	switch op {
	case bytecode.EQUAL:
		return ord == value.Equal
	case bytecode.NOT_EQUAL:
		return ord != value.Equal
	case bytecode.LESS:
		return ord == value.Less
	case bytecode.LESS_EQUAL:
		return ord != value.Greater
	case bytecode.GREATER:
		return ord == value.Greater
	case bytecode.GREATER_EQUAL:
		return ord != value.Less
	}
	return false
}
