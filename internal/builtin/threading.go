package builtin

import (
	"github.com/pscal-lang/pscal/internal/value"
)

// ThreadStatus mirrors the cooperative worker states a caller can observe
// through thread_get_status (spec §4.8 "Threading").
type ThreadStatus struct {
	Running   bool
	Done      bool
	Cancelled bool
	ExitCode  int
	Result    value.Value
}

// ThreadStats mirrors thread_stats's summary of the pool's work queue.
type ThreadStats struct {
	Spawned   int64
	Completed int64
	Cancelled int64
	Pending   int64
}

// ThreadHost is the narrow surface internal/vm's Thread implements so the
// threading builtins can spawn cooperative workers without internal/builtin
// importing internal/vm (which would cycle back through CALL_BUILTIN
// dispatch). Argument Values handed to SpawnNamed/PoolSubmit are already
// deep copies: the registry never shares heap storage across threads (spec
// §4.8 "no ownership transfer of caller-held Values").
type ThreadHost interface {
	SpawnNamed(label, builtinName string, args []value.Value) (handle int64, err error)
	PoolSubmit(pool, builtinName string, args []value.Value) (handle int64, err error)
	ThreadPause(handle int64) error
	ThreadResume(handle int64) error
	ThreadCancel(handle int64) error
	ThreadStatus(handle int64) (ThreadStatus, error)
	ThreadStats() ThreadStats
}

func host(vm VM, name string) (ThreadHost, error) {
	h, ok := vm.(ThreadHost)
	if !ok {
		return nil, vm.RuntimeError("%s: threading is not supported by this VM instance", name)
	}
	return h, nil
}

// registerThreading installs the thread_* builtin surface (spec §4.8): a
// cooperative worker model where any registered builtin (or, as resolved by
// the VM, a defined procedure) runs on a worker; there is no allow-list. A
// caller-visible handle is the only thing crossing back, and
// cancellation is advisory (the target must poll abort_requested).
func registerThreading(r *Registry) {
	must(r.Register(Entry{Name: "thread_spawn_named", Kind: Function, Arity: -1, Fn: biThreadSpawnNamed}))
	must(r.Register(Entry{Name: "thread_pool_submit", Kind: Function, Arity: -1, Fn: biThreadPoolSubmit}))
	must(r.Register(Entry{Name: "thread_pause", Kind: Procedure, Arity: 1, Fn: biThreadPause}))
	must(r.Register(Entry{Name: "thread_resume", Kind: Procedure, Arity: 1, Fn: biThreadResume}))
	must(r.Register(Entry{Name: "thread_cancel", Kind: Procedure, Arity: 1, Fn: biThreadCancel}))
	must(r.Register(Entry{Name: "thread_get_status", Kind: Function, Arity: 1, Fn: biThreadGetStatus}))
	must(r.Register(Entry{Name: "thread_stats", Kind: Function, Arity: 0, Fn: biThreadStats}))
}

// thread_spawn_named(label, builtin_name, arg1, arg2, ...) -> handle
func biThreadSpawnNamed(vm VM, args []value.Value) (value.Value, error) {
	if len(args) < 2 {
		return value.Value{}, vm.RuntimeError("thread_spawn_named: expected at least 2 arguments, got %d", len(args))
	}
	h, err := host(vm, "thread_spawn_named")
	if err != nil {
		return value.Value{}, err
	}
	label := value.AsString(args[0])
	name := value.AsString(args[1])
	handle, err := h.SpawnNamed(label, name, copyArgs(args[2:]))
	if err != nil {
		return value.Value{}, err
	}
	return value.MakeInt64(handle), nil
}

// thread_pool_submit(pool, builtin_name, arg1, ...) -> handle
func biThreadPoolSubmit(vm VM, args []value.Value) (value.Value, error) {
	if len(args) < 2 {
		return value.Value{}, vm.RuntimeError("thread_pool_submit: expected at least 2 arguments, got %d", len(args))
	}
	h, err := host(vm, "thread_pool_submit")
	if err != nil {
		return value.Value{}, err
	}
	pool := value.AsString(args[0])
	name := value.AsString(args[1])
	handle, err := h.PoolSubmit(pool, name, copyArgs(args[2:]))
	if err != nil {
		return value.Value{}, err
	}
	return value.MakeInt64(handle), nil
}

func handleArg(vm VM, args []value.Value) (int64, error) {
	return value.AsInt(args[0])
}

func biThreadPause(vm VM, args []value.Value) (value.Value, error) {
	h, err := host(vm, "thread_pause")
	if err != nil {
		return value.Value{}, err
	}
	handle, err := handleArg(vm, args)
	if err != nil {
		return value.Value{}, err
	}
	return value.MakeNil(), h.ThreadPause(handle)
}

func biThreadResume(vm VM, args []value.Value) (value.Value, error) {
	h, err := host(vm, "thread_resume")
	if err != nil {
		return value.Value{}, err
	}
	handle, err := handleArg(vm, args)
	if err != nil {
		return value.Value{}, err
	}
	return value.MakeNil(), h.ThreadResume(handle)
}

func biThreadCancel(vm VM, args []value.Value) (value.Value, error) {
	h, err := host(vm, "thread_cancel")
	if err != nil {
		return value.Value{}, err
	}
	handle, err := handleArg(vm, args)
	if err != nil {
		return value.Value{}, err
	}
	return value.MakeNil(), h.ThreadCancel(handle)
}

// thread_get_status(handle) -> the done flag as a boolean; the rest of
// ThreadStatus is available only to Go callers of ThreadHost.ThreadStatus.
func biThreadGetStatus(vm VM, args []value.Value) (value.Value, error) {
	h, err := host(vm, "thread_get_status")
	if err != nil {
		return value.Value{}, err
	}
	handle, err := handleArg(vm, args)
	if err != nil {
		return value.Value{}, err
	}
	st, err := h.ThreadStatus(handle)
	if err != nil {
		return value.Value{}, err
	}
	return value.MakeBool(st.Done), nil
}

func biThreadStats(vm VM, args []value.Value) (value.Value, error) {
	h, err := host(vm, "thread_stats")
	if err != nil {
		return value.Value{}, err
	}
	st := h.ThreadStats()
	return value.MakeInt64(st.Pending), nil
}

// copyArgs deep-copies every argument before it crosses to a worker thread,
// so the worker never shares heap storage (string/array/record payloads)
// with the spawning thread (spec §4.8 "no ownership transfer").
func copyArgs(args []value.Value) []value.Value {
	out := make([]value.Value, len(args))
	for i, a := range args {
		out[i] = value.Copy(a)
	}
	return out
}
