package vm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pscal-lang/pscal/internal/builtin"
	"github.com/pscal-lang/pscal/internal/value"
)

// builtinVM is the minimal builtin.VM a spawned worker runs its call
// against: it has no chunk or stack of its own, only the ability to report
// a runtime error and observe a cooperative cancellation flag (spec §4.8
// "Threading": "target polls abort_requested").
type builtinVM struct {
	abort atomic.Bool
}

func (v *builtinVM) RuntimeError(format string, args ...any) error { return fmt.Errorf(format, args...) }
func (v *builtinVM) Aborted() bool                                 { return v.abort.Load() }

// worker tracks one spawned or pool-submitted call: its eventual status
// and the done channel thread_join blocks on (spec §4.8 "at-most-one
// result delivery").
type worker struct {
	mu     sync.Mutex
	done   chan struct{}
	status builtin.ThreadStatus
	vm     *builtinVM
	queued bool // true while waiting in a pool's FIFO queue
}

type job struct {
	handle int64
	task   call
	w      *worker
}

type pool struct {
	mu      sync.Mutex
	queue   []job
	running bool
}

// threadTable is the per-Thread handle registry backing the ThreadHost
// surface; every worker it starts runs against the same builtin.Registry
// the owning Thread was constructed with.
type threadTable struct {
	owner    *Thread
	mu       sync.Mutex
	next     int64
	workers  map[int64]*worker
	pools    map[string]*pool
	spawned  int64
	completed int64
	cancelled int64
	pending  int64
}

func newThreadTable(owner *Thread) *threadTable {
	return &threadTable{owner: owner, workers: map[int64]*worker{}, pools: map[string]*pool{}}
}

func (t *threadTable) newWorker() (int64, *worker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	handle := t.next
	w := &worker{done: make(chan struct{}), vm: &builtinVM{}}
	t.workers[handle] = w
	atomic.AddInt64(&t.spawned, 1)
	atomic.AddInt64(&t.pending, 1)
	return handle, w
}

func (t *threadTable) get(handle int64) (*worker, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.workers[handle]
	return w, ok
}

// discard removes a handle allocated by newWorker whose target failed to
// resolve before any goroutine was started, so it never reports a false
// "spawned" or "pending" count.
func (t *threadTable) discard(handle int64) {
	t.mu.Lock()
	delete(t.workers, handle)
	t.mu.Unlock()
	atomic.AddInt64(&t.spawned, -1)
	atomic.AddInt64(&t.pending, -1)
}

// call is whatever a worker actually executes: a builtin dispatch or a
// user-defined procedure run on its own child Thread.
type call func() (value.Value, error)

func (t *threadTable) run(w *worker, c call) {
	defer func() {
		atomic.AddInt64(&t.pending, -1)
		close(w.done)
	}()

	w.mu.Lock()
	cancelled := w.status.Cancelled
	w.mu.Unlock()
	if cancelled {
		atomic.AddInt64(&t.cancelled, 1)
		return
	}

	result, err := c()
	w.mu.Lock()
	w.status.Done = true
	if err != nil {
		w.status.ExitCode = 1
	} else {
		w.status.Result = result
	}
	w.mu.Unlock()
	atomic.AddInt64(&t.completed, 1)
}

// SpawnNamed implements builtin.ThreadHost: it runs the named target in a
// new goroutine, never on the calling Thread's own stack (spec §4.8 "no
// ownership transfer of caller-held Values" — args arrive here already
// deep-copied by internal/builtin's copyArgs or threadSpawn). The target can
// be either a registered builtin (run against a worker-local builtin.VM) or
// a user-defined procedure (run on a fresh child Thread sharing this
// Thread's Chunk/Scope/Builtins but its own stack and frames).
func (th *Thread) SpawnNamed(label, name string, args []value.Value) (int64, error) {
	handle, w := th.threads.newWorker()
	task, err := th.resolveSpawnTarget(w.vm, name, args)
	if err != nil {
		th.threads.discard(handle)
		return 0, err
	}
	go th.threads.run(w, task)
	return handle, nil
}

// resolveSpawnTarget finds what THREAD_SPAWN/thread_spawn_named actually
// runs: a registered builtin dispatched against vm (the worker's own
// builtin.VM, so thread_cancel's abort flag reaches it), or a user-defined
// procedure run on a fresh child Thread sharing Chunk/Scope/Builtins.
func (th *Thread) resolveSpawnTarget(vm *builtinVM, name string, args []value.Value) (call, error) {
	if _, ok := th.Builtins.Lookup(name); ok {
		return func() (value.Value, error) { return th.Builtins.Call(vm, name, args) }, nil
	}
	if sym, ok := th.Scope.Procedures.Lookup(name); ok && sym.IsDefined {
		child := NewThread(th.Chunk, th.Scope, th.Builtins)
		return func() (value.Value, error) { return child.RunProcedure(sym, args) }, nil
	}
	return nil, th.RuntimeError("thread_spawn: unknown builtin or procedure %q", name)
}

// PoolSubmit implements builtin.ThreadHost: it enqueues the call onto the
// named pool's FIFO queue, starting the pool's single drain goroutine if it
// is not already running, so submission itself never blocks (spec §4.8
// "pool submission never blocks").
func (th *Thread) PoolSubmit(poolName, builtinName string, args []value.Value) (int64, error) {
	handle, w := th.threads.newWorker()
	task, err := th.resolveSpawnTarget(w.vm, builtinName, args)
	if err != nil {
		th.threads.discard(handle)
		return 0, err
	}
	w.mu.Lock()
	w.queued = true
	w.mu.Unlock()

	t := th.threads
	t.mu.Lock()
	p, ok := t.pools[poolName]
	if !ok {
		p = &pool{}
		t.pools[poolName] = p
	}
	t.mu.Unlock()

	p.mu.Lock()
	p.queue = append(p.queue, job{handle: handle, task: task, w: w})
	start := !p.running
	p.running = true
	p.mu.Unlock()

	if start {
		go t.drain(p)
	}
	return handle, nil
}

// drain processes one pool's queue strictly in FIFO order on a single
// goroutine (spec §4.8 "FIFO dispatch within one pool"), exiting once the
// queue empties rather than idling.
func (t *threadTable) drain(p *pool) {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.running = false
			p.mu.Unlock()
			return
		}
		j := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		j.w.mu.Lock()
		j.w.queued = false
		j.w.mu.Unlock()
		t.run(j.w, j.task)
	}
}

func (th *Thread) ThreadPause(handle int64) error {
	w, ok := th.threads.get(handle)
	if !ok {
		return th.RuntimeError("thread_pause: unknown handle %d", handle)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.Running = false
	return nil
}

func (th *Thread) ThreadResume(handle int64) error {
	w, ok := th.threads.get(handle)
	if !ok {
		return th.RuntimeError("thread_resume: unknown handle %d", handle)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.Running = true
	return nil
}

// ThreadCancel sets the worker's abort flag so a call that polls
// Aborted() stops cooperatively; a call already past its single polling
// point runs to completion regardless (spec §4.8 "cooperative
// cancellation ... the target polls abort_requested").
func (th *Thread) ThreadCancel(handle int64) error {
	w, ok := th.threads.get(handle)
	if !ok {
		return th.RuntimeError("thread_cancel: unknown handle %d", handle)
	}
	w.mu.Lock()
	w.status.Cancelled = true
	w.vm.abort.Store(true)
	w.mu.Unlock()
	return nil
}

func (th *Thread) ThreadStatus(handle int64) (builtin.ThreadStatus, error) {
	w, ok := th.threads.get(handle)
	if !ok {
		return builtin.ThreadStatus{}, th.RuntimeError("thread_get_status: unknown handle %d", handle)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.status
	st.Running = !st.Done
	return st, nil
}

func (th *Thread) ThreadStats() builtin.ThreadStats {
	t := th.threads
	return builtin.ThreadStats{
		Spawned:   atomic.LoadInt64(&t.spawned),
		Completed: atomic.LoadInt64(&t.completed),
		Cancelled: atomic.LoadInt64(&t.cancelled),
		Pending:   atomic.LoadInt64(&t.pending),
	}
}

// threadSpawn executes the THREAD_SPAWN opcode: pop `arity` arguments,
// deep-copy them, start a worker running the named builtin, and push its
// handle (spec opcode table: "args... THREAD_SPAWN<name><arity>  handle").
func (th *Thread) threadSpawn(ip int) (int, error) {
	c := th.Chunk
	nameIdx := c.ReadU16(ip + 1)
	arity := int(c.ReadU8(ip + 3))
	name := value.AsString(c.Constants[nameIdx])

	args := make([]value.Value, arity)
	for i := arity - 1; i >= 0; i-- {
		args[i] = value.Copy(th.pop())
	}
	handle, err := th.SpawnNamed(name, name, args)
	if err != nil {
		return 0, err
	}
	th.push(value.MakeInt64(handle))
	return ip + 4, nil
}

// threadJoin executes THREAD_JOIN: pop a handle, block until its worker
// finishes, and push its result (or nil if it produced none).
func (th *Thread) threadJoin(ip int) (int, error) {
	handleVal := th.pop()
	handle, err := value.AsInt(handleVal)
	if err != nil {
		return 0, th.RuntimeError("thread_join: %s", err)
	}
	w, ok := th.threads.get(handle)
	if !ok {
		return 0, th.RuntimeError("thread_join: unknown handle %d", handle)
	}
	<-w.done
	w.mu.Lock()
	result := w.status.Result
	w.mu.Unlock()
	th.push(result)
	return ip + 1, nil
}
