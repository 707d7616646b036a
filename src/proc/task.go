// Package proc implements tasks and the scheduler (components G, H): the
// kernel's process abstraction, its run/wait queues, and the signal-delivery
// and COW-fork orchestration that ties vm and signal together.
package proc

import (
	"sync"
	"sync/atomic"

	"accnt"
	"defs"
	"fd"
	"limits"
	"mem"
	"signal"
	"trap"
	"vm"
)

type TaskId int64

type State int32

const (
	StateRunnable State = iota
	StateWaiting
	StateExited
)

// Rlimits holds per-task descriptor/vma/pipe counters, adapted from the
// teacher's Sysatomic_t counter type (a global system-wide cap there;
// here one instance per task). No code path takes from or gives back to
// these counters, so they do not bound a task's usage.
type Rlimits struct {
	Files limits.Sysatomic_t
	Vmas  limits.Sysatomic_t
	Pipes limits.Sysatomic_t
}

func newRlimits() *Rlimits {
	return &Rlimits{Files: 256, Vmas: 4096, Pipes: 256}
}

// Task is one schedulable unit: an address space, a set of VMAs, an open
// file table, and the signal/accounting state that travels with it across
// fork and exec.
type Task struct {
	id    TaskId
	state atomic.Int32
	exitStatus atomic.Int32

	AS     *vm.AddressSpace
	Vmem   *vm.Vmem
	frames *mem.FrameAllocator

	parentMu sync.Mutex
	parent   *Task
	childMu  sync.Mutex
	children []*Task

	groupMu sync.Mutex
	group   *TaskGroup

	filesMu sync.Mutex
	files   map[int]*fd.Fd_t
	nextFd  int

	Signals *signal.Delivery
	sigMaskMu sync.Mutex
	sigMask   signal.SigSet
	signaledFrame *trap.InterruptFrame

	cwdMu sync.Mutex
	cwd   string

	// ResumeFrame is the register state this task should be given the
	// first time it runs: for a fresh fork/clone, the copied parent frame
	// with a zeroed return value; for a fresh exec, the entry/stack pair
	// the ELF loader produced. The caller driving task switches (outside
	// this package, since there is no real per-task goroutine stack to
	// transfer control to in this hosted simulation) installs it and
	// clears it on first use.
	ResumeFrame *trap.InterruptFrame

	Accnt   accnt.Accnt_t
	Rlimits *Rlimits

	// entry is the kernel-task body; this hosted simulation never runs it
	// on its own goroutine (there is no real context switch to transfer
	// control to), so invoking it is the caller's responsibility.
	entry func()
}

func (t *Task) Pid() TaskId { return t.id }

// Frames returns the frame allocator backing this task's address space,
// needed by callers (the syscall front end) that read or write its user
// memory directly.
func (t *Task) Frames() *mem.FrameAllocator { return t.frames }

func (t *Task) GetState() State { return State(t.state.Load()) }
func (t *Task) setState(s State) { t.state.Store(int32(s)) }

func (t *Task) ExitStatus() int32 { return t.exitStatus.Load() }

func (t *Task) HasPendingSignals() bool { return t.Signals.IsPending() }

func (t *Task) Parent() *Task {
	t.parentMu.Lock()
	defer t.parentMu.Unlock()
	return t.parent
}

func (t *Task) Children() []*Task {
	t.childMu.Lock()
	defer t.childMu.Unlock()
	return append([]*Task(nil), t.children...)
}

func (t *Task) addChild(c *Task) {
	t.childMu.Lock()
	t.children = append(t.children, c)
	t.childMu.Unlock()
}

// RemoveChild drops c from t's child list, called once wait4 has reaped its
// exit status.
func (t *Task) RemoveChild(c *Task) {
	t.childMu.Lock()
	t.children = removeTask(t.children, c)
	t.childMu.Unlock()
}

func (t *Task) Group() *TaskGroup {
	t.groupMu.Lock()
	defer t.groupMu.Unlock()
	return t.group
}

func (t *Task) BelongsToGroup(g *TaskGroup) bool {
	return t.Group() == g
}

// Cwd returns the task's current working directory path.
func (t *Task) Cwd() string {
	t.cwdMu.Lock()
	defer t.cwdMu.Unlock()
	return t.cwd
}

// SetCwd replaces the task's current working directory path.
func (t *Task) SetCwd(path string) {
	t.cwdMu.Lock()
	t.cwd = path
	t.cwdMu.Unlock()
}

// AddOpenFile installs f at the lowest unused descriptor number and
// returns it.
func (t *Task) AddOpenFile(f *fd.Fd_t) int {
	t.filesMu.Lock()
	defer t.filesMu.Unlock()
	n := t.nextFd
	for {
		if _, used := t.files[n]; !used {
			break
		}
		n++
	}
	t.files[n] = f
	if n >= t.nextFd {
		t.nextFd = n + 1
	}
	return n
}

// SetOpenFileAt installs f at exactly descriptor n, replacing whatever was
// there (dup2 semantics); the caller is responsible for closing the old fd.
func (t *Task) SetOpenFileAt(n int, f *fd.Fd_t) {
	t.filesMu.Lock()
	t.files[n] = f
	if n >= t.nextFd {
		t.nextFd = n + 1
	}
	t.filesMu.Unlock()
}

func (t *Task) GetOpenFile(n int) (*fd.Fd_t, *defs.Err_t) {
	t.filesMu.Lock()
	defer t.filesMu.Unlock()
	f, ok := t.files[n]
	if !ok {
		return nil, defs.Errnoval(defs.EBADF)
	}
	return f, nil
}

func (t *Task) CloseOpenFile(n int) *defs.Err_t {
	t.filesMu.Lock()
	f, ok := t.files[n]
	if !ok {
		t.filesMu.Unlock()
		return defs.Errnoval(defs.EBADF)
	}
	delete(t.files, n)
	t.filesMu.Unlock()
	fd.Close_panic(f)
	return nil
}

func (t *Task) closeAllOpenFiles() {
	t.filesMu.Lock()
	files := t.files
	t.files = make(map[int]*fd.Fd_t)
	t.filesMu.Unlock()
	for _, f := range files {
		fd.Close_panic(f)
	}
}

// cloneOpenFiles deep-copies the descriptor table by reopening every entry,
// used by Fork.
func (t *Task) cloneOpenFiles() map[int]*fd.Fd_t {
	t.filesMu.Lock()
	defer t.filesMu.Unlock()
	out := make(map[int]*fd.Fd_t, len(t.files))
	for n, f := range t.files {
		nf, err := fd.Copyfd(f)
		if err != nil {
			continue
		}
		out[n] = nf
	}
	return out
}

func (t *Task) SigMask() signal.SigSet {
	t.sigMaskMu.Lock()
	defer t.sigMaskMu.Unlock()
	return t.sigMask
}

func (t *Task) SetSigMask(how signal.Mask, set signal.SigSet) signal.SigSet {
	t.sigMaskMu.Lock()
	defer t.sigMaskMu.Unlock()
	old := t.sigMask
	t.sigMask = signal.ApplyMask(t.sigMask, how, set)
	return old
}

func newBareTask(id TaskId, as *vm.AddressSpace, frames *mem.FrameAllocator) *Task {
	t := &Task{
		AS:      as,
		Vmem:    vm.NewVmem(frames),
		frames:  frames,
		files:   make(map[int]*fd.Fd_t),
		Signals: signal.NewDelivery(),
		Rlimits: newRlimits(),
		cwd:     "/",
	}
	t.id = id
	t.setState(StateRunnable)
	return t
}
