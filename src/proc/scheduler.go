package proc

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"defs"
	"fd"
	"fdops"
	"mem"
	"signal"
	"trap"
	"vm"
)

// Linux's __NR_rt_sigreturn (syscall.sysRtSigreturn); duplicated here rather
// than imported since syscall imports proc, not the other way around.
const sigreturnSyscallNum = 15

// sigreturnTrampoline is the raw encoding of "mov eax, sigreturnSyscallNum;
// syscall" -- the handful of bytes a real signal handler's `ret` lands on
// when it returns normally instead of calling sigreturn(2) itself.
var sigreturnTrampoline = [...]byte{0xb8, byte(sigreturnSyscallNum), 0x00, 0x00, 0x00, 0x0f, 0x05}

const sysVRedZone = 128

// Scheduler owns every live task and the queues that decide which one runs
// next. It is the single lock domain for scheduling decisions.
type Scheduler struct {
	mu sync.Mutex

	tasks      map[TaskId]*Task
	runQueue   []*Task
	waiting    []*Task
	deadline   []deadlineEntry
	exited     []*Task
	taskGroups map[PgId]*TaskGroup

	idleTask    *Task
	preemptTask *Task
	current     *Task

	// JoinWaitQueue wakes up every wait4 call whenever any task exits.
	JoinWaitQueue *WaitQueue

	nextPid atomic.Int64
	frames  *mem.FrameAllocator
	uptime  atomic.Int64 // monotonic tick counter, advanced by the timer vector
}

type deadlineEntry struct {
	task     *Task
	deadline int64
}

// NewScheduler constructs the scheduler, its idle task, and its preempt
// task. frames backs every task's Vmem (anonymous mmap/page-fault
// allocation); vm.InitKernelState must already have been called with the
// same allocator.
func NewScheduler(frames *mem.FrameAllocator) *Scheduler {
	s := &Scheduler{
		tasks:         make(map[TaskId]*Task),
		taskGroups:    make(map[PgId]*TaskGroup),
		frames:        frames,
		JoinWaitQueue: NewWaitQueue(),
	}
	s.nextPid.Store(2)
	s.idleTask = s.NewIdleTask()
	s.preemptTask = s.NewKernelTask(func() {}, false)
	return s
}

func (s *Scheduler) allocPid() TaskId {
	return TaskId(s.nextPid.Add(1))
}

func (s *Scheduler) findOrCreateGroup(pgid PgId) *TaskGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.taskGroups[pgid]; ok {
		return g
	}
	g := newTaskGroup(pgid)
	s.taskGroups[pgid] = g
	return g
}

// NewIdleTask creates the scheduler's idle task: pid 0, process group 0,
// run only when no other task is runnable.
func (s *Scheduler) NewIdleTask() *Task {
	as, err := vm.NewAddressSpace()
	if err != nil {
		panic("proc: failed to create the idle task's address space")
	}
	t := newBareTask(0, as, s.frames)
	g := s.findOrCreateGroup(0)
	t.group = g
	g.add(t)
	// Installed as the active address space so kernel tasks created before
	// any task has actually been switched to (the preempt task, most
	// immediately) inherit something real rather than vm.CurrentAddressSpace
	// reporting nil.
	as.Switch()
	return t
}

// NewKernelTask creates a kernel-mode task whose body is entry. Callers
// drive it explicitly (this hosted simulation has no background goroutine
// per task -- see DESIGN.md); it is pushed runnable immediately.
func (s *Scheduler) NewKernelTask(entry func(), enableInterrupts bool) *Task {
	as := vm.CurrentAddressSpace()
	if as == nil {
		var err *defs.Err_t
		as, err = vm.NewAddressSpace()
		if err != nil {
			panic("proc: failed to create a kernel task's address space")
		}
	}
	t := newBareTask(s.allocPid(), as, s.frames)
	t.entry = entry
	g := s.findOrCreateGroup(0)
	t.group = g
	g.add(t)
	s.PushRunnable(t)
	return t
}

// NewInitTask creates pid 1: loads file as its initial ELF image via Exec,
// wires stdin/stdout/stderr to tty, and attaches it to process group 1 (the
// TTY's initial foreground group).
func (s *Scheduler) NewInitTask(tty fdops.Fdops_i, file []byte, argv, envp [][]byte) (*Task, *defs.Err_t) {
	as, err := vm.NewAddressSpace()
	if err != nil {
		panic("proc: failed to create init's address space")
	}
	t := newBareTask(1, as, s.frames)
	for i := 0; i < 3; i++ {
		perms := fd.FD_READ | fd.FD_WRITE
		t.SetOpenFileAt(i, &fd.Fd_t{Fops: tty, Perms: perms})
	}
	g := s.findOrCreateGroup(1)
	t.group = g
	g.add(t)
	s.mu.Lock()
	s.tasks[t.id] = t
	s.mu.Unlock()

	if execErr := t.Exec(file, argv, envp); execErr != nil {
		return nil, execErr
	}

	s.PushRunnable(t)
	return t, nil
}

func (s *Scheduler) CurrentTask() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Scheduler) FindTask(id TaskId) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// PushRunnable marks t Runnable and enqueues it on the run queue if it
// isn't already there, removing it from the wait queues first.
func (s *Scheduler) PushRunnable(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.setState(StateRunnable)
	s.tasks[t.id] = t
	s.waiting = removeTask(s.waiting, t)
	s.deadline = removeDeadline(s.deadline, t)
	if !containsTask(s.runQueue, t) {
		s.runQueue = append(s.runQueue, t)
	}
}

func (s *Scheduler) pushWaiting(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.setState(StateWaiting)
	s.tasks[t.id] = t
	s.runQueue = removeTask(s.runQueue, t)
	s.deadline = removeDeadline(s.deadline, t)
	if !containsTask(s.waiting, t) {
		s.waiting = append(s.waiting, t)
	}
}

func (s *Scheduler) pushDeadlineWaiting(t *Task, durationTicks int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.setState(StateWaiting)
	s.tasks[t.id] = t
	s.runQueue = removeTask(s.runQueue, t)
	s.waiting = removeTask(s.waiting, t)
	for _, e := range s.deadline {
		if e.task == t {
			return
		}
	}
	s.deadline = append(s.deadline, deadlineEntry{task: t, deadline: s.uptime.Load() + durationTicks})
}

// checkDeadline moves every expired deadline-waiting task back onto the
// run queue. Called at the top of every switchTask().
func (s *Scheduler) checkDeadline() {
	now := s.uptime.Load()
	s.mu.Lock()
	var keep []deadlineEntry
	var wake []*Task
	for _, e := range s.deadline {
		if e.deadline <= now {
			wake = append(wake, e.task)
		} else {
			keep = append(keep, e)
		}
	}
	s.deadline = keep
	s.mu.Unlock()
	for _, t := range wake {
		s.PushRunnable(t)
	}
}

// Tick advances the scheduler's uptime counter, called by the timer vector.
func (s *Scheduler) Tick() {
	s.uptime.Add(1)
}

func removeTask(list []*Task, t *Task) []*Task {
	out := list[:0]
	for _, o := range list {
		if o != t {
			out = append(out, o)
		}
	}
	return out
}

func removeDeadline(list []deadlineEntry, t *Task) []deadlineEntry {
	out := list[:0]
	for _, e := range list {
		if e.task != t {
			out = append(out, e)
		}
	}
	return out
}

func containsTask(list []*Task, t *Task) bool {
	for _, o := range list {
		if o == t {
			return true
		}
	}
	return false
}

// switchTask picks the next runnable task (requeueing the current one if
// it's still runnable) and installs it as current. This hosted simulation
// has no separate hop through a "preempt task" stack since there is no
// real register context to transfer -- switchTask collapses what would
// otherwise be a two-step context switch into one.
func (s *Scheduler) switchTask() {
	s.checkDeadline()
	s.mu.Lock()
	var next *Task
	for len(s.runQueue) > 0 {
		cand := s.runQueue[0]
		s.runQueue = s.runQueue[1:]
		if cand.GetState() == StateRunnable {
			next = cand
			break
		}
	}
	if next == nil {
		s.current = nil
		s.mu.Unlock()
		return
	}
	if s.current != nil && s.current != next {
		s.runQueue = append(s.runQueue, s.current)
	}
	s.current = next
	s.mu.Unlock()
}

// Preempt yields the CPU: find the next runnable task and make it current.
func (s *Scheduler) Preempt() {
	s.switchTask()
}

// Sleep blocks the current task, either for durationTicks (if non-nil) or
// indefinitely, then yields. It reports EINTR if a signal arrived while
// blocked.
func (s *Scheduler) Sleep(durationTicks *int64) *defs.Err_t {
	current := s.CurrentTask()
	if durationTicks != nil {
		s.pushDeadlineWaiting(current, *durationTicks)
	} else {
		s.pushWaiting(current)
	}
	s.Preempt()
	if current.HasPendingSignals() {
		return defs.Errnoval(defs.EINTR)
	}
	return nil
}

func (s *Scheduler) ResumeTask(t *Task) {
	s.PushRunnable(t)
}

func (s *Scheduler) SendSignalTo(t *Task, sig signal.Signal) {
	t.Signals.Raise(sig)
	s.ResumeTask(t)
}

// ExitCurrent tears down the current task: records its exit status, informs
// its parent (posting SIGCHLD unless ignored), closes its files, and hands
// it to the reaper.
func (s *Scheduler) ExitCurrent(status int32) {
	current := s.CurrentTask()
	if current.Pid() == 1 {
		panic("proc: init (pid 1) exited")
	}
	current.exitStatus.Store(status)
	current.setState(StateExited)

	if parent := current.Parent(); parent != nil {
		if parent.Signals.GetAction(signal.SIGCHLD).Disp != signal.Ignore {
			parent.Signals.Raise(signal.SIGCHLD)
			s.ResumeTask(parent)
		} else {
			parent.childMu.Lock()
			parent.children = removeTask(parent.children, current)
			parent.childMu.Unlock()
		}
	}

	current.closeAllOpenFiles()

	s.mu.Lock()
	s.runQueue = removeTask(s.runQueue, current)
	s.exited = append(s.exited, current)
	s.mu.Unlock()

	s.JoinWaitQueue.WakeAll(s)
	s.Preempt()
}

// ReapDead removes every exited task from every bookkeeping structure,
// called periodically by the reaper kernel task.
func (s *Scheduler) ReapDead() {
	s.mu.Lock()
	dead := s.exited
	s.exited = nil
	for _, t := range dead {
		delete(s.tasks, t.id)
	}
	s.mu.Unlock()

	for _, t := range dead {
		if g := t.Group(); g != nil {
			if g.gcDead(func(c *Task) bool { return c.GetState() == StateExited }) {
				s.mu.Lock()
				delete(s.taskGroups, g.pgid)
				s.mu.Unlock()
			}
		}
	}
}

// TryDeliveringSignal pops pending signals of the current task until one is
// acted on or none remain: Ignore is a no-op and the next one is popped, a
// blocked signal is re-pended and ends the call, Terminate exits the task,
// and Handled stashes the interrupted frame (for Sigreturn), adds the signal
// to the task's mask and redirects frame to the handler. The syscall
// dispatcher calls this in a loop until nothing more is delivered, draining
// every deliverable signal at the syscall boundary rather than one per
// boundary.
func (s *Scheduler) TryDeliveringSignal(frame *trap.InterruptFrame) {
	current := s.CurrentTask()
	for {
		sig, action, ok := current.Signals.PopPending()
		if !ok {
			return
		}
		if mask := current.SigMask(); mask.Test(sig) {
			current.Signals.Repend(sig)
			return
		}
		switch action.Disp {
		case signal.Ignore:
			continue
		case signal.Terminate:
			s.ExitCurrent(1)
			return
		case signal.Handled:
			saved := *frame
			current.signaledFrame = &saved
			current.sigMaskMu.Lock()
			current.sigMask.Set(sig, true)
			current.sigMaskMu.Unlock()
			setupSignalFrame(current, frame, sig, action.Handler)
			return
		}
	}
}

// Sigreturn restores the interrupted frame saved by TryDeliveringSignal,
// discarding the handler's own frame.
func (s *Scheduler) Sigreturn(frame *trap.InterruptFrame) *defs.Err_t {
	current := s.CurrentTask()
	if current.signaledFrame == nil {
		return defs.Errnoval(defs.EINVAL)
	}
	*frame = *current.signaledFrame
	current.signaledFrame = nil
	return nil
}

// setupSignalFrame rewrites frame so that control transfers to the user
// handler with RDI set to the signal number. It also pushes a fresh
// sigreturn trampoline onto the user stack below the SysV red zone and a
// return address pointing at it, the same way a real kernel forges a signal
// frame: when an unmodified handler eventually executes a plain `ret`, it
// lands on the trampoline's `syscall` instead of whatever was on the stack
// before delivery, and that syscall re-enters the kernel through
// sysRtSigreturn to restore the interrupted frame.
func setupSignalFrame(t *Task, frame *trap.InterruptFrame, sig signal.Signal, handler uint64) {
	mapper := t.AS.Mapper()

	trampolineVA := (frame.Rsp - sysVRedZone - uint64(len(sigreturnTrampoline))) &^ 0xf
	writeUserBytes(mapper, t.frames, mem.VirtAddr(trampolineVA), sigreturnTrampoline[:])

	retAddrVA := trampolineVA - 8
	var retAddr [8]byte
	binary.LittleEndian.PutUint64(retAddr[:], trampolineVA)
	writeUserBytes(mapper, t.frames, mem.VirtAddr(retAddrVA), retAddr[:])

	frame.Rip = handler
	frame.Rdi = uint64(sig)
	frame.Rsp = retAddrVA
}

// writeUserBytes copies data into the pages mapper already has mapped,
// crossing page boundaries as needed; it mirrors elf.Load's helper of the
// same name since both write pre-allocated stack pages rather than fault
// new ones in. It stops (rather than looping) if it reaches a page mapper
// has no translation for.
func writeUserBytes(mapper *vm.Mapper, frames *mem.FrameAllocator, va mem.VirtAddr, data []byte) {
	for len(data) > 0 {
		page := mem.PageContaining(va)
		f, _, ok := mapper.Translate(page)
		if !ok {
			return
		}
		pageBytes := frames.Dmap(f.StartAddress())
		pageOff := int(uint64(va) & (mem.PageSize - 1))
		n := copy(pageBytes[pageOff:], data)
		data = data[n:]
		va = mem.VirtAddr(uint64(va) + uint64(n))
	}
}
