package proc

import (
	"sync"

	"defs"
)

// WaitQueue is a FIFO of blocked tasks: a plain deque behind a lock, woken
// either one-at-a-time or all at once.
type WaitQueue struct {
	mu    sync.Mutex
	tasks []*Task
}

func NewWaitQueue() *WaitQueue {
	return &WaitQueue{}
}

func (q *WaitQueue) enqueue(t *Task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
}

func (q *WaitQueue) remove(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, o := range q.tasks {
		if o == t {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// WakeAll dequeues every waiting task and pushes it back onto the run queue.
func (q *WaitQueue) WakeAll(sched *Scheduler) {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, t := range tasks {
		sched.ResumeTask(t)
	}
}

// SleepSignalableUntil evaluates pred. If it reports ready, the value is
// returned immediately. Otherwise the calling task blocks on q and yields
// to the scheduler; on every wake the predicate is re-checked, and a
// pending signal observed after waking aborts the wait with EINTR -- the
// same signal-interruptible blocking shape used throughout this kernel's
// read/write/wait paths.
func SleepSignalableUntil[R any](sched *Scheduler, q *WaitQueue, pred func() (R, bool)) (R, *defs.Err_t) {
	for {
		if v, ready := pred(); ready {
			return v, nil
		}
		current := sched.CurrentTask()
		q.enqueue(current)
		sched.pushWaiting(current)
		sched.Preempt()

		if current.HasPendingSignals() {
			q.remove(current)
			var zero R
			return zero, defs.Errnoval(defs.EINTR)
		}
	}
}
