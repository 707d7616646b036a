package syscall

import (
	"defs"
	"proc"
	"trap"
)

// sysForkImpl duplicates the calling task:
// fork the current task against the interrupted frame and return the
// child's pid to the parent.
func sysForkImpl(sched *proc.Scheduler, t *proc.Task, frame *trap.InterruptFrame) (int64, *defs.Err_t) {
	child, err := t.Fork(sched, frame)
	if err != nil {
		return 0, err
	}
	return int64(child.Pid()), nil
}
