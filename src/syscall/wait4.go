package syscall

import (
	"defs"
	"proc"
)

const wnohang = 1

type waitResult struct {
	pid    int64
	status int32
	child  *proc.Task
}

// sysWait4Impl blocks on the scheduler's join queue until a matching child
// has exited (or WNOHANG says not to block), then reaps it from the
// parent's child list.
func sysWait4Impl(sched *proc.Scheduler, t *proc.Task, pid int64, statusUva uint64, options int32) (int64, *defs.Err_t) {
	res, err := proc.SleepSignalableUntil(sched, sched.JoinWaitQueue, func() (waitResult, bool) {
		for _, c := range t.Children() {
			if pid > 0 && int64(c.Pid()) != pid {
				continue
			}
			if c.GetState() == proc.StateExited {
				return waitResult{pid: int64(c.Pid()), status: c.ExitStatus(), child: c}, true
			}
		}
		if options&wnohang != 0 {
			return waitResult{}, true
		}
		return waitResult{}, false
	})
	if err != nil {
		return 0, err
	}
	if res.child != nil {
		t.RemoveChild(res.child)
	}
	if res.pid != 0 && statusUva != 0 {
		buf := make([]byte, 4)
		putLE32(buf, uint32(res.status))
		if !writeUser(t, statusUva, buf) {
			return 0, defs.Errnoval(defs.EFAULT)
		}
	}
	return res.pid, nil
}
