package syscall

import (
	"defs"
	"proc"
	"signal"
)

const (
	sigBlock   = 0
	sigUnblock = 1
	sigSetmask = 2
)

func readSigSet(t *proc.Task, uva uint64) (signal.SigSet, bool) {
	var set signal.SigSet
	if uva == 0 {
		return set, true
	}
	raw, ok := readUser(t, uva, 8)
	if !ok {
		return set, false
	}
	bits := leUint64(raw)
	for sig := signal.Signal(1); int(sig) < 64; sig++ {
		if bits&(1<<uint(sig)) != 0 {
			set.Set(sig, true)
		}
	}
	return set, true
}

func writeSigSet(t *proc.Task, uva uint64, set signal.SigSet) bool {
	if uva == 0 {
		return true
	}
	var bits uint64
	for sig := signal.Signal(1); int(sig) < 64; sig++ {
		if set.Test(sig) {
			bits |= 1 << uint(sig)
		}
	}
	buf := make([]byte, 8)
	putLE64(buf, bits)
	return writeUser(t, uva, buf)
}

// sysRtSigprocmaskImpl reads the optional new mask, applies it per how, and
// hands back the mask that was in effect before the change.
func sysRtSigprocmaskImpl(t *proc.Task, how int32, setUva, oldSetUva uint64) (int64, *defs.Err_t) {
	var newSet signal.SigSet
	hasNew := setUva != 0
	if hasNew {
		var ok bool
		newSet, ok = readSigSet(t, setUva)
		if !ok {
			return 0, defs.Errnoval(defs.EFAULT)
		}
	}
	var old signal.SigSet
	if hasNew {
		old = t.SetSigMask(toSignalMask(how), newSet)
	} else {
		old = t.SigMask()
	}
	if !writeSigSet(t, oldSetUva, old) {
		return 0, defs.Errnoval(defs.EFAULT)
	}
	return 0, nil
}

func toSignalMask(how int32) signal.Mask {
	switch how {
	case sigBlock:
		return signal.MaskBlock
	case sigUnblock:
		return signal.MaskUnblock
	case sigSetmask:
		return signal.MaskSetMask
	default:
		return signal.MaskSetMask
	}
}

// sysRtSigactionImpl installs a new disposition for sig and returns the one
// it replaces via oldActUva, grounded on the same Delivery.SetAction/
// GetAction pair proc's signal-delivery draining loop already relies on.
func sysRtSigactionImpl(t *proc.Task, sig int32, actUva, oldActUva uint64) (int64, *defs.Err_t) {
	s := signal.Signal(sig)
	if s <= 0 {
		return 0, defs.Errnoval(defs.EINVAL)
	}
	old := t.Signals.GetAction(s)
	if actUva != 0 {
		raw, ok := readUser(t, actUva, 16)
		if !ok {
			return 0, defs.Errnoval(defs.EFAULT)
		}
		handler := leUint64(raw)
		var newAction signal.SigAction
		switch handler {
		case 0: // SIG_DFL
			newAction = signal.DefaultAction(s)
		case 1: // SIG_IGN
			newAction = signal.SigAction{Disp: signal.Ignore}
		default:
			newAction = signal.SigAction{Disp: signal.Handled, Handler: handler}
		}
		if !t.Signals.SetAction(s, newAction) {
			return 0, defs.Errnoval(defs.EINVAL)
		}
	}
	if oldActUva != 0 {
		buf := make([]byte, 16)
		putLE64(buf[:8], uint64(old.Disp))
		putLE64(buf[8:], old.Handler)
		if !writeUser(t, oldActUva, buf) {
			return 0, defs.Errnoval(defs.EFAULT)
		}
	}
	return 0, nil
}

// sysKillImpl looks the target pid up via Scheduler.FindTask and marks
// the signal pending on it through Scheduler.SendSignalTo.
func sysKillImpl(sched *proc.Scheduler, pid int64, sig int32) (int64, *defs.Err_t) {
	target, ok := sched.FindTask(proc.TaskId(pid))
	if !ok {
		return 0, defs.Errnoval(defs.ESRCH)
	}
	sched.SendSignalTo(target, signal.Signal(sig))
	return 0, nil
}
