package syscall

import (
	"defs"
	"fd"
	"proc"
)

const (
	fDupfd  = 0
	fGetfd  = 1
	fSetfd  = 2
	fGetfl  = 3
	fSetfl  = 4
)

// sysFcntlImpl implements only the handful of commands this kernel's
// descriptor model can actually express.
func sysFcntlImpl(t *proc.Task, fdNum int, cmd int32, arg uint64) (int64, *defs.Err_t) {
	f, err := t.GetOpenFile(fdNum)
	if err != nil {
		return 0, err
	}
	switch cmd {
	case fDupfd:
		nfd, err := fd.Copyfd(f)
		if err != nil {
			return 0, err
		}
		return int64(t.AddOpenFile(nfd)), nil
	case fGetfd:
		return 0, nil
	case fSetfd:
		return 0, nil
	case fGetfl:
		return int64(f.Perms), nil
	case fSetfl:
		return 0, nil
	default:
		return 0, defs.Errnoval(defs.ENOSYS)
	}
}
