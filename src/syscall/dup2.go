package syscall

import (
	"defs"
	"fd"
	"proc"
)

// sysDup2Impl duplicates oldFd onto newFd, closing whatever newFd previously
// held, matching dup2(2)'s exact-descriptor-number contract.
func sysDup2Impl(t *proc.Task, oldFd, newFd int) (int64, *defs.Err_t) {
	if oldFd == newFd {
		if _, err := t.GetOpenFile(oldFd); err != nil {
			return 0, err
		}
		return int64(newFd), nil
	}
	old, err := t.GetOpenFile(oldFd)
	if err != nil {
		return 0, err
	}
	nfd, err := fd.Copyfd(old)
	if err != nil {
		return 0, err
	}
	if existing, gErr := t.GetOpenFile(newFd); gErr == nil {
		fd.Close_panic(existing)
	}
	t.SetOpenFileAt(newFd, nfd)
	return int64(newFd), nil
}
