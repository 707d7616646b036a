package syscall

import (
	"defs"
	"proc"
)

// sysReadImpl looks up the descriptor, reads into a kernel-side buffer,
// then copies it out to the user address.
func sysReadImpl(t *proc.Task, fdNum int, uva uint64, count int) (int64, *defs.Err_t) {
	f, err := t.GetOpenFile(fdNum)
	if err != nil {
		return 0, err
	}
	if f.Perms&1 == 0 { // fd.FD_READ
		return 0, defs.Errnoval(defs.EBADF)
	}
	buf := make([]byte, count)
	n, err := f.Fops.Read(buf, 0)
	if err != nil {
		return 0, err
	}
	if n > 0 && !writeUser(t, uva, buf[:n]) {
		return 0, defs.Errnoval(defs.EFAULT)
	}
	return int64(n), nil
}
