package syscall

import (
	"defs"
	"proc"
)

// sysWriteImpl writes through the target file descriptor:
// copy count bytes in from the user address, then hand them to the
// descriptor's fops.
func sysWriteImpl(t *proc.Task, fdNum int, uva uint64, count int) (int64, *defs.Err_t) {
	f, err := t.GetOpenFile(fdNum)
	if err != nil {
		return 0, err
	}
	if f.Perms&2 == 0 { // fd.FD_WRITE
		return 0, defs.Errnoval(defs.EBADF)
	}
	buf, ok := readUser(t, uva, count)
	if !ok {
		return 0, defs.Errnoval(defs.EFAULT)
	}
	n, err := f.Fops.Write(buf, 0)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}
