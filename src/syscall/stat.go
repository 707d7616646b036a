package syscall

import (
	"defs"
	"proc"
	"stat"
)

const statSize = 9 * 8 // nine uint fields in stat.Stat_t

// sysStatImpl follows the same shape as the other stat-family handlers:
// resolve the path against the initramfs tree, fill a Stat_t, and copy its
// raw bytes out to the user buffer.
func sysStatImpl(t *proc.Task, pathUva, statUva uint64) (int64, *defs.Err_t) {
	p, ok := readUserCString(t, pathUva, 512)
	if !ok {
		return 0, defs.Errnoval(defs.EFAULT)
	}
	fs := currentRootFS()
	if fs == nil {
		return 0, defs.Errnoval(defs.ENOSYS)
	}
	node, err := fs.Lookup(resolvePath(t, p))
	if err != nil {
		return 0, err
	}
	fops, err := fopsForNode(node)
	if err != nil {
		return 0, err
	}
	var st stat.Stat_t
	if err := fops.Fstat(&st); err != nil {
		return 0, err
	}
	if !writeUser(t, statUva, st.Bytes()) {
		return 0, defs.Errnoval(defs.EFAULT)
	}
	return 0, nil
}

func sysFstatImpl(t *proc.Task, fdNum int, statUva uint64) (int64, *defs.Err_t) {
	f, err := t.GetOpenFile(fdNum)
	if err != nil {
		return 0, err
	}
	var st stat.Stat_t
	if err := f.Fops.Fstat(&st); err != nil {
		return 0, err
	}
	if !writeUser(t, statUva, st.Bytes()) {
		return 0, defs.Errnoval(defs.EFAULT)
	}
	return 0, nil
}
