package syscall

import (
	"defs"
	"proc"
)

// sysGetcwdImpl copies the cwd string plus a NUL out to the user buffer,
// failing ERANGE if it doesn't fit.
func sysGetcwdImpl(t *proc.Task, uva uint64, size uint64) (int64, *defs.Err_t) {
	cwd := t.Cwd()
	if uint64(len(cwd)+1) > size {
		return 0, defs.Errnoval(defs.ERANGE)
	}
	if !writeUser(t, uva, append([]byte(cwd), 0)) {
		return 0, defs.Errnoval(defs.EFAULT)
	}
	return int64(len(cwd) + 1), nil
}

// sysChdirImpl resolves path against the initramfs tree and, if it names a
// directory, replaces the task's cwd.
func sysChdirImpl(t *proc.Task, pathUva uint64) (int64, *defs.Err_t) {
	p, ok := readUserCString(t, pathUva, 512)
	if !ok {
		return 0, defs.Errnoval(defs.EFAULT)
	}
	fs := currentRootFS()
	if fs == nil {
		return 0, defs.Errnoval(defs.ENOSYS)
	}
	resolved := resolvePath(t, p)
	node, err := fs.Lookup(resolved)
	if err != nil {
		return 0, err
	}
	if !isDirNode(node) {
		return 0, defs.Errnoval(defs.ENOTDIR)
	}
	t.SetCwd(resolved)
	return 0, nil
}
