package syscall

import (
	"defs"
	"initramfs"
	"proc"
	"trap"
)

const execveMaxArgs = 256
const ptrSize = 8

func readUserStrings(t *proc.Task, uva uint64) ([][]byte, *defs.Err_t) {
	var out [][]byte
	for i := 0; i < execveMaxArgs; i++ {
		raw, ok := readUser(t, uva+uint64(i*ptrSize), ptrSize)
		if !ok {
			return nil, defs.Errnoval(defs.EFAULT)
		}
		ptr := leUint64(raw)
		if ptr == 0 {
			return out, nil
		}
		s, ok := readUserCString(t, ptr, 4096)
		if !ok {
			return nil, defs.Errnoval(defs.EFAULT)
		}
		out = append(out, []byte(s))
	}
	return out, defs.Errnoval(defs.E2BIG)
}

// sysExecveImpl resolves the path against the initramfs tree, decodes the
// argv/envp NUL-terminated pointer arrays, and replaces the task's image
// via proc.Task.Exec. On success frame is
// overwritten with the freshly loaded entry point the way a real SYSRET
// would land in the new program instead of returning to the old one.
func sysExecveImpl(t *proc.Task, frame *trap.InterruptFrame, pathUva, argvUva, envpUva uint64) (int64, *defs.Err_t) {
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
	file, ok := node.(*initramfs.File)
	if !ok {
		return 0, defs.Errnoval(defs.EACCES)
	}
	raw := file.Data()

	argv, err := readUserStrings(t, argvUva)
	if err != nil {
		return 0, err
	}
	envp, err := readUserStrings(t, envpUva)
	if err != nil {
		return 0, err
	}

	if err := t.Exec(raw, argv, envp); err != nil {
		return 0, err
	}
	*frame = *t.ResumeFrame
	return 0, nil
}
