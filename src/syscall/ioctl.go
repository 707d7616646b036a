package syscall

import (
	"defs"
	"proc"
)

// sysIoctlImpl: this kernel's devfs nodes have no ioctl-able state (no
// termios, no framebuffer mode-set); every request is rejected with ENOTTY
// the way a non-terminal fd does on Linux.
func sysIoctlImpl(t *proc.Task, fdNum int, request, arg uint64) (int64, *defs.Err_t) {
	if _, err := t.GetOpenFile(fdNum); err != nil {
		return 0, err
	}
	return 0, defs.Errnoval(defs.ENOTTY)
}
