package syscall

import (
	"crypto/rand"

	"defs"
	"proc"
)

// sysGetrandomImpl fills count bytes from the host CSPRNG, the same source
// devfs.URandom reads from.
func sysGetrandomImpl(t *proc.Task, uva uint64, count int, flags int32) (int64, *defs.Err_t) {
	if count < 0 {
		return 0, defs.Errnoval(defs.EINVAL)
	}
	buf := make([]byte, count)
	if _, err := rand.Read(buf); err != nil {
		return 0, defs.Errnoval(defs.EINVAL)
	}
	if !writeUser(t, uva, buf) {
		return 0, defs.Errnoval(defs.EFAULT)
	}
	return int64(count), nil
}
