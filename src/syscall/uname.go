package syscall

import (
	"defs"
	"proc"
)

const utsFieldLen = 65

// sysUnameImpl fills a struct utsname (six 65-byte NUL-padded fields:
// sysname, nodename, release, version, machine, domainname) with a fixed
// response, since this kernel has no real build/host identity to report.
func sysUnameImpl(t *proc.Task, uva uint64) (int64, *defs.Err_t) {
	fields := []string{"Linux", "localhost", "6.1.0", "#1 SMP", "x86_64", "(none)"}
	buf := make([]byte, utsFieldLen*len(fields))
	for i, f := range fields {
		copy(buf[i*utsFieldLen:], f)
	}
	if !writeUser(t, uva, buf) {
		return 0, defs.Errnoval(defs.EFAULT)
	}
	return 0, nil
}
