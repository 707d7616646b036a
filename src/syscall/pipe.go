package syscall

import (
	"defs"
	"fd"
	"pipe"
	"proc"
)

// sysPipe2Impl creates a pipe, installs its two ends at the lowest free
// descriptors, and writes them back as a {read_fd, write_fd} pair.
func sysPipe2Impl(t *proc.Task, fdsUva uint64) (int64, *defs.Err_t) {
	p, err := pipe.New(t.Frames())
	if err != nil {
		return 0, err
	}
	rfd := t.AddOpenFile(&fd.Fd_t{Fops: p.ReadEnd(), Perms: fd.FD_READ})
	wfd := t.AddOpenFile(&fd.Fd_t{Fops: p.WriteEnd(), Perms: fd.FD_WRITE})

	buf := make([]byte, 8)
	putLE32(buf[0:4], uint32(rfd))
	putLE32(buf[4:8], uint32(wfd))
	if !writeUser(t, fdsUva, buf) {
		return 0, defs.Errnoval(defs.EFAULT)
	}
	return 0, nil
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
