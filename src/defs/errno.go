package defs

import "fmt"

// Errno is a POSIX-style error code surfaced to user mode as -errno in RAX.
// Kernel-internal failures never panic on this path; they are always wrapped
// into one of these codes before crossing back to userland.
type Errno int

const (
	EBADF  Errno = 9
	EAGAIN Errno = 11
	ENOMEM Errno = 12
	EFAULT Errno = 14
	EEXIST Errno = 17
	ENOTDIR Errno = 20
	EISDIR Errno = 21
	EINVAL Errno = 22
	ENFILE Errno = 23
	ERANGE Errno = 34
	ENOSYS Errno = 38
	ELOOP  Errno = 40
	ENOENT  Errno = 2
	EINTR   Errno = 4
	ECHILD  Errno = 10
	ESRCH   Errno = 3
	ENOEXEC Errno = 8
	ESPIPE  Errno = 29
	EPIPE   Errno = 32
	ENOTTY  Errno = 25
	EACCES  Errno = 13
	E2BIG   Errno = 7
	EPERM   Errno = 1
)

var errnoNames = map[Errno]string{
	ENOENT:  "ENOENT",
	ESRCH:   "ESRCH",
	EINTR:   "EINTR",
	EBADF:   "EBADF",
	ECHILD:  "ECHILD",
	EAGAIN:  "EAGAIN",
	ENOMEM:  "ENOMEM",
	EFAULT:  "EFAULT",
	EEXIST:  "EEXIST",
	ENOTDIR: "ENOTDIR",
	EISDIR:  "EISDIR",
	EINVAL:  "EINVAL",
	ENFILE:  "ENFILE",
	ERANGE:  "ERANGE",
	ENOSYS:  "ENOSYS",
	ELOOP:   "ELOOP",
	ENOEXEC: "ENOEXEC",
	ESPIPE:  "ESPIPE",
	EPIPE:   "EPIPE",
	ENOTTY:  "ENOTTY",
	EACCES:  "EACCES",
	E2BIG:   "E2BIG",
	EPERM:   "EPERM",
}

func (e Errno) String() string {
	if n, ok := errnoNames[e]; ok {
		return n
	}
	return fmt.Sprintf("Errno(%d)", int(e))
}

func (e Errno) Error() string {
	return e.String()
}

// Err_t is the kernel's uniform error value: either a bare message meant for
// a panic/log path, or an Errno meant to cross back to userland. Only one of
// the two is ever set, mirroring a tagged union with a struct.
type Err_t struct {
	msg   string
	errno Errno
	isErrno bool
}

// Errnoval wraps an Errno as an Err_t.
func Errnoval(e Errno) *Err_t {
	return &Err_t{errno: e, isErrno: true}
}

// Msg wraps a plain message as an Err_t, used for kernel-internal failures
// that are never meant to reach userland (they indicate a bug and panic).
func Msg(format string, args ...interface{}) *Err_t {
	return &Err_t{msg: fmt.Sprintf(format, args...)}
}

func (e *Err_t) Errno() (Errno, bool) {
	if e == nil {
		return 0, false
	}
	return e.errno, e.isErrno
}

func (e *Err_t) Error() string {
	if e == nil {
		return "<nil err>"
	}
	if e.isErrno {
		return e.errno.String()
	}
	return e.msg
}

// Rc returns the return code the syscall dispatcher places in RAX: -errno on
// an Errno-flavored error, else the caller's kernel-bug path should already
// have panicked before constructing a return value at all.
func (e *Err_t) Rc() int64 {
	if e == nil {
		return 0
	}
	if e.isErrno {
		return -int64(e.errno)
	}
	return -int64(EINVAL)
}

// KResult is the generic result type threaded through the allocator, mapper,
// and vmem layers: either a value or an Err_t, never both.
type KResult[T any] struct {
	Value T
	Err   *Err_t
}

func Ok[T any](v T) KResult[T] {
	return KResult[T]{Value: v}
}

func Fail[T any](e *Err_t) KResult[T] {
	return KResult[T]{Err: e}
}

func (r KResult[T]) IsOk() bool {
	return r.Err == nil
}
