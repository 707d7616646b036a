// Package devfs implements the device nodes exposed under /dev: the TTY
// console, /dev/null, /dev/urandom, and the framebuffer, each adapted to
// this kernel's fdops.Fdops_i interface.
package devfs

import (
	"crypto/rand"
	"sync"

	"defs"
	"stat"
)

// Console wraps a line-discipline-free byte stream: writes go to out, reads
// come from in. The TTY line discipline itself (component outside this
// package) is expected to feed a pipe-backed in/out pair.
type Console struct {
	mu  sync.Mutex
	in  func([]byte) (int, *defs.Err_t)
	out func([]byte) (int, *defs.Err_t)
}

// NewConsole builds a console fops backed by the given read/write
// callbacks, letting the line discipline own the actual buffering.
func NewConsole(read, write func([]byte) (int, *defs.Err_t)) *Console {
	return &Console{in: read, out: write}
}

func (c *Console) Read(dst []byte, offset int) (int, *defs.Err_t) {
	return c.in(dst)
}

func (c *Console) Write(src []byte, offset int) (int, *defs.Err_t) {
	return c.out(src)
}

func (c *Console) Close() *defs.Err_t  { return nil }
func (c *Console) Reopen() *defs.Err_t { return nil }
func (c *Console) Fstat(st *stat.Stat_t) *defs.Err_t {
	st.Wmode(uint(sIFCHR | 0o666))
	st.Wrdev(uint(defs.D_TTY))
	return nil
}

// Null is /dev/null: writes are discarded, reads return EOF.
type Null struct{}

func (Null) Read(dst []byte, offset int) (int, *defs.Err_t) { return 0, nil }
func (Null) Write(src []byte, offset int) (int, *defs.Err_t) {
	return len(src), nil
}
func (Null) Close() *defs.Err_t  { return nil }
func (Null) Reopen() *defs.Err_t { return nil }
func (Null) Fstat(st *stat.Stat_t) *defs.Err_t {
	st.Wmode(uint(sIFCHR | 0o666))
	st.Wrdev(uint(defs.D_DEVNULL))
	return nil
}

// URandom is /dev/urandom: every read is filled from the host CSPRNG, this
// hosted simulation's stand-in for an in-kernel rdrand-backed generator.
type URandom struct{}

func (URandom) Read(dst []byte, offset int) (int, *defs.Err_t) {
	n, err := rand.Read(dst)
	if err != nil {
		return 0, defs.Errnoval(defs.EINVAL)
	}
	return n, nil
}
func (URandom) Write(src []byte, offset int) (int, *defs.Err_t) {
	return len(src), nil
}
func (URandom) Close() *defs.Err_t  { return nil }
func (URandom) Reopen() *defs.Err_t { return nil }
func (URandom) Fstat(st *stat.Stat_t) *defs.Err_t {
	st.Wmode(uint(sIFCHR | 0o666))
	st.Wrdev(uint(defs.D_URANDOM))
	return nil
}

// Framebuffer is /dev/fb0: a fixed-size plain byte buffer standing in for
// direct-mapped video memory, read/write at a caller-supplied offset.
type Framebuffer struct {
	mu  sync.Mutex
	buf []byte
}

func NewFramebuffer(width, height, bytesPerPixel int) *Framebuffer {
	return &Framebuffer{buf: make([]byte, width*height*bytesPerPixel)}
}

func (f *Framebuffer) Read(dst []byte, offset int) (int, *defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if offset < 0 || offset >= len(f.buf) {
		return 0, nil
	}
	n := copy(dst, f.buf[offset:])
	return n, nil
}

func (f *Framebuffer) Write(src []byte, offset int) (int, *defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if offset < 0 || offset >= len(f.buf) {
		return 0, defs.Errnoval(defs.EINVAL)
	}
	n := copy(f.buf[offset:], src)
	return n, nil
}

func (f *Framebuffer) Close() *defs.Err_t  { return nil }
func (f *Framebuffer) Reopen() *defs.Err_t { return nil }
func (f *Framebuffer) Fstat(st *stat.Stat_t) *defs.Err_t {
	f.mu.Lock()
	defer f.mu.Unlock()
	st.Wmode(uint(sIFCHR | 0o666))
	st.Wrdev(uint(defs.D_FB))
	st.Wsize(uint(len(f.buf)))
	return nil
}

const sIFCHR = 0o020000
