// Package pipe implements anonymous pipes: a fixed-capacity ring buffer
// shared between a read end and a write end, each blocking the calling
// task when empty/full respectively. Modeled on circbuf.Circbuf_t
// (page-backed ring buffer with head/tail indices) and its Pipe (a
// RingBuffer behind a WaitQueue, woken on every push/pop).
package pipe

import (
	"sync"

	"defs"
	"mem"
	"proc"
	"stat"
)

// ringBuffer is a fixed-capacity byte ring, backed by one physical frame
// allocated up front by newRingBuffer when the pipe is created.
type ringBuffer struct {
	buf        []byte
	head, tail int
	count      int
}

func newRingBuffer(frames *mem.FrameAllocator) (*ringBuffer, *defs.Err_t) {
	alloc, err := frames.AllocFrames(1)
	if err != nil {
		return nil, err
	}
	return &ringBuffer{buf: frames.Dmap(alloc.Range.Start.StartAddress())[:mem.PageSize]}, nil
}

func (r *ringBuffer) readable() bool { return r.count > 0 }
func (r *ringBuffer) writable() bool { return r.count < len(r.buf) }

func (r *ringBuffer) pop(dst []byte) int {
	n := 0
	for n < len(dst) && r.count > 0 {
		dst[n] = r.buf[r.tail]
		r.tail = (r.tail + 1) % len(r.buf)
		r.count--
		n++
	}
	return n
}

func (r *ringBuffer) push(src []byte) int {
	n := 0
	for n < len(src) && r.count < len(r.buf) {
		r.buf[r.head] = src[n]
		r.head = (r.head + 1) % len(r.buf)
		r.count++
		n++
	}
	return n
}

// Pipe is one anonymous pipe: a shared ring buffer plus a wait queue woken
// on every read and every write, and reference counts on each end so the
// writer can detect a reader-gone EPIPE and the reader can detect EOF once
// every writer has closed.
type Pipe struct {
	mu      sync.Mutex
	ring    *ringBuffer
	waiters *proc.WaitQueue
	readers int
	writers int
}

// New allocates a pipe's ring buffer and returns it with one reader and one
// writer reference already held, matching pipe(2)'s fd pair.
func New(frames *mem.FrameAllocator) (*Pipe, *defs.Err_t) {
	ring, err := newRingBuffer(frames)
	if err != nil {
		return nil, err
	}
	return &Pipe{ring: ring, waiters: proc.NewWaitQueue(), readers: 1, writers: 1}, nil
}

// ReadEnd and WriteEnd are the two fdops.Fdops_i implementations handed to
// the two descriptors pipe(2) returns.
type ReadEnd struct{ p *Pipe }
type WriteEnd struct{ p *Pipe }

func (p *Pipe) ReadEnd() *ReadEnd   { return &ReadEnd{p: p} }
func (p *Pipe) WriteEnd() *WriteEnd { return &WriteEnd{p: p} }

func (r *ReadEnd) Read(dst []byte, offset int) (int, *defs.Err_t) {
	n, err := proc.SleepSignalableUntil(currentScheduler(), r.p.waiters, func() (int, bool) {
		r.p.mu.Lock()
		defer r.p.mu.Unlock()
		if r.p.ring.readable() {
			n := r.p.ring.pop(dst)
			return n, true
		}
		if r.p.writers == 0 {
			return 0, true // EOF: every writer has closed
		}
		return 0, false
	})
	if err == nil {
		// A successful pop frees ring space; wake any writer blocked on it.
		r.p.waiters.WakeAll(currentScheduler())
	}
	return n, err
}

func (r *ReadEnd) Write(src []byte, offset int) (int, *defs.Err_t) {
	return 0, defs.Errnoval(defs.ESPIPE)
}

func (r *ReadEnd) Close() *defs.Err_t {
	r.p.mu.Lock()
	r.p.readers--
	r.p.mu.Unlock()
	r.p.waiters.WakeAll(currentScheduler())
	return nil
}

func (r *ReadEnd) Reopen() *defs.Err_t {
	r.p.mu.Lock()
	r.p.readers++
	r.p.mu.Unlock()
	return nil
}

func (r *ReadEnd) Fstat(st *stat.Stat_t) *defs.Err_t {
	st.Wmode(uint(sIFIFO | 0o600))
	return nil
}

func (w *WriteEnd) Read(dst []byte, offset int) (int, *defs.Err_t) {
	return 0, defs.Errnoval(defs.ESPIPE)
}

func (w *WriteEnd) Write(src []byte, offset int) (int, *defs.Err_t) {
	w.p.mu.Lock()
	noReaders := w.p.readers == 0
	w.p.mu.Unlock()
	if noReaders {
		return 0, defs.Errnoval(defs.EPIPE)
	}
	n, err := proc.SleepSignalableUntil(currentScheduler(), w.p.waiters, func() (int, bool) {
		w.p.mu.Lock()
		defer w.p.mu.Unlock()
		if w.p.ring.writable() {
			n := w.p.ring.push(src)
			return n, true
		}
		return 0, false
	})
	if err == nil {
		// A successful push makes data readable; wake any reader blocked on it.
		w.p.waiters.WakeAll(currentScheduler())
	}
	return n, err
}

func (w *WriteEnd) Close() *defs.Err_t {
	w.p.mu.Lock()
	w.p.writers--
	w.p.mu.Unlock()
	w.p.waiters.WakeAll(currentScheduler())
	return nil
}

func (w *WriteEnd) Reopen() *defs.Err_t {
	w.p.mu.Lock()
	w.p.writers++
	w.p.mu.Unlock()
	return nil
}

func (w *WriteEnd) Fstat(st *stat.Stat_t) *defs.Err_t {
	st.Wmode(uint(sIFIFO | 0o600))
	return nil
}

const sIFIFO = 0o010000

// currentScheduler is set once by the kernel's boot sequence (component
// outside this package); every WaitQueue wait goes through the single
// system-wide scheduler.
var schedulerMu sync.Mutex
var scheduler *proc.Scheduler

func SetScheduler(s *proc.Scheduler) {
	schedulerMu.Lock()
	scheduler = s
	schedulerMu.Unlock()
}

func currentScheduler() *proc.Scheduler {
	schedulerMu.Lock()
	defer schedulerMu.Unlock()
	return scheduler
}
