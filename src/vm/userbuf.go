package vm

import (
	"sync"

	"defs"
	"mem"
)

// UserTask is the minimal view vm needs of a task's address space to read
// or write its user memory: a mapper plus the guard that temporarily
// installs it.
type UserTask struct {
	AS     *AddressSpace
	Mapper *Mapper
}

// UserBuf assists reading and writing user memory a page at a time.
// Address lookups and accesses are atomic with respect to page faults: each
// chunk is bounded by the page the current offset falls in.
type UserBuf struct {
	userVA mem.VirtAddr
	len    int
	off    int
	task   *UserTask
	frames *mem.FrameAllocator
}

func (ub *UserBuf) Init(task *UserTask, frames *mem.FrameAllocator, uva mem.VirtAddr, length int) {
	if length < 0 {
		panic("vm: negative user buffer length")
	}
	ub.userVA = uva
	ub.len = length
	ub.off = 0
	ub.task = task
	ub.frames = frames
}

func (ub *UserBuf) Remain() int   { return ub.len - ub.off }
func (ub *UserBuf) Totalsz() int  { return ub.len }

// Uioread copies from user memory into dst.
func (ub *UserBuf) Uioread(dst []byte) (int, *defs.Err_t) {
	guard := ub.task.AS.TemporarilySwitchIn()
	defer guard.Release()
	return ub.tx(dst, false)
}

// Uiowrite copies src into user memory.
func (ub *UserBuf) Uiowrite(src []byte) (int, *defs.Err_t) {
	guard := ub.task.AS.TemporarilySwitchIn()
	defer guard.Release()
	return ub.tx(src, true)
}

// tx copies min(len(buf), remaining) bytes, a page at a time, returning the
// number of bytes transferred and an error code. On a partial failure the
// UserBuf's offset reflects how far the copy got, so a caller can resume.
func (ub *UserBuf) tx(buf []byte, write bool) (int, *defs.Err_t) {
	ret := 0
	for len(buf) != 0 && ub.off != ub.len {
		va := mem.VirtAddr(uint64(ub.userVA) + uint64(ub.off))
		page := mem.PageContaining(va)
		frame, flags, ok := ub.task.Mapper.Translate(page)
		if !ok {
			return ret, defs.Errnoval(defs.EFAULT)
		}
		if write && !flags.Has(Writable) {
			return ret, defs.Errnoval(defs.EFAULT)
		}
		pageBytes := ub.frames.Dmap(frame.StartAddress())
		pageOff := int(uint64(va) & (mem.PageSize - 1))
		avail := pageBytes[pageOff:]
		left := ub.len - ub.off
		if len(avail) > left {
			avail = avail[:left]
		}
		var c int
		if write {
			c = copy(avail, buf)
		} else {
			c = copy(buf, avail)
		}
		buf = buf[c:]
		ub.off += c
		ret += c
		if c == 0 {
			break
		}
	}
	return ret, nil
}

// FakeUserBuf implements the same read/write shape as UserBuf but operates
// directly on a kernel-owned slice, used when kernel code wants to treat
// its own buffer uniformly with user memory (e.g. exec's argv/envp
// staging).
type FakeUserBuf struct {
	buf []byte
	len int
}

func (fb *FakeUserBuf) Init(buf []byte) {
	fb.buf = buf
	fb.len = len(buf)
}

func (fb *FakeUserBuf) Remain() int  { return len(fb.buf) }
func (fb *FakeUserBuf) Totalsz() int { return fb.len }

func (fb *FakeUserBuf) Uioread(dst []byte) (int, *defs.Err_t) {
	c := copy(dst, fb.buf)
	fb.buf = fb.buf[c:]
	return c, nil
}

func (fb *FakeUserBuf) Uiowrite(src []byte) (int, *defs.Err_t) {
	c := copy(fb.buf, src)
	fb.buf = fb.buf[c:]
	return c, nil
}

// userBufPool recycles UserBuf values across syscalls the way Ubpool does
// for Userbuf_t, avoiding an allocation on every read/write.
var userBufPool = sync.Pool{New: func() interface{} { return new(UserBuf) }}

func GetUserBuf() *UserBuf  { return userBufPool.Get().(*UserBuf) }
func PutUserBuf(ub *UserBuf) { userBufPool.Put(ub) }
