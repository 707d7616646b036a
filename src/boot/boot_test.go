package boot

import (
	"encoding/binary"
	"testing"

	"defs"
	"devfs"
	"mem"
	"trap"
)

func padHex(v uint32) string {
	const hex = "0123456789abcdef"
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = hex[v&0xf]
		v >>= 4
	}
	return string(out)
}

// buildEntry appends one CPIO-newc record (magic, 13 hex fields, name, data,
// each 4-byte aligned), matching initramfs_test.go's archive builder.
func buildEntry(buf []byte, name string, mode uint32, data []byte) []byte {
	namesize := len(name) + 1
	fields := []uint32{1, mode, 0, 0, 1, 0, uint32(len(data)), 0, 0, 0, 0, uint32(namesize), 0}
	buf = append(buf, []byte("070701")...)
	for _, f := range fields {
		buf = append(buf, []byte(padHex(f))...)
	}
	buf = append(buf, []byte(name)...)
	buf = append(buf, 0)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	buf = append(buf, data...)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func buildImage() []byte {
	var buf []byte
	const sIfdir = 0o040000
	buf = buildEntry(buf, ".", sIfdir, nil)
	buf = buildEntry(buf, "TRAILER!!!", 0, nil)
	return buf
}

// buildMinimalELF64 assembles a one-segment ET_EXEC binary by hand, the
// same shape elf_test.go's helper builds, so NewInit has something real to
// Exec.
func buildMinimalELF64(code []byte, vaddr uint64) []byte {
	const (
		ehdrSize = 64
		phdrSize = 56
	)
	phoff := uint64(ehdrSize)
	dataOff := ehdrSize + phdrSize

	buf := make([]byte, dataOff+len(code))
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 2
	buf[5] = 1
	buf[6] = 1

	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)
	le.PutUint16(buf[18:], 0x3e)
	le.PutUint32(buf[20:], 1)
	le.PutUint64(buf[24:], vaddr)
	le.PutUint64(buf[32:], phoff)
	le.PutUint64(buf[40:], 0)
	le.PutUint32(buf[48:], 0)
	le.PutUint16(buf[52:], ehdrSize)
	le.PutUint16(buf[54:], phdrSize)
	le.PutUint16(buf[56:], 1)
	le.PutUint16(buf[58:], 0)
	le.PutUint16(buf[60:], 0)
	le.PutUint16(buf[62:], 0)

	p := buf[phoff:]
	le.PutUint32(p[0:], 1)
	le.PutUint32(p[4:], 5)
	le.PutUint64(p[8:], uint64(dataOff))
	le.PutUint64(p[16:], vaddr)
	le.PutUint64(p[24:], vaddr)
	le.PutUint64(p[32:], uint64(len(code)))
	le.PutUint64(p[40:], uint64(len(code)))
	le.PutUint64(p[48:], 0x1000)

	copy(buf[dataOff:], code)
	return buf
}

func buildImageWithInit() []byte {
	var buf []byte
	const sIfdir = 0o040000
	const sIfreg = 0o100000
	elfImg := buildMinimalELF64([]byte{0xf4}, 0x400000)
	buf = buildEntry(buf, ".", sIfdir, nil)
	buf = buildEntry(buf, "init", sIfreg|0o755, elfImg)
	buf = buildEntry(buf, "TRAILER!!!", 0, nil)
	return buf
}

func testRanges() []mem.MemoryRange[mem.Frame] {
	return []mem.MemoryRange[mem.Frame]{{Start: 0, End: 4096}}
}

func TestNewBuildsKernelFromValidImage(t *testing.T) {
	k, err := New(testRanges(), 0xffff800000000000, buildImage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.RootFS == nil || k.Scheduler == nil || k.Dispatcher == nil {
		t.Fatalf("expected every component to be wired")
	}
}

func TestNewFailsOnBadMagic(t *testing.T) {
	_, err := New(testRanges(), 0xffff800000000000, []byte("not a cpio archive at all"))
	if err == nil {
		t.Fatalf("expected an error for a malformed image")
	}
}

func TestDispatchPageFaultRaisesSigsegvOnUnresolvedFault(t *testing.T) {
	k, err := New(testRanges(), 0xffff800000000000, buildImage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task := k.Scheduler.NewKernelTask(func() {}, false)
	// The scheduler's preempt task (created alongside the idle task in
	// proc.NewScheduler) occupies the run queue ahead of task, so it takes
	// two rounds of Preempt to cycle onto task.
	for i := 0; i < 2 && k.Scheduler.CurrentTask() != task; i++ {
		k.Scheduler.Preempt()
	}
	if k.Scheduler.CurrentTask() != task {
		t.Fatalf("expected the kernel task to become current")
	}

	frame := &trap.InterruptFrame{Rdi: 0x0000600000000000, Cs: 3}
	k.Dispatcher.Dispatch(vecPageFault, frame, 0, true)

	if !task.Signals.IsPending() {
		t.Fatalf("expected a SIGSEGV to be raised for an unmapped fault address")
	}
}

func TestDispatchTimerTicksScheduler(t *testing.T) {
	k, err := New(testRanges(), 0xffff800000000000, buildImage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k.Scheduler.NewKernelTask(func() {}, false)
	frame := &trap.InterruptFrame{Cs: 0}
	k.Dispatcher.Dispatch(vecTimer, frame, 0, false)
}

func TestNewInitWiresConsoleAndStartsPid1(t *testing.T) {
	k, err := New(testRanges(), 0xffff800000000000, buildImageWithInit())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	console := devfs.NewConsole(
		func(dst []byte) (int, *defs.Err_t) { return 0, nil },
		func(src []byte) (int, *defs.Err_t) { return len(src), nil },
	)
	task, err := k.NewInit("/init", console, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Pid() != 1 {
		t.Fatalf("expected pid 1, got %d", task.Pid())
	}
}
