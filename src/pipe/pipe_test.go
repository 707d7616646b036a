package pipe

import (
	"testing"

	"defs"
	"mem"
	"proc"
	"vm"
)

func freshPipe(t *testing.T) (*mem.FrameAllocator, *proc.Scheduler, *Pipe) {
	t.Helper()
	fa := mem.NewFrameAllocator([]mem.MemoryRange[mem.Frame]{{Start: 0, End: 4096}}, 0xffff800000000000)
	vm.InitKernelState(fa)
	s := proc.NewScheduler(fa)
	SetScheduler(s)

	p, err := New(fa)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return fa, s, p
}

func TestPipeWriteThenRead(t *testing.T) {
	_, _, p := freshPipe(t)

	n, err := p.WriteEnd().Write([]byte("hello"), 0)
	if err != nil || n != 5 {
		t.Fatalf("unexpected write result: %d, %v", n, err)
	}

	buf := make([]byte, 16)
	n, err = p.ReadEnd().Read(buf, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("expected to read back what was written, got %q", buf[:n])
	}
}

func TestPipeReadReportsEOFAfterWriterCloses(t *testing.T) {
	_, _, p := freshPipe(t)

	if err := p.WriteEnd().Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	buf := make([]byte, 16)
	n, err := p.ReadEnd().Read(buf, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected EOF (0 bytes), got %d", n)
	}
}

func TestPipeWriteReportsEpipeAfterReaderCloses(t *testing.T) {
	_, _, p := freshPipe(t)

	if err := p.ReadEnd().Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := p.WriteEnd().Write([]byte("x"), 0)
	if err == nil {
		t.Fatalf("expected EPIPE once every reader has closed")
	}
	if errno, ok := err.Errno(); !ok || errno != defs.EPIPE {
		t.Fatalf("expected EPIPE, got %v", err)
	}
}

func TestPipeEndsRejectWrongDirection(t *testing.T) {
	_, _, p := freshPipe(t)

	if _, err := p.ReadEnd().Write([]byte("x"), 0); err == nil {
		t.Fatalf("expected the read end to reject writes")
	}
	if _, err := p.WriteEnd().Read(make([]byte, 1), 0); err == nil {
		t.Fatalf("expected the write end to reject reads")
	}
}
