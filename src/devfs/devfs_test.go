package devfs

import (
	"testing"

	"defs"
)

func TestNullDiscardsWritesAndReadsNothing(t *testing.T) {
	var n Null
	wrote, err := n.Write([]byte("hello"), 0)
	if err != nil || wrote != 5 {
		t.Fatalf("expected write to report all 5 bytes consumed, got %d, %v", wrote, err)
	}
	buf := make([]byte, 8)
	read, err := n.Read(buf, 0)
	if err != nil || read != 0 {
		t.Fatalf("expected /dev/null to read 0 bytes, got %d, %v", read, err)
	}
}

func TestURandomFillsBuffer(t *testing.T) {
	var u URandom
	buf := make([]byte, 32)
	n, err := u.Read(buf, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("expected a full read, got %d bytes", n)
	}
}

func TestFramebufferRoundTrip(t *testing.T) {
	fb := NewFramebuffer(4, 4, 4)
	data := []byte{1, 2, 3, 4}
	n, err := fb.Write(data, 8)
	if err != nil || n != len(data) {
		t.Fatalf("unexpected write result: %d, %v", n, err)
	}
	out := make([]byte, 4)
	if _, err := fb.Read(out, 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range data {
		if out[i] != data[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, out[i], data[i])
		}
	}
}

func TestConsoleDelegatesToCallbacks(t *testing.T) {
	var written []byte
	readCalls := 0
	c := NewConsole(
		func(dst []byte) (int, *defs.Err_t) {
			readCalls++
			return copy(dst, "hi"), nil
		},
		func(src []byte) (int, *defs.Err_t) {
			written = append(written, src...)
			return len(src), nil
		},
	)

	buf := make([]byte, 8)
	n, err := c.Read(buf, 0)
	if err != nil || n != 2 || string(buf[:n]) != "hi" {
		t.Fatalf("unexpected read result: %d, %q, %v", n, buf[:n], err)
	}
	if readCalls != 1 {
		t.Fatalf("expected the read callback to be invoked once")
	}

	if _, err := c.Write([]byte("out"), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(written) != "out" {
		t.Fatalf("expected the write callback to receive the bytes, got %q", written)
	}
}
