package initramfs

import (
	"fmt"
	"testing"
)

type cpioEntry struct {
	name string
	mode uint32
	data []byte
}

func align4(n int) int { return (n + 3) &^ 3 }

func buildArchive(entries []cpioEntry) []byte {
	var buf []byte
	ino := uint32(100)
	for _, e := range entries {
		name := e.name
		namesize := len(name) + 1 // include the trailing NUL
		header := fmt.Sprintf("070701%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x",
			ino, e.mode, 0, 0, 1, 0, len(e.data), 0, 0, 0, 0, namesize, 0)
		buf = append(buf, []byte(header)...)
		buf = append(buf, []byte(name)...)
		buf = append(buf, 0)
		for len(buf)%4 != 0 {
			buf = append(buf, 0)
		}
		buf = append(buf, e.data...)
		for len(buf)%4 != 0 {
			buf = append(buf, 0)
		}
		ino++
	}
	trailer := fmt.Sprintf("070701%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x",
		0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, len("TRAILER!!!")+1, 0)
	buf = append(buf, []byte(trailer)...)
	buf = append(buf, []byte("TRAILER!!!")...)
	buf = append(buf, 0)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func TestParseBuildsDirectoryTree(t *testing.T) {
	archive := buildArchive([]cpioEntry{
		{name: ".", mode: sIFDIR | 0o755},
		{name: "bin", mode: sIFDIR | 0o755},
		{name: "bin/init", mode: sIFREG | 0o755, data: []byte("\x7fELF")},
		{name: "etc", mode: sIFDIR | 0o755},
		{name: "etc/hostname", mode: sIFREG | 0o644, data: []byte("box\n")},
	})

	fs, err := Parse(archive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.NumFiles != 2 {
		t.Fatalf("expected 2 regular files, got %d", fs.NumFiles)
	}

	node, err := fs.Lookup("bin/init")
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	file, ok := node.(*File)
	if !ok {
		t.Fatalf("expected bin/init to be a regular file, got %T", node)
	}

	buf := make([]byte, 16)
	fops := file.Fdops()
	n, err := fops.Read(buf, 0)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if string(buf[:n]) != "\x7fELF" {
		t.Fatalf("unexpected file contents: %q", buf[:n])
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	bad := []byte("xxxxxx00000001000081ed000000000000000100000000000000000000000000000000000000000000000b000000000002002f6574630000TRAILER!!!\x00")
	if _, err := Parse(bad); err == nil {
		t.Fatalf("expected an error for a bad magic number")
	}
}

func TestLookupReportsEnoentForMissingPath(t *testing.T) {
	archive := buildArchive([]cpioEntry{
		{name: "etc", mode: sIFDIR | 0o755},
	})
	fs, err := Parse(archive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fs.Lookup("etc/missing"); err == nil {
		t.Fatalf("expected ENOENT for a missing path")
	}
}

func TestSymlinkStoresTarget(t *testing.T) {
	archive := buildArchive([]cpioEntry{
		{name: "bin", mode: sIFDIR | 0o755},
		{name: "bin/sh", mode: sIFLNK, data: []byte("busybox")},
	})
	fs, err := Parse(archive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	node, err := fs.Lookup("bin/sh")
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	link, ok := node.(*Symlink)
	if !ok {
		t.Fatalf("expected a symlink, got %T", node)
	}
	if link.Target() != "busybox" {
		t.Fatalf("unexpected symlink target: %q", link.Target())
	}
}
