package syscall

import (
	"defs"
	"initramfs"
	"proc"
)

// linux_dirent64 layout: ino(8) off(8) reclen(2) type(1) name(var, NUL-term).
func encodeDirent64(ino uint64, off uint64, name string, kind byte) []byte {
	nameBytes := append([]byte(name), 0)
	recLen := 19 + len(nameBytes)
	recLen = (recLen + 7) &^ 7 // 8-byte align, matching glibc's getdents64 records
	rec := make([]byte, recLen)
	putLE64(rec[0:8], ino)
	putLE64(rec[8:16], off)
	putLE16(rec[16:18], uint16(recLen))
	rec[18] = kind
	copy(rec[19:], nameBytes)
	return rec
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

const (
	dtUnknown = 0
	dtReg     = 8
	dtDir     = 4
	dtLnk     = 10
)

func direntKind(n initramfs.Node) byte {
	switch n.(type) {
	case *initramfs.Dir:
		return dtDir
	case *initramfs.Symlink:
		return dtLnk
	case *initramfs.File:
		return dtReg
	default:
		return dtUnknown
	}
}

// sysGetdents64Impl fills dst with as many directory entries as fit, always
// starting from the directory's first entry: there is no per-handle cursor,
// so a repeated call returns the same entries again, not 0. Offsets are simply
// each child's index, since initramfs.Dir.Children() has no stable order to
// resume from beyond a linear position.
func sysGetdents64Impl(t *proc.Task, fdNum int, uva uint64, count int) (int64, *defs.Err_t) {
	f, err := t.GetOpenFile(fdNum)
	if err != nil {
		return 0, err
	}
	dh, ok := f.Fops.(*dirHandle)
	if !ok {
		return 0, defs.Errnoval(defs.ENOTDIR)
	}

	children := dh.dir.Children()
	var out []byte
	for i, c := range children {
		rec := encodeDirent64(uint64(i+1), uint64(i+1), c.Name(), direntKind(c))
		if len(out)+len(rec) > count {
			break
		}
		out = append(out, rec...)
	}
	if len(out) > 0 && !writeUser(t, uva, out) {
		return 0, defs.Errnoval(defs.EFAULT)
	}
	return int64(len(out)), nil
}
