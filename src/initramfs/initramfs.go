// Package initramfs parses the CPIO-newc archive embedded in the boot image
// into an in-memory directory tree. Directory lookups use a
// hashtable.Hashtable_t keyed by ustr.Ustr, the same structure the in-kernel
// mutable filesystem code uses for directory entries.
package initramfs

import (
	"strconv"

	"defs"
	"fdops"
	"hashtable"
	"stat"
	"ustr"
)

const (
	sIFMT  = 0o170000
	sIFDIR = 0o040000
	sIFREG = 0o100000
	sIFLNK = 0o120000
)

const magic = "070701"

// Indices of the 8-hex-digit fields following the 6-byte magic in a
// CPIO-newc header, in on-disk order; numFields is their count.
const (
	fieldIno = iota
	fieldMode
	fieldUID
	fieldGID
	fieldNlink
	fieldMtime
	fieldFilesize
	fieldDevMajor
	fieldDevMinor
	fieldRDevMajor
	fieldRDevMinor
	fieldNamesize
	fieldCheck
	numFields
)

const dirBuckets = 64

// Node is any entry found in the archive: a regular file, a directory, or a
// symlink.
type Node interface {
	Name() string
	Mode() uint32
}

// File is a regular file's contents, read-only after parsing.
type File struct {
	name string
	ino  uint32
	mode uint32
	data []byte
}

func (f *File) Name() string { return f.name }
func (f *File) Mode() uint32 { return f.mode }

// Fdops returns an fdops.Fdops_i that reads this file's embedded bytes.
func (f *File) Fdops() fdops.Fdops_i { return &fileFops{f: f} }

// Data returns the file's embedded bytes, used by execve to load the image
// directly rather than through a read(2)-shaped interface.
func (f *File) Data() []byte { return f.data }

type fileFops struct{ f *File }

func (h *fileFops) Read(dst []byte, offset int) (int, *defs.Err_t) {
	if offset < 0 || offset >= len(h.f.data) {
		return 0, nil
	}
	n := copy(dst, h.f.data[offset:])
	return n, nil
}

func (h *fileFops) Write(src []byte, offset int) (int, *defs.Err_t) {
	return 0, defs.Errnoval(defs.EINVAL)
}

func (h *fileFops) Close() *defs.Err_t  { return nil }
func (h *fileFops) Reopen() *defs.Err_t { return nil }
func (h *fileFops) Fstat(st *stat.Stat_t) *defs.Err_t {
	st.Wino(uint(h.f.ino))
	st.Wmode(uint(sIFREG | (h.f.mode &^ sIFMT)))
	st.Wsize(uint(len(h.f.data)))
	return nil
}

// Symlink holds a target path string; initramfs never resolves it itself,
// leaving traversal to whatever path-lookup code walks the tree.
type Symlink struct {
	name string
	ino  uint32
	mode uint32
	dst  string
}

func (s *Symlink) Name() string  { return s.name }
func (s *Symlink) Mode() uint32  { return s.mode }
func (s *Symlink) Target() string { return s.dst }

// Dir is a directory of child nodes, looked up by name through a
// hashtable.Hashtable_t the same way other in-kernel filesystem directories do.
type Dir struct {
	name     string
	ino      uint32
	mode     uint32
	children *hashtable.Hashtable_t
}

func newDir(name string, ino uint32, mode uint32) *Dir {
	return &Dir{name: name, ino: ino, mode: mode, children: hashtable.MkHash(dirBuckets)}
}

func (d *Dir) Name() string { return d.name }
func (d *Dir) Mode() uint32 { return d.mode }

// Lookup returns the child named name, if any.
func (d *Dir) Lookup(name ustr.Ustr) (Node, bool) {
	v, ok := d.children.Get(name)
	if !ok {
		return nil, false
	}
	return v.(Node), true
}

func (d *Dir) insert(name string, n Node) {
	d.children.Set(ustr.Ustr(name), n)
}

// Children returns every directory entry, in no particular order.
func (d *Dir) Children() []Node {
	pairs := d.children.Elems()
	out := make([]Node, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.Value.(Node))
	}
	return out
}

// FS is the parsed archive: a root directory plus the bookkeeping
// mod.rs::InitRamFs::parse logs on completion.
type FS struct {
	Root     *Dir
	NumFiles int
	NumBytes int
}

// Lookup walks a '/'-separated absolute or relative path from the root.
// Symlinks are not followed: a symlink as the last component is returned
// as-is, and one in the middle of the path yields ENOTDIR.
func (fs *FS) Lookup(path string) (Node, *defs.Err_t) {
	if path == "" || path == "." || path == "/" {
		return fs.Root, nil
	}
	comps := splitPath(path)
	var cur Node = fs.Root
	for i, c := range comps {
		dir, ok := cur.(*Dir)
		if !ok {
			return nil, defs.Errnoval(defs.ENOTDIR)
		}
		child, ok := dir.Lookup(ustr.Ustr(c))
		if !ok {
			return nil, defs.Errnoval(defs.ENOENT)
		}
		if i == len(comps)-1 {
			return child, nil
		}
		cur = child
	}
	return cur, nil
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				out = append(out, path[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// parser walks the archive byte-by-byte the way mod.rs's ByteParser does,
// tracking a cursor and rejecting reads that would run past the buffer.
type parser struct {
	buf []byte
	pos int
}

func (p *parser) remainingLen() int { return len(p.buf) - p.pos }

func (p *parser) consume(n int) ([]byte, *defs.Err_t) {
	if p.pos+n > len(p.buf) {
		return nil, defs.Errnoval(defs.EINVAL)
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b, nil
}

func (p *parser) skip(n int) *defs.Err_t {
	if p.pos+n > len(p.buf) {
		return defs.Errnoval(defs.EINVAL)
	}
	p.pos += n
	return nil
}

func (p *parser) alignTo(align int) *defs.Err_t {
	next := (p.pos + align - 1) &^ (align - 1)
	if next > len(p.buf) {
		return defs.Errnoval(defs.EINVAL)
	}
	p.pos = next
	return nil
}

func parseHexField(b []byte) (uint32, *defs.Err_t) {
	v, err := strconv.ParseUint(string(b), 16, 32)
	if err != nil {
		return 0, defs.Errnoval(defs.EINVAL)
	}
	return uint32(v), nil
}

// Parse decodes a CPIO-newc archive into an FS: each entry is an ASCII-hex
// header followed by a NUL-terminated path and the file's raw bytes, both
// padded to 4-byte boundaries, terminated by an entry named "TRAILER!!!".
func Parse(image []byte) (*FS, *defs.Err_t) {
	p := &parser{buf: image}
	root := newDir("", 2, sIFDIR|0o755)
	fs := &FS{Root: root}

	for p.remainingLen() > 0 {
		magicBytes, err := p.consume(6)
		if err != nil {
			return nil, err
		}
		if string(magicBytes) != magic {
			return nil, defs.Errnoval(defs.EINVAL)
		}

		var fields [numFields]uint32
		for i := 0; i < numFields; i++ {
			raw, err := p.consume(8)
			if err != nil {
				return nil, err
			}
			v, err := parseHexField(raw)
			if err != nil {
				return nil, err
			}
			fields[i] = v
		}

		nameLen := int(fields[fieldNamesize])
		if nameLen == 0 {
			return nil, defs.Errnoval(defs.EINVAL)
		}
		nameBytes, err := p.consume(nameLen - 1) // drop the trailing NUL
		if err != nil {
			return nil, err
		}
		if err := p.skip(1); err != nil { // the NUL itself
			return nil, err
		}
		if err := p.alignTo(4); err != nil {
			return nil, err
		}

		name := string(nameBytes)
		if len(name) >= 2 && name[0] == '.' && name[1] == '/' {
			name = name[1:]
		}
		if name == "TRAILER!!!" {
			break
		}

		filesize := int(fields[fieldFilesize])
		if name == "" || name == "." {
			if err := p.skip(filesize); err != nil {
				return nil, err
			}
			if err := p.alignTo(4); err != nil {
				return nil, err
			}
			continue
		}

		parent, base := walkParent(root, name)
		if parent == nil {
			if err := p.skip(filesize); err != nil {
				return nil, err
			}
			if err := p.alignTo(4); err != nil {
				return nil, err
			}
			continue
		}

		data, err := p.consume(filesize)
		if err != nil {
			return nil, err
		}

		mode := fields[fieldMode]
		ino := fields[fieldIno]
		switch mode & sIFMT {
		case sIFLNK:
			parent.insert(base, &Symlink{name: base, ino: ino, mode: mode, dst: string(data)})
		case sIFDIR:
			parent.insert(base, newDir(base, ino, mode))
		default:
			stored := make([]byte, len(data))
			copy(stored, data)
			parent.insert(base, &File{name: base, ino: ino, mode: mode, data: stored})
			fs.NumFiles++
			fs.NumBytes += len(stored)
		}

		if err := p.alignTo(4); err != nil {
			return nil, err
		}
	}

	return fs, nil
}

// walkParent descends from root through every component of path but the
// last, creating no directories along the way (CPIO archives always list
// parents before children); it returns nil if an intermediate component is
// missing or not a directory, matching mod.rs's walk() giving up on a
// missing ancestor.
func walkParent(root *Dir, path string) (*Dir, string) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return nil, ""
	}
	dir := root
	for _, c := range comps[:len(comps)-1] {
		child, ok := dir.Lookup(ustr.Ustr(c))
		if !ok {
			return nil, ""
		}
		next, ok := child.(*Dir)
		if !ok {
			return nil, ""
		}
		dir = next
	}
	return dir, comps[len(comps)-1]
}
