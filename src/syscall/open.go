package syscall

import (
	"bpath"
	"defs"
	"fd"
	"fdops"
	"initramfs"
	"proc"
	"stat"
	"ustr"
)

const (
	oRdonly  = 0x0
	oWronly  = 0x1
	oRdwr    = 0x2
	oAccmode = 0x3
)

// resolvePath joins a possibly-relative user path onto the task's cwd and
// canonicalizes it with bpath, the same '.'/'..'-collapsing path code the
// in-kernel mutable filesystems use.
func resolvePath(t *proc.Task, p string) string {
	var joined ustr.Ustr
	if len(p) > 0 && p[0] == '/' {
		joined = ustr.Ustr(p)
	} else {
		joined = ustr.Ustr(t.Cwd() + "/" + p)
	}
	return bpath.Canonicalize(joined).String()
}

// dirHandle is the fdops.Fdops_i wrapper handed out for an opened directory:
// it refuses ordinary I/O (EISDIR) but exposes its entries to getdents64.
type dirHandle struct{ dir *initramfs.Dir }

func (d *dirHandle) Read(dst []byte, offset int) (int, *defs.Err_t)  { return 0, defs.Errnoval(defs.EISDIR) }
func (d *dirHandle) Write(src []byte, offset int) (int, *defs.Err_t) { return 0, defs.Errnoval(defs.EISDIR) }
func (d *dirHandle) Close() *defs.Err_t                               { return nil }
func (d *dirHandle) Reopen() *defs.Err_t                              { return nil }
func (d *dirHandle) Fstat(st *stat.Stat_t) *defs.Err_t {
	st.Wmode(uint(0o040000 | (d.dir.Mode() &^ 0o170000)))
	return nil
}

// fopsForNode adapts a parsed initramfs node to the fd table's Fdops_i,
// refusing symlinks (open(2) without O_NOFOLLOW would need resolution this
// dispatcher doesn't perform) with ELOOP.
func fopsForNode(node initramfs.Node) (fdops.Fdops_i, *defs.Err_t) {
	switch n := node.(type) {
	case *initramfs.File:
		return n.Fdops(), nil
	case *initramfs.Dir:
		return &dirHandle{dir: n}, nil
	case *initramfs.Symlink:
		return nil, defs.Errnoval(defs.ELOOP)
	default:
		return nil, defs.Errnoval(defs.EINVAL)
	}
}

func isDirNode(n initramfs.Node) bool {
	_, ok := n.(*initramfs.Dir)
	return ok
}

// sysOpenImpl resolves the path, walks the root filesystem, and installs a file descriptor.
// initramfs is read-only (no O_CREAT support); regular files and
// directories both open successfully, the latter only useful for
// getdents64.
func sysOpenImpl(t *proc.Task, pathUva uint64, flags int32, mode uint32) (int64, *defs.Err_t) {
	p, ok := readUserCString(t, pathUva, 512)
	if !ok {
		return 0, defs.Errnoval(defs.EFAULT)
	}
	resolved := resolvePath(t, p)

	if devFops, ok := devNode(resolved); ok {
		perms := fd.FD_READ
		if flags&oAccmode != oRdonly {
			perms |= fd.FD_WRITE
		}
		n := t.AddOpenFile(&fd.Fd_t{Fops: devFops, Perms: perms})
		return int64(n), nil
	}

	fs := currentRootFS()
	if fs == nil {
		return 0, defs.Errnoval(defs.ENOSYS)
	}
	node, err := fs.Lookup(resolved)
	if err != nil {
		return 0, err
	}

	fops, err := fopsForNode(node)
	if err != nil {
		return 0, err
	}

	perms := fd.FD_READ
	if _, isDir := node.(*initramfs.Dir); !isDir && flags&oAccmode != oRdonly {
		perms |= fd.FD_WRITE
	}

	n := t.AddOpenFile(&fd.Fd_t{Fops: fops, Perms: perms})
	return int64(n), nil
}
