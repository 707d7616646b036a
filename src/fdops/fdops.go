// Package fdops declares the operation set every open-file implementation
// (pipe, devfs node, regular initramfs file) must provide: an interface-based
// "fops" indirection so fd.Fd_t can hold any backing kind behind one pointer.
package fdops

import (
	"defs"
	"stat"
)

// Fdops_i is implemented by every kind of open file this kernel supports.
type Fdops_i interface {
	Read(dst []byte, offset int) (int, *defs.Err_t)
	Write(src []byte, offset int) (int, *defs.Err_t)
	// Close releases any resources the fops holds. Idempotent is not
	// required; callers close each Fd_t exactly once.
	Close() *defs.Err_t
	// Reopen is called by Copyfd (dup/fork) to let the backing object
	// track an additional reference (e.g. a pipe's reader/writer count).
	Reopen() *defs.Err_t
	// Fstat fills st with this file's metadata.
	Fstat(st *stat.Stat_t) *defs.Err_t
}
