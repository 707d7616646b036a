package syscall

import (
	"defs"
	"proc"
)

// iovec mirrors struct iovec{void *iov_base; size_t iov_len;} as laid out by
// the SysV x86_64 ABI: two 8-byte little-endian fields.
type iovec struct {
	base uint64
	len  uint64
}

func readIovecs(t *proc.Task, uva uint64, count int) ([]iovec, *defs.Err_t) {
	out := make([]iovec, 0, count)
	for i := 0; i < count; i++ {
		raw, ok := readUser(t, uva+uint64(i*16), 16)
		if !ok {
			return nil, defs.Errnoval(defs.EFAULT)
		}
		out = append(out, iovec{
			base: leUint64(raw[0:8]),
			len:  leUint64(raw[8:16]),
		})
	}
	return out, nil
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// sysWritevImpl writes each iovec's buffer in turn, stopping at the
// descriptor's first short write.
func sysWritevImpl(t *proc.Task, fdNum int, iovUva uint64, iovcnt int) (int64, *defs.Err_t) {
	iovs, err := readIovecs(t, iovUva, iovcnt)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, iov := range iovs {
		if iov.len == 0 {
			continue
		}
		n, err := sysWriteImpl(t, fdNum, iov.base, int(iov.len))
		if err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}
		total += n
		if n < int64(iov.len) {
			break
		}
	}
	return total, nil
}
