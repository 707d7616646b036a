package syscall

import (
	"mem"
	"proc"
	"vm"
)

// userTaskFor builds the vm.UserTask view vm.UserBuf needs from a proc.Task.
func userTaskFor(t *proc.Task) *vm.UserTask {
	return &vm.UserTask{AS: t.AS, Mapper: t.AS.Mapper()}
}

// readUser copies n bytes starting at uva out of t's address space.
func readUser(t *proc.Task, uva uint64, n int) ([]byte, bool) {
	ub := vm.GetUserBuf()
	defer vm.PutUserBuf(ub)
	ub.Init(userTaskFor(t), t.Frames(), mem.VirtAddr(uva), n)
	buf := make([]byte, n)
	got, err := ub.Uioread(buf)
	if err != nil {
		return nil, false
	}
	return buf[:got], true
}

// writeUser copies data into t's address space starting at uva.
func writeUser(t *proc.Task, uva uint64, data []byte) bool {
	ub := vm.GetUserBuf()
	defer vm.PutUserBuf(ub)
	ub.Init(userTaskFor(t), t.Frames(), mem.VirtAddr(uva), len(data))
	_, err := ub.Uiowrite(data)
	return err == nil
}

// readUserCString reads a NUL-terminated string from user memory, 64 bytes
// at a time, up to maxLen bytes.
func readUserCString(t *proc.Task, uva uint64, maxLen int) (string, bool) {
	const chunk = 64
	var out []byte
	for len(out) < maxLen {
		n := chunk
		if remaining := maxLen - len(out); remaining < n {
			n = remaining
		}
		b, ok := readUser(t, uva+uint64(len(out)), n)
		if !ok {
			return "", false
		}
		for _, c := range b {
			if c == 0 {
				return string(out), true
			}
			out = append(out, c)
		}
		if len(b) < n {
			break
		}
	}
	return string(out), true
}
