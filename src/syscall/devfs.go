package syscall

import (
	"sync"

	"devfs"
	"fdops"
)

var consoleMu sync.Mutex
var console fdops.Fdops_i

// SetConsole installs the fdops.Fdops_i backing /dev/console, the same
// device handed to init's stdin/stdout/stderr at boot.
func SetConsole(c fdops.Fdops_i) {
	consoleMu.Lock()
	console = c
	consoleMu.Unlock()
}

func currentConsole() fdops.Fdops_i {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	return console
}

// devNode resolves a canonicalized path against the fixed set of device
// nodes under /dev, returning ok=false for anything else so the caller
// falls through to the initramfs lookup.
func devNode(path string) (fdops.Fdops_i, bool) {
	switch path {
	case "/dev/null":
		return devfs.Null{}, true
	case "/dev/urandom", "/dev/random":
		return devfs.URandom{}, true
	case "/dev/console", "/dev/tty":
		if c := currentConsole(); c != nil {
			return c, true
		}
		return nil, false
	case "/dev/fb0":
		return devfs.NewFramebuffer(1024, 768, 4), true
	default:
		return nil, false
	}
}
