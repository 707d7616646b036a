// Package bpath implements path canonicalization over ustr.Ustr, the way
// the rest of this tree works with paths as byte slices rather than Go
// strings (so that, like the kernel it's modeled on, no path component is
// ever assumed to be valid UTF-8).
package bpath

import "ustr"

// Canonicalize resolves "." and ".." components and collapses repeated
// slashes in an absolute path, without touching the filesystem (symlinks
// are a Non-goal). The result is always absolute and never ends in a
// trailing slash, except for the root itself.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	if !p.IsAbsolute() {
		panic("bpath: Canonicalize requires an absolute path")
	}
	parts := split(p)
	out := make([]ustr.Ustr, 0, len(parts))
	for _, part := range parts {
		switch {
		case part.Isdot() || len(part) == 0:
			continue
		case part.Isdotdot():
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}
	return join(out)
}

// split breaks an absolute path into its non-empty components.
func split(p ustr.Ustr) []ustr.Ustr {
	var parts []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				parts = append(parts, p[start:i])
			}
			start = i + 1
		}
	}
	return parts
}

// join rebuilds an absolute path from canonical components.
func join(parts []ustr.Ustr) ustr.Ustr {
	if len(parts) == 0 {
		return ustr.MkUstrRoot()
	}
	out := ustr.MkUstr()
	for _, part := range parts {
		out = append(out, '/')
		out = append(out, part...)
	}
	return out
}

// Dirname returns the path with its final component removed, or "/" if p
// names a top-level entry.
func Dirname(p ustr.Ustr) ustr.Ustr {
	parts := split(Canonicalize(p))
	if len(parts) <= 1 {
		return ustr.MkUstrRoot()
	}
	return join(parts[:len(parts)-1])
}

// Basename returns the final path component.
func Basename(p ustr.Ustr) ustr.Ustr {
	parts := split(Canonicalize(p))
	if len(parts) == 0 {
		return ustr.MkUstrRoot()
	}
	return parts[len(parts)-1]
}
