package bpath

import (
	"testing"

	"ustr"
)

func TestCanonicalizeCollapsesDotAndDotDot(t *testing.T) {
	got := Canonicalize(ustr.Ustr("/a/./b/../c//d"))
	if got.String() != "/a/c/d" {
		t.Fatalf("got %q", got.String())
	}
}

func TestCanonicalizeRoot(t *testing.T) {
	got := Canonicalize(ustr.Ustr("/"))
	if got.String() != "/" {
		t.Fatalf("got %q", got.String())
	}
	got = Canonicalize(ustr.Ustr("/.."))
	if got.String() != "/" {
		t.Fatalf("got %q", got.String())
	}
}

func TestDirnameBasename(t *testing.T) {
	if Dirname(ustr.Ustr("/a/b/c")).String() != "/a/b" {
		t.Fatalf("unexpected dirname")
	}
	if Basename(ustr.Ustr("/a/b/c")).String() != "c" {
		t.Fatalf("unexpected basename")
	}
	if Dirname(ustr.Ustr("/a")).String() != "/" {
		t.Fatalf("unexpected top-level dirname")
	}
}
