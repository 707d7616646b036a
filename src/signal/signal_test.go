package signal

import "testing"

func TestDefaultActionsMatchPosix(t *testing.T) {
	d := NewDelivery()
	if a := d.GetAction(SIGKILL); a.Disp != Terminate {
		t.Fatalf("SIGKILL should default to Terminate, got %v", a.Disp)
	}
	if a := d.GetAction(SIGCHLD); a.Disp != Ignore {
		t.Fatalf("SIGCHLD should default to Ignore, got %v", a.Disp)
	}
}

func TestPopPendingReturnsLowestNumbered(t *testing.T) {
	d := NewDelivery()
	d.Raise(SIGTERM)
	d.Raise(SIGHUP)
	sig, _, ok := d.PopPending()
	if !ok || sig != SIGHUP {
		t.Fatalf("expected SIGHUP first, got %v ok=%v", sig, ok)
	}
	sig, _, ok = d.PopPending()
	if !ok || sig != SIGTERM {
		t.Fatalf("expected SIGTERM second, got %v ok=%v", sig, ok)
	}
	if _, _, ok := d.PopPending(); ok {
		t.Fatalf("expected no more pending signals")
	}
}

func TestSetActionRejectsOutOfRange(t *testing.T) {
	d := NewDelivery()
	if d.SetAction(Signal(sigMax), SigAction{Disp: Ignore}) {
		t.Fatalf("expected out-of-range signal to be rejected")
	}
}

func TestSigSetMaskOperations(t *testing.T) {
	var blocked SigSet
	blocked.Set(SIGINT, true)
	var add SigSet
	add.Set(SIGTERM, true)

	blocked = ApplyMask(blocked, MaskBlock, add)
	if !blocked.Test(SIGINT) || !blocked.Test(SIGTERM) {
		t.Fatalf("expected both signals blocked after MaskBlock")
	}

	var unblockInt SigSet
	unblockInt.Set(SIGINT, true)
	blocked = ApplyMask(blocked, MaskUnblock, unblockInt)
	if blocked.Test(SIGINT) {
		t.Fatalf("expected SIGINT unblocked")
	}
	if !blocked.Test(SIGTERM) {
		t.Fatalf("expected SIGTERM to remain blocked")
	}
}

func TestRependKeepsSignalPending(t *testing.T) {
	d := NewDelivery()
	d.Raise(SIGUSR1)
	sig, _, _ := d.PopPending()
	d.Repend(sig)
	if !d.IsPending() {
		t.Fatalf("expected signal to remain pending after Repend")
	}
}
