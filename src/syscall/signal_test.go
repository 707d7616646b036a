package syscall

import (
	"testing"

	"mem"
	"signal"
)

func TestSysRtSigactionSigDflRestoresDefaultDisposition(t *testing.T) {
	_, task := freshTask(t)
	page := mem.Page(5)
	mapUserPage(t, task, page)
	uva := uint64(page.StartAddress())

	task.Signals.SetAction(signal.SIGTERM, signal.SigAction{Disp: signal.Handled, Handler: 0x9000})

	buf := make([]byte, 16)
	putLE64(buf[:8], 0) // SIG_DFL
	if !writeUser(task, uva, buf) {
		t.Fatalf("expected to write the sigaction struct into user memory")
	}

	if _, err := sysRtSigactionImpl(task, int32(signal.SIGTERM), uva, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := task.Signals.GetAction(signal.SIGTERM)
	want := signal.DefaultAction(signal.SIGTERM)
	if got.Disp != want.Disp {
		t.Fatalf("expected SIG_DFL to restore disposition %v, got %v", want.Disp, got.Disp)
	}
	if got.Disp != signal.Terminate {
		t.Fatalf("expected SIGTERM's real default to be Terminate, got %v", got.Disp)
	}
}

func TestSysRtSigactionSigIgnIgnoresRatherThanTerminates(t *testing.T) {
	_, task := freshTask(t)
	page := mem.Page(6)
	mapUserPage(t, task, page)
	uva := uint64(page.StartAddress())

	buf := make([]byte, 16)
	putLE64(buf[:8], 1) // SIG_IGN
	if !writeUser(task, uva, buf) {
		t.Fatalf("expected to write the sigaction struct into user memory")
	}

	if _, err := sysRtSigactionImpl(task, int32(signal.SIGPIPE), uva, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := task.Signals.GetAction(signal.SIGPIPE)
	if got.Disp != signal.Ignore {
		t.Fatalf("expected SIG_IGN to install Ignore, got %v", got.Disp)
	}
}

func TestSysRtSigactionInstallsRealHandler(t *testing.T) {
	_, task := freshTask(t)
	page := mem.Page(7)
	mapUserPage(t, task, page)
	uva := uint64(page.StartAddress())

	buf := make([]byte, 16)
	putLE64(buf[:8], 0x5000)
	if !writeUser(task, uva, buf) {
		t.Fatalf("expected to write the sigaction struct into user memory")
	}

	if _, err := sysRtSigactionImpl(task, int32(signal.SIGUSR1), uva, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := task.Signals.GetAction(signal.SIGUSR1)
	if got.Disp != signal.Handled || got.Handler != 0x5000 {
		t.Fatalf("expected a Handled disposition at 0x5000, got %+v", got)
	}
}
