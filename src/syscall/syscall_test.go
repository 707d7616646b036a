package syscall

import (
	"testing"

	"mem"
	"proc"
	"signal"
	"vm"
)

func freshTask(t *testing.T) (*proc.Scheduler, *proc.Task) {
	t.Helper()
	fa := mem.NewFrameAllocator([]mem.MemoryRange[mem.Frame]{{Start: 0, End: 4096}}, 0xffff800000000000)
	vm.InitKernelState(fa)
	sched := proc.NewScheduler(fa)
	task := sched.NewKernelTask(func() {}, false)
	return sched, task
}

// mapUserPage backs one page of task's address space with a real frame so
// vm.UserBuf's reads and writes succeed, mirroring the setup
// vm_test.go uses for Mapper tests.
func mapUserPage(t *testing.T, task *proc.Task, page mem.Page) {
	t.Helper()
	alloc, err := task.Frames().AllocFrames(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := task.AS.Mapper()
	if err := m.MapToSingle(page, alloc.Range.Start, vm.Present|vm.Writable|vm.UserAccessible); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestToVmProtTranslatesBits(t *testing.T) {
	p := toVmProt(protRead | protWrite)
	if p&vm.ProtRead == 0 || p&vm.ProtWrite == 0 || p&vm.ProtExec != 0 {
		t.Fatalf("unexpected prot bits: %v", p)
	}
}

func TestToVmFlagsDefaultsToPrivate(t *testing.T) {
	f := toVmFlags(0)
	if f&vm.Private == 0 || f&vm.Shared != 0 {
		t.Fatalf("expected private-only flags, got %v", f)
	}
	f = toVmFlags(mapShared | mapFixed)
	if f&vm.Shared == 0 || f&vm.Fixed == 0 {
		t.Fatalf("expected shared+fixed flags, got %v", f)
	}
}

func TestToSignalMaskMapsHowValues(t *testing.T) {
	cases := map[int32]signal.Mask{
		sigBlock:   signal.MaskBlock,
		sigUnblock: signal.MaskUnblock,
		sigSetmask: signal.MaskSetMask,
	}
	for how, want := range cases {
		if got := toSignalMask(how); got != want {
			t.Fatalf("how=%d: got %v want %v", how, got, want)
		}
	}
}

func TestSysMmapThenMunmap(t *testing.T) {
	_, task := freshTask(t)
	rc, err := sysMmapImpl(task, 0, mem.PageSize, protRead|protWrite, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc == 0 {
		t.Fatalf("expected a nonzero mapped address")
	}
	start := mem.PageContaining(mem.VirtAddr(uint64(rc)))
	if err := sysMunmapImpl(task, uint64(start.StartAddress()), mem.PageSize); err != nil {
		t.Fatalf("unexpected error unmapping: %v", err)
	}
}

func TestSysMprotectRejectsUnmappedRange(t *testing.T) {
	_, task := freshTask(t)
	_, err := sysMprotectImpl(task, 0x500000, mem.PageSize, protRead)
	if err == nil {
		t.Fatalf("expected an error protecting an area that was never mapped")
	}
}

func TestSysUnameFillsUtsFields(t *testing.T) {
	_, task := freshTask(t)
	page := mem.Page(5)
	mapUserPage(t, task, page)
	uva := uint64(page.StartAddress())

	if _, err := sysUnameImpl(task, uva); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf, ok := readUser(task, uva, utsFieldLen)
	if !ok {
		t.Fatalf("expected to read back the sysname field")
	}
	got := string(buf[:len("Linux")])
	if got != "Linux" {
		t.Fatalf("expected sysname Linux, got %q", got)
	}
}

func TestSysGetrandomFillsRequestedLength(t *testing.T) {
	_, task := freshTask(t)
	page := mem.Page(6)
	mapUserPage(t, task, page)
	uva := uint64(page.StartAddress())

	n, err := sysGetrandomImpl(task, uva, 16, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 16 {
		t.Fatalf("expected 16 bytes written, got %d", n)
	}
}

func TestSigSetRoundTripsThroughUserMemory(t *testing.T) {
	_, task := freshTask(t)
	page := mem.Page(7)
	mapUserPage(t, task, page)
	uva := uint64(page.StartAddress())

	var set signal.SigSet
	set.Set(signal.SIGINT, true)
	set.Set(signal.SIGTERM, true)
	if !writeSigSet(task, uva, set) {
		t.Fatalf("expected to write the sigset")
	}
	got, ok := readSigSet(task, uva)
	if !ok {
		t.Fatalf("expected to read the sigset back")
	}
	if !got.Test(signal.SIGINT) || !got.Test(signal.SIGTERM) {
		t.Fatalf("round-tripped set missing expected signals")
	}
	if got.Test(signal.SIGHUP) {
		t.Fatalf("round-tripped set has an unexpected signal set")
	}
}

func TestSysRtSigprocmaskAppliesBlockAndReportsOld(t *testing.T) {
	_, task := freshTask(t)
	page := mem.Page(8)
	mapUserPage(t, task, page)
	setUva := uint64(page.StartAddress())
	oldUva := setUva + 64

	var block signal.SigSet
	block.Set(signal.SIGUSR1, true)
	if !writeSigSet(task, setUva, block) {
		t.Fatalf("expected to seed the new mask")
	}

	if _, err := sysRtSigprocmaskImpl(task, sigBlock, setUva, oldUva); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mask := task.SigMask(); !mask.Test(signal.SIGUSR1) {
		t.Fatalf("expected SIGUSR1 to be blocked after rt_sigprocmask")
	}

	old, ok := readSigSet(task, oldUva)
	if !ok {
		t.Fatalf("expected to read the old mask back")
	}
	if old.Test(signal.SIGUSR1) {
		t.Fatalf("expected the old mask (before blocking) to not have SIGUSR1 set")
	}
}

func TestSysKillRaisesSignalOnTarget(t *testing.T) {
	sched, task := freshTask(t)
	if task.Signals.IsPending() {
		t.Fatalf("expected a freshly created task to have no pending signals")
	}
	if _, err := sysKillImpl(sched, int64(task.Pid()), int32(signal.SIGTERM)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !task.Signals.IsPending() {
		t.Fatalf("expected SIGTERM to be pending after kill")
	}
}

func TestSysKillReportsEsrchForUnknownPid(t *testing.T) {
	sched, _ := freshTask(t)
	if _, err := sysKillImpl(sched, 99999, int32(signal.SIGTERM)); err == nil {
		t.Fatalf("expected ESRCH for a nonexistent pid")
	}
}

func TestSysOpenResolvesDevNullWithoutConsultingRootFS(t *testing.T) {
	_, task := freshTask(t)
	page := mem.Page(9)
	mapUserPage(t, task, page)
	uva := uint64(page.StartAddress())
	path := "/dev/null\x00"
	if !writeUser(task, uva, []byte(path)) {
		t.Fatalf("expected to write the path into user memory")
	}

	fdNum, err := sysOpenImpl(task, uva, oRdwr, 0)
	if err != nil {
		t.Fatalf("unexpected error opening /dev/null: %v", err)
	}
	if fdNum < 0 {
		t.Fatalf("expected a valid file descriptor, got %d", fdNum)
	}

	n, err := sysWriteImpl(task, int(fdNum), uva, len(path))
	if err != nil {
		t.Fatalf("unexpected error writing to /dev/null: %v", err)
	}
	if n != int64(len(path)) {
		t.Fatalf("expected /dev/null to sink every byte, got %d", n)
	}
}
