package proc

import (
	"testing"

	"signal"
)

func TestTaskGroupSignalReachesAllMembers(t *testing.T) {
	s := freshScheduler(t)
	a := s.NewKernelTask(func() {}, false)
	b := s.NewKernelTask(func() {}, false)

	g := newTaskGroup(1)
	g.add(a)
	g.add(b)

	g.Signal(s, signal.SIGINT)

	if !a.Signals.IsPending() || !b.Signals.IsPending() {
		t.Fatalf("expected SIGINT to reach every group member")
	}
}

func TestTaskGroupGcDeadRemovesExitedMembers(t *testing.T) {
	s := freshScheduler(t)
	a := s.NewKernelTask(func() {}, false)
	b := s.NewKernelTask(func() {}, false)

	g := newTaskGroup(1)
	g.add(a)
	g.add(b)
	a.setState(StateExited)

	empty := g.gcDead(func(t *Task) bool { return t.GetState() == StateExited })
	if empty {
		t.Fatalf("group should still have a live member")
	}
	if len(g.members) != 1 || g.members[0] != b {
		t.Fatalf("expected only the live member to remain")
	}
}

func TestTaskGroupGcDeadReportsEmpty(t *testing.T) {
	s := freshScheduler(t)
	a := s.NewKernelTask(func() {}, false)

	g := newTaskGroup(1)
	g.add(a)
	a.setState(StateExited)

	if !g.gcDead(func(t *Task) bool { return t.GetState() == StateExited }) {
		t.Fatalf("expected the group to report empty once every member is dead")
	}
}
