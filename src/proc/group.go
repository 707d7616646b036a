package proc

import (
	"sync"

	"signal"
)

// PgId is a process group id.
type PgId int32

// TaskGroup is the set of tasks sharing a process group, used for
// group-wide signal delivery (e.g. Ctrl-C from the TTY line discipline) and
// as the unit job control operates on.
type TaskGroup struct {
	mu      sync.Mutex
	pgid    PgId
	members []*Task
}

func newTaskGroup(pgid PgId) *TaskGroup {
	return &TaskGroup{pgid: pgid}
}

func (g *TaskGroup) Pgid() PgId {
	return g.pgid
}

func (g *TaskGroup) add(t *Task) {
	g.mu.Lock()
	g.members = append(g.members, t)
	g.mu.Unlock()
}

// gcDead drops members whose task has already exited and been reaped.
func (g *TaskGroup) gcDead(isDead func(*Task) bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	live := g.members[:0]
	for _, t := range g.members {
		if !isDead(t) {
			live = append(live, t)
		}
	}
	g.members = live
	return len(g.members) == 0
}

// Signal posts sig to every live member of the group, e.g. SIGINT from the
// TTY's foreground-group Ctrl-C handling.
func (g *TaskGroup) Signal(sched *Scheduler, sig signal.Signal) {
	g.mu.Lock()
	members := append([]*Task(nil), g.members...)
	g.mu.Unlock()
	for _, t := range members {
		sched.SendSignalTo(t, sig)
	}
}
