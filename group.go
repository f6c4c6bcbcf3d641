package rtsync

import (
	"context"
	"math"
)

// groupMaxTasks bounds the join semaphore of a Group.
const groupMaxTasks = math.MaxInt32

// Group starts child tasks and waits for all of them, collecting the
// first error. Children run with a context that is cancelled with
// that error.
//
// Completion is counted by a semaphore: every child signals it when
// it returns and Wait acquires it once per child.
type Group struct {
	task   *Task                   // task that created the group
	ctx    context.Context         // shared by all children
	cancel context.CancelCauseFunc // cancels ctx with the first error
	done   Semaphore               // one unit per finished child
	n      int                     // children not yet joined
	err    error                   // first child error
}

// Group creates a task group owned by t.
func (t *Task) Group() *Group {
	ctx, cancel := context.WithCancelCause(t.ctx)
	g := &Group{task: t, ctx: ctx, cancel: cancel}
	if err := g.done.Create(0, groupMaxTasks); err != nil {
		panic("rtsync: group semaphore: " + err.Error())
	}
	return g
}

// Go starts fn as a child task. It must be called by the task that
// owns the group.
func (g *Group) Go(name string, prio int, fn func(context.Context, *Task) error) error {
	k := g.task.enter("Group.Go")

	_, err := k.spawn(g.ctx, g.task, name, prio, func(ctx context.Context, t *Task) {
		defer func() {
			if t.state == TaskDormant {
				return // cancelled by Run
			}
			if err := g.done.Signal(t); err != nil {
				panic("rtsync: group join: " + err.Error())
			}
		}()
		if err := fn(ctx, t); err != nil && g.err == nil {
			g.err = err
			g.cancel(err)
		}
	})
	if err != nil {
		return err
	}

	g.n++
	k.switchIfNeeded(g.task)
	return nil
}

// Wait blocks t until every child started so far has returned and
// returns the first error any of them reported.
func (g *Group) Wait(t *Task) error {
	for ; g.n > 0; g.n-- {
		if err := g.done.Acquire(t, WaitInfinite); err != nil {
			return err
		}
	}
	g.cancel(g.err)
	return g.err
}

// Context returns the context shared by the group's children.
func (g *Group) Context() context.Context {
	return g.ctx
}
