package rtsync

import (
	"context"
	"fmt"
	"runtime/trace"
	"strings"

	"github.com/webriots/coro"
	"github.com/webriots/rtsync/internal/list"
)

const (
	kernelTraceTaskType = "rtsync-kernel"
	taskTraceRegionType = "rtsync-task"
	traceCategory       = "rtsync"
)

// TaskFunc is the body of a task.
type TaskFunc func(context.Context, *Task)

// TaskState is the scheduling state of a task.
type TaskState uint8

const (
	TaskRunnable TaskState = iota
	TaskRunning
	TaskWaiting
	TaskDormant
)

func (s TaskState) String() string {
	switch s {
	case TaskRunnable:
		return "runnable"
	case TaskRunning:
		return "running"
	case TaskWaiting:
		return "waiting"
	case TaskDormant:
		return "dormant"
	}
	return fmt.Sprintf("TaskState(%d)", uint8(s))
}

// WaitReason says what a waiting task is blocked on.
type WaitReason uint8

const (
	WaitReasonNone WaitReason = iota
	WaitReasonSleep
	WaitReasonSemaphore
)

func (r WaitReason) String() string {
	switch r {
	case WaitReasonNone:
		return "none"
	case WaitReasonSleep:
		return "sleep"
	case WaitReasonSemaphore:
		return "semaphore"
	}
	return fmt.Sprintf("WaitReason(%d)", uint8(r))
}

// Task is a schedulable unit of work. Each task runs as a coroutine;
// the kernel resumes exactly one of them at a time.
type Task struct {
	k      *Kernel
	ctx    context.Context
	parent *Task
	name   string
	prio   int
	state  TaskState

	// wait record
	reason  WaitReason
	waitErr error
	timeout Timeout

	queue list.Item[Task] // membership in an object's wait queue
	timer list.Item[Task] // membership in the kernel timer list

	suspend func() struct{}
	resume  func(struct{}) (struct{}, bool)
	cancel  func()
}

func newTask(
	k *Kernel,
	ctx context.Context,
	parent *Task,
	name string,
	prio int,
	fn TaskFunc,
) *Task {
	task := &Task{
		k:      k,
		ctx:    ctx,
		parent: parent,
		name:   name,
		prio:   prio,
		state:  TaskRunnable,
	}
	task.queue.Init(task)
	task.timer.Init(task)

	resume, cancel := coro.New(
		func(_ func(struct{}) struct{}, suspend func() struct{}) (z struct{}) {
			task.suspend = suspend

			if task.ctx == nil {
				task.ctx = k.context()
			}
			task.ctx = withTaskContext(task.ctx, task)

			region := trace.StartRegion(task.ctx, taskTraceRegionType)
			defer func() {
				task.state = TaskDormant
				region.End()
			}()

			task.Log("START")
			fn(task.ctx, task)
			task.Log("EXIT")

			return
		},
	)

	task.resume = resume
	task.cancel = cancel
	return task
}

// Go spawns a child task that inherits t's context. If the child has
// a higher priority than t, it runs before Go returns.
func (t *Task) Go(name string, prio int, fn TaskFunc) (*Task, error) {
	k := t.enter("Task.Go")
	child, err := k.spawn(t.ctx, t, name, prio, fn)
	if err != nil {
		return nil, err
	}
	t.Logf("GO %s", name)
	k.switchIfNeeded(t)
	return child, nil
}

// Sleep blocks t for the given number of ticks. Sleep(NoWait) returns
// at once; an infinite sleep is rejected.
func (t *Task) Sleep(ticks Timeout) error {
	if checkParams && ticks == WaitInfinite {
		return ErrParam
	}
	k := t.enterBlocking("Task.Sleep")
	if ticks == NoWait {
		return nil
	}

	k.taskCritical(func() {
		k.currToWait(t, nil, WaitReasonSleep, ticks)
	})
	k.switchIfNeeded(t)
	return t.waitErr
}

// Yield lets the other ready tasks of t's priority run first.
func (t *Task) Yield() {
	k := t.enterBlocking("Task.Yield")
	k.taskCritical(func() {
		if k.ready[t.prio].Len() == 0 {
			return
		}
		t.state = TaskRunnable
		k.ready[t.prio].PushBack(t)
	})
	k.switchIfNeeded(t)
}

// Name returns the name t was spawned with.
func (t *Task) Name() string {
	return t.name
}

// Priority returns t's priority; 0 is the highest.
func (t *Task) Priority() int {
	return t.prio
}

// State returns t's scheduling state.
func (t *Task) State() TaskState {
	return t.state
}

// WaitReason returns what t is blocked on, if anything.
func (t *Task) WaitReason() WaitReason {
	return t.reason
}

// Kernel returns the kernel t belongs to.
func (t *Task) Kernel() *Kernel {
	return t.k
}

// Context returns the context passed to t's body.
func (t *Task) Context() context.Context {
	return t.ctx
}

func (t *Task) Log(msg string) {
	if trace.IsEnabled() {
		var sb strings.Builder
		taskpath(&sb, t)
		sb.WriteRune(' ')
		sb.WriteString(msg)
		trace.Log(t.logctx(), traceCategory, sb.String())
	}
}

func (t *Task) Logf(format string, args ...any) {
	if trace.IsEnabled() {
		var sb strings.Builder
		taskpath(&sb, t)
		sb.WriteRune(' ')
		fmt.Fprintf(&sb, format, args...)
		trace.Log(t.logctx(), traceCategory, sb.String())
	}
}

func (t *Task) logctx() context.Context {
	if t.ctx == nil {
		return t.k.context()
	}
	return t.ctx
}

func taskpath(sb *strings.Builder, t *Task) {
	if t == nil {
		return
	}
	taskpath(sb, t.parent)
	sb.WriteString(t.name)
	sb.WriteRune('|')
}
