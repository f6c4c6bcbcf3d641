package rtsync

import (
	"context"
	"fmt"
	"runtime/trace"

	"github.com/gammazero/deque"
	"github.com/webriots/rtsync/internal/list"
)

const (
	// DefaultPriorities is the number of priority levels used when
	// Config.Priorities is zero.
	DefaultPriorities = 32
)

// Config holds the runtime settings of a Kernel. The zero value is
// usable.
type Config struct {
	// Priorities is the number of priority levels. Priority 0 is
	// the highest, Priorities-1 the lowest.
	Priorities int

	// Fatal, if set, is called with every contract violation before
	// the kernel panics with it.
	Fatal func(*ContractViolation)
}

// Kernel is a single-core, preemptive, priority-based scheduler. Only
// one task runs at a time; interrupts are modelled as handlers
// delivered through Interrupt.
//
// A Kernel is not safe for use by more than one goroutine. All calls
// must come from the goroutine running Run, from the tasks it
// dispatches, or from setup code before Run.
type Kernel struct {
	prios   int
	fatalFn func(*ContractViolation)
	ctx     context.Context
	running bool

	ready   []deque.Deque[*Task]
	curr    *Task
	all     []*Task
	waiting int

	timers list.Item[Task]
	ticks  uint64

	irqOn   bool
	isr     int
	pending deque.Deque[func(*ISR)]
}

// New creates a Kernel with the given configuration.
func New(cfg Config) *Kernel {
	if cfg.Priorities <= 0 {
		cfg.Priorities = DefaultPriorities
	}
	k := &Kernel{
		prios:   cfg.Priorities,
		fatalFn: cfg.Fatal,
		ready:   make([]deque.Deque[*Task], cfg.Priorities),
		irqOn:   true,
	}
	k.timers.Reset()
	return k
}

// Spawn creates a task that becomes ready immediately. Tasks spawned
// before Run start when Run dispatches them.
func (k *Kernel) Spawn(name string, prio int, fn TaskFunc) (*Task, error) {
	return k.spawn(k.ctx, nil, name, prio, fn)
}

func (k *Kernel) spawn(
	ctx context.Context,
	parent *Task,
	name string,
	prio int,
	fn TaskFunc,
) (*Task, error) {
	if checkParams && (fn == nil || prio < 0 || prio >= k.prios) {
		return nil, ErrParam
	}

	t := newTask(k, ctx, parent, name, prio, fn)
	k.all = append(k.all, t)
	k.ready[prio].PushBack(t)
	return t, nil
}

// Run dispatches tasks until all of them have returned, ctx is done,
// or the remaining tasks are blocked with no timer that could wake
// them. When nothing is ready but timed waits are pending, Run
// delivers tick interrupts itself.
func (k *Kernel) Run(ctx context.Context) error {
	if k.running {
		panic("rtsync: Kernel.Run called while already running")
	}
	k.running = true
	defer func() { k.running = false }()

	var tracer *trace.Task
	ctx, tracer = trace.NewTask(ctx, kernelTraceTaskType)
	defer tracer.End()

	k.ctx = ctx
	defer k.cancelAll()

	trace.Log(ctx, traceCategory, "RUN")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t := k.next()
		if t != nil {
			k.dispatch(t)
			continue
		}

		if !k.timers.IsEmpty() {
			k.Interrupt(func(isr *ISR) { isr.Tick() })
			continue
		}

		if k.waiting > 0 {
			return fmt.Errorf("%w: %d task(s) waiting", ErrDeadlock, k.waiting)
		}

		trace.Log(ctx, traceCategory, "RUN DONE")
		return nil
	}
}

// Ticks returns the number of system ticks processed so far.
func (k *Kernel) Ticks() uint64 {
	return k.ticks
}

// Current returns the running task, or nil between dispatches.
func (k *Kernel) Current() *Task {
	return k.curr
}

func (k *Kernel) context() context.Context {
	if k.ctx == nil {
		return context.Background()
	}
	return k.ctx
}

func (k *Kernel) dispatch(t *Task) {
	k.curr = t
	defer func() { k.curr = nil }()

	t.state = TaskRunning
	if _, ok := t.resume(struct{}{}); ok {
		return
	}

	if debugAssert && !k.irqOn {
		panic("rtsync: task " + t.name + " exited with interrupts disabled")
	}
	t.state = TaskDormant
}

func (k *Kernel) next() *Task {
	for p := range k.ready {
		if k.ready[p].Len() > 0 {
			return k.ready[p].PopFront()
		}
	}
	return nil
}

func (k *Kernel) highestReady() int {
	for p := range k.ready {
		if k.ready[p].Len() > 0 {
			return p
		}
	}
	return k.prios
}

func (k *Kernel) needSwitch(t *Task) bool {
	return t.state != TaskRunning || k.highestReady() < t.prio
}

// switchIfNeeded suspends t if it stopped being runnable or a task of
// higher priority is ready. It does nothing while interrupts are
// disabled or a handler is active; the switch happens at the next
// check after they are re-enabled.
func (k *Kernel) switchIfNeeded(t *Task) {
	if !k.irqOn || k.isr > 0 || !k.needSwitch(t) {
		return
	}

	if t.state == TaskRunning {
		t.Log("PREEMPT")
		t.state = TaskRunnable
		k.ready[t.prio].PushFront(t)
	}

	t.suspend()
}

// currToWait moves the running task t into the waiting state. If
// queue is non-nil, t is linked into it behind every task of the same
// or higher priority. A finite timeout also links t into the timer
// list. Interrupts must be disabled.
func (k *Kernel) currToWait(t *Task, queue *list.Item[Task], reason WaitReason, timeout Timeout) {
	t.state = TaskWaiting
	t.reason = reason
	t.waitErr = nil

	if queue != nil {
		pos := queue
		queue.ForEach(func(e *list.Item[Task]) bool {
			if e.Owner().prio > t.prio {
				pos = e
				return false
			}
			return true
		})
		pos.AddTail(&t.queue)
	}

	if timeout != WaitInfinite {
		t.timeout = timeout
		k.timers.AddTail(&t.timer)
	}

	k.waiting++
	t.Logf("WAIT %v %v", reason, timeout)
}

// waitComplete ends the wait of t with result err and makes it ready.
// The caller must already have unlinked t from its wait queue.
// Interrupts must be disabled.
func (k *Kernel) waitComplete(t *Task, err error) {
	if t.state != TaskWaiting {
		panic("rtsync: waking task " + t.name + " that is not waiting")
	}
	if debugAssert && !t.timer.IsEmpty() && !k.timers.Contains(&t.timer) {
		panic("rtsync: task " + t.name + " has a stale timer link")
	}

	t.queue.Reset()
	if !t.timer.IsEmpty() {
		t.timer.RemoveEntry()
		t.timer.Reset()
	}

	t.waitErr = err
	t.reason = WaitReasonNone
	t.state = TaskRunnable
	k.waiting--
	k.ready[t.prio].PushBack(t)
	t.Logf("WAKE %v", err)
}

// notifyDeleted wakes every task in queue with ErrDeleted.
func (k *Kernel) notifyDeleted(queue *list.Item[Task]) {
	for e := queue.RemoveHead(); e != nil; e = queue.RemoveHead() {
		k.waitComplete(e.Owner(), ErrDeleted)
	}
}

func (k *Kernel) cancelAll() {
	for _, t := range k.all {
		if t.state == TaskDormant {
			continue
		}
		if !t.queue.IsEmpty() {
			t.queue.RemoveEntry()
			t.queue.Reset()
		}
		if !t.timer.IsEmpty() {
			t.timer.RemoveEntry()
			t.timer.Reset()
		}
		t.state = TaskDormant
		t.cancel()
	}
	for p := range k.ready {
		k.ready[p].Clear()
	}
	k.all = k.all[:0]
	k.waiting = 0
}

func (k *Kernel) fatal(op, reason string) {
	v := &ContractViolation{Op: op, Reason: reason}
	k.logf("FATAL %v", v)
	if k.fatalFn != nil {
		k.fatalFn(v)
	}
	panic(v)
}

func (k *Kernel) logf(format string, args ...any) {
	if trace.IsEnabled() {
		trace.Logf(k.context(), traceCategory, format, args...)
	}
}
