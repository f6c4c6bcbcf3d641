package rtsync

// irqState is the interrupt-enable state saved on entry to a critical
// section.
type irqState bool

// ISR is the handle an interrupt handler receives. It is only valid
// while the handler runs and is what proves to interrupt-context
// services that they are called from an interrupt.
type ISR struct {
	k      *Kernel
	depth  int
	active bool
}

// Kernel returns the kernel delivering the interrupt.
func (isr *ISR) Kernel() *Kernel {
	return isr.k
}

// Depth returns the nesting level of the handler, 1 for an interrupt
// that preempted a task or the idle loop.
func (isr *ISR) Depth() int {
	return isr.depth
}

// Interrupt delivers fn as an interrupt handler. Handlers may nest.
// While interrupts are disabled the handler is pended and delivered
// as soon as they are re-enabled. When the outermost handler returns
// to a running task that is no longer the most important one, the
// task is preempted.
func (k *Kernel) Interrupt(fn func(*ISR)) {
	if fn == nil {
		panic("rtsync: nil interrupt handler")
	}

	if !k.irqOn {
		k.logf("IRQ PENDING")
		k.pending.PushBack(fn)
		return
	}

	k.deliver(fn)

	if k.isr == 0 && k.curr != nil {
		k.switchIfNeeded(k.curr)
	}
}

func (k *Kernel) deliver(fn func(*ISR)) {
	k.isr++
	isr := &ISR{k: k, depth: k.isr, active: true}
	defer func() {
		isr.active = false
		k.isr--
	}()

	k.logf("IRQ ENTER %d", isr.depth)
	fn(isr)
	k.logf("IRQ EXIT %d", isr.depth)
}

// disable turns interrupt delivery off and returns the previous
// state.
func (k *Kernel) disable() irqState {
	saved := irqState(k.irqOn)
	k.irqOn = false
	return saved
}

// restore puts back a state returned by disable. Going back to
// enabled delivers every interrupt pended in between.
func (k *Kernel) restore(saved irqState) {
	k.irqOn = bool(saved)
	for k.irqOn && k.pending.Len() > 0 {
		k.deliver(k.pending.PopFront())
	}
}

// taskCritical runs fn with interrupts disabled on behalf of a task.
// The caller has already passed enter and runs switchIfNeeded after.
func (k *Kernel) taskCritical(fn func()) {
	if debugAssert && k.isr > 0 {
		panic("rtsync: task critical section inside a handler")
	}
	saved := k.disable()
	defer k.restore(saved)
	fn()
}

// isrCritical runs fn with interrupts disabled on behalf of a
// handler. It never switches tasks.
func (k *Kernel) isrCritical(fn func()) {
	if debugAssert && k.isr == 0 {
		panic("rtsync: handler critical section outside a handler")
	}
	saved := k.disable()
	defer k.restore(saved)
	fn()
}

// enter checks that t is the running task and that no handler is
// active, and returns t's kernel.
func (t *Task) enter(op string) *Kernel {
	if t == nil {
		panic(&ContractViolation{Op: op, Reason: "nil task"})
	}
	k := t.k
	if k.isr > 0 {
		k.fatal(op, "called from interrupt context")
	}
	if k.curr != t {
		k.fatal(op, "task "+t.name+" is not running")
	}
	return k
}

// enterBlocking is enter for services that may suspend the caller.
func (t *Task) enterBlocking(op string) *Kernel {
	k := t.enter(op)
	if !k.irqOn {
		k.fatal(op, "blocking call with interrupts disabled")
	}
	return k
}

// enter checks that the handler owning isr is still running and
// returns its kernel.
func (isr *ISR) enter(op string) *Kernel {
	if isr == nil {
		panic(&ContractViolation{Op: op, Reason: "nil interrupt handle"})
	}
	if !isr.active || isr.k.isr == 0 {
		isr.k.fatal(op, "called outside interrupt context")
	}
	return isr.k
}

// Critical runs fn with interrupts disabled. Interrupts raised inside
// fn are delivered when it returns, and a context switch requested
// inside fn happens then too. fn must not block.
func (t *Task) Critical(fn func()) {
	k := t.enter("Task.Critical")
	k.taskCritical(fn)
	k.switchIfNeeded(t)
}
