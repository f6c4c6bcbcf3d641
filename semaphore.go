package rtsync

import "github.com/webriots/rtsync/internal/list"

// semaphoreTag marks a live Semaphore.
const semaphoreTag uint32 = 0x6FA173EB

// semJob selects the body run inside a semaphore critical section.
type semJob uint8

const (
	jobSignal semJob = iota
	jobAcquire
)

// noCopy may be embedded into structs which must not be copied after
// first use. go vet's copylocks check reports copies of it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Semaphore is a counting semaphore. The zero value is not created;
// call Create before use and Delete when done. A Semaphore must not
// be copied once created, since its wait queue points into it.
//
// While tasks are waiting the count is always zero: Signal hands the
// unit straight to the first waiter instead of storing it.
type Semaphore struct {
	noCopy    noCopy
	tag       uint32
	count     int
	max       int
	waitQueue list.Item[Task]
}

// Create initializes s with start available units out of maxCount. It
// fails with ErrParam on bad counts or if s is already live.
func (s *Semaphore) Create(start, maxCount int) error {
	if checkParams {
		if s == nil {
			return ErrParam
		}
		if maxCount <= 0 || start < 0 || start > maxCount || s.tag != 0 {
			return ErrParam
		}
	}

	s.waitQueue.Reset()
	s.count = start
	s.max = maxCount
	s.tag = semaphoreTag
	return nil
}

// Delete destroys s. Every task blocked on it is woken and gets
// ErrDeleted from its Acquire. s may be created again afterwards.
func (s *Semaphore) Delete(t *Task) error {
	if checkParams {
		if s == nil {
			return ErrParam
		}
		if s.tag != semaphoreTag {
			return ErrInvalidObject
		}
	}

	k := t.enter("Semaphore.Delete")
	k.taskCritical(func() {
		k.notifyDeleted(&s.waitQueue)
		s.tag = 0
	})
	t.Log("SEM DELETE")
	k.switchIfNeeded(t)
	return nil
}

// Signal releases one unit from task context. If a task is waiting
// it gets the unit and may preempt t.
func (s *Semaphore) Signal(t *Task) error {
	return s.perform(t, jobSignal, NoWait, "Semaphore.Signal")
}

// ISignal releases one unit from an interrupt handler.
func (s *Semaphore) ISignal(isr *ISR) error {
	return s.iperform(isr, jobSignal, "Semaphore.ISignal")
}

// Acquire takes one unit, blocking t for up to timeout ticks if none
// is available. With NoWait it returns ErrTimeout instead of
// blocking.
func (s *Semaphore) Acquire(t *Task, timeout Timeout) error {
	return s.perform(t, jobAcquire, timeout, "Semaphore.Acquire")
}

// Poll takes one unit if available and returns ErrTimeout otherwise.
func (s *Semaphore) Poll(t *Task) error {
	return s.perform(t, jobAcquire, NoWait, "Semaphore.Poll")
}

// IPoll is Poll for interrupt handlers.
func (s *Semaphore) IPoll(isr *ISR) error {
	return s.iperform(isr, jobAcquire, "Semaphore.IPoll")
}

// Count returns the number of available units.
func (s *Semaphore) Count() int {
	return s.count
}

// Max returns the capacity s was created with.
func (s *Semaphore) Max() int {
	return s.max
}

// WaitCount returns the number of tasks blocked on s.
func (s *Semaphore) WaitCount() int {
	if s.tag != semaphoreTag {
		return 0
	}
	return s.waitQueue.Len()
}

func (s *Semaphore) check() error {
	if !checkParams {
		return nil
	}
	if s == nil || s.max == 0 {
		return ErrParam
	}
	if s.tag != semaphoreTag {
		return ErrInvalidObject
	}
	return nil
}

func (s *Semaphore) perform(t *Task, job semJob, timeout Timeout, op string) (err error) {
	if err := s.check(); err != nil {
		return err
	}

	var k *Kernel
	if job == jobAcquire && timeout != NoWait {
		k = t.enterBlocking(op)
	} else {
		k = t.enter(op)
	}

	waited := false
	k.taskCritical(func() {
		err = s.run(k, job)
		if err == ErrTimeout && timeout != NoWait {
			k.currToWait(t, &s.waitQueue, WaitReasonSemaphore, timeout)
			waited = true
		}
		if debugAssert && waited && !k.needSwitch(t) {
			panic("rtsync: waiting task is not switched out")
		}
	})

	k.switchIfNeeded(t)

	if waited {
		err = t.waitErr
	}
	t.Logf("SEM %s %v", op, err)
	return err
}

func (s *Semaphore) iperform(isr *ISR, job semJob, op string) (err error) {
	if err := s.check(); err != nil {
		return err
	}

	k := isr.enter(op)
	k.isrCritical(func() {
		err = s.run(k, job)
	})
	k.logf("SEM %s %v", op, err)
	return err
}

func (s *Semaphore) run(k *Kernel, job semJob) error {
	switch job {
	case jobSignal:
		if e := s.waitQueue.RemoveHead(); e != nil {
			k.waitComplete(e.Owner(), nil)
			return nil
		}
		if s.count < s.max {
			s.count++
			return nil
		}
		return ErrOverflow

	case jobAcquire:
		if s.count >= 1 {
			s.count--
			return nil
		}
		return ErrTimeout
	}

	panic("rtsync: unknown semaphore job")
}
