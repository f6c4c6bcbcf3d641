package rtsync

import (
	"math"
	"strconv"

	"github.com/webriots/rtsync/internal/list"
)

// Timeout is a wait limit in system ticks.
type Timeout uint32

const (
	// NoWait makes a wait fail immediately instead of blocking.
	NoWait Timeout = 0

	// WaitInfinite makes a wait last until the task is woken.
	WaitInfinite Timeout = math.MaxUint32
)

func (to Timeout) String() string {
	switch to {
	case NoWait:
		return "nowait"
	case WaitInfinite:
		return "infinite"
	}
	return strconv.FormatUint(uint64(to), 10)
}

// Tick processes one system tick: every timed wait counts down and
// the tasks whose wait expires are woken, with ErrTimeout for object
// waits and nil for sleeps.
func (isr *ISR) Tick() {
	k := isr.enter("ISR.Tick")
	k.isrCritical(k.tick)
}

func (k *Kernel) tick() {
	k.ticks++
	k.timers.ForEach(func(e *list.Item[Task]) bool {
		t := e.Owner()
		if t.timeout--; t.timeout > 0 {
			return true
		}

		var err error
		if t.reason != WaitReasonSleep {
			err = ErrTimeout
		}
		if !t.queue.IsEmpty() {
			t.queue.RemoveEntry()
		}
		k.waitComplete(t, err)
		return true
	})
}
