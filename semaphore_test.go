package rtsync

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func runTasks(t *testing.T, k *Kernel) {
	t.Helper()
	require.NoError(t, k.Run(context.Background()))
}

func spawn(t *testing.T, k *Kernel, name string, prio int, fn TaskFunc) *Task {
	t.Helper()
	task, err := k.Spawn(name, prio, fn)
	require.NoError(t, err)
	return task
}

func TestSemaphoreAcquireStartTimes(t *testing.T) {
	r := require.New(t)

	for maxCount := 1; maxCount <= 4; maxCount++ {
		for start := 0; start <= maxCount; start++ {
			k := New(Config{})
			var sem Semaphore
			r.NoError(sem.Create(start, maxCount))

			n := 0
			spawn(t, k, "poller", 1, func(_ context.Context, task *Task) {
				for i := 0; i < start; i++ {
					r.NoError(sem.Acquire(task, NoWait))
					n++
				}
				r.ErrorIs(sem.Acquire(task, NoWait), ErrTimeout)
				r.ErrorIs(sem.Poll(task), ErrTimeout)
				r.Zero(sem.Count())
			})
			runTasks(t, k)

			r.Equal(start, n)
			r.Equal(maxCount, sem.Max())
		}
	}
}

func TestSemaphoreOverflow(t *testing.T) {
	r := require.New(t)

	k := New(Config{})
	var sem Semaphore
	r.NoError(sem.Create(1, 2))

	spawn(t, k, "signaller", 1, func(_ context.Context, task *Task) {
		r.NoError(sem.Signal(task))
		r.Equal(2, sem.Count())
		r.ErrorIs(sem.Signal(task), ErrOverflow)
		r.Equal(2, sem.Count())
	})
	runTasks(t, k)
}

func TestSemaphoreCountBounded(t *testing.T) {
	r := require.New(t)

	k := New(Config{})
	var sem Semaphore
	r.NoError(sem.Create(2, 5))

	rnd := rand.New(rand.NewPCG(1, 2))
	spawn(t, k, "random", 1, func(_ context.Context, task *Task) {
		for i := 0; i < 1000; i++ {
			before := sem.Count()
			if rnd.IntN(2) == 0 {
				err := sem.Signal(task)
				if before == sem.Max() {
					r.ErrorIs(err, ErrOverflow)
					r.Equal(before, sem.Count())
				} else {
					r.NoError(err)
					r.Equal(before+1, sem.Count())
				}
			} else {
				err := sem.Poll(task)
				if before == 0 {
					r.ErrorIs(err, ErrTimeout)
					r.Zero(sem.Count())
				} else {
					r.NoError(err)
					r.Equal(before-1, sem.Count())
				}
			}
			r.GreaterOrEqual(sem.Count(), 0)
			r.LessOrEqual(sem.Count(), sem.Max())
		}
	})
	runTasks(t, k)
}

func TestSemaphoreRoundTrip(t *testing.T) {
	r := require.New(t)

	k := New(Config{})
	var sem Semaphore
	r.NoError(sem.Create(0, 1))

	spawn(t, k, "main", 1, func(_ context.Context, task *Task) {
		r.ErrorIs(sem.Acquire(task, NoWait), ErrTimeout)
		r.NoError(sem.Signal(task))
		r.NoError(sem.Acquire(task, NoWait))
		r.ErrorIs(sem.Acquire(task, NoWait), ErrTimeout)
	})
	runTasks(t, k)
}

func TestSemaphoreLifecycle(t *testing.T) {
	if !checkParams {
		t.Skip("parameter checks compiled out")
	}
	r := require.New(t)

	k := New(Config{})
	var sem Semaphore
	r.NoError(sem.Create(1, 3))
	r.ErrorIs(sem.Create(0, 1), ErrParam)
	r.Equal(1, sem.Count())
	r.Equal(3, sem.Max())

	spawn(t, k, "main", 1, func(_ context.Context, task *Task) {
		r.NoError(sem.Poll(task))
		r.NoError(sem.Delete(task))
		r.ErrorIs(sem.Delete(task), ErrInvalidObject)
		r.ErrorIs(sem.Signal(task), ErrInvalidObject)
		r.ErrorIs(sem.Acquire(task, 10), ErrInvalidObject)
		r.ErrorIs(sem.Poll(task), ErrInvalidObject)
		r.Zero(sem.WaitCount())

		r.NoError(sem.Create(0, 1))
		r.NoError(sem.Signal(task))
		r.NoError(sem.Poll(task))
	})
	runTasks(t, k)
}

func TestSemaphoreInvalidParams(t *testing.T) {
	if !checkParams {
		t.Skip("parameter checks compiled out")
	}
	r := require.New(t)

	var nilSem *Semaphore
	r.ErrorIs(nilSem.Create(0, 1), ErrParam)

	var sem Semaphore
	r.ErrorIs(sem.Create(0, 0), ErrParam)
	r.ErrorIs(sem.Create(0, -1), ErrParam)
	r.ErrorIs(sem.Create(-1, 1), ErrParam)
	r.ErrorIs(sem.Create(2, 1), ErrParam)
	r.Zero(sem.Max())

	k := New(Config{})
	spawn(t, k, "main", 1, func(_ context.Context, task *Task) {
		r.ErrorIs(nilSem.Signal(task), ErrParam)
		r.ErrorIs(nilSem.Delete(task), ErrParam)
		r.ErrorIs(sem.Signal(task), ErrParam)
		r.ErrorIs(sem.Acquire(task, WaitInfinite), ErrParam)
		r.ErrorIs(sem.Delete(task), ErrInvalidObject)
	})
	runTasks(t, k)

	k.Interrupt(func(isr *ISR) {
		r.ErrorIs(sem.ISignal(isr), ErrParam)
		r.ErrorIs(sem.IPoll(isr), ErrParam)
	})
}

func TestSemaphoreDirectHandoff(t *testing.T) {
	r := require.New(t)

	const waiters = 5

	k := New(Config{})
	var sem Semaphore
	r.NoError(sem.Create(0, 1))

	var order []int
	for i := 0; i < waiters; i++ {
		spawn(t, k, "waiter", 5, func(_ context.Context, task *Task) {
			r.NoError(sem.Acquire(task, WaitInfinite))
			r.Zero(sem.Count())
			order = append(order, i)
		})
	}

	spawn(t, k, "signaller", 10, func(_ context.Context, task *Task) {
		r.Equal(waiters, sem.WaitCount())
		for i := 0; i < waiters; i++ {
			r.NoError(sem.Signal(task))
			r.Zero(sem.Count())
			r.Equal(waiters-i-1, sem.WaitCount())
			r.Len(order, i+1)
		}
	})
	runTasks(t, k)

	r.Equal([]int{0, 1, 2, 3, 4}, order)
	r.Zero(sem.Count())
}

func TestSemaphoreWakePriorityOrder(t *testing.T) {
	r := require.New(t)

	k := New(Config{})
	var sem Semaphore
	r.NoError(sem.Create(0, 1))

	var order []string
	waiter := func(name string, prio int, delay Timeout) {
		spawn(t, k, name, prio, func(_ context.Context, task *Task) {
			r.NoError(task.Sleep(delay))
			r.NoError(sem.Acquire(task, WaitInfinite))
			order = append(order, name)
		})
	}

	waiter("a", 7, 0)
	waiter("b", 3, 1)
	waiter("c", 5, 2)
	waiter("d", 3, 3)

	spawn(t, k, "signaller", 10, func(_ context.Context, task *Task) {
		r.NoError(task.Sleep(10))
		r.Equal(4, sem.WaitCount())
		for i := 0; i < 4; i++ {
			r.NoError(sem.Signal(task))
		}
	})
	runTasks(t, k)

	r.Equal([]string{"b", "d", "c", "a"}, order)
}

func TestSemaphoreDeleteWakesAll(t *testing.T) {
	r := require.New(t)

	const waiters = 4

	k := New(Config{})
	var sem Semaphore
	r.NoError(sem.Create(0, 2))

	var results []error
	for i := 0; i < waiters; i++ {
		timeout := WaitInfinite
		if i%2 == 0 {
			timeout = 100
		}
		spawn(t, k, "waiter", 5, func(_ context.Context, task *Task) {
			err := sem.Acquire(task, timeout)
			results = append(results, err)
		})
	}

	spawn(t, k, "deleter", 10, func(_ context.Context, task *Task) {
		r.Equal(waiters, sem.WaitCount())
		r.NoError(sem.Delete(task))
		r.Len(results, waiters)

		if checkParams {
			r.ErrorIs(sem.Signal(task), ErrInvalidObject)
			r.ErrorIs(sem.Poll(task), ErrInvalidObject)
			r.ErrorIs(sem.Delete(task), ErrInvalidObject)
		}
	})
	runTasks(t, k)

	r.Len(results, waiters)
	for _, err := range results {
		r.ErrorIs(err, ErrDeleted)
	}
	r.Zero(k.Ticks())
}

func TestSemaphoreDeleteLowPriorityWaiters(t *testing.T) {
	r := require.New(t)

	k := New(Config{})
	var sem Semaphore
	r.NoError(sem.Create(0, 1))

	woken := 0
	spawn(t, k, "deleter", 1, func(_ context.Context, task *Task) {
		for i := 0; i < 3; i++ {
			_, err := task.Go("waiter", 8, func(_ context.Context, task *Task) {
				r.ErrorIs(sem.Acquire(task, WaitInfinite), ErrDeleted)
				woken++
			})
			r.NoError(err)
		}
		r.NoError(task.Sleep(1))
		r.Equal(3, sem.WaitCount())

		// The waiters are all ready after Delete but run only once the
		// deleter gets out of the way.
		r.NoError(sem.Delete(task))
		r.Zero(woken)
	})
	runTasks(t, k)

	r.Equal(3, woken)
}

func TestSemaphoreAcquireTimeout(t *testing.T) {
	r := require.New(t)

	k := New(Config{})
	var sem Semaphore
	r.NoError(sem.Create(0, 1))

	spawn(t, k, "waiter", 1, func(_ context.Context, task *Task) {
		r.ErrorIs(sem.Acquire(task, 5), ErrTimeout)
		r.Equal(uint64(5), k.Ticks())
		r.Zero(sem.WaitCount())
		r.Equal(WaitReasonNone, task.WaitReason())
	})
	runTasks(t, k)
}

func TestSemaphoreSignalBeforeTimeout(t *testing.T) {
	r := require.New(t)

	k := New(Config{})
	var sem Semaphore
	r.NoError(sem.Create(0, 1))

	spawn(t, k, "waiter", 1, func(_ context.Context, task *Task) {
		r.NoError(sem.Acquire(task, 10))
		r.Equal(uint64(3), k.Ticks())
	})
	spawn(t, k, "signaller", 2, func(_ context.Context, task *Task) {
		r.NoError(task.Sleep(3))
		r.NoError(sem.Signal(task))
		r.Zero(sem.Count())
	})
	runTasks(t, k)

	r.Equal(uint64(3), k.Ticks())
}

func TestSemaphoreISignalPreempts(t *testing.T) {
	r := require.New(t)

	k := New(Config{})
	var sem Semaphore
	r.NoError(sem.Create(0, 1))

	var order []string
	spawn(t, k, "waiter", 1, func(_ context.Context, task *Task) {
		r.NoError(sem.Acquire(task, WaitInfinite))
		order = append(order, "waiter")
	})
	spawn(t, k, "raiser", 2, func(_ context.Context, task *Task) {
		k.Interrupt(func(isr *ISR) {
			r.NoError(sem.ISignal(isr))
			order = append(order, "isr")
		})
		order = append(order, "raiser")
	})
	runTasks(t, k)

	r.Equal([]string{"isr", "waiter", "raiser"}, order)
	r.Zero(sem.Count())
}

func TestSemaphoreInterruptPolling(t *testing.T) {
	r := require.New(t)

	k := New(Config{})
	var sem Semaphore
	r.NoError(sem.Create(1, 1))

	k.Interrupt(func(isr *ISR) {
		r.Equal(1, isr.Depth())
		r.Same(k, isr.Kernel())
		r.NoError(sem.IPoll(isr))
		r.ErrorIs(sem.IPoll(isr), ErrTimeout)
		r.NoError(sem.ISignal(isr))
		r.ErrorIs(sem.ISignal(isr), ErrOverflow)
	})
	r.Equal(1, sem.Count())
}

func TestSemaphoreCriticalDefersSwitch(t *testing.T) {
	r := require.New(t)

	k := New(Config{})
	var sem Semaphore
	r.NoError(sem.Create(0, 1))

	var order []string
	spawn(t, k, "waiter", 1, func(_ context.Context, task *Task) {
		r.NoError(sem.Acquire(task, WaitInfinite))
		order = append(order, "waiter")
	})
	spawn(t, k, "main", 2, func(_ context.Context, task *Task) {
		task.Critical(func() {
			r.NoError(sem.Signal(task))
			order = append(order, "critical")
		})
		order = append(order, "main")
	})
	runTasks(t, k)

	r.Equal([]string{"critical", "waiter", "main"}, order)
}

func TestSemaphoreContractViolations(t *testing.T) {
	var seen []*ContractViolation
	fatal := func(v *ContractViolation) { seen = append(seen, v) }

	t.Run("TaskServiceInInterrupt", func(t *testing.T) {
		r := require.New(t)
		seen = nil
		k := New(Config{Fatal: fatal})
		var sem Semaphore
		r.NoError(sem.Create(0, 1))

		spawn(t, k, "main", 1, func(_ context.Context, task *Task) {
			k.Interrupt(func(*ISR) {
				_ = sem.Signal(task)
			})
		})
		r.Panics(func() { _ = k.Run(context.Background()) })
		r.Len(seen, 1)
		r.Equal("Semaphore.Signal", seen[0].Op)
		r.Equal("called from interrupt context", seen[0].Reason)
	})

	t.Run("StaleInterruptHandle", func(t *testing.T) {
		r := require.New(t)
		seen = nil
		k := New(Config{Fatal: fatal})
		var sem Semaphore
		r.NoError(sem.Create(0, 1))

		var saved *ISR
		k.Interrupt(func(isr *ISR) { saved = isr })
		r.PanicsWithError(
			"rtsync: Semaphore.ISignal: called outside interrupt context",
			func() { _ = sem.ISignal(saved) },
		)
		r.Len(seen, 1)
		r.Zero(sem.Count())
	})

	t.Run("ForeignTaskHandle", func(t *testing.T) {
		r := require.New(t)
		seen = nil
		k := New(Config{Fatal: fatal})
		var sem Semaphore
		r.NoError(sem.Create(0, 1))

		other := spawn(t, k, "other", 2, func(context.Context, *Task) {})
		spawn(t, k, "main", 1, func(context.Context, *Task) {
			_ = sem.Poll(other)
		})
		r.Panics(func() { _ = k.Run(context.Background()) })
		r.Len(seen, 1)
		r.Equal("task other is not running", seen[0].Reason)
	})

	t.Run("BlockInCritical", func(t *testing.T) {
		r := require.New(t)
		seen = nil
		k := New(Config{Fatal: fatal})
		var sem Semaphore
		r.NoError(sem.Create(0, 1))

		spawn(t, k, "main", 1, func(_ context.Context, task *Task) {
			task.Critical(func() {
				r.ErrorIs(sem.Poll(task), ErrTimeout)
				_ = sem.Acquire(task, 10)
			})
		})
		r.Panics(func() { _ = k.Run(context.Background()) })
		r.Len(seen, 1)
		r.Equal("blocking call with interrupts disabled", seen[0].Reason)
		r.Zero(sem.WaitCount())
	})
}
