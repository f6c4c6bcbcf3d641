// Package rtsync is the synchronization core of a single-core,
// preemptive, priority-based real-time kernel, together with a
// reference scheduler that runs it.
//
// Key components:
//
//   - Kernel: owns the ready queues, the timer list and the interrupt
//     state. Run dispatches tasks until they all return or block for
//     good.
//
//   - Task: a coroutine scheduled by priority (0 is highest). A task
//     handle is what task-context services take to prove where they
//     are called from.
//
//   - ISR: the handle an interrupt handler receives from
//     Kernel.Interrupt. Interrupt-context services take it instead of
//     a Task and never block.
//
//   - Semaphore: a counting semaphore whose wait queue is an
//     intrusive list ordered by priority. Signal hands a unit directly
//     to the first waiter; Acquire blocks with a timeout; Poll and
//     IPoll never block.
//
//   - Group: starts child tasks and joins them through a Semaphore.
//
// Every state change happens with interrupts disabled. Calling a
// service from the wrong context is a caller bug and panics with a
// *ContractViolation. Ordinary failures are returned as the errors
// declared in this package.
//
// Build tags: rtsync_nocheck compiles out parameter validation,
// rtsync_debug compiles in internal consistency assertions.
package rtsync
