package rtsync

import (
	"context"
)

// taskContextKey is the context key under which a task stores itself.
type taskContextKey struct{}

func withTaskContext(ctx context.Context, task *Task) context.Context {
	return context.WithValue(ctx, taskContextKey{}, task)
}

// TaskFromContext returns the task whose body received ctx.
func TaskFromContext(ctx context.Context) (*Task, bool) {
	val, ok := ctx.Value(taskContextKey{}).(*Task)
	return val, ok
}

// MustTaskFromContext is like TaskFromContext but panics if ctx does
// not belong to a task.
func MustTaskFromContext(ctx context.Context) *Task {
	val, ok := TaskFromContext(ctx)
	if !ok {
		panic("rtsync: task not found in context")
	}
	return val
}
