// Package pool runs independent tasks with a cap on how many are in flight.
//
// A task failure, panic included, is captured in that task's Outcome and never
// reaches its siblings. Outcomes come back in input order.
package pool

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

type Task[T any] func(ctx context.Context) (T, error)

type Outcome[T any] struct {
	Value T
	Err   error
}

func (o Outcome[T]) OK() bool { return o.Err == nil }

// PanicError wraps a recovered panic value.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("task panicked: %v", e.Value) }

// Run executes tasks with at most limit running at once (limit <= 0 means one).
// It returns after every task settled. Tasks that have not started when ctx is
// done are recorded with ctx.Err() instead of running.
func Run[T any](ctx context.Context, limit int, tasks []Task[T]) []Outcome[T] {
	out := make([]Outcome[T], len(tasks))
	if len(tasks) == 0 {
		return out
	}
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, task := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			out[i] = runOne(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func runOne[T any](ctx context.Context, task Task[T]) (o Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			o = Outcome[T]{Err: &PanicError{Value: r, Stack: debug.Stack()}}
		}
	}()
	v, err := task(ctx)
	return Outcome[T]{Value: v, Err: err}
}
