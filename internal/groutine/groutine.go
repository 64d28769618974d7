package groutine

import (
	"bytes"
	"context"
	"runtime"
	"runtime/pprof"
	"strconv"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Task is the owned handle of a goroutine started by Go.
// Whoever holds the Task is responsible for joining it.
type Task struct {
	name string
	done chan struct{}
}

// Go starts fn in a goroutine labelled with name and returns its handle.
//
//	task := groutine.Go(ctx, "hub-pump", func(ctx context.Context) {
//	    // work
//	})
//	task.Wait()
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) *Task {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	t := &Task{name: name, done: make(chan struct{})}
	labels := pprof.Labels("goroutine_name", name)

	go func() {
		defer close(t.done)
		pprof.Do(parentCtx, labels, func(ctx context.Context) {
			fn(context.WithValue(ctx, goroutineNameKey, name))
		})
	}()

	return t
}

// Name returns the name the task was started with
func (t *Task) Name() string {
	return t.name
}

// Done is closed once the goroutine has returned
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the goroutine has returned
func (t *Task) Wait() {
	<-t.done
}

// Finished reports whether the goroutine has already returned
func (t *Task) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(goroutineNameKey).(string); ok {
		return v
	}
	return ""
}

// GetGID returns the numeric id of the calling goroutine, or 0 if it cannot
// be determined. Only meant for identity checks, never for scheduling.
func GetGID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	gid, _ := strconv.ParseUint(string(b[:i]), 10, 64)
	return gid
}
