package gpu

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/xaionaro-go/avplayer/helpers/closuresignaler"
	"github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/observability"
)

type executorCtxKey struct{}

type executorTask struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan<- error
}

// Executor runs every submitted function on one goroutine locked to one OS
// thread. GPU resource pools and command queues are not safe for concurrent
// submission, so all Pipeline calls go through an Executor.
type Executor struct {
	*closuresignaler.ClosureSignaler
	tasks    chan executorTask
	loopDone chan struct{}
}

func NewExecutor(ctx context.Context) *Executor {
	e := &Executor{
		ClosureSignaler: closuresignaler.New(),
		tasks:           make(chan executorTask),
		loopDone:        make(chan struct{}),
	}
	observability.Go(ctx, func(ctx context.Context) {
		defer close(e.loopDone)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		e.loop(ctx)
	})
	return e
}

func (e *Executor) String() string {
	return fmt.Sprintf("GPUExecutor(%p)", e)
}

func (e *Executor) loop(ctx context.Context) {
	logger.Debugf(ctx, "loop")
	defer func() { logger.Debugf(ctx, "/loop") }()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.CloseChan():
			return
		case t := <-e.tasks:
			t.result <- e.execute(t)
		}
	}
}

func (e *Executor) execute(t executorTask) (_err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		logger.Errorf(t.ctx, "got panic in %s: %v:\n%s\n", e, r, debug.Stack())
		_err = ErrPanic{Value: r}
	}()
	return t.fn(context.WithValue(t.ctx, executorCtxKey{}, e))
}

// Do runs fn on the executor goroutine and waits for it to return.
//
// ctx may only abort the submission: once fn is accepted Do waits for it,
// since fn may hold resources the caller is about to release. Calling Do
// from inside fn (with the ctx fn received) runs the nested call inline.
func (e *Executor) Do(
	ctx context.Context,
	fn func(context.Context) error,
) error {
	if owner, _ := ctx.Value(executorCtxKey{}).(*Executor); owner == e {
		return fn(ctx)
	}

	result := make(chan error, 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.CloseChan():
		return ErrExecutorClosed{}
	case <-e.loopDone:
		return ErrExecutorClosed{}
	case e.tasks <- executorTask{ctx: ctx, fn: fn, result: result}:
	}

	select {
	case err := <-result:
		return err
	case <-e.loopDone:
		return ErrExecutorClosed{}
	}
}

// Close stops the executor and waits until its goroutine exits.
func (e *Executor) Close(ctx context.Context) error {
	e.ClosureSignaler.Close(ctx)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.loopDone:
		return nil
	}
}
