package vkapi

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
)

var (
	ErrBatchFailed = errors.New("batched call failed")
	ErrCallFailed  = errors.New("call inside execute failed")
)

// CallCallback receives the result of an asynchronous call. It is invoked
// exactly once, with a non-nil err if the call or its batch failed.
type CallCallback func(response gjson.Result, err error)

type PendingCall struct {
	Method   string
	Params   *Values
	Callback CallCallback
}

// Executor queues asynchronous API calls and sends them in execute batches
// from the client's scheduler.
type Executor struct {
	client    *Client
	batchSize int

	lock  sync.Mutex
	queue []*PendingCall

	sentBatches atomic.Uint64
}

func newExecutor(c *Client) *Executor {
	return &Executor{
		client:    c,
		batchSize: c.config.BatchSize,
	}
}

// Enqueue adds a call to the queue and returns immediately. Invalid
// parameters or method names fail the callback synchronously.
func (e *Executor) Enqueue(method string, params Params, callback CallCallback) {
	values, err := ToValues(params)
	if err == nil {
		err = validateMethod(method)
	}
	call := &PendingCall{Method: method, Params: values, Callback: callback}
	if err != nil {
		e.client.Logger.Err(err).Str("method", method).Msg("Rejecting call")
		e.fire(call, gjson.Result{}, err)
		return
	}
	e.lock.Lock()
	e.queue = append(e.queue, call)
	e.lock.Unlock()
}

// Execute enqueues a call and blocks until its batch is answered.
func (e *Executor) Execute(ctx context.Context, method string, params Params) (gjson.Result, error) {
	ch := make(chan CallResult, 1)
	e.Enqueue(method, params, func(response gjson.Result, err error) {
		ch <- CallResult{Response: response, Err: err}
	})
	select {
	case res := <-ch:
		return res.Response, res.Err
	case <-ctx.Done():
		return gjson.Result{}, ctx.Err()
	}
}

func (e *Executor) Len() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.queue)
}

// SentBatches returns how many execute requests the executor has issued.
func (e *Executor) SentBatches() uint64 {
	return e.sentBatches.Load()
}

// snapshot removes and returns up to batchSize of the oldest calls.
func (e *Executor) snapshot() []*PendingCall {
	e.lock.Lock()
	defer e.lock.Unlock()
	n := min(len(e.queue), e.batchSize)
	if n == 0 {
		return nil
	}
	calls := make([]*PendingCall, n)
	copy(calls, e.queue)
	rest := make([]*PendingCall, len(e.queue)-n)
	copy(rest, e.queue[n:])
	e.queue = rest
	return calls
}

func (e *Executor) drain(ctx context.Context) {
	calls := e.snapshot()
	if len(calls) == 0 {
		return
	}
	e.sentBatches.Add(1)
	batch := e.client.newCallBatch()
	for _, call := range calls {
		batch.AddCall(call)
	}
	results, err := batch.Send(ctx)
	if err != nil {
		e.client.Logger.Err(err).
			Str("trace_id", batch.traceID).
			Int("calls", len(calls)).
			Msg("Execute batch failed")
		failure := fmt.Errorf("%w: %w", ErrBatchFailed, err)
		for _, call := range calls {
			e.fire(call, gjson.Result{}, failure)
		}
		return
	}
	for i, call := range calls {
		e.fire(call, results[i].Response, results[i].Err)
	}
}

func (e *Executor) fire(call *PendingCall, response gjson.Result, err error) {
	if call.Callback == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			e.client.Logger.Error().
				Str("method", call.Method).
				Str("panic", fmt.Sprint(p)).
				Bytes("stack", debug.Stack()).
				Msg("Call callback panicked")
		}
	}()
	call.Callback(response, err)
}

// Call enqueues an asynchronous API call on the client's executor.
func (c *Client) Call(method string, params Params, callback CallCallback) {
	c.executor.Enqueue(method, params, callback)
}

// Execute enqueues a call and waits for its batched result.
func (c *Client) Execute(ctx context.Context, method string, params Params) (gjson.Result, error) {
	if c == nil {
		return gjson.Result{}, ErrClientIsNil
	}
	return c.executor.Execute(ctx, method, params)
}
