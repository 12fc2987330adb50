package vkapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi/methods"
	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi/types"
)

var (
	ErrInvalidMethod   = errors.New("invalid method name")
	ErrBatchTooLarge   = fmt.Errorf("batch has more than %d calls", MaxBatchSize)
	ErrBatchMismatched = errors.New("execute returned a different number of results")
)

var methodNameRegex = regexp.MustCompile(`^[a-zA-Z]+\.[a-zA-Z]+$`)

func validateMethod(method string) error {
	if !methodNameRegex.MatchString(method) {
		return fmt.Errorf("%w %q", ErrInvalidMethod, method)
	}
	return nil
}

// CallResult is the outcome of one call inside an execute batch.
type CallResult struct {
	Response gjson.Result
	Err      error
}

// CallBatch renders up to MaxBatchSize calls into one execute request.
type CallBatch struct {
	client  *Client
	calls   []*PendingCall
	traceID string
}

func (c *Client) newCallBatch() *CallBatch {
	return &CallBatch{
		client:  c,
		calls:   make([]*PendingCall, 0, c.config.BatchSize),
		traceID: methods.GenerateTraceID(),
	}
}

func (cb *CallBatch) AddCall(call *PendingCall) {
	cb.client.Logger.Trace().
		Str("trace_id", cb.traceID).
		Str("method", call.Method).
		Stringer("params", call.Params).
		Int("index", len(cb.calls)).
		Msg("Adding call to batch")
	cb.calls = append(cb.calls, call)
}

func (cb *CallBatch) Len() int {
	return len(cb.calls)
}

// FinalizePayload renders the batch as VKScript, one API.<method>({...})
// expression per call, returned as an array in call order.
func (cb *CallBatch) FinalizePayload() (string, error) {
	var code strings.Builder
	code.WriteString("return [")
	for i, call := range cb.calls {
		if err := validateMethod(call.Method); err != nil {
			return "", err
		}
		args, err := json.Marshal(call.Params)
		if err != nil {
			return "", fmt.Errorf("failed to marshal params of %s: %w", call.Method, err)
		}
		if i > 0 {
			code.WriteByte(',')
		}
		code.WriteString("API.")
		code.WriteString(call.Method)
		code.WriteByte('(')
		code.Write(args)
		code.WriteByte(')')
	}
	code.WriteString("];")
	return code.String(), nil
}

// Send issues the single execute request for the batch.
func (cb *CallBatch) Send(ctx context.Context) ([]CallResult, error) {
	if len(cb.calls) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	code, err := cb.FinalizePayload()
	if err != nil {
		return nil, err
	}
	log := cb.client.Logger.With().Str("trace_id", cb.traceID).Logger()
	log.Debug().Int("calls", len(cb.calls)).Msg("Sending execute batch")
	envelope, err := cb.client.callMethod(log.WithContext(ctx), "execute", NewValues().Set("code", code))
	if err != nil {
		return nil, err
	}
	return splitExecuteResponse(envelope, len(cb.calls))
}

func splitExecuteResponse(envelope gjson.Result, n int) ([]CallResult, error) {
	response := envelope.Get("response")
	if !response.IsArray() {
		return nil, fmt.Errorf("%w: execute response is not an array", ErrMalformedResponse)
	}
	items := response.Array()
	if len(items) != n {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrBatchMismatched, n, len(items))
	}
	execErrors := envelope.Get("execute_errors").Array()
	nextErr := 0
	results := make([]CallResult, n)
	for i, item := range items {
		results[i].Response = item
		if item.Type != gjson.False {
			continue
		}
		if nextErr < len(execErrors) {
			var execErr types.ExecuteError
			if err := json.Unmarshal([]byte(execErrors[nextErr].Raw), &execErr); err == nil {
				results[i].Err = fmt.Errorf("%w: %w", ErrCallFailed, &execErr)
			}
			nextErr++
		}
		if results[i].Err == nil {
			results[i].Err = ErrCallFailed
		}
	}
	return results, nil
}

// Call is one entry of a synchronous ExecuteBatch.
type Call struct {
	Method string
	Params Params
}

// ExecuteBatch sends up to MaxBatchSize calls in one execute request and
// waits for the result, bypassing the executor queue.
func (c *Client) ExecuteBatch(ctx context.Context, calls ...Call) ([]CallResult, error) {
	if c == nil {
		return nil, ErrClientIsNil
	} else if len(calls) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	batch := c.newCallBatch()
	for _, call := range calls {
		values, err := ToValues(call.Params)
		if err != nil {
			return nil, fmt.Errorf("invalid params for %s: %w", call.Method, err)
		}
		batch.AddCall(&PendingCall{Method: call.Method, Params: values})
	}
	return batch.Send(ctx)
}
