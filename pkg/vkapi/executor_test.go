package vkapi

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi/types"
)

// echoExecute answers every execute with the position of each call in its batch.
func echoExecute(form url.Values) string {
	n := strings.Count(form.Get("code"), "API.")
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprint(i)
	}
	return `{"response":[` + strings.Join(items, ",") + `]}`
}

type callRecorder struct {
	lock    sync.Mutex
	order   []int
	results map[int]gjson.Result
	errs    map[int]error
	counts  map[int]int
}

func newCallRecorder() *callRecorder {
	return &callRecorder{results: map[int]gjson.Result{}, errs: map[int]error{}, counts: map[int]int{}}
}

func (cr *callRecorder) callback(id int) CallCallback {
	return func(response gjson.Result, err error) {
		cr.lock.Lock()
		defer cr.lock.Unlock()
		cr.order = append(cr.order, id)
		cr.results[id] = response
		cr.errs[id] = err
		cr.counts[id]++
	}
}

func TestExecutor_DrainKeepsOrder(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("execute", echoExecute)
	client := newTestClient(t, api, AuthGroup)
	rec := newCallRecorder()
	for i := 0; i < 3; i++ {
		client.Call("users.get", P("user_ids", i), rec.callback(i))
	}
	require.Equal(t, 3, client.Executor().Len())

	client.Executor().drain(testContext(t))

	assert.Equal(t, []int{0, 1, 2}, rec.order)
	for i := 0; i < 3; i++ {
		assert.NoError(t, rec.errs[i])
		assert.Equal(t, int64(i), rec.results[i].Int())
		assert.Equal(t, 1, rec.counts[i])
	}
	assert.Equal(t, 0, client.Executor().Len())
	assert.Equal(t, uint64(1), client.Executor().SentBatches())
}

func TestExecutor_EmptyDrainSendsNothing(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api, AuthGroup)
	client.Executor().drain(testContext(t))
	assert.Empty(t, api.callsTo("execute"))
	assert.Zero(t, client.Executor().SentBatches())
}

func TestExecutor_SplitsLargeQueues(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("execute", echoExecute)
	client := newTestClient(t, api, AuthGroup)
	rec := newCallRecorder()
	total := MaxBatchSize + 5
	for i := 0; i < total; i++ {
		client.Call("users.get", P("user_ids", i), rec.callback(i))
	}

	client.Executor().drain(testContext(t))
	assert.Len(t, rec.order, MaxBatchSize)
	assert.Equal(t, 5, client.Executor().Len())

	client.Executor().drain(testContext(t))
	assert.Len(t, rec.order, total)
	assert.Len(t, api.callsTo("execute"), 2)
	assert.Equal(t, int64(4), rec.results[MaxBatchSize+4].Int())
}

func TestExecutor_BatchFailureFailsEveryCall(t *testing.T) {
	api := newFakeAPI(t)
	api.respond("execute", `{"error":{"error_code":6,"error_msg":"Too many requests per second"}}`)
	client := newTestClient(t, api, AuthGroup)
	rec := newCallRecorder()
	client.Call("users.get", nil, rec.callback(0))
	client.Call("users.get", nil, rec.callback(1))

	client.Executor().drain(testContext(t))

	require.Len(t, rec.order, 2)
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, rec.errs[i], ErrBatchFailed)
		assert.ErrorIs(t, rec.errs[i], types.ErrTooManyRequests)
	}
}

func TestExecutor_PartialFailure(t *testing.T) {
	api := newFakeAPI(t)
	api.respond("execute", `{"response":[1,false],"execute_errors":[{"method":"messages.send","error_code":7,"error_msg":"Permission denied"}]}`)
	client := newTestClient(t, api, AuthGroup)
	rec := newCallRecorder()
	client.Call("users.get", nil, rec.callback(0))
	client.Call("messages.send", P("peer_id", 1, "message", "x"), rec.callback(1))

	client.Executor().drain(testContext(t))

	assert.NoError(t, rec.errs[0])
	assert.ErrorIs(t, rec.errs[1], ErrCallFailed)
	assert.ErrorContains(t, rec.errs[1], "Permission denied")
}

func TestExecutor_InvalidCallFailsImmediately(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api, AuthGroup)
	rec := newCallRecorder()
	client.Call("not a method", nil, rec.callback(0))
	client.Call("users.get", P("odd"), rec.callback(1))

	assert.ErrorIs(t, rec.errs[0], ErrInvalidMethod)
	assert.ErrorIs(t, rec.errs[1], ErrOddKeyValues)
	assert.Equal(t, 0, client.Executor().Len())
}

func TestExecutor_CallbackPanicDoesNotStopBatch(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("execute", echoExecute)
	client := newTestClient(t, api, AuthGroup)
	rec := newCallRecorder()
	client.Call("users.get", nil, func(gjson.Result, error) { panic("boom") })
	client.Call("users.get", nil, rec.callback(1))

	client.Executor().drain(testContext(t))
	assert.Equal(t, []int{1}, rec.order)
}

func TestClient_ExecuteWaitsForBatch(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("execute", echoExecute)
	client := newTestClient(t, api, AuthGroup)
	client.Start(testContext(t))

	start := time.Now()
	resp, err := client.Execute(testContext(t), "users.get", P("user_ids", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.Int())
	assert.Less(t, time.Since(start), 2*time.Second)
}
