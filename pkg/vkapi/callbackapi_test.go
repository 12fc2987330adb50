package vkapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postCallback(t *testing.T, handler http.Handler, path, body string) (int, string) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	data, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(data)
}

func TestCallbackServer(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api, AuthGroup)
	router := client.NewCallbackServer(CallbackConfig{Confirmation: "c0nf1rm", Secret: "s3cret", Path: "/vk"}).Router()

	code, body := postCallback(t, router, "/vk", `{"type":"confirmation","group_id":1}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "c0nf1rm", body)

	code, body = postCallback(t, router, "/vk", `{"type":"message_new","group_id":2,"object":{},"secret":"s3cret"}`)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "wrong group", body)

	code, body = postCallback(t, router, "/vk", `{"type":"message_new","group_id":1,"object":{},"secret":"nope"}`)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "bad secret", body)

	code, _ = postCallback(t, router, "/vk", `{"type":`)
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Equal(t, 0, client.Queue().Len())

	code, body = postCallback(t, router, "/vk", `{"type":"group_join","group_id":1,"object":{"user_id":5},"secret":"s3cret"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)
	require.Equal(t, 1, client.Queue().Len())
	upd, _ := client.Queue().Shift()
	assert.Equal(t, "group_join", upd.Type())
}

func TestCallbackServer_Health(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api, AuthGroup)
	router := client.NewCallbackServer(CallbackConfig{}).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCallbackServer_DispatchesEvents(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api, AuthGroup)
	got := make(chan int64, 1)
	client.On(GroupJoin, func(_ context.Context, evt Event) {
		var obj struct {
			UserID int64 `json:"user_id"`
		}
		if err := evt.(*Event_Group).Unmarshal(&obj); err == nil {
			got <- obj.UserID
		}
	})
	client.Start(testContext(t))
	router := client.NewCallbackServer(CallbackConfig{}).Router()

	code, _ := postCallback(t, router, "/", `{"type":"group_join","group_id":1,"object":{"user_id":5}}`)
	require.Equal(t, http.StatusOK, code)
	select {
	case userID := <-got:
		assert.Equal(t, int64(5), userID)
	case <-time.After(3 * time.Second):
		t.Fatal("event wasn't dispatched")
	}
}
