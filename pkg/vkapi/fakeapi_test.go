package vkapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Method string
	Form   url.Values
}

// fakeAPI is an httptest server answering /method/<name> requests and long
// poll requests on /lp with scripted bodies.
type fakeAPI struct {
	server *httptest.Server

	lock     sync.Mutex
	calls    []recordedCall
	handlers map[string]func(form url.Values) string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	api := &fakeAPI{handlers: make(map[string]func(url.Values) string)}
	api.server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.server.Close)
	return api
}

func (api *fakeAPI) handle(method string, fn func(form url.Values) string) {
	api.lock.Lock()
	api.handlers[method] = fn
	api.lock.Unlock()
}

func (api *fakeAPI) respond(method, body string) {
	api.handle(method, func(url.Values) string { return body })
}

func (api *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	name := "lp"
	if strings.HasPrefix(r.URL.Path, "/method/") {
		name = strings.TrimPrefix(r.URL.Path, "/method/")
	}
	api.lock.Lock()
	api.calls = append(api.calls, recordedCall{Method: name, Form: r.Form})
	handler, ok := api.handlers[name]
	api.lock.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		_, _ = w.Write([]byte(`{"error":{"error_code":3,"error_msg":"Unknown method passed"}}`))
		return
	}
	_, _ = w.Write([]byte(handler(r.Form)))
}

func (api *fakeAPI) callsTo(method string) []recordedCall {
	api.lock.Lock()
	defer api.lock.Unlock()
	var out []recordedCall
	for _, call := range api.calls {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

func (api *fakeAPI) lpServer() string {
	return api.server.URL + "/lp"
}

func testConfig(api *fakeAPI, mode AuthMode) Config {
	cfg := Config{
		AccessToken:       "token",
		Mode:              mode,
		BaseURL:           api.server.URL,
		MaxHTTPRetries:    -1,
		ExecuteInterval:   5 * time.Millisecond,
		RequestsPerSecond: 1000,
		AcquireRetryDelay: 10 * time.Millisecond,
		LongPoll:          LongPollConfig{Wait: 1, Mode: 2, Version: 3},
	}
	if mode == AuthGroup {
		cfg.GroupID = 1
	}
	return cfg
}

func newTestClient(t *testing.T, api *fakeAPI, mode AuthMode) *Client {
	client, err := NewClient(testConfig(api, mode), zerolog.New(zerolog.NewTestWriter(t)))
	require.NoError(t, err)
	t.Cleanup(client.Disconnect)
	return client
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
