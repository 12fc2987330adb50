package vkapi

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi/types"
)

type memoryCursors struct {
	lock    sync.Mutex
	cursors map[string][2]int64
}

func (mc *memoryCursors) GetCursor(_ context.Context, key string) (int64, int64, error) {
	mc.lock.Lock()
	defer mc.lock.Unlock()
	cursor := mc.cursors[key]
	return cursor[0], cursor[1], nil
}

func (mc *memoryCursors) PutCursor(_ context.Context, key string, ts, pts int64) error {
	mc.lock.Lock()
	defer mc.lock.Unlock()
	if mc.cursors == nil {
		mc.cursors = make(map[string][2]int64)
	}
	mc.cursors[key] = [2]int64{ts, pts}
	return nil
}

func (mc *memoryCursors) get(key string) [2]int64 {
	mc.lock.Lock()
	defer mc.lock.Unlock()
	return mc.cursors[key]
}

func withSettings(lp *LongPoll, settings LongPollSettings) {
	lp.lock.Lock()
	lp.settings = &settings
	lp.lock.Unlock()
}

func TestLongPoll_BuildURL(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api, AuthUser)
	lp := client.LongPoll()

	link, err := lp.buildURL(&LongPollSettings{Server: "im.vk.com/nim1", Key: "abc", TS: 15})
	require.NoError(t, err)
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "https", parsed.Scheme)
	assert.Equal(t, "/nim1", parsed.Path)
	query := parsed.Query()
	assert.Equal(t, "a_check", query.Get("act"))
	assert.Equal(t, "abc", query.Get("key"))
	assert.Equal(t, "15", query.Get("ts"))
	assert.Equal(t, "1", query.Get("wait"))
	assert.Equal(t, "2", query.Get("mode"))
	assert.Equal(t, "3", query.Get("version"))
	assert.Equal(t, "100000", query.Get("msgs_limit"))

	link, err = lp.buildURL(&LongPollSettings{Server: "https://lp.vk.com/wh1", Key: "k", TS: 1})
	require.NoError(t, err)
	assert.Contains(t, link, "https://lp.vk.com/wh1?")
}

func TestLongPoll_HandleFailure(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api, AuthUser)
	lp := client.LongPoll()
	withSettings(lp, LongPollSettings{Server: "s", Key: "k", TS: 10})

	req := lp.handleFailure(types.LongPollFailure{Failed: 1, TS: 20}, true)
	assert.True(t, req.keepTS)
	assert.Equal(t, int64(20), lp.Settings().TS)

	req = lp.handleFailure(types.LongPollFailure{Failed: 1}, false)
	assert.True(t, req.keepTS)
	assert.Equal(t, int64(20), lp.Settings().TS)

	req = lp.handleFailure(types.LongPollFailure{Failed: 2}, false)
	assert.True(t, req.keepTS)

	req = lp.handleFailure(types.LongPollFailure{Failed: 3}, false)
	assert.True(t, req.keepTS)

	req = lp.handleFailure(types.LongPollFailure{Failed: 4, MinVersion: 0, MaxVersion: 7}, false)
	assert.True(t, req.keepTS)
	assert.Equal(t, 7, lp.Version())
}

func TestLongPoll_PollOnceQueuesUpdates(t *testing.T) {
	api := newFakeAPI(t)
	api.handle("lp", func(form url.Values) string {
		assert.Equal(t, "10", form.Get("ts"))
		return `{"ts":11,"pts":5,"updates":[[4,1,0,42,1,"a",{}],[62,42,42]]}`
	})
	client := newTestClient(t, api, AuthUser)
	client.On(EventMessage, func(context.Context, Event) {})
	lp := client.LongPoll()
	cursors := &memoryCursors{}
	lp.SetCursorStore(cursors, "user")
	withSettings(lp, LongPollSettings{Server: api.lpServer(), Key: "k", TS: 10})

	req, err := lp.pollOnce(context.Background())
	require.NoError(t, err)
	assert.Nil(t, req)
	assert.Equal(t, 2, client.Queue().Len())
	assert.Equal(t, int64(11), lp.Settings().TS)
	assert.Equal(t, int64(5), lp.Settings().PTS)
	assert.Equal(t, [2]int64{11, 5}, cursors.get("user"))
}

func TestLongPoll_PollOnceSkipsQueueWithoutHandlers(t *testing.T) {
	api := newFakeAPI(t)
	api.respond("lp", `{"ts":11,"updates":[[4,1,0,42,1,"a",{}]]}`)
	client := newTestClient(t, api, AuthUser)
	lp := client.LongPoll()
	withSettings(lp, LongPollSettings{Server: api.lpServer(), Key: "k", TS: 10})

	_, err := lp.pollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, client.Queue().Len())
	assert.Equal(t, int64(11), lp.Settings().TS)
}

func TestLongPoll_PollOnceFailures(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api, AuthUser)
	lp := client.LongPoll()
	withSettings(lp, LongPollSettings{Server: api.lpServer(), Key: "k", TS: 10})

	api.respond("lp", `{"failed":2}`)
	req, err := lp.pollOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.True(t, req.keepTS)

	api.respond("lp", `{"ts":12}`)
	_, err = lp.pollOnce(context.Background())
	assert.ErrorIs(t, err, ErrMalformedPollResult)

	api.respond("lp", `not json`)
	_, err = lp.pollOnce(context.Background())
	assert.ErrorIs(t, err, ErrMalformedPollResult)
}

func TestLongPoll_ConnectDeliversUpdates(t *testing.T) {
	api := newFakeAPI(t)
	api.respond("groups.getLongPollServer", fmt.Sprintf(`{"response":{"server":%q,"key":"k","ts":"100"}}`, api.lpServer()))
	var polls atomic.Int32
	api.handle("lp", func(form url.Values) string {
		n := polls.Add(1)
		if n == 1 {
			return `{"ts":"101","updates":[{"type":"message_new","group_id":1,"object":{"id":1,"peer_id":42,"text":"hello"}}]}`
		}
		time.Sleep(10 * time.Millisecond)
		return fmt.Sprintf(`{"ts":"%d","updates":[]}`, 100+n)
	})
	client := newTestClient(t, api, AuthGroup)
	got := make(chan string, 1)
	client.OnMessage(EventMessage, func(_ context.Context, msg *Message) {
		got <- msg.Text
	})
	var ready atomic.Bool
	client.On(EventLongPollReady, func(context.Context, Event) { ready.Store(true) })

	require.NoError(t, client.Connect(testContext(t)))
	select {
	case text := <-got:
		assert.Equal(t, "hello", text)
	case <-time.After(3 * time.Second):
		t.Fatal("message wasn't delivered")
	}
	assert.True(t, ready.Load())
	assert.True(t, client.IsConnected())
	assert.ErrorIs(t, client.LongPoll().Start(context.Background()), ErrLongPollRunning)

	client.Disconnect()
	require.NoError(t, client.LongPoll().Wait(testContext(t)))
	assert.Equal(t, LongPollStopped, client.LongPoll().State())
	assert.False(t, client.IsConnected())
	assert.Equal(t, "1", api.callsTo("groups.getLongPollServer")[0].Form.Get("group_id"))
}

func TestLongPoll_ResumesFromCursor(t *testing.T) {
	api := newFakeAPI(t)
	api.respond("messages.getLongPollServer", fmt.Sprintf(`{"response":{"server":%q,"key":"k","ts":500,"pts":1}}`, api.lpServer()))
	firstTS := make(chan string, 1)
	api.handle("lp", func(form url.Values) string {
		select {
		case firstTS <- form.Get("ts"):
		default:
		}
		time.Sleep(10 * time.Millisecond)
		return `{"ts":600,"updates":[]}`
	})
	client := newTestClient(t, api, AuthUser)
	cursors := &memoryCursors{cursors: map[string][2]int64{"bot": {450, 3}}}
	client.LongPoll().SetCursorStore(cursors, "bot")

	require.NoError(t, client.Connect(testContext(t)))
	select {
	case ts := <-firstTS:
		assert.Equal(t, "450", ts)
	case <-time.After(3 * time.Second):
		t.Fatal("long poll didn't start")
	}
	require.Eventually(t, func() bool { return cursors.get("bot")[0] == 600 }, 3*time.Second, 5*time.Millisecond)
	client.Disconnect()
	acquire := api.callsTo("messages.getLongPollServer")[0].Form
	assert.Equal(t, "0", acquire.Get("need_pts"))
	assert.Equal(t, "3", acquire.Get("lp_version"))
}

func TestLongPoll_AcquireGivesUp(t *testing.T) {
	api := newFakeAPI(t)
	api.respond("groups.getLongPollServer", `{"error":{"error_code":5,"error_msg":"User authorization failed"}}`)
	cfg := testConfig(api, AuthGroup)
	cfg.AcquireMaxElapsed = 50 * time.Millisecond
	client, err := NewClient(cfg, zerolog.New(zerolog.NewTestWriter(t)))
	require.NoError(t, err)
	t.Cleanup(client.Disconnect)

	var lock sync.Mutex
	var errs []*Event_LongPollError
	client.On(EventLongPollError, func(_ context.Context, evt Event) {
		lock.Lock()
		errs = append(errs, evt.(*Event_LongPollError))
		lock.Unlock()
	})

	require.NoError(t, client.Connect(testContext(t)))
	require.NoError(t, client.LongPoll().Wait(testContext(t)))

	lock.Lock()
	defer lock.Unlock()
	require.NotEmpty(t, errs)
	last := errs[len(errs)-1]
	assert.True(t, last.Permanent)
	assert.ErrorIs(t, last.Err, types.ErrAuthFailed)
	assert.Equal(t, len(errs), last.Attempts)
	for _, evt := range errs[:len(errs)-1] {
		assert.False(t, evt.Permanent)
	}
	assert.False(t, client.LongPoll().IsOn())
}

func TestLongPoll_VersionMismatchReacquiresWithMaxVersion(t *testing.T) {
	api := newFakeAPI(t)
	api.respond("messages.getLongPollServer", fmt.Sprintf(`{"response":{"server":%q,"key":"k","ts":10}}`, api.lpServer()))
	var polls atomic.Int32
	api.handle("lp", func(form url.Values) string {
		if polls.Add(1) == 1 {
			return `{"failed":4,"min_version":0,"max_version":7}`
		}
		time.Sleep(10 * time.Millisecond)
		return `{"ts":11,"updates":[]}`
	})
	client := newTestClient(t, api, AuthUser)

	require.NoError(t, client.Connect(testContext(t)))
	require.Eventually(t, func() bool { return polls.Load() >= 2 }, 3*time.Second, 5*time.Millisecond)
	client.Disconnect()

	acquires := api.callsTo("messages.getLongPollServer")
	require.GreaterOrEqual(t, len(acquires), 2)
	assert.Equal(t, "3", acquires[0].Form.Get("lp_version"))
	assert.Equal(t, "7", acquires[1].Form.Get("lp_version"))
	checks := api.callsTo("lp")
	assert.Equal(t, "3", checks[0].Form.Get("version"))
	assert.Equal(t, "7", checks[1].Form.Get("version"))
	assert.Equal(t, "10", checks[1].Form.Get("ts"))
}

func TestLongPoll_RestartWhileRequestInFlight(t *testing.T) {
	api := newFakeAPI(t)
	api.respond("groups.getLongPollServer", fmt.Sprintf(`{"response":{"server":%q,"key":"k","ts":1}}`, api.lpServer()))
	release := make(chan struct{})
	releaseOnce := sync.OnceFunc(func() { close(release) })
	t.Cleanup(releaseOnce)
	var polls atomic.Int32
	api.handle("lp", func(form url.Values) string {
		if polls.Add(1) == 1 {
			<-release
		} else {
			time.Sleep(5 * time.Millisecond)
		}
		return `{"ts":2,"updates":[]}`
	})
	client := newTestClient(t, api, AuthGroup)
	lp := client.LongPoll()
	ctx := testContext(t)

	require.NoError(t, lp.Start(ctx))
	require.Eventually(t, func() bool { return polls.Load() == 1 }, 3*time.Second, time.Millisecond)
	lp.runLock.Lock()
	firstStopped := lp.stopped
	lp.runLock.Unlock()

	lp.Off()
	require.NoError(t, lp.Start(ctx))
	releaseOnce()
	assert.True(t, firstStopped.WaitTimeout(3*time.Second), "turned off loop kept running")

	seen := polls.Load()
	require.Eventually(t, func() bool { return polls.Load() > seen+3 }, 3*time.Second, time.Millisecond)
	assert.True(t, lp.IsOn())
	assert.Equal(t, LongPollPolling, lp.State())

	lp.Off()
	require.NoError(t, lp.Wait(ctx))
	assert.Equal(t, LongPollStopped, lp.State())
}

func TestClient_SetLongPollStartsReplacement(t *testing.T) {
	api := newFakeAPI(t)
	api.respond("groups.getLongPollServer", fmt.Sprintf(`{"response":{"server":%q,"key":"k","ts":1}}`, api.lpServer()))
	api.handle("lp", func(url.Values) string {
		time.Sleep(5 * time.Millisecond)
		return `{"ts":2,"updates":[]}`
	})
	client := newTestClient(t, api, AuthGroup)
	require.NoError(t, client.Connect(testContext(t)))
	require.Eventually(t, client.IsConnected, 3*time.Second, time.Millisecond)

	old := client.LongPoll()
	replacement := client.NewLongPoll(LongPollConfig{Wait: 1, Mode: 2, Version: 3})
	require.NoError(t, client.SetLongPoll(replacement))
	require.NoError(t, old.Wait(testContext(t)))
	assert.False(t, old.IsOn())
	require.Eventually(t, client.IsConnected, 3*time.Second, time.Millisecond)
	assert.Same(t, replacement, client.LongPoll())

	client.Disconnect()
	require.NoError(t, replacement.Wait(testContext(t)))
	assert.Equal(t, LongPollStopped, replacement.State())

	idle := newTestClient(t, api, AuthGroup)
	unstarted := idle.NewLongPoll(LongPollConfig{})
	require.NoError(t, idle.SetLongPoll(unstarted))
	assert.False(t, unstarted.IsOn())
}
