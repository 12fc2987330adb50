package vkapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-querystring/query"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"go.mau.fi/util/exhttp"
	"go.mau.fi/util/exsync"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi/types"
)

var (
	ErrLongPollRunning      = errors.New("long poll is already running")
	ErrAcquireFailed        = errors.New("failed to acquire long poll server")
	ErrMalformedPollResult  = errors.New("malformed long poll response")
	ErrAcquireRetryExceeded = errors.New("gave up acquiring long poll server")
)

const DefaultMsgsLimit = 100000

// CursorStore persists the long-poll position so a restarted client can
// resume where it left off.
type CursorStore interface {
	GetCursor(ctx context.Context, key string) (ts, pts int64, err error)
	PutCursor(ctx context.Context, key string, ts, pts int64) error
}

// LongPollSettings is the server triple returned by getLongPollServer.
type LongPollSettings struct {
	Server string
	Key    string
	TS     int64
	PTS    int64
}

// LongPoll fetches updates in a loop and appends them to the update queue.
type LongPoll struct {
	client *Client
	log    zerolog.Logger
	queue  *UpdateQueue
	http   atomic.Pointer[http.Client]
	config LongPollConfig

	lock     sync.RWMutex
	settings *LongPollSettings
	version  int

	// Start and Off both bump gen; a loop keeps going only while gen equals
	// the value it was started with. started is the gen of the latest Start.
	runLock    sync.Mutex
	gen        atomic.Uint64
	started    uint64
	on         atomic.Bool
	state      atomic.Int32
	logUpdates atomic.Bool

	cursors   CursorStore
	cursorKey string
	restored  bool

	stopped *exsync.Event
}

// NewLongPoll creates a long poll feeding the client's update queue. It is
// not started; pass it to SetLongPoll to replace the default one.
func (c *Client) NewLongPoll(cfg LongPollConfig) *LongPoll {
	cfg = cfg.withDefaults()
	lp := &LongPoll{
		client:  c,
		log:     c.Logger.With().Str("component", "long_poll").Logger(),
		queue:   c.queue,
		config:  cfg,
		version: cfg.Version,
		stopped: exsync.NewEvent(),
	}
	lp.setHTTP(c.getHTTPSettings())
	lp.stopped.Set()
	return lp
}

func (lp *LongPoll) setHTTP(settings exhttp.ClientSettings) {
	wait := time.Duration(lp.config.Wait) * time.Second
	client := settings.
		WithResponseHeaderTimeout(wait + 15*time.Second).
		WithGlobalTimeout(wait + 30*time.Second).
		Compile()
	if old := lp.http.Swap(client); old != nil {
		old.CloseIdleConnections()
	}
}

// SetCursorStore enables persisting the poll position under key.
func (lp *LongPoll) SetCursorStore(store CursorStore, key string) {
	lp.cursors = store
	lp.cursorKey = key
}

// EnableLoggingUpdates logs every raw long-poll response.
func (lp *LongPoll) EnableLoggingUpdates(enable bool) {
	lp.logUpdates.Store(enable)
}

func (lp *LongPoll) IsOn() bool {
	return lp.on.Load()
}

func (lp *LongPoll) State() LongPollState {
	return LongPollState(lp.state.Load())
}

// Settings returns a copy of the current server settings, or nil before the
// first acquisition.
func (lp *LongPoll) Settings() *LongPollSettings {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	if lp.settings == nil {
		return nil
	}
	copied := *lp.settings
	return &copied
}

func (lp *LongPoll) Version() int {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	return lp.version
}

// Start launches the polling goroutine. A loop that was turned off but is
// still finishing its last request exits after it instead of polling
// alongside the new one.
func (lp *LongPoll) Start(ctx context.Context) error {
	lp.runLock.Lock()
	defer lp.runLock.Unlock()
	if lp.on.Load() {
		return ErrLongPollRunning
	}
	lp.on.Store(true)
	gen := lp.gen.Add(1)
	lp.started = gen
	lp.stopped = exsync.NewEvent()
	go lp.run(ctx, gen, lp.stopped)
	return nil
}

// Off asks the loop to stop after the current request.
func (lp *LongPoll) Off() {
	lp.runLock.Lock()
	defer lp.runLock.Unlock()
	if lp.on.Swap(false) {
		lp.gen.Add(1)
	}
}

// Wait blocks until the most recently started loop has exited or ctx is done.
func (lp *LongPoll) Wait(ctx context.Context) error {
	lp.runLock.Lock()
	stopped := lp.stopped
	lp.runLock.Unlock()
	select {
	case <-stopped.GetChan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (lp *LongPoll) isCurrent(gen uint64) bool {
	return lp.gen.Load() == gen
}

func (lp *LongPoll) setState(gen uint64, state LongPollState) {
	if lp.isCurrent(gen) {
		lp.state.Store(int32(state))
	}
}

func (lp *LongPoll) run(ctx context.Context, gen uint64, stopped *exsync.Event) {
	defer func() {
		lp.runLock.Lock()
		if lp.started == gen {
			lp.on.Store(false)
			lp.state.Store(int32(LongPollStopped))
		}
		lp.runLock.Unlock()
		stopped.Set()
	}()
	needAcquire, keepTS := true, false
	for lp.isCurrent(gen) && ctx.Err() == nil {
		if needAcquire {
			if err := lp.acquire(ctx, gen, keepTS); err != nil {
				return
			}
			needAcquire, keepTS = false, false
		}
		reacquire, err := lp.pollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			lp.log.Warn().Err(err).Msg("Long poll request failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if reacquire != nil {
			needAcquire, keepTS = true, reacquire.keepTS
			lp.setState(gen, LongPollReconnecting)
		}
	}
}

// acquire fetches new server settings, retrying with backoff until it
// succeeds, the loop is turned off or the retry budget runs out.
func (lp *LongPoll) acquire(ctx context.Context, gen uint64, keepTS bool) error {
	lp.setState(gen, LongPollAcquiring)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = lp.client.config.AcquireRetryDelay
	bo.MaxInterval = lp.client.config.AcquireRetryDelay
	bo.Multiplier = 1
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = lp.client.config.AcquireMaxElapsed
	bo.Reset()
	attempts := 0
	for {
		attempts++
		settings, err := lp.fetchSettings(ctx)
		if err == nil {
			lp.applySettings(ctx, gen, settings, keepTS)
			return nil
		}
		lp.log.Err(err).Int("attempt", attempts).Msg("Failed to acquire long poll server")
		if ctx.Err() != nil || !lp.isCurrent(gen) {
			return err
		} else if errors.Is(err, ErrRequestFailed) {
			lp.client.UpdateProxy("long poll acquire")
		}
		wait := bo.NextBackOff()
		permanent := wait == backoff.Stop
		lp.client.emit(ctx, &Event_LongPollError{Err: err, Attempts: attempts, Permanent: permanent})
		if permanent {
			return fmt.Errorf("%w after %d attempts: %w", ErrAcquireRetryExceeded, attempts, err)
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (lp *LongPoll) fetchSettings(ctx context.Context) (*LongPollSettings, error) {
	var resp gjson.Result
	var err error
	if lp.client.config.Mode == AuthGroup {
		resp, err = lp.client.CallSync(ctx, "groups.getLongPollServer", Struct{V: types.GroupLongPollServerParams{
			GroupID: lp.client.config.GroupID,
		}})
	} else {
		needPTS := 0
		if lp.config.NeedPTS {
			needPTS = 1
		}
		resp, err = lp.client.CallSync(ctx, "messages.getLongPollServer", Struct{V: types.UserLongPollServerParams{
			NeedPTS:   needPTS,
			LPVersion: lp.Version(),
		}})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquireFailed, err)
	}
	settings := &LongPollSettings{
		Server: resp.Get("server").String(),
		Key:    resp.Get("key").String(),
		TS:     resp.Get("ts").Int(),
		PTS:    resp.Get("pts").Int(),
	}
	if settings.Server == "" || settings.Key == "" {
		return nil, fmt.Errorf("%w: response is missing server or key", ErrAcquireFailed)
	}
	return settings, nil
}

func (lp *LongPoll) applySettings(ctx context.Context, gen uint64, settings *LongPollSettings, keepTS bool) {
	lp.lock.Lock()
	if keepTS && lp.settings != nil {
		settings.TS = lp.settings.TS
		settings.PTS = max(settings.PTS, lp.settings.PTS)
	}
	if !lp.restored && lp.cursors != nil {
		lp.restored = true
		ts, pts, err := lp.cursors.GetCursor(ctx, lp.cursorKey)
		if err != nil {
			lp.log.Warn().Err(err).Msg("Failed to load saved long poll cursor")
		} else if ts > 0 {
			lp.log.Debug().Int64("ts", ts).Msg("Resuming from saved long poll cursor")
			settings.TS = ts
			settings.PTS = max(settings.PTS, pts)
		}
	}
	lp.settings = settings
	lp.lock.Unlock()
	lp.setState(gen, LongPollPolling)
	lp.log.Debug().
		Str("server", settings.Server).
		Int64("ts", settings.TS).
		Msg("Acquired long poll server")
	lp.client.emit(ctx, &Event_LongPollReady{Server: settings.Server, TS: settings.TS})
}

func (lp *LongPoll) buildURL(settings *LongPollSettings) (string, error) {
	q, err := query.Values(types.LongPollQuery{
		Act:       "a_check",
		Key:       settings.Key,
		TS:        settings.TS,
		Wait:      lp.config.Wait,
		Mode:      lp.config.Mode,
		Version:   lp.Version(),
		MsgsLimit: DefaultMsgsLimit,
	})
	if err != nil {
		return "", err
	}
	server := settings.Server
	if !strings.Contains(server, "://") {
		server = "https://" + server
	}
	return server + "?" + q.Encode(), nil
}

type reacquireRequest struct {
	keepTS bool
}

// pollOnce performs one a_check request. A non-nil reacquireRequest means
// the server settings must be fetched again before the next request.
func (lp *LongPoll) pollOnce(ctx context.Context) (*reacquireRequest, error) {
	settings := lp.Settings()
	url, err := lp.buildURL(settings)
	if err != nil {
		return nil, err
	}
	_, body, err := lp.client.makeRequest(ctx, lp.http.Load(), url, http.MethodGet, nil, nil, types.NONE)
	if err != nil {
		return nil, err
	}
	if lp.logUpdates.Load() {
		lp.log.Info().RawJSON("response", body).Msg("Long poll response")
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid json", ErrMalformedPollResult)
	}
	resp := gjson.ParseBytes(body)
	if failed := resp.Get("failed"); failed.Exists() {
		return lp.handleFailure(types.LongPollFailure{
			Failed:     int(failed.Int()),
			TS:         resp.Get("ts").Int(),
			MinVersion: int(resp.Get("min_version").Int()),
			MaxVersion: int(resp.Get("max_version").Int()),
		}, resp.Get("ts").Exists()), nil
	}
	ts := resp.Get("ts")
	updates := resp.Get("updates")
	if !ts.Exists() || !updates.IsArray() {
		return nil, fmt.Errorf("%w: missing ts or updates", ErrMalformedPollResult)
	}
	lp.lock.Lock()
	lp.settings.TS = ts.Int()
	if pts := resp.Get("pts"); pts.Exists() {
		lp.settings.PTS = pts.Int()
	}
	newTS, newPTS := lp.settings.TS, lp.settings.PTS
	lp.lock.Unlock()

	items := updates.Array()
	if len(items) > 0 && (lp.client.registry.Len() > 0 || lp.client.commands.len() > 0) {
		lp.queue.PutAll(items)
	}
	if lp.cursors != nil {
		if err := lp.cursors.PutCursor(ctx, lp.cursorKey, newTS, newPTS); err != nil {
			lp.log.Warn().Err(err).Msg("Failed to save long poll cursor")
		}
	}
	return nil, nil
}

func (lp *LongPoll) handleFailure(failure types.LongPollFailure, hasTS bool) *reacquireRequest {
	code := LongPollFailedCode(failure.Failed)
	lp.log.Debug().
		Int("failed", failure.Failed).
		Str("reason", code.Error()).
		Msg("Long poll server requested reconnect")
	lp.lock.Lock()
	defer lp.lock.Unlock()
	switch code {
	case LP_FAILED_TS_OUTDATED:
		if hasTS {
			lp.settings.TS = failure.TS
		}
	case LP_FAILED_INVALID_VERSION:
		if failure.MaxVersion > 0 {
			lp.version = failure.MaxVersion
		}
	}
	// Reacquisition resumes from the last known ts.
	return &reacquireRequest{keepTS: true}
}
