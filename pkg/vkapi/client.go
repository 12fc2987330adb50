package vkapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exhttp"
	"go.mau.fi/util/exsync"
	"golang.org/x/time/rate"
)

var (
	ErrMissingToken   = errors.New("access token is required")
	ErrMissingGroupID = errors.New("group id is required for group tokens")
)

type Client struct {
	Logger zerolog.Logger
	// GetNewProxy is called to rotate the proxy after transport failures.
	GetNewProxy func(reason string) (string, error)

	config  Config
	http    atomic.Pointer[http.Client]
	limiter *rate.Limiter

	httpLock     sync.Mutex
	httpSettings exhttp.ClientSettings
	proxyAddr    string

	scheduler  *Scheduler
	executor   *Executor
	queue      *UpdateQueue
	registry   *CallbackRegistry
	commands   commandList
	dispatcher *Dispatcher
	longPoll   atomic.Pointer[LongPoll]
	typing     atomic.Bool

	stopCurrentConnections atomic.Pointer[context.CancelFunc]
	connectionCtx          atomic.Pointer[context.Context]
	connectionLoopStopped  *exsync.Event
}

// NewClient creates a client. Nothing runs until Start or Connect is called;
// calls queued with Call before that wait for the executor to start.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, ErrMissingToken
	} else if cfg.Mode == AuthGroup && cfg.GroupID == 0 {
		return nil, ErrMissingGroupID
	}
	cfg = cfg.withDefaults()
	cli := &Client{
		Logger:                logger.With().Str("auth_mode", cfg.Mode.String()).Logger(),
		config:                cfg,
		limiter:               rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		registry:              NewCallbackRegistry(),
		connectionLoopStopped: exsync.NewEvent(),
	}
	cli.connectionLoopStopped.Set()
	settings := cfg.ClientSettings
	if settings.Dial == nil && settings.TransportOverride == nil {
		settings = exhttp.SensibleClientSettings
	}
	cli.SetHTTP(settings)

	cli.queue = NewUpdateQueue(cli.Logger.With().Str("component", "update_queue").Logger(), cfg.MaxQueuedUpdates)
	cli.executor = newExecutor(cli)
	cli.dispatcher = newDispatcher(cli, FormatFor(cfg.Mode), cli.queue)
	cli.scheduler = NewScheduler(cli.Logger.With().Str("component", "scheduler").Logger())
	cli.scheduler.ScheduleWithFixedDelay("execute", cfg.ExecuteInterval, cli.executor.drain)
	cli.scheduler.ScheduleWithFixedDelay("dispatch", cfg.DispatchInterval, cli.dispatcher.tick)
	cli.longPoll.Store(cli.NewLongPoll(cfg.LongPoll))
	return cli, nil
}

func (c *Client) GetLogger() *zerolog.Logger {
	return &c.Logger
}

func (c *Client) Config() Config {
	return c.config
}

func (c *Client) Queue() *UpdateQueue {
	return c.queue
}

func (c *Client) Executor() *Executor {
	return c.executor
}

func (c *Client) Dispatcher() *Dispatcher {
	return c.dispatcher
}

func (c *Client) Registry() *CallbackRegistry {
	return c.registry
}

func (c *Client) LongPoll() *LongPoll {
	return c.longPoll.Load()
}

// SetLongPoll replaces the long poll used by Connect. The previous one is
// turned off. If it was running, lp is started in its place right away.
func (c *Client) SetLongPoll(lp *LongPoll) error {
	old := c.longPoll.Swap(lp)
	if old == nil || old == lp {
		return nil
	}
	wasOn := old.IsOn()
	old.Off()
	cancel, ctx := c.stopCurrentConnections.Load(), c.connectionCtx.Load()
	if !wasOn || cancel == nil || ctx == nil || (*ctx).Err() != nil {
		return nil
	}
	return c.startLongPoll(*ctx, lp, cancel)
}

// EnableTyping makes the client send a typing activity to the author of
// every handled message.
func (c *Client) EnableTyping(enable bool) {
	c.typing.Store(enable)
}

func (c *Client) simulateTyping(msg *Message) {
	if !c.typing.Load() {
		return
	}
	c.Call("messages.setActivity", P("type", "typing", "peer_id", msg.ReplyPeerID()), nil)
}

func (c *Client) getHTTPSettings() exhttp.ClientSettings {
	c.httpLock.Lock()
	defer c.httpLock.Unlock()
	return c.httpSettings
}

func (c *Client) SetProxy(proxyAddr string) error {
	if c == nil {
		return ErrClientIsNil
	}
	proxyParsed, err := url.Parse(proxyAddr)
	if err != nil {
		return err
	}
	c.httpLock.Lock()
	if _, err = c.httpSettings.WithProxy(proxyAddr); err != nil {
		c.httpLock.Unlock()
		return err
	}
	c.proxyAddr = proxyAddr
	c.setHTTPLocked(c.httpSettings)
	c.httpLock.Unlock()

	c.Logger.Debug().
		Str("scheme", proxyParsed.Scheme).
		Str("host", proxyParsed.Host).
		Msg("Using proxy")
	return nil
}

// SetHTTP replaces the HTTP clients of the API calls and the long poll.
// It may be called while requests are in flight.
func (c *Client) SetHTTP(settings exhttp.ClientSettings) {
	if c == nil {
		return
	}
	c.httpLock.Lock()
	defer c.httpLock.Unlock()
	c.setHTTPLocked(settings)
}

func (c *Client) setHTTPLocked(settings exhttp.ClientSettings) {
	c.httpSettings = settings.WithGlobalTimeout(60 * time.Second)
	if c.proxyAddr != "" {
		c.httpSettings, _ = c.httpSettings.WithProxy(c.proxyAddr)
	}
	if oldHTTP := c.http.Swap(c.httpSettings.Compile()); oldHTTP != nil {
		oldHTTP.CloseIdleConnections()
	}
	if lp := c.longPoll.Load(); lp != nil {
		lp.setHTTP(c.httpSettings)
	}
}

func (c *Client) UpdateProxy(reason string) bool {
	if c == nil || c.GetNewProxy == nil {
		return true
	}
	if proxyAddr, err := c.GetNewProxy(reason); err != nil {
		c.Logger.Err(err).Str("reason", reason).Msg("Failed to get new proxy")
		return false
	} else if err = c.SetProxy(proxyAddr); err != nil {
		c.Logger.Err(err).Str("reason", reason).Msg("Failed to set new proxy")
		return false
	}
	return true
}

// Start runs the executor and the dispatcher without polling for updates.
// Updates can still be fed in through the queue, e.g. by a CallbackServer.
func (c *Client) Start(ctx context.Context) {
	c.scheduler.Start(ctx)
}

// Connect starts the scheduler and the long poll. It returns immediately;
// use Disconnect to stop.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return ErrClientIsNil
	}
	ctx, cancel := context.WithCancel(ctx)
	oldCancel := c.stopCurrentConnections.Swap(&cancel)
	if oldCancel != nil {
		(*oldCancel)()
		c.scheduler.Stop()
		if !c.connectionLoopStopped.WaitTimeout(5 * time.Second) {
			c.Logger.Warn().Msg("Previous long poll didn't stop in time")
		}
	}
	c.connectionCtx.Store(&ctx)
	c.scheduler.Start(ctx)
	if err := c.startLongPoll(ctx, c.longPoll.Load(), &cancel); err != nil {
		return err
	}
	c.Logger.Info().Str("wire_format", c.dispatcher.Format().Name()).Msg("Connected")
	return nil
}

func (c *Client) startLongPoll(ctx context.Context, lp *LongPoll, cancel *context.CancelFunc) error {
	if err := lp.Start(ctx); err != nil {
		return err
	}
	c.connectionLoopStopped.Clear()
	go func() {
		_ = lp.Wait(context.Background())
		if c.stopCurrentConnections.Load() == cancel && c.longPoll.Load() == lp {
			c.connectionLoopStopped.Set()
		}
	}()
	return nil
}

// Disconnect turns the long poll off, cancels in-flight requests and stops
// the scheduler. Queued calls that were not sent yet stay queued.
func (c *Client) Disconnect() {
	if c == nil {
		return
	}
	if lp := c.longPoll.Load(); lp != nil {
		lp.Off()
	}
	if fn := c.stopCurrentConnections.Load(); fn != nil {
		(*fn)()
	}
	if !c.connectionLoopStopped.WaitTimeout(5 * time.Second) {
		c.Logger.Warn().Msg("Long poll didn't stop in time")
	}
	c.scheduler.Stop()
}

func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	lp := c.longPoll.Load()
	return lp != nil && lp.State() == LongPollPolling
}
