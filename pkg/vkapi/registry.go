package vkapi

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"

	"go.mau.fi/util/exsync"
	"golang.org/x/exp/maps"
)

// CallbackRegistry maps event names to handlers. Registering a name twice
// replaces the previous handler.
type CallbackRegistry struct {
	handlers *exsync.Map[EventName, EventHandler]
}

func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{handlers: exsync.NewMap[EventName, EventHandler]()}
}

func (cr *CallbackRegistry) Register(name EventName, handler EventHandler) {
	if handler == nil {
		cr.handlers.Delete(name)
		return
	}
	cr.handlers.Set(name, handler)
}

func (cr *CallbackRegistry) Get(name EventName) (EventHandler, bool) {
	return cr.handlers.Get(name)
}

func (cr *CallbackRegistry) Has(name EventName) bool {
	_, ok := cr.handlers.Get(name)
	return ok
}

func (cr *CallbackRegistry) HasAny(names ...EventName) bool {
	for _, name := range names {
		if cr.Has(name) {
			return true
		}
	}
	return false
}

func (cr *CallbackRegistry) Len() int {
	return cr.handlers.Len()
}

// Names returns the registered event names in sorted order.
func (cr *CallbackRegistry) Names() []EventName {
	names := maps.Keys(cr.handlers.CopyData())
	slices.Sort(names)
	return names
}

// On registers a handler for an event name.
func (c *Client) On(name EventName, handler EventHandler) {
	c.registry.Register(name, handler)
	c.Logger.Debug().Str("event", string(name)).Msg("Registered event handler")
}

// OnMessage registers a handler for one of the message event names.
func (c *Client) OnMessage(name EventName, handler MessageHandler) {
	c.On(name, func(ctx context.Context, evt Event) {
		if msgEvt, ok := evt.(*Event_Message); ok {
			handler(ctx, msgEvt.Message)
		}
	})
}

func (c *Client) runMessageHandler(ctx context.Context, handler MessageHandler, msg *Message) {
	defer func() {
		if p := recover(); p != nil {
			c.Logger.Error().
				Int64("message_id", msg.MessageID).
				Str("panic", fmt.Sprint(p)).
				Bytes("stack", debug.Stack()).
				Msg("Command handler panicked")
		}
	}()
	handler(ctx, msg)
}

// emit invokes the handler registered under evt's name, if any, and reports
// whether one was registered. Handler panics are logged and swallowed; the
// event still counts as handled.
func (c *Client) emit(ctx context.Context, evt Event) (handled bool) {
	handler, ok := c.registry.Get(evt.EventName())
	if !ok {
		return false
	}
	handled = true
	defer func() {
		if p := recover(); p != nil {
			c.Logger.Error().
				Str("event", string(evt.EventName())).
				Str("panic", fmt.Sprint(p)).
				Bytes("stack", debug.Stack()).
				Msg("Event handler panicked")
		}
	}()
	handler(ctx, evt)
	return
}
