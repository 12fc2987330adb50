package vkapi

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi/types"
)

var cascadeEvents = []EventName{
	EventVoiceMessage,
	EventStickerMessage,
	EventGifMessage,
	EventAudioMessage,
	EventVideoMessage,
	EventDocMessage,
	EventWallMessage,
	EventPhotoMessage,
	EventLinkMessage,
	EventSimpleTextMessage,
}

// Dispatcher pops updates from the queue, decodes them and routes them to
// the registered handlers.
type Dispatcher struct {
	client *Client
	format WireFormat
	queue  *UpdateQueue

	inflight sync.WaitGroup
}

func newDispatcher(c *Client, format WireFormat, queue *UpdateQueue) *Dispatcher {
	return &Dispatcher{client: c, format: format, queue: queue}
}

func (d *Dispatcher) Format() WireFormat {
	return d.format
}

// tick handles at most one queued update.
func (d *Dispatcher) tick(ctx context.Context) {
	upd, ok := d.queue.Shift()
	if !ok {
		return
	}
	if err := d.handleUpdate(ctx, upd); err != nil {
		d.client.Logger.Warn().Err(err).
			Str("update", upd.Raw).
			Msg("Dropping update that couldn't be decoded")
	}
}

// Wait blocks until every message pipeline started so far has returned.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) handleUpdate(ctx context.Context, upd RawUpdate) error {
	decoded, err := d.format.Decode(upd)
	if err != nil {
		return err
	}
	if decoded.Group != nil {
		d.client.emit(ctx, decoded.Group)
	}
	switch decoded.Kind {
	case UpdateMessage:
		msg := decoded.Message
		msg.client = d.client
		msg.format = d.format
		if !msg.Outgoing {
			d.inflight.Add(1)
			go func() {
				defer d.inflight.Done()
				d.handleMessage(ctx, msg)
			}()
		}
	case UpdateTyping:
		d.client.emit(ctx, decoded.Typing)
	case UpdatePresence:
		d.client.emit(ctx, decoded.Presence)
	}
	d.client.emit(ctx, &Event_LongPoll{Update: upd})
	return nil
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *Message) {
	log := d.client.Logger.With().Object("message", msg).Logger()
	ctx = log.WithContext(ctx)
	defer func() {
		if p := recover(); p != nil {
			log.Error().
				Str("panic", fmt.Sprint(p)).
				Bytes("stack", debug.Stack()).
				Msg("Message pipeline panicked")
		}
	}()

	if msg.IsFromChat() {
		d.handleChatAction(ctx, msg)
	}

	handled := false
	for _, cmd := range d.client.commands.match(msg.Text) {
		log.Debug().Strs("triggers", cmd.Triggers).Msg("Command matched")
		d.client.runMessageHandler(ctx, cmd.Handler, msg)
		handled = true
	}
	if msg.HasForwards() && d.emitMessage(ctx, EventMessageWithForwards, msg) {
		handled = true
	}
	if !handled && d.client.registry.HasAny(cascadeEvents...) {
		if d.emitMessage(ctx, msg.Type(ctx).EventName(), msg) {
			handled = true
		}
	}
	typing := handled
	if !handled {
		if d.emitMessage(ctx, EventMessage, msg) {
			typing = true
		}
		if msg.IsFromChat() && d.emitMessage(ctx, EventChatMessage, msg) {
			typing = true
		}
	}
	if typing {
		d.client.simulateTyping(msg)
	}
	d.emitMessage(ctx, EventEveryMessage, msg)
}

func (d *Dispatcher) emitMessage(ctx context.Context, name EventName, msg *Message) bool {
	return d.client.emit(ctx, &Event_Message{Name: name, Message: msg})
}

func (d *Dispatcher) handleChatAction(ctx context.Context, msg *Message) {
	action := msg.ChatAction()
	if action == nil {
		return
	}
	switch action.Type {
	case types.ChatActionCreate:
		d.client.emit(ctx, &Event_ChatCreated{Title: action.Text, From: action.From, ChatID: msg.ChatID})
	case types.ChatActionTitleUpdate:
		d.client.emit(ctx, &Event_ChatTitleChanged{
			OldTitle: action.OldText,
			NewTitle: action.Text,
			From:     action.From,
			ChatID:   msg.ChatID,
		})
	case types.ChatActionPhotoUpdate:
		if !d.client.registry.Has(EventChatPhotoChanged) {
			return
		}
		photo := action.Photo
		if !photo.Exists() {
			details, err := msg.Details(ctx)
			if err != nil {
				d.client.Logger.Warn().Err(err).Msg("Failed to fetch new chat photo")
			}
			photo = details.Get("attachments.0.photo")
		}
		d.client.emit(ctx, &Event_ChatPhotoChanged{Photo: photo, From: action.From, ChatID: msg.ChatID})
	case types.ChatActionInviteUser:
		d.client.emit(ctx, &Event_ChatJoin{From: action.From, User: action.MemberID, ChatID: msg.ChatID})
	case types.ChatActionKickUser:
		d.client.emit(ctx, &Event_ChatLeave{From: action.From, User: action.MemberID, ChatID: msg.ChatID})
	case types.ChatActionPhotoRemove:
		d.client.emit(ctx, &Event_ChatPhotoRemoved{From: action.From, ChatID: msg.ChatID})
	}
}
