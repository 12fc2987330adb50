package vkapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi/types"
)

// ChatPrefix is added to a chat's id to form its peer id.
const ChatPrefix = 2000000000

var ErrMessageNotFound = errors.New("message not found")

// Message is an incoming message decoded from a long-poll update. For chat
// messages PeerID is the author and ChatIDLong is the chat's peer id.
type Message struct {
	client *Client
	format WireFormat

	MessageID             int64
	ConversationMessageID int64
	PeerID                int64
	ChatID                int64
	ChatIDLong            int64
	Timestamp             int64
	Text                  string
	Title                 string
	RandomID              int64
	Outgoing              bool
	// Attachments is the attachment blob as received: the extra-fields
	// object of positional updates or the attachments array of structured ones.
	Attachments json.RawMessage

	extra       gjson.Result
	inline      gjson.Result
	action      *ChatAction
	hasForwards bool

	detailsOnce sync.Once
	details     gjson.Result
	detailsErr  error

	typeOnce sync.Once
	msgType  MessageType
}

func (m *Message) IsFromChat() bool {
	return m.ChatID > 0
}

func (m *Message) HasForwards() bool {
	return m.hasForwards
}

// ChatAction returns the service action of a chat message, or nil.
func (m *Message) ChatAction() *ChatAction {
	return m.action
}

// ReplyPeerID is the peer a reply to this message should be sent to.
func (m *Message) ReplyPeerID() int64 {
	if m.IsFromChat() {
		return m.ChatIDLong
	}
	return m.PeerID
}

// lookup reads a key of the positional extra fields, checking the attachment
// object first.
func (m *Message) lookup(key string) gjson.Result {
	if res := gjson.GetBytes(m.Attachments, key); res.Exists() {
		return res
	}
	return m.extra.Get(key)
}

// Details returns the full message object. Structured updates carry it
// inline; otherwise it is fetched with messages.getById once per message.
func (m *Message) Details(ctx context.Context) (gjson.Result, error) {
	if m.inline.Exists() {
		return m.inline, nil
	}
	m.detailsOnce.Do(func() {
		if m.client == nil {
			m.detailsErr = ErrClientIsNil
			return
		}
		resp, err := m.client.CallSync(ctx, "messages.getById", P("message_ids", m.MessageID))
		if err != nil {
			m.detailsErr = fmt.Errorf("failed to fetch message %d: %w", m.MessageID, err)
			return
		}
		item := resp.Get("items.0")
		if !item.Exists() {
			m.detailsErr = fmt.Errorf("%w: %d", ErrMessageNotFound, m.MessageID)
			return
		}
		m.details = item
	})
	return m.details, m.detailsErr
}

// FullAttachments returns the attachment objects with all their metadata.
func (m *Message) FullAttachments(ctx context.Context) ([]gjson.Result, error) {
	details, err := m.Details(ctx)
	if err != nil {
		return nil, err
	}
	return details.Get("attachments").Array(), nil
}

func (m *Message) ForwardedMessages(ctx context.Context) ([]gjson.Result, error) {
	details, err := m.Details(ctx)
	if err != nil {
		return nil, err
	}
	return details.Get("fwd_messages").Array(), nil
}

// ReplyMessage returns the message this one replies to, if any.
func (m *Message) ReplyMessage(ctx context.Context) (gjson.Result, bool, error) {
	details, err := m.Details(ctx)
	if err != nil {
		return gjson.Result{}, false, err
	}
	reply := details.Get("reply_message")
	return reply, reply.Exists(), nil
}

// Photos returns the photo objects among the attachments.
func (m *Message) Photos(ctx context.Context) ([]gjson.Result, error) {
	attachments, err := m.FullAttachments(ctx)
	if err != nil {
		return nil, err
	}
	var photos []gjson.Result
	for _, att := range attachments {
		if types.AttachmentType(att.Get("type").String()) == types.AttachmentPhoto {
			photos = append(photos, att.Get("photo"))
		}
	}
	return photos, nil
}

var photoSizeOrder = []string{"s", "m", "x", "o", "p", "q", "r", "y", "z", "w"}

// BiggestPhotoURL picks the largest size of a photo object.
func BiggestPhotoURL(photo gjson.Result) string {
	var bestURL string
	var bestArea int64 = -1
	for _, size := range photo.Get("sizes").Array() {
		area := size.Get("width").Int() * size.Get("height").Int()
		if area == 0 {
			for i, typ := range photoSizeOrder {
				if size.Get("type").String() == typ {
					area = int64(i + 1)
				}
			}
		}
		if area > bestArea {
			bestArea = area
			bestURL = size.Get("url").String()
		}
	}
	if bestURL != "" {
		return bestURL
	}
	for _, key := range []string{"photo_2560", "photo_1280", "photo_807", "photo_604", "photo_130", "photo_75"} {
		if url := photo.Get(key).String(); url != "" {
			return url
		}
	}
	return ""
}

// VoiceMessageURL returns the ogg link of the first voice attachment.
func (m *Message) VoiceMessageURL(ctx context.Context) (string, error) {
	attachments, err := m.FullAttachments(ctx)
	if err != nil {
		return "", err
	}
	for _, att := range attachments {
		switch types.AttachmentType(att.Get("type").String()) {
		case types.AttachmentAudioMessage:
			return att.Get("audio_message.link_ogg").String(), nil
		case types.AttachmentDoc:
			if link := att.Get("doc.preview.audio_msg.link_ogg"); link.Exists() {
				return link.String(), nil
			}
		}
	}
	return "", nil
}

// Reply starts a message to the peer this message came from.
func (m *Message) Reply(text string) *MessageBuilder {
	return m.client.NewMessage().To(m.ReplyPeerID()).Text(text)
}

func (m *Message) MarshalZerologObject(e *zerolog.Event) {
	e.Int64("message_id", m.MessageID)
	e.Int64("peer_id", m.PeerID)
	if m.IsFromChat() {
		e.Int64("chat_id", m.ChatID)
	}
	e.Int64("timestamp", m.Timestamp)
}
