package vkapi

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.mau.fi/util/ptr"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi/methods"
)

// MaxAttachments is the number of attachments messages.send accepts.
const MaxAttachments = 10

var (
	ErrNoRecipient  = errors.New("message has no recipient")
	ErrEmptyMessage = errors.New("message has no text, attachments, forwards or sticker")
)

// MessageBuilder assembles one messages.send call.
type MessageBuilder struct {
	client *Client

	peerID      int64
	text        string
	title       string
	stickerID   int64
	randomID    int64
	replyTo     *int64
	attachments []string
	forwards    []string
	keyboard    *Keyboard
}

func (c *Client) NewMessage() *MessageBuilder {
	return &MessageBuilder{client: c}
}

// From rebinds the builder to another client.
func (mb *MessageBuilder) From(c *Client) *MessageBuilder {
	mb.client = c
	return mb
}

func (mb *MessageBuilder) To(peerID int64) *MessageBuilder {
	mb.peerID = peerID
	return mb
}

func (mb *MessageBuilder) Text(text string) *MessageBuilder {
	mb.text = text
	return mb
}

func (mb *MessageBuilder) Title(title string) *MessageBuilder {
	mb.title = title
	return mb
}

func (mb *MessageBuilder) Sticker(id int64) *MessageBuilder {
	mb.stickerID = id
	return mb
}

func (mb *MessageBuilder) RandomID(id int64) *MessageBuilder {
	mb.randomID = id
	return mb
}

func (mb *MessageBuilder) ReplyTo(messageID int64) *MessageBuilder {
	mb.replyTo = ptr.Ptr(messageID)
	return mb
}

func (mb *MessageBuilder) Keyboard(kb *Keyboard) *MessageBuilder {
	mb.keyboard = kb
	return mb
}

// ForwardedMessages adds message ids to forward.
func (mb *MessageBuilder) ForwardedMessages(ids ...int64) *MessageBuilder {
	for _, id := range ids {
		mb.forwards = append(mb.forwards, strconv.FormatInt(id, 10))
	}
	return mb
}

// Attachments adds attachment strings like "photo1_2". Duplicates and
// anything past MaxAttachments are ignored.
func (mb *MessageBuilder) Attachments(attachments ...string) *MessageBuilder {
	for _, att := range attachments {
		for _, part := range strings.Split(att, ",") {
			part = strings.TrimSpace(part)
			if part == "" || len(mb.attachments) >= MaxAttachments {
				continue
			}
			duplicate := false
			for _, existing := range mb.attachments {
				if existing == part {
					duplicate = true
					break
				}
			}
			if !duplicate {
				mb.attachments = append(mb.attachments, part)
			}
		}
	}
	return mb
}

// Params renders the messages.send parameters. A random_id is generated if
// none was set.
func (mb *MessageBuilder) Params() (*Values, error) {
	if mb.peerID == 0 {
		return nil, ErrNoRecipient
	} else if mb.text == "" && len(mb.attachments) == 0 && len(mb.forwards) == 0 && mb.stickerID == 0 {
		return nil, ErrEmptyMessage
	}
	if mb.randomID == 0 {
		mb.randomID = methods.GenerateRandomID()
	}
	values := NewValues().SetAny("peer_id", mb.peerID).SetAny("random_id", mb.randomID)
	if mb.text != "" {
		values.Set("message", mb.text)
	}
	if mb.title != "" {
		values.Set("title", mb.title)
	}
	if len(mb.attachments) > 0 {
		values.Set("attachment", strings.Join(mb.attachments, ","))
	}
	if len(mb.forwards) > 0 {
		values.Set("forward_messages", strings.Join(mb.forwards, ","))
	}
	if mb.stickerID > 0 {
		values.SetAny("sticker_id", mb.stickerID)
	}
	if mb.replyTo != nil {
		values.SetAny("reply_to", *mb.replyTo)
	}
	if mb.keyboard != nil {
		values.Set("keyboard", mb.keyboard.String())
	}
	return values, nil
}

// Send queues the message on the executor. The callback receives the id of
// the sent message.
func (mb *MessageBuilder) Send(callback CallCallback) {
	values, err := mb.Params()
	if err != nil {
		if callback != nil {
			callback(gjson.Result{}, err)
		}
		return
	}
	mb.client.Call("messages.send", values, func(response gjson.Result, err error) {
		if err != nil {
			mb.client.Logger.Err(err).Int64("peer_id", mb.peerID).Msg("Message not sent")
		}
		if callback != nil {
			callback(response, err)
		}
	})
}

// SendSync sends the message immediately and returns its id.
func (mb *MessageBuilder) SendSync(ctx context.Context) (int64, error) {
	values, err := mb.Params()
	if err != nil {
		return 0, err
	}
	resp, err := mb.client.CallSync(ctx, "messages.send", values)
	if err != nil {
		return 0, err
	}
	return resp.Int(), nil
}
