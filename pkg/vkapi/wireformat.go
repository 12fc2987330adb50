package vkapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi/types"
)

var ErrMalformedUpdate = errors.New("malformed update")

// Positional event codes of the user long poll.
const (
	CodeNewMessage    = 4
	CodeFriendOnline  = 8
	CodeFriendOffline = 9
	CodeUserTyping    = 62
)

type UpdateKind int

const (
	UpdateOther UpdateKind = iota
	UpdateMessage
	UpdateTyping
	UpdatePresence
)

// DecodedUpdate is a raw update translated into the shapes the dispatcher
// works with. Group is only set for structured updates.
type DecodedUpdate struct {
	Kind     UpdateKind
	Message  *Message
	Typing   *Event_Typing
	Presence *Event_Presence
	Group    *Event_Group
}

// ChatAction is a service action attached to a chat message.
type ChatAction struct {
	Type     types.ChatActionType
	From     int64
	MemberID int64
	Text     string
	OldText  string
	Photo    gjson.Result
}

// WireFormat decodes the updates of one long-poll flavor.
type WireFormat interface {
	Name() string
	Decode(upd RawUpdate) (*DecodedUpdate, error)
	// Markers are the substrings of the attachment blob that identify voice
	// and sticker messages without fetching attachment details.
	Markers() (voice, sticker string)
	// AttachmentTypes lists the attachment types declared inline.
	AttachmentTypes(msg *Message) []string
}

// FormatFor returns the wire format the long poll of the given mode uses.
func FormatFor(mode AuthMode) WireFormat {
	if mode == AuthGroup {
		return objectFormat{}
	}
	return classicFormat{}
}

type classicFormat struct{}

var attachTypeKeyRegex = regexp.MustCompile(`^attach\d+_type$`)

func (classicFormat) Name() string { return "classic" }

func (classicFormat) Markers() (string, string) { return "audiomsg", "sticker" }

func (classicFormat) Decode(upd RawUpdate) (*DecodedUpdate, error) {
	if !upd.IsArray() {
		return nil, fmt.Errorf("%w: expected an array", ErrMalformedUpdate)
	}
	fields := upd.Array()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrMalformedUpdate)
	}
	switch fields[0].Int() {
	case CodeNewMessage:
		msg, err := decodeClassicMessage(fields)
		if err != nil {
			return nil, err
		}
		return &DecodedUpdate{Kind: UpdateMessage, Message: msg}, nil
	case CodeUserTyping:
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: typing event without user", ErrMalformedUpdate)
		}
		return &DecodedUpdate{Kind: UpdateTyping, Typing: &Event_Typing{UserID: fields[1].Int()}}, nil
	case CodeFriendOnline, CodeFriendOffline:
		if len(fields) < 4 {
			return nil, fmt.Errorf("%w: presence event has %d fields", ErrMalformedUpdate, len(fields))
		}
		userID := fields[1].Int()
		if userID < 0 {
			userID = -userID
		}
		return &DecodedUpdate{Kind: UpdatePresence, Presence: &Event_Presence{
			UserID:    userID,
			Timestamp: fields[3].Int(),
			Online:    fields[0].Int() == CodeFriendOnline,
		}}, nil
	default:
		return &DecodedUpdate{Kind: UpdateOther}, nil
	}
}

func decodeClassicMessage(fields []gjson.Result) (*Message, error) {
	if len(fields) < 6 {
		return nil, fmt.Errorf("%w: message event has %d fields", ErrMalformedUpdate, len(fields))
	} else if fields[1].Type != gjson.Number || fields[3].Type != gjson.Number || fields[4].Type != gjson.Number {
		return nil, fmt.Errorf("%w: non-numeric message header", ErrMalformedUpdate)
	}
	msg := &Message{
		MessageID: fields[1].Int(),
		PeerID:    fields[3].Int(),
		Timestamp: fields[4].Int(),
		Text:      fields[5].String(),
		Outgoing:  types.FlagOutbox.In(fields[2].Int()),
	}
	if len(fields) > 6 && fields[6].IsObject() {
		msg.Attachments = json.RawMessage(fields[6].Raw)
		msg.Title = fields[6].Get("title").String()
	}
	if len(fields) > 7 && fields[7].IsObject() {
		msg.extra = fields[7]
	}
	if len(fields) > 8 {
		msg.RandomID = fields[8].Int()
	}
	msg.hasForwards = msg.lookup("fwd").Exists()
	if msg.PeerID > ChatPrefix {
		msg.ChatIDLong = msg.PeerID
		msg.ChatID = msg.PeerID - ChatPrefix
		if from := msg.lookup("from"); from.Exists() {
			msg.PeerID = from.Int()
		}
		if act := msg.lookup("source_act"); act.Exists() {
			msg.action = &ChatAction{
				Type:     types.ChatActionType(act.String()),
				From:     msg.PeerID,
				MemberID: msg.lookup("source_mid").Int(),
				Text:     msg.lookup("source_text").String(),
				OldText:  msg.lookup("source_old_text").String(),
			}
		}
	}
	return msg, nil
}

func (classicFormat) AttachmentTypes(msg *Message) []string {
	var found []string
	collect := func(obj gjson.Result) {
		obj.ForEach(func(key, value gjson.Result) bool {
			if attachTypeKeyRegex.MatchString(key.String()) {
				found = append(found, value.String())
			}
			return true
		})
	}
	collect(gjson.ParseBytes(msg.Attachments))
	collect(msg.extra)
	return found
}

type objectFormat struct{}

func (objectFormat) Name() string { return "object" }

func (objectFormat) Markers() (string, string) {
	return `"type":"audio_message"`, `"type":"sticker"`
}

func (objectFormat) Decode(upd RawUpdate) (*DecodedUpdate, error) {
	if !upd.IsObject() {
		return nil, fmt.Errorf("%w: expected an object", ErrMalformedUpdate)
	}
	typ := upd.Get("type").String()
	if typ == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedUpdate)
	}
	obj := upd.Get("object")
	decoded := &DecodedUpdate{
		Kind: UpdateOther,
		Group: &Event_Group{
			Type:    EventName(typ),
			GroupID: upd.Get("group_id").Int(),
			EventID: upd.Get("event_id").String(),
			Object:  json.RawMessage(obj.Raw),
		},
	}
	switch EventName(typ) {
	case GroupMessageNew:
		raw := obj
		if inner := obj.Get("message"); inner.IsObject() {
			raw = inner
		}
		msg, err := decodeObjectMessage(raw)
		if err != nil {
			return nil, err
		}
		decoded.Kind = UpdateMessage
		decoded.Message = msg
	case GroupMessageTypingState:
		decoded.Kind = UpdateTyping
		decoded.Typing = &Event_Typing{
			UserID: obj.Get("from_id").Int(),
			PeerID: obj.Get("to_id").Int(),
		}
	}
	return decoded, nil
}

func decodeObjectMessage(raw gjson.Result) (*Message, error) {
	peer := raw.Get("peer_id")
	if peer.Type != gjson.Number {
		return nil, fmt.Errorf("%w: message without peer_id", ErrMalformedUpdate)
	}
	msg := &Message{
		MessageID:             raw.Get("id").Int(),
		ConversationMessageID: raw.Get("conversation_message_id").Int(),
		PeerID:                peer.Int(),
		Timestamp:             raw.Get("date").Int(),
		Text:                  raw.Get("text").String(),
		RandomID:              raw.Get("random_id").Int(),
		Outgoing:              raw.Get("out").Int() == 1,
		inline:                raw,
	}
	if msg.MessageID == 0 {
		msg.MessageID = msg.ConversationMessageID
	}
	if attachments := raw.Get("attachments"); attachments.Exists() {
		msg.Attachments = json.RawMessage(attachments.Raw)
	}
	msg.hasForwards = len(raw.Get("fwd_messages").Array()) > 0
	if msg.PeerID > ChatPrefix {
		msg.ChatIDLong = msg.PeerID
		msg.ChatID = msg.PeerID - ChatPrefix
		msg.PeerID = raw.Get("from_id").Int()
		if act := raw.Get("action"); act.IsObject() {
			msg.action = &ChatAction{
				Type:     types.ChatActionType(act.Get("type").String()),
				From:     msg.PeerID,
				MemberID: act.Get("member_id").Int(),
				Text:     act.Get("text").String(),
				Photo:    act.Get("photo"),
			}
		}
	}
	return msg, nil
}

func (objectFormat) AttachmentTypes(msg *Message) []string {
	var found []string
	for _, att := range gjson.ParseBytes(msg.Attachments).Array() {
		if typ := att.Get("type").String(); typ != "" {
			found = append(found, typ)
		}
	}
	return found
}

func containsMarker(msg *Message, marker string) bool {
	return strings.Contains(string(msg.Attachments), marker) || strings.Contains(msg.extra.Raw, marker)
}
