package vkapi

import (
	"context"
	"fmt"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi/types"
)

// MessageType is the single category a message is dispatched under. The
// constants are ordered by dispatch priority.
type MessageType int

const (
	MessageTypeVoice MessageType = iota
	MessageTypeSticker
	MessageTypeGif
	MessageTypeAudio
	MessageTypeVideo
	MessageTypeDoc
	MessageTypeWall
	MessageTypePhoto
	MessageTypeLink
	MessageTypeSimpleText
)

var messageTypeEvents = map[MessageType]EventName{
	MessageTypeVoice:      EventVoiceMessage,
	MessageTypeSticker:    EventStickerMessage,
	MessageTypeGif:        EventGifMessage,
	MessageTypeAudio:      EventAudioMessage,
	MessageTypeVideo:      EventVideoMessage,
	MessageTypeDoc:        EventDocMessage,
	MessageTypeWall:       EventWallMessage,
	MessageTypePhoto:      EventPhotoMessage,
	MessageTypeLink:       EventLinkMessage,
	MessageTypeSimpleText: EventSimpleTextMessage,
}

func (mt MessageType) EventName() EventName {
	return messageTypeEvents[mt]
}

func (mt MessageType) String() string {
	if name, ok := messageTypeEvents[mt]; ok {
		return string(name)
	}
	return fmt.Sprintf("MessageType(%d)", int(mt))
}

var attachmentPriority = []struct {
	attachment types.AttachmentType
	msgType    MessageType
}{
	{types.AttachmentAudio, MessageTypeAudio},
	{types.AttachmentVideo, MessageTypeVideo},
	{types.AttachmentDoc, MessageTypeDoc},
	{types.AttachmentWall, MessageTypeWall},
	{types.AttachmentPhoto, MessageTypePhoto},
	{types.AttachmentLink, MessageTypeLink},
}

// Type classifies the message. The result is computed once; it may cost one
// messages.getById call for positional updates with attachments.
func (m *Message) Type(ctx context.Context) MessageType {
	m.typeOnce.Do(func() {
		m.msgType = m.classify(ctx)
	})
	return m.msgType
}

func (m *Message) classify(ctx context.Context) MessageType {
	format := m.format
	if format == nil {
		format = classicFormat{}
	}
	voice, sticker := format.Markers()
	if containsMarker(m, voice) {
		return MessageTypeVoice
	} else if containsMarker(m, sticker) {
		return MessageTypeSticker
	}
	declared := format.AttachmentTypes(m)
	if len(declared) == 0 {
		return MessageTypeSimpleText
	}
	counts := make(map[types.AttachmentType]int)
	attachments, err := m.FullAttachments(ctx)
	if err != nil {
		if m.client != nil {
			m.client.Logger.Warn().Err(err).
				Int64("message_id", m.MessageID).
				Msg("Failed to fetch attachments, classifying from inline types")
		}
		for _, typ := range declared {
			counts[types.AttachmentType(typ)]++
		}
	} else {
		for _, att := range attachments {
			typ := types.AttachmentType(att.Get("type").String())
			if typ == types.AttachmentDoc && att.Get("doc.type").Int() == types.DocKindGIF {
				return MessageTypeGif
			}
			counts[typ]++
		}
	}
	for _, entry := range attachmentPriority {
		if counts[entry.attachment] > 0 {
			return entry.msgType
		}
	}
	// Polls, gifts, market items and other kinds count as plain text.
	return MessageTypeSimpleText
}
