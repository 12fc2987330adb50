package vkapi

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// EventName is the key handlers are registered under.
type EventName string

const (
	EventMessage             EventName = "message"
	EventChatMessage         EventName = "chat_message"
	EventEveryMessage        EventName = "every_message"
	EventMessageWithForwards EventName = "message_with_forwards"

	EventVoiceMessage      EventName = "voice_message"
	EventStickerMessage    EventName = "sticker_message"
	EventGifMessage        EventName = "gif_message"
	EventAudioMessage      EventName = "audio_message"
	EventVideoMessage      EventName = "video_message"
	EventDocMessage        EventName = "doc_message"
	EventWallMessage       EventName = "wall_message"
	EventPhotoMessage      EventName = "photo_message"
	EventLinkMessage       EventName = "link_message"
	EventSimpleTextMessage EventName = "simple_text_message"

	EventTyping        EventName = "typing"
	EventFriendOnline  EventName = "friend_online"
	EventFriendOffline EventName = "friend_offline"

	EventEveryLongPollEvent EventName = "every_long_poll_event"

	EventChatCreated      EventName = "chat_created"
	EventChatTitleChanged EventName = "chat_title_changed"
	EventChatPhotoChanged EventName = "chat_photo_changed"
	EventChatJoin         EventName = "chat_join"
	EventChatLeave        EventName = "chat_leave"
	EventChatPhotoRemoved EventName = "chat_photo_removed"

	EventLongPollReady EventName = "long_poll_ready"
	EventLongPollError EventName = "long_poll_error"
)

// Community event types, delivered as-is from structured updates.
const (
	GroupMessageNew           EventName = "message_new"
	GroupMessageReply         EventName = "message_reply"
	GroupMessageEdit          EventName = "message_edit"
	GroupMessageAllow         EventName = "message_allow"
	GroupMessageDeny          EventName = "message_deny"
	GroupMessageTypingState   EventName = "message_typing_state"
	GroupPhotoNew             EventName = "photo_new"
	GroupPhotoCommentNew      EventName = "photo_comment_new"
	GroupPhotoCommentEdit     EventName = "photo_comment_edit"
	GroupPhotoCommentRestore  EventName = "photo_comment_restore"
	GroupPhotoCommentDelete   EventName = "photo_comment_delete"
	GroupAudioNew             EventName = "audio_new"
	GroupVideoNew             EventName = "video_new"
	GroupVideoCommentNew      EventName = "video_comment_new"
	GroupVideoCommentEdit     EventName = "video_comment_edit"
	GroupVideoCommentRestore  EventName = "video_comment_restore"
	GroupVideoCommentDelete   EventName = "video_comment_delete"
	GroupWallPostNew          EventName = "wall_post_new"
	GroupWallRepost           EventName = "wall_repost"
	GroupWallReplyNew         EventName = "wall_reply_new"
	GroupWallReplyEdit        EventName = "wall_reply_edit"
	GroupWallReplyRestore     EventName = "wall_reply_restore"
	GroupWallReplyDelete      EventName = "wall_reply_delete"
	GroupBoardPostNew         EventName = "board_post_new"
	GroupBoardPostEdit        EventName = "board_post_edit"
	GroupBoardPostRestore     EventName = "board_post_restore"
	GroupBoardPostDelete      EventName = "board_post_delete"
	GroupMarketCommentNew     EventName = "market_comment_new"
	GroupMarketCommentEdit    EventName = "market_comment_edit"
	GroupMarketCommentRestore EventName = "market_comment_restore"
	GroupMarketCommentDelete  EventName = "market_comment_delete"
	GroupLeave                EventName = "group_leave"
	GroupJoin                 EventName = "group_join"
	GroupPollVoteNew          EventName = "poll_vote_new"
	GroupOfficersEdit         EventName = "group_officers_edit"
	GroupChangeSettings       EventName = "group_change_settings"
	GroupChangePhoto          EventName = "group_change_photo"
)

// Event is implemented by every payload handed to an EventHandler.
type Event interface {
	EventName() EventName
}

type EventHandler func(ctx context.Context, evt Event)

// MessageHandler is the handler shape of commands and OnMessage.
type MessageHandler func(ctx context.Context, msg *Message)

// Event_Message is delivered for every message event name; Name tells
// which of them matched.
type Event_Message struct {
	Name    EventName
	Message *Message
}

type Event_Typing struct {
	UserID int64
	PeerID int64
}

type Event_Presence struct {
	UserID    int64
	Timestamp int64
	Online    bool
}

// Event_LongPoll carries any raw update, before classification.
type Event_LongPoll struct {
	Update RawUpdate
}

type Event_ChatCreated struct {
	Title  string
	From   int64
	ChatID int64
}

type Event_ChatTitleChanged struct {
	OldTitle string
	NewTitle string
	From     int64
	ChatID   int64
}

type Event_ChatPhotoChanged struct {
	Photo  gjson.Result
	From   int64
	ChatID int64
}

type Event_ChatJoin struct {
	From   int64
	User   int64
	ChatID int64
}

type Event_ChatLeave struct {
	From   int64
	User   int64
	ChatID int64
}

type Event_ChatPhotoRemoved struct {
	From   int64
	ChatID int64
}

// Event_Group is a structured update passed through unmodified.
type Event_Group struct {
	Type    EventName
	GroupID int64
	EventID string
	Object  json.RawMessage
}

type Event_LongPollReady struct {
	Server string
	TS     int64
}

type Event_LongPollError struct {
	Err       error
	Attempts  int
	Permanent bool
}

func (evt *Event_Message) EventName() EventName { return evt.Name }
func (*Event_Typing) EventName() EventName { return EventTyping }
func (*Event_LongPoll) EventName() EventName { return EventEveryLongPollEvent }
func (*Event_ChatCreated) EventName() EventName { return EventChatCreated }
func (*Event_ChatTitleChanged) EventName() EventName { return EventChatTitleChanged }
func (*Event_ChatPhotoChanged) EventName() EventName { return EventChatPhotoChanged }
func (*Event_ChatJoin) EventName() EventName { return EventChatJoin }
func (*Event_ChatLeave) EventName() EventName { return EventChatLeave }
func (*Event_ChatPhotoRemoved) EventName() EventName { return EventChatPhotoRemoved }
func (evt *Event_Group) EventName() EventName { return evt.Type }
func (*Event_LongPollReady) EventName() EventName { return EventLongPollReady }
func (*Event_LongPollError) EventName() EventName { return EventLongPollError }

func (evt *Event_Presence) EventName() EventName {
	if evt.Online {
		return EventFriendOnline
	}
	return EventFriendOffline
}

// Unmarshal decodes the raw object of a community event.
func (evt *Event_Group) Unmarshal(into any) error {
	return json.Unmarshal(evt.Object, into)
}
