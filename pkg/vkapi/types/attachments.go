package types

type AttachmentType string

const (
	AttachmentPhoto        AttachmentType = "photo"
	AttachmentVideo        AttachmentType = "video"
	AttachmentAudio        AttachmentType = "audio"
	AttachmentDoc          AttachmentType = "doc"
	AttachmentWall         AttachmentType = "wall"
	AttachmentLink         AttachmentType = "link"
	AttachmentSticker      AttachmentType = "sticker"
	AttachmentAudioMessage AttachmentType = "audio_message"
	AttachmentGift         AttachmentType = "gift"
	AttachmentMarket       AttachmentType = "market"
	AttachmentPoll         AttachmentType = "poll"
)

// DocType is the "type" value passed to docs.getMessagesUploadServer and
// echoed back on uploaded documents.
type DocType string

const (
	DocTypeDoc          DocType = "doc"
	DocTypeAudioMessage DocType = "audio_message"
	DocTypeGraffiti     DocType = "graffiti"
)

// DocKindGIF is the numeric doc.type of animated gifs.
const DocKindGIF = 3

type ChatActionType string

const (
	ChatActionCreate      ChatActionType = "chat_create"
	ChatActionTitleUpdate ChatActionType = "chat_title_update"
	ChatActionPhotoUpdate ChatActionType = "chat_photo_update"
	ChatActionInviteUser  ChatActionType = "chat_invite_user"
	ChatActionKickUser    ChatActionType = "chat_kick_user"
	ChatActionPhotoRemove ChatActionType = "chat_photo_remove"
)

// MessageFlag is a bit of the flags field in classic long-poll message events.
type MessageFlag int64

const (
	FlagUnread  MessageFlag = 1
	FlagOutbox  MessageFlag = 2
	FlagReplied MessageFlag = 4
)

func (f MessageFlag) In(flags int64) bool {
	return flags&int64(f) != 0
}
