package vkapi

import (
	"context"

	"github.com/tidwall/gjson"
)

// Chat wraps the chat management methods for one multi-user chat.
type Chat struct {
	client *Client
	ChatID int64
}

// Chat returns a wrapper for the chat. Both chat ids and chat peer ids are
// accepted.
func (c *Client) Chat(id int64) *Chat {
	if id > ChatPrefix {
		id -= ChatPrefix
	}
	return &Chat{client: c, ChatID: id}
}

func (ch *Chat) PeerID() int64 {
	return ch.ChatID + ChatPrefix
}

func (ch *Chat) AddUser(userID int64, callback CallCallback) {
	ch.client.Call("messages.addChatUser", P("chat_id", ch.ChatID, "user_id", userID), callback)
}

func (ch *Chat) KickUser(userID int64, callback CallCallback) {
	ch.client.Call("messages.removeChatUser", P("chat_id", ch.ChatID, "member_id", userID), callback)
}

func (ch *Chat) DeletePhoto(callback CallCallback) {
	ch.client.Call("messages.deleteChatPhoto", P("chat_id", ch.ChatID), callback)
}

func (ch *Chat) EditTitle(title string, callback CallCallback) {
	ch.client.Call("messages.editChat", P("chat_id", ch.ChatID, "title", title), callback)
}

// Users lists the chat members with the given user fields.
func (ch *Chat) Users(ctx context.Context, fields ...string) ([]gjson.Result, error) {
	resp, err := ch.client.Execute(ctx, "messages.getChatUsers", P("chat_id", ch.ChatID, "fields", fields))
	if err != nil {
		return nil, err
	}
	return resp.Array(), nil
}

func (ch *Chat) Info(ctx context.Context) (gjson.Result, error) {
	return ch.client.Execute(ctx, "messages.getChat", P("chat_id", ch.ChatID))
}

// Send starts a message to the chat.
func (ch *Chat) Send(text string) *MessageBuilder {
	return ch.client.NewMessage().To(ch.PeerID()).Text(text)
}
