package vkapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestMessage_DetailsFetchedOnce(t *testing.T) {
	api := newFakeAPI(t)
	api.respond("messages.getById", `{"response":{"count":1,"items":[{
		"id":10,
		"reply_message":{"id":9,"text":"original"},
		"fwd_messages":[{"id":1},{"id":2}],
		"attachments":[{"type":"photo","photo":{"sizes":[{"type":"s","url":"small"},{"type":"x","url":"big"}]}}]
	}]}}`)
	client := newTestClient(t, api, AuthUser)
	msg := decodeForClient(t, client, `[4,10,0,42,1,"",{"attach1_type":"photo","reply":"{}","fwd":"1,2"}]`)
	ctx := context.Background()

	reply, ok, err := msg.ReplyMessage(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "original", reply.Get("text").String())

	forwards, err := msg.ForwardedMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, forwards, 2)

	photos, err := msg.Photos(ctx)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, "big", BiggestPhotoURL(photos[0]))

	assert.Len(t, api.callsTo("messages.getById"), 1)
	assert.Equal(t, "10", api.callsTo("messages.getById")[0].Form.Get("message_ids"))
}

func TestMessage_DetailsNotFound(t *testing.T) {
	api := newFakeAPI(t)
	api.respond("messages.getById", `{"response":{"count":0,"items":[]}}`)
	client := newTestClient(t, api, AuthUser)
	msg := decodeForClient(t, client, `[4,10,0,42,1,"",{}]`)

	_, err := msg.Details(context.Background())
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestBiggestPhotoURL(t *testing.T) {
	withSizes := gjson.Parse(`{"sizes":[
		{"type":"m","url":"m","width":130,"height":100},
		{"type":"z","url":"z","width":1080,"height":720},
		{"type":"y","url":"y","width":807,"height":600}
	]}`)
	assert.Equal(t, "z", BiggestPhotoURL(withSizes))

	legacy := gjson.Parse(`{"photo_130":"p130","photo_604":"p604"}`)
	assert.Equal(t, "p604", BiggestPhotoURL(legacy))

	assert.Equal(t, "", BiggestPhotoURL(gjson.Parse(`{}`)))
}

func TestMessage_Reply(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api, AuthUser)
	msg := decodeForClient(t, client, `[4,100,0,2000000055,1690000000,"hi",{"from":"12345"}]`)

	values, err := msg.Reply("hello").ReplyTo(msg.MessageID).Params()
	require.NoError(t, err)
	peerID, _ := values.Get("peer_id")
	replyTo, _ := values.Get("reply_to")
	assert.Equal(t, "2000000055", peerID)
	assert.Equal(t, "100", replyTo)
}
