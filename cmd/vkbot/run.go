package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.mau.fi/util/exerrors"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demo bot on the long poll",
	Long: `Run connects to the long poll and answers a few demo commands:
"ping" replies with "pong", "/echo <text>" repeats the text, and new chat
members are greeted. The long poll position is saved to the database if one
is configured, so restarts don't lose updates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := exerrors.Must(newClient())
		container, err := openStore(ctx)
		if err != nil {
			return err
		}
		if container != nil {
			defer container.Close()
			client.LongPoll().SetCursorStore(container.GetCursorQuery(), cursorKey())
		}
		registerDemoHandlers(client)

		if err = client.Connect(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		client.Disconnect()
		return nil
	},
}

func registerDemoHandlers(client *vkapi.Client) {
	client.OnCommand(func(ctx context.Context, msg *vkapi.Message) {
		msg.Reply("pong").Send(nil)
	}, "ping")
	client.OnCommand(func(ctx context.Context, msg *vkapi.Message) {
		_, text, found := strings.Cut(msg.Text, " ")
		if !found || strings.TrimSpace(text) == "" {
			return
		}
		msg.Reply(strings.TrimSpace(text)).ReplyTo(msg.MessageID).Send(nil)
	}, "/echo")
	client.On(vkapi.EventChatJoin, func(ctx context.Context, evt vkapi.Event) {
		join := evt.(*vkapi.Event_ChatJoin)
		client.Chat(join.ChatID).Send("Welcome!").Send(nil)
	})
	client.OnMessage(vkapi.EventEveryMessage, func(ctx context.Context, msg *vkapi.Message) {
		log.Debug().Object("message", msg).Str("text", msg.Text).Msg("Received message")
	})
	client.On(vkapi.EventLongPollReady, func(ctx context.Context, evt vkapi.Event) {
		ready := evt.(*vkapi.Event_LongPollReady)
		log.Info().Str("server", ready.Server).Int64("ts", ready.TS).Msg("Long poll ready")
	})
	client.On(vkapi.EventLongPollError, func(ctx context.Context, evt vkapi.Event) {
		lpErr := evt.(*vkapi.Event_LongPollError)
		if lpErr.Permanent {
			log.Error().Err(lpErr.Err).Int("attempts", lpErr.Attempts).Msg("Long poll gave up")
		}
	})
}
