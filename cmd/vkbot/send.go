package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	sendPeer        int64
	sendAttachments []string
	sendReplyTo     int64
)

var sendCmd = &cobra.Command{
	Use:   "send <text...>",
	Short: "Send a message",
	Example: `  vkbot send --peer 2000000001 hello everyone
  vkbot send --peer 1 --attach photo1_456239017 look at this`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		builder := client.NewMessage().
			To(sendPeer).
			Text(strings.Join(args, " ")).
			Attachments(sendAttachments...)
		if sendReplyTo != 0 {
			builder.ReplyTo(sendReplyTo)
		}
		messageID, err := builder.SendSync(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s message %d to %d\n", color.GreenString("sent"), messageID, sendPeer)
		return nil
	},
}

func init() {
	sendCmd.Flags().Int64VarP(&sendPeer, "peer", "p", 0, "Peer id to send to")
	sendCmd.Flags().StringSliceVarP(&sendAttachments, "attach", "a", nil, "Attachments like photo1_2")
	sendCmd.Flags().Int64Var(&sendReplyTo, "reply-to", 0, "Id of the message to reply to")
	_ = sendCmd.MarkFlagRequired("peer")
}
