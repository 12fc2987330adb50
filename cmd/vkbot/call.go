package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi"
)

var callBatched bool

var callCmd = &cobra.Command{
	Use:   "call <method> [key=value...]",
	Short: "Call an API method and print the response",
	Example: `  vkbot call users.get user_ids=1 fields=photo_100
  vkbot call --batched groups.getById group_id=1`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		params := vkapi.NewValues()
		for _, arg := range args[1:] {
			key, value, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("argument %q is not key=value", arg)
			}
			params.Set(key, value)
		}
		ctx := cmd.Context()
		var resp []byte
		if callBatched {
			client.Start(ctx)
			defer client.Disconnect()
			result, err := client.Execute(ctx, args[0], params)
			if err != nil {
				return err
			}
			resp = []byte(result.Raw)
		} else {
			result, err := client.CallSync(ctx, args[0], params)
			if err != nil {
				return err
			}
			resp = []byte(result.Raw)
		}
		var pretty bytes.Buffer
		if err = json.Indent(&pretty, resp, "", "  "); err != nil {
			pretty.Reset()
			pretty.Write(resp)
		}
		fmt.Fprintln(cmd.OutOrStdout(), color.CyanString(args[0]))
		fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
		return nil
	},
}

func init() {
	callCmd.Flags().BoolVarP(&callBatched, "batched", "b", false, "Send the call through the execute batcher")
}
