package main

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		bold := color.New(color.Bold).SprintFunc()
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", bold("vkbot"), Version, Tag)
		fmt.Fprintf(cmd.OutOrStdout(), "commit:  %s\n", Commit)
		fmt.Fprintf(cmd.OutOrStdout(), "built:   %s\n", BuildTime)
		fmt.Fprintf(cmd.OutOrStdout(), "go:      %s\n", runtime.Version())
	},
}
