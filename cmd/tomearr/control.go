package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a downloading item",
	Args:  cobra.ExactArgs(1),
	RunE:  controlRunner("pause"),
}

var resumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume a paused item",
	Args:  cobra.ExactArgs(1),
	RunE:  controlRunner("resume"),
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel an item and remove its transfer",
	Args:  cobra.ExactArgs(1),
	RunE:  controlRunner("cancel"),
}

var retryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Requeue a failed item",
	Args:  cobra.ExactArgs(1),
	RunE:  controlRunner("retry"),
}

var requeueCmd = &cobra.Command{
	Use:   "requeue <id>",
	Short: "Abandon an item's current download and search again",
	Args:  cobra.ExactArgs(1),
	RunE:  controlRunner("requeue"),
}

func init() {
	rootCmd.AddCommand(pauseCmd, resumeCmd, cancelCmd, retryCmd, requeueCmd)
}

func controlRunner(action string) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id %q", args[0])
		}

		client := NewClient(serverURL)
		item, err := client.Control(id, action)
		if err != nil {
			return fmt.Errorf("%s failed: %w", action, err)
		}

		if jsonOutput {
			printJSON(item)
			return nil
		}

		fmt.Printf("#%d %s is now %s\n", item.ID, item.Title, item.Status)
		return nil
	}
}
