package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List pipeline items",
	RunE:  runQueueCmd,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.Flags().Bool("all", false, "Include finished items")
	queueCmd.Flags().String("state", "", "Filter by state (queued, searching, downloading, ...)")
}

func runQueueCmd(cmd *cobra.Command, _ []string) error {
	all, _ := cmd.Flags().GetBool("all")
	state, _ := cmd.Flags().GetString("state")

	client := NewClient(serverURL)
	list, err := client.Queue(state, !all && state == "")
	if err != nil {
		return fmt.Errorf("queue fetch failed: %w", err)
	}

	if jsonOutput {
		printJSON(list)
		return nil
	}

	if len(list.Items) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	rows := make([][]string, 0, len(list.Items))
	for _, item := range list.Items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.Title,
			item.Author,
			item.Status,
			formatProgress(&item),
			formatSpeed(item.SpeedBps),
			formatETA(item.ETASeconds),
		})
	}

	fmt.Println(renderTable(
		[]string{"ID", "Title", "Author", "State", "Progress", "Speed", "ETA"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
	fmt.Printf("%d item(s)\n", list.Total)
	return nil
}

func formatProgress(item *ItemResponse) string {
	switch item.Status {
	case "downloading", "paused":
		return fmt.Sprintf("%.1f%%", item.Progress)
	case "seeding":
		return fmt.Sprintf("ratio %.2f", item.Ratio)
	default:
		return ""
	}
}

func formatSpeed(bps int64) string {
	if bps <= 0 {
		return ""
	}
	return humanize.Bytes(uint64(bps)) + "/s"
}

func formatETA(seconds int64) string {
	if seconds <= 0 {
		return ""
	}
	return (time.Duration(seconds) * time.Second).Round(time.Second).String()
}
