package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one pipeline item in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowCmd,
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().Bool("events", false, "Include the item's event history")
}

func runShowCmd(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid item id %q", args[0])
	}
	withEvents, _ := cmd.Flags().GetBool("events")

	client := NewClient(serverURL)
	item, err := client.Item(id)
	if err != nil {
		return fmt.Errorf("item fetch failed: %w", err)
	}

	if jsonOutput {
		printJSON(item)
		return nil
	}

	fmt.Printf("#%d %s\n", item.ID, item.Title)
	if item.Author != "" {
		fmt.Printf("  Author:    %s\n", item.Author)
	}
	if item.Narrator != "" {
		fmt.Printf("  Narrator:  %s\n", item.Narrator)
	}
	if item.Identity != "" {
		fmt.Printf("  Identity:  %s\n", item.Identity)
	}
	fmt.Printf("  State:     %s\n", item.Status)
	fmt.Printf("  Queued:    %s\n", humanize.Time(item.QueuedAt))
	if item.StartedAt != nil {
		fmt.Printf("  Started:   %s\n", humanize.Time(*item.StartedAt))
	}
	if item.CompletedAt != nil {
		fmt.Printf("  Finished:  %s\n", humanize.Time(*item.CompletedAt))
	}

	if sel := item.Selected; sel != nil {
		fmt.Printf("  Release:   %s\n", sel.Title)
		fmt.Printf("  Source:    %s via %s\n", sel.SourceType, sel.Indexer)
		if sel.Format != "" {
			fmt.Printf("  Format:    %s\n", sel.Format)
		}
		if sel.Size > 0 {
			fmt.Printf("  Size:      %s\n", humanize.Bytes(uint64(sel.Size)))
		}
		fmt.Printf("  Score:     %d\n", sel.Confidence)
	}

	switch item.Status {
	case "downloading", "paused":
		fmt.Printf("  Progress:  %.1f%%", item.Progress)
		if item.SpeedBps > 0 {
			fmt.Printf(" at %s/s", humanize.Bytes(uint64(item.SpeedBps)))
		}
		if item.ETASeconds > 0 {
			fmt.Printf(", %s left", (time.Duration(item.ETASeconds) * time.Second).Round(time.Second))
		}
		fmt.Println()
	case "seeding":
		fmt.Printf("  Seeding:   ratio %.2f after %s\n", item.Ratio,
			(time.Duration(item.ElapsedSeconds) * time.Second).Round(time.Second))
	}

	if item.FinalPath != "" {
		fmt.Printf("  Library:   %s\n", item.FinalPath)
	}
	if item.LastError != "" {
		fmt.Printf("  Error:     %s\n", item.LastError)
	}

	if withEvents {
		events, err := client.Events(id, 0)
		if err != nil {
			return fmt.Errorf("event fetch failed: %w", err)
		}
		fmt.Println("\nEvents:")
		for _, ev := range events.Items {
			fmt.Printf("  %s  %s\n", ev.OccurredAt, ev.EventType)
		}
	}
	return nil
}
