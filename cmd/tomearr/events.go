package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent pipeline events",
	RunE:  runEventsCmd,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().Int("limit", 50, "Maximum number of events")
}

func runEventsCmd(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	client := NewClient(serverURL)
	list, err := client.Events(0, limit)
	if err != nil {
		return fmt.Errorf("event fetch failed: %w", err)
	}

	if jsonOutput {
		printJSON(list)
		return nil
	}

	if len(list.Items) == 0 {
		fmt.Println("No events recorded.")
		return nil
	}

	rows := make([][]string, 0, len(list.Items))
	for _, ev := range list.Items {
		rows = append(rows, []string{
			ev.OccurredAt,
			ev.EventType,
			ev.EntityType + " " + strconv.FormatInt(ev.EntityID, 10),
		})
	}

	fmt.Println(renderTable(
		[]string{"Time", "Event", "Entity"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft},
	))
	return nil
}
