package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue totals by state",
	RunE:  runStatusCmd,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatusCmd(_ *cobra.Command, _ []string) error {
	client := NewClient(serverURL)
	stats, err := client.Stats()
	if err != nil {
		return fmt.Errorf("stats fetch failed: %w", err)
	}

	if jsonOutput {
		printJSON(stats)
		return nil
	}

	states := make([]string, 0, len(stats.Counts))
	for state := range stats.Counts {
		states = append(states, state)
	}
	sort.Strings(states)

	rows := make([][]string, 0, len(states))
	for _, state := range states {
		rows = append(rows, []string{state, strconv.Itoa(stats.Counts[state])})
	}

	fmt.Println(renderTable(
		[]string{"State", "Count"},
		rows,
		[]columnAlignment{alignLeft, alignRight},
	))
	fmt.Printf("%d total, %d active\n", stats.Total, stats.Active)
	return nil
}
