package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Queue a wanted audiobook",
	Long: `Queue an audiobook for automatic search, download, and import.

Examples:
  tomearr add "Project Hail Mary" --author "Andy Weir"
  tomearr add "Dune" --author "Frank Herbert" --identity asin-B08G9PRS1K --priority 10`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAddCmd,
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().String("author", "", "Author name, used to narrow the search")
	addCmd.Flags().String("narrator", "", "Preferred narrator")
	addCmd.Flags().String("identity", "", "Stable external key, e.g. an ASIN")
	addCmd.Flags().Int("priority", 0, "Queue priority, higher first")
}

func runAddCmd(cmd *cobra.Command, args []string) error {
	author, _ := cmd.Flags().GetString("author")
	narrator, _ := cmd.Flags().GetString("narrator")
	identity, _ := cmd.Flags().GetString("identity")
	priority, _ := cmd.Flags().GetInt("priority")

	client := NewClient(serverURL)
	item, err := client.AddWanted(AddWantedRequest{
		Identity: identity,
		Title:    strings.Join(args, " "),
		Author:   author,
		Narrator: narrator,
		Priority: priority,
	})
	if err != nil {
		return fmt.Errorf("add failed: %w", err)
	}

	if jsonOutput {
		printJSON(item)
		return nil
	}

	fmt.Printf("Queued #%d: %s", item.ID, item.Title)
	if item.Author != "" {
		fmt.Printf(" by %s", item.Author)
	}
	fmt.Printf(" (%s)\n", item.Status)
	return nil
}
