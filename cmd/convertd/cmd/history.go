package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent conversions from a running server",
	Long:  `Retrieve the conversion audit log from the convertd API, newest first.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of records")
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient(30 * time.Second)
	if err != nil {
		return err
	}

	result, err := c.History(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	if len(result.Conversions) == 0 {
		fmt.Println("No conversions recorded")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Format", "State", "Exit", "Bytes", "Title", "Created")
	for _, rec := range result.Conversions {
		table.Append(
			rec.ID,
			string(rec.Format),
			string(rec.State),
			fmt.Sprintf("%d", rec.ExitCode),
			fmt.Sprintf("%d", rec.Bytes),
			truncate(rec.Title, 40),
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	table.Render()
	fmt.Printf("\nTotal: %d\n", result.Count)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
