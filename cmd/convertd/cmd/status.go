package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// statusCmd shows /health of a running server
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of a running server",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient(10 * time.Second)
	if err != nil {
		return err
	}

	health, err := c.Health(cmd.Context())
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(health, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	appendFlat(table, "", health)
	table.Render()

	if health["status"] != "healthy" {
		return fmt.Errorf("server is %v", health["status"])
	}
	return nil
}

func appendFlat(table *tablewriter.Table, prefix string, m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if sub, ok := m[k].(map[string]interface{}); ok {
			appendFlat(table, prefix+k+".", sub)
			continue
		}
		table.Append(prefix+k, fmt.Sprint(m[k]))
	}
}
