package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/ytconvert/pkg/engine"
	"github.com/psantana5/ytconvert/pkg/logging"
	"github.com/psantana5/ytconvert/pkg/probe"
	"github.com/psantana5/ytconvert/pkg/retry"
	"github.com/psantana5/ytconvert/pkg/wrapper"
)

// probeCmd runs a metadata lookup locally, without a server
var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Look up media metadata with yt-dlp",
	Long:  `Runs yt-dlp --dump-json against the URL using the configured engine settings and prints what the server would see.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng := engine.NewYtDlpEngine(engine.Options{
		Binary:    cfg.Engine.Binary,
		Referer:   cfg.Engine.Referer,
		UserAgent: cfg.Engine.UserAgent,
	})

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.Probe.Retries
	prober := probe.New(wrapper.NewExecSpawner(), eng, probe.Options{
		Enabled: true,
		Timeout: cfg.Probe.Timeout,
		Retry:   retryCfg,
		Logger:  logging.NewLogger(logging.WARN, false),
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Probe.Timeout*time.Duration(cfg.Probe.Retries+1)+5*time.Second)
	defer cancel()

	info, err := prober.Probe(ctx, args[0])
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("ID", info.ID)
	table.Append("Title", info.Title)
	table.Append("Uploader", info.Uploader)
	table.Append("Duration", (time.Duration(info.Duration) * time.Second).String())
	table.Append("Formats", fmt.Sprintf("%d", len(info.Formats)))
	table.Append("Audio formats", fmt.Sprintf("%d", info.AudioFormatCount()))
	table.Append("Max height", fmt.Sprintf("%dp", info.MaxHeight()))
	table.Append("Page", info.WebpageURL)
	table.Render()
	return nil
}
