package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/psantana5/ytconvert/pkg/engine"
	"github.com/psantana5/ytconvert/pkg/models"
)

var (
	resolveFormat  string
	resolveQuality string
	resolveTitle   string
)

// resolveCmd prints the yt-dlp invocation a request would produce
var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Show the yt-dlp command for a conversion",
	Long:  `Validates a conversion request and prints the format selector, arguments and attachment name without running anything.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVar(&resolveFormat, "format", "mp3", "output format: mp3 or mp4")
	resolveCmd.Flags().StringVar(&resolveQuality, "quality", "", "quality hint (kbps for mp3, height for mp4)")
	resolveCmd.Flags().StringVar(&resolveTitle, "title", "", "title to derive the file name from")
}

type resolveOutput struct {
	Binary   string   `json:"binary"`
	Selector string   `json:"selector"`
	Args     []string `json:"args"`
	FileName string   `json:"file_name"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req, err := models.ParseConversionRequest(models.ConversionRequestBody{
		URL:     args[0],
		Format:  resolveFormat,
		Quality: resolveQuality,
	})
	if err != nil {
		return err
	}

	eng := engine.NewYtDlpEngine(engine.Options{
		Binary:    cfg.Engine.Binary,
		Referer:   cfg.Engine.Referer,
		UserAgent: cfg.Engine.UserAgent,
	})
	job := eng.Resolve(req, resolveTitle)

	out := resolveOutput{
		Binary:   eng.Binary(),
		Selector: job.Selector,
		Args:     job.Args,
		FileName: job.FileName(req.Kind),
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Selector:  %s\n", out.Selector)
	fmt.Printf("File name: %s\n", out.FileName)
	fmt.Printf("Command:   %s %s\n", out.Binary, strings.Join(out.Args, " "))
	return nil
}
