package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/psantana5/ytconvert/pkg/models"
)

var (
	convertFormat  string
	convertQuality string
	convertOutput  string
)

// convertCmd is the client side of POST /api/convert
var convertCmd = &cobra.Command{
	Use:   "convert <url>",
	Short: "Convert a video through a running server",
	Long: `Sends a conversion request to the convertd API and saves the streamed
attachment. Without --out the server's file name is used in the current directory.
Use --out - to write to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertFormat, "format", "f", "mp3", "output format: mp3 or mp4")
	convertCmd.Flags().StringVarP(&convertQuality, "quality", "q", "", "quality hint (kbps for mp3, height for mp4)")
	convertCmd.Flags().StringVarP(&convertOutput, "out", "o", "", "output file")
}

func runConvert(cmd *cobra.Command, args []string) error {
	body := models.ConversionRequestBody{URL: args[0], Format: convertFormat, Quality: convertQuality}
	if _, err := models.ParseConversionRequest(body); err != nil {
		return err
	}

	c, err := newAPIClient(0)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if convertOutput == "-" {
		_, err := c.Convert(ctx, body, os.Stdout)
		return err
	}

	// Stream into a temp file next to the destination, then rename once the name is known
	dir := "."
	if convertOutput != "" {
		dir = filepath.Dir(convertOutput)
	}
	tmp, err := os.CreateTemp(dir, ".convertd-*.part")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	dl, err := c.Convert(ctx, body, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if ctx.Err() == context.Canceled {
			return fmt.Errorf("interrupted")
		}
		return err
	}

	dest := convertOutput
	if dest == "" {
		name := filepath.Base(dl.FileName)
		if name == "" || name == "." || name == "/" {
			name = models.DefaultTitle + "." + convertFormat
		}
		dest = name
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to save %s: %w", dest, err)
	}

	fmt.Fprintf(os.Stderr, "Saved %s (%d bytes)\n", dest, dl.Bytes)
	return nil
}
