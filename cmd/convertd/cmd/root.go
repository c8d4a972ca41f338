package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/ytconvert/pkg/client"
	"github.com/psantana5/ytconvert/pkg/config"
	"github.com/psantana5/ytconvert/pkg/logging"
	tlsutil "github.com/psantana5/ytconvert/pkg/tls"
)

var (
	cfgFile      string
	serverURL    string
	outputFormat string
	apiKey       string
	caFile       string
	insecure     bool

	v *viper.Viper
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "convertd",
	Short: "Streaming media conversion service",
	Long: `convertd converts online videos to mp3 or mp4 by running yt-dlp and
streaming its output straight to the HTTP client. Nothing is written to disk.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.convertd/config.yaml, then /etc/convertd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "convertd API URL for client commands (default http://localhost:<server.port>)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for client commands (default from CONVERTD_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&caFile, "ca", "", "CA certificate to verify an HTTPS server")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "skip TLS verification (self-signed development certs)")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	v = config.New()
	if err := config.ReadFile(v, cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	v.BindEnv("client.api_key", "CONVERTD_API_KEY")
	v.BindEnv("client.server_url", "CONVERTD_SERVER_URL")

	if apiKey == "" {
		apiKey = v.GetString("client.api_key")
	}
	if serverURL == "" {
		serverURL = v.GetString("client.server_url")
	}
	if serverURL == "" {
		scheme := "http"
		if v.GetBool("tls.enabled") {
			scheme = "https"
		}
		serverURL = fmt.Sprintf("%s://localhost:%d", scheme, v.GetInt("server.port"))
	}
}

// loadConfig decodes and validates the effective server configuration
func loadConfig() (*config.Config, error) {
	return config.Load(v)
}

// newLogger builds the process logger from the log section
func newLogger(cfg config.LogConfig) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Level)
	jsonFormat := cfg.Format == "json"
	if cfg.File {
		return logging.NewFileLogger("convertd", "server", level, jsonFormat)
	}
	return logging.NewLogger(level, jsonFormat), nil
}

// GetServerURL returns the configured API URL with trailing slashes removed
func GetServerURL() string {
	return strings.TrimRight(serverURL, "/")
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

// GetHTTPClient returns a client honoring --ca and --insecure
func GetHTTPClient() (*http.Client, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	if !strings.HasPrefix(GetServerURL(), "https://") {
		return client, nil
	}
	tlsConfig, err := tlsutil.LoadClientTLSConfig(caFile, insecure)
	if err != nil {
		return nil, err
	}
	client.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	return client, nil
}

// newAPIClient builds a convertd API client from the global flags. timeout 0 disables
// the overall deadline for streaming calls.
func newAPIClient(timeout time.Duration) (*client.Client, error) {
	httpClient, err := GetHTTPClient()
	if err != nil {
		return nil, err
	}
	httpClient.Timeout = timeout
	return client.NewClient(GetServerURL(), apiKey, httpClient), nil
}
