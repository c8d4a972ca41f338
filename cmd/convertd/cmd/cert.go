package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	tlsutil "github.com/psantana5/ytconvert/pkg/tls"
)

var (
	certFile string
	keyFile  string
	certCN   string
	certSANs []string
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Manage TLS certificates",
}

var certGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a self-signed server certificate",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := tlsutil.GenerateSelfSignedCert(certFile, keyFile, certCN, certSANs...); err != nil {
			return err
		}
		fmt.Printf("Certificate: %s\nKey:         %s\n", certFile, keyFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(certCmd)
	certCmd.AddCommand(certGenerateCmd)

	certGenerateCmd.Flags().StringVar(&certFile, "cert", "certs/convertd.crt", "certificate output path")
	certGenerateCmd.Flags().StringVar(&keyFile, "key", "certs/convertd.key", "private key output path")
	certGenerateCmd.Flags().StringVar(&certCN, "cn", "convertd", "certificate common name")
	certGenerateCmd.Flags().StringSliceVar(&certSANs, "san", nil, "additional DNS names or IPs")
}
