package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/ytconvert/pkg/auth"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

var apikeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an API key and its bcrypt hash",
	Long: `Prints a new random key for clients and the bcrypt hash to put in
auth.api_key_hash so the server never stores the key itself.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, hash, err := auth.GenerateAPIKey()
		if err != nil {
			return err
		}
		fmt.Printf("API key:  %s\n", key)
		fmt.Printf("Hash:     %s\n", hash)
		fmt.Println("\nServer:   CONVERTD_AUTH_API_KEY_HASH='" + hash + "'")
		fmt.Println("Client:   CONVERTD_API_KEY=" + key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyGenerateCmd)
}
