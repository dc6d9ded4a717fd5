package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"budgetbee/internal/cli"
	gsheet "budgetbee/internal/sheets/google"
)

var (
	flagRedirectPort string
	flagTokenFile    string
)

var sheetsAuthCmd = &cobra.Command{
	Use:   "sheets-auth",
	Short: "Authorize the alert log with a Google account",
	Long: "Runs the OAuth consent flow for the client in GOOGLE_OAUTH_CLIENT_JSON " +
		"or GOOGLE_OAUTH_CLIENT_FILE and stores the token for later runs. " +
		"Not needed when a service account is configured.",
	RunE: runSheetsAuth,
}

func init() {
	sheetsAuthCmd.Flags().StringVar(&flagRedirectPort, "port", "8085", "local port of the OAuth redirect")
	sheetsAuthCmd.Flags().StringVar(&flagTokenFile, "token-file", "", "where to save the token (default GOOGLE_OAUTH_TOKEN_FILE or token.json)")
	rootCmd.AddCommand(sheetsAuthCmd)
}

func runSheetsAuth(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()

	path, err := gsheet.Authorize(cmd.Context(), gsheet.AuthorizeConfig{
		RedirectPort: flagRedirectPort,
		TokenFile:    flagTokenFile,
		Timeout:      5 * time.Minute,
		Out:          cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved token to %s\n", path)
	return nil
}
