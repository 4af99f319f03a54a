package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/quotedesk/internal/cli"
	"github.com/cloo-solutions/quotedesk/internal/cli/admin"
	"github.com/cloo-solutions/quotedesk/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "quotedesk",
		Short: "Carrier eligibility assistant",
		Long: `quotedesk answers agent eligibility questions from indexed carrier guidelines.

Server configuration is read from QUOTEDESK_* environment variables (or .env).
Client commands read QUOTEDESK_API_URL (default: http://localhost:8080).`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("api-url", "", "API base URL for client commands (overrides env)")
	_ = cli.BindEnv(rootCmd.PersistentFlags(), "api-url", client.EnvAPIURL)
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.IndexCmd())
	rootCmd.AddCommand(client.AskCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
