package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var req AskRequest

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the carrier assistant an eligibility question",
		Long: `Sends a question to a running quotedesk server. Carrier, line of business
and state are required; program and version narrow the guidelines further.`,
		Example: `  quotedesk ask --carrier Wellington --lob HO --state TX "Is a 20 year old roof eligible?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Question = strings.Join(args, " ")
			outputJSON, _ := cmd.Flags().GetBool("output")

			resp, err := NewAPIClientWithCmd(cmd).Ask(cmd.Context(), req)
			if resp != nil {
				if printErr := printAnswer(cmd.OutOrStdout(), resp, outputJSON); printErr != nil {
					return printErr
				}
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) && resp != nil {
				return fmt.Errorf("server could not complete the request: %s", apiErr.Message)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&req.Carrier, "carrier", "", "Carrier name (required)")
	cmd.Flags().StringVar(&req.LOB, "lob", "", "Line of business (required)")
	cmd.Flags().StringVar(&req.State, "state", "", "State (required)")
	cmd.Flags().StringVar(&req.Program, "program", "", "Program filter")
	cmd.Flags().StringVar(&req.Version, "version", "", "Guideline version filter")
	_ = cmd.MarkFlagRequired("carrier")
	_ = cmd.MarkFlagRequired("lob")
	_ = cmd.MarkFlagRequired("state")

	return cmd
}

func printAnswer(w io.Writer, resp *AskResponse, outputJSON bool) error {
	if outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintf(w, "Answer: %s\n\n%s\n", resp.Answer, strings.TrimSpace(resp.Conditions))
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, s := range resp.Sources {
			line := fmt.Sprintf("  [%s] %s", s.Tag, s.Doc)
			if s.Page != "" {
				line += " " + s.Page
			}
			fmt.Fprintln(w, line)
			fmt.Fprintf(w, "      %s\n", s.Snippet)
		}
	}
	return nil
}
