//go:build e2e

package e2e

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/cloo-solutions/quotedesk/internal/cli/client"
	"github.com/cloo-solutions/quotedesk/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	floridaGuide = `Wellington Homeowners Florida underwriting guide.

Roof age: homes in Florida with a roof older than 15 years are not eligible unless a four point inspection shows the roof is in good condition.

Swimming pools must have a screened enclosure or a fence at least four feet high.`

	texasGuide = `Wellington Homeowners Texas underwriting guide.

Roof age: homes in Texas with a roof older than 20 years are ineligible with no exceptions.`
)

func TestE2E_IngestAndAsk(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	env.Upload("Wellington/HO/FL/2024/underwriting.txt", floridaGuide)
	env.Upload("Wellington/HO/TX/2024/underwriting.txt", texasGuide)
	env.Upload("Wellington/HO/FL/2024/notes.docx", "ignored")

	t.Run("ingest stores both guides", func(t *testing.T) {
		report := env.Ingest(false)
		assert.Equal(t, 2, report.Files)
		assert.Equal(t, 2, report.Ingested)
		assert.Zero(t, report.Failed)
		assert.Positive(t, report.Chunks)

		var states []string
		rows, err := env.Pool.Query(env.Ctx, "SELECT DISTINCT state FROM chunks ORDER BY state")
		require.NoError(t, err)
		defer rows.Close()
		for rows.Next() {
			var s string
			require.NoError(t, rows.Scan(&s))
			states = append(states, s)
		}
		require.NoError(t, rows.Err())
		assert.Equal(t, []string{"FL", "TX"}, states)
	})

	t.Run("unchanged guides are skipped", func(t *testing.T) {
		report := env.Ingest(false)
		assert.Equal(t, 2, report.Skipped)
		assert.Zero(t, report.Ingested)
	})

	t.Run("answer only cites the requested state", func(t *testing.T) {
		resp, err := env.Client.Ask(env.Ctx, client.AskRequest{
			Carrier:  "Wellington",
			LOB:      "HO",
			State:    "FL",
			Program:  "Select",
			Version:  "Latest",
			Question: "Is a home with a 16 year old roof eligible?",
		})
		require.NoError(t, err)

		assert.Equal(t, "Yes", resp.Answer)
		require.NotEmpty(t, resp.Sources)
		assert.Equal(t, "#1", resp.Sources[0].Tag)
		assert.Equal(t, "p.1", resp.Sources[0].Page)
		for _, r := range resp.Retrieved {
			assert.Contains(t, r.Text, "Florida")
			assert.NotContains(t, r.Text, "Texas")
		}

		prompts := env.Generator.Prompts()
		require.NotEmpty(t, prompts)
		last := prompts[len(prompts)-1]
		assert.Contains(t, last, "[#1 underwriting.txt p.1]")
		assert.NotContains(t, last, "Texas")
	})

	t.Run("unknown carrier refers without generating", func(t *testing.T) {
		before := len(env.Generator.Prompts())

		resp, err := env.Client.Ask(env.Ctx, client.AskRequest{
			Carrier:  "Acme",
			LOB:      "HO",
			State:    "FL",
			Question: "Is a 16 year old roof eligible?",
		})
		require.NoError(t, err)

		assert.Equal(t, "Refer", resp.Answer)
		assert.Equal(t, service.NotFoundMessage, resp.Conditions)
		assert.Empty(t, resp.Sources)
		assert.Len(t, env.Generator.Prompts(), before)
	})

	t.Run("missing fields are rejected", func(t *testing.T) {
		_, err := env.Client.Ask(env.Ctx, client.AskRequest{Carrier: "Wellington", Question: "Pools?"})

		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.True(t, strings.Contains(apiErr.Message, "required"))
	})

	t.Run("changed guide replaces its chunks", func(t *testing.T) {
		env.Upload("Wellington/HO/TX/2024/underwriting.txt", texasGuide+"\n\nWood shake roofs are not eligible.")

		report := env.Ingest(false)
		assert.Equal(t, 1, report.Ingested)
		assert.Equal(t, 1, report.Replaced)
		assert.Equal(t, 1, report.Skipped)

		var docs int
		require.NoError(t, env.Pool.QueryRow(env.Ctx, "SELECT COUNT(*) FROM documents WHERE state = 'TX'").Scan(&docs))
		assert.Equal(t, 1, docs)
	})
}
