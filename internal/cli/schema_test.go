package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCommandTree() *cobra.Command {
	root := &cobra.Command{Use: "quotedesk", Short: "Carrier eligibility assistant"}
	AddHelpJSONFlag(root)
	root.PersistentFlags().String("api-url", "", "API base URL")
	_ = BindEnv(root.PersistentFlags(), "api-url", "QUOTEDESK_API_URL")

	index := &cobra.Command{Use: "index", Short: "Manage the vector index"}
	syncCmd := &cobra.Command{Use: "sync", Short: "Load embeddings", Run: func(*cobra.Command, []string) {}}
	syncCmd.Flags().Bool("reset", false, "Empty the index first")
	syncCmd.Flags().Int("batch", 100, "Vectors per request")
	syncCmd.Flags().String("carrier", "", "Carrier")
	_ = syncCmd.MarkFlagRequired("carrier")
	index.AddCommand(syncCmd)

	hidden := &cobra.Command{Use: "debug", Hidden: true, Run: func(*cobra.Command, []string) {}}
	root.AddCommand(index, hidden)
	return root
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(testCommandTree())

	assert.Equal(t, "quotedesk", schema.Name)
	require.Len(t, schema.Subcommands, 1)
	index := schema.Subcommands[0]
	assert.Equal(t, "index", index.Name)
	require.Len(t, index.Subcommands, 1)

	sync := index.Subcommands[0]
	names := map[string]FlagSchema{}
	for _, f := range sync.Flags {
		names[f.Name] = f
	}
	assert.Equal(t, "bool", names["reset"].Type)
	assert.Equal(t, "100", names["batch"].Default)
	assert.True(t, names["carrier"].Required)
	assert.False(t, names["batch"].Required)
	assert.NotContains(t, names, "help-json")
	assert.Equal(t, "QUOTEDESK_API_URL", names["api-url"].Env)
	assert.Empty(t, names["reset"].Env)
}

func TestWriteSchema(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSchema(&buf, testCommandTree()))

	var schema CommandSchema
	require.NoError(t, json.Unmarshal(buf.Bytes(), &schema))
	assert.Equal(t, "quotedesk", schema.Name)
	require.Len(t, schema.Flags, 1)
	assert.Equal(t, "api-url", schema.Flags[0].Name)
}

func TestFindTargetCommand(t *testing.T) {
	root := testCommandTree()

	assert.Equal(t, "sync", findTargetCommand(root, []string{"index", "sync"}).Name())
	assert.Equal(t, "index", findTargetCommand(root, []string{"index", "unknown"}).Name())
	assert.Equal(t, "quotedesk", findTargetCommand(root, nil).Name())
}
