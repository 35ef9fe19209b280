package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/n8n-bridge/bridged-go/internal/gateway"
)

func newTestIndex(t *testing.T) *ToolIndex {
	t.Helper()
	idx, err := NewToolIndex(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func sampleCatalog() []gateway.ToolDescriptor {
	return []gateway.ToolDescriptor{
		{Name: "search_workflows", Description: "Search n8n workflows by name or tag", InputSchema: []byte(`{"type":"object"}`)},
		{Name: "execute_workflow", Description: "Run a workflow with the given input", InputSchema: []byte(`{"type":"object"}`)},
		{Name: "list_credentials", Description: "List stored credential names"},
	}
}

func TestReplaceCatalog(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.ReplaceCatalog(sampleCatalog()))
	count, err := idx.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	// A shrunken catalog removes stale tools.
	require.NoError(t, idx.ReplaceCatalog(sampleCatalog()[:1]))
	count, err = idx.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestSearch(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.ReplaceCatalog(sampleCatalog()))

	t.Run("matches description terms", func(t *testing.T) {
		results, err := idx.Search("workflow", 10)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		for _, r := range results {
			assert.Contains(t, r.Tool.Name, "workflow")
			assert.Greater(t, r.Score, 0.0)
		}
	})

	t.Run("limit caps results", func(t *testing.T) {
		results, err := idx.Search("workflow", 1)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("empty query is rejected", func(t *testing.T) {
		_, err := idx.Search("", 10)
		require.Error(t, err)
	})

	t.Run("no hits yields empty result", func(t *testing.T) {
		results, err := idx.Search("nonexistent_zzz", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}
