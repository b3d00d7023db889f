package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/queryflow/workflow"
)

type failingRetriever struct{}

func (failingRetriever) Index(context.Context, []Document) error { return nil }

func (failingRetriever) Search(context.Context, string, int) ([]SearchResult, error) {
	return nil, errors.New("index offline")
}

func (failingRetriever) Count(context.Context) (int, error) { return 0, nil }

func TestKeywordIndex_SearchRanksOverlap(t *testing.T) {
	ctx := context.Background()
	index := NewKeywordIndex(nil)
	require.NoError(t, index.Index(ctx, []Document{
		{ID: "doc-1", Text: "monthly revenue report for the emea region"},
		{ID: "doc-2", Text: "employee onboarding checklist"},
		{ID: "doc-3", Text: "revenue targets by region and quarter"},
	}))

	results, err := index.Search(ctx, "revenue by region", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "doc-3", results[0].Document.ID)
	assert.Equal(t, "doc-1", results[1].Document.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestKeywordIndex_TieBreaksByID(t *testing.T) {
	ctx := context.Background()
	index := NewKeywordIndex(nil)
	require.NoError(t, index.Index(ctx, []Document{
		{ID: "b", Text: "alpha beta"},
		{ID: "a", Text: "alpha gamma"},
	}))

	results, err := index.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Document.ID)
	assert.Equal(t, "b", results[1].Document.ID)
}

func TestKeywordIndex_AssignsIDs(t *testing.T) {
	ctx := context.Background()
	index := NewKeywordIndex(nil)
	require.NoError(t, index.Index(ctx, []Document{{Text: "hello world"}}))

	results, err := index.Search(ctx, "hello", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Document.ID)

	n, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestKeywordIndex_NoMatches(t *testing.T) {
	ctx := context.Background()
	index := NewKeywordIndex(nil)
	require.NoError(t, index.Index(ctx, []Document{{ID: "d", Text: "alpha"}}))

	results, err := index.Search(ctx, "zulu", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = index.Search(ctx, "", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrievalAgent_ProducesContext(t *testing.T) {
	ctx := context.Background()
	index := NewKeywordIndex(nil)
	require.NoError(t, index.Index(ctx, []Document{
		{ID: "doc-1", Text: "monthly revenue report for the emea region"},
		{ID: "doc-3", Text: "revenue targets by region and quarter"},
	}))

	agent := NewRetrievalAgent(index, nil)
	state := workflow.NewState(map[string]any{KeyQueryText: "revenue by region"})

	out, err := agent.Execute(ctx, state)
	require.NoError(t, err)

	items, ok := out[KeyRetrievedContext].([]map[string]any)
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "doc-3", items[0]["id"])
	assert.Equal(t, "revenue targets by region and quarter", items[0]["text"])
}

func TestRetrievalAgent_NilRetriever(t *testing.T) {
	agent := NewRetrievalAgent(nil, nil)
	state := workflow.NewState(map[string]any{KeyQueryText: "anything"})

	out, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Empty(t, out[KeyRetrievedContext])
}

func TestRetrievalAgent_SearchErrorPropagates(t *testing.T) {
	agent := NewRetrievalAgent(failingRetriever{}, nil)
	state := workflow.NewState(map[string]any{KeyQueryText: "anything"})

	_, err := agent.Execute(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context search failed")
}
