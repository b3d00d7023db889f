package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/queryflow/workflow"
)

func TestChartAgent_BuildsFromSQLResult(t *testing.T) {
	agent := NewChartAgent(nil)
	state := workflow.NewState(map[string]any{
		KeyQueryText:     "revenue by region",
		KeyQueryEntities: []string{"region"},
		KeySQLResult: map[string]any{
			"rows": []map[string]any{
				{"metric": "sum", "value": 2100.0},
			},
		},
	})

	out, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)

	cfg, ok := out[KeyChartConfig].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bar", cfg["type"])
	assert.Equal(t, "revenue by region", cfg["title"])
	assert.Equal(t, "region", cfg["x_axis"])
	assert.Equal(t, "value", cfg["y_axis"])

	data := cfg["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, map[string]any{"label": "sum", "value": 2100.0}, data[0])
}

func TestChartAgent_ChartTypeKeywords(t *testing.T) {
	assert.Equal(t, "line", pickChartType("show the revenue trend over time"))
	assert.Equal(t, "pie", pickChartType("market share by segment"))
	assert.Equal(t, "scatter", pickChartType("correlation between price and demand"))
	assert.Equal(t, "line", pickChartType("销售额趋势"))
	assert.Equal(t, "bar", pickChartType("revenue by region"))
}

func TestChartAgent_EmptySeriesWithoutData(t *testing.T) {
	agent := NewChartAgent(nil)
	state := workflow.NewState(map[string]any{
		KeyQueryText:     "plot revenue by region",
		KeyQueryEntities: []string{"revenue", "region"},
	})

	out, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)

	cfg := out[KeyChartConfig].(map[string]any)
	assert.Equal(t, "revenue", cfg["x_axis"])
	assert.Equal(t, "value", cfg["y_axis"])

	data, ok := cfg["data"].([]any)
	require.True(t, ok)
	assert.Empty(t, data)
}

func TestChartAgent_FallsBackToDataset(t *testing.T) {
	agent := NewChartAgent(nil)
	state := workflow.NewState(map[string]any{
		KeyQueryEntities: []string{"city"},
		KeyDataset: map[string]any{
			"rows": []map[string]any{
				{"city": "berlin", "orders": 12.0},
				{"city": "munich", "orders": 7.0},
			},
		},
	})

	out, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)

	cfg := out[KeyChartConfig].(map[string]any)
	assert.Equal(t, "Query result", cfg["title"])
	assert.Equal(t, "city", cfg["x_axis"])
	assert.Equal(t, "orders", cfg["y_axis"])

	data := cfg["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, map[string]any{"label": "berlin", "value": 12.0}, data[0])
	assert.Equal(t, map[string]any{"label": "munich", "value": 7.0}, data[1])
}

func TestChartAgent_SeriesCap(t *testing.T) {
	rows := make([]map[string]any, 60)
	for i := range rows {
		rows[i] = map[string]any{"n": float64(i)}
	}

	agent := NewChartAgent(nil)
	state := workflow.NewState(map[string]any{
		KeyQueryEntities: []string{"n"},
		KeyDataset:       map[string]any{"rows": rows},
	})

	out, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)

	data := out[KeyChartConfig].(map[string]any)["data"].([]any)
	assert.Len(t, data, 50)
}
