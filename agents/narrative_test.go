package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/queryflow/testutil/mocks"
	"github.com/BaSui01/queryflow/workflow"
)

func TestNarrativeAgent_FallbackComposition(t *testing.T) {
	agent := NewNarrativeAgent(nil, TextAgentOptions{}, nil)
	state := workflow.NewState(map[string]any{
		KeyQueryText: "revenue by region",
		KeyInsight:   "Revenue grew 18% quarter over quarter. Consider expanding the APAC team",
		KeySQLResult: map[string]any{"row_count": 4},
	})

	out, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)

	narrative, ok := out[KeyNarrative].(string)
	require.True(t, ok)
	assert.Contains(t, narrative, `In response to "revenue by region", the analysis completed with 4 supporting rows.`)
	assert.Contains(t, narrative, "Revenue grew 18%")
	assert.True(t, strings.HasSuffix(narrative, "once the next reporting cycle lands."))
}

func TestNarrativeAgent_UsesProvider(t *testing.T) {
	provider := mocks.NewMockProvider().
		WithResponse("The quarter closed strong, with revenue up 18%. The next step is an APAC hiring plan.")
	agent := NewNarrativeAgent(provider, TextAgentOptions{}, nil)
	state := workflow.NewState(map[string]any{
		KeyQueryText: "revenue by region",
		KeyInsight:   "Revenue grew 18%.",
	})

	out, err := agent.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "The quarter closed strong, with revenue up 18%. The next step is an APAC hiring plan.", out[KeyNarrative])

	prompt := provider.GetLastCall().Request.Messages[1].Content
	assert.Contains(t, prompt, "Analysis: Revenue grew 18%.")
}
