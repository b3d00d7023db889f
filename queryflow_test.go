package queryflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/queryflow/pipeline"
)

func TestNew_NoProviderRunsDeterministically(t *testing.T) {
	svc, err := New(WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := svc.ProcessQuery(ctx, pipeline.Request{
		SessionID: "facade-1",
		Query:     "analyze revenue trends by region",
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusCompleted, result.Status)
	assert.NotEmpty(t, result.ExecutionID)
	assert.NotEmpty(t, result.Output)
}

func TestNew_ShortcutWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New(WithOpenAI("gpt-4o-mini"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestNew_ExplicitKeyWinsOverEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	// WithAPIKey before the shortcut: the shortcut must not clobber it.
	svc, err := New(WithAPIKey("sk-test"), WithOpenAI("gpt-4o-mini"))
	require.NoError(t, err)
	require.NotNil(t, svc)
}
