package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorTokenizer_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer("test-model", 0)

	t.Run("empty text", func(t *testing.T) {
		n, err := e.CountTokens("")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("ascii text", func(t *testing.T) {
		n, err := e.CountTokens("hello world this is a test")
		require.NoError(t, err)
		// 26 ASCII chars / 4 ≈ 6
		assert.Equal(t, 6, n)
	})

	t.Run("cjk text weighs heavier than ascii", func(t *testing.T) {
		ascii, err := e.CountTokens(strings.Repeat("a", 30))
		require.NoError(t, err)
		cjk, err := e.CountTokens(strings.Repeat("销", 30))
		require.NoError(t, err)
		assert.Greater(t, cjk, ascii)
	})

	t.Run("short text never rounds to zero", func(t *testing.T) {
		n, err := e.CountTokens("ok")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestEstimatorTokenizer_CountMessages(t *testing.T) {
	e := NewEstimatorTokenizer("test-model", 0)

	messages := []Message{
		{Role: "system", Content: "You are a helpful assistant."},
		{Role: "user", Content: "列出上个季度的销售总额"},
	}
	total, err := e.CountMessages(messages)
	require.NoError(t, err)

	// 每条消息 +4 开销, 会话结束 +3.
	c0, _ := e.CountTokens(messages[0].Content)
	c1, _ := e.CountTokens(messages[1].Content)
	assert.Equal(t, c0+c1+4+4+3, total)
}

func TestEstimatorTokenizer_Truncate(t *testing.T) {
	e := NewEstimatorTokenizer("test-model", 0)

	t.Run("returns text unchanged when under budget", func(t *testing.T) {
		out, err := e.Truncate("short query", 100)
		require.NoError(t, err)
		assert.Equal(t, "short query", out)
	})

	t.Run("truncates over-budget text", func(t *testing.T) {
		long := strings.Repeat("analyze quarterly revenue ", 50)
		out, err := e.Truncate(long, 10)
		require.NoError(t, err)
		assert.Less(t, len(out), len(long))

		n, err := e.CountTokens(out)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, 10)
	})

	t.Run("keeps rune boundaries intact for cjk", func(t *testing.T) {
		long := strings.Repeat("统计全年各区域销售额并生成报告", 20)
		out, err := e.Truncate(long, 15)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(long, out))
	})

	t.Run("zero budget yields empty string", func(t *testing.T) {
		out, err := e.Truncate("anything", 0)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestTiktokenTokenizer_ModelTable(t *testing.T) {
	t.Run("known model", func(t *testing.T) {
		tok, err := NewTiktokenTokenizer("gpt-4o-mini")
		require.NoError(t, err)
		assert.Equal(t, 128000, tok.MaxTokens())
		assert.Equal(t, "tiktoken[o200k_base]", tok.Name())
	})

	t.Run("prefix match on dated snapshot", func(t *testing.T) {
		tok, err := NewTiktokenTokenizer("gpt-4o-2024-11-20")
		require.NoError(t, err)
		assert.Equal(t, 128000, tok.MaxTokens())
	})

	t.Run("unknown model defaults to cl100k_base", func(t *testing.T) {
		tok, err := NewTiktokenTokenizer("mystery-model")
		require.NoError(t, err)
		assert.Equal(t, 8192, tok.MaxTokens())
		assert.Equal(t, "tiktoken[cl100k_base]", tok.Name())
	})
}

func TestTokenizerRegistry(t *testing.T) {
	est := NewEstimatorTokenizer("registered-model", 2048)
	RegisterTokenizer("registered-model", est)

	t.Run("exact match", func(t *testing.T) {
		tok, err := GetTokenizer("registered-model")
		require.NoError(t, err)
		assert.Equal(t, est, tok)
	})

	t.Run("prefix match", func(t *testing.T) {
		tok, err := GetTokenizer("registered-model-v2")
		require.NoError(t, err)
		assert.Equal(t, est, tok)
	})

	t.Run("unregistered model errors", func(t *testing.T) {
		_, err := GetTokenizer("never-registered")
		assert.Error(t, err)
	})

	t.Run("estimator fallback", func(t *testing.T) {
		tok := GetTokenizerOrEstimator("never-registered")
		require.NotNil(t, tok)
		assert.Equal(t, "estimator", tok.Name())
	})
}
