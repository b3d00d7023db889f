package quality

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/queryflow/testutil/mocks"
)

func testAssessment(issues, strengths int) *Assessment {
	a := &Assessment{
		Target:   "insight",
		Category: CategoryInsight,
	}
	for i := 0; i < issues; i++ {
		a.IssuesFound = append(a.IssuesFound, fmt.Sprintf("issue %d", i+1))
	}
	for i := 0; i < strengths; i++ {
		a.Strengths = append(a.Strengths, fmt.Sprintf("strength %d", i+1))
	}
	a.Score = Score(issues, strengths)
	a.Approved = ApprovedFor(a.Score, issues)
	a.Confidence = ConfidenceFor(a.Score)
	return a
}

func newTestResolver(t *testing.T, provider *mocks.MockProvider, opts ResolverOptions) *Resolver {
	t.Helper()
	var r *Resolver
	var err error
	if provider == nil {
		r, err = NewResolver(nil, opts, nil)
	} else {
		r, err = NewResolver(provider, opts, nil)
	}
	require.NoError(t, err)
	return r
}

func TestResolver_NoProvider(t *testing.T) {
	r := newTestResolver(t, nil, ResolverOptions{})
	a := testAssessment(2, 0)

	res := r.Resolve(context.Background(), "total revenue", a)

	assert.Equal(t, VerdictUnresolved, res.Verdict)
	assert.Equal(t, a.Score, res.Score)
	assert.Equal(t, a.Approved, res.Approved)
	assert.Equal(t, a.Confidence, res.Confidence)
}

func TestResolver_NilAssessment(t *testing.T) {
	r := newTestResolver(t, nil, ResolverOptions{})

	res := r.Resolve(context.Background(), "total revenue", nil)

	assert.Equal(t, VerdictUnresolved, res.Verdict)
	assert.Contains(t, res.Rationale, "no assessment")
}

func TestResolver_Upheld(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(
		`{"verdict": "upheld", "rationale": "the issues are real"}`)
	r := newTestResolver(t, provider, ResolverOptions{})
	a := testAssessment(2, 0)

	res := r.Resolve(context.Background(), "total revenue", a)

	assert.Equal(t, VerdictUpheld, res.Verdict)
	assert.Equal(t, a.Score, res.Score)
	assert.False(t, res.Approved)
	assert.Equal(t, "the issues are real", res.Rationale)
}

func TestResolver_Revised(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(
		`{"verdict": "revised", "revised_score": 0.9, "rationale": "issues were cosmetic"}`)
	r := newTestResolver(t, provider, ResolverOptions{})
	a := testAssessment(1, 0)

	res := r.Resolve(context.Background(), "total revenue", a)

	assert.Equal(t, VerdictRevised, res.Verdict)
	assert.InDelta(t, 0.9, res.Score, 1e-9)
	assert.True(t, res.Approved)
	assert.Equal(t, ConfidenceHigh, res.Confidence)
}

// 修正分数再高, 也越不过问题数上限。
func TestResolver_RevisedKeepsIssueLimit(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(
		`{"verdict": "revised", "revised_score": 0.95, "rationale": "generous"}`)
	r := newTestResolver(t, provider, ResolverOptions{})
	a := testAssessment(3, 0)

	res := r.Resolve(context.Background(), "total revenue", a)

	assert.Equal(t, VerdictRevised, res.Verdict)
	assert.InDelta(t, 0.95, res.Score, 1e-9)
	assert.False(t, res.Approved)
}

func TestResolver_RevisedScoreClamped(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(
		`{"verdict": "revised", "revised_score": 1.7, "rationale": "overshoot"}`)
	r := newTestResolver(t, provider, ResolverOptions{})

	res := r.Resolve(context.Background(), "total revenue", testAssessment(1, 0))

	assert.InDelta(t, 1.0, res.Score, 1e-9)
}

func TestResolver_ProviderErrorUnresolved(t *testing.T) {
	provider := mocks.NewErrorProvider(errors.New("upstream down"))
	r := newTestResolver(t, provider, ResolverOptions{})
	a := testAssessment(2, 0)

	res := r.Resolve(context.Background(), "total revenue", a)

	assert.Equal(t, VerdictUnresolved, res.Verdict)
	assert.Equal(t, a.Score, res.Score)
	assert.Equal(t, a.Approved, res.Approved)
}

func TestResolver_UnparseableVerdict(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("I refuse to answer in JSON.")
	r := newTestResolver(t, provider, ResolverOptions{})
	a := testAssessment(2, 0)

	res := r.Resolve(context.Background(), "total revenue", a)

	assert.Equal(t, VerdictUnresolved, res.Verdict)
	assert.Equal(t, a.Score, res.Score)
}

func TestResolver_TimeoutUnresolved(t *testing.T) {
	provider := mocks.NewMockProvider().
		WithResponse(`{"verdict": "upheld", "rationale": "late"}`).
		WithDelay(200 * time.Millisecond)
	r := newTestResolver(t, provider, ResolverOptions{Timeout: 20 * time.Millisecond})
	a := testAssessment(1, 0)

	res := r.Resolve(context.Background(), "total revenue", a)

	assert.Equal(t, VerdictUnresolved, res.Verdict)
	assert.Equal(t, a.Score, res.Score)
}

func TestResolver_RequestParameters(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(
		`{"verdict": "upheld", "rationale": "holds"}`)
	r := newTestResolver(t, provider, ResolverOptions{
		Model:       "gpt-4o",
		Temperature: 0.2,
		MaxTokens:   256,
	})
	a := testAssessment(1, 1)
	a.Target = "sql"
	a.Category = CategoryStructuredQuery
	a.IssuesFound = []string{"query returned zero rows"}
	a.Recommendations = []string{"broaden the filters"}

	r.Resolve(context.Background(), "How many orders came from Berlin?", a)

	call := provider.GetLastCall()
	require.NotNil(t, call)
	assert.Equal(t, "gpt-4o", call.Request.Model)
	assert.Equal(t, float32(0.2), call.Request.Temperature)
	assert.Equal(t, 256, call.Request.MaxTokens)

	require.Len(t, call.Request.Messages, 2)
	prompt := call.Request.Messages[1].Content
	assert.Contains(t, prompt, "How many orders came from Berlin?")
	assert.Contains(t, prompt, "query returned zero rows")
	assert.Contains(t, prompt, "broaden the filters")
	assert.Contains(t, prompt, "sql")
}
