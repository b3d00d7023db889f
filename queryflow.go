// Package queryflow provides a top-level convenience entry point for
// assembling the query service with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/queryflow"
//
//	svc, err := queryflow.New(queryflow.WithOpenAI("gpt-4o-mini"))
//	svc, err := queryflow.New(queryflow.WithDeepSeek("deepseek-chat"))
//	svc, err := queryflow.New(queryflow.WithProvider(myProvider), queryflow.WithModel("custom"))
//
// A provider is optional: queryflow.New() with no options builds a service
// that classifies and synthesizes deterministically, which is useful for
// tests and offline environments. This is a thin wrapper around
// [pipeline.New]; callers who need per-component tuning (timeouts, prompt
// budgets, retrievers) should use the pipeline package directly.
package queryflow

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/agents"
	"github.com/BaSui01/queryflow/archive"
	"github.com/BaSui01/queryflow/internal/cache"
	"github.com/BaSui01/queryflow/internal/metrics"
	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/llm/openai"
	"github.com/BaSui01/queryflow/pipeline"
	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/session"
)

// Option configures the service created by [New].
type Option func(*options)

type options struct {
	pipe pipeline.Options

	// Provider shortcut fields, used when pipe.Provider is nil.
	providerName string
	apiKey       string
	baseURL      string
	model        string
}

// WithProvider sets a pre-built LLM provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.pipe.Provider = p }
}

// WithOpenAI routes model calls to OpenAI using the given model.
// API key is read from the OPENAI_API_KEY environment variable.
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.providerName = "openai"
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WithDeepSeek routes model calls to DeepSeek's OpenAI-compatible API
// using the given model. API key is read from the DEEPSEEK_API_KEY
// environment variable.
func WithDeepSeek(model string) Option {
	return func(o *options) {
		o.providerName = "deepseek"
		o.baseURL = "https://api.deepseek.com"
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("DEEPSEEK_API_KEY")
		}
	}
}

// WithAPIKey overrides the API key for provider shortcuts. Takes precedence
// over environment variables regardless of option order.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithModel sets the model name used by every pipeline stage. Provider
// shortcuts already do this; use it together with [WithProvider].
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithCatalog sets the step catalog. Defaults to the built-in catalog.
func WithCatalog(c *planning.Catalog) Option {
	return func(o *options) { o.pipe.Catalog = c }
}

// WithSessions sets the session store. Defaults to an in-process store.
func WithSessions(s session.Store) Option {
	return func(o *options) { o.pipe.Sessions = s }
}

// WithArchive enables run archiving.
func WithArchive(a *archive.Archive) Option {
	return func(o *options) { o.pipe.Archive = a }
}

// WithCache enables classification result caching.
func WithCache(c *cache.ClassificationCache) Option {
	return func(o *options) { o.pipe.Cache = c }
}

// WithMetrics enables metrics collection.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) { o.pipe.Metrics = m }
}

// WithRetriever sets the knowledge retriever backing insight synthesis.
func WithRetriever(r agents.Retriever) Option {
	return func(o *options) { o.pipe.Retriever = r }
}

// WithLogger sets a custom zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.pipe.Logger = l }
}

// New assembles a [pipeline.Service] from the given options.
//
// When a provider shortcut ([WithOpenAI], [WithDeepSeek]) is used without an
// API key, New returns an error rather than silently degrading: the caller
// asked for a model-backed service and did not get one. Omitting the
// provider entirely is not an error.
func New(opts ...Option) (*pipeline.Service, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.pipe.Provider == nil && o.providerName != "" {
		if o.apiKey == "" {
			return nil, fmt.Errorf("API key is required for %s: set the environment variable or use WithAPIKey", o.providerName)
		}
		o.pipe.Provider = openai.New(openai.Config{
			ProviderName: o.providerName,
			APIKey:       o.apiKey,
			BaseURL:      o.baseURL,
			DefaultModel: o.model,
		}, o.pipe.Logger)
	}

	if o.model != "" {
		o.pipe.Classifier.Model = o.model
		o.pipe.Resolver.Model = o.model
		o.pipe.SQL.Model = o.model
		o.pipe.Insight.Model = o.model
		o.pipe.Narrative.Model = o.model
	}

	return pipeline.New(o.pipe)
}
