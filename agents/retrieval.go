package agents

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/workflow"
)

// Document 可检索的上下文条目。
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResult 带匹配得分的检索结果。
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Retriever 上下文检索接口。实现必须可并发使用。
type Retriever interface {
	Index(ctx context.Context, docs []Document) error
	Search(ctx context.Context, query string, topK int) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
}

// KeywordIndex 内存关键词索引。按查询词元重叠率计分,
// 适合测试与小规模部署; 生产可换接向量检索实现。
type KeywordIndex struct {
	mu     sync.RWMutex
	docs   []Document
	logger *zap.Logger
}

// NewKeywordIndex 创建内存关键词索引。
func NewKeywordIndex(logger *zap.Logger) *KeywordIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeywordIndex{logger: logger.With(zap.String("component", "keyword_index"))}
}

// Index 追加文档, 空 ID 自动补全。
func (k *KeywordIndex) Index(ctx context.Context, docs []Document) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		k.docs = append(k.docs, doc)
	}

	k.logger.Debug("documents indexed",
		zap.Int("added", len(docs)),
		zap.Int("total", len(k.docs)),
	)
	return nil
}

// Search 返回得分最高的 topK 篇文档, 零分文档不返回。
// 并列得分按 ID 升序, 结果因此确定。
func (k *KeywordIndex) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	tokens := splitTokens(query)
	if len(tokens) == 0 || topK <= 0 {
		return []SearchResult{}, nil
	}
	querySet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		querySet[t] = true
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	results := make([]SearchResult, 0, len(k.docs))
	for _, doc := range k.docs {
		docSet := make(map[string]bool)
		for _, t := range splitTokens(doc.Text) {
			docSet[t] = true
		}
		overlap := 0
		for t := range querySet {
			if docSet[t] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		results = append(results, SearchResult{
			Document: doc,
			Score:    float64(overlap) / float64(len(querySet)),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.ID < results[j].Document.ID
	})
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Count 返回已索引文档数。
func (k *KeywordIndex) Count(ctx context.Context) (int, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.docs), nil
}

// RetrievalAgent 把检索索引适配为计划步骤。
type RetrievalAgent struct {
	retriever Retriever
	topK      int
	logger    *zap.Logger
}

// NewRetrievalAgent 创建检索协作者。retriever 为 nil 时检索结果恒为空。
func NewRetrievalAgent(retriever Retriever, logger *zap.Logger) *RetrievalAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrievalAgent{
		retriever: retriever,
		topK:      5,
		logger:    logger.With(zap.String("agent", planning.StepRetrieval)),
	}
}

func (a *RetrievalAgent) ID() string { return planning.StepRetrieval }

func (a *RetrievalAgent) RequiredFields() []string { return []string{KeyQueryText} }

func (a *RetrievalAgent) ProducedFields() []string { return []string{KeyRetrievedContext} }

func (a *RetrievalAgent) Execute(ctx context.Context, state *workflow.State) (map[string]any, error) {
	if a.retriever == nil {
		return map[string]any{KeyRetrievedContext: []map[string]any{}}, nil
	}

	text, _ := state.GetString(KeyQueryText)
	results, err := a.retriever.Search(ctx, text, a.topK)
	if err != nil {
		return nil, fmt.Errorf("context search failed: %w", err)
	}

	items := make([]map[string]any, 0, len(results))
	for _, r := range results {
		items = append(items, map[string]any{
			"id":    r.Document.ID,
			"text":  r.Document.Text,
			"score": r.Score,
		})
	}

	a.logger.Debug("context retrieved", zap.Int("documents", len(items)))
	return map[string]any{KeyRetrievedContext: items}, nil
}
