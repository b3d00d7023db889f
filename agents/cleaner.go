package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/workflow"
)

// CleanerAgent 清洗数据集: 修剪字符串单元格、丢弃全空行、去除重复行。
type CleanerAgent struct {
	logger *zap.Logger
}

// NewCleanerAgent 创建数据清洗协作者。
func NewCleanerAgent(logger *zap.Logger) *CleanerAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanerAgent{logger: logger.With(zap.String("agent", planning.StepCleaner))}
}

func (a *CleanerAgent) ID() string { return planning.StepCleaner }

func (a *CleanerAgent) RequiredFields() []string { return []string{KeyDataset} }

func (a *CleanerAgent) ProducedFields() []string {
	return []string{KeyCleanDataset, KeyCleaningReport}
}

func (a *CleanerAgent) Execute(ctx context.Context, state *workflow.State) (map[string]any, error) {
	ds := mapValue(state, KeyDataset)
	if ds == nil {
		return nil, fmt.Errorf("dataset has unexpected shape")
	}

	rows := rowsOf(ds)
	var (
		cleaned          = make([]map[string]any, 0, len(rows))
		seen             = make(map[string]bool)
		trimmedCells     int
		droppedEmpty     int
		droppedDuplicate int
	)

	for _, row := range rows {
		out := make(map[string]any, len(row))
		empty := true
		for k, v := range row {
			if s, ok := v.(string); ok {
				trimmed := strings.TrimSpace(s)
				if trimmed != s {
					trimmedCells++
				}
				if trimmed != "" {
					empty = false
				}
				out[k] = trimmed
				continue
			}
			if v != nil {
				empty = false
			}
			out[k] = v
		}
		if empty {
			droppedEmpty++
			continue
		}
		fp := rowFingerprint(out)
		if seen[fp] {
			droppedDuplicate++
			continue
		}
		seen[fp] = true
		cleaned = append(cleaned, out)
	}

	columns := columnsOf(ds)
	if columns == nil {
		columns = deriveColumns(cleaned)
	}

	report := map[string]any{
		"rows_in":           len(rows),
		"rows_out":          len(cleaned),
		"dropped_empty":     droppedEmpty,
		"dropped_duplicate": droppedDuplicate,
		"trimmed_cells":     trimmedCells,
	}

	a.logger.Info("dataset cleaned",
		zap.Int("rows_in", len(rows)),
		zap.Int("rows_out", len(cleaned)),
		zap.Int("dropped_empty", droppedEmpty),
		zap.Int("dropped_duplicate", droppedDuplicate),
	)

	return map[string]any{
		KeyCleanDataset: map[string]any{
			"name":      stringField(ds, "name"),
			"columns":   columns,
			"rows":      cleaned,
			"row_count": len(cleaned),
		},
		KeyCleaningReport: report,
	}, nil
}

// rowFingerprint 按键序拼接, 保证相同内容的行指纹一致。
func rowFingerprint(row map[string]any) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, row[k])
	}
	return b.String()
}
