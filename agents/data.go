package agents

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/workflow"
)

// DataAgent 把上传的文件上下文装载为规范表格数据集。
type DataAgent struct {
	logger *zap.Logger
}

// NewDataAgent 创建数据装载协作者。
func NewDataAgent(logger *zap.Logger) *DataAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataAgent{logger: logger.With(zap.String("agent", planning.StepData))}
}

func (a *DataAgent) ID() string { return planning.StepData }

func (a *DataAgent) RequiredFields() []string { return []string{KeyFileContext} }

func (a *DataAgent) ProducedFields() []string { return []string{KeyDataset} }

func (a *DataAgent) Execute(ctx context.Context, state *workflow.State) (map[string]any, error) {
	fc := mapValue(state, KeyFileContext)
	if fc == nil {
		return nil, fmt.Errorf("file context has unexpected shape")
	}

	name := strings.TrimSpace(stringField(fc, "name"))
	if name == "" {
		name = "uploaded_dataset"
	}

	rows := rowsOf(fc)
	columns := columnsOf(fc)
	if rows == nil {
		if csvText := stringField(fc, "csv"); csvText != "" {
			parsedRows, parsedCols, err := parseCSV(csvText)
			if err != nil {
				return nil, fmt.Errorf("parse uploaded csv: %w", err)
			}
			rows, columns = parsedRows, parsedCols
		}
	}
	if columns == nil {
		columns = deriveColumns(rows)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	a.logger.Info("dataset loaded",
		zap.String("dataset", name),
		zap.Int("rows", len(rows)),
		zap.Int("columns", len(columns)),
	)

	return map[string]any{
		KeyDataset: map[string]any{
			"name":      name,
			"columns":   columns,
			"rows":      rows,
			"row_count": len(rows),
		},
	}, nil
}

// parseCSV 首行作列头, 单元格能解析为数值的存为 float64。
func parseCSV(text string) ([]map[string]any, []string, error) {
	reader := csv.NewReader(strings.NewReader(strings.TrimSpace(text)))
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return []map[string]any{}, nil, nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}

	rows := make([]map[string]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(header))
		for i, cell := range record {
			if i >= len(header) {
				break
			}
			cell = strings.TrimSpace(cell)
			if f, err := strconv.ParseFloat(cell, 64); err == nil {
				row[header[i]] = f
			} else {
				row[header[i]] = cell
			}
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
