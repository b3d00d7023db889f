package agents

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/BaSui01/queryflow/workflow"
)

func mapValue(state *workflow.State, key string) map[string]any {
	v, ok := state.Get(key)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// stringSlice 兼容 []string 与 JSON 反序列化产生的 []any。
func stringSlice(state *workflow.State, key string) []string {
	v, ok := state.Get(key)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// rowsOf 取出表格行, 兼容两种切片形态。
func rowsOf(table map[string]any) []map[string]any {
	switch rows := table["rows"].(type) {
	case []map[string]any:
		return rows
	case []any:
		out := make([]map[string]any, 0, len(rows))
		for _, r := range rows {
			if m, ok := r.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func columnsOf(table map[string]any) []string {
	switch cols := table["columns"].(type) {
	case []string:
		return cols
	case []any:
		out := make([]string, 0, len(cols))
		for _, c := range cols {
			if s, ok := c.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// deriveColumns 从首行推导列名, 排序保证确定性。
func deriveColumns(rows []map[string]any) []string {
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func numericValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// firstNumericColumn 返回首个在任意行里出现数值的列。
func firstNumericColumn(rows []map[string]any, columns []string) string {
	for _, col := range columns {
		for _, row := range rows {
			if _, ok := numericValue(row[col]); ok {
				return col
			}
		}
	}
	return ""
}

// firstDataset 清洗后的数据集优先。
func firstDataset(state *workflow.State) map[string]any {
	if ds := mapValue(state, KeyCleanDataset); ds != nil {
		return ds
	}
	return mapValue(state, KeyDataset)
}

func tableRowCount(table map[string]any) int {
	if n, ok := numericValue(table["row_count"]); ok {
		return int(n)
	}
	return len(rowsOf(table))
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
