package agents

// 流水线与各协作者共享的状态键。
const (
	KeyUserQuery   = "user_query"
	KeySchemaHint  = "schema_hint"
	KeyFileContext = "file_context"
	KeyAnalysis    = "analysis"

	KeyQueryText        = "query_text"
	KeyQueryEntities    = "query_entities"
	KeyQueryMetrics     = "query_metrics"
	KeyTimeRange        = "time_range"
	KeyDataset          = "dataset"
	KeyCleanDataset     = "clean_dataset"
	KeyCleaningReport   = "cleaning_report"
	KeyRetrievedContext = "retrieved_context"
	KeySQLResult        = "sql_result"
	KeyInsight          = "insight"
	KeyChartConfig      = "chart_config"
	KeyNarrative        = "narrative"
	KeyReport           = "report"
	KeyAssessment       = "quality_assessment"
	KeyResolution       = "debate_resolution"
)
