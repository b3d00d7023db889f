package planning

// Built-in catalogue tables. Every entry can be replaced wholesale through a
// YAML override file; these values are the shipped defaults.

// Step identifiers known to the default catalogue.
const (
	StepData      = "data"
	StepCleaner   = "cleaner"
	StepQuery     = "query"
	StepRetrieval = "retrieval"
	StepSQL       = "sql"
	StepInsight   = "insight"
	StepChart     = "chart"
	StepNarrative = "narrative"
	StepReport    = "report"
	StepCritique  = "critique"
	StepDebate    = "debate"
)

// Intent categories recognised by the classifier.
const (
	IntentDataExploration   = "data_exploration"
	IntentVisualization     = "visualization"
	IntentInsightGeneration = "insight_generation"
	IntentSQLQuery          = "sql_query"
	IntentReportGeneration  = "report_generation"
)

// DefaultIntent is the classification of last resort.
const DefaultIntent = IntentInsightGeneration

// intentOrder 是意图的稳定遍历顺序, 决定 DetectedIntents 的排列.
func intentOrder() []string {
	return []string{
		IntentDataExploration,
		IntentVisualization,
		IntentInsightGeneration,
		IntentSQLQuery,
		IntentReportGeneration,
	}
}

func defaultSteps() []StepDescriptor {
	return []StepDescriptor{
		{ID: StepData, EstimatedSeconds: 10},
		{ID: StepCleaner, DependsOn: []string{StepData}, EstimatedSeconds: 15},
		{ID: StepQuery, EstimatedSeconds: 5},
		{ID: StepRetrieval, DependsOn: []string{StepQuery}, EstimatedSeconds: 10},
		{ID: StepSQL, DependsOn: []string{StepQuery, StepRetrieval}, EstimatedSeconds: 15},
		{ID: StepInsight, DependsOn: []string{StepSQL}, EstimatedSeconds: 20},
		{ID: StepChart, DependsOn: []string{StepSQL}, EstimatedSeconds: 15},
		{ID: StepNarrative, DependsOn: []string{StepInsight}, EstimatedSeconds: 20},
		{ID: StepReport, DependsOn: []string{StepInsight, StepChart, StepNarrative}, EstimatedSeconds: 30},
		{ID: StepCritique, DependsOn: []string{StepInsight}, EstimatedSeconds: 10},
		{ID: StepDebate, DependsOn: []string{StepCritique}, EstimatedSeconds: 20},
	}
}

func defaultBasePlans() map[string]BasePlan {
	return map[string]BasePlan{
		IntentDataExploration: {
			Steps:            []string{StepQuery, StepRetrieval, StepSQL, StepInsight},
			EstimatedSeconds: 45,
		},
		IntentVisualization: {
			Steps:            []string{StepQuery, StepSQL, StepChart},
			EstimatedSeconds: 30,
		},
		IntentInsightGeneration: {
			Steps:            []string{StepQuery, StepRetrieval, StepSQL, StepInsight, StepNarrative},
			EstimatedSeconds: 60,
		},
		IntentSQLQuery: {
			Steps:            []string{StepQuery, StepSQL},
			EstimatedSeconds: 20,
		},
		IntentReportGeneration: {
			Steps:            []string{StepQuery, StepRetrieval, StepSQL, StepInsight, StepChart, StepNarrative, StepReport},
			EstimatedSeconds: 120,
		},
	}
}

func defaultFallbacks() map[string]FallbackStrategy {
	return map[string]FallbackStrategy{
		IntentDataExploration:   {Steps: []string{StepQuery, StepInsight}, Output: "basic_summary"},
		IntentVisualization:     {Steps: []string{StepQuery, StepSQL}, Output: "data_table"},
		IntentInsightGeneration: {Steps: []string{StepQuery, StepInsight}, Output: "basic_summary"},
		IntentSQLQuery:          {Steps: []string{StepSQL}, Output: "direct_answer"},
		IntentReportGeneration:  {Steps: []string{StepQuery, StepSQL, StepInsight, StepNarrative}, Output: "summary_report"},
	}
}

// defaultPatterns 每个意图 3-5 条大小写不敏感的触发模式, 中英混排.
func defaultPatterns() map[string][]string {
	return map[string][]string{
		IntentDataExploration: {
			`(?i)\b(show|list|display|preview|browse)\b.*\b(data|rows|records|table|columns|fields)\b`,
			`(?i)\bwhat\s+(columns|fields|tables|data)\b`,
			`(?i)\b(explore|inspect)\b`,
			`(?i)\b(sample|head|first\s+\d+)\b.*\b(rows|records|entries)\b`,
			`(?i)(查看|浏览|预览).*(数据|记录|字段)`,
		},
		IntentVisualization: {
			`(?i)\b(chart|plot|graph|visuali[sz]e|visuali[sz]ation)\b`,
			`(?i)\b(bar|line|pie|scatter|histogram|heatmap)\s+(chart|plot|graph)\b`,
			`(?i)\b(draw|render)\b.*\b(chart|plot|graph|figure)\b`,
			`(?i)(图表|可视化|柱状图|折线图|饼图)`,
		},
		IntentInsightGeneration: {
			`(?i)\b(why|insight|insights)\b`,
			`(?i)\b(analy[sz]e|analysis|understand|explain|interpret)\b`,
			`(?i)\b(trend|trends|pattern|patterns|driver|drivers|correlation)\b`,
			`(?i)(分析|洞察|趋势|原因)`,
		},
		IntentSQLQuery: {
			`(?i)\b(sum|total|count|average|avg|max|maximum|min|minimum)\b.*\b(of|by|per|for)\b`,
			`(?i)\b(group\s+by|filter|where|top\s+\d+|order\s+by)\b`,
			`(?i)\b(how\s+many|how\s+much)\b`,
			`(?i)\b(greater\s+than|less\s+than|at\s+least|between)\b.*\d`,
			`(?i)(多少|总共|合计|平均)`,
		},
		IntentReportGeneration: {
			`(?i)\b(report|summary|summari[sz]e|overview)\b`,
			`(?i)\b(executive|comprehensive|full|detailed)\s+(summary|report|overview|briefing)\b`,
			`(?i)\b(dashboard|briefing)\b`,
			`(?i)(报告|总结|汇总|综述)`,
		},
	}
}

// defaultStatTerms 统计学词表, 命中的去重个数 ÷ 10 构成复杂度因子之一.
func defaultStatTerms() []string {
	return []string{
		"average", "mean", "median", "sum", "count", "total",
		"maximum", "minimum", "max", "min",
		"trend", "correlation", "variance", "deviation",
		"percentage", "ratio", "growth", "distribution", "forecast", "outlier",
	}
}
