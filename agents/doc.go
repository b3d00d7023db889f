// 版权所有 2025 QueryFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范, 该许可可以
// 在 LICENSE 文件中找到。

/*
包 agents 提供步骤目录中每个步骤的协作者实现。

# 概述

每个协作者实现 workflow.Step：声明必需输入键与产出键，在共享状态上
执行一段工作并返回增量。执行器据此做调用前校验、合并产出并记录追踪。
[NewRegistry] 把全部协作者装配进一个 workflow.Registry。

依赖语言模型的协作者（sql、insight、narrative、debate）在 Provider
缺席或调用失败时一律走确定性降级路径，绝不因模型侧故障让步骤失败。

# 状态键约定

流水线写入的初始键：

	user_query   string            原始查询
	schema_hint  string            可选的表结构提示
	file_context map[string]any    可选的上传数据 {name, columns, rows | csv}
	analysis     *planning.QueryAnalysis  分类结果

各步骤的产出键：

	query     → query_text, query_entities, query_metrics, time_range
	data      → dataset {name, columns, rows, row_count}
	cleaner   → clean_dataset, cleaning_report
	retrieval → retrieved_context []{id, text, score}
	sql       → sql_result {sql, columns, rows, row_count, duration_ms, error?}
	insight   → insight string
	chart     → chart_config {type, title, data, x_axis, y_axis}
	narrative → narrative string
	report    → report {id, title, generated_at, sections, chart?}
	critique  → quality_assessment *quality.Assessment
	debate    → debate_resolution *quality.Resolution

chart 只硬性要求 query_entities：与 sql 并行调度时它看不到 sql_result,
此时序列数据退化为数据集预览或空集, 由质量门控据实打分。
*/
package agents
