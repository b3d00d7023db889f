// 版权所有 2025 QueryFlow Authors
//
// Package pipeline 是 QueryFlow 的查询处理门面: 把分类器、规划器、
// 执行器、会话存储、分类缓存、运行归档和指标采集装配成单一入口。
// API 层和 CLI 只依赖本包, 不直接触碰各个子系统。
//
// Package pipeline assembles the classifier, planner, executor,
// session store, classification cache, run archive and metrics
// collector into a single query-processing facade.
//
// 处理流程 / Processing flow:
//
//	ProcessQuery / StreamQuery
//	  1. 校验请求, 读取会话 (不存在则新建, 读取失败降级为空会话)
//	  2. 合并会话上下文: 请求未带 file_context/schema_hint 时复用会话保存值
//	  3. 分类 (经缓存去重), query_type 覆盖意图时拷贝分析结果再改写
//	  4. 生成执行计划并播种初始状态
//	  5. 执行计划 (流式走 ExecuteStream, 进度事件透传给调用方)
//	  6. 落指标、更新会话、归档快照, 组装 Result
//
// 会话保存与归档失败只记日志, 不影响已经产出的查询结果;
// 计划级超时或取消视为中止, 不更新会话也不归档。
package pipeline
