// 版权所有 2025 QueryFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范, 该许可可以
// 在 LICENSE 文件中找到。

/*
包 planning 实现查询分类与执行规划。

# 概述

这是 QueryFlow 管线的决策前端：给定一条业务查询，先由 [Classifier]
判定查询意图与复杂度，再由 [Planner] 产出依赖有序、可部分并行的
[ExecutionPlan]，交给 workflow 包的执行器运行。

分类与规划共享一份注入的 [Catalog]：步骤目录（含依赖表与耗时估计）、
每个意图的基础计划与降级策略、意图触发正则与统计词表。所有表都有
内置默认值，也可从 YAML 文件整段覆盖，便于在测试中替换固定数据。

# 设计要点

分类器把语言模型当作不可靠旁路：模型调用失败、响应不可解析或返回
未知意图时，一律降级为模式匹配结果，[Classifier.AnalyzeQuery] 永不
返回错误。[QueryAnalysis.Source] 区分 parsed 与 fallback 两种形态。

规划器是纯函数：相同的 (意图, 复杂度分档, 文件上下文标志) 输入必然
产出相同计划。依赖排序在环或不可满足依赖时不会报错，而是按原序追加
剩余步骤并置位 [ExecutionPlan.OrderingDegraded]，由执行器写入追踪。
*/
package planning
