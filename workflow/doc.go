// 版权所有 2025 QueryFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范, 该许可可以
// 在 LICENSE 文件中找到。

/*
包 workflow 实现执行计划的编排执行。

# 概述

[Executor] 接收 planning 包产出的 ExecutionPlan, 按序调用绑定在
[Registry] 上的协作者([Step]), 把各步返回的增量键值合并进共享的
[State], 并产出完整的 [ExecutionTrace]。

# 执行语义

步骤严格按计划顺序执行; 声明为并行组的步骤在首个成员位置整组并发
派发, 成员只读组前状态快照, 全组结束后按组迭代顺序合并结果(键冲突
后写覆盖并告警)。单步失败不中断计划: 校验失败与执行失败都记录为
failed 后继续, 降级策略只影响最终结果组装。

每步有派生自目录耗时估计的超时, 整个计划另有计划级超时; 超时或
context 取消时剩余步骤记为 skipped, 事件流以 error 终态收尾。

# 进度事件

通过 [WithProgressEmitter] 挂回调, 或用 [Executor.ExecuteStream] 以
通道消费: 每步开始与结束各发一条 [ProgressEvent], 序列以 complete
或 error 终态事件结束。
*/
package workflow
