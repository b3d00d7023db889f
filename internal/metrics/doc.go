// 版权所有 2025 QueryFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范, 该许可可以
// 在 LICENSE 文件中找到。

/*
包 metrics 提供流水线与服务层的 Prometheus 指标。

# 概述

Collector 按业务维度组织指标: 查询按意图与终态计数, 步骤记录
时长直方图与失败计数, 质量门控记录评分分布与辩论裁决, 流式
端点维护在途连接数, 外加缓存命中与 LLM 调用的基础设施指标。
指标通过 promauto 注册到默认 registry, /metrics 端点直接使用
promhttp 暴露。

评分直方图的桶边界对齐质量门控的评分档位 (0.3 / 0.65 / 0.7 /
0.75 / 0.85 / 0.95), 看一眼分布即可知道放行线两侧的体量。
*/
package metrics
