// 版权所有 2025 QueryFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范, 该许可可以
// 在 LICENSE 文件中找到。

/*
包 llm 提供统一的大语言模型接入层。

# 概述

本包目标是屏蔽不同模型服务商在接口、鉴权、错误语义和流式协议上的差异，
对上层的查询分类器与执行步骤暴露一致的请求与响应模型。

QueryFlow 把 LLM 当作不可靠的外部服务对待：所有调用方都有自己的降级
路径（规则分类、预设计划、直接放行），Provider 层的失败从不导致整个
查询处理失败。

# 核心接口

  - [Provider]：LLM 提供者接口，提供 Completion / Stream / HealthCheck / Name
  - [ChatRequest] / [ChatResponse]：聊天请求与响应
  - [StreamChunk]：流式输出分片
  - [HealthStatus]：健康检查状态
  - [Error]：统一错误模型，携带错误码与可重试标记
  - [Breaker]：Provider 熔断装饰器，连续上游失败后快速拒绝

# 相关子包

- llm/openai：OpenAI 兼容服务商适配实现（OpenAI、DeepSeek、Qwen 等网关）。
- llm/structured：基于 Schema 提示的结构化输出解析。
- llm/tokenizer：Token 计数与截断，用于查询预算管理。
*/
package llm
