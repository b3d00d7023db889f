// 版权所有 2025 QueryFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范, 该许可可以
// 在 LICENSE 文件中找到。

/*
Package handlers 提供 QueryFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 QueryFlow 所有 HTTP 端点的请求处理逻辑,
包括同步查询、SSE 与 WebSocket 流式查询、步骤目录自省、
运行归档查询、会话管理、健康检查以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口, 通过 Swagger 注解生成 API 文档。

# 核心类型

  - QueryHandler    — 业务查询处理器, 同步与 SSE 流式响应
  - WSHandler       — WebSocket 流式查询 (coder/websocket)
  - CatalogHandler  — 步骤目录自省 (GET /v1/steps)
  - RunsHandler     — 运行归档列表与详情 (/v1/runs)
  - SessionsHandler — 会话摘要与清理 (/v1/sessions/{id})
  - HealthHandler   — 存活/就绪/版本 (/health, /ready, /version)
  - Response        — 统一 JSON 响应结构 (success + data + error + timestamp)
  - ErrorInfo       — 结构化错误信息, 含 code、message、retryable 标记
  - ResponseWriter  — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 统一响应格式: WriteSuccess / WriteError / WriteJSON 辅助函数,
    请求 ID 从上下文带出
  - 请求验证: DecodeJSONBody (4 MB 限制 + 顶层严格模式)、
    ValidateContentType、RequireMethod
  - ErrorCode → HTTP 状态码自动映射 (4xx/5xx)
  - SSE 流式输出: 逐步进度事件 + result/error 终帧 + [DONE] 结束标记
  - WebSocket 流式输出: progress 消息 + result/error 终帧, 客户端
    断开触发执行取消
  - 就绪探测: 委托流水线逐个检查会话存储/缓存/归档/LLM 供应商
*/
package handlers
