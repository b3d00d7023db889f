// 版权所有 2025 QueryFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范, 该许可可以
// 在 LICENSE 文件中找到。

/*
Package main 提供 QueryFlow 服务端程序入口。

# 概述

cmd/queryflow 是 QueryFlow 的可执行入口, 提供 HTTP/SSE/WebSocket
查询服务、数据库迁移、健康检查和版本查询等子命令。程序支持 YAML
配置文件加载、结构化日志 (zap)、Prometheus 指标采集与 OpenTelemetry
链路追踪。

# 核心类型

  - Server     — 主服务器, 管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令: serve (启动服务)、migrate (数据库迁移)、version、health
  - 中间件链: Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing、CORS、RateLimiter (基于 IP)、
    APIKeyAuth (X-API-Key, 未配置时关闭)
  - 查询端点: /v1/query (同步)、/v1/query/stream (SSE)、
    /v1/query/ws (WebSocket)、/v1/steps、/v1/runs、/v1/sessions
  - Metrics 服务器: 独立端口暴露 /metrics (Prometheus)
  - 优雅关闭: 信号监听 → 关闭 HTTP → 关闭 Metrics → 释放存储连接
  - 构建注入: Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
