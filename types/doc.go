// Copyright (c) QueryFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 QueryFlow 服务的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包，为 planning、workflow、llm、
api 等上层模块提供统一的类型契约。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider、StepID 标记

# 主要能力

  - 错误工具链：IsRetryable / GetErrorCode
  - 构建器链式调用：NewError(...).WithCause(...).WithHTTPStatus(...).WithRetryable(...)
*/
package types
