// 版权所有 2025 QueryFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范, 该许可可以
// 在 LICENSE 文件中找到。

/*
包 api 定义 QueryFlow HTTP API 的线上类型。

# 概述

api 包是传输层的数据契约: 查询请求/响应、流式事件帧、
步骤目录自省视图、运行归档视图与会话摘要。域类型
(planning/workflow/quality) 自带 JSON 标签, 本包在其上
只做顶层字段重排与裁剪, 不复制字段定义。

# 核心类型

  - QueryRequest / QueryResponse — POST /v1/query 的请求与响应
  - StreamResult / WSMessage     — SSE 终帧与 WebSocket 下行消息
  - CatalogResponse              — GET /v1/steps 的目录自省
  - RunSummary / RunDetail       — 运行归档的列表与详情视图
  - SessionView                  — 会话摘要 (不携带完整轨迹)

转换函数 (NewQueryResponse 等) 与类型放在一起, 处理器只做
传输关注点。
*/
package api
