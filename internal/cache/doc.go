// 版权所有 2025 QueryFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范, 该许可可以
// 在 LICENSE 文件中找到。

/*
包 cache 提供基于 Redis 的查询分类结果缓存。

# 概述

分类是每次查询的第一跳, 也是唯一可能调用模型的前置环节。相同
问题在短时间内反复出现时 (仪表盘刷新、重试), 没有必要重复付费
分类。本包以规范化查询与 schema 提示的哈希为键缓存分类结果,
并用 singleflight 合并并发的相同查询, 保证同一键同时只有一次
模型调用在途。

缓存是尽力而为的旁路: 读写失败降级为未命中并记日志, 绝不影响
查询本身。降级 (fallback) 产生的分类结果不入缓存, 模型恢复后
下一次请求即可重新分类。

# 核心类型

  - ClassificationCache: 持有 go-redis 客户端与 singleflight 组,
    提供 Lookup/Store/Analyze/Invalidate 与连接生命周期管理。
    nil 实例上的所有方法安全退化为直通。
*/
package cache
