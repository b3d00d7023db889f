// Package config 提供 QueryFlow 的配置管理功能。
//
// 支持从默认值、YAML 文件和环境变量（前缀 QUERYFLOW）加载配置，
// 并对服务器、流水线、分类器、会话存储与归档数据库配置做统一校验。
package config
