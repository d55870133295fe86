// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 hived 蜂巢守护进程入口。

# 概述

cmd/hived 把 hive.Coordinator 与其基础设施装配成一个长期运行的服务：
HTTP API、WebSocket 事件流、健康探针、Prometheus 指标、OpenTelemetry
链路追踪，以及基于数据库或 Redis 的周期检查点。配置支持 YAML 与 TOML，
并可由 AGENTHIVE_ 前缀的环境变量覆盖。

# 核心类型

  - Server      主服务器，按依赖顺序启动并逆序关闭各组件
  - Middleware  HTTP 中间件函数签名 func(http.Handler) http.Handler
  - AuthConfig  API Key 与 JWT（HS256 / RS256）认证配置

# 主要能力

  - 子命令：serve、migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    Metrics、OTelTracing、CORS、RateLimiter、Auth
  - 检查点：启动时按 hive id 恢复最新快照，运行期间周期保存，关闭时保存最终快照
  - 优雅关闭：停止 HTTP → 停止协调器 → 最终检查点 → 释放连接 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
