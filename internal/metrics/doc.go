// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、任务执行、
蜂巢状态与数据库连接。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册到默认注册表，由 /metrics 端点暴露。所有指标按 namespace 隔离，
蜂巢相关指标位于 hive 子系统下。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 任务指标：按 task_type/status 分组的执行总数与耗时直方图。
  - 蜂巢状态：Agent 总数与工作中数量、各队列积压与利用率、
    每个任务类型的熔断器状态、进程 CPU/内存使用率与资源告警计数。
  - 数据库指标：活跃/空闲连接数 Gauge。
*/
package metrics
