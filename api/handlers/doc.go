// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 handlers 实现 hived 的 HTTP 端点。

# 核心类型

  - HiveHandler：Agent 与任务的创建、查询、删除、全文检索，
    以及状态、分析、系统健康与趋势端点，依赖 Hive 接口。
  - EventsHandler：把协调总线消息以 JSON 信封经 WebSocket 推送，
    ?kinds= 过滤消息类型，收到 shutdown 后正常关闭连接。
  - HealthHandler：/health、/ready 与 /version，就绪检查可插拔
    （PingCheck 用于数据库与 Redis，HiveCheck 检查后台流程）。
  - Response / ErrorInfo：统一响应结构。

# 错误映射

WriteError 把 *types.Error 的错误码映射为 HTTP 状态码：校验失败 400，
未找到 404，非法状态迁移 409，资源耗尽与熔断 503，超时 504。
其他错误一律按 500 返回，不向客户端暴露原始信息。
*/
package handlers
