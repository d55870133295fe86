// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 hived 的 HTTP 监听生命周期，API 端口与 metrics 端口
各使用一个 Manager。

# 核心类型

  - Manager：持有 http.Server、监听器与异步错误通道，提供
    Start、Shutdown、Wait。
  - Config：名称、地址、读写与空闲超时、请求头上限、关闭超时，
    以及可选的 *tls.Config（由 tlsutil.ServerTLSConfig 加载）。

# 行为

Start 非阻塞。Shutdown 在 ShutdownTimeout 内排空请求，可重复调用，
关闭后不能再次 Start。Wait 阻塞到 ctx 结束或服务异常退出，
信号处理由调用方通过 signal.NotifyContext 完成。
*/
package server
