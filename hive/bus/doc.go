// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 bus 提供蜂群内部的协调总线。

# 概述

注册表、分发器、执行器与分析引擎互不持有引用，所有跨子系统通知
都经由 Bus 发布。Send 永不阻塞，投递语义为至多一次：订阅者缓冲区满
或已关闭时消息被丢弃并记录 zap 日志，错误不会上抛。

# 核心类型

  - Message：封闭的消息集合（AgentRegistered、AgentRemoved、
    TaskCompleted、MetricsUpdate、ResourceAlert、Shutdown）。
  - Bus：扇出总线，每个订阅者一个 FIFO 缓冲通道。
  - Sender：子系统持有的发送句柄接口。
  - Envelope：事件流使用的 JSON 外层。
*/
package bus
