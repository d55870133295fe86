// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package types 提供 AgentHive 的全局共享错误类型。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 hive、api、cmd 等上层模块
提供统一的错误契约，避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误，含 HTTP 状态码、Retryable 标记，
    以及校验字段、资源名、超时操作等上下文

# 主要能力

  - 常用错误构造：NewValidationError / NewResourceExhaustedError /
    NewTimeoutError / NewNotFoundError
  - 错误工具链：AsError / IsCode / IsRetryable / GetErrorCode（支持 %w 包装链）
*/
package types
