// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，支持连接池、健康检查、
JSON 序列化、键前缀与命中统计。

# 概述

本包封装 go-redis 客户端，为注册表读缓存与 Redis 检查点存储提供统一的
读写接口。Manager 负责连接生命周期管理，包括初始化、健康检查与优雅关闭。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete/Exists 等基础操作，
    以及 GetJSON/SetJSON 便捷序列化方法与 Key 前缀拼接。
  - Config：缓存配置，包含地址、密码、键前缀、连接池大小、默认 TTL
    与健康检查间隔。
  - Stats：命中、未命中、命中率、键数量与连接数。

# 主要能力

  - 健康检查：后台定时 Ping，异常时通过 zap 日志告警，Close 时退出。
  - 错误语义：ErrCacheMiss / IsCacheMiss 与 ErrClosed 哨兵错误。
*/
package cache
