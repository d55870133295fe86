// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 打开 GORM 数据库连接并管理连接池，供检查点 SQL 存储使用。

# 方言

Open 按 config.DatabaseConfig.Driver 选择方言：postgres、mysql，
以及纯 Go 实现的 sqlite（glebarez/sqlite，无需 cgo）。sqlite 的连接池
固定为单连接。

# 连接池

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、Close()。
  - 健康检查：后台定时 PingContext，并把打开/空闲连接数交给
    StatsObserver（cmd/hived 接到 Prometheus 指标）。Close 会等待
    检查循环退出。
  - 事务：WithTransaction 单次执行；WithTransactionRetry 对死锁、
    序列化失败、连接中断等瞬时错误指数退避重试。
*/
package database
